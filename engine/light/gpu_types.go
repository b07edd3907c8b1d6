package light

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unsafe"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// MaxGPULights is the maximum number of lights marshaled into the relight light buffer per frame.
// Lights beyond the budget are dropped in slice order.
const MaxGPULights = 256

// ErrShortLightBuffer is returned by UnmarshalLightBuffer when the buffer is smaller than its header claims.
var ErrShortLightBuffer = errors.New("light buffer shorter than its header")

// GPULightSource is the canonical WGSL definition of the Light struct.
// Matches GPULight layout exactly (64 bytes, std430 aligned).
//
//go:embed assets/light.wgsl
var GPULightSource string

// GPULight is the GPU-aligned representation of a single light source.
// Matches the WGSL Light struct layout exactly (see GPULightSource).
// Size: 64 bytes (std430 / WGSL aligned).
type GPULight struct {
	Position   [3]float32 // offset  0: world-space position (point/spot) or unused (directional)
	LightType  uint32     // offset 12: 0 = directional, 1 = point, 2 = spot
	Color      [3]float32 // offset 16: RGB color
	Intensity  float32    // offset 28: scalar multiplier
	Direction  [3]float32 // offset 32: normalized direction (directional/spot) or unused (point)
	LightRange float32    // offset 44: attenuation cutoff distance
	InnerCone  float32    // offset 48: cos(inner half-angle) for spot
	OuterCone  float32    // offset 52: cos(outer half-angle) for spot
	_pad       [2]uint32  // offset 56: padding to 64-byte alignment
}

// Size returns the size of the GPULight struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (64)
func (g *GPULight) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPULight struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload
func (g *GPULight) Marshal() []byte {
	buf := make([]byte, 64)
	g.put(buf)
	return buf
}

func (g *GPULight) put(buf []byte) {
	putVec3(buf[0:12], g.Position)
	binary.LittleEndian.PutUint32(buf[12:16], g.LightType)
	putVec3(buf[16:28], g.Color)
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(g.Intensity))
	putVec3(buf[32:44], g.Direction)
	binary.LittleEndian.PutUint32(buf[44:48], math.Float32bits(g.LightRange))
	binary.LittleEndian.PutUint32(buf[48:52], math.Float32bits(g.InnerCone))
	binary.LittleEndian.PutUint32(buf[52:56], math.Float32bits(g.OuterCone))
	binary.LittleEndian.PutUint32(buf[56:60], 0)
	binary.LittleEndian.PutUint32(buf[60:64], 0)
}

func (g *GPULight) get(buf []byte) {
	g.Position = getVec3(buf[0:12])
	g.LightType = binary.LittleEndian.Uint32(buf[12:16])
	g.Color = getVec3(buf[16:28])
	g.Intensity = math.Float32frombits(binary.LittleEndian.Uint32(buf[28:32]))
	g.Direction = getVec3(buf[32:44])
	g.LightRange = math.Float32frombits(binary.LittleEndian.Uint32(buf[44:48]))
	g.InnerCone = math.Float32frombits(binary.LittleEndian.Uint32(buf[48:52]))
	g.OuterCone = math.Float32frombits(binary.LittleEndian.Uint32(buf[52:56]))
}

// Irradiance evaluates the light at a surface point with unit normal n: color times intensity, distance and
// cone attenuation, and the clamped cosine term. It mirrors the evaluation in the brick relight kernel.
//
// Parameters:
//   - p: world-space surface position
//   - n: unit surface normal
//
// Returns:
//   - mgl32.Vec3: the RGB irradiance contribution
func (g *GPULight) Irradiance(p, n mgl32.Vec3) mgl32.Vec3 {
	var toLight mgl32.Vec3
	atten := float32(1)

	switch LightType(g.LightType) {
	case LightTypeDirectional:
		toLight = mgl32.Vec3(g.Direction).Mul(-1)
	case LightTypePoint, LightTypeSpot:
		d := mgl32.Vec3(g.Position).Sub(p)
		dist := d.Len()
		if dist == 0 || dist >= g.LightRange {
			return mgl32.Vec3{}
		}
		toLight = d.Mul(1 / dist)
		falloff := 1 - dist/g.LightRange
		atten = falloff * falloff
		if LightType(g.LightType) == LightTypeSpot {
			atten *= coneFactor(toLight.Mul(-1).Dot(g.Direction), g.OuterCone, g.InnerCone)
		}
	default:
		return mgl32.Vec3{}
	}

	ndotl := math32.Max(0, n.Dot(toLight))
	return mgl32.Vec3(g.Color).Mul(g.Intensity * atten * ndotl)
}

// coneFactor is smoothstep(outer, inner, cosAngle), degrading to a hard edge when the cone has no falloff band.
func coneFactor(cosAngle, outer, inner float32) float32 {
	if inner <= outer {
		if cosAngle >= outer {
			return 1
		}
		return 0
	}
	t := math32.Min(1, math32.Max(0, (cosAngle-outer)/(inner-outer)))
	return t * t * (3 - 2*t)
}

// GPULightHeaderSource is the canonical WGSL definition of the LightHeader struct.
// Matches GPULightHeader layout exactly (16 bytes, std430 aligned).
//
//go:embed assets/light_header.wgsl
var GPULightHeaderSource string

// GPULightHeader is the header prepended to the light storage buffer.
// Contains the sky color used for sky-visible surfels and the active light count.
// Matches the WGSL LightHeader struct layout exactly (see GPULightHeaderSource).
// Size: 16 bytes (vec3 + u32, std430 aligned).
type GPULightHeader struct {
	SkyColor   [3]float32 // offset 0: sky RGB
	LightCount uint32     // offset 12: number of active lights following the header
}

// Size returns the size of the GPULightHeader struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (16)
func (h *GPULightHeader) Size() int {
	return int(unsafe.Sizeof(*h))
}

// Marshal serializes the GPULightHeader struct into a byte buffer suitable for
// GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload
func (h *GPULightHeader) Marshal() []byte {
	buf := make([]byte, 16)
	putVec3(buf[0:12], h.SkyColor)
	binary.LittleEndian.PutUint32(buf[12:16], h.LightCount)
	return buf
}

// ToGPULight converts a Light interface value into its GPU-aligned representation.
//
// Parameters:
//   - l: the Light to convert
//
// Returns:
//   - GPULight: the GPU-aligned representation
func ToGPULight(l Light) GPULight {
	return GPULight{
		Position:   l.Position(),
		LightType:  uint32(l.Type()),
		Color:      l.Color(),
		Intensity:  l.Intensity(),
		Direction:  l.Direction(),
		LightRange: l.Range(),
		InnerCone:  l.InnerCone(),
		OuterCone:  l.OuterCone(),
	}
}

// EnabledCount returns the number of enabled lights, capped at MaxGPULights.
//
// Parameters:
//   - lights: the lights to count
//
// Returns:
//   - int: the number of lights MarshalLightBuffer will write
func EnabledCount(lights []Light) int {
	n := 0
	for _, l := range lights {
		if l != nil && l.Enabled() {
			n++
			if n == MaxGPULights {
				break
			}
		}
	}
	return n
}

// MarshalLightBuffer marshals a slice of enabled lights into a byte buffer
// suitable for GPU upload. The buffer layout is:
//
//	[GPULightHeader (16 bytes)] [GPULight × count (64 bytes each)]
//
// Only enabled lights are included, up to MaxGPULights. Lights beyond the
// budget are silently dropped.
//
// Parameters:
//   - lights: the full slice of lights to marshal (only enabled lights are included)
//   - sky: the sky color as RGB
//
// Returns:
//   - []byte: the marshaled buffer ready for GPU upload
func MarshalLightBuffer(lights []Light, sky [3]float32) []byte {
	headerSize := (&GPULightHeader{}).Size()
	lightSize := (&GPULight{}).Size()
	count := EnabledCount(lights)

	buf := make([]byte, headerSize+count*lightSize)
	header := GPULightHeader{SkyColor: sky, LightCount: uint32(count)}
	copy(buf[:headerSize], header.Marshal())

	offset := headerSize
	written := 0
	for _, l := range lights {
		if written == count {
			break
		}
		if l == nil || !l.Enabled() {
			continue
		}
		gpu := ToGPULight(l)
		gpu.put(buf[offset : offset+lightSize])
		offset += lightSize
		written++
	}

	return buf
}

// UnmarshalLightBuffer decodes a buffer produced by MarshalLightBuffer.
//
// Parameters:
//   - buf: the marshaled light buffer
//
// Returns:
//   - GPULightHeader: the decoded header
//   - []GPULight: the decoded lights
//   - error: ErrShortLightBuffer (wrapped) when the buffer is truncated
func UnmarshalLightBuffer(buf []byte) (GPULightHeader, []GPULight, error) {
	headerSize := (&GPULightHeader{}).Size()
	lightSize := (&GPULight{}).Size()
	if len(buf) < headerSize {
		return GPULightHeader{}, nil, fmt.Errorf("%w: %d bytes", ErrShortLightBuffer, len(buf))
	}

	header := GPULightHeader{
		SkyColor:   getVec3(buf[0:12]),
		LightCount: binary.LittleEndian.Uint32(buf[12:16]),
	}
	need := headerSize + int(header.LightCount)*lightSize
	if len(buf) < need {
		return GPULightHeader{}, nil, fmt.Errorf("%w: %d lights need %d bytes, have %d", ErrShortLightBuffer, header.LightCount, need, len(buf))
	}

	lights := make([]GPULight, header.LightCount)
	for i := range lights {
		off := headerSize + i*lightSize
		lights[i].get(buf[off : off+lightSize])
	}
	return header, lights, nil
}

func putVec3(buf []byte, v [3]float32) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(v[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(v[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(v[2]))
}

func getVec3(buf []byte) [3]float32 {
	return [3]float32{
		math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[8:12])),
	}
}
