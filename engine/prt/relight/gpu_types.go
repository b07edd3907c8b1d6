package relight

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-prt/engine/prt/cell"
	"github.com/go-gl/mathgl/mgl32"
)

// GPUSurfelSource is the canonical WGSL definition of the Surfel struct.
// Matches GPUSurfel layout exactly (48 bytes, std430 aligned).
//
//go:embed assets/surfel.wgsl
var GPUSurfelSource string

// GPUSurfel is the GPU-aligned representation of one merged surfel.
// Size: 48 bytes (std430 / WGSL aligned).
type GPUSurfel struct {
	Position [3]float32 // offset  0
	SkyMask  float32    // offset 12: 1 = sky sample, 0 = geometry
	Normal   [3]float32 // offset 16
	_pad0    float32    // offset 28
	Albedo   [3]float32 // offset 32
	_pad1    float32    // offset 44
}

// Size returns the size of the GPUSurfel struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (48)
func (g *GPUSurfel) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUSurfel struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload
func (g *GPUSurfel) Marshal() []byte {
	buf := make([]byte, 48)
	g.put(buf)
	return buf
}

func (g *GPUSurfel) put(buf []byte) {
	putVec3(buf[0:12], g.Position)
	putF32(buf[12:16], g.SkyMask)
	putVec3(buf[16:28], g.Normal)
	putF32(buf[28:32], 0)
	putVec3(buf[32:44], g.Albedo)
	putF32(buf[44:48], 0)
}

func (g *GPUSurfel) get(buf []byte) {
	g.Position = getVec3(buf[0:12])
	g.SkyMask = getF32(buf[12:16])
	g.Normal = getVec3(buf[16:28])
	g.Albedo = getVec3(buf[32:44])
}

// GPUBrickRangeSource is the canonical WGSL definition of the BrickRange struct.
// Matches GPUBrickRange layout exactly (8 bytes).
//
//go:embed assets/brick_range.wgsl
var GPUBrickRangeSource string

// GPUBrickRange locates one brick's surfels in the surfel buffer.
// Size: 8 bytes.
type GPUBrickRange struct {
	Start int32 // offset 0
	Count int32 // offset 4
}

// Size returns the size of the GPUBrickRange struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (8)
func (g *GPUBrickRange) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUBrickRange struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 8-byte buffer ready for GPU upload
func (g *GPUBrickRange) Marshal() []byte {
	buf := make([]byte, 8)
	putI32Pair(buf, g.Start, g.Count)
	return buf
}

// GPUFactorSource is the canonical WGSL definition of the Factor struct.
// Matches GPUFactor layout exactly (8 bytes).
//
//go:embed assets/factor.wgsl
var GPUFactorSource string

// GPUFactor is one probe-to-brick transfer weight.
// Size: 8 bytes.
type GPUFactor struct {
	Brick  int32   // offset 0
	Weight float32 // offset 4
}

// Size returns the size of the GPUFactor struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (8)
func (g *GPUFactor) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUFactor struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 8-byte buffer ready for GPU upload
func (g *GPUFactor) Marshal() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(g.Brick))
	putF32(buf[4:8], g.Weight)
	return buf
}

// GPUFactorRangeSource is the canonical WGSL definition of the FactorRange struct.
// Matches GPUFactorRange layout exactly (8 bytes).
//
//go:embed assets/factor_range.wgsl
var GPUFactorRangeSource string

// GPUFactorRange is one probe's inclusive factor range; empty when End < Start.
// Size: 8 bytes.
type GPUFactorRange struct {
	Start int32 // offset 0
	End   int32 // offset 4
}

// Size returns the size of the GPUFactorRange struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (8)
func (g *GPUFactorRange) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUFactorRange struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 8-byte buffer ready for GPU upload
func (g *GPUFactorRange) Marshal() []byte {
	buf := make([]byte, 8)
	putI32Pair(buf, g.Start, g.End)
	return buf
}

// GPUProbePositionSource is the canonical WGSL definition of the ProbePosition struct.
// Matches GPUProbePosition layout exactly (16 bytes, std430 aligned).
//
//go:embed assets/probe_position.wgsl
var GPUProbePositionSource string

// GPUProbePosition is a probe capture position with its adjustment intensity scale.
// Size: 16 bytes.
type GPUProbePosition struct {
	Position  [3]float32 // offset  0: lattice position plus virtual offset
	Intensity float32    // offset 12: product of covering adjustment intensity scales
}

// Size returns the size of the GPUProbePosition struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (16)
func (g *GPUProbePosition) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUProbePosition struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload
func (g *GPUProbePosition) Marshal() []byte {
	buf := make([]byte, 16)
	putVec3(buf[0:12], g.Position)
	putF32(buf[12:16], g.Intensity)
	return buf
}

// GPUBrickRadianceSource is the canonical WGSL definition of the BrickRadiance struct.
// Matches GPUBrickRadiance layout exactly (32 bytes, std430 aligned).
//
//go:embed assets/brick_radiance.wgsl
var GPUBrickRadianceSource string

// GPUBrickRadiance is the brick pass output for one brick.
// Size: 32 bytes.
type GPUBrickRadiance struct {
	Radiance [3]float32 // offset  0: mean outgoing radiance of the brick's surfels
	Coverage float32    // offset 12: fraction of the brick's surfels that are geometry
	Center   [3]float32 // offset 16: mean surfel position
	_pad0    float32    // offset 28
}

// Size returns the size of the GPUBrickRadiance struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (32)
func (g *GPUBrickRadiance) Size() int {
	return int(unsafe.Sizeof(*g))
}

func (g *GPUBrickRadiance) put(buf []byte) {
	putVec3(buf[0:12], g.Radiance)
	putF32(buf[12:16], g.Coverage)
	putVec3(buf[16:28], g.Center)
	putF32(buf[28:32], 0)
}

func (g *GPUBrickRadiance) get(buf []byte) {
	g.Radiance = getVec3(buf[0:12])
	g.Coverage = getF32(buf[12:16])
	g.Center = getVec3(buf[16:28])
}

// GPUProbeSHSource is the canonical WGSL definition of the ProbeSH struct.
// Matches GPUProbeSH layout exactly (48 bytes, std430 aligned).
//
//go:embed assets/probe_sh.wgsl
var GPUProbeSHSource string

// GPUProbeSH is the probe pass output: L1 spherical harmonics, one vec4 of coefficients per color channel.
// Size: 48 bytes.
type GPUProbeSH struct {
	R [4]float32 // offset  0
	G [4]float32 // offset 16
	B [4]float32 // offset 32
}

// Size returns the size of the GPUProbeSH struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (48)
func (g *GPUProbeSH) Size() int {
	return int(unsafe.Sizeof(*g))
}

// DC returns the band-0 coefficient of each channel.
//
// Returns:
//   - mgl32.Vec3: the RGB DC term
func (g *GPUProbeSH) DC() mgl32.Vec3 {
	return mgl32.Vec3{g.R[0], g.G[0], g.B[0]}
}

func (g *GPUProbeSH) put(buf []byte) {
	for c, ch := range [3]*[4]float32{&g.R, &g.G, &g.B} {
		for k := 0; k < 4; k++ {
			putF32(buf[c*16+k*4:], ch[k])
		}
	}
}

func (g *GPUProbeSH) get(buf []byte) {
	for c, ch := range [3]*[4]float32{&g.R, &g.G, &g.B} {
		for k := 0; k < 4; k++ {
			ch[k] = getF32(buf[c*16+k*4:])
		}
	}
}

// GPUBrickParamsSource is the canonical WGSL definition of the BrickParams struct.
// Matches GPUBrickParams layout exactly (16 bytes).
//
//go:embed assets/brick_params.wgsl
var GPUBrickParamsSource string

// GPUBrickParams is the uniform block of the brick pass.
// Size: 16 bytes.
type GPUBrickParams struct {
	SelectedCount uint32 // offset  0: bricks in the selected-brick list
	BrickCount    uint32 // offset  4: bricks in the volume
	SurfelCount   uint32 // offset  8: surfels in the volume
	FrameIndex    uint32 // offset 12
}

// Size returns the size of the GPUBrickParams struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (16)
func (g *GPUBrickParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUBrickParams struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload
func (g *GPUBrickParams) Marshal() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], g.SelectedCount)
	binary.LittleEndian.PutUint32(buf[4:8], g.BrickCount)
	binary.LittleEndian.PutUint32(buf[8:12], g.SurfelCount)
	binary.LittleEndian.PutUint32(buf[12:16], g.FrameIndex)
	return buf
}

// GPUProbeParamsSource is the canonical WGSL definition of the ProbeParams struct.
// Matches GPUProbeParams layout exactly (16 bytes).
//
//go:embed assets/probe_params.wgsl
var GPUProbeParamsSource string

// GPUProbeParams is the uniform block of the probe pass.
// Size: 16 bytes.
type GPUProbeParams struct {
	SelectedCount uint32 // offset  0: probes in the selected-probe list
	ProbeCount    uint32 // offset  4: probes in the volume
	FrameIndex    uint32 // offset  8
	_pad0         uint32 // offset 12
}

// Size returns the size of the GPUProbeParams struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (16)
func (g *GPUProbeParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUProbeParams struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload
func (g *GPUProbeParams) Marshal() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], g.SelectedCount)
	binary.LittleEndian.PutUint32(buf[4:8], g.ProbeCount)
	binary.LittleEndian.PutUint32(buf[8:12], g.FrameIndex)
	binary.LittleEndian.PutUint32(buf[12:16], 0)
	return buf
}

// Record sizes in bytes, used for buffer sizing.
const (
	SurfelRecordSize        = 48
	BrickRangeRecordSize    = 8
	FactorRecordSize        = 8
	FactorRangeRecordSize   = 8
	ValidityRecordSize      = 4
	ProbePositionRecordSize = 16
	IndexRecordSize         = 4
	BrickRadianceRecordSize = 32
	ProbeSHRecordSize       = 48
	BrickParamsRecordSize   = 16
	ProbeParamsRecordSize   = 16
)

// MarshalSurfels packs the merged surfel array.
//
// Parameters:
//   - surfels: the cell's surfels
//
// Returns:
//   - []byte: len(surfels) × 48 bytes
func MarshalSurfels(surfels []cell.Surfel) []byte {
	buf := make([]byte, len(surfels)*SurfelRecordSize)
	for i, s := range surfels {
		g := GPUSurfel{Position: s.Position, SkyMask: s.SkyMask, Normal: s.Normal, Albedo: s.Albedo}
		g.put(buf[i*SurfelRecordSize:])
	}
	return buf
}

// MarshalBrickRanges packs the per-brick surfel ranges.
//
// Parameters:
//   - bricks: the cell's brick ranges
//
// Returns:
//   - []byte: len(bricks) × 8 bytes
func MarshalBrickRanges(bricks []cell.SurfelRange) []byte {
	buf := make([]byte, len(bricks)*BrickRangeRecordSize)
	for i, b := range bricks {
		putI32Pair(buf[i*BrickRangeRecordSize:], b.Start, b.Count)
	}
	return buf
}

// MarshalFactors packs the flattened factor array.
//
// Parameters:
//   - factors: the cell's factors
//
// Returns:
//   - []byte: len(factors) × 8 bytes
func MarshalFactors(factors []cell.BrickFactor) []byte {
	buf := make([]byte, len(factors)*FactorRecordSize)
	for i, f := range factors {
		off := i * FactorRecordSize
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(f.BrickIndex))
		putF32(buf[off+4:off+8], f.Weight)
	}
	return buf
}

// MarshalFactorRanges packs the per-probe factor ranges.
//
// Parameters:
//   - probes: the cell's factor ranges
//
// Returns:
//   - []byte: len(probes) × 8 bytes
func MarshalFactorRanges(probes []cell.FactorRange) []byte {
	buf := make([]byte, len(probes)*FactorRangeRecordSize)
	for i, r := range probes {
		putI32Pair(buf[i*FactorRangeRecordSize:], r.Start, r.End)
	}
	return buf
}

// MarshalFloats packs a float32 array, used for the validity mask.
//
// Parameters:
//   - values: the values
//
// Returns:
//   - []byte: len(values) × 4 bytes
func MarshalFloats(values []float32) []byte {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		putF32(buf[i*4:], v)
	}
	return buf
}

// MarshalProbePositions packs probe positions with their intensity scales.
//
// Parameters:
//   - positions: capture positions
//   - intensity: per-probe intensity scale, same length as positions
//
// Returns:
//   - []byte: len(positions) × 16 bytes
func MarshalProbePositions(positions []mgl32.Vec3, intensity []float32) []byte {
	buf := make([]byte, len(positions)*ProbePositionRecordSize)
	for i, p := range positions {
		off := i * ProbePositionRecordSize
		putVec3(buf[off:off+12], p)
		putF32(buf[off+12:off+16], intensity[i])
	}
	return buf
}

// MarshalIndices packs an index list.
//
// Parameters:
//   - indices: brick or probe indices
//
// Returns:
//   - []byte: len(indices) × 4 bytes
func MarshalIndices(indices []int) []byte {
	buf := make([]byte, len(indices)*IndexRecordSize)
	for i, v := range indices {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return buf
}

func putF32(buf []byte, v float32) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(v))
}

func getF32(buf []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4]))
}

func putVec3(buf []byte, v [3]float32) {
	putF32(buf[0:4], v[0])
	putF32(buf[4:8], v[1])
	putF32(buf[8:12], v[2])
}

func getVec3(buf []byte) [3]float32 {
	return [3]float32{getF32(buf[0:4]), getF32(buf[4:8]), getF32(buf[8:12])}
}

func putI32Pair(buf []byte, a, b int32) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(a))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(b))
}

func getI32Pair(buf []byte) (int32, int32) {
	return int32(binary.LittleEndian.Uint32(buf[0:4])), int32(binary.LittleEndian.Uint32(buf[4:8]))
}
