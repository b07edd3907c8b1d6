package relight

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-prt/engine/light"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	// ErrNoFrame is returned by a backend write or dispatch issued outside of BeginFrame/EndFrame.
	ErrNoFrame = errors.New("no relight frame open")

	// ErrFrameOpen is returned by BeginFrame or EnsureBuffer while a frame is open.
	ErrFrameOpen = errors.New("relight frame already open")

	// ErrBufferBounds is returned by WriteBuffer when the data does not fit the buffer.
	ErrBufferBounds = errors.New("write outside buffer bounds")
)

// L1 spherical harmonics basis constants.
const (
	shBand0 = float32(0.282095)
	shBand1 = float32(0.488603)
)

type stagedWrite struct {
	id     BufferID
	offset int
	data   []byte
}

type stagedPass struct {
	probe bool
	n     uint32
}

// CPUBackend executes both relight passes on the CPU with the exact math of the WGSL kernels. It backs headless
// tools and tests; results are read back with BrickRadiance and ProbeSH.
type CPUBackend struct {
	mu sync.Mutex

	buffers [BufferCount][]byte
	open    bool
	writes  []stagedWrite
	passes  []stagedPass
	frames  int
}

var _ ComputeBackend = &CPUBackend{}

// NewCPUBackend creates a CPUBackend with no buffers.
//
// Returns:
//   - *CPUBackend: the new backend
func NewCPUBackend() *CPUBackend {
	return &CPUBackend{}
}

func (c *CPUBackend) EnsureBuffer(id BufferID, size int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id < 0 || id >= BufferCount {
		return fmt.Errorf("unknown buffer %d", int(id))
	}
	if c.open {
		return ErrFrameOpen
	}
	if size <= 0 {
		return fmt.Errorf("invalid %s buffer size %d", id, size)
	}
	if len(c.buffers[id]) != size {
		c.buffers[id] = make([]byte, size)
	}
	return nil
}

func (c *CPUBackend) WriteBuffer(id BufferID, offset int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return ErrNoFrame
	}
	if id < 0 || id >= BufferCount {
		return fmt.Errorf("unknown buffer %d", int(id))
	}
	if offset < 0 || offset+len(data) > len(c.buffers[id]) {
		return fmt.Errorf("%w: %s [%d, %d) of %d bytes", ErrBufferBounds, id, offset, offset+len(data), len(c.buffers[id]))
	}
	c.writes = append(c.writes, stagedWrite{id: id, offset: offset, data: append([]byte(nil), data...)})
	return nil
}

func (c *CPUBackend) BeginFrame() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return ErrFrameOpen
	}
	c.open = true
	return nil
}

func (c *CPUBackend) DispatchBrickPass(n uint32) error {
	return c.recordPass(stagedPass{n: n})
}

func (c *CPUBackend) DispatchProbePass(n uint32) error {
	return c.recordPass(stagedPass{probe: true, n: n})
}

func (c *CPUBackend) recordPass(p stagedPass) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNoFrame
	}
	c.passes = append(c.passes, p)
	return nil
}

func (c *CPUBackend) EndFrame() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return ErrNoFrame
	}
	defer c.reset()

	// the frame runs on copies of every buffer it modifies and is swapped in only when all passes succeed
	frame := c.buffers
	dirty := [BufferCount]bool{BufferBrickRadiance: true, BufferProbeSH: true}
	for _, w := range c.writes {
		dirty[w.id] = true
	}
	for id := range frame {
		if dirty[id] && frame[id] != nil {
			frame[id] = append([]byte(nil), frame[id]...)
		}
	}

	for _, w := range c.writes {
		copy(frame[w.id][w.offset:], w.data)
	}
	for _, p := range c.passes {
		var err error
		if p.probe {
			err = runProbePass(&frame, p.n)
		} else {
			err = runBrickPass(&frame, p.n)
		}
		if err != nil {
			return err
		}
	}
	c.buffers = frame
	c.frames++
	return nil
}

func (c *CPUBackend) AbortFrame() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *CPUBackend) reset() {
	c.open = false
	c.writes = nil
	c.passes = nil
}

func (c *CPUBackend) ReleaseBuffers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffers = [BufferCount][]byte{}
	c.reset()
}

// Frames returns the number of frames submitted so far.
func (c *CPUBackend) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Allocated reports whether a buffer currently exists.
func (c *CPUBackend) Allocated(id BufferID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return id >= 0 && id < BufferCount && c.buffers[id] != nil
}

// BrickRadiance reads back the brick pass output of brick b.
//
// Parameters:
//   - b: brick index
//
// Returns:
//   - GPUBrickRadiance: the brick's radiance, zero when out of range
func (c *CPUBackend) BrickRadiance(b int) GPUBrickRadiance {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out GPUBrickRadiance
	if buf := record(c.buffers[BufferBrickRadiance], b, BrickRadianceRecordSize); buf != nil {
		out.get(buf)
	}
	return out
}

// ProbeSH reads back the probe pass output of probe p.
//
// Parameters:
//   - p: probe index
//
// Returns:
//   - GPUProbeSH: the probe's coefficients, zero when out of range
func (c *CPUBackend) ProbeSH(p int) GPUProbeSH {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out GPUProbeSH
	if buf := record(c.buffers[BufferProbeSH], p, ProbeSHRecordSize); buf != nil {
		out.get(buf)
	}
	return out
}

// record returns the i-th fixed-size record of buf, or nil when it does not fit.
func record(buf []byte, i, size int) []byte {
	if i < 0 || (i+1)*size > len(buf) {
		return nil
	}
	return buf[i*size : (i+1)*size]
}

func runBrickPass(bufs *[BufferCount][]byte, n uint32) error {
	header, lights, err := light.UnmarshalLightBuffer(bufs[BufferLights])
	if err != nil {
		return fmt.Errorf("brick pass: %w", err)
	}
	sky := mgl32.Vec3(header.SkyColor)
	selected := bufs[BufferSelectedBricks]

	for i := 0; i < int(n); i++ {
		sel := record(selected, i, IndexRecordSize)
		if sel == nil {
			return fmt.Errorf("brick pass: selection %d outside the selected-brick buffer", i)
		}
		b := int(binary.LittleEndian.Uint32(sel))
		rng := record(bufs[BufferBrickRanges], b, BrickRangeRecordSize)
		dst := record(bufs[BufferBrickRadiance], b, BrickRadianceRecordSize)
		if rng == nil || dst == nil {
			continue
		}
		start, count := getI32Pair(rng)

		var out GPUBrickRadiance
		var radiance, center mgl32.Vec3
		var coverage float32
		seen := 0
		for k := start; k < start+count; k++ {
			buf := record(bufs[BufferSurfels], int(k), SurfelRecordSize)
			if buf == nil {
				break
			}
			var s GPUSurfel
			s.get(buf)
			radiance = radiance.Add(surfelRadiance(&s, lights, sky))
			center = center.Add(s.Position)
			coverage += 1 - s.SkyMask
			seen++
		}
		if seen > 0 {
			inv := 1 / float32(seen)
			out.Radiance = radiance.Mul(inv)
			out.Center = center.Mul(inv)
			out.Coverage = coverage * inv
		}
		out.put(dst)
	}
	return nil
}

// surfelRadiance is the outgoing radiance of one surfel: direct light on geometry, sky color on sky samples.
func surfelRadiance(s *GPUSurfel, lights []light.GPULight, sky mgl32.Vec3) mgl32.Vec3 {
	var irradiance mgl32.Vec3
	p := mgl32.Vec3(s.Position)
	n := mgl32.Vec3(s.Normal)
	for i := range lights {
		irradiance = irradiance.Add(lights[i].Irradiance(p, n))
	}
	albedo := mgl32.Vec3(s.Albedo)
	direct := mgl32.Vec3{albedo[0] * irradiance[0], albedo[1] * irradiance[1], albedo[2] * irradiance[2]}
	return direct.Mul(1 - s.SkyMask).Add(sky.Mul(s.SkyMask))
}

func runProbePass(bufs *[BufferCount][]byte, n uint32) error {
	selected := bufs[BufferSelectedProbes]

	for i := 0; i < int(n); i++ {
		sel := record(selected, i, IndexRecordSize)
		if sel == nil {
			return fmt.Errorf("probe pass: selection %d outside the selected-probe buffer", i)
		}
		p := int(binary.LittleEndian.Uint32(sel))
		rng := record(bufs[BufferFactorRanges], p, FactorRangeRecordSize)
		pos := record(bufs[BufferProbePositions], p, ProbePositionRecordSize)
		val := record(bufs[BufferValidity], p, ValidityRecordSize)
		dst := record(bufs[BufferProbeSH], p, ProbeSHRecordSize)
		if rng == nil || pos == nil || val == nil || dst == nil {
			continue
		}
		start, end := getI32Pair(rng)
		probePos := mgl32.Vec3(getVec3(pos))
		scale := getF32(val) * getF32(pos[12:16])

		var sh GPUProbeSH
		for f := start; f <= end; f++ {
			fb := record(bufs[BufferFactors], int(f), FactorRecordSize)
			if fb == nil {
				break
			}
			brick := int(int32(binary.LittleEndian.Uint32(fb[0:4])))
			weight := getF32(fb[4:8])
			bb := record(bufs[BufferBrickRadiance], brick, BrickRadianceRecordSize)
			if bb == nil {
				continue
			}
			var br GPUBrickRadiance
			br.get(bb)

			dir := mgl32.Vec3(br.Center).Sub(probePos)
			if l := dir.Len(); l > 0 {
				dir = dir.Mul(1 / l)
			}
			basis := [4]float32{shBand0, shBand1 * dir[1], shBand1 * dir[2], shBand1 * dir[0]}
			for k := 0; k < 4; k++ {
				sh.R[k] += weight * br.Radiance[0] * basis[k]
				sh.G[k] += weight * br.Radiance[1] * basis[k]
				sh.B[k] += weight * br.Radiance[2] * basis[k]
			}
		}
		for k := 0; k < 4; k++ {
			sh.R[k] *= scale
			sh.G[k] *= scale
			sh.B[k] *= scale
		}
		sh.put(dst)
	}
	return nil
}
