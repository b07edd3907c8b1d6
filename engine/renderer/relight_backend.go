package renderer

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-prt/common"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/relight"
	"github.com/Carmen-Shannon/oxy-prt/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-prt/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-prt/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// brickRelightSource is the brick pass kernel.
//
//go:embed assets/brick_relight.wgsl
var brickRelightSource string

// probeRelightSource is the probe pass kernel.
//
//go:embed assets/probe_relight.wgsl
var probeRelightSource string

const (
	brickPipelineKey = "PRT Brick Relight"
	probePipelineKey = "PRT Probe Relight"

	// relightGroup is the only bind group the relight kernels declare.
	relightGroup = 0
)

// relightVarNames maps kernel variable names to the buffers bound to them. "params" resolves
// per pass.
var relightVarNames = map[string]relight.BufferID{
	"surfels":         relight.BufferSurfels,
	"brick_ranges":    relight.BufferBrickRanges,
	"factors":         relight.BufferFactors,
	"factor_ranges":   relight.BufferFactorRanges,
	"validity":        relight.BufferValidity,
	"probe_positions": relight.BufferProbePositions,
	"light_buffer":    relight.BufferLights,
	"selected_bricks": relight.BufferSelectedBricks,
	"selected_probes": relight.BufferSelectedProbes,
	"brick_radiance":  relight.BufferBrickRadiance,
	"probe_sh":        relight.BufferProbeSH,
}

// relightPass is one compute pass of the relight frame: its pipeline, the provider holding its
// bind group, and where each buffer is bound.
type relightPass struct {
	pipeline pipeline.Pipeline
	group    bind_group_provider.BindGroupProvider
	bindings map[relight.BufferID]int
}

// relightBackend runs the relight passes on a WebGPU device.
type relightBackend struct {
	mu      sync.Mutex
	backend RendererBackend
	logger  common.Logger

	brick relightPass
	probe relightPass

	buffers [relight.BufferCount]*wgpu.Buffer
	sizes   [relight.BufferCount]int
	open    bool
}

var _ relight.ComputeBackend = &relightBackend{}

// newRelightPipelines parses both relight kernels and wraps them in unregistered pipelines.
func newRelightPipelines() (brick, probe pipeline.Pipeline, err error) {
	brickShader, err := shader.NewComputeShader(brickPipelineKey, brickRelightSource, nil)
	if err != nil {
		return nil, nil, err
	}
	probeShader, err := shader.NewComputeShader(probePipelineKey, probeRelightSource, nil)
	if err != nil {
		return nil, nil, err
	}
	return pipeline.NewPipeline(brickPipelineKey, pipeline.WithComputeShader(brickShader)),
		pipeline.NewPipeline(probePipelineKey, pipeline.WithComputeShader(probeShader)),
		nil
}

// bindingTable resolves every binding a kernel declares in the relight group to its buffer.
//
// Parameters:
//   - s: the kernel
//   - params: the buffer bound to the kernel's "params" uniform
//
// Returns:
//   - map[relight.BufferID]int: binding index per buffer
//   - error: an error if the kernel binds a variable no buffer maps to
func bindingTable(s shader.Shader, params relight.BufferID) (map[relight.BufferID]int, error) {
	table := make(map[relight.BufferID]int)
	for binding, name := range s.BindGroupVarNames()[relightGroup] {
		id, ok := relightVarNames[name]
		if name == "params" {
			id, ok = params, true
		}
		if !ok {
			return nil, fmt.Errorf("%s: binding %d (%s) maps to no relight buffer", s.Key(), binding, name)
		}
		table[id] = binding
	}
	return table, nil
}

func newRelightBackend(backend RendererBackend, brick, probe pipeline.Pipeline, logger common.Logger) (*relightBackend, error) {
	brickBindings, err := bindingTable(brick.Shader(), relight.BufferBrickParams)
	if err != nil {
		return nil, err
	}
	probeBindings, err := bindingTable(probe.Shader(), relight.BufferProbeParams)
	if err != nil {
		return nil, err
	}
	return &relightBackend{
		backend: backend,
		logger:  common.Coalesce(logger, common.DiscardLogger()),
		brick: relightPass{
			pipeline: brick,
			group:    bind_group_provider.NewBindGroupProvider(brickPipelineKey),
			bindings: brickBindings,
		},
		probe: relightPass{
			pipeline: probe,
			group:    bind_group_provider.NewBindGroupProvider(probePipelineKey),
			bindings: probeBindings,
		},
	}, nil
}

func bufferUsage(id relight.BufferID) wgpu.BufferUsage {
	if id == relight.BufferBrickParams || id == relight.BufferProbeParams {
		return wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
	}
	return wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
}

func (r *relightBackend) EnsureBuffer(id relight.BufferID, size int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id < 0 || id >= relight.BufferCount {
		return fmt.Errorf("unknown buffer %d", int(id))
	}
	if r.open {
		return relight.ErrFrameOpen
	}
	if size <= 0 {
		return fmt.Errorf("invalid %s buffer size %d", id, size)
	}
	if r.buffers[id] != nil && r.sizes[id] == size {
		return nil
	}

	buf, err := r.backend.CreateBuffer("PRT "+id.String(), uint64(size), bufferUsage(id))
	if err != nil {
		return fmt.Errorf("allocate %s buffer: %w", id, err)
	}
	r.bind(id, buf)
	r.backend.DestroyBuffer(r.buffers[id])
	r.buffers[id] = buf
	r.sizes[id] = size
	r.logger.Printf("[Renderer] %s buffer: %d bytes\n", id, size)
	return nil
}

// bind hands buf to every pass that binds id.
func (r *relightBackend) bind(id relight.BufferID, buf *wgpu.Buffer) {
	for _, pass := range []*relightPass{&r.brick, &r.probe} {
		if binding, ok := pass.bindings[id]; ok {
			pass.group.SetBuffer(binding, buf)
		}
	}
}

func (r *relightBackend) WriteBuffer(id relight.BufferID, offset int, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.open {
		return relight.ErrNoFrame
	}
	if id < 0 || id >= relight.BufferCount {
		return fmt.Errorf("unknown buffer %d", int(id))
	}
	if offset < 0 || offset+len(data) > r.sizes[id] || r.buffers[id] == nil {
		return fmt.Errorf("%w: %s [%d, %d) of %d bytes", relight.ErrBufferBounds, id, offset, offset+len(data), r.sizes[id])
	}
	if len(data) == 0 {
		return nil
	}
	return r.backend.QueueWrite(bind_group_provider.BufferWrite{
		Buffer: r.buffers[id],
		Offset: uint64(offset),
		Data:   data,
	})
}

func (r *relightBackend) BeginFrame() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.open {
		return relight.ErrFrameOpen
	}
	if err := r.backend.BeginComputeFrame(); err != nil {
		return err
	}
	r.open = true
	return nil
}

func (r *relightBackend) DispatchBrickPass(n uint32) error {
	return r.dispatch(&r.brick, n)
}

func (r *relightBackend) DispatchProbePass(n uint32) error {
	return r.dispatch(&r.probe, n)
}

func (r *relightBackend) dispatch(pass *relightPass, n uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.open {
		return relight.ErrNoFrame
	}
	if n == 0 {
		return nil
	}
	if pass.group.Stale() {
		if err := r.backend.InitBindGroup(pass.pipeline, relightGroup, pass.group); err != nil {
			return err
		}
	}
	workgroups := pass.pipeline.Shader().Workgroups(n)
	return r.backend.DispatchCompute(pass.pipeline, pass.group, [3]uint32{workgroups, 1, 1})
}

func (r *relightBackend) EndFrame() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.open {
		return relight.ErrNoFrame
	}
	r.open = false
	return r.backend.EndComputeFrame()
}

func (r *relightBackend) AbortFrame() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abort()
}

func (r *relightBackend) abort() {
	if r.open {
		r.backend.AbortComputeFrame()
		r.open = false
	}
}

func (r *relightBackend) ReleaseBuffers() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.abort()
	r.brick.group.Release()
	r.probe.group.Release()
	for id := relight.BufferID(0); id < relight.BufferCount; id++ {
		if r.buffers[id] == nil {
			continue
		}
		r.bind(id, nil)
		r.backend.DestroyBuffer(r.buffers[id])
		r.buffers[id] = nil
		r.sizes[id] = 0
	}
}
