package pipeline

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-prt/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// pipeline is the implementation of the Pipeline interface.
// It holds the compute kernel and the GPU objects created for it by the renderer backend.
type pipeline struct {
	mu sync.Mutex

	// pipelineKey is the unique identifier for this pipeline, used for caching and labels
	pipelineKey string

	// computeShader is required before the pipeline is registered with a backend
	computeShader shader.Shader

	computePipeline  *wgpu.ComputePipeline
	bindGroupLayouts []*wgpu.BindGroupLayout
}

// Pipeline defines the interface for a GPU compute pipeline. It pairs a parsed compute kernel with
// the wgpu.ComputePipeline and bind group layouts created from it once the pipeline is registered.
type Pipeline interface {
	// PipelineKey returns the unique key associated with this pipeline, used for caching and lookups.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// Shader returns the compute kernel of this pipeline, or nil if none was set.
	//
	// Returns:
	//   - shader.Shader: the compute kernel
	Shader() shader.Shader

	// Pipeline returns the created compute pipeline, or nil before registration.
	//
	// Returns:
	//   - *wgpu.ComputePipeline: the underlying compute pipeline
	Pipeline() *wgpu.ComputePipeline

	// BindGroupLayout returns the created layout of a bind group, or nil before registration or
	// when the kernel declares no bindings in that group.
	//
	// Parameters:
	//   - group: the bind group index
	//
	// Returns:
	//   - *wgpu.BindGroupLayout: the layout for the group
	BindGroupLayout(group int) *wgpu.BindGroupLayout

	// Registered reports whether the GPU objects have been created.
	//
	// Returns:
	//   - bool: true once SetComputePipeline has been called with a non-nil pipeline
	Registered() bool

	// SetComputePipeline stores the GPU objects created by the renderer backend.
	//
	// Parameters:
	//   - p: the created compute pipeline
	//   - layouts: the created bind group layouts indexed by group
	SetComputePipeline(p *wgpu.ComputePipeline, layouts []*wgpu.BindGroupLayout)

	// Release releases the GPU objects. The pipeline can be registered again afterwards.
	Release()
}

var _ Pipeline = &pipeline{}

// NewPipeline creates a new compute Pipeline with the specified key and options.
//
// Parameters:
//   - pipelineKey: the unique key used for caching and labelling the GPU objects
//   - opts: variadic list of PipelineBuilderOption functions
//
// Returns:
//   - Pipeline: the new pipeline, not yet registered with a backend
func NewPipeline(pipelineKey string, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineKey: pipelineKey,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Shader() shader.Shader {
	return p.computeShader
}

func (p *pipeline) Pipeline() *wgpu.ComputePipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.computePipeline
}

func (p *pipeline) BindGroupLayout(group int) *wgpu.BindGroupLayout {
	p.mu.Lock()
	defer p.mu.Unlock()
	if group < 0 || group >= len(p.bindGroupLayouts) {
		return nil
	}
	return p.bindGroupLayouts[group]
}

func (p *pipeline) Registered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.computePipeline != nil
}

func (p *pipeline) SetComputePipeline(cp *wgpu.ComputePipeline, layouts []*wgpu.BindGroupLayout) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.computePipeline = cp
	p.bindGroupLayouts = layouts
}

func (p *pipeline) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range p.bindGroupLayouts {
		if l != nil {
			l.Release()
		}
	}
	p.bindGroupLayouts = nil
	if p.computePipeline != nil {
		p.computePipeline.Release()
		p.computePipeline = nil
	}
}
