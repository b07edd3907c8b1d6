// Package renderer owns the WebGPU device and runs the relight kernels on it. A Renderer is either
// headless, for bake tools and servers, or bound to a window surface it can clear and present.
package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-prt/common"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/relight"
	"github.com/Carmen-Shannon/oxy-prt/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-prt/engine/window"
	"github.com/cogentcore/webgpu/wgpu"
)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu sync.Mutex

	pipelineCache map[string]pipeline.Pipeline
	backend       RendererBackend
	logger        common.Logger

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	window               window.Window
	pendingPresentMode   *PresentMode
}

// Renderer defines the interface for the GPU side of the relight system.
//
// The Renderer owns the WebGPU instance, adapter, device, and queue, caches compute pipelines by key,
// and builds relight.ComputeBackend values that run the brick and probe passes on the device.
type Renderer interface {
	// Pipeline retrieves the cached Pipeline associated with the given key.
	//
	// Parameters:
	//   - key: the unique identifier for the Pipeline to retrieve
	//
	// Returns:
	//   - pipeline.Pipeline: the Pipeline associated with the key, or nil if not found
	Pipeline(key string) pipeline.Pipeline

	// RegisterPipelines creates the GPU objects of one or more compute pipelines via the backend and
	// caches them by PipelineKey. Keys already registered are skipped.
	//
	// Parameters:
	//   - pipelines: the Pipelines to register
	//
	// Returns:
	//   - error: an error if pipeline creation fails
	RegisterPipelines(pipelines ...pipeline.Pipeline) error

	// NewRelightBackend returns a relight.ComputeBackend running the relight kernels on this
	// renderer's device. Both relight pipelines are registered on first use and shared by every
	// backend; each backend owns its buffers and bind groups.
	//
	// Returns:
	//   - relight.ComputeBackend: the GPU backend
	//   - error: an error if a kernel fails to parse or a pipeline cannot be created
	NewRelightBackend() (relight.ComputeBackend, error)

	// Resize reconfigures the window surface. A headless renderer ignores it.
	//
	// Parameters:
	//   - width: the new surface width in pixels
	//   - height: the new surface height in pixels
	//
	// Returns:
	//   - error: an error if the surface cannot be configured
	Resize(width, height int) error

	// Clear clears the window surface to color and presents it.
	//
	// Parameters:
	//   - color: linear RGB clear color
	//
	// Returns:
	//   - error: an error if the renderer is headless or the frame cannot be presented
	Clear(color [3]float32) error

	// Release releases every cached pipeline and the device.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer. Without WithWindow the renderer is headless.
//
// Parameters:
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: a new Renderer holding a WebGPU device
//   - error: an error if no adapter or device is available
func NewRenderer(options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		pipelineCache: make(map[string]pipeline.Pipeline),
		logger:        common.DefaultLogger(),
	}

	// Apply options first so config flags (e.g. forceFallbackAdapter) are
	// available before the backend requests a GPU adapter.
	for _, opt := range options {
		opt(r)
	}

	var surfaceDescriptor *wgpu.SurfaceDescriptor
	if r.window != nil {
		surfaceDescriptor = r.window.SurfaceDescriptor()
	}
	backend, err := newWGPURendererBackend(surfaceDescriptor, r.forceFallbackAdapter)
	if err != nil {
		return nil, fmt.Errorf("renderer: %w", err)
	}
	r.backend = backend

	if r.window != nil {
		if r.pendingPresentMode != nil {
			r.backend.SetPresentMode(*r.pendingPresentMode)
		}
		if err := r.backend.ConfigureSurface(r.window.Width(), r.window.Height()); err != nil {
			r.backend.Release()
			return nil, fmt.Errorf("renderer: %w", err)
		}
	}
	r.logger.Printf("[Renderer] device ready (headless: %v, fallback adapter: %v)\n", r.window == nil, r.forceFallbackAdapter)
	return r, nil
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(pipelines...)
}

func (r *renderer) registerLocked(pipelines ...pipeline.Pipeline) error {
	if r.backend == nil {
		return errors.New("renderer released")
	}
	for _, p := range pipelines {
		key := p.PipelineKey()
		if _, exists := r.pipelineCache[key]; exists {
			continue
		}
		if err := r.backend.RegisterComputePipeline(p); err != nil {
			return err
		}
		r.pipelineCache[key] = p
	}
	return nil
}

func (r *renderer) NewRelightBackend() (relight.ComputeBackend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	brick, probe := r.pipelineCache[brickPipelineKey], r.pipelineCache[probePipelineKey]
	if brick == nil || probe == nil {
		newBrick, newProbe, err := newRelightPipelines()
		if err != nil {
			return nil, err
		}
		if err := r.registerLocked(newBrick, newProbe); err != nil {
			return nil, err
		}
		brick, probe = r.pipelineCache[brickPipelineKey], r.pipelineCache[probePipelineKey]
	}
	return newRelightBackend(r.backend, brick, probe, r.logger)
}

func (r *renderer) Resize(width, height int) error {
	if r.backend == nil {
		return errors.New("renderer released")
	}
	return r.backend.ConfigureSurface(width, height)
}

func (r *renderer) Clear(color [3]float32) error {
	if r.backend == nil {
		return errors.New("renderer released")
	}
	return r.backend.Clear(wgpu.Color{R: float64(color[0]), G: float64(color[1]), B: float64(color[2]), A: 1})
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, p := range r.pipelineCache {
		p.Release()
		delete(r.pipelineCache, key)
	}
	if r.backend != nil {
		r.backend.Release()
		r.backend = nil
	}
}
