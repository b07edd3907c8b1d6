package renderer

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-prt/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-prt/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// ErrNoComputeFrame is returned by compute calls issued outside BeginComputeFrame/EndComputeFrame.
var ErrNoComputeFrame = errors.New("no compute frame open")

type wgpuRendererBackendImpl struct {
	mu     sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	surfaceFormat *wgpu.TextureFormat
	presentMode   wgpu.PresentMode // defaults to PresentModeFifo (VSync)

	// Compute frame state. Writes queued during the frame are flushed to the queue right
	// before the encoder is submitted, so an aborted frame leaves every buffer untouched.
	computeFrameEncoder *wgpu.CommandEncoder
	pendingWrites       []bind_group_provider.BufferWrite
}

type wgpuRendererBackend interface {
	Device() *wgpu.Device
	Queue() *wgpu.Queue
	Instance() *wgpu.Instance
	Adapter() *wgpu.Adapter
	Surface() *wgpu.Surface

	// ConfigureSurface (re)configures the presentation surface. A headless backend ignores it.
	//
	// Parameters:
	//   - width: the surface width in pixels
	//   - height: the surface height in pixels
	//
	// Returns:
	//   - error: an error if the surface reports no supported format
	ConfigureSurface(width, height int) error

	// SetPresentMode sets the present mode applied by the next ConfigureSurface call.
	//
	// Parameters:
	//   - mode: the PresentMode to use
	SetPresentMode(mode PresentMode)

	// CreateBuffer allocates a GPU buffer.
	//
	// Parameters:
	//   - label: the debug label of the buffer
	//   - size: the size in bytes, rounded up to a multiple of 4
	//   - usage: the buffer usage flags
	//
	// Returns:
	//   - *wgpu.Buffer: the new buffer, owned by the caller
	//   - error: an error if the allocation fails
	CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error)

	// DestroyBuffer releases a buffer created with CreateBuffer. Nil is ignored.
	//
	// Parameters:
	//   - buf: the buffer to release
	DestroyBuffer(buf *wgpu.Buffer)

	// RegisterComputePipeline creates the shader module, bind group layouts, pipeline layout, and
	// compute pipeline for p and stores them on p.
	//
	// Parameters:
	//   - p: the pipeline holding the compute kernel
	//
	// Returns:
	//   - error: an error if the kernel is missing or any GPU object cannot be created
	RegisterComputePipeline(p pipeline.Pipeline) error

	// InitBindGroup builds a bind group for one group of a registered pipeline from the buffers the
	// provider holds. Every binding the kernel declares in the group must have a buffer.
	//
	// Parameters:
	//   - p: the registered pipeline
	//   - group: the bind group index
	//   - provider: the provider holding the buffers; receives the new bind group
	//
	// Returns:
	//   - error: an error if a binding has no buffer or the bind group cannot be created
	InitBindGroup(p pipeline.Pipeline, group int, provider bind_group_provider.BindGroupProvider) error

	// BeginComputeFrame creates the command encoder that batches every compute dispatch of a frame
	// into one submission.
	//
	// Returns:
	//   - error: an error if a frame is already open or the encoder cannot be created
	BeginComputeFrame() error

	// QueueWrite stages a buffer write for the open compute frame.
	//
	// Parameters:
	//   - w: the write; its data is copied
	//
	// Returns:
	//   - error: ErrNoComputeFrame if no frame is open
	QueueWrite(w bind_group_provider.BufferWrite) error

	// DispatchCompute records one compute pass with group 0 bound to the provider's bind group.
	//
	// Parameters:
	//   - p: the registered pipeline
	//   - provider: the provider whose bind group is bound at group 0
	//   - workGroupCount: the workgroup counts along x, y, z
	//
	// Returns:
	//   - error: an error if no frame is open or the pipeline or bind group is missing
	DispatchCompute(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error

	// EndComputeFrame flushes the staged writes and submits the recorded passes.
	//
	// Returns:
	//   - error: an error if no frame is open or the encoder cannot be finished
	EndComputeFrame() error

	// AbortComputeFrame drops the staged writes and the recorded passes without submitting.
	AbortComputeFrame()

	// Clear acquires the next surface texture, clears it to color, and presents it.
	//
	// Parameters:
	//   - color: the clear color
	//
	// Returns:
	//   - error: an error if the backend is headless or the surface texture cannot be acquired
	Clear(color wgpu.Color) error

	// Release releases every GPU object owned by the backend.
	Release()
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool) (wgpuRendererBackend, error) {
	w := &wgpuRendererBackendImpl{
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeFifo,
	}
	if surfaceDescriptor != nil {
		runtime.LockOSThread()
		w.surface = w.instance.CreateSurface(surfaceDescriptor)
	}

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    w.surface,
	})
	if err != nil {
		w.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	w.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Relight Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		w.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	w.device = d
	w.queue = d.GetQueue()

	return w, nil
}

func (b *wgpuRendererBackendImpl) ConfigureSurface(width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.surface == nil {
		return nil
	}
	capabilities := b.surface.GetCapabilities(b.adapter)
	if len(capabilities.Formats) == 0 || len(capabilities.AlphaModes) == 0 {
		return errors.New("surface reports no supported format")
	}
	b.surfaceFormat = &capabilities.Formats[0]

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      *b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
	return nil
}

func (b *wgpuRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch mode {
	case PresentModeUncapped:
		b.presentMode = wgpu.PresentModeImmediate
	case PresentModeVSync:
		fallthrough
	default:
		b.presentMode = wgpu.PresentModeFifo
	}
}

func (b *wgpuRendererBackendImpl) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  alignBufferSize(size),
		Usage: usage,
	})
}

func (b *wgpuRendererBackendImpl) DestroyBuffer(buf *wgpu.Buffer) {
	if buf == nil {
		return
	}
	buf.Release()
}

// alignBufferSize rounds a buffer size up to the 4-byte multiple that queue writes require.
func alignBufferSize(size uint64) uint64 {
	if size == 0 {
		return 4
	}
	return (size + 3) &^ 3
}

func (b *wgpuRendererBackendImpl) RegisterComputePipeline(p pipeline.Pipeline) error {
	computeShader := p.Shader()
	if computeShader == nil {
		return errors.New("compute shader must be set to create a compute pipeline")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	module, err := b.device.CreateShaderModule(computeShader.Module())
	if err != nil {
		return fmt.Errorf("pipeline %s: shader module: %w", p.PipelineKey(), err)
	}
	defer module.Release()

	descriptors := computeShader.BindGroupLayoutDescriptors()
	maxGroup := -1
	for g := range descriptors {
		if g > maxGroup {
			maxGroup = g
		}
	}
	bindGroupLayouts := make([]*wgpu.BindGroupLayout, maxGroup+1)
	release := func() {
		for _, l := range bindGroupLayouts {
			if l != nil {
				l.Release()
			}
		}
	}
	for g := 0; g <= maxGroup; g++ {
		desc := descriptors[g]
		desc.Label = fmt.Sprintf("%s Group %d", p.PipelineKey(), g)
		bgl, bglErr := b.device.CreateBindGroupLayout(&desc)
		if bglErr != nil {
			release()
			return fmt.Errorf("failed to create bind group layout for group %d: %w", g, bglErr)
		}
		bindGroupLayouts[g] = bgl
	}

	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: bindGroupLayouts,
	})
	if err != nil {
		release()
		return err
	}
	defer layout.Release()

	created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  p.PipelineKey() + " Compute Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: computeShader.EntryPoint(),
		},
	})
	if err != nil {
		release()
		return err
	}

	p.SetComputePipeline(created, bindGroupLayouts)
	return nil
}

func (b *wgpuRendererBackendImpl) InitBindGroup(p pipeline.Pipeline, group int, provider bind_group_provider.BindGroupProvider) error {
	layout := p.BindGroupLayout(group)
	if layout == nil {
		return fmt.Errorf("pipeline %s has no layout for group %d", p.PipelineKey(), group)
	}
	descriptor := p.Shader().BindGroupLayoutDescriptor(group)

	entries := make([]wgpu.BindGroupEntry, len(descriptor.Entries))
	for i, entry := range descriptor.Entries {
		buf := provider.Buffer(int(entry.Binding))
		if buf == nil {
			return fmt.Errorf("%s: binding %d (%s) has no buffer", provider.Label(), entry.Binding, p.Shader().BindGroupVarName(group, int(entry.Binding)))
		}
		entries[i] = wgpu.BindGroupEntry{
			Binding: entry.Binding,
			Buffer:  buf,
			Offset:  0,
			Size:    wgpu.WholeSize,
		}
	}

	b.mu.Lock()
	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   provider.Label() + " Bind Group",
		Layout:  layout,
		Entries: entries,
	})
	b.mu.Unlock()
	if err != nil {
		return err
	}
	provider.SetBindGroup(bindGroup)
	return nil
}

func (b *wgpuRendererBackendImpl) BeginComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder != nil {
		return errors.New("compute frame already open")
	}
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	b.computeFrameEncoder = encoder
	return nil
}

func (b *wgpuRendererBackendImpl) QueueWrite(w bind_group_provider.BufferWrite) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return ErrNoComputeFrame
	}
	w.Data = append([]byte(nil), w.Data...)
	b.pendingWrites = append(b.pendingWrites, w)
	return nil
}

func (b *wgpuRendererBackendImpl) DispatchCompute(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error {
	computePipeline := p.Pipeline()
	if computePipeline == nil {
		return fmt.Errorf("pipeline %s is not registered", p.PipelineKey())
	}
	bindGroup := provider.BindGroup()
	if bindGroup == nil {
		return fmt.Errorf("%s has no bind group", provider.Label())
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return ErrNoComputeFrame
	}
	pass := b.computeFrameEncoder.BeginComputePass(nil)
	pass.SetPipeline(computePipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(workGroupCount[0], workGroupCount[1], workGroupCount[2])
	pass.End()
	return nil
}

func (b *wgpuRendererBackendImpl) EndComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return ErrNoComputeFrame
	}
	defer b.resetComputeFrame()

	commandBuffer, err := b.computeFrameEncoder.Finish(nil)
	if err != nil {
		return err
	}
	for _, w := range b.pendingWrites {
		b.queue.WriteBuffer(w.Buffer, w.Offset, w.Data)
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}

func (b *wgpuRendererBackendImpl) AbortComputeFrame() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetComputeFrame()
}

func (b *wgpuRendererBackendImpl) resetComputeFrame() {
	if b.computeFrameEncoder != nil {
		b.computeFrameEncoder.Release()
		b.computeFrameEncoder = nil
	}
	b.pendingWrites = nil
}

func (b *wgpuRendererBackendImpl) Clear(color wgpu.Color) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.surface == nil || b.surfaceFormat == nil {
		return errors.New("renderer has no configured surface")
	}
	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return err
	}
	defer surfaceTexture.Release()

	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		return err
	}
	defer view.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       view,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: color,
			},
		},
	})
	pass.End()
	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	b.surface.Present()
	return nil
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetComputeFrame()
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

func (b *wgpuRendererBackendImpl) Device() *wgpu.Device {
	return b.device
}

func (b *wgpuRendererBackendImpl) Queue() *wgpu.Queue {
	return b.queue
}

func (b *wgpuRendererBackendImpl) Instance() *wgpu.Instance {
	return b.instance
}

func (b *wgpuRendererBackendImpl) Adapter() *wgpu.Adapter {
	return b.adapter
}

func (b *wgpuRendererBackendImpl) Surface() *wgpu.Surface {
	return b.surface
}
