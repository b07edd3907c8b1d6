package bind_group_provider

import (
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	mu sync.Mutex

	// label is a debug label used for the GPU objects created for this provider.
	label string

	// bindGroup is owned by the provider and released when replaced.
	bindGroup *wgpu.BindGroup

	// buffers are borrowed, keyed by binding index. Their owner releases them.
	buffers map[int]*wgpu.Buffer

	// stale is set when a binding's buffer changes after the bind group was built.
	stale bool
}

// BindGroupProvider tracks the buffers bound to one bind group of a compute pipeline and the
// wgpu.BindGroup built from them. Buffers are borrowed: reallocating a buffer only requires
// handing the new one to SetBuffer, after which Stale reports that the bind group must be rebuilt.
//
// Usage pattern:
//  1. The owner creates GPU buffers and hands them to the provider with SetBuffer
//  2. When Stale reports true, the renderer backend builds a new bind group with InitBindGroup
//  3. Dispatches use BindGroup()
type BindGroupProvider interface {
	// Release releases the bind group. Borrowed buffers are left untouched.
	Release()

	// Label returns the debug label for this provider.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// BindGroup returns the current bind group, or nil if none has been built.
	//
	// Returns:
	//   - *wgpu.BindGroup: the bind group or nil
	BindGroup() *wgpu.BindGroup

	// SetBindGroup replaces the bind group, releasing the previous one, and clears the stale flag.
	//
	// Parameters:
	//   - bg: the new bind group
	SetBindGroup(bg *wgpu.BindGroup)

	// Buffer returns the buffer bound at a binding index, or nil if not set.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - *wgpu.Buffer: the buffer or nil
	Buffer(binding int) *wgpu.Buffer

	// Buffers returns a copy of all bound buffers keyed by binding index.
	//
	// Returns:
	//   - map[int]*wgpu.Buffer: the buffers keyed by binding index
	Buffers() map[int]*wgpu.Buffer

	// SetBuffer binds a buffer at a binding index. A different buffer than the current one marks
	// the bind group stale.
	//
	// Parameters:
	//   - binding: the binding index
	//   - buf: the buffer to bind, or nil to unbind
	SetBuffer(binding int, buf *wgpu.Buffer)

	// Stale reports whether the bind group is missing or was built from buffers that have since
	// been replaced.
	//
	// Returns:
	//   - bool: true if the bind group must be rebuilt before the next dispatch
	Stale() bool
}

var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates a new BindGroupProvider with the given label and options.
//
// Parameters:
//   - label: the debug label for GPU objects created for this provider
//   - options: variadic list of BindGroupProviderOption functions
//
// Returns:
//   - BindGroupProvider: the new provider without a bind group
func NewBindGroupProvider(label string, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		label:   label,
		buffers: make(map[int]*wgpu.Buffer),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bindGroup != nil {
		p.bindGroup.Release()
		p.bindGroup = nil
	}
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) BindGroup() *wgpu.BindGroup {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bindGroup
}

func (p *bindGroupProvider) SetBindGroup(bg *wgpu.BindGroup) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bindGroup != nil && p.bindGroup != bg {
		p.bindGroup.Release()
	}
	p.bindGroup = bg
	p.stale = false
}

func (p *bindGroupProvider) Buffer(binding int) *wgpu.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffers[binding]
}

func (p *bindGroupProvider) Buffers() map[int]*wgpu.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[int]*wgpu.Buffer, len(p.buffers))
	for k, v := range p.buffers {
		out[k] = v
	}
	return out
}

func (p *bindGroupProvider) SetBuffer(binding int, buf *wgpu.Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buffers[binding] == buf {
		return
	}
	if buf == nil {
		delete(p.buffers, binding)
	} else {
		p.buffers[binding] = buf
	}
	p.stale = true
}

func (p *bindGroupProvider) Stale() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stale || p.bindGroup == nil
}
