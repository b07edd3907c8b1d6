package shader

import (
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// ErrNoEntryPoint is returned by NewComputeShader when the source declares no @compute function.
var ErrNoEntryPoint = errors.New("no @compute entry point")

// shader is the implementation of the Shader interface.
// It holds all of the parsed kernel data required for compute pipeline creation and bind group wiring.
type shader struct {
	key                        string
	source                     string
	entryPoint                 string
	workgroupSize              [3]uint32
	bindGroupLayoutDescriptors map[int]wgpu.BindGroupLayoutDescriptor
	bindingVarNames            map[int]map[int]string
	structLayouts              map[string]wgslTypeLayout
	declarations               []Annotation
	module                     *wgpu.ShaderModuleDescriptor
}

// Shader defines the interface for a pre-processed and parsed WGSL compute kernel. It exposes the
// kernel's key, source, entry point, workgroup size, bind group layout descriptors, and the struct
// layouts needed to size and wire its buffers.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used as the pipeline label.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Source retrieves the pre-processed WGSL source code.
	//
	// Returns:
	//   - string: the WGSL source code of the shader
	Source() string

	// EntryPoint returns the @compute entry point name.
	//
	// Returns:
	//   - string: the entry point name
	EntryPoint() string

	// WorkgroupSize returns the @workgroup_size dimensions. Omitted dimensions are 1.
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize() [3]uint32

	// Workgroups returns how many workgroups along x cover n invocations.
	//
	// Parameters:
	//   - n: the number of invocations
	//
	// Returns:
	//   - uint32: ceil(n / workgroup size x)
	Workgroups(n uint32) uint32

	// BindGroupLayoutDescriptor retrieves the bind group layout descriptor for a group index.
	//
	// Parameters:
	//   - group: the bind group index
	//
	// Returns:
	//   - wgpu.BindGroupLayoutDescriptor: the descriptor, or an empty descriptor if the group is not declared
	BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor

	// BindGroupLayoutDescriptors retrieves all parsed bind group layout descriptors.
	//
	// Returns:
	//   - map[int]wgpu.BindGroupLayoutDescriptor: descriptors keyed by group index
	BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor

	// BindGroupVarName retrieves the variable name declared at a group and binding index.
	//
	// Parameters:
	//   - group: the bind group index
	//   - binding: the binding index within the group
	//
	// Returns:
	//   - string: the variable name, or an empty string if not found
	BindGroupVarName(group, binding int) string

	// BindGroupFromVarName retrieves the binding index of a variable within a group.
	//
	// Parameters:
	//   - group: the bind group index
	//   - varName: the variable name within the group
	//
	// Returns:
	//   - int: the binding index, or -1 if not found
	//   - bool: true if the variable name was found
	BindGroupFromVarName(group int, varName string) (int, bool)

	// BindGroupVarNames retrieves all variable names for all bind groups.
	//
	// Returns:
	//   - map[int]map[int]string: variable names keyed by group and binding index
	BindGroupVarNames() map[int]map[int]string

	// StructSize returns the WGSL byte size of a struct declared in the kernel source.
	//
	// Parameters:
	//   - name: the WGSL struct name, e.g. "Surfel"
	//
	// Returns:
	//   - uint64: the struct size in bytes
	//   - bool: false if the struct is not declared or could not be resolved
	StructSize(name string) (uint64, bool)

	// Module returns the wgpu.ShaderModuleDescriptor built from the pre-processed source.
	//
	// Returns:
	//   - *wgpu.ShaderModuleDescriptor: the shader module descriptor containing the WGSL code and label
	Module() *wgpu.ShaderModuleDescriptor

	// Declarations returns the @oxy:group annotations collected while pre-processing the source.
	//
	// Returns:
	//   - []Annotation: the bind group declarations in source order
	Declarations() []Annotation
}

var _ Shader = &shader{}

// NewComputeShader pre-processes and parses a WGSL compute kernel. Bind group layout entries get
// compute visibility and a MinBindingSize resolved from the bound type's WGSL layout.
//
// Parameters:
//   - key: a unique identifier for the shader
//   - source: the raw WGSL source, typically embedded with go:embed
//   - pp: the pre-processor to resolve annotations with, or nil for NewPreProcessor()
//
// Returns:
//   - Shader: the parsed shader
//   - error: an error if the source is empty, an annotation is invalid, or no @compute entry point exists
func NewComputeShader(key, source string, pp PreProcessor) (Shader, error) {
	if source == "" {
		return nil, fmt.Errorf("shader %s: empty source", key)
	}
	if pp == nil {
		pp = NewPreProcessor()
	}
	processed, err := pp.Process(source)
	if err != nil {
		return nil, fmt.Errorf("shader %s: pre-process: %w", key, err)
	}

	s := &shader{
		key:          key,
		source:       processed,
		declarations: append([]Annotation(nil), pp.Declarations()...),
	}
	s.entryPoint = parseEntryPoint(processed)
	if s.entryPoint == "" {
		return nil, fmt.Errorf("shader %s: %w", key, ErrNoEntryPoint)
	}
	s.workgroupSize = parseWorkgroupSize(processed)
	s.structLayouts = computeStructSizes(parseStructBlocks(stripComments(processed)))
	s.bindGroupLayoutDescriptors, s.bindingVarNames = parseBindGroupLayouts(processed, wgpu.ShaderStageCompute)
	s.module = &wgpu.ShaderModuleDescriptor{
		Label: key,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: processed,
		},
	}
	return s, nil
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workgroupSize
}

func (s *shader) Workgroups(n uint32) uint32 {
	x := s.workgroupSize[0]
	if x == 0 {
		x = 1
	}
	return (n + x - 1) / x
}

func (s *shader) BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor {
	return s.bindGroupLayoutDescriptors[group]
}

func (s *shader) BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor {
	return s.bindGroupLayoutDescriptors
}

func (s *shader) BindGroupVarName(group, binding int) string {
	if s.bindingVarNames[group] == nil {
		return ""
	}
	return s.bindingVarNames[group][binding]
}

func (s *shader) BindGroupFromVarName(group int, varName string) (int, bool) {
	for binding, name := range s.bindingVarNames[group] {
		if name == varName {
			return binding, true
		}
	}
	return -1, false
}

func (s *shader) BindGroupVarNames() map[int]map[int]string {
	return s.bindingVarNames
}

func (s *shader) StructSize(name string) (uint64, bool) {
	layout, ok := s.structLayouts[name]
	return layout.size, ok
}

func (s *shader) Module() *wgpu.ShaderModuleDescriptor {
	return s.module
}

func (s *shader) Declarations() []Annotation {
	return s.declarations
}
