// annotations.go defines the annotation types, argument constants, and parser for the
// WGSL pre-processor. Annotations are single-line WGSL comments prefixed with @oxy:
// that inject registered struct definitions and generate storage/uniform bind group
// declarations for the relight compute kernels.
package shader

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// annotationPrefix is the marker that identifies an annotation within a WGSL comment line.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// annotationTypeInclude injects the WGSL source of a registered struct definition at the
	// annotation site. It produces no declaration.
	//
	// Syntax: //@oxy:include <struct_type>
	//
	// Example: //@oxy:include surfel
	annotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBindingGroup generates a WGSL @group/@binding variable declaration and
	// appends an Annotation to the PreProcessor's declarations list.
	//
	// Syntax: //@oxy:group <group> <binding> <address_space> <var_name> <type>
	//
	// The type is a registered struct key, array<struct key>, or array<primitive> where the
	// primitive is a scalar or vector WGSL type such as u32 or f32.
	//
	// Example: //@oxy:group 0 0 storage_read surfels array<surfel>
	AnnotationTypeBindingGroup AnnotationType = "group"
)

// Annotation represents a single parsed @oxy: annotation from a WGSL shader source line.
type Annotation struct {
	// Type identifies which annotation was parsed.
	Type AnnotationType

	// Args holds the annotation's arguments. The contents depend on Type:
	//   - include: [0] = struct type key (e.g. "surfel")
	//   - group:   [0] = address space, [1] = var name, [2] = type key
	Args []AnnotationArg

	// Line is the 1-based line number in the WGSL source where this annotation was found.
	Line int

	// Group is the @group index for group annotations. Nil for include annotations.
	Group *int

	// Binding is the @binding index for group annotations. Nil for include annotations.
	Binding *int
}

// AnnotationArg is a typed string used as an argument in annotations.
type AnnotationArg string

// Struct type arguments. Each maps to a Go GPU record type with an embedded .wgsl asset.
const (
	// AnnotationArgSurfel identifies the Surfel record. Source: engine/prt/relight/assets/surfel.wgsl
	AnnotationArgSurfel AnnotationArg = "surfel"

	// AnnotationArgBrickRange identifies the BrickRange record. Source: engine/prt/relight/assets/brick_range.wgsl
	AnnotationArgBrickRange AnnotationArg = "brick_range"

	// AnnotationArgFactor identifies the Factor record. Source: engine/prt/relight/assets/factor.wgsl
	AnnotationArgFactor AnnotationArg = "factor"

	// AnnotationArgFactorRange identifies the FactorRange record. Source: engine/prt/relight/assets/factor_range.wgsl
	AnnotationArgFactorRange AnnotationArg = "factor_range"

	// AnnotationArgProbePosition identifies the ProbePosition record.
	AnnotationArgProbePosition AnnotationArg = "probe_position"

	// AnnotationArgBrickRadiance identifies the BrickRadiance record written by the brick pass.
	AnnotationArgBrickRadiance AnnotationArg = "brick_radiance"

	// AnnotationArgProbeSH identifies the ProbeSH record written by the probe pass.
	AnnotationArgProbeSH AnnotationArg = "probe_sh"

	// AnnotationArgBrickParams identifies the BrickParams uniform.
	AnnotationArgBrickParams AnnotationArg = "brick_params"

	// AnnotationArgProbeParams identifies the ProbeParams uniform.
	AnnotationArgProbeParams AnnotationArg = "probe_params"

	// AnnotationArgLight identifies the Light struct. Source: engine/light/assets/light.wgsl
	AnnotationArgLight AnnotationArg = "light"

	// AnnotationArgLightHeader identifies the LightHeader struct holding the light count and sky color.
	AnnotationArgLightHeader AnnotationArg = "light_header"
)

// Address space arguments used in @oxy:group annotations.
const (
	annotationArgStorageTypeUniform   AnnotationArg = "storage_uniform"
	annotationArgStorageTypeRead      AnnotationArg = "storage_read"
	annotationArgStorageTypeReadWrite AnnotationArg = "storage_read_write"
)

var validAddressSpaces = []AnnotationArg{
	annotationArgStorageTypeUniform,
	annotationArgStorageTypeRead,
	annotationArgStorageTypeReadWrite,
}

// parseAnnotation attempts to parse a single line of WGSL source as an @oxy: annotation.
// Struct keys are not checked here; the PreProcessor resolves them against its registry.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch args[0] {
	case string(annotationTypeInclude):
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy include annotation requires exactly one argument", lineNum)
		}
		return &Annotation{
			Type: annotationTypeInclude,
			Args: []AnnotationArg{AnnotationArg(args[1])},
			Line: lineNum,
		}, nil
	case string(AnnotationTypeBindingGroup):
		if len(args) != 6 {
			return nil, fmt.Errorf("line %d: @oxy group annotation requires five arguments (group, binding, address space, var name, type)", lineNum)
		}
		group, err := strconv.Atoi(args[1])
		if err != nil || group < 0 {
			return nil, fmt.Errorf("line %d: invalid group number %q in @oxy group annotation", lineNum, args[1])
		}
		binding, err := strconv.Atoi(args[2])
		if err != nil || binding < 0 {
			return nil, fmt.Errorf("line %d: invalid binding number %q in @oxy group annotation", lineNum, args[2])
		}
		if !slices.Contains(validAddressSpaces, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown address space %q in @oxy group annotation", lineNum, args[3])
		}
		return &Annotation{
			Type:    AnnotationTypeBindingGroup,
			Args:    []AnnotationArg{AnnotationArg(args[3]), AnnotationArg(args[4]), AnnotationArg(args[5])},
			Line:    lineNum,
			Group:   &group,
			Binding: &binding,
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, args[0])
	}
}
