// pre_processor.go implements the WGSL pre-processor. It scans kernel source for @oxy:
// annotations, replaces them with injected struct source or generated bind group
// declarations, and collects the declarations so the compute backend can match bindings
// to its buffers.
//
// The pre-processor maintains two registries:
//   - structRegistry: maps AnnotationArg keys to embedded WGSL struct sources and their
//     WGSL type names. Used by @oxy:include and by the type field of @oxy:group.
//   - addressSpaceRegistry: maps address space argument keys to WGSL var<> syntax strings.
package shader

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-prt/engine/light"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/relight"
)

// registryEntry pairs a WGSL struct source string with the WGSL type name emitted in
// generated declarations.
type registryEntry struct {
	Source string
	Type   string
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	structRegistry       map[AnnotationArg]registryEntry
	addressSpaceRegistry map[AnnotationArg]string

	// declarations is reset at the start of each Process call.
	declarations []Annotation
}

// PreProcessor processes raw WGSL source containing @oxy: annotations, replacing them with
// generated declarations or injected struct sources while collecting a declarations list.
type PreProcessor interface {
	// Process takes raw WGSL source and replaces @oxy: annotations with their WGSL output.
	// @oxy:include annotations are replaced with the registered struct source, each struct
	// injected at most once per call. @oxy:group annotations are replaced with generated
	// @group/@binding variable declarations.
	//
	// The declarations list is reset at the start of each call and can be retrieved
	// via Declarations() after Process returns.
	//
	// Parameters:
	//   - source: the raw WGSL source code containing annotations
	//
	// Returns:
	//   - string: the processed WGSL source code
	//   - error: an error if any annotation is malformed or references an unknown type
	Process(source string) (string, error)

	// Declarations returns the @oxy:group annotations collected during the most recent call
	// to Process, in source order. Returns nil if Process has not been called.
	//
	// Returns:
	//   - []Annotation: the declarations collected during the last Process call
	Declarations() []Annotation
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a new PreProcessor with the relight record and light structs
// registered. Further structs can be registered with WithStruct.
//
// Parameters:
//   - options: variadic list of PreProcessorBuilderOption functions
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor(options ...PreProcessorBuilderOption) PreProcessor {
	p := &preProcessor{
		structRegistry: map[AnnotationArg]registryEntry{
			AnnotationArgSurfel:        {Source: relight.GPUSurfelSource, Type: "Surfel"},
			AnnotationArgBrickRange:    {Source: relight.GPUBrickRangeSource, Type: "BrickRange"},
			AnnotationArgFactor:        {Source: relight.GPUFactorSource, Type: "Factor"},
			AnnotationArgFactorRange:   {Source: relight.GPUFactorRangeSource, Type: "FactorRange"},
			AnnotationArgProbePosition: {Source: relight.GPUProbePositionSource, Type: "ProbePosition"},
			AnnotationArgBrickRadiance: {Source: relight.GPUBrickRadianceSource, Type: "BrickRadiance"},
			AnnotationArgProbeSH:       {Source: relight.GPUProbeSHSource, Type: "ProbeSH"},
			AnnotationArgBrickParams:   {Source: relight.GPUBrickParamsSource, Type: "BrickParams"},
			AnnotationArgProbeParams:   {Source: relight.GPUProbeParamsSource, Type: "ProbeParams"},
			AnnotationArgLight:         {Source: light.GPULightSource, Type: "Light"},
			AnnotationArgLightHeader:   {Source: light.GPULightHeaderSource, Type: "LightHeader"},
		},
		addressSpaceRegistry: map[AnnotationArg]string{
			annotationArgStorageTypeUniform:   "var<uniform>",
			annotationArgStorageTypeRead:      "var<storage, read>",
			annotationArgStorageTypeReadWrite: "var<storage, read_write>",
		},
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = nil

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	included := make(map[AnnotationArg]bool)

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case annotationTypeInclude:
			entry, ok := p.structRegistry[a.Args[0]]
			if !ok {
				return "", fmt.Errorf("line %d: unknown struct type %q in @oxy include annotation", i+1, a.Args[0])
			}
			if included[a.Args[0]] {
				continue
			}
			included[a.Args[0]] = true
			out = append(out, strings.TrimRight(entry.Source, "\n"))
		case AnnotationTypeBindingGroup:
			wgslType, err := p.resolveType(string(a.Args[2]))
			if err != nil {
				return "", fmt.Errorf("line %d: %w", i+1, err)
			}
			addrSpace := p.addressSpaceRegistry[a.Args[0]]
			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;", *a.Group, *a.Binding, addrSpace, a.Args[1], wgslType))
			p.declarations = append(p.declarations, *a)
		default:
			return "", fmt.Errorf("line %d: unknown annotation type %q", i+1, a.Type)
		}
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}

// resolveType maps a group annotation type key to the WGSL type emitted in the declaration.
func (p *preProcessor) resolveType(key string) (string, error) {
	if inner, ok := strings.CutPrefix(key, "array<"); ok {
		inner, ok = strings.CutSuffix(inner, ">")
		if !ok {
			return "", fmt.Errorf("malformed array type %q in @oxy group annotation", key)
		}
		elem, err := p.resolveType(inner)
		if err != nil {
			return "", err
		}
		return "array<" + elem + ">", nil
	}
	if entry, ok := p.structRegistry[AnnotationArg(key)]; ok {
		return entry.Type, nil
	}
	if _, ok := wgslPrimitiveLayoutMap[key]; ok {
		return key, nil
	}
	return "", fmt.Errorf("unknown type %q in @oxy group annotation", key)
}
