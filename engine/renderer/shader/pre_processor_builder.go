package shader

// PreProcessorBuilderOption is a function that configures a PreProcessor during construction.
type PreProcessorBuilderOption func(*preProcessor)

// WithStruct is an option builder that registers a WGSL struct for @oxy:include and @oxy:group
// annotations. An existing key is replaced.
//
// Parameters:
//   - arg: the annotation key, e.g. "surfel"
//   - source: the WGSL struct definition
//   - typeName: the WGSL type name declared by source
//
// Returns:
//   - PreProcessorBuilderOption: a function that registers the struct on a preProcessor
func WithStruct(arg AnnotationArg, source, typeName string) PreProcessorBuilderOption {
	return func(p *preProcessor) {
		if arg == "" || typeName == "" {
			return
		}
		p.structRegistry[arg] = registryEntry{Source: source, Type: typeName}
	}
}
