package pipeline

import (
	"github.com/Carmen-Shannon/oxy-prt/engine/renderer/shader"
)

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithComputeShader sets the compute kernel for this pipeline.
//
// Parameters:
//   - s: the compute kernel
//
// Returns:
//   - PipelineBuilderOption: a function that sets the compute kernel for this pipeline
func WithComputeShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) {
		p.computeShader = s
	}
}
