package surfel

const (
	defaultBrickSize = float32(4)
	defaultMergeStep = float32(0.1)
)

// GridBuilderOption is a function that configures a Grid during construction.
type GridBuilderOption func(*gridImpl)

// WithBrickSize is an option builder that sets the world-space edge length of a brick cell.
// Non-positive values are ignored.
//
// Parameters:
//   - size: the brick edge length
//
// Returns:
//   - GridBuilderOption: a function that applies the brick size to a gridImpl
func WithBrickSize(size float32) GridBuilderOption {
	return func(g *gridImpl) {
		if size > 0 {
			g.brickSize = size
		}
	}
}

// WithMergeStep is an option builder that sets the position quantization step used to merge surfels inside a
// brick. Non-positive values are ignored.
//
// Parameters:
//   - step: the quantization step
//
// Returns:
//   - GridBuilderOption: a function that applies the merge step to a gridImpl
func WithMergeStep(step float32) GridBuilderOption {
	return func(g *gridImpl) {
		if step > 0 {
			g.mergeStep = step
		}
	}
}
