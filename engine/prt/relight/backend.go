package relight

// BufferID names one of the GPU buffers the scheduler manages.
type BufferID int

const (
	// BufferSurfels holds every merged surfel of the volume (GPUSurfel records).
	BufferSurfels BufferID = iota

	// BufferBrickRanges holds every brick's surfel range (GPUBrickRange records).
	BufferBrickRanges

	// BufferFactors holds the flattened factor array (GPUFactor records).
	BufferFactors

	// BufferFactorRanges holds every probe's factor range (GPUFactorRange records).
	BufferFactorRanges

	// BufferValidity holds the per-probe validity mask (f32 per probe).
	BufferValidity

	// BufferProbePositions holds every probe's capture position and intensity (GPUProbePosition records).
	BufferProbePositions

	// BufferLights holds the frame's light header and lights.
	BufferLights

	// BufferSelectedBricks holds the brick indices relit this frame (u32 per brick).
	BufferSelectedBricks

	// BufferSelectedProbes holds the probe indices relit this frame (u32 per probe).
	BufferSelectedProbes

	// BufferBrickRadiance is the brick pass output, one GPUBrickRadiance per volume brick.
	BufferBrickRadiance

	// BufferProbeSH is the probe pass output, one GPUProbeSH per volume probe.
	BufferProbeSH

	// BufferBrickParams is the brick pass uniform block.
	BufferBrickParams

	// BufferProbeParams is the probe pass uniform block.
	BufferProbeParams

	// BufferCount is the number of buffer IDs.
	BufferCount
)

var bufferNames = [BufferCount]string{
	"surfels", "brick ranges", "factors", "factor ranges", "validity", "probe positions", "lights",
	"selected bricks", "selected probes", "brick radiance", "probe sh", "brick params", "probe params",
}

// String returns the buffer's label.
func (id BufferID) String() string {
	if id < 0 || id >= BufferCount {
		return "unknown"
	}
	return bufferNames[id]
}

// ComputeBackend executes the two relight passes. The scheduler is its only caller and drives it from one
// goroutine.
//
// Writes and dispatches issued between BeginFrame and EndFrame belong to one frame and reach the GPU together
// at EndFrame. AbortFrame discards a frame that failed part way, so a failed frame never leaves partially
// overwritten buffers behind.
type ComputeBackend interface {
	// EnsureBuffer (re)allocates a buffer to exactly size bytes. The previous contents are lost when the size
	// changes; an unchanged size keeps the buffer as is. Called outside of a frame.
	//
	// Parameters:
	//   - id: the buffer
	//   - size: byte size, at least one record
	//
	// Returns:
	//   - error: allocation failure
	EnsureBuffer(id BufferID, size int) error

	// WriteBuffer stages data into a buffer at a byte offset as part of the current frame.
	//
	// Parameters:
	//   - id: the buffer
	//   - offset: destination byte offset
	//   - data: the bytes to write
	//
	// Returns:
	//   - error: no frame open, unknown buffer, or write out of bounds
	WriteBuffer(id BufferID, offset int, data []byte) error

	// BeginFrame opens a frame.
	//
	// Returns:
	//   - error: failure to create the frame's command encoder
	BeginFrame() error

	// DispatchBrickPass records the brick pass over the first n entries of the selected-brick list.
	//
	// Parameters:
	//   - n: selected brick count
	//
	// Returns:
	//   - error: dispatch failure
	DispatchBrickPass(n uint32) error

	// DispatchProbePass records the probe pass over the first n entries of the selected-probe list. It reads
	// the brick radiance written by the brick pass of the same frame.
	//
	// Parameters:
	//   - n: selected probe count
	//
	// Returns:
	//   - error: dispatch failure
	DispatchProbePass(n uint32) error

	// EndFrame submits the frame.
	//
	// Returns:
	//   - error: submission failure; nothing of the frame reached the GPU
	EndFrame() error

	// AbortFrame discards the open frame, if any.
	AbortFrame()

	// ReleaseBuffers frees every buffer. Later EnsureBuffer calls allocate afresh.
	ReleaseBuffers()
}
