// Package relight incrementally relights a baked probe volume at runtime. Every frame it picks the probes near
// the viewpoint plus a round-robin slice of the whole volume, derives the bricks those probes depend on, uploads
// the per-frame inputs, and dispatches the brick and probe passes on a ComputeBackend.
package relight

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-prt/common"
	"github.com/Carmen-Shannon/oxy-prt/engine/light"
	"github.com/Carmen-Shannon/oxy-prt/engine/profiler"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/adjustment"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/cell"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/volume"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	defaultQuota       = 64
	defaultLocalExtent = float32(8)
)

// SkipReason tells why a frame dispatched nothing.
type SkipReason int

const (
	SkipNone SkipReason = iota
	// SkipInactive: global lighting or probe volume sampling is off.
	SkipInactive
	// SkipNoData: the volume has no valid baked data.
	SkipNoData
	// SkipBakeInProgress: a bake holds the gate.
	SkipBakeInProgress
	// SkipBusy: the volume is not Baked(Idle).
	SkipBusy
	// SkipError: a backend call failed.
	SkipError
)

// String returns a human-readable reason for logs.
func (r SkipReason) String() string {
	switch r {
	case SkipNone:
		return "none"
	case SkipInactive:
		return "inactive"
	case SkipNoData:
		return "no data"
	case SkipBakeInProgress:
		return "bake in progress"
	case SkipBusy:
		return "busy"
	case SkipError:
		return "error"
	default:
		return fmt.Sprintf("SkipReason(%d)", int(r))
	}
}

// FrameInput is everything one relight frame reads.
type FrameInput struct {
	Volume             volume.Volume
	Viewpoint          mgl32.Vec3
	LightingActive     bool
	SampleProbeVolumes bool
	Lights             []light.Light
	SkyColor           [3]float32
}

// FrameResult describes what a frame did.
type FrameResult struct {
	Dispatched bool
	Skip       SkipReason

	// Probes and Bricks are the sizes of the relit sets.
	Probes int
	Bricks int

	// Uploaded is set when the frame re-uploaded the whole volume.
	Uploaded bool

	// VoxelSize is the published cache voxel size after the frame; 0 means no global illumination.
	VoxelSize float32
}

// Scheduler drives runtime relighting of one probe volume at a time.
type Scheduler interface {
	// Frame runs one relight frame. A frame either dispatches both passes for its whole update set or changes
	// nothing on the GPU; a failed frame does not advance the round-robin cursor.
	//
	// Parameters:
	//   - in: the frame input
	//
	// Returns:
	//   - FrameResult: what the frame did
	//   - error: the backend error of a frame skipped with SkipError
	Frame(in FrameInput) (FrameResult, error)

	// Release frees every GPU buffer. The next frame with valid data uploads the volume again.
	Release()

	// VoxelSize returns the cache voxel size published by the last frame, 0 when no global illumination is
	// available.
	VoxelSize() float32

	// Cursor returns the index where the next round-robin slice starts.
	Cursor() int

	// LocalProbes returns a copy of the cached local probe set in ascending order.
	LocalProbes() []int
}

// schedulerImpl is the implementation of the Scheduler interface.
type schedulerImpl struct {
	mu sync.Mutex

	backend     ComputeBackend
	quota       int
	localExtent float32
	gate        *volume.BakeGate
	registry    adjustment.Registry
	logger      common.Logger
	profiler    *profiler.Profiler

	sizes [BufferCount]int

	uploaded        bool
	uploadedVolume  volume.Volume
	uploadedCell    *cell.Data
	uploadedGen     uint64
	uploadedVersion uint64

	cursor      int
	localValid  bool
	localVolume volume.Volume
	localGen    uint64
	localCenter mgl32.Vec3
	localProbes []int

	voxelSize  float32
	frameIndex uint32

	probeMark []bool
	brickMark []bool
}

var _ Scheduler = &schedulerImpl{}

// NewScheduler creates a Scheduler dispatching on backend.
//
// Parameters:
//   - backend: the compute backend
//   - opts: optional builder options
//
// Returns:
//   - Scheduler: the new scheduler
func NewScheduler(backend ComputeBackend, opts ...SchedulerBuilderOption) Scheduler {
	s := &schedulerImpl{
		backend:     backend,
		quota:       defaultQuota,
		localExtent: defaultLocalExtent,
		gate:        volume.DefaultGate(),
		logger:      common.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *schedulerImpl) Frame(in FrameInput) (FrameResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.frame(in)
	res.VoxelSize = s.voxelSize
	if s.profiler != nil {
		s.profiler.RecordRelight(res.Dispatched, res.Probes, res.Bricks)
	}
	return res, err
}

func (s *schedulerImpl) frame(in FrameInput) (FrameResult, error) {
	if !in.LightingActive || !in.SampleProbeVolumes {
		s.voxelSize = 0
		return FrameResult{Skip: SkipInactive}, nil
	}

	var data *cell.Data
	if in.Volume != nil {
		data = in.Volume.Cell()
	}
	if data == nil || data.ProbeCount() == 0 {
		s.voxelSize = 0
		if s.uploaded {
			s.release()
			s.logger.Printf("[Relight] no baked data, GPU caches released")
		}
		return FrameResult{Skip: SkipNoData}, nil
	}
	vol := in.Volume

	if err := s.gate.BeginRelight(vol); err != nil {
		if errors.Is(err, volume.ErrBakeInProgress) {
			return FrameResult{Skip: SkipBakeInProgress}, nil
		}
		return FrameResult{Skip: SkipBusy}, nil
	}
	defer vol.EndRelight()

	gen := vol.Generation()
	var version uint64
	if s.registry != nil {
		version = s.registry.Version()
	}
	upload := !s.uploaded || vol != s.uploadedVolume || data != s.uploadedCell || gen != s.uploadedGen || version != s.uploadedVersion

	n := data.ProbeCount()
	quota := min(s.quota, n)
	s.cursor %= n
	probes := s.selectProbes(n, quota, s.localSet(vol, gen, in.Viewpoint))
	bricks := s.selectBricks(data, probes)

	lightCount := light.EnabledCount(in.Lights)
	realloc, err := s.ensureAll(data, len(probes), len(bricks), lightCount)
	if err != nil {
		s.logger.Printf("[Relight] frame skipped: %v", err)
		return FrameResult{Skip: SkipError}, err
	}
	upload = upload || realloc

	if err := s.dispatch(in, data, vol, upload, probes, bricks); err != nil {
		s.backend.AbortFrame()
		if upload {
			s.uploaded = false
		}
		s.logger.Printf("[Relight] frame skipped: %v", err)
		return FrameResult{Skip: SkipError}, err
	}

	if upload {
		s.uploaded = true
		s.uploadedVolume = vol
		s.uploadedCell = data
		s.uploadedGen = gen
		s.uploadedVersion = version
		s.logger.Printf("[Relight] uploaded %q: %d probes, %d bricks, %d surfels, %d factors",
			vol.Name(), n, data.BrickCount(), len(data.Surfels), len(data.Factors))
	}
	s.cursor = (s.cursor + quota) % n
	s.frameIndex++
	s.voxelSize = voxelSize(vol, data)

	return FrameResult{
		Dispatched: true,
		Probes:     len(probes),
		Bricks:     len(bricks),
		Uploaded:   upload,
	}, nil
}

// localSet returns the cached local probe set, recentring it on viewpoint once the viewpoint leaves the cached
// region or the volume changed.
func (s *schedulerImpl) localSet(vol volume.Volume, gen uint64, viewpoint mgl32.Vec3) []int {
	if s.localValid && s.localVolume == vol && s.localGen == gen && s.insideLocalRegion(viewpoint) {
		return s.localProbes
	}
	ext := mgl32.Vec3{s.localExtent, s.localExtent, s.localExtent}
	s.localProbes = vol.Grid().IndicesInBox(viewpoint.Sub(ext), viewpoint.Add(ext))
	s.localCenter = viewpoint
	s.localVolume = vol
	s.localGen = gen
	s.localValid = true
	return s.localProbes
}

func (s *schedulerImpl) insideLocalRegion(p mgl32.Vec3) bool {
	for a := 0; a < 3; a++ {
		if math32.Abs(p[a]-s.localCenter[a]) > s.localExtent {
			return false
		}
	}
	return true
}

// selectProbes returns the ascending union of the local set and the roulette slice [cursor, cursor+quota).
func (s *schedulerImpl) selectProbes(n, quota int, local []int) []int {
	s.probeMark = resetMarks(s.probeMark, n)
	for _, p := range local {
		if p >= 0 && p < n {
			s.probeMark[p] = true
		}
	}
	for i := 0; i < quota; i++ {
		s.probeMark[(s.cursor+i)%n] = true
	}
	return collectMarks(s.probeMark)
}

// selectBricks returns every brick referenced by a factor of the selected probes, ascending and deduplicated.
func (s *schedulerImpl) selectBricks(data *cell.Data, probes []int) []int {
	nb := data.BrickCount()
	s.brickMark = resetMarks(s.brickMark, nb)
	for _, p := range probes {
		for _, f := range data.ProbeFactors(p) {
			if b := int(f.BrickIndex); b >= 0 && b < nb {
				s.brickMark[b] = true
			}
		}
	}
	return collectMarks(s.brickMark)
}

func resetMarks(marks []bool, n int) []bool {
	if cap(marks) < n {
		return make([]bool, n)
	}
	marks = marks[:n]
	clear(marks)
	return marks
}

func collectMarks(marks []bool) []int {
	out := make([]int, 0, 64)
	for i, m := range marks {
		if m {
			out = append(out, i)
		}
	}
	return out
}

// ensureAll sizes every buffer for the frame. It reports whether a volume buffer was reallocated, which loses its
// contents and forces a re-upload.
func (s *schedulerImpl) ensureAll(data *cell.Data, probes, bricks, lights int) (bool, error) {
	n := data.ProbeCount()
	nb := data.BrickCount()

	volumeBuffers := []struct {
		id   BufferID
		size int
	}{
		{BufferSurfels, max(len(data.Surfels), 1) * SurfelRecordSize},
		{BufferBrickRanges, max(nb, 1) * BrickRangeRecordSize},
		{BufferFactors, max(len(data.Factors), 1) * FactorRecordSize},
		{BufferFactorRanges, n * FactorRangeRecordSize},
		{BufferValidity, n * ValidityRecordSize},
		{BufferProbePositions, n * ProbePositionRecordSize},
	}
	frameBuffers := []struct {
		id   BufferID
		size int
	}{
		{BufferLights, (&light.GPULightHeader{}).Size() + common.NextPow2(lights)*(&light.GPULight{}).Size()},
		{BufferSelectedBricks, common.NextPow2(bricks) * IndexRecordSize},
		{BufferSelectedProbes, common.NextPow2(probes) * IndexRecordSize},
		{BufferBrickRadiance, max(nb, 1) * BrickRadianceRecordSize},
		{BufferProbeSH, n * ProbeSHRecordSize},
		{BufferBrickParams, BrickParamsRecordSize},
		{BufferProbeParams, ProbeParamsRecordSize},
	}

	realloc := false
	for _, b := range volumeBuffers {
		changed, err := s.ensure(b.id, b.size)
		if err != nil {
			return false, err
		}
		realloc = realloc || changed
	}
	for _, b := range frameBuffers {
		if _, err := s.ensure(b.id, b.size); err != nil {
			return false, err
		}
	}
	return realloc, nil
}

func (s *schedulerImpl) ensure(id BufferID, size int) (bool, error) {
	if s.sizes[id] == size {
		return false, nil
	}
	if err := s.backend.EnsureBuffer(id, size); err != nil {
		s.sizes[id] = 0
		return false, fmt.Errorf("failed to allocate %s buffer (%d bytes): %w", id, size, err)
	}
	s.sizes[id] = size
	return true, nil
}

// dispatch records one frame: optional whole-volume upload, per-frame inputs, brick pass, probe pass, submit.
func (s *schedulerImpl) dispatch(in FrameInput, data *cell.Data, vol volume.Volume, upload bool, probes, bricks []int) error {
	if err := s.backend.BeginFrame(); err != nil {
		return fmt.Errorf("failed to begin relight frame: %w", err)
	}

	if upload {
		validity, positions := s.resolveProbes(data, vol)
		writes := []struct {
			id   BufferID
			data []byte
		}{
			{BufferSurfels, MarshalSurfels(data.Surfels)},
			{BufferBrickRanges, MarshalBrickRanges(data.Bricks)},
			{BufferFactors, MarshalFactors(data.Factors)},
			{BufferFactorRanges, MarshalFactorRanges(data.Probes)},
			{BufferValidity, validity},
			{BufferProbePositions, positions},
		}
		for _, w := range writes {
			if err := s.write(w.id, w.data); err != nil {
				return err
			}
		}
	}

	brickParams := GPUBrickParams{
		SelectedCount: uint32(len(bricks)),
		BrickCount:    uint32(data.BrickCount()),
		SurfelCount:   uint32(len(data.Surfels)),
		FrameIndex:    s.frameIndex,
	}
	probeParams := GPUProbeParams{
		SelectedCount: uint32(len(probes)),
		ProbeCount:    uint32(data.ProbeCount()),
		FrameIndex:    s.frameIndex,
	}
	writes := []struct {
		id   BufferID
		data []byte
	}{
		{BufferLights, light.MarshalLightBuffer(in.Lights, in.SkyColor)},
		{BufferSelectedBricks, MarshalIndices(bricks)},
		{BufferSelectedProbes, MarshalIndices(probes)},
		{BufferBrickParams, brickParams.Marshal()},
		{BufferProbeParams, probeParams.Marshal()},
	}
	for _, w := range writes {
		if err := s.write(w.id, w.data); err != nil {
			return err
		}
	}

	if err := s.backend.DispatchBrickPass(uint32(len(bricks))); err != nil {
		return fmt.Errorf("failed to dispatch brick pass: %w", err)
	}
	if err := s.backend.DispatchProbePass(uint32(len(probes))); err != nil {
		return fmt.Errorf("failed to dispatch probe pass: %w", err)
	}
	if err := s.backend.EndFrame(); err != nil {
		return fmt.Errorf("failed to submit relight frame: %w", err)
	}
	return nil
}

func (s *schedulerImpl) write(id BufferID, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := s.backend.WriteBuffer(id, 0, data); err != nil {
		return fmt.Errorf("failed to write %s buffer: %w", id, err)
	}
	return nil
}

// resolveProbes applies adjustment volumes to the baked validity and derives each probe's intensity scale.
// Adjustments are resolved at the lattice position, as during the bake, so a virtual offset never moves a probe
// into or out of a volume.
func (s *schedulerImpl) resolveProbes(data *cell.Data, vol volume.Volume) ([]byte, []byte) {
	n := data.ProbeCount()
	probes := vol.Probes()
	positions := make([]mgl32.Vec3, n)
	for i := 0; i < n && i < len(probes); i++ {
		positions[i] = probes[i].Position()
	}

	validity := make([]float32, n)
	intensity := make([]float32, n)
	for i := 0; i < n; i++ {
		ov := adjustment.NoOverrides()
		if s.registry != nil && i < len(probes) {
			ov = s.registry.Resolve(probes[i].Base)
		}
		if i < len(data.Validity) && !ov.Invalidate {
			validity[i] = data.Validity[i]
		}
		intensity[i] = ov.IntensityScale
	}
	return MarshalFloats(validity), MarshalProbePositions(positions, intensity)
}

// voxelSize is the brick edge length of the baked cell, or the finest lattice spacing for cells baked without one.
func voxelSize(vol volume.Volume, data *cell.Data) float32 {
	if data.BrickSize > 0 {
		return data.BrickSize
	}
	sp := vol.Grid().Spacing
	return math32.Min(sp[0], math32.Min(sp[1], sp[2]))
}

func (s *schedulerImpl) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release()
	s.voxelSize = 0
}

func (s *schedulerImpl) release() {
	s.backend.ReleaseBuffers()
	s.sizes = [BufferCount]int{}
	s.uploaded = false
	s.uploadedVolume = nil
	s.uploadedCell = nil
	s.localValid = false
	s.localVolume = nil
}

func (s *schedulerImpl) VoxelSize() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voxelSize
}

func (s *schedulerImpl) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *schedulerImpl) LocalProbes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.localProbes...)
}
