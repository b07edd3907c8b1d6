// Package bake drives probe volume baking: virtual offset placement, sequential per-probe sampling into a surfel
// grid, cooperative cancellation, and publication of the finished cell through the volume's bake token.
package bake

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-prt/common"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/adjustment"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/cell"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/probe"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/surfel"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/volume"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/shirou/gopsutil/v3/mem"
)

var (
	// ErrSessionClosed is returned by Step once the session has committed, failed, or been cancelled.
	ErrSessionClosed = errors.New("bake session closed")

	// ErrAlreadyStarted is returned by Start when the session already runs in the background.
	ErrAlreadyStarted = errors.New("bake session already started")
)

// progressBuffer is the capacity of the progress channel. Updates are dropped rather than blocking the bake.
const progressBuffer = 64

// Progress is one progress update, emitted after every probe.
type Progress struct {
	Index  int
	Total  int
	Status string
}

// Fraction returns Index/Total, or 1 for an empty bake.
func (p Progress) Fraction() float32 {
	if p.Total == 0 {
		return 1
	}
	return float32(p.Index) / float32(p.Total)
}

// Session bakes one volume, one probe per Step. It owns the volume's bake token for its whole lifetime: either the
// last Step commits the finished cell, or a failure or cancellation aborts and nothing is published.
//
// At most one probe is ever in flight; Step serializes on the session mutex.
type Session struct {
	mu sync.Mutex

	token     *volume.BakeToken
	generator SampleGenerator
	placer    *OffsetPlacer
	registry  adjustment.Registry
	settings  Settings
	logger    common.Logger

	gate       *volume.BakeGate
	caster     RayCaster
	onProgress func(Progress)

	grid     surfel.Grid
	probes   []probe.Probe
	validity []float32
	next     int
	closed   bool

	progress  chan Progress
	closeOnce sync.Once

	started bool
	done    chan struct{}
	runErr  error
}

// Begin acquires the bake gate for vol and prepares a session. Probes start from their lattice positions; any
// previous virtual offsets are recomputed.
//
// Parameters:
//   - vol: the volume to bake
//   - generator: the sample source
//   - opts: optional builder options
//
// Returns:
//   - *Session: the session, holding the bake token
//   - error: settings validation error or volume.ErrBakeInProgress
func Begin(vol volume.Volume, generator SampleGenerator, opts ...SessionBuilderOption) (*Session, error) {
	if generator == nil {
		return nil, errors.New("bake session requires a sample generator")
	}
	s := &Session{
		generator: generator,
		settings:  DefaultSettings(),
		logger:    common.DefaultLogger(),
		gate:      volume.DefaultGate(),
		progress:  make(chan Progress, progressBuffer),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.settings = s.settings.WithDefaults()
	if err := s.settings.Validate(); err != nil {
		return nil, fmt.Errorf("failed to begin bake: %w", err)
	}

	token, err := s.gate.Acquire(vol)
	if err != nil {
		return nil, err
	}
	s.token = token

	s.probes = vol.Probes()
	for i := range s.probes {
		s.probes[i].VirtualOffset = mgl32.Vec3{}
	}
	s.validity = make([]float32, len(s.probes))
	s.grid = surfel.NewGrid(surfel.WithBrickSize(s.settings.BrickSize), surfel.WithMergeStep(s.settings.MergeStep))
	if s.caster != nil && !s.settings.DisableVirtualOffset {
		s.placer = NewOffsetPlacer(s.caster, s.settings, s.registry)
	}

	s.logger.Printf("[Bake] started %q: %d probes, brick size %.2f", vol.Name(), len(s.probes), s.settings.BrickSize)
	return s, nil
}

// Total returns the number of probes to bake.
func (s *Session) Total() int {
	return len(s.probes)
}

// Completed returns the number of probes sampled so far.
func (s *Session) Completed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Progress returns the buffered progress channel. It is closed when the session ends.
func (s *Session) Progress() <-chan Progress {
	return s.progress
}

// Step samples the next probe. The context is checked before any work; a cancelled context aborts the bake and
// discards everything accumulated so far. After the last probe the cell is generated and committed.
//
// Parameters:
//   - ctx: cancellation signal
//
// Returns:
//   - bool: true when the session has ended (committed, failed, or cancelled)
//   - error: ctx.Err() on cancellation, a generator or commit error, or ErrSessionClosed
func (s *Session) Step(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true, ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		s.abort("cancelled")
		return true, err
	}
	if s.next >= len(s.probes) {
		return true, s.finish()
	}

	i := s.next
	p := &s.probes[i]

	overrides := adjustment.NoOverrides()
	if s.registry != nil {
		overrides = s.registry.Resolve(p.Base)
	}
	if s.placer != nil {
		p.VirtualOffset = s.placer.Place(p.Base).Offset
	}

	if overrides.Invalidate {
		s.validity[i] = 0
	} else {
		samples, err := s.generator.Generate(p.Position())
		if err != nil {
			s.abort("sampling failed")
			return true, fmt.Errorf("failed to sample probe %d: %w", i, err)
		}
		for _, sf := range samples {
			s.grid.AddSurfel(sf, i)
		}
		s.validity[i] = 1
	}
	s.next++

	s.report(Progress{Index: s.next, Total: len(s.probes), Status: fmt.Sprintf("Sampling probe %d/%d", s.next, len(s.probes))})
	if s.settings.ReclaimInterval > 0 && s.next%s.settings.ReclaimInterval == 0 {
		s.reclaim(ctx)
	}

	if s.next == len(s.probes) {
		return true, s.finish()
	}
	return false, nil
}

// Run steps until the session ends.
//
// Parameters:
//   - ctx: cancellation signal, checked before every probe
//
// Returns:
//   - error: the error that ended the session, nil on commit
func (s *Session) Run(ctx context.Context) error {
	for {
		done, err := s.Step(ctx)
		if done {
			return err
		}
	}
}

// Start runs the session on a single background worker. Use Wait for the outcome and Progress for updates.
//
// Parameters:
//   - ctx: cancellation signal
//
// Returns:
//   - error: ErrAlreadyStarted when called twice
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	pool := worker.NewDynamicWorkerPool(1, 1, time.Second)
	pool.SubmitTask(worker.Task{
		ID: 0,
		Do: func() (any, error) {
			defer pool.Stop()
			err := s.Run(ctx)
			s.runErr = err
			close(s.done)
			return nil, err
		},
	})
	return nil
}

// Wait blocks until a session started with Start ends.
//
// Returns:
//   - error: the error that ended the session, nil on commit
func (s *Session) Wait() error {
	<-s.done
	return s.runErr
}

// Cancel aborts the session immediately if it has not ended. Safe to call at any time, including concurrently
// with Start; a probe in flight finishes first.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.abort("cancelled")
	}
}

// finish generates and commits the cell. Callers must hold s.mu.
func (s *Session) finish() error {
	s.closed = true
	positions := probe.Positions(s.probes)
	data, err := s.grid.GenerateCell(positions, s.validity)
	if err != nil {
		s.token.Abort()
		s.release()
		return fmt.Errorf("failed to generate cell: %w", err)
	}

	asset := &cell.Asset{HasValidData: true, Cell: data}
	if s.placer != nil {
		asset.VirtualOffsets = make([]mgl32.Vec3, len(s.probes))
		for i, p := range s.probes {
			asset.VirtualOffsets[i] = p.VirtualOffset
		}
	}
	if err := s.token.Commit(asset); err != nil {
		s.release()
		return fmt.Errorf("failed to commit bake: %w", err)
	}

	s.logger.Printf("[Bake] committed %d probes: %d bricks, %d surfels, %d factors",
		data.ProbeCount(), data.BrickCount(), len(data.Surfels), len(data.Factors))
	s.report(Progress{Index: len(s.probes), Total: len(s.probes), Status: "Bake complete"})
	s.release()
	return nil
}

// abort discards all accumulated state and restores the volume. Callers must hold s.mu.
func (s *Session) abort(reason string) {
	s.closed = true
	s.token.Abort()
	s.logger.Printf("[Bake] aborted after %d/%d probes: %s", s.next, len(s.probes), reason)
	s.release()
}

// release drops the working set and closes the progress channel.
func (s *Session) release() {
	s.grid.Reset()
	s.validity = nil
	s.closeOnce.Do(func() { close(s.progress) })
}

func (s *Session) report(p Progress) {
	if s.onProgress != nil {
		s.onProgress(p)
	}
	s.generator.Progress(p.Status, p.Fraction())
	select {
	case s.progress <- p:
	default:
	}
}

// reclaim forces a full collection, returns freed memory to the OS, and logs the resulting footprint.
func (s *Session) reclaim(ctx context.Context) {
	runtime.GC()
	debug.FreeOSMemory()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		s.logger.Printf("[Bake] reclaimed after %d probes: heap %d MiB", s.next, ms.HeapAlloc>>20)
		return
	}
	s.logger.Printf("[Bake] reclaimed after %d probes: heap %d MiB, system memory %.1f%% used",
		s.next, ms.HeapAlloc>>20, vm.UsedPercent)
}
