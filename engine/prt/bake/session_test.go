package bake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-prt/engine/prt/adjustment"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/probe"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/raycast"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/surfel"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/volume"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// floorGenerator returns a small patch of upward-facing floor below each probe.
type floorGenerator struct {
	mu        sync.Mutex
	positions []mgl32.Vec3
	statuses  []string
	fractions []float32
	failAt    int
}

func (g *floorGenerator) Generate(position mgl32.Vec3) ([]surfel.Surfel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failAt > 0 && len(g.positions)+1 == g.failAt {
		return nil, errors.New("scene unavailable")
	}
	g.positions = append(g.positions, position)
	base := mgl32.Vec3{position[0], 0, position[2]}
	return []surfel.Surfel{
		{Position: base, Normal: mgl32.Vec3{0, 1, 0}, Albedo: mgl32.Vec3{0.5, 0.5, 0.5}},
		{Position: base.Add(mgl32.Vec3{0.5, 0, 0}), Normal: mgl32.Vec3{0, 1, 0}, Albedo: mgl32.Vec3{0.5, 0.5, 0.5}},
	}, nil
}

func (g *floorGenerator) Progress(status string, fraction float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses = append(g.statuses, status)
	g.fractions = append(g.fractions, fraction)
}

// captureLogger records formatted log lines.
type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *captureLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func newBakeVolume(t *testing.T, dims [3]int) volume.Volume {
	t.Helper()
	v, err := volume.NewVolume("bake-test", volume.WithGrid(probe.Grid{
		Dims:    dims,
		Spacing: mgl32.Vec3{2, 2, 2},
		Origin:  mgl32.Vec3{0, 1, 0},
	}))
	if err != nil {
		t.Fatalf("NewVolume failed: %v", err)
	}
	return v
}

func TestSession_RunCommits(t *testing.T) {
	gate := volume.NewBakeGate()
	vol := newBakeVolume(t, [3]int{2, 2, 2})
	gen := &floorGenerator{}
	var updates []Progress

	s, err := Begin(vol, gen,
		WithGate(gate),
		WithLogger(&captureLogger{}),
		WithProgressFunc(func(p Progress) { updates = append(updates, p) }),
	)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if vol.State() != volume.StateBaking || !gate.Busy() {
		t.Fatalf("Expected volume baking behind a busy gate, got %s", vol.State())
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if vol.State() != volume.StateBakedIdle || gate.Busy() {
		t.Fatalf("Expected committed bake and free gate, got %s", vol.State())
	}
	d := vol.Cell()
	if d == nil || d.ProbeCount() != 8 {
		t.Fatalf("Expected 8 baked probes, got %+v", d)
	}
	if err := d.Validate(); err != nil {
		t.Errorf("Expected valid cell, got %v", err)
	}
	for i, v := range d.Validity {
		if v != 1 {
			t.Errorf("Probe %d validity %f", i, v)
		}
	}
	if vol.Asset().VirtualOffsets != nil {
		t.Error("Expected no virtual offsets without a ray caster")
	}

	if len(gen.positions) != 8 {
		t.Errorf("Expected 8 generator calls, got %d", len(gen.positions))
	}
	if len(updates) != 9 || updates[7].Index != 8 || updates[8].Status != "Bake complete" {
		t.Errorf("Unexpected progress updates %+v", updates)
	}
	if last := gen.fractions[len(gen.fractions)-1]; last != 1 {
		t.Errorf("Expected generator progress to reach 1, got %f", last)
	}

	var received int
	for range s.Progress() {
		received++
	}
	if received != 9 {
		t.Errorf("Expected 9 buffered progress updates before close, got %d", received)
	}

	if done, err := s.Step(context.Background()); !done || !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed, got %v %v", done, err)
	}
}

func TestSession_CancellationCommitsNothing(t *testing.T) {
	gate := volume.NewBakeGate()
	vol := newBakeVolume(t, [3]int{4, 1, 1})
	gen := &floorGenerator{}

	s, err := Begin(vol, gen, WithGate(gate), WithLogger(&captureLogger{}))
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 2; i++ {
		if done, err := s.Step(ctx); done || err != nil {
			t.Fatalf("Step %d: unexpected done=%v err=%v", i, done, err)
		}
	}
	cancel()

	done, err := s.Step(ctx)
	if !done || !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected cancellation, got done=%v err=%v", done, err)
	}
	if len(gen.positions) != 2 {
		t.Errorf("Expected no sampling after cancel, got %d calls", len(gen.positions))
	}
	if vol.State() != volume.StateUnbaked || vol.Asset() != nil || gate.Busy() {
		t.Errorf("Expected nothing published and gate released, got %s", vol.State())
	}
	if _, err := s.Step(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed after cancel, got %v", err)
	}
}

func TestSession_CancelKeepsPreviousBake(t *testing.T) {
	gate := volume.NewBakeGate()
	vol := newBakeVolume(t, [3]int{2, 1, 1})

	first, err := Begin(vol, &floorGenerator{}, WithGate(gate), WithLogger(&captureLogger{}))
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := first.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	published := vol.Cell()

	second, err := Begin(vol, &floorGenerator{}, WithGate(gate), WithLogger(&captureLogger{}))
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	second.Cancel()

	if vol.State() != volume.StateBakedIdle || vol.Cell() != published {
		t.Errorf("Expected previous bake to stay published, got %s", vol.State())
	}
}

func TestSession_GateRejectsSecondBake(t *testing.T) {
	gate := volume.NewBakeGate()
	a := newBakeVolume(t, [3]int{1, 1, 1})
	b := newBakeVolume(t, [3]int{1, 1, 1})

	s, err := Begin(a, &floorGenerator{}, WithGate(gate), WithLogger(&captureLogger{}))
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := Begin(b, &floorGenerator{}, WithGate(gate), WithLogger(&captureLogger{})); !errors.Is(err, volume.ErrBakeInProgress) {
		t.Errorf("Expected ErrBakeInProgress, got %v", err)
	}
	s.Cancel()
	if _, err := Begin(b, &floorGenerator{}, WithGate(gate), WithLogger(&captureLogger{})); err != nil {
		t.Errorf("Expected bake to be admitted after cancel, got %v", err)
	}
}

func TestSession_GeneratorErrorAborts(t *testing.T) {
	gate := volume.NewBakeGate()
	vol := newBakeVolume(t, [3]int{3, 1, 1})

	s, err := Begin(vol, &floorGenerator{failAt: 2}, WithGate(gate), WithLogger(&captureLogger{}))
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := s.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "probe 1") {
		t.Fatalf("Expected sampling error for probe 1, got %v", err)
	}
	if vol.State() != volume.StateUnbaked || gate.Busy() {
		t.Errorf("Expected aborted bake, got %s", vol.State())
	}
}

func TestSession_InvalidatedProbesAreBlackAndSkipped(t *testing.T) {
	gate := volume.NewBakeGate()
	vol := newBakeVolume(t, [3]int{3, 1, 1})
	reg := adjustment.NewRegistry()
	if _, err := reg.Register(adjustment.Sphere(mgl32.Vec3{2, 1, 0}, 0.5, adjustment.ModeInvalidate)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	gen := &floorGenerator{}

	s, err := Begin(vol, gen, WithGate(gate), WithRegistry(reg), WithLogger(&captureLogger{}))
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	d := vol.Cell()
	if d.Validity[1] != 0 || d.Validity[0] != 1 || d.Validity[2] != 1 {
		t.Errorf("Expected probe 1 invalidated, got %v", d.Validity)
	}
	if !d.Probes[1].Empty() {
		t.Errorf("Expected invalidated probe without factors, got %+v", d.Probes[1])
	}
	if len(gen.positions) != 2 {
		t.Errorf("Expected invalidated probe skipped, got %d generator calls", len(gen.positions))
	}
}

func TestSession_VirtualOffsetsPublished(t *testing.T) {
	gate := volume.NewBakeGate()
	vol := newBakeVolume(t, [3]int{2, 1, 1})

	// probe 0 sits at (0,1,0), inside a crate whose +X face is 0.2 away
	scene := raycast.NewScene()
	scene.AddBox(mgl32.Vec3{-1, 0.3, -0.7}, mgl32.Vec3{0.2, 1.6, 0.9}, mgl32.Vec3{1, 1, 1})

	s, err := Begin(vol, &floorGenerator{}, WithGate(gate), WithRayCaster(scene), WithLogger(&captureLogger{}))
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	offsets := vol.Asset().VirtualOffsets
	if len(offsets) != 2 {
		t.Fatalf("Expected 2 virtual offsets, got %v", offsets)
	}
	if offsets[0][0] <= 0.2 || offsets[1] != (mgl32.Vec3{}) {
		t.Errorf("Expected only probe 0 pushed along +X, got %v", offsets)
	}
	if pos := vol.ProbePositions()[0]; pos[0] <= 0.2 {
		t.Errorf("Expected published probe position outside the crate, got %v", pos)
	}
}

func TestSession_StartWaitAndReclaim(t *testing.T) {
	gate := volume.NewBakeGate()
	vol := newBakeVolume(t, [3]int{5, 1, 1})
	logger := &captureLogger{}

	s, err := Begin(vol, &floorGenerator{}, WithGate(gate), WithLogger(logger), WithSettings(Settings{ReclaimInterval: 2}))
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted, got %v", err)
	}

	waited := make(chan error, 1)
	go func() { waited <- s.Wait() }()
	select {
	case err := <-waited:
		if err != nil {
			t.Fatalf("Wait returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Timeout waiting for background bake")
	}

	if vol.State() != volume.StateBakedIdle || s.Completed() != 5 {
		t.Errorf("Expected finished bake, got %s after %d probes", vol.State(), s.Completed())
	}
	if !logger.contains("reclaimed after 2 probes") || !logger.contains("reclaimed after 4 probes") {
		t.Errorf("Expected reclamation every 2 probes, got %v", logger.lines)
	}
}

func TestBegin_RejectsBadInput(t *testing.T) {
	vol := newBakeVolume(t, [3]int{1, 1, 1})
	if _, err := Begin(vol, nil); err == nil {
		t.Error("Expected error for nil generator")
	}
	if _, err := Begin(vol, &floorGenerator{}, WithGate(volume.NewBakeGate()), WithSettings(Settings{ReclaimInterval: -1})); err == nil {
		t.Error("Expected error for negative reclaim interval")
	}
	if vol.State() != volume.StateUnbaked {
		t.Errorf("Expected rejected Begin to leave the volume alone, got %s", vol.State())
	}
}

func TestSceneSampler(t *testing.T) {
	scene := raycast.NewScene()
	scene.AddBox(mgl32.Vec3{-10, -2, -10}, mgl32.Vec3{10, -1, 10}, mgl32.Vec3{0.2, 0.4, 0.6})
	logger := &captureLogger{}
	sampler := NewSceneSampler(scene, 64, 50, logger)

	samples, err := sampler.Generate(mgl32.Vec3{0.1, 0, 0.2})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(samples) != 64 {
		t.Fatalf("Expected 64 samples, got %d", len(samples))
	}

	var sky, solid int
	for _, s := range samples {
		if s.SkyMask == 1 {
			sky++
			if math32.Abs(s.Position.Sub(mgl32.Vec3{0.1, 0, 0.2}).Len()-50) > 1e-3 {
				t.Errorf("Expected sky surfel at max distance, got %v", s.Position)
			}
			continue
		}
		solid++
		if s.Normal[1] <= 0 || s.Albedo != (mgl32.Vec3{0.2, 0.4, 0.6}) {
			t.Errorf("Expected floor surfel facing the probe, got %+v", s)
		}
	}
	if sky == 0 || solid == 0 {
		t.Errorf("Expected both sky and floor samples, got %d sky and %d solid", sky, solid)
	}

	sampler.Progress("Sampling", 0.05)
	sampler.Progress("Sampling", 0.07)
	sampler.Progress("Sampling", 0.55)
	if len(logger.lines) != 2 {
		t.Errorf("Expected one log line per decile, got %v", logger.lines)
	}
}

func TestFibonacciSphere(t *testing.T) {
	dirs := FibonacciSphere(100)
	var sum mgl32.Vec3
	for _, d := range dirs {
		if math32.Abs(d.Len()-1) > 1e-5 {
			t.Fatalf("Direction %v is not unit length", d)
		}
		sum = sum.Add(d)
	}
	if sum.Len()/100 > 0.05 {
		t.Errorf("Expected near-uniform directions, mean length %f", sum.Len()/100)
	}
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "bake.json")
	if err := os.WriteFile(path, []byte(`{"brickSize": 2, "disableVirtualOffset": true, "reclaimInterval": 5}`), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if s.BrickSize != 2 || !s.DisableVirtualOffset || s.ReclaimInterval != 5 {
		t.Errorf("Expected file values, got %+v", s)
	}
	if s.MergeStep != DefaultMergeStep || s.SearchDistance != DefaultSearchDistance || s.SampleCount != DefaultSampleCount {
		t.Errorf("Expected defaults for missing fields, got %+v", s)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"brickSize": -1}`), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := LoadSettings(bad); err == nil {
		t.Error("Expected validation error for negative brick size")
	}

	broken := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(broken, []byte(`{`), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := LoadSettings(broken); err == nil {
		t.Error("Expected parse error")
	}
	if _, err := LoadSettings(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Expected read error")
	}
}
