package profiler

import (
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-prt/common"
)

// Profiler tracks frame rate, relight throughput, and memory statistics for performance monitoring.
// Outputs stats to the log at a configurable interval.
//
// A Profiler is safe for concurrent use; the relight scheduler records into it while the host loop ticks it.
type Profiler struct {
	mu sync.Mutex

	logger         common.Logger
	now            func() time.Time
	updateInterval time.Duration

	frameCount     int
	lastTime       time.Time
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	relightFrames   int
	skippedFrames   int
	relitProbes     int
	relitBricks     int
	lastRelightStat Stats
}

// Stats is a snapshot of one logged interval.
type Stats struct {
	FPS           float64
	RelightFrames int
	SkippedFrames int
	Probes        int
	Bricks        int
	HeapMB        float64
}

// NewProfiler creates a new Profiler.
// Update interval defaults to 1 second and output goes to common.DefaultLogger().
//
// Parameters:
//   - opts: optional builder options
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(opts ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		logger:         common.DefaultLogger(),
		now:            time.Now,
		updateInterval: time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.lastTime = p.now()
	return p
}

// RecordRelight accumulates one relight scheduler frame.
//
// Parameters:
//   - dispatched: whether the frame reached the GPU
//   - probes: probes relit by the frame
//   - bricks: bricks relit by the frame
func (p *Profiler) RecordRelight(dispatched bool, probes, bricks int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !dispatched {
		p.skippedFrames++
		return
	}
	p.relightFrames++
	p.relitProbes += probes
	p.relitBricks += bricks
}

// Last returns the statistics of the most recently logged interval.
//
// Returns:
//   - Stats: the snapshot, zero before the first interval elapsed
func (p *Profiler) Last() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRelightStat
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, relit probes and bricks, skipped relight frames, heap usage, allocation rate,
// GC count/pause times, total memory.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frameCount++
	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)

	if elapsed < p.updateInterval || elapsed <= 0 {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	// Alloc: live heap. TotalAlloc: cumulative, tracks churn. Sys: process footprint.
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024

	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 GC pauses
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000

		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			pause := p.memStats.PauseNs[i%256] / 1000
			if pause > maxPauseUs {
				maxPauseUs = pause
			}
		}
	}

	p.logger.Printf("[Profiler] FPS: %.2f | Relight: %d frames, %d skipped, %d probes, %d bricks | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB",
		fps, p.relightFrames, p.skippedFrames, p.relitProbes, p.relitBricks, allocMB, allocRateMB, gcCount, lastPauseUs, maxPauseUs, sysMB)

	p.lastRelightStat = Stats{
		FPS:           fps,
		RelightFrames: p.relightFrames,
		SkippedFrames: p.skippedFrames,
		Probes:        p.relitProbes,
		Bricks:        p.relitBricks,
		HeapMB:        allocMB,
	}

	p.frameCount = 0
	p.relightFrames, p.skippedFrames, p.relitProbes, p.relitBricks = 0, 0, 0, 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
