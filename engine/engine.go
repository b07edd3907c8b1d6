// Package engine runs the relight host loop: a fixed-rate tick for application logic and a frame loop that relights
// every active scene and, when a window is attached, presents the sky color of the first one.
package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-prt/common"
	"github.com/Carmen-Shannon/oxy-prt/engine/profiler"
	"github.com/Carmen-Shannon/oxy-prt/engine/renderer"
	"github.com/Carmen-Shannon/oxy-prt/engine/scene"
	"github.com/Carmen-Shannon/oxy-prt/engine/window"
)

// engine implements the Engine interface.
// Coordinates the tick, frame, and window threads.
type engine struct {
	mu sync.RWMutex

	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	window   window.Window
	renderer renderer.Renderer
	logger   common.Logger

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	scenes    map[int]scene.Scene
	lastError map[int]string // last logged relight error per scene key

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
}

// Engine is the main entry point of a relight host.
// It orchestrates the tick loop, the frame loop, and window management.
type Engine interface {
	// Window returns the attached window, or nil for a headless engine.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Renderer returns the attached renderer, or nil.
	//
	// Returns:
	//   - renderer.Renderer: the renderer instance
	Renderer() renderer.Renderer

	// Profiler returns the engine profiler. Pass it to relight.WithProfiler to log relight throughput.
	//
	// Returns:
	//   - *profiler.Profiler: the profiler
	Profiler() *profiler.Profiler

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for application logic.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called at the end of each frame, after every active scene
	// has been relit.
	//
	// Parameters:
	//   - callback: function to call each frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit caps the frame loop rate.
	//
	// Parameters:
	//   - fps: maximum frames per second; 0 or less removes the cap
	SetRenderFrameLimit(fps float64)

	// AddScene adds or replaces the scene stored under key. Scenes are relit in ascending key order.
	//
	// Parameters:
	//   - key: the scene key
	//   - s: the scene
	AddScene(key int, s scene.Scene)

	// RemoveScene removes the scene stored under key without releasing it.
	//
	// Parameters:
	//   - key: the scene key
	RemoveScene(key int)

	// Scene returns the scene stored under key, or nil.
	Scene(key int) scene.Scene

	// Scenes returns a copy of the scene map.
	Scenes() map[int]scene.Scene

	// Run starts the tick and frame loops and blocks. With a window it runs the message loop on the calling
	// goroutine and returns when the window closes; headless it returns after Quit.
	Run()

	// Quit stops both loops. Safe to call more than once and from any goroutine.
	Quit()
}

var _ Engine = &engine{}

// NewEngine creates a new Engine with the specified options.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the configured engine (not yet running)
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		scenes:          make(map[int]scene.Scene),
		lastError:       make(map[int]string),
		logger:          common.DefaultLogger(),
		engineTickRate:  time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(profiler.WithLogger(e.logger))
	}

	if e.window != nil {
		e.window.SetResizeCallback(func(width, height int) {
			if e.renderer == nil {
				return
			}
			if err := e.renderer.Resize(width, height); err != nil {
				e.logger.Printf("[Engine] resize to %dx%d failed: %v\n", width, height, err)
			}
		})
	}

	return e
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

func (e *engine) Run() {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	e.handle()
	if e.window != nil {
		e.window.ProcessMessages()
		e.signalQuit()
	}
	e.wg.Wait()

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel exactly once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()
}

// handleEngine runs the fixed-rate tick loop.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the frame loop until quit.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Printf("[Engine] frame loop recovered from panic: %v\n", r)
			e.signalQuit()
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		active := e.activeScenes()
		for _, ks := range active {
			_, err := ks.scene.Relight()
			e.reportError(ks.key, ks.scene.Name(), err)
		}

		if e.window != nil && e.renderer != nil && len(active) > 0 {
			if err := e.renderer.Clear(active[0].scene.SkyColor()); err != nil {
				e.reportError(-1, "surface", err)
			}
		}

		if e.renderCallback != nil {
			e.renderCallback(dt)
		}

		e.mu.RLock()
		profiling := e.profilingEnabled
		limit := e.renderFrameLimit
		e.mu.RUnlock()
		if profiling {
			e.profiler.Tick()
		}

		if limit > 0 {
			if remaining := limit - time.Since(now); remaining > 0 {
				select {
				case <-e.quitChannel:
					return
				case <-time.After(remaining):
				}
			}
		}
	}
}

type keyedScene struct {
	key   int
	scene scene.Scene
}

// activeScenes returns the active scenes in ascending key order.
func (e *engine) activeScenes() []keyedScene {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]keyedScene, 0, len(e.scenes))
	for k, s := range e.scenes {
		if s.Active() {
			out = append(out, keyedScene{key: k, scene: s})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// reportError logs err when it differs from the last error logged for key, and notes recovery.
func (e *engine) reportError(key int, name string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	last, failing := e.lastError[key]
	switch {
	case err == nil && failing:
		delete(e.lastError, key)
		e.logger.Printf("[Engine] %s recovered\n", name)
	case err != nil && err.Error() != last:
		e.lastError[key] = err.Error()
		e.logger.Printf("[Engine] %s: %v\n", name, err)
	}
}

func (e *engine) EnableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = true
}

func (e *engine) DisableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = false
}

func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()

	if !running {
		e.engineTickRate = newRate
		return
	}
	// Replace any pending rate with the newest one.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderFrameLimit = frameDuration(fps)
}

// frameDuration converts a rate cap to a minimum frame duration; 0 means uncapped.
func frameDuration(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}

func (e *engine) AddScene(key int, s scene.Scene) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scenes[key] = s
}

func (e *engine) RemoveScene(key int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.scenes, key)
	delete(e.lastError, key)
}

func (e *engine) Scene(key int) scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scenes[key]
}

func (e *engine) Scenes() map[int]scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cp := make(map[int]scene.Scene, len(e.scenes))
	for k, v := range e.scenes {
		cp[k] = v
	}
	return cp
}
