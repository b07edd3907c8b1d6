// Package scene groups what one relight loop needs per frame: the probe volume being lit, its lights and sky,
// the viewpoint that drives local probe selection, and the scheduler that dispatches the work.
package scene

import (
	"errors"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-prt/engine/light"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/relight"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/volume"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrReleased is returned by Relight after Release.
var ErrReleased = errors.New("scene released")

// Scene holds the per-frame relight inputs of one probe volume.
// A Scene is safe for concurrent use: hosts mutate lights and the viewpoint from input handlers while the
// engine relights from its frame loop.
type Scene interface {
	// Name returns the scene name used in logs.
	Name() string

	// Active reports whether the engine relights this scene.
	Active() bool

	// SetActive enables or disables relighting.
	//
	// Parameters:
	//   - active: true to relight every engine frame
	SetActive(active bool)

	// Volume returns the probe volume being relit, or nil.
	Volume() volume.Volume

	// SetVolume replaces the probe volume. The scheduler re-uploads on the next frame.
	//
	// Parameters:
	//   - v: the new volume, nil to disable global illumination
	SetVolume(v volume.Volume)

	// AddLight adds a light to the scene. Adding a light twice is a no-op.
	//
	// Parameters:
	//   - l: the light to add
	AddLight(l light.Light)

	// RemoveLight removes a light from the scene.
	//
	// Parameters:
	//   - l: the light to remove
	RemoveLight(l light.Light)

	// Lights returns a copy of the scene lights.
	//
	// Returns:
	//   - []light.Light: the lights in insertion order
	Lights() []light.Light

	// SkyColor returns the linear sky radiance lighting the surfels' sky mask.
	SkyColor() [3]float32

	// SetSkyColor sets the sky radiance.
	//
	// Parameters:
	//   - color: linear RGB
	SetSkyColor(color [3]float32)

	// Viewpoint returns the position the local probe set is centered on.
	Viewpoint() mgl32.Vec3

	// SetViewpoint moves the viewpoint.
	//
	// Parameters:
	//   - p: world position
	SetViewpoint(p mgl32.Vec3)

	// LightingActive reports whether runtime lighting is enabled.
	LightingActive() bool

	// SetLightingActive toggles runtime lighting. While inactive, frames are skipped.
	//
	// Parameters:
	//   - active: the new state
	SetLightingActive(active bool)

	// SetSampleProbeVolumes toggles probe volume sampling. While disabled, frames are skipped.
	//
	// Parameters:
	//   - enabled: the new state
	SetSampleProbeVolumes(enabled bool)

	// Scheduler returns the relight scheduler of this scene.
	Scheduler() relight.Scheduler

	// Relight runs one relight frame with the current inputs.
	//
	// Returns:
	//   - relight.FrameResult: what the frame did
	//   - error: the scheduler error, or ErrReleased
	Relight() (relight.FrameResult, error)

	// LastResult returns the result of the last Relight call.
	LastResult() relight.FrameResult

	// Release frees the scheduler's GPU buffers. Later Relight calls fail with ErrReleased.
	Release()
}

// scene is the implementation of the Scene interface.
type scene struct {
	mu sync.RWMutex

	name   string
	active bool

	vol        volume.Volume
	lights     []light.Light
	skyColor   [3]float32
	viewpoint  mgl32.Vec3
	lighting   bool
	sampling   bool
	scheduler  relight.Scheduler
	lastResult relight.FrameResult
	released   bool
}

var _ Scene = &scene{}

// NewScene creates a Scene relit by the given scheduler. Scenes start inactive with lighting and probe volume
// sampling enabled.
//
// Parameters:
//   - name: the scene name
//   - scheduler: the relight scheduler; required
//   - options: variadic list of SceneBuilderOption functions
//
// Returns:
//   - Scene: the new scene
func NewScene(name string, scheduler relight.Scheduler, options ...SceneBuilderOption) Scene {
	if scheduler == nil {
		panic("scene: NewScene requires a non-nil Scheduler")
	}
	s := &scene{
		name:      name,
		scheduler: scheduler,
		lighting:  true,
		sampling:  true,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) Volume() volume.Volume {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vol
}

func (s *scene) SetVolume(v volume.Volume) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vol = v
}

func (s *scene) AddLight(l light.Light) {
	if l == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.lights, l) {
		return
	}
	s.lights = append(s.lights, l)
}

func (s *scene) RemoveLight(l light.Light) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.lights, l); i >= 0 {
		s.lights = slices.Delete(s.lights, i, i+1)
	}
}

func (s *scene) Lights() []light.Light {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.lights)
}

func (s *scene) SkyColor() [3]float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.skyColor
}

func (s *scene) SetSkyColor(color [3]float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skyColor = color
}

func (s *scene) Viewpoint() mgl32.Vec3 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewpoint
}

func (s *scene) SetViewpoint(p mgl32.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewpoint = p
}

func (s *scene) LightingActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lighting
}

func (s *scene) SetLightingActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lighting = active
}

func (s *scene) SetSampleProbeVolumes(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampling = enabled
}

func (s *scene) Scheduler() relight.Scheduler {
	return s.scheduler
}

// frameInput snapshots the current inputs.
func (s *scene) frameInput() (relight.FrameInput, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return relight.FrameInput{
		Volume:             s.vol,
		Viewpoint:          s.viewpoint,
		LightingActive:     s.lighting,
		SampleProbeVolumes: s.sampling,
		Lights:             slices.Clone(s.lights),
		SkyColor:           s.skyColor,
	}, s.released
}

func (s *scene) Relight() (relight.FrameResult, error) {
	in, released := s.frameInput()
	if released {
		return relight.FrameResult{}, ErrReleased
	}
	res, err := s.scheduler.Frame(in)

	s.mu.Lock()
	s.lastResult = res
	s.mu.Unlock()
	return res, err
}

func (s *scene) LastResult() relight.FrameResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult
}

func (s *scene) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	s.active = false
	s.mu.Unlock()
	s.scheduler.Release()
}
