package scene

import (
	"github.com/Carmen-Shannon/oxy-prt/engine/light"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/volume"
	"github.com/go-gl/mathgl/mgl32"
)

// SceneBuilderOption is a functional option applied to a scene during construction via NewScene.
type SceneBuilderOption func(s *scene)

// WithActive sets whether the engine relights the scene from its first frame.
//
// Parameters:
//   - active: true to relight immediately
//
// Returns:
//   - SceneBuilderOption: a function that applies the active option to a scene
func WithActive(active bool) SceneBuilderOption {
	return func(s *scene) {
		s.active = active
	}
}

// WithVolume sets the probe volume to relight.
//
// Parameters:
//   - v: the probe volume
//
// Returns:
//   - SceneBuilderOption: a function that applies the volume option to a scene
func WithVolume(v volume.Volume) SceneBuilderOption {
	return func(s *scene) {
		s.vol = v
	}
}

// WithLights adds lights to the scene. Nil and duplicate lights are ignored.
//
// Parameters:
//   - lights: the lights to add
//
// Returns:
//   - SceneBuilderOption: a function that applies the lights option to a scene
func WithLights(lights ...light.Light) SceneBuilderOption {
	return func(s *scene) {
		for _, l := range lights {
			s.AddLight(l)
		}
	}
}

// WithSkyColor sets the sky radiance.
//
// Parameters:
//   - color: linear RGB
//
// Returns:
//   - SceneBuilderOption: a function that applies the sky color option to a scene
func WithSkyColor(color [3]float32) SceneBuilderOption {
	return func(s *scene) {
		s.skyColor = color
	}
}

// WithViewpoint sets the initial viewpoint.
//
// Parameters:
//   - p: world position
//
// Returns:
//   - SceneBuilderOption: a function that applies the viewpoint option to a scene
func WithViewpoint(p mgl32.Vec3) SceneBuilderOption {
	return func(s *scene) {
		s.viewpoint = p
	}
}
