package bake

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Carmen-Shannon/oxy-prt/common"
)

// Default bake parameters, applied to zero-valued Settings fields.
const (
	DefaultBrickSize       = float32(4)
	DefaultMergeStep       = float32(0.1)
	DefaultSearchDistance  = float32(1)
	DefaultGeometryBias    = float32(0.01)
	DefaultRayOriginBias   = float32(0.001)
	DefaultDistanceEpsilon = float32(1e-4)
	DefaultAngleEpsilon    = float32(1e-4)
	DefaultReclaimInterval = 20
	DefaultSampleCount     = 256
	DefaultMaxDistance     = float32(100)
)

// Settings are the tunables of one bake. They load from JSON; any field left at zero takes its default.
type Settings struct {
	BrickSize float32 `json:"brickSize,omitempty"`
	MergeStep float32 `json:"mergeStep,omitempty"`

	// DisableVirtualOffset skips offset placement; probes are sampled at their lattice positions.
	DisableVirtualOffset bool    `json:"disableVirtualOffset,omitempty"`
	SearchDistance       float32 `json:"searchDistance,omitempty"`
	GeometryBias         float32 `json:"geometryBias,omitempty"`
	RayOriginBias        float32 `json:"rayOriginBias,omitempty"`
	DistanceEpsilon      float32 `json:"distanceEpsilon,omitempty"`
	AngleEpsilon         float32 `json:"angleEpsilon,omitempty"`

	// ReclaimInterval is the number of probes between forced memory reclamation passes.
	ReclaimInterval int `json:"reclaimInterval,omitempty"`

	// SampleCount and MaxDistance configure the scene sampler.
	SampleCount int     `json:"sampleCount,omitempty"`
	MaxDistance float32 `json:"maxDistance,omitempty"`
}

// DefaultSettings returns Settings with every default applied.
func DefaultSettings() Settings {
	return Settings{}.WithDefaults()
}

// WithDefaults returns a copy of s with zero fields replaced by their defaults.
//
// Returns:
//   - Settings: the completed settings
func (s Settings) WithDefaults() Settings {
	s.BrickSize = common.Coalesce(s.BrickSize, DefaultBrickSize)
	s.MergeStep = common.Coalesce(s.MergeStep, DefaultMergeStep)
	s.SearchDistance = common.Coalesce(s.SearchDistance, DefaultSearchDistance)
	s.GeometryBias = common.Coalesce(s.GeometryBias, DefaultGeometryBias)
	s.RayOriginBias = common.Coalesce(s.RayOriginBias, DefaultRayOriginBias)
	s.DistanceEpsilon = common.Coalesce(s.DistanceEpsilon, DefaultDistanceEpsilon)
	s.AngleEpsilon = common.Coalesce(s.AngleEpsilon, DefaultAngleEpsilon)
	s.ReclaimInterval = common.Coalesce(s.ReclaimInterval, DefaultReclaimInterval)
	s.SampleCount = common.Coalesce(s.SampleCount, DefaultSampleCount)
	s.MaxDistance = common.Coalesce(s.MaxDistance, DefaultMaxDistance)
	return s
}

// Validate rejects settings that cannot produce a bake.
//
// Returns:
//   - error: nil when usable
func (s Settings) Validate() error {
	switch {
	case s.BrickSize <= 0:
		return fmt.Errorf("brickSize must be positive, got %f", s.BrickSize)
	case s.MergeStep <= 0:
		return fmt.Errorf("mergeStep must be positive, got %f", s.MergeStep)
	case s.SearchDistance <= 0:
		return fmt.Errorf("searchDistance must be positive, got %f", s.SearchDistance)
	case s.ReclaimInterval < 0:
		return fmt.Errorf("reclaimInterval must not be negative, got %d", s.ReclaimInterval)
	case s.SampleCount < 0:
		return fmt.Errorf("sampleCount must not be negative, got %d", s.SampleCount)
	}
	return nil
}

// LoadSettings reads Settings from a JSON file and fills defaults.
//
// Parameters:
//   - path: JSON file path
//
// Returns:
//   - Settings: the loaded settings
//   - error: read, parse, or validation error
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read bake settings: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse bake settings %s: %w", path, err)
	}
	s = s.WithDefaults()
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid bake settings %s: %w", path, err)
	}
	return s, nil
}
