package bake

import (
	"github.com/Carmen-Shannon/oxy-prt/common"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/adjustment"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/volume"
)

// SessionBuilderOption is a function that configures a Session during Begin.
type SessionBuilderOption func(*Session)

// WithSettings is an option builder that sets the bake settings. Zero fields take defaults.
//
// Parameters:
//   - settings: the bake settings
//
// Returns:
//   - SessionBuilderOption: a function that applies the settings to a Session
func WithSettings(settings Settings) SessionBuilderOption {
	return func(s *Session) {
		s.settings = settings
	}
}

// WithRayCaster is an option builder that enables virtual offset placement against the given ray caster.
//
// Parameters:
//   - caster: the ray query backend
//
// Returns:
//   - SessionBuilderOption: a function that applies the ray caster to a Session
func WithRayCaster(caster RayCaster) SessionBuilderOption {
	return func(s *Session) {
		s.caster = caster
	}
}

// WithRegistry is an option builder that sets the adjustment registry consulted for per-probe overrides.
//
// Parameters:
//   - registry: the adjustment registry
//
// Returns:
//   - SessionBuilderOption: a function that applies the registry to a Session
func WithRegistry(registry adjustment.Registry) SessionBuilderOption {
	return func(s *Session) {
		s.registry = registry
	}
}

// WithGate is an option builder that sets the bake gate. Defaults to volume.DefaultGate().
//
// Parameters:
//   - gate: the bake gate
//
// Returns:
//   - SessionBuilderOption: a function that applies the gate to a Session
func WithGate(gate *volume.BakeGate) SessionBuilderOption {
	return func(s *Session) {
		if gate != nil {
			s.gate = gate
		}
	}
}

// WithProgressFunc is an option builder that registers a synchronous progress callback, invoked on the baking
// goroutine after every probe.
//
// Parameters:
//   - fn: the callback
//
// Returns:
//   - SessionBuilderOption: a function that applies the callback to a Session
func WithProgressFunc(fn func(Progress)) SessionBuilderOption {
	return func(s *Session) {
		s.onProgress = fn
	}
}

// WithLogger is an option builder that sets the session logger.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - SessionBuilderOption: a function that applies the logger to a Session
func WithLogger(logger common.Logger) SessionBuilderOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}
