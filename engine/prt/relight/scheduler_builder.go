package relight

import (
	"github.com/Carmen-Shannon/oxy-prt/common"
	"github.com/Carmen-Shannon/oxy-prt/engine/profiler"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/adjustment"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/volume"
)

// SchedulerBuilderOption is a function that configures a Scheduler during construction.
type SchedulerBuilderOption func(*schedulerImpl)

// WithQuota is an option builder that sets how many probes the round-robin slice advances per frame.
//
// Parameters:
//   - quota: probes per frame, ignored when not positive
//
// Returns:
//   - SchedulerBuilderOption: a function that applies the quota option to a schedulerImpl
func WithQuota(quota int) SchedulerBuilderOption {
	return func(s *schedulerImpl) {
		if quota > 0 {
			s.quota = quota
		}
	}
}

// WithLocalExtent is an option builder that sets the half size of the cached local region around the viewpoint.
// Every probe inside the region is relit each frame.
//
// Parameters:
//   - extent: half size in world units, ignored when negative
//
// Returns:
//   - SchedulerBuilderOption: a function that applies the extent option to a schedulerImpl
func WithLocalExtent(extent float32) SchedulerBuilderOption {
	return func(s *schedulerImpl) {
		if extent >= 0 {
			s.localExtent = extent
		}
	}
}

// WithGate is an option builder that sets the bake gate consulted before every frame. Defaults to
// volume.DefaultGate().
//
// Parameters:
//   - gate: the bake gate
//
// Returns:
//   - SchedulerBuilderOption: a function that applies the gate option to a schedulerImpl
func WithGate(gate *volume.BakeGate) SchedulerBuilderOption {
	return func(s *schedulerImpl) {
		if gate != nil {
			s.gate = gate
		}
	}
}

// WithRegistry is an option builder that sets the adjustment registry supplying invalidation and intensity
// overrides.
//
// Parameters:
//   - registry: the adjustment registry
//
// Returns:
//   - SchedulerBuilderOption: a function that applies the registry option to a schedulerImpl
func WithRegistry(registry adjustment.Registry) SchedulerBuilderOption {
	return func(s *schedulerImpl) {
		s.registry = registry
	}
}

// WithLogger is an option builder that sets the scheduler logger.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - SchedulerBuilderOption: a function that applies the logger option to a schedulerImpl
func WithLogger(logger common.Logger) SchedulerBuilderOption {
	return func(s *schedulerImpl) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithProfiler is an option builder that records every frame into a profiler.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - SchedulerBuilderOption: a function that applies the profiler option to a schedulerImpl
func WithProfiler(p *profiler.Profiler) SchedulerBuilderOption {
	return func(s *schedulerImpl) {
		s.profiler = p
	}
}
