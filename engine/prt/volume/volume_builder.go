package volume

import "github.com/Carmen-Shannon/oxy-prt/engine/prt/probe"

// VolumeBuilderOption is a function that configures a Volume during construction.
type VolumeBuilderOption func(*volumeImpl)

// WithGrid is an option builder that sets the probe lattice of the volume.
//
// Parameters:
//   - g: the probe lattice
//
// Returns:
//   - VolumeBuilderOption: a function that applies the lattice to a volumeImpl
func WithGrid(g probe.Grid) VolumeBuilderOption {
	return func(v *volumeImpl) {
		v.grid = g
	}
}
