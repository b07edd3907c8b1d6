// Package cell holds the baked, serializable aggregate produced by the surfel brick builder and consumed by the
// runtime relight scheduler. A published Data value is treated as immutable: producers always build a fresh value
// and consumers only read from it.
package cell

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrInvalidCell is returned (wrapped) by Validate when any range or length in a Data value is inconsistent.
var ErrInvalidCell = errors.New("invalid cell data")

// Surfel is a point sample of a shaded surface. SkyMask is 0 for solid geometry and 1 for a sky/miss sample.
type Surfel struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Albedo   mgl32.Vec3
	SkyMask  float32
}

// SurfelRange is a brick's contiguous [Start, Start+Count) slice of the merged surfel array.
type SurfelRange struct {
	Start int32
	Count int32
}

// BrickFactor is one probe's normalized contribution weight from one brick.
type BrickFactor struct {
	BrickIndex int32
	Weight     float32
}

// FactorRange is a probe's inclusive [Start, End] slice of the factor array.
// An empty range is always encoded as Start == End+1, with Start equal to the factor count at the time the
// probe was emitted, so the first empty probe of a cell is {0, -1}.
type FactorRange struct {
	Start int32
	End   int32
}

// Len returns the number of factors covered by the range.
//
// Returns:
//   - int: End-Start+1, never negative
func (r FactorRange) Len() int {
	n := int(r.End - r.Start + 1)
	if n < 0 {
		return 0
	}
	return n
}

// Empty reports whether the range covers no factors.
//
// Returns:
//   - bool: true when the probe has no contributing bricks
func (r FactorRange) Empty() bool {
	return r.End < r.Start
}

// EmptyFactorRange builds the empty-range sentinel for a probe emitted when the factor array holds offset entries.
//
// Parameters:
//   - offset: current length of the factor array
//
// Returns:
//   - FactorRange: {offset, offset-1}
func EmptyFactorRange(offset int) FactorRange {
	return FactorRange{Start: int32(offset), End: int32(offset) - 1}
}

// Data is the baked aggregate: the merged surfel array, the bricks partitioning it, the flattened per-probe brick
// factors, the per-probe factor ranges, and a per-probe validity mask (1 = lit, 0 = forced black).
type Data struct {
	// BrickSize is the world-space edge length of a brick cell. The relight scheduler publishes it as the cache
	// voxel size while global illumination is available.
	BrickSize float32

	Surfels  []Surfel
	Bricks   []SurfelRange
	Factors  []BrickFactor
	Probes   []FactorRange
	Validity []float32
}

// ProbeCount returns the number of probes described by the cell.
func (d *Data) ProbeCount() int {
	return len(d.Probes)
}

// BrickCount returns the number of bricks in the cell.
func (d *Data) BrickCount() int {
	return len(d.Bricks)
}

// ProbeFactors returns the factor slice of probe i without copying. Callers must not modify the result.
//
// Parameters:
//   - i: probe index
//
// Returns:
//   - []BrickFactor: the probe's factors, nil when the probe has none or i is out of range
func (d *Data) ProbeFactors(i int) []BrickFactor {
	if i < 0 || i >= len(d.Probes) {
		return nil
	}
	r := d.Probes[i]
	if r.Empty() {
		return nil
	}
	return d.Factors[r.Start : r.End+1]
}

// BrickSurfels returns the merged surfels of brick b without copying. Callers must not modify the result.
//
// Parameters:
//   - b: brick index
//
// Returns:
//   - []Surfel: the brick's surfels, nil when b is out of range
func (d *Data) BrickSurfels(b int) []Surfel {
	if b < 0 || b >= len(d.Bricks) {
		return nil
	}
	r := d.Bricks[b]
	return d.Surfels[r.Start : r.Start+r.Count]
}

// Validate checks every structural invariant of the cell: bricks partition the surfel array in order, factors
// reference existing bricks with weights in [0,1], probe ranges are in bounds and contiguous, and the validity
// mask has one entry per probe.
//
// Returns:
//   - error: nil if the cell can be trusted, otherwise an error wrapping ErrInvalidCell
func (d *Data) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil cell", ErrInvalidCell)
	}
	if len(d.Validity) != len(d.Probes) {
		return fmt.Errorf("%w: validity has %d entries for %d probes", ErrInvalidCell, len(d.Validity), len(d.Probes))
	}

	covered := int64(0)
	for b, r := range d.Bricks {
		if int64(r.Start) != covered || r.Count < 0 {
			return fmt.Errorf("%w: brick %d range {%d,%d} does not continue at %d", ErrInvalidCell, b, r.Start, r.Count, covered)
		}
		covered += int64(r.Count)
		if covered > int64(len(d.Surfels)) {
			return fmt.Errorf("%w: brick %d range {%d,%d} exceeds %d surfels", ErrInvalidCell, b, r.Start, r.Count, len(d.Surfels))
		}
	}
	if covered != int64(len(d.Surfels)) {
		return fmt.Errorf("%w: bricks cover %d of %d surfels", ErrInvalidCell, covered, len(d.Surfels))
	}

	for f, factor := range d.Factors {
		if factor.BrickIndex < 0 || int(factor.BrickIndex) >= len(d.Bricks) {
			return fmt.Errorf("%w: factor %d references brick %d of %d", ErrInvalidCell, f, factor.BrickIndex, len(d.Bricks))
		}
		if factor.Weight < 0 || factor.Weight > 1 {
			return fmt.Errorf("%w: factor %d weight %f outside [0,1]", ErrInvalidCell, f, factor.Weight)
		}
	}

	next := int32(0)
	for p, r := range d.Probes {
		if r.End < r.Start-1 {
			return fmt.Errorf("%w: probe %d range {%d,%d} is inverted", ErrInvalidCell, p, r.Start, r.End)
		}
		if r.Start != next {
			return fmt.Errorf("%w: probe %d range starts at %d, expected %d", ErrInvalidCell, p, r.Start, next)
		}
		if int(r.End) >= len(d.Factors) {
			return fmt.Errorf("%w: probe %d range {%d,%d} exceeds %d factors", ErrInvalidCell, p, r.Start, r.End, len(d.Factors))
		}
		next = r.End + 1
	}
	if int(next) != len(d.Factors) {
		return fmt.Errorf("%w: probes cover %d of %d factors", ErrInvalidCell, next, len(d.Factors))
	}

	return nil
}
