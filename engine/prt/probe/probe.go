// Package probe lays light probes out on a regular 3-D lattice and tracks their bake-time placement offsets.
package probe

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrInvalidGrid is returned by Grid.Validate for non-positive dimensions or spacing.
var ErrInvalidGrid = errors.New("invalid probe grid")

// Probe is one lattice node. It carries identity and placement only, never radiance.
type Probe struct {
	Index         int
	Base          mgl32.Vec3
	VirtualOffset mgl32.Vec3
}

// Position returns the capture position: the lattice position pushed by the virtual offset.
func (p Probe) Position() mgl32.Vec3 {
	return p.Base.Add(p.VirtualOffset)
}

// Grid describes the lattice of a probe volume. Probe (x, y, z) sits at Origin + (x, y, z) * Spacing.
type Grid struct {
	Dims    [3]int
	Spacing mgl32.Vec3
	Origin  mgl32.Vec3
}

// Validate checks that every dimension and spacing component is positive.
//
// Returns:
//   - error: nil or an error wrapping ErrInvalidGrid
func (g Grid) Validate() error {
	for i := 0; i < 3; i++ {
		if g.Dims[i] <= 0 {
			return fmt.Errorf("%w: dimension %d is %d", ErrInvalidGrid, i, g.Dims[i])
		}
		if g.Spacing[i] <= 0 {
			return fmt.Errorf("%w: spacing %d is %f", ErrInvalidGrid, i, g.Spacing[i])
		}
	}
	return nil
}

// Count returns X*Y*Z, or 0 for an invalid grid.
func (g Grid) Count() int {
	if g.Dims[0] <= 0 || g.Dims[1] <= 0 || g.Dims[2] <= 0 {
		return 0
	}
	return g.Dims[0] * g.Dims[1] * g.Dims[2]
}

// Index linearizes a lattice coordinate row-major: x*(Y*Z) + y*Z + z.
//
// Parameters:
//   - x, y, z: lattice coordinate
//
// Returns:
//   - int: the probe index
func (g Grid) Index(x, y, z int) int {
	return x*(g.Dims[1]*g.Dims[2]) + y*g.Dims[2] + z
}

// Coord is the inverse of Index.
//
// Parameters:
//   - i: probe index
//
// Returns:
//   - x, y, z: lattice coordinate
func (g Grid) Coord(i int) (x, y, z int) {
	yz := g.Dims[1] * g.Dims[2]
	x = i / yz
	y = (i % yz) / g.Dims[2]
	z = i % g.Dims[2]
	return x, y, z
}

// BasePosition returns the world position of lattice node (x, y, z) before any virtual offset.
func (g Grid) BasePosition(x, y, z int) mgl32.Vec3 {
	return mgl32.Vec3{
		g.Origin[0] + float32(x)*g.Spacing[0],
		g.Origin[1] + float32(y)*g.Spacing[1],
		g.Origin[2] + float32(z)*g.Spacing[2],
	}
}

// Bounds returns the axis-aligned box spanned by the lattice.
//
// Returns:
//   - mgl32.Vec3: minimum corner (Origin)
//   - mgl32.Vec3: maximum corner (last node)
func (g Grid) Bounds() (mgl32.Vec3, mgl32.Vec3) {
	return g.Origin, g.BasePosition(g.Dims[0]-1, g.Dims[1]-1, g.Dims[2]-1)
}

// Allocate creates one Probe per lattice node in index order, all with zero virtual offset.
//
// Returns:
//   - []Probe: the probes, nil for an invalid grid
func (g Grid) Allocate() []Probe {
	n := g.Count()
	if n == 0 {
		return nil
	}
	probes := make([]Probe, n)
	for x := 0; x < g.Dims[0]; x++ {
		for y := 0; y < g.Dims[1]; y++ {
			for z := 0; z < g.Dims[2]; z++ {
				i := g.Index(x, y, z)
				probes[i] = Probe{Index: i, Base: g.BasePosition(x, y, z)}
			}
		}
	}
	return probes
}

// IndicesInBox returns, in ascending order, the index of every lattice node whose base position lies inside the
// closed box [min, max].
//
// Parameters:
//   - min: minimum corner
//   - max: maximum corner
//
// Returns:
//   - []int: probe indices, nil when the box misses the lattice
func (g Grid) IndicesInBox(min, max mgl32.Vec3) []int {
	if g.Count() == 0 {
		return nil
	}
	var lo, hi [3]int
	for a := 0; a < 3; a++ {
		lo[a] = latticeCoord(math32.Ceil((min[a]-g.Origin[a])/g.Spacing[a]), g.Dims[a])
		hi[a] = latticeCoord(math32.Floor((max[a]-g.Origin[a])/g.Spacing[a]), g.Dims[a])
		if lo[a] < 0 {
			lo[a] = 0
		}
		if hi[a] > g.Dims[a]-1 {
			hi[a] = g.Dims[a] - 1
		}
		if lo[a] > hi[a] {
			return nil
		}
	}

	out := make([]int, 0, (hi[0]-lo[0]+1)*(hi[1]-lo[1]+1)*(hi[2]-lo[2]+1))
	for x := lo[0]; x <= hi[0]; x++ {
		for y := lo[1]; y <= hi[1]; y++ {
			for z := lo[2]; z <= hi[2]; z++ {
				out = append(out, g.Index(x, y, z))
			}
		}
	}
	return out
}

// latticeCoord converts a lattice coordinate to int, clamped to [-1, dim] so huge or infinite values cannot
// overflow the conversion. NaN maps to -1.
func latticeCoord(f float32, dim int) int {
	if !(f > -1) {
		return -1
	}
	if f > float32(dim) {
		return dim
	}
	return int(f)
}

// Positions returns the capture position of every probe, indexed by probe index.
//
// Parameters:
//   - probes: the probes, in index order
//
// Returns:
//   - []mgl32.Vec3: Base + VirtualOffset per probe
func Positions(probes []Probe) []mgl32.Vec3 {
	out := make([]mgl32.Vec3, len(probes))
	for i, p := range probes {
		out[i] = p.Position()
	}
	return out
}
