// Package surfel aggregates an unordered stream of (surfel, probe) samples into spatially hashed bricks and
// finalizes them into a cell.Data: merged surfels, brick ranges, and per-probe normalized brick factors.
package surfel

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-prt/engine/prt/cell"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/floats"
)

// Surfel is a point sample of a shaded surface.
type Surfel = cell.Surfel

var (
	// ErrValidityLength is returned by GenerateCell when the validity mask does not have one entry per probe.
	ErrValidityLength = errors.New("validity mask length does not match probe count")

	// ErrProbeIndex is returned by GenerateCell when a brick references a probe outside the supplied positions.
	ErrProbeIndex = errors.New("brick references unknown probe")
)

// Grid accumulates surfels into bricks during a bake pass.
//
// A Grid is not safe for concurrent use. The baking session feeds it from a single goroutine, one probe at a time.
type Grid interface {
	// AddSurfel files s into the brick keyed by its cell and dominant normal direction, creating the brick on
	// first use, and records probeIndex as a referencing probe of that brick.
	//
	// Parameters:
	//   - s: the surfel sample
	//   - probeIndex: index of the probe whose sampling produced s
	AddSurfel(s Surfel, probeIndex int)

	// GenerateCell finalizes the accumulated bricks into a fresh cell.Data. The grid is left unchanged, so calling
	// it twice with the same inputs yields identical results.
	//
	// Parameters:
	//   - probePositions: world positions of every probe, indexed by probe index
	//   - validity: per-probe validity mask, copied into the result unchanged
	//
	// Returns:
	//   - *cell.Data: the finalized cell
	//   - error: ErrValidityLength or ErrProbeIndex (wrapped) on inconsistent input
	GenerateCell(probePositions []mgl32.Vec3, validity []float32) (*cell.Data, error)

	// Reset drops every surfel and brick, keeping the configured sizes.
	Reset()

	// SurfelCount returns the number of raw surfels added since the last Reset.
	SurfelCount() int

	// BrickCount returns the number of bricks created since the last Reset.
	BrickCount() int

	// BrickSize returns the brick edge length in world units.
	BrickSize() float32
}

// brick is one arena entry. Its index in the arena is its brick index.
type brick struct {
	key      uint64
	surfels  []int32
	probes   []int32
	probeSet map[int32]struct{}
}

func (b *brick) addProbe(p int32) {
	if n := len(b.probes); n > 0 && b.probes[n-1] == p {
		return
	}
	if _, ok := b.probeSet[p]; ok {
		return
	}
	b.probeSet[p] = struct{}{}
	b.probes = append(b.probes, p)
}

// gridImpl is the implementation of the Grid interface.
type gridImpl struct {
	brickSize float32
	mergeStep float32

	surfels []Surfel
	bricks  []*brick
	index   map[uint64]int
}

var _ Grid = &gridImpl{}

// NewGrid creates an empty Grid.
//
// Parameters:
//   - opts: optional builder options (brick size, merge step)
//
// Returns:
//   - Grid: the new grid
func NewGrid(opts ...GridBuilderOption) Grid {
	g := &gridImpl{
		brickSize: defaultBrickSize,
		mergeStep: defaultMergeStep,
		index:     make(map[uint64]int),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gridImpl) AddSurfel(s Surfel, probeIndex int) {
	key := BrickKey(CellCoord(s.Position, g.brickSize), DominantDirection(s.Normal))

	bi, ok := g.index[key]
	if !ok {
		bi = len(g.bricks)
		g.bricks = append(g.bricks, &brick{key: key, probeSet: make(map[int32]struct{})})
		g.index[key] = bi
	}
	b := g.bricks[bi]

	b.surfels = append(b.surfels, int32(len(g.surfels)))
	g.surfels = append(g.surfels, s)
	b.addProbe(int32(probeIndex))
}

func (g *gridImpl) GenerateCell(probePositions []mgl32.Vec3, validity []float32) (*cell.Data, error) {
	if len(validity) != len(probePositions) {
		return nil, fmt.Errorf("%w: %d entries for %d probes", ErrValidityLength, len(validity), len(probePositions))
	}

	// bricks referencing each probe, ascending by brick index since the arena is walked in creation order
	probeBricks := make([][]int32, len(probePositions))
	for bi, b := range g.bricks {
		for _, p := range b.probes {
			if p < 0 || int(p) >= len(probePositions) {
				return nil, fmt.Errorf("%w: brick %d references probe %d of %d", ErrProbeIndex, bi, p, len(probePositions))
			}
			probeBricks[p] = append(probeBricks[p], int32(bi))
		}
	}

	d := &cell.Data{
		BrickSize: g.brickSize,
		Surfels:   make([]Surfel, 0, len(g.surfels)),
		Bricks:    make([]cell.SurfelRange, len(g.bricks)),
		Probes:    make([]cell.FactorRange, len(probePositions)),
		Validity:  append([]float32(nil), validity...),
	}

	centers := make([]mgl32.Vec3, len(g.bricks))
	normals := make([]mgl32.Vec3, len(g.bricks))
	for bi, b := range g.bricks {
		start := len(d.Surfels)
		d.Surfels = g.mergeBrick(d.Surfels, b)
		merged := d.Surfels[start:]
		d.Bricks[bi] = cell.SurfelRange{Start: int32(start), Count: int32(len(merged))}
		centers[bi], normals[bi] = brickFrame(merged)
	}

	var weights []float64
	for p, pos := range probePositions {
		candidates := probeBricks[p]
		weights = weights[:0]
		for _, bi := range candidates {
			weights = append(weights, brickWeight(pos, centers[bi], normals[bi]))
		}

		total := floats.Sum(weights)
		if total <= 0 {
			d.Probes[p] = cell.EmptyFactorRange(len(d.Factors))
			continue
		}
		floats.Scale(1/total, weights)

		start := len(d.Factors)
		for i, bi := range candidates {
			d.Factors = append(d.Factors, cell.BrickFactor{BrickIndex: bi, Weight: float32(weights[i])})
		}
		d.Probes[p] = cell.FactorRange{Start: int32(start), End: int32(len(d.Factors) - 1)}
	}

	return d, nil
}

func (g *gridImpl) Reset() {
	g.surfels = nil
	g.bricks = nil
	g.index = make(map[uint64]int)
}

func (g *gridImpl) SurfelCount() int {
	return len(g.surfels)
}

func (g *gridImpl) BrickCount() int {
	return len(g.bricks)
}

func (g *gridImpl) BrickSize() float32 {
	return g.brickSize
}

// brickFrame returns the mean position and normalized mean normal of a brick's merged surfels.
func brickFrame(merged []Surfel) (mgl32.Vec3, mgl32.Vec3) {
	if len(merged) == 0 {
		return mgl32.Vec3{}, mgl32.Vec3{}
	}
	var center, normal mgl32.Vec3
	for _, s := range merged {
		center = center.Add(s.Position)
		normal = normal.Add(s.Normal)
	}
	center = center.Mul(1 / float32(len(merged)))
	return center, safeNormalize(normal, mgl32.Vec3{})
}

// brickWeight is max(0, dot(n, normalize(probe - center))). A probe sitting exactly on the center gets no weight.
func brickWeight(probe, center, normal mgl32.Vec3) float64 {
	toProbe := safeNormalize(probe.Sub(center), mgl32.Vec3{})
	return float64(math32.Max(0, normal.Dot(toProbe)))
}

func safeNormalize(v, fallback mgl32.Vec3) mgl32.Vec3 {
	l := math32.Sqrt(v.Dot(v))
	if l == 0 {
		return fallback
	}
	return v.Mul(1 / l)
}
