package cell

import "github.com/go-gl/mathgl/mgl32"

// Query is a read-only view over a baked cell for debug visualization and inspection tools. It never exposes the
// backing slices for mutation: every accessor returns copies or scalars.
type Query interface {
	// ProbeCount returns the number of probes in the cell.
	ProbeCount() int

	// BrickCount returns the number of bricks in the cell.
	BrickCount() int

	// ProbeFactors returns a copy of the factors contributing to probe i, ordered by brick index.
	//
	// Parameters:
	//   - i: probe index
	//
	// Returns:
	//   - []BrickFactor: the factors, empty when the probe is unlit or out of range
	ProbeFactors(i int) []BrickFactor

	// ProbeValidity returns the validity mask entry of probe i (1 = lit, 0 = forced black).
	//
	// Parameters:
	//   - i: probe index
	//
	// Returns:
	//   - float32: the mask value, 0 when out of range
	ProbeValidity(i int) float32

	// BrickSurfels returns a copy of the merged surfels of brick b.
	//
	// Parameters:
	//   - b: brick index
	//
	// Returns:
	//   - []Surfel: the brick's surfels
	BrickSurfels(b int) []Surfel

	// BrickCenter returns the mean merged surfel position and the normalized mean normal of brick b.
	//
	// Parameters:
	//   - b: brick index
	//
	// Returns:
	//   - mgl32.Vec3: the brick center
	//   - mgl32.Vec3: the brick's average normal, zero if degenerate
	//   - bool: false when b is out of range or the brick is empty
	BrickCenter(b int) (mgl32.Vec3, mgl32.Vec3, bool)

	// ProbesReferencingBrick lists every probe that has a factor on brick b, ascending.
	//
	// Parameters:
	//   - b: brick index
	//
	// Returns:
	//   - []int: probe indices
	ProbesReferencingBrick(b int) []int
}

// cellQuery is the Query implementation backed by a Data value.
type cellQuery struct {
	d *Data
}

var _ Query = &cellQuery{}

// NewQuery wraps d in a read-only Query. A nil d yields an empty view.
//
// Parameters:
//   - d: the cell to inspect
//
// Returns:
//   - Query: the read-only view
func NewQuery(d *Data) Query {
	if d == nil {
		d = &Data{}
	}
	return &cellQuery{d: d}
}

func (q *cellQuery) ProbeCount() int {
	return q.d.ProbeCount()
}

func (q *cellQuery) BrickCount() int {
	return q.d.BrickCount()
}

func (q *cellQuery) ProbeFactors(i int) []BrickFactor {
	return append([]BrickFactor(nil), q.d.ProbeFactors(i)...)
}

func (q *cellQuery) ProbeValidity(i int) float32 {
	if i < 0 || i >= len(q.d.Validity) {
		return 0
	}
	return q.d.Validity[i]
}

func (q *cellQuery) BrickSurfels(b int) []Surfel {
	return append([]Surfel(nil), q.d.BrickSurfels(b)...)
}

func (q *cellQuery) BrickCenter(b int) (mgl32.Vec3, mgl32.Vec3, bool) {
	surfels := q.d.BrickSurfels(b)
	if len(surfels) == 0 {
		return mgl32.Vec3{}, mgl32.Vec3{}, false
	}
	var center, normal mgl32.Vec3
	for _, s := range surfels {
		center = center.Add(s.Position)
		normal = normal.Add(s.Normal)
	}
	center = center.Mul(1 / float32(len(surfels)))
	if normal.LenSqr() > 0 {
		normal = normal.Normalize()
	}
	return center, normal, true
}

func (q *cellQuery) ProbesReferencingBrick(b int) []int {
	var probes []int
	for p := range q.d.Probes {
		for _, f := range q.d.ProbeFactors(p) {
			if int(f.BrickIndex) == b {
				probes = append(probes, p)
				break
			}
		}
	}
	return probes
}
