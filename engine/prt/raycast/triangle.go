package raycast

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const intersectEpsilon = 1e-7

// Triangle is a single surface primitive. Its front face is the side that sees V0, V1, V2 counter-clockwise.
type Triangle struct {
	V0, V1, V2 mgl32.Vec3
	Albedo     mgl32.Vec3
}

// Normal returns the unit geometric normal of the front face, zero for a degenerate triangle.
func (t Triangle) Normal() mgl32.Vec3 {
	n := t.V1.Sub(t.V0).Cross(t.V2.Sub(t.V0))
	if l := n.Len(); l > 0 {
		return n.Mul(1 / l)
	}
	return mgl32.Vec3{}
}

// Bounds returns the triangle's bounding box.
func (t Triangle) Bounds() AABB {
	return AABB{Min: t.V0, Max: t.V0}.
		Union(AABB{Min: t.V1, Max: t.V1}).
		Union(AABB{Min: t.V2, Max: t.V2})
}

// intersect is a two-sided Möller–Trumbore test returning the ray parameter of the hit.
func (t Triangle) intersect(origin, dir mgl32.Vec3, tMin, tMax float32) (float32, bool) {
	e1 := t.V1.Sub(t.V0)
	e2 := t.V2.Sub(t.V0)
	p := dir.Cross(e2)
	det := e1.Dot(p)
	if math32.Abs(det) < intersectEpsilon {
		return 0, false
	}
	inv := 1 / det
	s := origin.Sub(t.V0)
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := dir.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	d := e2.Dot(q) * inv
	if d < tMin || d > tMax {
		return 0, false
	}
	return d, true
}
