package raycast

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// Union returns the box bounding both a and o.
func (a AABB) Union(o AABB) AABB {
	return AABB{
		Min: mgl32.Vec3{math32.Min(a.Min[0], o.Min[0]), math32.Min(a.Min[1], o.Min[1]), math32.Min(a.Min[2], o.Min[2])},
		Max: mgl32.Vec3{math32.Max(a.Max[0], o.Max[0]), math32.Max(a.Max[1], o.Max[1]), math32.Max(a.Max[2], o.Max[2])},
	}
}

// Center returns the midpoint of the box.
func (a AABB) Center() mgl32.Vec3 {
	return a.Min.Add(a.Max).Mul(0.5)
}

// LongestAxis returns 0, 1 or 2 for the axis with the largest extent.
func (a AABB) LongestAxis() int {
	size := a.Max.Sub(a.Min)
	if size[0] >= size[1] && size[0] >= size[2] {
		return 0
	}
	if size[1] >= size[2] {
		return 1
	}
	return 2
}

// hit runs the slab test for a ray against the box over [tMin, tMax].
func (a AABB) hit(origin, invDir mgl32.Vec3, tMin, tMax float32) bool {
	for axis := 0; axis < 3; axis++ {
		t1 := (a.Min[axis] - origin[axis]) * invDir[axis]
		t2 := (a.Max[axis] - origin[axis]) * invDir[axis]
		if math32.IsNaN(t1) || math32.IsNaN(t2) {
			// parallel ray starting exactly on a slab plane
			if origin[axis] < a.Min[axis] || origin[axis] > a.Max[axis] {
				return false
			}
			continue
		}
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math32.Max(tMin, t1)
		tMax = math32.Min(tMax, t2)
		if tMin > tMax {
			return false
		}
	}
	return true
}
