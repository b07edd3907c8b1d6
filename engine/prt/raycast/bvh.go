package raycast

import "github.com/go-gl/mathgl/mgl32"

// leafThreshold is the triangle count at or below which a node stops splitting.
const leafThreshold = 8

// bvhNode is a node of the bounding volume hierarchy. Leaves hold triangle indices, inner nodes hold children.
type bvhNode struct {
	bounds AABB
	left   *bvhNode
	right  *bvhNode
	tris   []int
}

// buildBVH splits tris at the midpoint of the longest axis of their bounds until leaves are small enough or a
// split would leave one side empty.
func buildBVH(all []Triangle, tris []int) *bvhNode {
	if len(tris) == 0 {
		return nil
	}
	bounds := all[tris[0]].Bounds()
	for _, i := range tris[1:] {
		bounds = bounds.Union(all[i].Bounds())
	}
	if len(tris) <= leafThreshold {
		return &bvhNode{bounds: bounds, tris: tris}
	}

	axis := bounds.LongestAxis()
	split := bounds.Center()[axis]
	var left, right []int
	for _, i := range tris {
		if all[i].Bounds().Center()[axis] < split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &bvhNode{bounds: bounds, tris: tris}
	}
	return &bvhNode{
		bounds: bounds,
		left:   buildBVH(all, left),
		right:  buildBVH(all, right),
	}
}

// closest returns the nearest triangle hit in (tMin, tMax].
func (n *bvhNode) closest(all []Triangle, origin, dir, invDir mgl32.Vec3, tMin, tMax float32) (int, float32, bool) {
	if n == nil || !n.bounds.hit(origin, invDir, tMin, tMax) {
		return -1, 0, false
	}
	if n.left == nil && n.right == nil {
		best, bestT, found := -1, tMax, false
		for _, i := range n.tris {
			if d, ok := all[i].intersect(origin, dir, tMin, bestT); ok {
				best, bestT, found = i, d, true
			}
		}
		return best, bestT, found
	}

	li, lt, lok := n.left.closest(all, origin, dir, invDir, tMin, tMax)
	if lok {
		tMax = lt
	}
	ri, rt, rok := n.right.closest(all, origin, dir, invDir, tMin, tMax)
	if rok {
		return ri, rt, true
	}
	return li, lt, lok
}
