// Package raycast answers closest-hit ray queries against a static triangle scene. It backs bake-time virtual
// offset placement and the reference sample generator; nothing on the runtime relight path uses it.
package raycast

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Hit describes the closest intersection of a ray.
type Hit struct {
	Distance float32
	Position mgl32.Vec3

	// Normal is the front-face geometric normal of the hit triangle, regardless of which side was hit.
	Normal mgl32.Vec3
	Albedo mgl32.Vec3

	// BackFace is set when the ray travels along the front-face normal (dot(Normal, dir) > 0), i.e. it hit the
	// surface from behind.
	BackFace bool
}

// Scene is a static collection of triangles with a lazily built BVH.
//
// A Scene is not safe for concurrent use; bakes issue queries from a single goroutine.
type Scene interface {
	// AddTriangle appends a triangle and invalidates the acceleration structure.
	//
	// Parameters:
	//   - t: the triangle
	AddTriangle(t Triangle)

	// AddBox appends the 12 outward-facing triangles of an axis-aligned box.
	//
	// Parameters:
	//   - min: minimum corner
	//   - max: maximum corner
	//   - albedo: surface albedo
	AddBox(min, max, albedo mgl32.Vec3)

	// AddRoom appends the 12 inward-facing triangles of an axis-aligned box, as seen from inside a closed room.
	//
	// Parameters:
	//   - min: minimum corner
	//   - max: maximum corner
	//   - albedo: surface albedo
	AddRoom(min, max, albedo mgl32.Vec3)

	// Build (re)creates the BVH. CastRay builds on demand, so calling it is optional.
	Build()

	// CastRay returns the closest hit along a ray.
	//
	// Parameters:
	//   - origin: ray origin
	//   - dir: ray direction, normalized by the caller
	//   - maxDistance: largest accepted hit distance
	//
	// Returns:
	//   - Hit: the closest hit
	//   - bool: false when nothing was hit within maxDistance
	CastRay(origin, dir mgl32.Vec3, maxDistance float32) (Hit, bool)

	// TriangleCount returns the number of triangles in the scene.
	TriangleCount() int
}

// sceneImpl is the implementation of the Scene interface.
type sceneImpl struct {
	tris  []Triangle
	root  *bvhNode
	dirty bool
}

var _ Scene = &sceneImpl{}

// NewScene creates an empty scene.
//
// Returns:
//   - Scene: the new scene
func NewScene() Scene {
	return &sceneImpl{}
}

func (s *sceneImpl) AddTriangle(t Triangle) {
	s.tris = append(s.tris, t)
	s.dirty = true
}

func (s *sceneImpl) AddBox(min, max, albedo mgl32.Vec3) {
	for _, q := range boxQuads(min, max) {
		s.addQuad(q, albedo, false)
	}
}

func (s *sceneImpl) AddRoom(min, max, albedo mgl32.Vec3) {
	for _, q := range boxQuads(min, max) {
		s.addQuad(q, albedo, true)
	}
}

func (s *sceneImpl) Build() {
	idx := make([]int, len(s.tris))
	for i := range idx {
		idx[i] = i
	}
	s.root = buildBVH(s.tris, idx)
	s.dirty = false
}

func (s *sceneImpl) CastRay(origin, dir mgl32.Vec3, maxDistance float32) (Hit, bool) {
	if s.dirty {
		s.Build()
	}
	invDir := mgl32.Vec3{1 / dir[0], 1 / dir[1], 1 / dir[2]}
	i, d, ok := s.root.closest(s.tris, origin, dir, invDir, 0, maxDistance)
	if !ok {
		return Hit{}, false
	}
	t := s.tris[i]
	n := t.Normal()
	return Hit{
		Distance: d,
		Position: origin.Add(dir.Mul(d)),
		Normal:   n,
		Albedo:   t.Albedo,
		BackFace: n.Dot(dir) > 0,
	}, true
}

func (s *sceneImpl) TriangleCount() int {
	return len(s.tris)
}

// addQuad splits a counter-clockwise quad into two triangles, reversing the winding when flip is set.
func (s *sceneImpl) addQuad(q [4]mgl32.Vec3, albedo mgl32.Vec3, flip bool) {
	a, b, c, d := q[0], q[1], q[2], q[3]
	if flip {
		b, d = d, b
	}
	s.AddTriangle(Triangle{V0: a, V1: b, V2: c, Albedo: albedo})
	s.AddTriangle(Triangle{V0: a, V1: c, V2: d, Albedo: albedo})
}

// boxQuads lists the six faces of a box, each wound counter-clockwise as seen from outside.
func boxQuads(lo, hi mgl32.Vec3) [6][4]mgl32.Vec3 {
	return [6][4]mgl32.Vec3{
		{{lo[0], lo[1], lo[2]}, {lo[0], lo[1], hi[2]}, {lo[0], hi[1], hi[2]}, {lo[0], hi[1], lo[2]}}, // -X
		{{hi[0], lo[1], lo[2]}, {hi[0], hi[1], lo[2]}, {hi[0], hi[1], hi[2]}, {hi[0], lo[1], hi[2]}}, // +X
		{{lo[0], lo[1], lo[2]}, {hi[0], lo[1], lo[2]}, {hi[0], lo[1], hi[2]}, {lo[0], lo[1], hi[2]}}, // -Y
		{{lo[0], hi[1], lo[2]}, {lo[0], hi[1], hi[2]}, {hi[0], hi[1], hi[2]}, {hi[0], hi[1], lo[2]}}, // +Y
		{{lo[0], lo[1], lo[2]}, {lo[0], hi[1], lo[2]}, {hi[0], hi[1], lo[2]}, {hi[0], lo[1], lo[2]}}, // -Z
		{{lo[0], lo[1], hi[2]}, {hi[0], lo[1], hi[2]}, {hi[0], hi[1], hi[2]}, {lo[0], hi[1], hi[2]}}, // +Z
	}
}
