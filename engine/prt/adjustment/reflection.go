package adjustment

import "github.com/go-gl/mathgl/mgl32"

// ReflectionProbe is auxiliary data registered alongside adjustment volumes so that debug tools and the relight
// path can look up which reflection captures influence a position. The registry only stores and queries it.
type ReflectionProbe struct {
	Center        mgl32.Vec3
	HalfExtents   mgl32.Vec3
	BlendDistance float32
	Intensity     float32
	Importance    int
}

// Contains reports whether p lies inside the influence box, blend margin included.
func (rp ReflectionProbe) Contains(p mgl32.Vec3) bool {
	d := p.Sub(rp.Center)
	for i := 0; i < 3; i++ {
		h := rp.HalfExtents[i] + rp.BlendDistance
		if d[i] < -h || d[i] > h {
			return false
		}
	}
	return true
}

// Bounds returns the influence box including the blend margin.
func (rp ReflectionProbe) Bounds() (mgl32.Vec3, mgl32.Vec3) {
	b := mgl32.Vec3{rp.BlendDistance, rp.BlendDistance, rp.BlendDistance}
	half := rp.HalfExtents.Add(b)
	return rp.Center.Sub(half), rp.Center.Add(half)
}
