// Package adjustment holds the process-wide registry of adjustment volumes: box or sphere regions that override
// probe placement, bias, intensity, or validity for probes whose position falls inside them.
package adjustment

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Shape selects the containment test of a Volume.
type Shape int

const (
	// ShapeBox is an axis-aligned box around Center with HalfExtents.
	ShapeBox Shape = iota
	// ShapeSphere is a ball around Center with Radius.
	ShapeSphere
)

// Mode selects what a Volume does to the probes it contains.
type Mode int

const (
	// ModeInvalidate forces contained probes black (validity 0).
	ModeInvalidate Mode = iota

	// ModeOverrideVirtualOffset replaces the computed virtual offset with OffsetDirection * OffsetDistance.
	ModeOverrideVirtualOffset

	// ModeOverrideBias replaces the geometry and ray origin biases used by virtual offset placement.
	ModeOverrideBias

	// ModeIntensityScale multiplies the relit radiance of contained probes by IntensityScale.
	ModeIntensityScale
)

// Volume is one adjustment region. Only the fields relevant to Shape and Mode are read.
type Volume struct {
	Shape       Shape
	Center      mgl32.Vec3
	HalfExtents mgl32.Vec3
	Radius      float32

	Mode            Mode
	OffsetDirection mgl32.Vec3
	OffsetDistance  float32
	GeometryBias    float32
	RayOriginBias   float32
	IntensityScale  float32
}

// Box returns a box Volume with the given mode and zero override values.
func Box(center, halfExtents mgl32.Vec3, mode Mode) Volume {
	return Volume{Shape: ShapeBox, Center: center, HalfExtents: halfExtents, Mode: mode, IntensityScale: 1}
}

// Sphere returns a sphere Volume with the given mode and zero override values.
func Sphere(center mgl32.Vec3, radius float32, mode Mode) Volume {
	return Volume{Shape: ShapeSphere, Center: center, Radius: radius, Mode: mode, IntensityScale: 1}
}

// Contains reports whether p lies inside the volume, boundary included.
//
// Parameters:
//   - p: world position
//
// Returns:
//   - bool: true when p is inside
func (v Volume) Contains(p mgl32.Vec3) bool {
	d := p.Sub(v.Center)
	switch v.Shape {
	case ShapeSphere:
		return d.Dot(d) <= v.Radius*v.Radius
	default:
		for i := 0; i < 3; i++ {
			if d[i] < -v.HalfExtents[i] || d[i] > v.HalfExtents[i] {
				return false
			}
		}
		return true
	}
}

// Bounds returns the axis-aligned bounding box of the volume.
//
// Returns:
//   - mgl32.Vec3: minimum corner
//   - mgl32.Vec3: maximum corner
func (v Volume) Bounds() (mgl32.Vec3, mgl32.Vec3) {
	half := v.HalfExtents
	if v.Shape == ShapeSphere {
		half = mgl32.Vec3{v.Radius, v.Radius, v.Radius}
	}
	return v.Center.Sub(half), v.Center.Add(half)
}

// Overrides is the combined effect of every volume containing a position.
type Overrides struct {
	// Invalidate is set when any containing volume invalidates.
	Invalidate bool

	// HasOffset is set when a containing volume overrides the virtual offset; Offset is the last one registered.
	HasOffset bool
	Offset    mgl32.Vec3

	// HasBias is set when a containing volume overrides biases; the last one registered wins.
	HasBias       bool
	GeometryBias  float32
	RayOriginBias float32

	// IntensityScale is the product of every containing intensity volume, 1 when there are none.
	IntensityScale float32
}

// NoOverrides is the neutral Overrides value.
func NoOverrides() Overrides {
	return Overrides{IntensityScale: 1}
}

// apply folds v into o. Volumes must be applied in registration order.
func (o *Overrides) apply(v Volume) {
	switch v.Mode {
	case ModeInvalidate:
		o.Invalidate = true
	case ModeOverrideVirtualOffset:
		o.HasOffset = true
		dir := v.OffsetDirection
		if dir.Dot(dir) > 0 {
			dir = dir.Normalize()
		}
		o.Offset = dir.Mul(v.OffsetDistance)
	case ModeOverrideBias:
		o.HasBias = true
		o.GeometryBias = v.GeometryBias
		o.RayOriginBias = v.RayOriginBias
	case ModeIntensityScale:
		o.IntensityScale *= v.IntensityScale
	}
}
