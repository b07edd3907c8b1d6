package adjustment

import (
	"errors"
	"sync"
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

func TestVolume_Contains(t *testing.T) {
	box := Box(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 2, 3}, ModeInvalidate)
	sphere := Sphere(mgl32.Vec3{10, 0, 0}, 2, ModeInvalidate)

	tests := []struct {
		name string
		v    Volume
		p    mgl32.Vec3
		want bool
	}{
		{"box center", box, mgl32.Vec3{}, true},
		{"box face", box, mgl32.Vec3{1, 0, 0}, true},
		{"box outside z", box, mgl32.Vec3{0, 0, 3.1}, false},
		{"sphere inside", sphere, mgl32.Vec3{11, 1, 0}, true},
		{"sphere surface", sphere, mgl32.Vec3{12, 0, 0}, true},
		{"sphere bounding corner", sphere, mgl32.Vec3{11.9, 1.9, 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.Contains(tt.p); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRegistry_QueryOrderAndExactness(t *testing.T) {
	r := NewRegistry()

	a, err := r.Register(Sphere(mgl32.Vec3{0, 0, 0}, 5, ModeInvalidate))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := r.Register(Box(mgl32.Vec3{20, 0, 0}, mgl32.Vec3{1, 1, 1}, ModeInvalidate)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	c, err := r.Register(Box(mgl32.Vec3{1, 0, 0}, mgl32.Vec3{2, 2, 2}, ModeIntensityScale))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if c <= a {
		t.Errorf("Expected increasing handles, got %d then %d", a, c)
	}

	got := r.Query(mgl32.Vec3{1, 0, 0})
	if len(got) != 2 || got[0].Shape != ShapeSphere || got[1].Mode != ModeIntensityScale {
		t.Fatalf("Expected sphere then box in registration order, got %+v", got)
	}

	// inside the sphere's bounding box but outside the sphere
	if got := r.Query(mgl32.Vec3{-4.5, -4.5, 0}); got != nil {
		t.Errorf("Expected exact containment to reject corner, got %+v", got)
	}
	if r.Len() != 3 {
		t.Errorf("Expected 3 volumes, got %d", r.Len())
	}
}

func TestRegistry_UnregisterBumpsVersion(t *testing.T) {
	r := NewRegistry()
	v0 := r.Version()

	id, err := r.Register(Box(mgl32.Vec3{}, mgl32.Vec3{1, 1, 1}, ModeInvalidate))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	v1 := r.Version()
	if v1 == v0 {
		t.Error("Expected Register to bump the version")
	}

	if !r.Unregister(id) {
		t.Fatal("Expected Unregister to succeed")
	}
	if r.Version() == v1 {
		t.Error("Expected Unregister to bump the version")
	}
	if r.Unregister(id) {
		t.Error("Expected second Unregister to fail")
	}
	if got := r.Query(mgl32.Vec3{}); got != nil {
		t.Errorf("Expected no volumes after Unregister, got %+v", got)
	}
	if r.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", r.Len())
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry()
	p := mgl32.Vec3{0.5, 0.5, 0.5}

	if o := r.Resolve(p); o != NoOverrides() {
		t.Fatalf("Expected neutral overrides, got %+v", o)
	}

	first := Box(mgl32.Vec3{}, mgl32.Vec3{2, 2, 2}, ModeOverrideVirtualOffset)
	first.OffsetDirection = mgl32.Vec3{0, 2, 0}
	first.OffsetDistance = 0.5
	second := Sphere(mgl32.Vec3{}, 3, ModeOverrideVirtualOffset)
	second.OffsetDirection = mgl32.Vec3{1, 0, 0}
	second.OffsetDistance = 0.25

	bias := Box(mgl32.Vec3{}, mgl32.Vec3{1, 1, 1}, ModeOverrideBias)
	bias.GeometryBias = 0.2
	bias.RayOriginBias = 0.05

	scaleA := Box(mgl32.Vec3{}, mgl32.Vec3{1, 1, 1}, ModeIntensityScale)
	scaleA.IntensityScale = 2
	scaleB := Sphere(mgl32.Vec3{}, 1, ModeIntensityScale)
	scaleB.IntensityScale = 0.25

	for _, v := range []Volume{first, second, bias, scaleA, scaleB} {
		if _, err := r.Register(v); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	o := r.Resolve(p)
	if o.Invalidate {
		t.Error("Expected no invalidation")
	}
	if !o.HasOffset || !o.Offset.ApproxEqual(mgl32.Vec3{0.25, 0, 0}) {
		t.Errorf("Expected later offset override (0.25,0,0), got %v", o.Offset)
	}
	if !o.HasBias || o.GeometryBias != 0.2 || o.RayOriginBias != 0.05 {
		t.Errorf("Unexpected bias override %+v", o)
	}
	if math32.Abs(o.IntensityScale-0.5) > 1e-6 {
		t.Errorf("Expected multiplied intensity 0.5, got %f", o.IntensityScale)
	}

	if _, err := r.Register(Sphere(mgl32.Vec3{}, 1, ModeInvalidate)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !r.Resolve(p).Invalidate {
		t.Error("Expected invalidation once an invalidating volume contains the point")
	}
}

func TestRegistry_RejectsInvalidVolumes(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register(Box(mgl32.Vec3{}, mgl32.Vec3{-1, 1, 1}, ModeInvalidate)); !errors.Is(err, ErrInvalidVolume) {
		t.Errorf("Expected ErrInvalidVolume for negative extent, got %v", err)
	}
	if _, err := r.Register(Sphere(mgl32.Vec3{math32.NaN(), 0, 0}, 1, ModeInvalidate)); !errors.Is(err, ErrInvalidVolume) {
		t.Errorf("Expected ErrInvalidVolume for NaN center, got %v", err)
	}

	// zero-size volumes are indexable and contain exactly their center
	if _, err := r.Register(Sphere(mgl32.Vec3{3, 3, 3}, 0, ModeInvalidate)); err != nil {
		t.Fatalf("Expected zero radius to register, got %v", err)
	}
	if len(r.Query(mgl32.Vec3{3, 3, 3})) != 1 {
		t.Error("Expected zero-radius sphere to contain its center")
	}
}

func TestRegistry_ReflectionProbes(t *testing.T) {
	r := NewRegistry()
	version := r.Version()

	low, err := r.RegisterReflectionProbe(ReflectionProbe{HalfExtents: mgl32.Vec3{2, 2, 2}, Importance: 0, Intensity: 1})
	if err != nil {
		t.Fatalf("RegisterReflectionProbe failed: %v", err)
	}
	if _, err := r.RegisterReflectionProbe(ReflectionProbe{
		Center:        mgl32.Vec3{1, 0, 0},
		HalfExtents:   mgl32.Vec3{0.5, 0.5, 0.5},
		BlendDistance: 0.5,
		Importance:    3,
		Intensity:     2,
	}); err != nil {
		t.Fatalf("RegisterReflectionProbe failed: %v", err)
	}
	if r.Version() != version {
		t.Error("Expected reflection probes to leave the adjustment version alone")
	}

	got := r.ReflectionProbesAt(mgl32.Vec3{1.9, 0, 0})
	if len(got) != 2 || got[0].Importance != 3 {
		t.Fatalf("Expected important probe first, got %+v", got)
	}

	if !r.UnregisterReflectionProbe(low) {
		t.Fatal("Expected UnregisterReflectionProbe to succeed")
	}
	if got := r.ReflectionProbesAt(mgl32.Vec3{-1.5, 0, 0}); got != nil {
		t.Errorf("Expected no probes after removal, got %+v", got)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := r.Register(Sphere(mgl32.Vec3{float32(i), 0, 0}, 1, ModeIntensityScale))
			if err != nil {
				t.Errorf("Register failed: %v", err)
				return
			}
			_ = r.Resolve(mgl32.Vec3{float32(i), 0, 0})
			if i%2 == 0 {
				r.Unregister(id)
			}
		}(i)
	}
	wg.Wait()
	if r.Len() != 4 {
		t.Errorf("Expected 4 remaining volumes, got %d", r.Len())
	}
}

func TestDefault_IsShared(t *testing.T) {
	if Default() != Default() {
		t.Error("Expected Default to return the same registry")
	}
}
