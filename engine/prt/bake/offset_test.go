package bake

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-prt/engine/prt/adjustment"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/raycast"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// fakeCaster answers from a per-direction table and counts queries.
type fakeCaster struct {
	hits  map[mgl32.Vec3]raycast.Hit
	calls int
}

func (f *fakeCaster) CastRay(origin, dir mgl32.Vec3, maxDistance float32) (raycast.Hit, bool) {
	f.calls++
	h, ok := f.hits[dir]
	if !ok || h.Distance > maxDistance {
		return raycast.Hit{}, false
	}
	return h, true
}

// backHit builds a back-face hit along dir with the given distance and normal alignment.
func backHit(dir mgl32.Vec3, distance float32) raycast.Hit {
	return raycast.Hit{Distance: distance, Normal: dir, BackFace: true}
}

func frontHit(dir mgl32.Vec3, distance float32) raycast.Hit {
	return raycast.Hit{Distance: distance, Normal: dir.Mul(-1)}
}

func TestSampleDirections(t *testing.T) {
	dirs := SampleDirections()
	seen := make(map[mgl32.Vec3]bool)
	for _, d := range dirs {
		if math32.Abs(d.Len()-1) > 1e-6 {
			t.Errorf("Direction %v is not normalized", d)
		}
		if seen[d] {
			t.Errorf("Direction %v repeated", d)
		}
		seen[d] = true
	}
}

func TestOffsetPlacer_EnclosedProbePushedOut(t *testing.T) {
	scene := raycast.NewScene()
	scene.AddBox(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1}, mgl32.Vec3{1, 1, 1})

	p := NewOffsetPlacer(scene, Settings{}, nil)
	pos := mgl32.Vec3{0.8, 0.1, -0.2}
	r := p.Place(pos)

	if !r.Applied || r.Validity != 1 {
		t.Fatalf("Expected applied offset with validity 1, got %+v", r)
	}
	moved := pos.Add(r.Offset)
	if moved[0] <= 1 || r.Offset[1] != 0 || r.Offset[2] != 0 {
		t.Errorf("Expected probe pushed through the +X face, got %v", moved)
	}
}

func TestOffsetPlacer_ValidityThreshold(t *testing.T) {
	dirs := SampleDirections()

	tests := []struct {
		name       string
		frontFaces int
		applied    bool
	}{
		{"all front faces", 26, false},
		{"half front faces", 13, false},
		{"just under half", 12, true},
		{"no front faces", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCaster{hits: make(map[mgl32.Vec3]raycast.Hit)}
			for i, d := range dirs {
				if i < tt.frontFaces {
					c.hits[d] = frontHit(d, 0.5)
				} else {
					c.hits[d] = backHit(d, 0.5+float32(i)*0.01)
				}
			}

			r := NewOffsetPlacer(c, Settings{}, nil).Place(mgl32.Vec3{})
			want := 1 - float32(tt.frontFaces)/26
			if math32.Abs(r.Validity-want) > 1e-6 {
				t.Errorf("Expected validity %f, got %f", want, r.Validity)
			}
			if r.Applied != tt.applied {
				t.Errorf("Expected applied=%v, got %+v", tt.applied, r)
			}
			if !tt.applied && r.Offset != (mgl32.Vec3{}) {
				t.Errorf("Expected no offset, got %v", r.Offset)
			}
		})
	}
}

func TestOffsetPlacer_BestHitSelection(t *testing.T) {
	dirs := SampleDirections()
	s := DefaultSettings()

	// dirs[0] is closest, dirs[1] ties with dirs[2] but dirs[2] is better aligned
	c := &fakeCaster{hits: map[mgl32.Vec3]raycast.Hit{
		dirs[1]: {Distance: 0.3, Normal: dirs[1].Add(mgl32.Vec3{0, 0.5, 0}).Normalize(), BackFace: true},
		dirs[2]: {Distance: 0.3, Normal: dirs[2], BackFace: true},
	}}
	r := NewOffsetPlacer(c, s, nil).Place(mgl32.Vec3{})
	want := dirs[2].Mul(0.3*offsetDistanceScale + s.GeometryBias)
	if !r.Offset.ApproxEqual(want) {
		t.Errorf("Expected better-aligned tie to win with offset %v, got %v", want, r.Offset)
	}

	c.hits[dirs[0]] = raycast.Hit{Distance: 0.2, Normal: dirs[0].Add(mgl32.Vec3{0.3, 0.3, 0}).Normalize(), BackFace: true}
	r = NewOffsetPlacer(c, s, nil).Place(mgl32.Vec3{})
	want = dirs[0].Mul(0.2*offsetDistanceScale + s.GeometryBias)
	if !r.Offset.ApproxEqual(want) {
		t.Errorf("Expected strictly closer hit to win with offset %v, got %v", want, r.Offset)
	}
}

func TestOffsetPlacer_Memoized(t *testing.T) {
	c := &fakeCaster{hits: map[mgl32.Vec3]raycast.Hit{}}
	p := NewOffsetPlacer(c, Settings{}, nil)

	p.Place(mgl32.Vec3{1, 2, 3})
	if c.calls != 26 {
		t.Fatalf("Expected 26 ray casts, got %d", c.calls)
	}
	p.Place(mgl32.Vec3{1, 2, 3})
	if c.calls != 26 {
		t.Errorf("Expected memoized result, got %d casts", c.calls)
	}
	p.Place(mgl32.Vec3{1, 2, 4})
	if c.calls != 52 {
		t.Errorf("Expected new position to cast again, got %d casts", c.calls)
	}
}

func TestOffsetPlacer_AdjustmentOverrides(t *testing.T) {
	dirs := SampleDirections()
	reg := adjustment.NewRegistry()

	override := adjustment.Sphere(mgl32.Vec3{}, 1, adjustment.ModeOverrideVirtualOffset)
	override.OffsetDirection = mgl32.Vec3{0, 3, 0}
	override.OffsetDistance = 0.4
	if _, err := reg.Register(override); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	bias := adjustment.Sphere(mgl32.Vec3{10, 0, 0}, 1, adjustment.ModeOverrideBias)
	bias.GeometryBias = 0.5
	if _, err := reg.Register(bias); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	c := &fakeCaster{hits: map[mgl32.Vec3]raycast.Hit{dirs[4]: backHit(dirs[4], 0.2)}}
	p := NewOffsetPlacer(c, Settings{}, reg)

	r := p.Place(mgl32.Vec3{})
	if !r.Applied || !r.Offset.ApproxEqual(mgl32.Vec3{0, 0.4, 0}) || c.calls != 0 {
		t.Errorf("Expected direct override without ray casts, got %+v after %d casts", r, c.calls)
	}

	r = p.Place(mgl32.Vec3{10, 0, 0})
	want := dirs[4].Mul(0.2*offsetDistanceScale + 0.5)
	if !r.Offset.ApproxEqual(want) {
		t.Errorf("Expected overridden geometry bias offset %v, got %v", want, r.Offset)
	}
}
