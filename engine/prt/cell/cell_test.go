package cell

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

// twoBrickCell returns a small consistent cell: 3 surfels in 2 bricks, 3 probes where probe 1 is unlit.
func twoBrickCell() *Data {
	return &Data{
		BrickSize: 4,
		Surfels: []Surfel{
			{Position: mgl32.Vec3{0, 0, 0}, Normal: mgl32.Vec3{0, 1, 0}, Albedo: mgl32.Vec3{1, 1, 1}},
			{Position: mgl32.Vec3{1, 0, 0}, Normal: mgl32.Vec3{0, 1, 0}, Albedo: mgl32.Vec3{1, 0, 0}},
			{Position: mgl32.Vec3{5, 0, 0}, Normal: mgl32.Vec3{1, 0, 0}, Albedo: mgl32.Vec3{0, 1, 0}, SkyMask: 1},
		},
		Bricks: []SurfelRange{{Start: 0, Count: 2}, {Start: 2, Count: 1}},
		Factors: []BrickFactor{
			{BrickIndex: 0, Weight: 0.25},
			{BrickIndex: 1, Weight: 0.75},
			{BrickIndex: 1, Weight: 1},
		},
		Probes:   []FactorRange{{Start: 0, End: 1}, EmptyFactorRange(2), {Start: 2, End: 2}},
		Validity: []float32{1, 1, 0},
	}
}

func TestFactorRange_Empty(t *testing.T) {
	r := EmptyFactorRange(0)
	if r.Start != 0 || r.End != -1 {
		t.Fatalf("Expected {0,-1}, got %+v", r)
	}
	if !r.Empty() || r.Len() != 0 {
		t.Errorf("Expected empty range with length 0, got empty=%v len=%d", r.Empty(), r.Len())
	}

	full := FactorRange{Start: 3, End: 5}
	if full.Empty() || full.Len() != 3 {
		t.Errorf("Expected non-empty range of length 3, got empty=%v len=%d", full.Empty(), full.Len())
	}
}

func TestData_ValidateAcceptsConsistentCell(t *testing.T) {
	if err := twoBrickCell().Validate(); err != nil {
		t.Fatalf("Expected valid cell, got %v", err)
	}
	if err := (&Data{}).Validate(); err != nil {
		t.Errorf("Expected empty cell to be valid, got %v", err)
	}
}

func TestData_ValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Data)
	}{
		{"short validity", func(d *Data) { d.Validity = d.Validity[:2] }},
		{"brick gap", func(d *Data) { d.Bricks[1].Start = 3 }},
		{"bricks do not cover surfels", func(d *Data) { d.Surfels = append(d.Surfels, Surfel{}) }},
		{"factor brick out of range", func(d *Data) { d.Factors[2].BrickIndex = 2 }},
		{"negative factor brick", func(d *Data) { d.Factors[0].BrickIndex = -1 }},
		{"weight above one", func(d *Data) { d.Factors[0].Weight = 1.5 }},
		{"inverted probe range", func(d *Data) { d.Probes[1] = FactorRange{Start: 2, End: 0} }},
		{"probe range past factors", func(d *Data) { d.Probes[2].End = 3 }},
		{"probes leave factors uncovered", func(d *Data) { d.Factors = append(d.Factors, BrickFactor{}) }},
		{"nonzero first probe start", func(d *Data) { d.Probes[0].Start = 1 }},
		{"brick counts wrap around", func(d *Data) {
			d.Bricks = []SurfelRange{{Start: 0, Count: math.MaxInt32}, {Start: math.MaxInt32, Count: math.MaxInt32}, {Start: -2, Count: 5}}
		}},
		{"brick past surfels", func(d *Data) { d.Bricks[1].Count = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := twoBrickCell()
			tt.mutate(d)
			err := d.Validate()
			if !errors.Is(err, ErrInvalidCell) {
				t.Errorf("Expected ErrInvalidCell, got %v", err)
			}
		})
	}
}

func TestData_Accessors(t *testing.T) {
	d := twoBrickCell()

	if got := d.ProbeFactors(0); len(got) != 2 || got[1].BrickIndex != 1 {
		t.Errorf("Unexpected factors for probe 0: %+v", got)
	}
	if got := d.ProbeFactors(1); got != nil {
		t.Errorf("Expected nil factors for unlit probe, got %+v", got)
	}
	if got := d.ProbeFactors(7); got != nil {
		t.Errorf("Expected nil factors for out-of-range probe, got %+v", got)
	}
	if got := d.BrickSurfels(1); len(got) != 1 || got[0].SkyMask != 1 {
		t.Errorf("Unexpected surfels for brick 1: %+v", got)
	}
	if got := d.BrickSurfels(-1); got != nil {
		t.Errorf("Expected nil surfels for negative brick, got %+v", got)
	}
}

func TestQuery(t *testing.T) {
	q := NewQuery(twoBrickCell())

	if q.ProbeCount() != 3 || q.BrickCount() != 2 {
		t.Fatalf("Expected 3 probes and 2 bricks, got %d and %d", q.ProbeCount(), q.BrickCount())
	}

	center, normal, ok := q.BrickCenter(0)
	if !ok {
		t.Fatal("Expected brick 0 to have a center")
	}
	if !center.ApproxEqual(mgl32.Vec3{0.5, 0, 0}) {
		t.Errorf("Expected center (0.5,0,0), got %v", center)
	}
	if !normal.ApproxEqual(mgl32.Vec3{0, 1, 0}) {
		t.Errorf("Expected normal (0,1,0), got %v", normal)
	}
	if _, _, ok := q.BrickCenter(5); ok {
		t.Error("Expected no center for missing brick")
	}

	refs := q.ProbesReferencingBrick(1)
	if len(refs) != 2 || refs[0] != 0 || refs[1] != 2 {
		t.Errorf("Expected probes [0 2] to reference brick 1, got %v", refs)
	}

	if q.ProbeValidity(2) != 0 || q.ProbeValidity(0) != 1 || q.ProbeValidity(9) != 0 {
		t.Error("Unexpected validity values")
	}

	factors := q.ProbeFactors(0)
	factors[0].Weight = 0.9
	if q.ProbeFactors(0)[0].Weight != 0.25 {
		t.Error("Expected ProbeFactors to return a copy")
	}

	empty := NewQuery(nil)
	if empty.ProbeCount() != 0 || empty.ProbesReferencingBrick(0) != nil {
		t.Error("Expected nil cell to produce an empty view")
	}
}
