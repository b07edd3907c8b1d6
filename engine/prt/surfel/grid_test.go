package surfel

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/Carmen-Shannon/oxy-prt/engine/prt/cell"
	"github.com/go-gl/mathgl/mgl32"
)

var up = mgl32.Vec3{0, 1, 0}

func TestDominantDirection(t *testing.T) {
	tests := []struct {
		name string
		n    mgl32.Vec3
		want Direction
	}{
		{"pos x", mgl32.Vec3{0.9, 0.1, 0.1}, DirPosX},
		{"neg x", mgl32.Vec3{-0.9, 0.1, 0.1}, DirNegX},
		{"pos y", up, DirPosY},
		{"neg y", mgl32.Vec3{0.1, -0.8, 0.3}, DirNegY},
		{"pos z", mgl32.Vec3{0, 0, 1}, DirPosZ},
		{"neg z", mgl32.Vec3{0.2, 0.2, -0.7}, DirNegZ},
		{"tie x y", mgl32.Vec3{0.5, 0.5, 0}, DirPosX},
		{"tie y z", mgl32.Vec3{0, -0.5, 0.5}, DirNegY},
		{"zero", mgl32.Vec3{}, DirPosX},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DominantDirection(tt.n); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestBrickKey_Distinct(t *testing.T) {
	seen := make(map[uint64][3]int32)
	for x := int32(-3); x <= 3; x++ {
		for y := int32(-3); y <= 3; y++ {
			for z := int32(-3); z <= 3; z++ {
				c := [3]int32{x, y, z}
				k := BrickKey(c, DirPosY)
				if prev, ok := seen[k]; ok {
					t.Fatalf("Cells %v and %v share key %x", prev, c, k)
				}
				seen[k] = c
			}
		}
	}
	if BrickKey([3]int32{1, 2, 3}, DirPosX) == BrickKey([3]int32{1, 2, 3}, DirNegX) {
		t.Error("Expected direction to change the key")
	}
}

func TestCellCoord_FloorsNegative(t *testing.T) {
	got := CellCoord(mgl32.Vec3{-0.5, 3.9, 4}, 4)
	if got != [3]int32{-1, 0, 1} {
		t.Errorf("Expected [-1 0 1], got %v", got)
	}
}

func TestGrid_AddSurfelBucketsByCellAndDirection(t *testing.T) {
	g := NewGrid()
	g.AddSurfel(Surfel{Position: mgl32.Vec3{1, 1, 1}, Normal: up}, 0)
	g.AddSurfel(Surfel{Position: mgl32.Vec3{2, 1, 1}, Normal: up}, 1)
	g.AddSurfel(Surfel{Position: mgl32.Vec3{2, 1, 1}, Normal: mgl32.Vec3{1, 0, 0}}, 1)
	g.AddSurfel(Surfel{Position: mgl32.Vec3{5, 1, 1}, Normal: up}, 1)

	if g.SurfelCount() != 4 {
		t.Errorf("Expected 4 surfels, got %d", g.SurfelCount())
	}
	if g.BrickCount() != 3 {
		t.Errorf("Expected 3 bricks, got %d", g.BrickCount())
	}

	g.Reset()
	if g.SurfelCount() != 0 || g.BrickCount() != 0 {
		t.Error("Expected Reset to clear the grid")
	}
	if g.BrickSize() != 4 {
		t.Errorf("Expected default brick size 4, got %f", g.BrickSize())
	}
}

func TestGenerateCell_MergesNearbySurfels(t *testing.T) {
	g := NewGrid(WithBrickSize(4))
	g.AddSurfel(Surfel{Position: mgl32.Vec3{0, 0, 0}, Normal: up, Albedo: mgl32.Vec3{1, 0, 0}}, 0)
	g.AddSurfel(Surfel{Position: mgl32.Vec3{0.02, 0, 0}, Normal: up, Albedo: mgl32.Vec3{0, 0, 1}}, 0)

	d, err := g.GenerateCell([]mgl32.Vec3{{0, 2, 0}}, []float32{1})
	if err != nil {
		t.Fatalf("GenerateCell failed: %v", err)
	}
	if len(d.Surfels) != 1 || d.Bricks[0] != (cell.SurfelRange{Start: 0, Count: 1}) {
		t.Fatalf("Expected one merged surfel, got %d surfels, bricks %+v", len(d.Surfels), d.Bricks)
	}

	s := d.Surfels[0]
	if !s.Position.ApproxEqualThreshold(mgl32.Vec3{0.01, 0, 0}, 1e-6) {
		t.Errorf("Expected merged position (0.01,0,0), got %v", s.Position)
	}
	if math.Abs(float64(s.Normal.Len())-1) > 1e-5 {
		t.Errorf("Expected unit normal, got length %f", s.Normal.Len())
	}
	if !s.Albedo.ApproxEqual(mgl32.Vec3{0.5, 0, 0.5}) {
		t.Errorf("Expected averaged albedo, got %v", s.Albedo)
	}
	if d.Probes[0] != (cell.FactorRange{Start: 0, End: 0}) || d.Factors[0].Weight != 1 {
		t.Errorf("Expected a single full-weight factor, got %+v %+v", d.Probes[0], d.Factors)
	}
}

func TestGenerateCell_MergeRenormalizes(t *testing.T) {
	g := NewGrid()
	g.AddSurfel(Surfel{Position: mgl32.Vec3{1, 1, 1}, Normal: mgl32.Vec3{0.6, 0.8, 0}}, 0)
	g.AddSurfel(Surfel{Position: mgl32.Vec3{1.01, 1, 1}, Normal: mgl32.Vec3{0, 1, 0.1}}, 0)

	d, err := g.GenerateCell([]mgl32.Vec3{{1, 3, 1}}, []float32{1})
	if err != nil {
		t.Fatalf("GenerateCell failed: %v", err)
	}
	if n := d.Surfels[0].Normal.Len(); math.Abs(float64(n)-1) > 1e-5 {
		t.Errorf("Expected unit normal, got length %f", n)
	}

	g = NewGrid()
	g.AddSurfel(Surfel{Position: mgl32.Vec3{1, 1, 1}, Normal: mgl32.Vec3{0, 0, 1}}, 0)
	g.AddSurfel(Surfel{Position: mgl32.Vec3{1, 1, 1}, Normal: mgl32.Vec3{0, 0, -1}}, 0)
	d, err = g.GenerateCell([]mgl32.Vec3{{1, 1, 3}}, []float32{1})
	if err != nil {
		t.Fatalf("GenerateCell failed: %v", err)
	}
	// opposite normals land in different bricks, so each survives unmerged
	if len(d.Bricks) != 2 || len(d.Surfels) != 2 {
		t.Errorf("Expected 2 bricks of 1 surfel, got %d bricks and %d surfels", len(d.Bricks), len(d.Surfels))
	}
}

func TestGenerateCell_ZeroBrickProbe(t *testing.T) {
	g := NewGrid()
	g.AddSurfel(Surfel{Position: mgl32.Vec3{0, 0, 0}, Normal: up}, 1)

	d, err := g.GenerateCell([]mgl32.Vec3{{0, 2, 0}, {0, 2, 0}}, []float32{1, 1})
	if err != nil {
		t.Fatalf("GenerateCell failed: %v", err)
	}
	if d.Probes[0] != (cell.FactorRange{Start: 0, End: -1}) {
		t.Errorf("Expected {0,-1} for probe without bricks, got %+v", d.Probes[0])
	}
	if d.Probes[1] != (cell.FactorRange{Start: 0, End: 0}) {
		t.Errorf("Expected {0,0} for lit probe, got %+v", d.Probes[1])
	}
	if err := d.Validate(); err != nil {
		t.Errorf("Expected valid cell, got %v", err)
	}
}

func TestGenerateCell_ZeroWeightProbe(t *testing.T) {
	g := NewGrid()
	g.AddSurfel(Surfel{Position: mgl32.Vec3{0, 0, 0}, Normal: up}, 0)
	g.AddSurfel(Surfel{Position: mgl32.Vec3{0, 0, 0}, Normal: up}, 1)

	// probe 0 sits below a surface facing up, so its only brick contributes nothing
	d, err := g.GenerateCell([]mgl32.Vec3{{0, -2, 0}, {0, 2, 0}}, []float32{1, 1})
	if err != nil {
		t.Fatalf("GenerateCell failed: %v", err)
	}
	if !d.Probes[0].Empty() || d.Probes[0].Start != 0 {
		t.Errorf("Expected empty range at 0, got %+v", d.Probes[0])
	}
	if d.Probes[1].Len() != 1 {
		t.Errorf("Expected one factor for probe 1, got %+v", d.Probes[1])
	}
}

func TestGenerateCell_InputErrors(t *testing.T) {
	g := NewGrid()
	g.AddSurfel(Surfel{Position: mgl32.Vec3{0, 0, 0}, Normal: up}, 3)

	if _, err := g.GenerateCell([]mgl32.Vec3{{}, {}}, []float32{1}); !errors.Is(err, ErrValidityLength) {
		t.Errorf("Expected ErrValidityLength, got %v", err)
	}
	if _, err := g.GenerateCell([]mgl32.Vec3{{}, {}}, []float32{1, 1}); !errors.Is(err, ErrProbeIndex) {
		t.Errorf("Expected ErrProbeIndex, got %v", err)
	}
}

// fillRandom adds a reproducible cloud of surfels spread over several bricks and probes.
func fillRandom(g Grid, probes []mgl32.Vec3, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for p := range probes {
		for i := 0; i < 200; i++ {
			pos := mgl32.Vec3{rng.Float32()*16 - 8, rng.Float32()*16 - 8, rng.Float32()*16 - 8}
			n := mgl32.Vec3{rng.Float32()*2 - 1, rng.Float32()*2 - 1, rng.Float32()*2 - 1}
			if n.Len() < 1e-3 {
				n = up
			}
			g.AddSurfel(Surfel{
				Position: pos,
				Normal:   n.Normalize(),
				Albedo:   mgl32.Vec3{rng.Float32(), rng.Float32(), rng.Float32()},
				SkyMask:  float32(i % 2),
			}, p)
		}
	}
}

func probeLattice() []mgl32.Vec3 {
	var out []mgl32.Vec3
	for x := 0; x < 3; x++ {
		for y := 0; y < 3; y++ {
			for z := 0; z < 3; z++ {
				out = append(out, mgl32.Vec3{float32(x*4 - 4), float32(y*4 - 4), float32(z*4 - 4)})
			}
		}
	}
	return out
}

func TestGenerateCell_Invariants(t *testing.T) {
	probes := probeLattice()
	validity := make([]float32, len(probes))
	for i := range validity {
		validity[i] = 1
	}
	validity[5] = 0

	g := NewGrid()
	fillRandom(g, probes, 7)
	d, err := g.GenerateCell(probes, validity)
	if err != nil {
		t.Fatalf("GenerateCell failed: %v", err)
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("Expected valid cell, got %v", err)
	}

	owner := make([]int, len(d.Surfels))
	for i := range owner {
		owner[i] = -1
	}
	for b, r := range d.Bricks {
		for s := r.Start; s < r.Start+r.Count; s++ {
			if owner[s] != -1 {
				t.Fatalf("Surfel %d owned by bricks %d and %d", s, owner[s], b)
			}
			owner[s] = b
		}
	}
	for s, b := range owner {
		if b == -1 {
			t.Fatalf("Surfel %d belongs to no brick", s)
		}
	}

	for i, s := range d.Surfels {
		if math.Abs(float64(s.Normal.Len())-1) > 1e-5 {
			t.Errorf("Surfel %d normal length %f", i, s.Normal.Len())
		}
	}

	for p := range probes {
		factors := d.ProbeFactors(p)
		if len(factors) == 0 {
			continue
		}
		var sum float64
		for i, f := range factors {
			sum += float64(f.Weight)
			if i > 0 && factors[i-1].BrickIndex >= f.BrickIndex {
				t.Errorf("Probe %d factors not strictly ascending by brick", p)
			}
		}
		if math.Abs(sum-1) >= 1e-5 {
			t.Errorf("Probe %d weights sum to %f", p, sum)
		}
	}

	if d.Validity[5] != 0 || d.Validity[0] != 1 {
		t.Error("Expected validity mask copied unchanged")
	}
	validity[0] = 0
	if d.Validity[0] != 1 {
		t.Error("Expected validity mask to be copied, not aliased")
	}
}

func TestGenerateCell_Deterministic(t *testing.T) {
	probes := probeLattice()
	validity := make([]float32, len(probes))
	for i := range validity {
		validity[i] = 1
	}

	encode := func() []byte {
		g := NewGrid()
		fillRandom(g, probes, 42)
		d, err := g.GenerateCell(probes, validity)
		if err != nil {
			t.Fatalf("GenerateCell failed: %v", err)
		}
		var buf bytes.Buffer
		if err := (&cell.Asset{HasValidData: true, Cell: d}).Encode(&buf); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		return buf.Bytes()
	}

	first := encode()
	for i := 0; i < 3; i++ {
		if !bytes.Equal(first, encode()) {
			t.Fatalf("Run %d produced different bytes", i+1)
		}
	}
}
