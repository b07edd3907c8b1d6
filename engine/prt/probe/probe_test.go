package probe

import (
	"errors"
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

func testGrid() Grid {
	return Grid{Dims: [3]int{3, 4, 5}, Spacing: mgl32.Vec3{2, 2, 2}, Origin: mgl32.Vec3{-2, 0, 10}}
}

func TestGrid_IndexRowMajor(t *testing.T) {
	g := testGrid()
	tests := []struct {
		x, y, z int
		want    int
	}{
		{0, 0, 0, 0},
		{0, 0, 1, 1},
		{0, 1, 0, 5},
		{1, 0, 0, 20},
		{2, 3, 4, 59},
	}
	for _, tt := range tests {
		if got := g.Index(tt.x, tt.y, tt.z); got != tt.want {
			t.Errorf("Index(%d,%d,%d): expected %d, got %d", tt.x, tt.y, tt.z, tt.want, got)
		}
		x, y, z := g.Coord(tt.want)
		if x != tt.x || y != tt.y || z != tt.z {
			t.Errorf("Coord(%d): expected (%d,%d,%d), got (%d,%d,%d)", tt.want, tt.x, tt.y, tt.z, x, y, z)
		}
	}
}

func TestGrid_Allocate(t *testing.T) {
	g := testGrid()
	probes := g.Allocate()
	if len(probes) != 60 {
		t.Fatalf("Expected 60 probes, got %d", len(probes))
	}
	for i, p := range probes {
		if p.Index != i {
			t.Fatalf("Probe %d carries index %d", i, p.Index)
		}
	}
	if probes[59].Base != (mgl32.Vec3{2, 6, 18}) {
		t.Errorf("Expected last probe at (2,6,18), got %v", probes[59].Base)
	}

	probes[1].VirtualOffset = mgl32.Vec3{0, 0.5, 0}
	pos := Positions(probes)
	if pos[1] != (mgl32.Vec3{-2, 0.5, 12}) {
		t.Errorf("Expected offset position (-2,0.5,12), got %v", pos[1])
	}

	if (Grid{}).Allocate() != nil {
		t.Error("Expected nil probes for empty grid")
	}
}

func TestGrid_Validate(t *testing.T) {
	if err := testGrid().Validate(); err != nil {
		t.Fatalf("Expected valid grid, got %v", err)
	}
	bad := []Grid{
		{Dims: [3]int{0, 1, 1}, Spacing: mgl32.Vec3{1, 1, 1}},
		{Dims: [3]int{1, 1, 1}, Spacing: mgl32.Vec3{1, 0, 1}},
	}
	for i, g := range bad {
		if err := g.Validate(); !errors.Is(err, ErrInvalidGrid) {
			t.Errorf("Grid %d: expected ErrInvalidGrid, got %v", i, err)
		}
	}
}

func TestGrid_IndicesInBox(t *testing.T) {
	g := Grid{Dims: [3]int{4, 4, 4}, Spacing: mgl32.Vec3{1, 1, 1}}

	got := g.IndicesInBox(mgl32.Vec3{0.5, 0.5, 0.5}, mgl32.Vec3{2, 1.5, 1})
	want := []int{g.Index(1, 1, 1), g.Index(2, 1, 1)}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
		}
	}

	if all := g.IndicesInBox(mgl32.Vec3{-10, -10, -10}, mgl32.Vec3{10, 10, 10}); len(all) != 64 {
		t.Errorf("Expected all 64 probes, got %d", len(all))
	}
	if none := g.IndicesInBox(mgl32.Vec3{10, 10, 10}, mgl32.Vec3{11, 11, 11}); none != nil {
		t.Errorf("Expected no probes, got %v", none)
	}

	huge := float32(1e30)
	if all := g.IndicesInBox(mgl32.Vec3{-huge, -huge, -huge}, mgl32.Vec3{huge, huge, huge}); len(all) != 64 {
		t.Errorf("Expected all 64 probes for a huge box, got %d", len(all))
	}
	inf := math32.Inf(1)
	if all := g.IndicesInBox(mgl32.Vec3{-inf, -inf, -inf}, mgl32.Vec3{inf, inf, inf}); len(all) != 64 {
		t.Errorf("Expected all 64 probes for an infinite box, got %d", len(all))
	}
	if none := g.IndicesInBox(mgl32.Vec3{huge, huge, huge}, mgl32.Vec3{inf, inf, inf}); none != nil {
		t.Errorf("Expected no probes beyond the lattice, got %v", none)
	}
}
