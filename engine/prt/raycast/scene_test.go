package raycast

import (
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

func TestTriangle_Normal(t *testing.T) {
	tri := Triangle{V0: mgl32.Vec3{0, 0, 0}, V1: mgl32.Vec3{1, 0, 0}, V2: mgl32.Vec3{0, 1, 0}}
	if n := tri.Normal(); n != (mgl32.Vec3{0, 0, 1}) {
		t.Errorf("Expected +Z normal, got %v", n)
	}
	if n := (Triangle{}).Normal(); n != (mgl32.Vec3{}) {
		t.Errorf("Expected zero normal for degenerate triangle, got %v", n)
	}
}

func TestScene_BoxFaces(t *testing.T) {
	s := NewScene()
	s.AddBox(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1}, mgl32.Vec3{0.5, 0.5, 0.5})
	if s.TriangleCount() != 12 {
		t.Fatalf("Expected 12 triangles, got %d", s.TriangleCount())
	}

	tests := []struct {
		name     string
		origin   mgl32.Vec3
		dir      mgl32.Vec3
		distance float32
		normal   mgl32.Vec3
		backFace bool
	}{
		{"outside +x", mgl32.Vec3{5, 0.2, 0.1}, mgl32.Vec3{-1, 0, 0}, 4, mgl32.Vec3{1, 0, 0}, false},
		{"outside -y", mgl32.Vec3{0.3, -3, 0}, mgl32.Vec3{0, 1, 0}, 2, mgl32.Vec3{0, -1, 0}, false},
		{"outside +z", mgl32.Vec3{0, 0.4, 2}, mgl32.Vec3{0, 0, -1}, 1, mgl32.Vec3{0, 0, 1}, false},
		{"inside towards +y", mgl32.Vec3{0.1, 0.5, 0.2}, mgl32.Vec3{0, 1, 0}, 0.5, mgl32.Vec3{0, 1, 0}, true},
		{"inside towards -x", mgl32.Vec3{0.25, 0.1, 0.3}, mgl32.Vec3{-1, 0, 0}, 1.25, mgl32.Vec3{-1, 0, 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit, ok := s.CastRay(tt.origin, tt.dir, 100)
			if !ok {
				t.Fatal("Expected a hit")
			}
			if math32.Abs(hit.Distance-tt.distance) > 1e-5 {
				t.Errorf("Expected distance %f, got %f", tt.distance, hit.Distance)
			}
			if !hit.Normal.ApproxEqual(tt.normal) {
				t.Errorf("Expected normal %v, got %v", tt.normal, hit.Normal)
			}
			if hit.BackFace != tt.backFace {
				t.Errorf("Expected backFace %v, got %v", tt.backFace, hit.BackFace)
			}
			if hit.Albedo != (mgl32.Vec3{0.5, 0.5, 0.5}) {
				t.Errorf("Unexpected albedo %v", hit.Albedo)
			}
		})
	}
}

func TestScene_RoomFacesInward(t *testing.T) {
	s := NewScene()
	s.AddRoom(mgl32.Vec3{-2, -2, -2}, mgl32.Vec3{2, 2, 2}, mgl32.Vec3{1, 1, 1})

	hit, ok := s.CastRay(mgl32.Vec3{0.3, -0.2, 0}, mgl32.Vec3{0, 0, 1}, 10)
	if !ok {
		t.Fatal("Expected a hit")
	}
	if hit.BackFace || !hit.Normal.ApproxEqual(mgl32.Vec3{0, 0, -1}) {
		t.Errorf("Expected an inward front face, got normal %v backFace %v", hit.Normal, hit.BackFace)
	}
}

func TestScene_MissAndMaxDistance(t *testing.T) {
	s := NewScene()
	if _, ok := s.CastRay(mgl32.Vec3{}, mgl32.Vec3{1, 0, 0}, 10); ok {
		t.Error("Expected empty scene to miss")
	}

	s.AddBox(mgl32.Vec3{4, -1, -1}, mgl32.Vec3{6, 1, 1}, mgl32.Vec3{1, 1, 1})
	if _, ok := s.CastRay(mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}, 10); ok {
		t.Error("Expected ray pointing away to miss")
	}
	if _, ok := s.CastRay(mgl32.Vec3{}, mgl32.Vec3{1, 0, 0}, 3.5); ok {
		t.Error("Expected hit beyond max distance to be ignored")
	}
	if hit, ok := s.CastRay(mgl32.Vec3{}, mgl32.Vec3{1, 0, 0}, 4.5); !ok || math32.Abs(hit.Distance-4) > 1e-5 {
		t.Errorf("Expected hit at 4, got %v %v", hit.Distance, ok)
	}
}

func TestScene_BVHMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	s := NewScene().(*sceneImpl)
	for i := 0; i < 300; i++ {
		c := mgl32.Vec3{rng.Float32()*20 - 10, rng.Float32()*20 - 10, rng.Float32()*20 - 10}
		s.AddTriangle(Triangle{
			V0: c,
			V1: c.Add(mgl32.Vec3{rng.Float32(), rng.Float32(), rng.Float32()}),
			V2: c.Add(mgl32.Vec3{rng.Float32(), rng.Float32(), -rng.Float32()}),
		})
	}

	for r := 0; r < 200; r++ {
		dir := mgl32.Vec3{rng.Float32()*2 - 1, rng.Float32()*2 - 1, rng.Float32()*2 - 1}
		if dir.Len() < 1e-3 {
			continue
		}
		dir = dir.Normalize()
		origin := mgl32.Vec3{rng.Float32()*4 - 2, rng.Float32()*4 - 2, rng.Float32()*4 - 2}

		wantT, wantOK := float32(50), false
		for _, tri := range s.tris {
			if d, ok := tri.intersect(origin, dir, 0, wantT); ok {
				wantT, wantOK = d, true
			}
		}

		hit, ok := s.CastRay(origin, dir, 50)
		if ok != wantOK {
			t.Fatalf("Ray %d: BVH hit=%v, brute force hit=%v", r, ok, wantOK)
		}
		if ok && math32.Abs(hit.Distance-wantT) > 1e-4 {
			t.Fatalf("Ray %d: BVH distance %f, brute force %f", r, hit.Distance, wantT)
		}
	}
}
