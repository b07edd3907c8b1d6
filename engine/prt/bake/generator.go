package bake

import (
	"github.com/Carmen-Shannon/oxy-prt/common"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/surfel"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// SampleGenerator produces the surface samples seen from a probe position. Implementations may hold scene
// acceleration state that is not safe for concurrent use; the session calls them from one goroutine.
type SampleGenerator interface {
	// Generate returns the surfels visible from position.
	//
	// Parameters:
	//   - position: world capture position (lattice position plus virtual offset)
	//
	// Returns:
	//   - []surfel.Surfel: the samples
	//   - error: any failure; it aborts the bake
	Generate(position mgl32.Vec3) ([]surfel.Surfel, error)

	// Progress receives bake progress updates.
	//
	// Parameters:
	//   - status: human-readable status line
	//   - fraction: completed fraction in [0,1]
	Progress(status string, fraction float32)
}

// SceneSampler is a reference SampleGenerator that casts a fixed Fibonacci-sphere ray set against a RayCaster.
// A hit yields a solid surfel with its normal turned toward the probe; a miss yields a sky surfel at MaxDistance.
type SceneSampler struct {
	caster      RayCaster
	directions  []mgl32.Vec3
	maxDistance float32
	logger      common.Logger

	lastDecile int
}

var _ SampleGenerator = &SceneSampler{}

// NewSceneSampler creates a sampler.
//
// Parameters:
//   - caster: ray query backend
//   - sampleCount: rays per probe, DefaultSampleCount when not positive
//   - maxDistance: ray length and sky distance, DefaultMaxDistance when not positive
//   - logger: progress sink, common.DefaultLogger() when nil
//
// Returns:
//   - *SceneSampler: the new sampler
func NewSceneSampler(caster RayCaster, sampleCount int, maxDistance float32, logger common.Logger) *SceneSampler {
	if sampleCount <= 0 {
		sampleCount = DefaultSampleCount
	}
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	if logger == nil {
		logger = common.DefaultLogger()
	}
	return &SceneSampler{
		caster:      caster,
		directions:  FibonacciSphere(sampleCount),
		maxDistance: maxDistance,
		logger:      logger,
		lastDecile:  -1,
	}
}

func (s *SceneSampler) Generate(position mgl32.Vec3) ([]surfel.Surfel, error) {
	out := make([]surfel.Surfel, 0, len(s.directions))
	for _, dir := range s.directions {
		hit, ok := s.caster.CastRay(position, dir, s.maxDistance)
		if !ok {
			out = append(out, surfel.Surfel{
				Position: position.Add(dir.Mul(s.maxDistance)),
				Normal:   dir.Mul(-1),
				SkyMask:  1,
			})
			continue
		}
		n := hit.Normal
		if n.Dot(dir) > 0 {
			n = n.Mul(-1)
		}
		out = append(out, surfel.Surfel{Position: hit.Position, Normal: n, Albedo: hit.Albedo})
	}
	return out, nil
}

// Progress logs once per completed tenth of the bake.
func (s *SceneSampler) Progress(status string, fraction float32) {
	decile := int(math32.Floor(common.Clamp(fraction, 0, 1) * 10))
	if decile == s.lastDecile {
		return
	}
	s.lastDecile = decile
	s.logger.Printf("[Bake] %s (%d%%)", status, decile*10)
}

// FibonacciSphere returns n near-uniform unit directions on the sphere.
//
// Parameters:
//   - n: direction count
//
// Returns:
//   - []mgl32.Vec3: the directions
func FibonacciSphere(n int) []mgl32.Vec3 {
	golden := math32.Pi * (3 - math32.Sqrt(5))
	dirs := make([]mgl32.Vec3, n)
	for i := 0; i < n; i++ {
		y := 1 - 2*(float32(i)+0.5)/float32(n)
		r := math32.Sqrt(math32.Max(0, 1-y*y))
		phi := golden * float32(i)
		dirs[i] = mgl32.Vec3{math32.Cos(phi) * r, y, math32.Sin(phi) * r}
	}
	return dirs
}
