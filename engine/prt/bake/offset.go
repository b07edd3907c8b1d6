package bake

import (
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/adjustment"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/raycast"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// offsetDirectionCount is the number of lattice neighbor directions probed around each probe.
	offsetDirectionCount = 26

	// minOffsetValidity is the validity at or below which a probe keeps its lattice position.
	minOffsetValidity = 0.5

	// offsetDistanceScale pushes the probe slightly past the best hit.
	offsetDistanceScale = 1.05
)

// RayCaster answers closest-hit queries. raycast.Scene implements it.
type RayCaster interface {
	CastRay(origin, dir mgl32.Vec3, maxDistance float32) (raycast.Hit, bool)
}

// OffsetResult is the placement decision for one probe.
type OffsetResult struct {
	// Offset is added to the lattice position; zero when no offset applies.
	Offset mgl32.Vec3

	// Validity is 1 minus the fraction of sample rays that hit a front face.
	Validity float32

	// Applied is set when Offset was computed from a hit or taken from an adjustment override.
	Applied bool
}

var sampleDirections = buildSampleDirections()

// buildSampleDirections returns the 26 normalized 3x3x3 neighbor offsets, x-major.
func buildSampleDirections() [offsetDirectionCount]mgl32.Vec3 {
	var dirs [offsetDirectionCount]mgl32.Vec3
	n := 0
	for x := -1; x <= 1; x++ {
		for y := -1; y <= 1; y++ {
			for z := -1; z <= 1; z++ {
				if x == 0 && y == 0 && z == 0 {
					continue
				}
				dirs[n] = mgl32.Vec3{float32(x), float32(y), float32(z)}.Normalize()
				n++
			}
		}
	}
	return dirs
}

// SampleDirections returns the directions used for virtual offset placement.
//
// Returns:
//   - [26]mgl32.Vec3: unit directions to every 3x3x3 neighbor
func SampleDirections() [offsetDirectionCount]mgl32.Vec3 {
	return sampleDirections
}

// OffsetPlacer pushes probe capture points out of nearby geometry. Results are memoized by lattice position for
// the lifetime of the placer, which is one bake.
type OffsetPlacer struct {
	caster   RayCaster
	settings Settings
	registry adjustment.Registry
	memo     map[mgl32.Vec3]OffsetResult
}

// NewOffsetPlacer creates a placer.
//
// Parameters:
//   - caster: ray query backend
//   - settings: bake settings; zero fields take defaults
//   - registry: adjustment volumes consulted for overrides, may be nil
//
// Returns:
//   - *OffsetPlacer: the new placer
func NewOffsetPlacer(caster RayCaster, settings Settings, registry adjustment.Registry) *OffsetPlacer {
	return &OffsetPlacer{
		caster:   caster,
		settings: settings.WithDefaults(),
		registry: registry,
		memo:     make(map[mgl32.Vec3]OffsetResult),
	}
}

// Place computes the virtual offset for a probe at position.
//
// Rays are cast along each sample direction from position + dir*RayOriginBias. Hits whose surface normal points
// along the ray are back-face hits: the probe sits behind that surface, and the closest such hit (ties broken by
// alignment with the normal) is the exit candidate. Front-face hits count against validity. When validity is at
// or below 0.5, or no back face was found, the probe stays put.
//
// Parameters:
//   - position: lattice position of the probe
//
// Returns:
//   - OffsetResult: the placement decision
func (p *OffsetPlacer) Place(position mgl32.Vec3) OffsetResult {
	if r, ok := p.memo[position]; ok {
		return r
	}
	r := p.place(position)
	p.memo[position] = r
	return r
}

func (p *OffsetPlacer) place(position mgl32.Vec3) OffsetResult {
	geometryBias := p.settings.GeometryBias
	rayOriginBias := p.settings.RayOriginBias
	if p.registry != nil {
		o := p.registry.Resolve(position)
		if o.HasOffset {
			return OffsetResult{Offset: o.Offset, Validity: 1, Applied: true}
		}
		if o.HasBias {
			geometryBias = o.GeometryBias
			rayOriginBias = o.RayOriginBias
		}
	}

	var (
		frontFaces int
		found      bool
		bestDir    mgl32.Vec3
		bestDist   float32
		bestDot    float32
	)
	for _, dir := range sampleDirections {
		origin := position.Add(dir.Mul(rayOriginBias))
		hit, ok := p.caster.CastRay(origin, dir, p.settings.SearchDistance)
		if !ok {
			continue
		}
		if !hit.BackFace {
			frontFaces++
			continue
		}

		dot := hit.Normal.Dot(dir)
		switch {
		case !found, hit.Distance < bestDist-p.settings.DistanceEpsilon:
		case math32.Abs(hit.Distance-bestDist) <= p.settings.DistanceEpsilon && dot > bestDot+p.settings.AngleEpsilon:
		default:
			continue
		}
		found = true
		bestDir, bestDist, bestDot = dir, hit.Distance, dot
	}

	validity := 1 - float32(frontFaces)/offsetDirectionCount
	if validity <= minOffsetValidity || !found {
		return OffsetResult{Validity: validity}
	}
	return OffsetResult{
		Offset:   bestDir.Mul(bestDist*offsetDistanceScale + geometryBias),
		Validity: validity,
		Applied:  true,
	}
}
