package surfel

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// cluster accumulates the arithmetic sums of one merge bucket.
type cluster struct {
	position mgl32.Vec3
	normal   mgl32.Vec3
	albedo   mgl32.Vec3
	sky      float32
	first    mgl32.Vec3
	count    int
}

// mergeBrick appends the merged surfels of b to dst. Member surfels are bucketed by floor(position / mergeStep)
// and each bucket collapses to its mean, buckets emitted in order of first appearance. The merged normal is
// renormalized, falling back to the bucket's first normal when the mean cancels out.
func (g *gridImpl) mergeBrick(dst []Surfel, b *brick) []Surfel {
	if len(b.surfels) == 1 {
		s := g.surfels[b.surfels[0]]
		s.Normal = safeNormalize(s.Normal, s.Normal)
		return append(dst, s)
	}

	buckets := make(map[[3]int32]int, len(b.surfels))
	clusters := make([]cluster, 0, len(b.surfels))

	for _, si := range b.surfels {
		s := g.surfels[si]
		q := quantize(s.Position, g.mergeStep)
		ci, ok := buckets[q]
		if !ok {
			ci = len(clusters)
			buckets[q] = ci
			clusters = append(clusters, cluster{first: s.Normal})
		}
		c := &clusters[ci]
		c.position = c.position.Add(s.Position)
		c.normal = c.normal.Add(s.Normal)
		c.albedo = c.albedo.Add(s.Albedo)
		c.sky += s.SkyMask
		c.count++
	}

	for _, c := range clusters {
		inv := 1 / float32(c.count)
		dst = append(dst, Surfel{
			Position: c.position.Mul(inv),
			Normal:   safeNormalize(c.normal.Mul(inv), safeNormalize(c.first, c.first)),
			Albedo:   c.albedo.Mul(inv),
			SkyMask:  c.sky * inv,
		})
	}
	return dst
}

func quantize(p mgl32.Vec3, step float32) [3]int32 {
	return [3]int32{
		int32(math32.Floor(p[0] / step)),
		int32(math32.Floor(p[1] / step)),
		int32(math32.Floor(p[2] / step)),
	}
}
