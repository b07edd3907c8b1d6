package adjustment

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chewxy/math32"
	"github.com/dhconnelly/rtreego"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrInvalidVolume is returned when a volume or reflection probe has non-finite or negative extents.
var ErrInvalidVolume = errors.New("invalid adjustment volume")

const (
	treeMinChildren = 25
	treeMaxChildren = 50

	// minRectExtent keeps degenerate (zero-size) volumes indexable; the exact Contains test still applies.
	minRectExtent  = 1e-4
	queryTolerance = 1e-6
)

// Registry tracks adjustment volumes and reflection-probe auxiliary data and answers position-containment queries.
//
// All methods are safe for concurrent use. Bounds are indexed in an R-tree for prefiltering; every candidate is
// then checked with an exact containment test.
type Registry interface {
	// Register adds a copy of v and returns its handle.
	//
	// Parameters:
	//   - v: the adjustment volume
	//
	// Returns:
	//   - uint64: handle for Unregister, strictly increasing in registration order
	//   - error: ErrInvalidVolume (wrapped) for negative or non-finite extents
	Register(v Volume) (uint64, error)

	// Unregister removes the volume with the given handle.
	//
	// Parameters:
	//   - id: handle returned by Register
	//
	// Returns:
	//   - bool: false when no such volume is registered
	Unregister(id uint64) bool

	// Query returns every volume containing p in registration order.
	//
	// Parameters:
	//   - p: world position
	//
	// Returns:
	//   - []Volume: copies of the containing volumes
	Query(p mgl32.Vec3) []Volume

	// Resolve folds every volume containing p into a single Overrides value. Later registrations win for offset
	// and bias overrides, intensity scales multiply, and any invalidating volume invalidates.
	//
	// Parameters:
	//   - p: world position
	//
	// Returns:
	//   - Overrides: the combined overrides, NoOverrides() when nothing contains p
	Resolve(p mgl32.Vec3) Overrides

	// Version returns a counter bumped by every adjustment volume registration or removal. Consumers that cache
	// resolved overrides compare it to detect staleness.
	Version() uint64

	// Len returns the number of registered adjustment volumes.
	Len() int

	// RegisterReflectionProbe adds reflection-probe auxiliary data.
	//
	// Parameters:
	//   - rp: the reflection probe
	//
	// Returns:
	//   - uint64: handle for UnregisterReflectionProbe
	//   - error: ErrInvalidVolume (wrapped) for negative or non-finite extents
	RegisterReflectionProbe(rp ReflectionProbe) (uint64, error)

	// UnregisterReflectionProbe removes a reflection probe.
	//
	// Parameters:
	//   - id: handle returned by RegisterReflectionProbe
	//
	// Returns:
	//   - bool: false when no such probe is registered
	UnregisterReflectionProbe(id uint64) bool

	// ReflectionProbesAt returns every reflection probe whose influence box contains p, highest importance first
	// and registration order among equals.
	//
	// Parameters:
	//   - p: world position
	//
	// Returns:
	//   - []ReflectionProbe: copies of the containing probes
	ReflectionProbesAt(p mgl32.Vec3) []ReflectionProbe
}

// entry is one indexed item of either tree.
type entry struct {
	id     uint64
	rect   rtreego.Rect
	volume Volume
	probe  ReflectionProbe
}

func (e *entry) Bounds() rtreego.Rect {
	return e.rect
}

// registryImpl is the implementation of the Registry interface.
type registryImpl struct {
	mu sync.RWMutex

	nextID  uint64
	version uint64

	volumes     *rtreego.Rtree
	volumeByID  map[uint64]*entry
	reflections *rtreego.Rtree
	probeByID   map[uint64]*entry
}

var _ Registry = &registryImpl{}

// NewRegistry creates an empty Registry.
//
// Returns:
//   - Registry: the new registry
func NewRegistry() Registry {
	return &registryImpl{
		volumes:     rtreego.NewTree(3, treeMinChildren, treeMaxChildren),
		volumeByID:  make(map[uint64]*entry),
		reflections: rtreego.NewTree(3, treeMinChildren, treeMaxChildren),
		probeByID:   make(map[uint64]*entry),
	}
}

var (
	defaultRegistry     Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry shared by baking and relighting.
//
// Returns:
//   - Registry: the shared registry
func Default() Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

func (r *registryImpl) Register(v Volume) (uint64, error) {
	lo, hi := v.Bounds()
	rect, err := boundsRect(lo, hi)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	e := &entry{id: r.nextID, rect: rect, volume: v}
	r.volumes.Insert(e)
	r.volumeByID[e.id] = e
	r.version++
	return e.id, nil
}

func (r *registryImpl) Unregister(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.volumeByID[id]
	if !ok {
		return false
	}
	r.volumes.Delete(e)
	delete(r.volumeByID, id)
	r.version++
	return true
}

func (r *registryImpl) Query(p mgl32.Vec3) []Volume {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hits := r.search(r.volumes, p, func(e *entry) bool { return e.volume.Contains(p) })
	if len(hits) == 0 {
		return nil
	}
	out := make([]Volume, len(hits))
	for i, e := range hits {
		out[i] = e.volume
	}
	return out
}

func (r *registryImpl) Resolve(p mgl32.Vec3) Overrides {
	o := NoOverrides()
	for _, v := range r.Query(p) {
		o.apply(v)
	}
	return o
}

func (r *registryImpl) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

func (r *registryImpl) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.volumeByID)
}

func (r *registryImpl) RegisterReflectionProbe(rp ReflectionProbe) (uint64, error) {
	lo, hi := rp.Bounds()
	rect, err := boundsRect(lo, hi)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	e := &entry{id: r.nextID, rect: rect, probe: rp}
	r.reflections.Insert(e)
	r.probeByID[e.id] = e
	return e.id, nil
}

func (r *registryImpl) UnregisterReflectionProbe(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.probeByID[id]
	if !ok {
		return false
	}
	r.reflections.Delete(e)
	delete(r.probeByID, id)
	return true
}

func (r *registryImpl) ReflectionProbesAt(p mgl32.Vec3) []ReflectionProbe {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hits := r.search(r.reflections, p, func(e *entry) bool { return e.probe.Contains(p) })
	if len(hits) == 0 {
		return nil
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].probe.Importance > hits[j].probe.Importance
	})
	out := make([]ReflectionProbe, len(hits))
	for i, e := range hits {
		out[i] = e.probe
	}
	return out
}

// search prefilters tree by the bounds around p, keeps entries accepted by contains, and orders them by handle.
// Callers must hold r.mu.
func (r *registryImpl) search(tree *rtreego.Rtree, p mgl32.Vec3, contains func(*entry) bool) []*entry {
	pt := rtreego.Point{float64(p[0]), float64(p[1]), float64(p[2])}
	var hits []*entry
	for _, s := range tree.SearchIntersect(pt.ToRect(queryTolerance)) {
		e := s.(*entry)
		if contains(e) {
			hits = append(hits, e)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].id < hits[j].id })
	return hits
}

func boundsRect(lo, hi mgl32.Vec3) (rtreego.Rect, error) {
	lengths := make([]float64, 3)
	for i := 0; i < 3; i++ {
		if math32.IsNaN(lo[i]) || math32.IsInf(lo[i], 0) || math32.IsNaN(hi[i]) || math32.IsInf(hi[i], 0) {
			return rtreego.Rect{}, fmt.Errorf("%w: non-finite bounds", ErrInvalidVolume)
		}
		l := float64(hi[i] - lo[i])
		if l < 0 {
			return rtreego.Rect{}, fmt.Errorf("%w: negative extent on axis %d", ErrInvalidVolume, i)
		}
		if l < minRectExtent {
			l = minRectExtent
		}
		lengths[i] = l
	}
	rect, err := rtreego.NewRect(rtreego.Point{float64(lo[0]), float64(lo[1]), float64(lo[2])}, lengths)
	if err != nil {
		return rtreego.Rect{}, fmt.Errorf("%w: %v", ErrInvalidVolume, err)
	}
	return rect, nil
}
