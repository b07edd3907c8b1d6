// Package volume owns a probe volume's runtime state: its probe lattice, the baked asset it publishes, and the
// Unbaked → Baking → Baked(Idle) ⇄ Baked(Relighting) state machine. Baking is admitted through a BakeGate.
package volume

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Carmen-Shannon/oxy-prt/engine/prt/cell"
	"github.com/Carmen-Shannon/oxy-prt/engine/prt/probe"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	// ErrBakeInProgress is returned when an operation conflicts with a running bake.
	ErrBakeInProgress = errors.New("a probe volume bake is already in progress")

	// ErrNotBaked is returned when an operation needs valid baked data and the volume has none.
	ErrNotBaked = errors.New("probe volume has no baked data")

	// ErrProbeCountMismatch is returned when an asset describes a different number of probes than the volume owns.
	ErrProbeCountMismatch = errors.New("asset probe count does not match volume")

	// ErrTokenSpent is returned by a BakeToken that already committed or aborted.
	ErrTokenSpent = errors.New("bake token already released")

	// ErrVolumeBusy is returned when a bake is requested for a volume that is being relit.
	ErrVolumeBusy = errors.New("probe volume is relighting")
)

// State is the runtime state of a probe volume.
type State int

const (
	StateUnbaked State = iota
	StateBaking
	StateBakedIdle
	StateBakedRelighting
)

// String returns a human-readable state name for logs.
func (s State) String() string {
	switch s {
	case StateUnbaked:
		return "Unbaked"
	case StateBaking:
		return "Baking"
	case StateBakedIdle:
		return "Baked(Idle)"
	case StateBakedRelighting:
		return "Baked(Relighting)"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Volume is a probe volume. Its published cell is immutable; every change replaces it and bumps Generation.
//
// Volumes are safe for concurrent use. State changes into and out of Baking are only possible through a BakeToken.
type Volume interface {
	// Name returns the volume's display name.
	Name() string

	// Grid returns the probe lattice description.
	Grid() probe.Grid

	// Configure applies a new lattice. Probes are reallocated only when the dimensions change, in which case the
	// baked asset no longer matches and is dropped. A spacing or origin change moves probes in place.
	//
	// Parameters:
	//   - g: the new lattice
	//
	// Returns:
	//   - error: probe.ErrInvalidGrid (wrapped) or ErrBakeInProgress
	Configure(g probe.Grid) error

	// Probes returns a copy of the probes in index order.
	Probes() []probe.Probe

	// ProbePositions returns the capture position (base + virtual offset) of every probe.
	ProbePositions() []mgl32.Vec3

	// State returns the current state.
	State() State

	// Asset returns the published asset, or nil when nothing was baked or loaded.
	Asset() *cell.Asset

	// Cell returns the published cell when the asset holds valid data, nil otherwise.
	Cell() *cell.Data

	// Generation returns a counter bumped whenever the published cell or the probe placement changes.
	Generation() uint64

	// LoadAsset decodes an asset and publishes it. A decoded asset that fails validation, or whose probe count
	// differs from the volume, is kept with HasValidData false and the volume becomes Unbaked.
	//
	// Parameters:
	//   - r: source reader
	//
	// Returns:
	//   - error: decode, validation, ErrProbeCountMismatch, or ErrBakeInProgress
	LoadAsset(r io.Reader) error

	// SaveAsset encodes the published asset.
	//
	// Parameters:
	//   - w: destination writer
	//
	// Returns:
	//   - error: ErrNotBaked when there is no asset, or any write error
	SaveAsset(w io.Writer) error

	// ClearBakedData discards the asset, resets every virtual offset, bumps the generation so runtime caches are
	// released, and returns the volume to Unbaked.
	//
	// Returns:
	//   - error: ErrBakeInProgress while baking
	ClearBakedData() error

	// BeginRelight moves Baked(Idle) to Baked(Relighting).
	//
	// Returns:
	//   - bool: false when the volume is not Baked(Idle)
	BeginRelight() bool

	// EndRelight moves Baked(Relighting) back to Baked(Idle).
	EndRelight()

	beginBake() (State, error)
	commitBake(a *cell.Asset) error
	abortBake(prev State)
}

// volumeImpl is the implementation of the Volume interface.
type volumeImpl struct {
	mu sync.RWMutex

	name       string
	grid       probe.Grid
	probes     []probe.Probe
	state      State
	asset      *cell.Asset
	generation uint64
}

var _ Volume = &volumeImpl{}

// NewVolume creates an Unbaked volume.
//
// Parameters:
//   - name: display name
//   - opts: optional builder options
//
// Returns:
//   - Volume: the new volume
//   - error: probe.ErrInvalidGrid (wrapped) when WithGrid supplied an invalid lattice
func NewVolume(name string, opts ...VolumeBuilderOption) (Volume, error) {
	v := &volumeImpl{
		name: name,
		grid: probe.Grid{Dims: [3]int{1, 1, 1}, Spacing: mgl32.Vec3{1, 1, 1}},
	}
	for _, opt := range opts {
		opt(v)
	}
	if err := v.grid.Validate(); err != nil {
		return nil, err
	}
	v.probes = v.grid.Allocate()
	return v, nil
}

func (v *volumeImpl) Name() string {
	return v.name
}

func (v *volumeImpl) Grid() probe.Grid {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.grid
}

func (v *volumeImpl) Configure(g probe.Grid) error {
	if err := g.Validate(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state == StateBaking {
		return ErrBakeInProgress
	}

	if g.Dims != v.grid.Dims {
		v.grid = g
		v.probes = g.Allocate()
		v.asset = nil
		v.state = StateUnbaked
		v.generation++
		return nil
	}

	if g != v.grid {
		v.grid = g
		for i := range v.probes {
			x, y, z := g.Coord(i)
			v.probes[i].Base = g.BasePosition(x, y, z)
		}
		v.generation++
	}
	return nil
}

func (v *volumeImpl) Probes() []probe.Probe {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]probe.Probe(nil), v.probes...)
}

func (v *volumeImpl) ProbePositions() []mgl32.Vec3 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return probe.Positions(v.probes)
}

func (v *volumeImpl) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

func (v *volumeImpl) Asset() *cell.Asset {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.asset
}

func (v *volumeImpl) Cell() *cell.Data {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.asset == nil || !v.asset.HasValidData {
		return nil
	}
	return v.asset.Cell
}

func (v *volumeImpl) Generation() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.generation
}

func (v *volumeImpl) LoadAsset(r io.Reader) error {
	a, decodeErr := cell.Decode(r)
	if a == nil {
		return decodeErr
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state == StateBaking {
		return ErrBakeInProgress
	}

	err := decodeErr
	if err == nil && a.HasValidData && a.Cell.ProbeCount() != len(v.probes) {
		err = fmt.Errorf("%w: asset has %d probes, volume has %d", ErrProbeCountMismatch, a.Cell.ProbeCount(), len(v.probes))
		a = &cell.Asset{}
	}
	v.publish(a)
	return err
}

func (v *volumeImpl) SaveAsset(w io.Writer) error {
	v.mu.RLock()
	a := v.asset
	v.mu.RUnlock()

	if a == nil {
		return ErrNotBaked
	}
	return a.Encode(w)
}

func (v *volumeImpl) ClearBakedData() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state == StateBaking {
		return ErrBakeInProgress
	}
	v.probes = v.grid.Allocate()
	v.asset = nil
	v.state = StateUnbaked
	v.generation++
	return nil
}

func (v *volumeImpl) BeginRelight() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != StateBakedIdle {
		return false
	}
	v.state = StateBakedRelighting
	return true
}

func (v *volumeImpl) EndRelight() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == StateBakedRelighting {
		v.state = StateBakedIdle
	}
}

func (v *volumeImpl) beginBake() (State, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch v.state {
	case StateBaking:
		return v.state, ErrBakeInProgress
	case StateBakedRelighting:
		return v.state, ErrVolumeBusy
	}
	prev := v.state
	v.state = StateBaking
	return prev, nil
}

func (v *volumeImpl) commitBake(a *cell.Asset) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if a == nil || !a.HasValidData || a.Cell == nil {
		return fmt.Errorf("%w: nothing to commit", ErrNotBaked)
	}
	if a.Cell.ProbeCount() != len(v.probes) {
		return fmt.Errorf("%w: asset has %d probes, volume has %d", ErrProbeCountMismatch, a.Cell.ProbeCount(), len(v.probes))
	}
	v.publish(a)
	return nil
}

func (v *volumeImpl) abortBake(prev State) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == StateBaking {
		v.state = prev
	}
}

// publish installs a and derives the state and probe offsets from it. Callers must hold v.mu.
func (v *volumeImpl) publish(a *cell.Asset) {
	v.asset = a
	for i := range v.probes {
		v.probes[i].VirtualOffset = mgl32.Vec3{}
		if a.HasValidData && i < len(a.VirtualOffsets) {
			v.probes[i].VirtualOffset = a.VirtualOffsets[i]
		}
	}
	if a.HasValidData {
		v.state = StateBakedIdle
	} else {
		v.state = StateUnbaked
	}
	v.generation++
}
