package volume

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-prt/engine/prt/cell"
)

// BakeGate admits at most one bake at a time. The holder of the returned BakeToken is the only party able to
// publish baked data. Relighting enters through BeginRelight so bakes and relights never overlap.
type BakeGate struct {
	mu     sync.Mutex
	holder *BakeToken
}

// NewBakeGate creates an open gate.
//
// Returns:
//   - *BakeGate: the new gate
func NewBakeGate() *BakeGate {
	return &BakeGate{}
}

var (
	defaultGate     *BakeGate
	defaultGateOnce sync.Once
)

// DefaultGate returns the process-wide gate shared by every bake session and relight scheduler.
//
// Returns:
//   - *BakeGate: the shared gate
func DefaultGate() *BakeGate {
	defaultGateOnce.Do(func() {
		defaultGate = NewBakeGate()
	})
	return defaultGate
}

// Acquire moves v into Baking and hands back the token that owns the bake.
//
// Parameters:
//   - v: the volume to bake
//
// Returns:
//   - *BakeToken: the bake ownership token
//   - error: ErrBakeInProgress when any bake holds the gate or v is already baking, ErrVolumeBusy while v is
//     being relit
func (g *BakeGate) Acquire(v Volume) (*BakeToken, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.holder != nil {
		return nil, ErrBakeInProgress
	}
	prev, err := v.beginBake()
	if err != nil {
		return nil, err
	}
	t := &BakeToken{gate: g, volume: v, prev: prev}
	g.holder = t
	return t, nil
}

// BeginRelight moves v into Baked(Relighting) while no bake holds the gate. The check and the transition happen
// under the gate lock, so no bake can be admitted in between. The caller ends the relight with v.EndRelight.
//
// Parameters:
//   - v: the volume to relight
//
// Returns:
//   - error: ErrBakeInProgress when a bake holds the gate, ErrVolumeBusy when v is not Baked(Idle)
func (g *BakeGate) BeginRelight(v Volume) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.holder != nil {
		return ErrBakeInProgress
	}
	if !v.BeginRelight() {
		return ErrVolumeBusy
	}
	return nil
}

// Busy reports whether a bake currently holds the gate.
func (g *BakeGate) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holder != nil
}

func (g *BakeGate) release(t *BakeToken) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holder == t {
		g.holder = nil
	}
}

// BakeToken is the exclusive right to publish baked data into one volume. It is released by exactly one Commit
// or Abort; later calls are no-ops reporting ErrTokenSpent.
type BakeToken struct {
	mu     sync.Mutex
	gate   *BakeGate
	volume Volume
	prev   State
	done   bool
}

// Volume returns the volume being baked.
func (t *BakeToken) Volume() Volume {
	return t.volume
}

// Commit publishes a into the volume, moves it to Baked(Idle), and releases the gate. If the asset cannot be
// published the volume returns to its state before the bake and the gate is still released.
//
// Parameters:
//   - a: the baked asset
//
// Returns:
//   - error: ErrNotBaked or ErrProbeCountMismatch (wrapped), or ErrTokenSpent
func (t *BakeToken) Commit(a *cell.Asset) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return ErrTokenSpent
	}
	t.done = true
	defer t.gate.release(t)

	if err := t.volume.commitBake(a); err != nil {
		t.volume.abortBake(t.prev)
		return err
	}
	return nil
}

// Abort restores the volume's pre-bake state and releases the gate without publishing anything.
func (t *BakeToken) Abort() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return
	}
	t.done = true
	t.volume.abortBake(t.prev)
	t.gate.release(t)
}
