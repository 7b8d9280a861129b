package gate

import (
	"fmt"
	"sync/atomic"
)

const (
	unlocked  int32 = 0
	exclusive int32 = -1
)

// Gate is a many-shared / one-exclusive lock with a forced bypass.
// The zero value is an unlocked gate.
type Gate struct {
	state atomic.Int32
}

// AcquireShared enters a shared section, spinning while the gate is held
// exclusively.
func (g *Gate) AcquireShared() {
	var b backoff
	for {
		old := g.state.Load()
		if old >= unlocked && g.state.CompareAndSwap(old, old+1) {
			return
		}
		if old < unlocked {
			b.wait()
		}
	}
}

// ReleaseShared leaves a shared section.
func (g *Gate) ReleaseShared() {
	for {
		old := g.state.Load()
		if old <= unlocked {
			panic(fmt.Sprintf("gate: shared release with state %d", old))
		}
		if g.state.CompareAndSwap(old, old-1) {
			return
		}
	}
}

// TryAcquireExclusive takes the gate exclusively if nobody holds it. It never
// waits.
func (g *Gate) TryAcquireExclusive() bool {
	return g.state.CompareAndSwap(unlocked, exclusive)
}

// ForceAcquireExclusive marks the gate exclusively held without looking at
// current holders. The caller guarantees that no thread is inside a shared
// section, which only holds while the world is stopped.
func (g *Gate) ForceAcquireExclusive() {
	g.state.Store(exclusive)
}

// ReleaseExclusive unlocks a gate held exclusively.
func (g *Gate) ReleaseExclusive() {
	if !g.state.CompareAndSwap(exclusive, unlocked) {
		panic(fmt.Sprintf("gate: exclusive release with state %d", g.state.Load()))
	}
}

// State returns the raw counter. Only meaningful for diagnostics and tests.
func (g *Gate) State() int32 {
	return g.state.Load()
}

// Exclusive reports whether the gate is currently held exclusively.
func (g *Gate) Exclusive() bool {
	return g.state.Load() == exclusive
}
