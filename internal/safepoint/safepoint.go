// Package safepoint coordinates stop-the-world pauses with code running in
// the trampoline interpreter. Trampolines poll on the way back to compiled
// code; while a pause is active every poll blocks until Resume.
package safepoint

import (
	"sync"
	"sync/atomic"
)

// Coordinator is the pause rendezvous. The zero value is not usable; create
// one with NewCoordinator.
type Coordinator struct {
	mu     sync.RWMutex
	active atomic.Bool
	polls  atomic.Uint64
	pauses atomic.Uint64
}

// NewCoordinator returns a coordinator with no pause pending.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Poll blocks while a pause is active, otherwise returns immediately. The
// check is advisory: a poll racing the start of a pause may complete, which
// is fine because the pause initiator holds the lock until every later poll
// has parked.
func (c *Coordinator) Poll() {
	c.polls.Add(1)
	if !c.active.Load() {
		return
	}
	c.mu.RLock()
	c.mu.RUnlock() //nolint:staticcheck // rendezvous: park until Resume releases the lock
}

// StopTheWorld begins a pause. It returns once the write lock is held, after
// which every Poll parks until Resume. Pauses do not nest.
func (c *Coordinator) StopTheWorld() {
	c.mu.Lock()
	c.active.Store(true)
	c.pauses.Add(1)
}

// Resume ends the pause started by StopTheWorld.
func (c *Coordinator) Resume() {
	c.active.Store(false)
	c.mu.Unlock()
}

// Active reports whether a pause is in progress.
func (c *Coordinator) Active() bool { return c.active.Load() }

// Polls returns the total number of polls observed.
func (c *Coordinator) Polls() uint64 { return c.polls.Load() }

// Pauses returns the total number of pauses requested.
func (c *Coordinator) Pauses() uint64 { return c.pauses.Load() }
