package heap

import (
	"errors"
	"sync"
)

// ErrNotOwner reports a monitor operation from a context that does not hold
// the monitor.
var ErrNotOwner = errors.New("heap: monitor not owned")

// Monitor is a per-object recursive lock with a wait set. Owners are context
// tokens; token 0 means unowned.
type Monitor struct {
	mu        sync.Mutex
	entryCond *sync.Cond
	waitCond  *sync.Cond

	owner   uint64
	entries int
	waiters int
	permits int
}

func newMonitor() *Monitor {
	m := &Monitor{}
	m.entryCond = sync.NewCond(&m.mu)
	m.waitCond = sync.NewCond(&m.mu)
	return m
}

// Enter acquires the monitor for owner, blocking while another context holds
// it. Re-entry by the current owner nests. The return value reports whether
// the acquisition had to park.
func (m *Monitor) Enter(owner uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner == owner {
		m.entries++
		return false
	}
	contended := m.owner != 0
	for m.owner != 0 {
		m.entryCond.Wait()
	}
	m.owner = owner
	m.entries = 1
	return contended
}

// Exit releases one entry. The last exit hands the monitor to a parked
// contender, if any.
func (m *Monitor) Exit(owner uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != owner {
		return ErrNotOwner
	}
	m.entries--
	if m.entries == 0 {
		m.owner = 0
		m.entryCond.Signal()
	}
	return nil
}

// Wait releases the monitor and parks on the wait set until a notification
// arrives, then re-acquires with the saved entry count.
func (m *Monitor) Wait(owner uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != owner {
		return ErrNotOwner
	}
	saved := m.entries
	m.owner = 0
	m.entries = 0
	m.entryCond.Signal()

	m.waiters++
	for m.permits == 0 {
		m.waitCond.Wait()
	}
	m.permits--
	m.waiters--

	for m.owner != 0 {
		m.entryCond.Wait()
	}
	m.owner = owner
	m.entries = saved
	return nil
}

// Notify wakes one waiter. No-op when the wait set is empty.
func (m *Monitor) Notify(owner uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != owner {
		return ErrNotOwner
	}
	if m.waiters > m.permits {
		m.permits++
		m.waitCond.Signal()
	}
	return nil
}

// NotifyAll wakes every waiter.
func (m *Monitor) NotifyAll(owner uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != owner {
		return ErrNotOwner
	}
	if m.waiters > m.permits {
		m.permits = m.waiters
		m.waitCond.Broadcast()
	}
	return nil
}

// Owner returns the current owner token, 0 if unowned.
func (m *Monitor) Owner() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner
}

// Entries returns the owner's nesting depth.
func (m *Monitor) Entries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries
}
