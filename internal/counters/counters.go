// Package counters is the best-effort profiling counter registry: named
// counters created once, linked into an append-only list, and bumped from
// compiled code without synchronization guarantees.
package counters

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Tag classifies a counter for reporting.
type Tag uint8

const (
	// TagNone is a plain event counter.
	TagNone Tag = iota
	// TagLock counts slow-path monitor acquisitions at a lock site.
	TagLock
	// TagEliminatedLock counts slow-path entries that the stack-lock fast
	// path should have kept out.
	TagEliminatedLock
)

// String returns the string representation of Tag.
func (t Tag) String() string {
	switch t {
	case TagNone:
		return "none"
	case TagLock:
		return "lock"
	case TagEliminatedLock:
		return "eliminated-lock"
	default:
		return "unknown"
	}
}

// Counter is one named counter. The next link is published exactly once,
// by the registry's insertion CAS, and never reassigned.
type Counter struct {
	name  string
	tag   Tag
	count atomic.Int64
	next  *Counter
}

// Name returns the counter's name.
func (c *Counter) Name() string { return c.name }

// Tag returns the counter's tag.
func (c *Counter) Tag() Tag { return c.tag }

// Add bumps the counter. Safe from any goroutine without external locking.
func (c *Counter) Add(delta int64) { c.count.Add(delta) }

// Inc bumps the counter by one.
func (c *Counter) Inc() { c.count.Add(1) }

// Value returns the current count.
func (c *Counter) Value() int64 { return c.count.Load() }

// Stat is one row of a registry snapshot.
type Stat struct {
	Name  string
	Tag   Tag
	Value int64
}

// Registry holds the counter list. Counters are never removed; the whole
// registry goes away at teardown.
type Registry struct {
	head atomic.Pointer[Counter]
	n    atomic.Int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// NewCounter allocates a counter and prepends it to the list. Concurrent
// creations serialize on the head CAS; each retry re-stages the link, but a
// published link never changes.
func (r *Registry) NewCounter(name string, tag Tag) *Counter {
	c := &Counter{name: name, tag: tag}
	for {
		old := r.head.Load()
		c.next = old
		if r.head.CompareAndSwap(old, c) {
			r.n.Add(1)
			return c
		}
	}
}

// Len returns the number of registered counters.
func (r *Registry) Len() int { return int(r.n.Load()) }

// Snapshot returns the counters in list order, newest first.
func (r *Registry) Snapshot() []Stat {
	var out []Stat
	for c := r.head.Load(); c != nil; c = c.next {
		out = append(out, Stat{Name: c.name, Tag: c.tag, Value: c.Value()})
	}
	return out
}

// Dump walks the list once, newest first, writing one line per counter.
func (r *Registry) Dump(w io.Writer) error {
	for c := r.head.Load(); c != nil; c = c.next {
		if _, err := fmt.Fprintf(w, "%12d  %-16s %s\n", c.Value(), c.tag, c.name); err != nil {
			return fmt.Errorf("counters: dump: %w", err)
		}
	}
	return nil
}
