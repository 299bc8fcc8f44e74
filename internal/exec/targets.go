package exec

import (
	"fmt"
	"sync"

	"fortio.org/safecast"

	"kiln/internal/code"
)

// TargetFunc is a native helper body. It receives the calling context and
// the marshalled arguments in signature order, and produces up to two result
// slots. Exceptional outcomes are reported by raising on the context, never
// by panicking.
type TargetFunc func(ctx *Context, args []uint64) (uint64, uint64)

// Target is one registered native helper.
type Target struct {
	ID      code.TargetID
	Name    string
	Arity   int
	Results int
	Fn      TargetFunc
}

// TargetTable assigns dense TargetIDs to native helpers. Registration
// happens during stub generation; lookups run on every trampoline call.
type TargetTable struct {
	mu      sync.RWMutex
	targets []*Target
	byName  map[string]*Target
}

// NewTargetTable returns an empty table.
func NewTargetTable() *TargetTable {
	return &TargetTable{byName: make(map[string]*Target)}
}

// Register adds a native helper and returns its id. Names are unique: a
// second registration under the same name is a generator bug.
func (t *TargetTable) Register(name string, arity, results int, fn TargetFunc) (code.TargetID, error) {
	if fn == nil {
		return code.NoTarget, fmt.Errorf("exec: target %q registered with nil func", name)
	}
	if results > 2 {
		return code.NoTarget, fmt.Errorf("exec: target %q declares %d results, max 2", name, results)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.byName[name]; dup {
		return code.NoTarget, fmt.Errorf("exec: target %q already registered", name)
	}
	idNum, err := safecast.Conv[uint32](len(t.targets))
	if err != nil {
		return code.NoTarget, fmt.Errorf("exec: target table overflow: %w", err)
	}
	tgt := &Target{ID: code.TargetID(idNum), Name: name, Arity: arity, Results: results, Fn: fn}
	t.targets = append(t.targets, tgt)
	t.byName[name] = tgt
	return tgt.ID, nil
}

// Get returns the target with the given id.
func (t *TargetTable) Get(id code.TargetID) (*Target, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) >= len(t.targets) {
		return nil, false
	}
	return t.targets[id], true
}

// LookupName returns the target registered under name.
func (t *TargetTable) LookupName(name string) (*Target, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tgt, ok := t.byName[name]
	return tgt, ok
}

// Len returns the number of registered targets.
func (t *TargetTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.targets)
}
