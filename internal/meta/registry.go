package meta

import (
	"fmt"
	"sort"
	"sync"

	"kiln/internal/code"
)

// Installed binds a MethodMeta to the address range it was installed at.
type Installed struct {
	base code.Addr
	meta *MethodMeta
}

// Base returns the first address of the range.
func (in *Installed) Base() code.Addr { return in.base }

// Limit returns the first address past the range.
func (in *Installed) Limit() code.Addr { return in.base + code.Addr(in.meta.Size) }

// Meta returns the compile-time record.
func (in *Installed) Meta() *MethodMeta { return in.meta }

// Contains reports whether addr falls inside the range.
func (in *Installed) Contains(addr code.Addr) bool {
	return addr >= in.base && addr < in.Limit()
}

// HandlerMatch tests a handler entry's catch type against the thrown class.
// The catch-all entry matches before the predicate is consulted.
type HandlerMatch func(catchType uint32) bool

// HandlerFor resolves the handler for an exception raised at addr inside
// this range. Entries are consulted in order and the first covering entry
// whose catch type matches wins, so a broader entry listed earlier shadows
// a more precise one listed later.
func (in *Installed) HandlerFor(addr code.Addr, matches HandlerMatch) (code.Addr, bool) {
	off := uint32(addr - in.base)
	for _, h := range in.meta.Handlers {
		if off < h.Start || off >= h.End {
			continue
		}
		if h.CatchType == CatchAll || matches(h.CatchType) {
			return in.base + code.Addr(h.Handler), true
		}
	}
	return code.NilAddr, false
}

// Registry is the address-to-metadata index. Registration is append-only:
// ranges are never updated or removed, only added, so the sorted interval
// slice plus binary search serves lookups without per-query locking beyond a
// read lock.
type Registry struct {
	mu        sync.RWMutex
	installed []*Installed
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register validates m and indexes it at base. Overlapping ranges are
// rejected: two owners for one address would make every downstream lookup
// ambiguous.
func (r *Registry) Register(base code.Addr, m *MethodMeta) (*Installed, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if base == code.NilAddr {
		return nil, fmt.Errorf("%w: %s: nil base address", ErrCorruptMetadata, m.Name)
	}
	in := &Installed{base: base, meta: m}

	r.mu.Lock()
	defer r.mu.Unlock()
	i := sort.Search(len(r.installed), func(i int) bool {
		return r.installed[i].base >= base
	})
	if i > 0 && r.installed[i-1].Limit() > base {
		return nil, fmt.Errorf("%w: %s at %s overlaps %s", ErrCorruptMetadata,
			m.Name, base, r.installed[i-1].meta.Name)
	}
	if i < len(r.installed) && in.Limit() > r.installed[i].base {
		return nil, fmt.Errorf("%w: %s at %s overlaps %s", ErrCorruptMetadata,
			m.Name, base, r.installed[i].meta.Name)
	}
	r.installed = append(r.installed, nil)
	copy(r.installed[i+1:], r.installed[i:])
	r.installed[i] = in
	return in, nil
}

// FindByAddress maps an address to the installed range covering it.
func (r *Registry) FindByAddress(addr code.Addr) (*Installed, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := sort.Search(len(r.installed), func(i int) bool {
		return r.installed[i].Limit() > addr
	})
	if i < len(r.installed) && r.installed[i].Contains(addr) {
		return r.installed[i], true
	}
	return nil, false
}

// HandlerFor resolves the handler address for an exception of exactly class
// catchType raised at addr. The boolean distinguishes "no handler here"
// (unwind further) from a hit; an error means the tables contradict the
// range and the caller must treat the code as untrustworthy. Dispatch walks
// entries itself with a subtype predicate; this exact-match form serves
// diagnostics and tooling.
func (r *Registry) HandlerFor(addr code.Addr, catchType uint32) (code.Addr, bool, error) {
	in, ok := r.FindByAddress(addr)
	if !ok {
		return code.NilAddr, false, nil
	}
	h, ok := in.HandlerFor(addr, func(ct uint32) bool { return ct == catchType })
	if !ok {
		return code.NilAddr, false, nil
	}
	if !in.Contains(h) {
		return code.NilAddr, false, fmt.Errorf("%w: %s: handler target %s outside range",
			ErrCorruptMetadata, in.meta.Name, h)
	}
	return h, true, nil
}

// CallSiteAt resolves the call site whose return address is addr.
func (r *Registry) CallSiteAt(addr code.Addr) (CallSite, bool) {
	in, ok := r.FindByAddress(addr)
	if !ok {
		return CallSite{}, false
	}
	return in.meta.callSiteAt(uint32(addr - in.base))
}

// Len returns the number of installed ranges.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.installed)
}
