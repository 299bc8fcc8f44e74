package code

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// BlobKind classifies installed blobs.
type BlobKind uint8

const (
	// StubBlob is an ordinary helper trampoline.
	StubBlob BlobKind = iota
	// ExceptionBlob is the shared exception-forwarding entry.
	ExceptionBlob
	// DeoptBlob is the shared uncommon-trap entry.
	DeoptBlob
)

func (k BlobKind) String() string {
	switch k {
	case StubBlob:
		return "stub"
	case ExceptionBlob:
		return "exception"
	case DeoptBlob:
		return "deopt"
	default:
		return fmt.Sprintf("kind?%d", uint8(k))
	}
}

// Blob is one installed instruction range. Blobs are immutable once
// installed; every field is fixed at Install time.
type Blob struct {
	name       string
	kind       BlobKind
	base       Addr
	insns      []Instr
	frameSlots int
	outBase    int
}

// Name returns the blob's installation name.
func (b *Blob) Name() string { return b.name }

// Kind returns the blob's classification.
func (b *Blob) Kind() BlobKind { return b.kind }

// Base returns the first address of the blob.
func (b *Blob) Base() Addr { return b.base }

// Size returns the address span, one unit per instruction.
func (b *Blob) Size() int { return len(b.insns) }

// Limit returns the first address past the blob.
func (b *Blob) Limit() Addr { return b.base + Addr(len(b.insns)) }

// FrameSlots returns the frame size the interpreter allocates on entry.
func (b *Blob) FrameSlots() int { return b.frameSlots }

// OutBase returns the frame slot where the outgoing argument area starts.
func (b *Blob) OutBase() int { return b.outBase }

// Contains reports whether addr falls inside the blob.
func (b *Blob) Contains(addr Addr) bool { return addr >= b.base && addr < b.Limit() }

// InstrAt returns the instruction at addr. The caller guarantees Contains.
func (b *Blob) InstrAt(addr Addr) Instr { return b.insns[addr-b.base] }

// Instrs returns the instruction stream. Read-only.
func (b *Blob) Instrs() []Instr { return b.insns }

// ErrCacheFull reports that installing a blob would exceed the cache's
// configured instruction capacity.
var ErrCacheFull = errors.New("code: cache full")

// Cache is the append-only blob store. Installed blobs are never moved or
// removed, so bases grow monotonically and the address index is a binary
// search over an already-sorted slice.
type Cache struct {
	mu     sync.RWMutex
	next   Addr
	used   int
	cap    int
	blobs  []*Blob
	byName map[string]*Blob
}

// NewCache creates a cache that holds at most capInstrs instructions in
// total. capInstrs <= 0 means unbounded.
func NewCache(capInstrs int) *Cache {
	return &Cache{
		next:   cacheBase,
		cap:    capInstrs,
		byName: make(map[string]*Blob),
	}
}

// Install appends a blob and assigns its address range. The name must be
// unique; frameSlots and outBase describe the frame the interpreter builds
// when entering the blob.
func (c *Cache) Install(name string, kind BlobKind, frameSlots, outBase int, insns []Instr) (*Blob, error) {
	if len(insns) == 0 {
		return nil, fmt.Errorf("code: install %q: empty instruction stream", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.byName[name]; dup {
		return nil, fmt.Errorf("code: install %q: name already installed", name)
	}
	if c.cap > 0 && c.used+len(insns) > c.cap {
		return nil, fmt.Errorf("%w: %d used + %d requested > %d", ErrCacheFull, c.used, len(insns), c.cap)
	}
	b := &Blob{
		name:       name,
		kind:       kind,
		base:       alignAddr(c.next),
		insns:      insns,
		frameSlots: frameSlots,
		outBase:    outBase,
	}
	c.next = b.Limit()
	c.used += len(insns)
	c.blobs = append(c.blobs, b)
	c.byName[name] = b
	return b, nil
}

// Lookup returns the blob installed under name.
func (c *Cache) Lookup(name string) (*Blob, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.byName[name]
	return b, ok
}

// FindByAddress maps any address inside a blob back to the blob. It answers
// crash reporting and dispatch queries, so it must also reject addresses in
// the gaps between blobs.
func (c *Cache) FindByAddress(addr Addr) (*Blob, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	// First blob whose limit is above addr; bases are sorted by construction.
	i := sort.Search(len(c.blobs), func(i int) bool {
		return c.blobs[i].Limit() > addr
	})
	if i < len(c.blobs) && c.blobs[i].Contains(addr) {
		return c.blobs[i], true
	}
	return nil, false
}

// Len returns the number of installed blobs.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blobs)
}

// UsedInstrs returns the total installed instruction count.
func (c *Cache) UsedInstrs() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.used
}

// Blobs returns the installed blobs in address order.
func (c *Cache) Blobs() []*Blob {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Blob, len(c.blobs))
	copy(out, c.blobs)
	return out
}
