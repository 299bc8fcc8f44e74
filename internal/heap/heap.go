package heap

import (
	"errors"
	"fmt"
	"sync"

	"kiln/internal/trace"
)

// Oop is a stable handle to a heap object. Oop(0) is the null reference.
type Oop uint64

// ObjectKind identifies the kind of heap object.
type ObjectKind uint8

const (
	// ObjInstance is an ordinary object with fields.
	ObjInstance ObjectKind = iota
	// ObjArray is a value or oop array.
	ObjArray
)

// Object is one heap object. Slots hold fields for instances and elements
// for arrays, one 64-bit slot each.
type Object struct {
	Kind  ObjectKind
	Klass KlassID
	Slots []uint64

	mon *Monitor // allocated on first monitor use
}

// Len returns the element count for arrays, the field count for instances.
func (o *Object) Len() int { return len(o.Slots) }

// noZeroPattern fills arrays allocated through the no-zeroing path, keeping
// "was not cleared" observable.
const noZeroPattern uint64 = 0xBAADBABEBAADBABE

// Allocation and access failures. Helpers translate these into managed
// exceptions; anything else escaping the heap is an integrity bug.
var (
	ErrBadOop        = errors.New("heap: invalid object reference")
	ErrBadKlass      = errors.New("heap: invalid class")
	ErrNegativeSize  = errors.New("heap: negative array length")
	ErrBounds        = errors.New("heap: index out of bounds")
	ErrStoreMismatch = errors.New("heap: element store type mismatch")
	ErrExhausted     = errors.New("heap: slot budget exhausted")
)

// Heap stores every live managed object. Handles are monotonically
// increasing and never reused within a run.
type Heap struct {
	mu      sync.RWMutex
	next    Oop
	objs    map[Oop]*Object
	used    int
	maxUsed int // total slot budget, <= 0 unbounded

	classes    *ClassTable
	tr         trace.Tracer
	finalizers []Oop
}

// NewHeap creates a heap over the given class table. maxSlots bounds the
// total live slot count; <= 0 means unbounded. A nil tracer disables
// allocation tracing.
func NewHeap(classes *ClassTable, maxSlots int, tr trace.Tracer) *Heap {
	if tr == nil {
		tr = trace.Nop
	}
	return &Heap{
		next:    1,
		objs:    make(map[Oop]*Object, 128),
		maxUsed: maxSlots,
		classes: classes,
		tr:      tr,
	}
}

// Classes returns the class table the heap allocates against.
func (h *Heap) Classes() *ClassTable { return h.classes }

// AllocInstance allocates a zeroed instance of klass.
func (h *Heap) AllocInstance(klass KlassID) (Oop, error) {
	k, ok := h.classes.Get(klass)
	if !ok || k.Kind != KindInstance {
		return 0, fmt.Errorf("%w: instance of %d", ErrBadKlass, klass)
	}
	return h.alloc(ObjInstance, klass, k.NumFields, false)
}

// AllocArray allocates a zeroed array of the given array class.
func (h *Heap) AllocArray(klass KlassID, length int) (Oop, error) {
	return h.allocArray(klass, length, false)
}

// AllocArrayNoZero allocates an array without clearing it. The slots carry
// the fill pattern instead of zeros.
func (h *Heap) AllocArrayNoZero(klass KlassID, length int) (Oop, error) {
	return h.allocArray(klass, length, true)
}

func (h *Heap) allocArray(klass KlassID, length int, noZero bool) (Oop, error) {
	k, ok := h.classes.Get(klass)
	if !ok || k.Kind == KindInstance {
		return 0, fmt.Errorf("%w: array of %d", ErrBadKlass, klass)
	}
	if length < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativeSize, length)
	}
	return h.alloc(ObjArray, klass, length, noZero)
}

func (h *Heap) alloc(kind ObjectKind, klass KlassID, slots int, noZero bool) (Oop, error) {
	h.mu.Lock()
	if h.maxUsed > 0 && h.used+slots > h.maxUsed {
		h.mu.Unlock()
		return 0, fmt.Errorf("%w: %d used + %d requested > %d", ErrExhausted, h.used, slots, h.maxUsed)
	}
	oop := h.next
	h.next++
	obj := &Object{Kind: kind, Klass: klass, Slots: make([]uint64, slots)}
	if noZero {
		for i := range obj.Slots {
			obj.Slots[i] = noZeroPattern
		}
	}
	h.objs[oop] = obj
	h.used += slots
	h.mu.Unlock()

	trace.Point(h.tr, trace.ScopeStep, "heap:alloc", h.classes.Name(klass), uint64(oop))
	return oop, nil
}

// Get returns the object behind oop.
func (h *Heap) Get(oop Oop) (*Object, error) {
	h.mu.RLock()
	obj, ok := h.objs[oop]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrBadOop, oop)
	}
	return obj, nil
}

// KlassOf returns the class of the object behind oop.
func (h *Heap) KlassOf(oop Oop) (KlassID, error) {
	obj, err := h.Get(oop)
	if err != nil {
		return NoKlass, err
	}
	return obj.Klass, nil
}

// ArrayLen returns the length of the array behind oop.
func (h *Heap) ArrayLen(oop Oop) (int, error) {
	obj, err := h.Get(oop)
	if err != nil {
		return 0, err
	}
	if obj.Kind != ObjArray {
		return 0, fmt.Errorf("%w: %d is not an array", ErrBadOop, oop)
	}
	return obj.Len(), nil
}

// LoadElem reads array element i.
func (h *Heap) LoadElem(oop Oop, i int) (uint64, error) {
	obj, err := h.Get(oop)
	if err != nil {
		return 0, err
	}
	if obj.Kind != ObjArray {
		return 0, fmt.Errorf("%w: %d is not an array", ErrBadOop, oop)
	}
	if i < 0 || i >= len(obj.Slots) {
		return 0, fmt.Errorf("%w: %d of %d", ErrBounds, i, len(obj.Slots))
	}
	return obj.Slots[i], nil
}

// StoreElem writes array element i. Stores into oop arrays are checked
// against the element class; null stores always pass.
func (h *Heap) StoreElem(oop Oop, i int, v uint64) error {
	obj, err := h.Get(oop)
	if err != nil {
		return err
	}
	if obj.Kind != ObjArray {
		return fmt.Errorf("%w: %d is not an array", ErrBadOop, oop)
	}
	if i < 0 || i >= len(obj.Slots) {
		return fmt.Errorf("%w: %d of %d", ErrBounds, i, len(obj.Slots))
	}
	k, _ := h.classes.Get(obj.Klass)
	if k.Kind == KindOopArray && v != 0 {
		vk, err := h.KlassOf(Oop(v))
		if err != nil {
			return err
		}
		if !h.classes.IsSubclassOf(vk, k.Elem) {
			return fmt.Errorf("%w: %s into %s", ErrStoreMismatch, h.classes.Name(vk), k.Name)
		}
	}
	obj.Slots[i] = v
	return nil
}

// MonitorOf returns the object's monitor, allocating it on first use.
func (h *Heap) MonitorOf(oop Oop) (*Monitor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, ok := h.objs[oop]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrBadOop, oop)
	}
	if obj.mon == nil {
		obj.mon = newMonitor()
	}
	return obj.mon, nil
}

// RegisterFinalizer enqueues oop on the finalizer queue. Registration order
// is preserved; duplicates are the caller's concern.
func (h *Heap) RegisterFinalizer(oop Oop) error {
	if _, err := h.Get(oop); err != nil {
		return err
	}
	h.mu.Lock()
	h.finalizers = append(h.finalizers, oop)
	h.mu.Unlock()
	return nil
}

// Finalizers returns a copy of the finalizer queue.
func (h *Heap) Finalizers() []Oop {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Oop, len(h.finalizers))
	copy(out, h.finalizers)
	return out
}

// Len returns the live object count.
func (h *Heap) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.objs)
}

// UsedSlots returns the total slots held by live objects.
func (h *Heap) UsedSlots() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.used
}
