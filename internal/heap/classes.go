// Package heap is the managed-object substrate the slow-path helpers
// allocate into: a class table with subtype queries, instance and array
// objects behind stable handles, and per-object monitors.
package heap

import (
	"fmt"
	"sync"
)

// KlassID identifies a class. 0 is reserved: handler metadata uses it as the
// catch-all marker, so no real class ever receives it.
type KlassID uint32

// NoKlass is the invalid class id.
const NoKlass KlassID = 0

// KlassKind separates instance classes from the two array shapes.
type KlassKind uint8

const (
	// KindInstance is an ordinary object class with fields.
	KindInstance KlassKind = iota
	// KindValueArray is an array of raw 64-bit slots.
	KindValueArray
	// KindOopArray is an array of object references, covariant on Elem.
	KindOopArray
)

// Klass is one class table row. Rows are immutable after Define.
type Klass struct {
	ID        KlassID
	Name      string
	Super     KlassID // NoKlass for the root
	Kind      KlassKind
	Elem      KlassID // element class, oop arrays only
	NumFields int     // instance slot count
}

// Builtins are the classes every table starts with. The exception classes
// back the conditions the slow-path helpers raise.
type Builtins struct {
	Object    KlassID
	Throwable KlassID

	NullPointer         KlassID
	NegativeArraySize   KlassID
	IndexOutOfBounds    KlassID
	ArrayStore          KlassID
	ClassCast           KlassID
	IllegalMonitorState KlassID
	OutOfMemory         KlassID

	// ValueArray is the shared class of all raw 64-bit slot arrays.
	ValueArray KlassID
}

// ClassTable owns class identity. Definition is rare and locked; queries are
// read-mostly.
type ClassTable struct {
	mu     sync.RWMutex
	rows   []Klass // rows[0] is the reserved NoKlass entry
	byName map[string]KlassID
	arrays map[KlassID]KlassID // element class -> oop-array class

	Builtins Builtins
}

// NewClassTable creates a table pre-seeded with the builtin classes.
func NewClassTable() *ClassTable {
	ct := &ClassTable{
		rows:   make([]Klass, 1),
		byName: make(map[string]KlassID),
		arrays: make(map[KlassID]KlassID),
	}
	b := &ct.Builtins
	b.Object = ct.mustDefine("Object", NoKlass, 0)
	b.Throwable = ct.mustDefine("Throwable", b.Object, 1)
	b.NullPointer = ct.mustDefine("NullPointerException", b.Throwable, 1)
	b.NegativeArraySize = ct.mustDefine("NegativeArraySizeException", b.Throwable, 1)
	b.IndexOutOfBounds = ct.mustDefine("IndexOutOfBoundsException", b.Throwable, 1)
	b.ArrayStore = ct.mustDefine("ArrayStoreException", b.Throwable, 1)
	b.ClassCast = ct.mustDefine("ClassCastException", b.Throwable, 1)
	b.IllegalMonitorState = ct.mustDefine("IllegalMonitorStateException", b.Throwable, 1)
	b.OutOfMemory = ct.mustDefine("OutOfMemoryError", b.Throwable, 1)

	ct.mu.Lock()
	b.ValueArray = ct.defineLocked(Klass{Name: "value[]", Kind: KindValueArray})
	ct.mu.Unlock()
	return ct
}

func (ct *ClassTable) mustDefine(name string, super KlassID, numFields int) KlassID {
	id, err := ct.Define(name, super, numFields)
	if err != nil {
		panic(fmt.Sprintf("heap: builtin class %q: %v", name, err))
	}
	return id
}

// Define adds an instance class. The name must be fresh and the superclass,
// when given, already defined.
func (ct *ClassTable) Define(name string, super KlassID, numFields int) (KlassID, error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if name == "" {
		return NoKlass, fmt.Errorf("heap: class with empty name")
	}
	if _, dup := ct.byName[name]; dup {
		return NoKlass, fmt.Errorf("heap: class %q already defined", name)
	}
	if super != NoKlass && int(super) >= len(ct.rows) {
		return NoKlass, fmt.Errorf("heap: class %q: unknown superclass %d", name, super)
	}
	if numFields < 0 {
		return NoKlass, fmt.Errorf("heap: class %q: negative field count", name)
	}
	id := ct.defineLocked(Klass{Name: name, Super: super, Kind: KindInstance, NumFields: numFields})
	return id, nil
}

// ArrayOf returns the oop-array class for the given element class, defining
// it on first use. Same element class, same array class.
func (ct *ClassTable) ArrayOf(elem KlassID) (KlassID, error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if int(elem) >= len(ct.rows) || elem == NoKlass {
		return NoKlass, fmt.Errorf("heap: array of unknown class %d", elem)
	}
	if id, ok := ct.arrays[elem]; ok {
		return id, nil
	}
	id := ct.defineLocked(Klass{
		Name: ct.rows[elem].Name + "[]",
		Kind: KindOopArray,
		Elem: elem,
	})
	ct.arrays[elem] = id
	return id, nil
}

func (ct *ClassTable) defineLocked(k Klass) KlassID {
	k.ID = KlassID(len(ct.rows))
	ct.rows = append(ct.rows, k)
	ct.byName[k.Name] = k.ID
	return k.ID
}

// Get returns the class row for id.
func (ct *ClassTable) Get(id KlassID) (Klass, bool) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	if id == NoKlass || int(id) >= len(ct.rows) {
		return Klass{}, false
	}
	return ct.rows[id], true
}

// Lookup resolves a class name to its id.
func (ct *ClassTable) Lookup(name string) (KlassID, bool) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	id, ok := ct.byName[name]
	return id, ok
}

// Name returns the class name, or "" for an unknown id.
func (ct *ClassTable) Name(id KlassID) string {
	k, ok := ct.Get(id)
	if !ok {
		return ""
	}
	return k.Name
}

// Len returns the number of defined classes.
func (ct *ClassTable) Len() int {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return len(ct.rows) - 1
}

// IsSubclassOf reports whether sub is sup or below it. Oop arrays are
// covariant in their element class and every array is below Object.
func (ct *ClassTable) IsSubclassOf(sub, sup KlassID) bool {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	if int(sub) >= len(ct.rows) || int(sup) >= len(ct.rows) {
		return false
	}
	return ct.isSubtypeLocked(sub, sup)
}

func (ct *ClassTable) isSubtypeLocked(sub, sup KlassID) bool {
	if sub == NoKlass || sup == NoKlass {
		return false
	}
	if sub == sup {
		return true
	}
	sk, pk := ct.rows[sub], ct.rows[sup]
	if sk.Kind == KindInstance {
		for id := sk.Super; id != NoKlass; id = ct.rows[id].Super {
			if id == sup {
				return true
			}
		}
		return false
	}
	// Arrays sit directly below Object.
	if sup == ct.Builtins.Object {
		return true
	}
	if sk.Kind == KindOopArray && pk.Kind == KindOopArray {
		return ct.isSubtypeLocked(sk.Elem, pk.Elem)
	}
	return false
}
