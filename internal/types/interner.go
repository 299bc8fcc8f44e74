package types

import (
	"fmt"
	"sync"

	"fortio.org/safecast"
)

// Builtins stores TypeIDs for the primitive value types every signature
// builder needs.
type Builtins struct {
	Invalid    TypeID
	Int        TypeID
	Long       TypeID
	Float      TypeID
	Double     TypeID
	Oop        TypeID
	Klass      TypeID
	RawAddress TypeID
	RetAddress TypeID
}

// Interner provides stable TypeIDs by hashing structural descriptors.
// Interning is safe for concurrent use; a descriptor interned twice from
// two goroutines yields the same TypeID.
type Interner struct {
	mu       sync.RWMutex
	types    []Type
	index    map[typeKey]TypeID
	builtins Builtins
}

// NewInterner constructs an interner seeded with the built-in primitives.
func NewInterner() *Interner {
	in := &Interner{
		index: make(map[typeKey]TypeID, 32),
	}
	in.builtins.Invalid = in.internRaw(Type{Kind: KindInvalid})
	in.builtins.Int = in.Intern(MakeInt())
	in.builtins.Long = in.Intern(MakeLong())
	in.builtins.Float = in.Intern(MakeFloat())
	in.builtins.Double = in.Intern(MakeDouble())
	in.builtins.Oop = in.Intern(MakeOop())
	in.builtins.Klass = in.Intern(MakeKlass())
	in.builtins.RawAddress = in.Intern(MakeRawAddress())
	in.builtins.RetAddress = in.Intern(MakeRetAddress())
	return in
}

// Builtins returns TypeIDs for the primitive value types.
func (in *Interner) Builtins() Builtins {
	return in.builtins
}

// Intern ensures the provided descriptor has a stable TypeID.
func (in *Interner) Intern(t Type) TypeID {
	if t.Kind == KindInvalid {
		return NoTypeID
	}
	key := typeKey(t)
	in.mu.RLock()
	id, ok := in.index[key]
	in.mu.RUnlock()
	if ok {
		return id
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.index[key]; ok {
		return id
	}
	return in.internRaw(t)
}

// internRaw adds the descriptor to storage without consulting the map.
// Callers must hold mu (the constructor runs before any sharing).
func (in *Interner) internRaw(t Type) TypeID {
	lenTypes, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(lenTypes)
	in.types = append(in.types, t)
	in.index[typeKey(t)] = id
	return id
}

// VectorOf interns a SIMD vector type of lanes elements.
func (in *Interner) VectorOf(elem TypeID, lanes uint32) TypeID {
	return in.Intern(MakeVector(elem, lanes))
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics when id is invalid.
func (in *Interner) MustLookup(id TypeID) Type {
	tt, ok := in.Lookup(id)
	if !ok {
		panic("types: invalid TypeID")
	}
	return tt
}

type typeKey struct {
	Kind  Kind
	Elem  TypeID
	Lanes uint32
}
