package types

import "fmt"

// TypeID uniquely identifies a value type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// Kind enumerates the machine-independent value kinds the compiler
// passes to and receives from runtime helpers.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt          // 32-bit signed integer
	KindLong         // 64-bit signed integer
	KindFloat        // 32-bit IEEE float
	KindDouble       // 64-bit IEEE float
	KindOop          // managed object pointer
	KindKlass        // class metadata pointer
	KindRawAddress   // unmanaged native address
	KindRetAddress   // caller return address, rethrow variants only
	KindVector       // fixed-lane SIMD value
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindOop:
		return "oop"
	case KindKlass:
		return "klass"
	case KindRawAddress:
		return "rawaddr"
	case KindRetAddress:
		return "retaddr"
	case KindVector:
		return "vector"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Type is a compact descriptor for any supported value type.
type Type struct {
	Kind  Kind
	Elem  TypeID // vector element type
	Lanes uint32 // vector lane count
}

// IsPointer reports whether values of this type are addresses of any
// flavor. Pointer-ness decides which register class the marshaller uses.
func (t Type) IsPointer() bool {
	switch t.Kind {
	case KindOop, KindKlass, KindRawAddress, KindRetAddress:
		return true
	default:
		return false
	}
}

// Descriptor helpers ---------------------------------------------------------

// MakeInt describes a 32-bit signed integer.
func MakeInt() Type { return Type{Kind: KindInt} }

// MakeLong describes a 64-bit signed integer.
func MakeLong() Type { return Type{Kind: KindLong} }

// MakeFloat describes a 32-bit float.
func MakeFloat() Type { return Type{Kind: KindFloat} }

// MakeDouble describes a 64-bit float.
func MakeDouble() Type { return Type{Kind: KindDouble} }

// MakeOop describes a managed object pointer.
func MakeOop() Type { return Type{Kind: KindOop} }

// MakeKlass describes a class metadata pointer.
func MakeKlass() Type { return Type{Kind: KindKlass} }

// MakeRawAddress describes an unmanaged native address.
func MakeRawAddress() Type { return Type{Kind: KindRawAddress} }

// MakeRetAddress describes a caller return-address argument.
func MakeRetAddress() Type { return Type{Kind: KindRetAddress} }

// MakeVector describes a SIMD value of lanes elements of the given type.
func MakeVector(elem TypeID, lanes uint32) Type {
	return Type{Kind: KindVector, Elem: elem, Lanes: lanes}
}
