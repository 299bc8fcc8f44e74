package abi

import (
	"fmt"

	"kiln/internal/types"
)

// LocationKind says where an argument or result lives.
type LocationKind uint8

const (
	LocNone LocationKind = iota
	LocRegister
	// LocStack is an index into the caller frame's outgoing argument area.
	LocStack
)

// Location is one assigned argument or result position.
type Location struct {
	Kind LocationKind
	Reg  Register
	Slot int
}

func regLoc(r Register) Location { return Location{Kind: LocRegister, Reg: r} }
func stackLoc(s int) Location    { return Location{Kind: LocStack, Slot: s} }

func (l Location) IsStack() bool    { return l.Kind == LocStack }
func (l Location) IsRegister() bool { return l.Kind == LocRegister }

func (l Location) String() string {
	switch l.Kind {
	case LocRegister:
		return l.Reg.String()
	case LocStack:
		return fmt.Sprintf("stack[%d]", l.Slot)
	default:
		return "none"
	}
}

// Convention describes one side of a call: which registers carry leading
// arguments, where results come back, which registers the callee may
// clobber, and how the outgoing stack area is shaped. All sizes are in
// 64-bit slots.
type Convention struct {
	Name        string
	ArgRegs     []Register
	RetRegs     []Register
	CtxReg      Register // NoRegister when the convention has no context slot
	CallerSaved []Register
	CalleeSaved []Register
	// ShadowSlots is scratch space the caller reserves below the outgoing
	// arguments for the callee's use.
	ShadowSlots int
	// StackAlignSlots is the alignment of the whole frame, in slots.
	StackAlignSlots int
}

// Compiled is the convention emitted code calls stubs under: six register
// arguments, overflow on the stack, up to two results.
var Compiled = Convention{
	Name:            "compiled",
	ArgRegs:         []Register{J0, J1, J2, J3, J4, J5},
	RetRegs:         []Register{JRet0, JRet1},
	CtxReg:          NoRegister,
	CallerSaved:     []Register{J0, J1, J2, J3, J4, J5, JRet0, JRet1},
	CalleeSaved:     nil,
	ShadowSlots:     0,
	StackAlignSlots: 2,
}

// Native is the convention runtime helper targets are invoked under. The
// trampoline fills the argument registers from the compiled locations and
// sets Ctx last, so a helper always observes a consistent context.
var Native = Convention{
	Name:            "native",
	ArgRegs:         []Register{N0, N1, N2, N3, N4, N5, N6, N7},
	RetRegs:         []Register{NRet0, NRet1},
	CtxReg:          Ctx,
	CallerSaved:     []Register{N0, N1, N2, N3, N4, N5, NRet0, NRet1},
	CalleeSaved:     []Register{N6, N7, Ctx},
	ShadowSlots:     2,
	StackAlignSlots: 2,
}

// ArgLocation returns where the i-th argument travels under this
// convention. The uniform slot model means the assignment depends only on
// position, never on kind.
func (c *Convention) ArgLocation(i int) Location {
	if i < len(c.ArgRegs) {
		return regLoc(c.ArgRegs[i])
	}
	return stackLoc(c.ShadowSlots + (i - len(c.ArgRegs)))
}

// AssignArgs maps a signature domain onto the convention: one slot per
// value, registers first, then outgoing stack slots in order. The kinds
// still matter to callers that must distinguish pointer slots.
func (c *Convention) AssignArgs(domain []types.TypeID) []Location {
	locs := make([]Location, len(domain))
	for i := range domain {
		locs[i] = c.ArgLocation(i)
	}
	return locs
}

// AssignResults maps a signature range onto result registers. Results never
// spill: the catalog's widest range is a pair, and the register file carries
// two result registers per convention.
func (c *Convention) AssignResults(results []types.TypeID) []Location {
	if len(results) > len(c.RetRegs) {
		panic(fmt.Sprintf("abi: %s convention cannot return %d values", c.Name, len(results)))
	}
	locs := make([]Location, len(results))
	for i := range results {
		locs[i] = regLoc(c.RetRegs[i])
	}
	return locs
}

// OutgoingSlots is the stack area a call with numArgs arguments needs under
// this convention, aligned, including shadow space.
func (c *Convention) OutgoingSlots(numArgs int) int {
	n := c.ShadowSlots
	if numArgs > len(c.ArgRegs) {
		n += numArgs - len(c.ArgRegs)
	}
	return alignSlots(n, c.StackAlignSlots)
}

// IsCallerSaved reports whether the callee may clobber r freely.
func (c *Convention) IsCallerSaved(r Register) bool { return containsReg(c.CallerSaved, r) }

// IsCalleeSaved reports whether the callee must preserve r.
func (c *Convention) IsCalleeSaved(r Register) bool { return containsReg(c.CalleeSaved, r) }

func containsReg(rs []Register, r Register) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

func alignSlots(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
