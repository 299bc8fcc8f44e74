// Package abi defines the two calling conventions the runtime bridges
// between: the compiled convention that emitted code uses for arguments and
// results, and the native convention that runtime helper targets are called
// under. Stub trampolines are exactly the marshalling between the two.
package abi

import "fmt"

// Register names one slot in the execution context's register file. The
// machine is portable: registers are indices, every register holds one
// 64-bit slot, and floating-point values travel bit-cast in the same file.
type Register uint8

const (
	// Compiled-convention argument registers.
	J0 Register = iota
	J1
	J2
	J3
	J4
	J5
	// Compiled-convention result registers. JRet1 is used only by the few
	// helpers that produce a pair.
	JRet0
	JRet1
	// Native-convention argument registers.
	N0
	N1
	N2
	N3
	N4
	N5
	N6
	N7
	// Native-convention result registers.
	NRet0
	NRet1
	// Ctx carries the execution context pointer into native helpers. Only
	// trampolines write it; compiled code never touches it.
	Ctx

	NumRegisters int = iota
)

// NoRegister marks an absent register operand.
const NoRegister Register = 0xFF

var regNames = [NumRegisters]string{
	J0: "j0", J1: "j1", J2: "j2", J3: "j3", J4: "j4", J5: "j5",
	JRet0: "jret0", JRet1: "jret1",
	N0: "n0", N1: "n1", N2: "n2", N3: "n3", N4: "n4", N5: "n5", N6: "n6", N7: "n7",
	NRet0: "nret0", NRet1: "nret1",
	Ctx: "ctx",
}

func (r Register) String() string {
	if r == NoRegister {
		return "noreg"
	}
	if int(r) < NumRegisters {
		return regNames[r]
	}
	return fmt.Sprintf("reg?%d", uint8(r))
}
