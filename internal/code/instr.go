package code

import (
	"fmt"

	"kiln/internal/abi"
)

// TargetID names one registered native helper in the target table.
type TargetID uint32

// NoTarget marks an unresolved call site.
const NoTarget TargetID = 0xFFFFFFFF

// Op is a portable trampoline opcode. The set is deliberately small: stubs
// only marshal arguments, call one native target, test for a pending
// exception and leave. Control transfer stays inside the blob except for
// OpTailJump, which forwards to another blob without growing the stack.
type Op uint8

const (
	OpNop Op = iota
	// OpMove copies Src to Dst.
	OpMove
	// OpLoadArg loads incoming stack argument Imm, an outgoing-area index in
	// the caller's frame, into Dst.
	OpLoadArg
	// OpStoreArg stores Src into outgoing-area slot Imm of the current frame.
	OpStoreArg
	// OpLoadCtx materializes the execution context token into Dst.
	OpLoadCtx
	// OpLoadRet materializes the frame's saved return address into Dst.
	// Return-address stub variants pass it as a trailing argument.
	OpLoadRet
	// OpCall invokes native target Imm under the native convention.
	OpCall
	// OpBranchPending jumps to instruction Imm when the context carries a
	// pending exception.
	OpBranchPending
	// OpJump jumps to instruction Imm unconditionally.
	OpJump
	// OpTailJump transfers control to blob address Imm in the current frame.
	OpTailJump
	// OpRet pops the frame and resumes at its saved return address.
	OpRet
	// OpDispatchException hands the pending exception to the dispatcher.
	// Only the exception blob carries it.
	OpDispatchException
	// OpDispatchDeopt hands a deoptimization request to the dispatcher. The
	// trap request rides in Src. Only the deopt blob carries it.
	OpDispatchDeopt
	// OpHalt stops execution with status Imm. Generator-internal.
	OpHalt
)

var opNames = [...]string{
	OpNop:               "nop",
	OpMove:              "move",
	OpLoadArg:           "loadarg",
	OpStoreArg:          "storearg",
	OpLoadCtx:           "loadctx",
	OpLoadRet:           "loadret",
	OpCall:              "call",
	OpBranchPending:     "brpending",
	OpJump:              "jump",
	OpTailJump:          "tailjump",
	OpRet:               "ret",
	OpDispatchException: "dispatch.exception",
	OpDispatchDeopt:     "dispatch.deopt",
	OpHalt:              "halt",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op?%d", uint8(o))
}

// Instr is one trampoline instruction. Unused operands hold NoRegister / 0.
type Instr struct {
	Op  Op
	Dst abi.Register
	Src abi.Register
	Imm int64
}

func (in Instr) String() string {
	switch in.Op {
	case OpNop, OpRet, OpDispatchException:
		return in.Op.String()
	case OpMove:
		return fmt.Sprintf("%s %s, %s", in.Op, in.Dst, in.Src)
	case OpLoadArg:
		return fmt.Sprintf("%s %s, in[%d]", in.Op, in.Dst, in.Imm)
	case OpStoreArg:
		return fmt.Sprintf("%s out[%d], %s", in.Op, in.Imm, in.Src)
	case OpLoadCtx, OpLoadRet:
		return fmt.Sprintf("%s %s", in.Op, in.Dst)
	case OpCall:
		return fmt.Sprintf("%s target#%d", in.Op, in.Imm)
	case OpBranchPending, OpJump:
		return fmt.Sprintf("%s @%d", in.Op, in.Imm)
	case OpTailJump:
		return fmt.Sprintf("%s %s", in.Op, Addr(in.Imm))
	case OpDispatchDeopt:
		return fmt.Sprintf("%s %s", in.Op, in.Src)
	case OpHalt:
		return fmt.Sprintf("%s %d", in.Op, in.Imm)
	default:
		return in.Op.String()
	}
}
