package code

import (
	"fmt"

	"kiln/internal/abi"
)

// Label identifies a position in the instruction stream being assembled.
// Labels may be referenced before they are bound; Finish patches the
// recorded fixups once all positions are known.
type Label int

const unboundLabel = -1

// Assembler builds one blob's instruction stream. It is single-use: emit,
// bind, Finish.
type Assembler struct {
	name   string
	insns  []Instr
	labels []int
	fixups []fixup
}

type fixup struct {
	pos   int // instruction whose Imm receives the label position
	label Label
}

// NewAssembler starts an empty stream for the named blob.
func NewAssembler(name string) *Assembler {
	return &Assembler{name: name}
}

// NewLabel reserves a label for later binding.
func (a *Assembler) NewLabel() Label {
	a.labels = append(a.labels, unboundLabel)
	return Label(len(a.labels) - 1)
}

// Bind fixes l at the next emitted instruction.
func (a *Assembler) Bind(l Label) {
	a.labels[l] = len(a.insns)
}

// Here reports the next instruction index. Diagnostics only.
func (a *Assembler) Here() int { return len(a.insns) }

func (a *Assembler) emit(in Instr) {
	a.insns = append(a.insns, in)
}

func (a *Assembler) emitBranch(op Op, l Label) {
	a.fixups = append(a.fixups, fixup{pos: len(a.insns), label: l})
	a.emit(Instr{Op: op, Dst: abi.NoRegister, Src: abi.NoRegister, Imm: int64(unboundLabel)})
}

// Nop emits a no-op.
func (a *Assembler) Nop() { a.emit(Instr{Op: OpNop, Dst: abi.NoRegister, Src: abi.NoRegister}) }

// Move emits dst <- src.
func (a *Assembler) Move(dst, src abi.Register) {
	a.emit(Instr{Op: OpMove, Dst: dst, Src: src})
}

// LoadArg emits dst <- incoming stack argument at outgoing-area index idx.
func (a *Assembler) LoadArg(dst abi.Register, idx int) {
	a.emit(Instr{Op: OpLoadArg, Dst: dst, Src: abi.NoRegister, Imm: int64(idx)})
}

// StoreArg emits outgoing-area slot idx <- src.
func (a *Assembler) StoreArg(idx int, src abi.Register) {
	a.emit(Instr{Op: OpStoreArg, Dst: abi.NoRegister, Src: src, Imm: int64(idx)})
}

// LoadCtx emits dst <- context token.
func (a *Assembler) LoadCtx(dst abi.Register) {
	a.emit(Instr{Op: OpLoadCtx, Dst: dst, Src: abi.NoRegister})
}

// LoadRet emits dst <- the frame's saved return address.
func (a *Assembler) LoadRet(dst abi.Register) {
	a.emit(Instr{Op: OpLoadRet, Dst: dst, Src: abi.NoRegister})
}

// Call emits a native call to target.
func (a *Assembler) Call(target TargetID) {
	a.emit(Instr{Op: OpCall, Dst: abi.NoRegister, Src: abi.NoRegister, Imm: int64(target)})
}

// BranchPending emits a conditional jump to l taken when a pending exception
// is set.
func (a *Assembler) BranchPending(l Label) { a.emitBranch(OpBranchPending, l) }

// Jump emits an unconditional jump to l.
func (a *Assembler) Jump(l Label) { a.emitBranch(OpJump, l) }

// TailJump emits a transfer to another blob without pushing a frame.
func (a *Assembler) TailJump(addr Addr) {
	a.emit(Instr{Op: OpTailJump, Dst: abi.NoRegister, Src: abi.NoRegister, Imm: int64(addr)})
}

// Ret emits a return to the frame's saved return address.
func (a *Assembler) Ret() { a.emit(Instr{Op: OpRet, Dst: abi.NoRegister, Src: abi.NoRegister}) }

// DispatchException emits the exception-blob handoff.
func (a *Assembler) DispatchException() {
	a.emit(Instr{Op: OpDispatchException, Dst: abi.NoRegister, Src: abi.NoRegister})
}

// DispatchDeopt emits the deopt-blob handoff with the trap request in src.
func (a *Assembler) DispatchDeopt(src abi.Register) {
	a.emit(Instr{Op: OpDispatchDeopt, Dst: abi.NoRegister, Src: src})
}

// Halt emits a stop with the given status code.
func (a *Assembler) Halt(status int64) {
	a.emit(Instr{Op: OpHalt, Dst: abi.NoRegister, Src: abi.NoRegister, Imm: status})
}

// Finish resolves fixups and returns the instruction stream. It fails on a
// referenced-but-unbound label or an empty stream; the generator treats
// either as a fatal construction bug.
func (a *Assembler) Finish() ([]Instr, error) {
	if len(a.insns) == 0 {
		return nil, fmt.Errorf("code: blob %q assembled empty", a.name)
	}
	for _, f := range a.fixups {
		pos := a.labels[f.label]
		if pos == unboundLabel {
			return nil, fmt.Errorf("code: blob %q references unbound label %d", a.name, int(f.label))
		}
		a.insns[f.pos].Imm = int64(pos)
	}
	return a.insns, nil
}
