package stubs

import (
	"fmt"

	"kiln/internal/abi"
	"kiln/internal/code"
	"kiln/internal/sig"
	"kiln/internal/trace"
)

// Generate builds and installs every stub in the table. It runs the whole
// table or nothing: the first failure is returned as an *InitError and the
// registry stays ungenerated. Calling Generate on an already generated
// registry is a no-op returning nil; the id space and the installed
// entries never change after the first success.
func (r *Registry) Generate(env Env) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generated {
		return nil
	}
	tr := env.Tracer
	if tr == nil {
		tr = trace.Nop
	}
	span := trace.StartSpan(tr, trace.ScopeRuntime, "stubs:generate")
	defer span.End()

	// Special blobs first: every trampoline's exception tail jumps to the
	// exception blob, so its address must exist before any stub is emitted.
	if err := r.generateBlob(env, tr, UncommonTrapID, emitUncommonTrapBlob); err != nil {
		return err
	}
	if err := r.generateBlob(env, tr, ExceptionID, emitExceptionBlob); err != nil {
		return err
	}
	excEntry := r.entries[ExceptionID].Entry

	for id := ID(0); int(id) < NumStubIDs; id++ {
		d := &stubDefs[id]
		if d.target == "" {
			continue
		}
		if err := r.generateStub(env, tr, id, d, excEntry); err != nil {
			return err
		}
	}
	r.generated = true
	return nil
}

func (r *Registry) generateBlob(env Env, tr trace.Tracer, id ID, emit func(*code.Assembler)) error {
	d := &stubDefs[id]
	a := code.NewAssembler(d.name)
	emit(a)
	insns, err := a.Finish()
	if err != nil {
		return &InitError{Stub: d.name, Err: err}
	}
	layout := abi.NewFrameLayout(0, 0, &abi.Native)
	blob, err := env.Cache.Install(d.name, d.kind, layout.TotalSlots, layout.OutArgSlot(0), insns)
	if err != nil {
		return &InitError{Stub: d.name, Err: err}
	}
	var sg *sig.Signature
	if d.sig != nil {
		sg = d.sig(env.Catalog)
	}
	r.entries[id] = Entry{ID: id, Name: d.name, Kind: d.kind, Entry: blob.Base(), Sig: sg, Blob: blob}
	trace.Point(tr, trace.ScopeStub, "blob:"+d.name, d.kind.String(), uint64(blob.Base()))
	return nil
}

func (r *Registry) generateStub(env Env, tr trace.Tracer, id ID, d *descriptor, excEntry code.Addr) error {
	sg := d.sig(env.Catalog)
	tgt, ok := env.Targets.LookupName(d.target)
	if !ok {
		return &InitError{Stub: d.name, Err: fmt.Errorf("target %q not registered", d.target)}
	}
	if tgt.Arity != sg.NumArgs() || tgt.Results != sg.NumResults() {
		return &InitError{Stub: d.name, Err: fmt.Errorf("target %q is %d->%d but signature %q is %d->%d",
			d.target, tgt.Arity, tgt.Results, sg.Name(), sg.NumArgs(), sg.NumResults())}
	}
	insns, err := emitTrampoline(d.name, sg, tgt.ID, d.flags, excEntry)
	if err != nil {
		return &InitError{Stub: d.name, Err: err}
	}
	layout := abi.NewFrameLayout(0, sg.NumArgs(), &abi.Native)
	blob, err := env.Cache.Install(d.name, code.StubBlob, layout.TotalSlots, layout.OutArgSlot(0), insns)
	if err != nil {
		return &InitError{Stub: d.name, Err: err}
	}
	r.entries[id] = Entry{ID: id, Name: d.name, Kind: code.StubBlob, Entry: blob.Base(), Sig: sg, Blob: blob}
	trace.Point(tr, trace.ScopeStub, "stub:"+d.name, sg.Name(), uint64(blob.Base()))
	return nil
}

// emitTrampoline builds the marshalling body of one stub: move the
// compiled-convention arguments into their native locations, materialize
// the trailing return address when the descriptor asks for it, set the
// context register, call the target, then route the outcome. The two
// register files are disjoint, so argument moves never clobber their own
// sources.
func emitTrampoline(name string, sg *sig.Signature, target code.TargetID, fl Flags, excEntry code.Addr) ([]code.Instr, error) {
	a := code.NewAssembler(name)
	const scratch = abi.JRet0

	numArgs := sg.NumArgs()
	visible := numArgs
	if fl.SaveRetAddr {
		// The last domain slot is the caller PC the stub itself supplies.
		visible--
	}
	for i := 0; i < visible; i++ {
		src := abi.Compiled.ArgLocation(i)
		dst := abi.Native.ArgLocation(i)
		switch {
		case src.IsRegister() && dst.IsRegister():
			a.Move(dst.Reg, src.Reg)
		case src.IsRegister():
			a.StoreArg(dst.Slot, src.Reg)
		case dst.IsRegister():
			a.LoadArg(dst.Reg, src.Slot)
		default:
			a.LoadArg(scratch, src.Slot)
			a.StoreArg(dst.Slot, scratch)
		}
	}
	if fl.SaveRetAddr {
		dst := abi.Native.ArgLocation(numArgs - 1)
		if dst.IsRegister() {
			a.LoadRet(dst.Reg)
		} else {
			a.LoadRet(scratch)
			a.StoreArg(dst.Slot, scratch)
		}
	}
	if fl.PassContext {
		a.LoadCtx(abi.Ctx)
	}
	a.Call(target)

	if fl.ExceptionTransfer {
		// Control never returns to the caller; the helper raised and
		// dispatch picks where execution resumes.
		moveResults(a, sg.NumResults())
		a.TailJump(excEntry)
		return a.Finish()
	}
	pending := a.NewLabel()
	a.BranchPending(pending)
	moveResults(a, sg.NumResults())
	a.Ret()
	a.Bind(pending)
	a.TailJump(excEntry)
	return a.Finish()
}

func moveResults(a *code.Assembler, n int) {
	for i := 0; i < n; i++ {
		a.Move(abi.Compiled.RetRegs[i], abi.Native.RetRegs[i])
	}
}

// The uncommon-trap blob is the landing point for compiled code that gave
// up on an assumption. The trap request arrives in the first compiled
// argument register.
func emitUncommonTrapBlob(a *code.Assembler) {
	a.DispatchDeopt(abi.J0)
}

// The exception blob is the landing point every trampoline's exception
// tail jumps to. The pending exception is already on the context.
func emitExceptionBlob(a *code.Assembler) {
	a.DispatchException()
}
