package exec

import (
	"time"

	"kiln/internal/abi"
	"kiln/internal/code"
	"kiln/internal/safepoint"
	"kiln/internal/trace"
)

// Status classifies how a trampoline call finished.
type Status uint8

const (
	// StatusOK means a normal return; results are in R0/R1.
	StatusOK Status = iota
	// StatusHandled means a raised exception reached a handler in a
	// surviving compiled frame; ResumeAddr is the handler.
	StatusHandled
	// StatusUnwound means the exception escaped every frame.
	StatusUnwound
	// StatusDeopted means the compiled caller was abandoned; Deopt carries
	// the record the lower tier resumes from.
	StatusDeopted
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusHandled:
		return "handled"
	case StatusUnwound:
		return "unwound"
	case StatusDeopted:
		return "deopted"
	default:
		return "unknown"
	}
}

// Result is the outcome of one trampoline call.
type Result struct {
	Status     Status
	R0, R1     uint64
	ResumeAddr code.Addr
	Deopt      *DeoptRecord
}

// TrapReturnBarrier is the synthetic trap request used when a return runs
// into a frame that was deoptimized while suspended.
const TrapReturnBarrier int64 = -1

// Options configures an Interp. Zero values select safe defaults; a nil
// Dispatcher leaves dispatch ops fatal, which suits generator self-tests.
type Options struct {
	Dispatcher Dispatcher
	Safepoints *safepoint.Coordinator
	Tracer     trace.Tracer
	MaxSteps   int
	// DeoptEntry is the installed deopt blob; returns into deoptimized
	// frames divert there.
	DeoptEntry code.Addr
}

// Interp executes trampoline blobs against a Context. One Interp serves any
// number of contexts concurrently; all mutable state lives in the Context.
type Interp struct {
	cache      *code.Cache
	targets    *TargetTable
	disp       Dispatcher
	sp         *safepoint.Coordinator
	tr         trace.Tracer
	maxSteps   int
	deoptEntry code.Addr
}

// NewInterp wires an executor over the given cache and target table.
func NewInterp(cache *code.Cache, targets *TargetTable, opts Options) *Interp {
	tr := opts.Tracer
	if tr == nil {
		tr = trace.Nop
	}
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 1 << 16
	}
	return &Interp{
		cache:      cache,
		targets:    targets,
		disp:       opts.Dispatcher,
		sp:         opts.Safepoints,
		tr:         tr,
		maxSteps:   maxSteps,
		deoptEntry: opts.DeoptEntry,
	}
}

// Call runs the blob installed at entry. Arguments follow the compiled
// convention: the first six in registers, the rest in the incoming stack
// area. The returned error is always a *Fault; guest-visible outcomes,
// including exceptions and deopts, come back in the Result.
func (it *Interp) Call(ctx *Context, entry code.Addr, args []uint64) (Result, error) {
	blob, ok := it.cache.FindByAddress(entry)
	if !ok || blob.Base() != entry {
		return Result{}, ctx.faultf(FaultBadAddress, entry, "no blob entry at %s", entry)
	}

	for i := 0; i < len(args) && i < len(abi.Compiled.ArgRegs); i++ {
		ctx.Regs[abi.Compiled.ArgRegs[i]] = args[i]
	}
	if len(args) > len(abi.Compiled.ArgRegs) {
		ctx.inArgs = args[len(abi.Compiled.ArgRegs):]
	} else {
		ctx.inArgs = nil
	}

	retAddr := code.NilAddr
	if top := ctx.Top(); top != nil && top.Kind == FrameCompiled {
		retAddr = top.Addr
	}
	startDepth := ctx.Depth()
	if err := it.enter(ctx, blob, retAddr); err != nil {
		return Result{}, err
	}
	trace.Point(it.tr, trace.ScopeCall, "call:"+blob.Name(), "", uint64(entry))

	return it.run(ctx, startDepth)
}

func (it *Interp) enter(ctx *Context, blob *code.Blob, retAddr code.Addr) error {
	f := Frame{
		Kind:    FrameBlob,
		Name:    blob.Name(),
		Blob:    blob,
		Slots:   make([]uint64, blob.FrameSlots()),
		RetAddr: retAddr,
	}
	// Frame layout convention: slot 0 return address, slot 1 saved context.
	if len(f.Slots) > 0 {
		f.Slots[0] = uint64(retAddr)
	}
	if len(f.Slots) > 1 {
		f.Slots[1] = ctx.Regs[abi.Ctx]
	}
	return ctx.push(f)
}

func (it *Interp) run(ctx *Context, startDepth int) (Result, error) {
	stepDebug := it.tr.Level().ShouldEmit(trace.ScopeStep)
	steps := 0
	for {
		f := ctx.Top()
		if f == nil || f.Kind != FrameBlob {
			return Result{}, ctx.faultf(FaultBadInstr, code.NilAddr, "executor lost its blob frame")
		}
		here := f.Blob.Base() + code.Addr(f.PC)
		if f.PC < 0 || f.PC >= f.Blob.Size() {
			return Result{}, ctx.faultf(FaultPCRange, here, "pc %d outside blob %q", f.PC, f.Name)
		}
		steps++
		if steps > it.maxSteps {
			return Result{}, ctx.faultf(FaultRunaway, here, "step budget %d exhausted", it.maxSteps)
		}
		in := f.Blob.InstrAt(here)
		if stepDebug {
			it.tr.Emit(&trace.Event{
				Time: time.Now(), Kind: trace.KindPoint, Scope: trace.ScopeStep,
				Name: in.String(), Detail: f.Name, Addr: uint64(here),
			})
		}
		f.PC++

		switch in.Op {
		case code.OpNop:

		case code.OpMove:
			ctx.Regs[in.Dst] = ctx.Regs[in.Src]

		case code.OpLoadArg:
			idx := int(in.Imm)
			if idx < 0 || idx >= len(ctx.inArgs) {
				return Result{}, ctx.faultf(FaultBadInstr, here, "incoming arg %d of %d", idx, len(ctx.inArgs))
			}
			ctx.Regs[in.Dst] = ctx.inArgs[idx]

		case code.OpStoreArg:
			slot := f.Blob.OutBase() + int(in.Imm)
			if slot < 0 || slot >= len(f.Slots) {
				return Result{}, ctx.faultf(FaultBadInstr, here, "outgoing slot %d of %d", slot, len(f.Slots))
			}
			f.Slots[slot] = ctx.Regs[in.Src]

		case code.OpLoadCtx:
			ctx.Regs[in.Dst] = ctx.Token()

		case code.OpLoadRet:
			ctx.Regs[in.Dst] = uint64(f.RetAddr)

		case code.OpCall:
			tgt, ok := it.targets.Get(code.TargetID(in.Imm))
			if in.Imm < 0 || !ok {
				return Result{}, ctx.faultf(FaultUnknownTarget, here, "target #%d not registered", in.Imm)
			}
			if ctx.Regs[abi.Ctx] != ctx.Token() {
				return Result{}, ctx.faultf(FaultBadContext, here, "call to %q without context register", tgt.Name)
			}
			args, fault := it.gatherArgs(ctx, f, here, tgt.Arity)
			if fault != nil {
				return Result{}, fault
			}
			r0, r1 := tgt.Fn(ctx, args)
			ctx.Regs[abi.NRet0], ctx.Regs[abi.NRet1] = r0, r1

		case code.OpBranchPending:
			if ctx.HasPending() {
				f.PC = int(in.Imm)
			}

		case code.OpJump:
			f.PC = int(in.Imm)

		case code.OpTailJump:
			nb, ok := it.cache.FindByAddress(code.Addr(in.Imm))
			if !ok || nb.Base() != code.Addr(in.Imm) {
				return Result{}, ctx.faultf(FaultBadAddress, here, "tail jump to %s", code.Addr(in.Imm))
			}
			f.Blob = nb
			f.Name = nb.Name()
			f.PC = 0
			if len(f.Slots) < nb.FrameSlots() {
				grown := make([]uint64, nb.FrameSlots())
				copy(grown, f.Slots)
				f.Slots = grown
			}

		case code.OpRet:
			if it.sp != nil {
				it.sp.Poll()
			}
			popped, _ := ctx.PopFrame()
			if top := ctx.Top(); top != nil && top.Kind == FrameCompiled && top.DeoptPending {
				// Return barrier: the frame below was invalidated while the
				// helper ran. Divert through the deopt entry instead of
				// resuming its code.
				if it.deoptEntry == code.NilAddr {
					return Result{}, ctx.faultf(FaultNoDeoptHandler, popped.RetAddr,
						"return into deoptimized frame %q with no deopt entry", top.Name)
				}
				db, ok := it.cache.FindByAddress(it.deoptEntry)
				if !ok || db.Base() != it.deoptEntry {
					return Result{}, ctx.faultf(FaultBadAddress, it.deoptEntry, "deopt entry not installed")
				}
				trapReq := TrapReturnBarrier
				ctx.Regs[abi.J0] = uint64(trapReq)
				if err := it.enter(ctx, db, top.Addr); err != nil {
					return Result{}, err
				}
				continue
			}
			if ctx.Depth() == startDepth {
				res := Result{Status: StatusOK, R0: ctx.Regs[abi.JRet0], R1: ctx.Regs[abi.JRet1]}
				trace.Point(it.tr, trace.ScopeCall, "ret:"+popped.Name, res.Status.String(), uint64(popped.RetAddr))
				return res, nil
			}

		case code.OpDispatchException:
			if it.disp == nil {
				return Result{}, ctx.faultf(FaultNoDispatcher, here, "exception dispatch with no dispatcher")
			}
			if !ctx.HasPending() {
				return Result{}, ctx.faultf(FaultNoPending, here, "exception dispatch with nothing pending")
			}
			outcome, err := it.disp.DispatchException(ctx)
			if err != nil {
				return Result{}, ctx.faultf(FaultDispatchFailed, here, "exception dispatch: %v", err)
			}
			switch outcome.Action {
			case ActionResume:
				res := Result{
					Status:     StatusHandled,
					R0:         ctx.Regs[abi.JRet0],
					R1:         ctx.Regs[abi.JRet1],
					ResumeAddr: outcome.ResumeAddr,
				}
				trace.Point(it.tr, trace.ScopeCall, "handled", "", uint64(outcome.ResumeAddr))
				return res, nil
			case ActionUnwound:
				trace.Point(it.tr, trace.ScopeCall, "unwound", "", 0)
				return Result{Status: StatusUnwound}, nil
			default:
				return Result{}, ctx.faultf(FaultDispatchFailed, here, "unknown dispatch action %d", outcome.Action)
			}

		case code.OpDispatchDeopt:
			if it.disp == nil {
				return Result{}, ctx.faultf(FaultNoDispatcher, here, "deopt dispatch with no dispatcher")
			}
			req := int64(ctx.Regs[in.Src])
			rec, err := it.disp.DispatchDeopt(ctx, req)
			if err != nil {
				return Result{}, ctx.faultf(FaultDispatchFailed, here, "deopt dispatch: %v", err)
			}
			ctx.SetDeopt(rec)
			trace.Point(it.tr, trace.ScopeCall, "deopt", "", uint64(rec.Addr))
			return Result{Status: StatusDeopted, Deopt: rec}, nil

		case code.OpHalt:
			return Result{}, ctx.faultf(FaultHalt, here, "halt %d", in.Imm)

		default:
			return Result{}, ctx.faultf(FaultBadInstr, here, "unknown opcode %d", uint8(in.Op))
		}
	}
}

func (it *Interp) gatherArgs(ctx *Context, f *Frame, here code.Addr, arity int) ([]uint64, *Fault) {
	args := make([]uint64, arity)
	for i := 0; i < arity; i++ {
		loc := abi.Native.ArgLocation(i)
		if loc.IsRegister() {
			args[i] = ctx.Regs[loc.Reg]
			continue
		}
		slot := f.Blob.OutBase() + loc.Slot
		if slot < 0 || slot >= len(f.Slots) {
			return nil, ctx.faultf(FaultBadInstr, here, "native arg %d at slot %d of %d", i, slot, len(f.Slots))
		}
		args[i] = f.Slots[slot]
	}
	return args, nil
}
