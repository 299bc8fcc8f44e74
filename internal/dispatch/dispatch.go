// Package dispatch decides what exceptional control flow does to a
// context's frame stack. Two state machines live here: exception delivery,
// which searches compiled frames for a matching handler, and
// deoptimization, which abandons a compiled frame and rebuilds the position
// the lower tier resumes from. Both run inside blob execution and leave the
// stack fully adjusted before returning their verdict.
package dispatch

import (
	"errors"
	"fmt"

	"kiln/internal/abi"
	"kiln/internal/counters"
	"kiln/internal/exec"
	"kiln/internal/heap"
	"kiln/internal/meta"
	"kiln/internal/trace"
)

// UncaughtFunc observes an exception that escaped every frame. It runs
// after the stack is fully unwound, once per escaping exception.
type UncaughtFunc func(ctx *exec.Context, exception heap.Oop)

// Options configures a Dispatcher. Zero values work: a nil Tracer discards
// events and a nil Uncaught leaves the context's terminal record as the
// only evidence.
type Options struct {
	Tracer   trace.Tracer
	Uncaught UncaughtFunc
}

// Dispatcher implements exec.Dispatcher over the installed method metadata
// and the class table. It is safe for concurrent use: all mutable state
// lives on the context being dispatched.
type Dispatcher struct {
	meta     *meta.Registry
	classes  *heap.ClassTable
	heap     *heap.Heap
	tr       trace.Tracer
	uncaught UncaughtFunc

	dispatched *counters.Counter
	handled    *counters.Counter
	escaped    *counters.Counter
	traps      [NumReasons]*counters.Counter
}

// New wires a dispatcher over the metadata registry and the heap whose
// class table resolves catch types.
func New(reg *meta.Registry, h *heap.Heap, ctrs *counters.Registry, opts Options) *Dispatcher {
	tr := opts.Tracer
	if tr == nil {
		tr = trace.Nop
	}
	d := &Dispatcher{
		meta:       reg,
		classes:    h.Classes(),
		heap:       h,
		tr:         tr,
		uncaught:   opts.Uncaught,
		dispatched: ctrs.NewCounter("exception.dispatched", counters.TagNone),
		handled:    ctrs.NewCounter("exception.handled", counters.TagNone),
		escaped:    ctrs.NewCounter("exception.uncaught", counters.TagNone),
	}
	for r := ReasonNone; r < NumReasons; r++ {
		d.traps[r] = ctrs.NewCounter("uncommon_trap."+r.String(), counters.TagNone)
	}
	return d
}

// DispatchException consumes the pending exception and finds where control
// goes. Trampoline frames are popped outright; compiled frames are visited
// top down, and the first one whose handler table covers the suspended
// position with a matching catch type survives, its position moved to the
// handler. A frame without a match is popped and the search continues in
// its caller. When nothing catches, the default top-level handler runs
// exactly once: the exception lands in the context's uncaught record and
// the whole stack is gone.
//
// An error means the metadata contradicts the frames it describes. The
// executor turns that into a fault; resuming on a corrupt handler table
// would hand control to an arbitrary address.
func (d *Dispatcher) DispatchException(ctx *exec.Context) (exec.Outcome, error) {
	excOop := heap.Oop(ctx.ClearPending())
	excKlass, err := d.heap.KlassOf(excOop)
	if err != nil {
		return exec.Outcome{}, fmt.Errorf("dispatch: pending exception %#x is not an object: %v", uint64(excOop), err)
	}
	d.dispatched.Inc()
	trace.Point(d.tr, trace.ScopeCall, "exception:raised", d.classes.Name(excKlass), uint64(excOop))

	subtypeOf := func(catchType uint32) bool {
		return d.classes.IsSubclassOf(excKlass, heap.KlassID(catchType))
	}
	for {
		top := ctx.Top()
		if top == nil {
			return d.unhandled(ctx, excOop), nil
		}
		if top.Kind == exec.FrameBlob {
			// Trampolines never handle anything; their frames just vanish.
			ctx.PopFrame()
			continue
		}
		in, ok := d.meta.FindByAddress(top.Addr)
		if !ok {
			return exec.Outcome{}, fmt.Errorf("%w: compiled frame %q at %s has no installed metadata",
				meta.ErrCorruptMetadata, top.Name, top.Addr)
		}
		if handler, ok := in.HandlerFor(top.Addr, subtypeOf); ok {
			if !in.Contains(handler) {
				return exec.Outcome{}, fmt.Errorf("%w: %s: handler %s outside the installed range",
					meta.ErrCorruptMetadata, in.Meta().Name, handler)
			}
			// The handler receives the exception in the return register.
			top.Addr = handler
			ctx.Regs[abi.JRet0] = uint64(excOop)
			d.handled.Inc()
			trace.Point(d.tr, trace.ScopeCall, "exception:handled", top.Name, uint64(handler))
			return exec.Outcome{Action: exec.ActionResume, ResumeAddr: handler}, nil
		}
		trace.Point(d.tr, trace.ScopeCall, "exception:unwind", top.Name, uint64(top.Addr))
		ctx.PopFrame()
	}
}

// unhandled is the default top-level handler.
func (d *Dispatcher) unhandled(ctx *exec.Context, excOop heap.Oop) exec.Outcome {
	ctx.RecordUncaught(uint64(excOop))
	d.escaped.Inc()
	trace.Point(d.tr, trace.ScopeCall, "exception:uncaught", "", uint64(excOop))
	if d.uncaught != nil {
		d.uncaught(ctx, excOop)
	}
	return exec.Outcome{Action: exec.ActionUnwound}
}

// DispatchDeopt abandons the compiled frame that trapped. Trampoline frames
// riding above it are dropped, the call-site record at its suspended
// position supplies the source position the lower tier rebuilds from, and
// the frame itself is discarded. Resuming is the caller's business; the
// record says where.
func (d *Dispatcher) DispatchDeopt(ctx *exec.Context, trapRequest int64) (*exec.DeoptRecord, error) {
	if !ValidTrapRequest(trapRequest) {
		return nil, fmt.Errorf("dispatch: malformed trap request %d", trapRequest)
	}
	reason := TrapRequestReason(trapRequest)
	action := TrapRequestAction(trapRequest)
	d.traps[reason].Inc()

	for {
		top := ctx.Top()
		if top == nil {
			return nil, errors.New("dispatch: deopt with no compiled frame on the stack")
		}
		if top.Kind == exec.FrameCompiled {
			break
		}
		ctx.PopFrame()
	}
	top := ctx.Top()
	addr := top.Addr
	in, ok := d.meta.FindByAddress(addr)
	if !ok {
		return nil, fmt.Errorf("%w: deopt in %q at %s: no installed metadata",
			meta.ErrCorruptMetadata, top.Name, addr)
	}
	cs, ok := d.meta.CallSiteAt(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s: no call site recorded at %s",
			meta.ErrCorruptMetadata, in.Meta().Name, addr)
	}
	rec := &exec.DeoptRecord{
		Method:      in.Meta().Name,
		Addr:        addr,
		BCI:         cs.BCI,
		Reexecute:   cs.Reexecute,
		TrapRequest: trapRequest,
	}
	ctx.PopFrame()
	trace.Point(d.tr, trace.ScopeCall, "deopt:"+reason.String(), action.String(), uint64(addr))
	return rec, nil
}

// DeoptimizeCallerFrame marks the compiled frame the active helper runs on
// behalf of when doit is set, so the next return into it diverts through
// the deopt entry. It reports whether a mark was placed.
func DeoptimizeCallerFrame(ctx *exec.Context, doit bool) bool {
	if !doit {
		return false
	}
	return ctx.DeoptimizeCallerFrame()
}

// IsDeoptimizedCallerFrame reports whether that frame already carries the
// mark.
func IsDeoptimizedCallerFrame(ctx *exec.Context) bool {
	return ctx.IsDeoptimizedCallerFrame()
}
