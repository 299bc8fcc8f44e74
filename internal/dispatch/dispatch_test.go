package dispatch

import (
	"errors"
	"testing"

	"kiln/internal/abi"
	"kiln/internal/code"
	"kiln/internal/counters"
	"kiln/internal/exec"
	"kiln/internal/heap"
	"kiln/internal/meta"
)

type testEnv struct {
	d    *Dispatcher
	h    *heap.Heap
	reg  *meta.Registry
	ctrs *counters.Registry
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	h := heap.NewHeap(heap.NewClassTable(), 0, nil)
	reg := meta.NewRegistry()
	ctrs := counters.NewRegistry()
	return &testEnv{d: New(reg, h, ctrs, opts), h: h, reg: reg, ctrs: ctrs}
}

func (env *testEnv) allocExc(t *testing.T, klass heap.KlassID) heap.Oop {
	t.Helper()
	oop, err := env.h.AllocInstance(klass)
	if err != nil {
		t.Fatalf("AllocInstance: %v", err)
	}
	return oop
}

func (env *testEnv) install(t *testing.T, base code.Addr, m *meta.MethodMeta) {
	t.Helper()
	if _, err := env.reg.Register(base, m); err != nil {
		t.Fatalf("Register %s: %v", m.Name, err)
	}
}

func counterValue(t *testing.T, ctrs *counters.Registry, name string) int64 {
	t.Helper()
	for _, s := range ctrs.Snapshot() {
		if s.Name == name {
			return s.Value
		}
	}
	t.Fatalf("counter %q not registered", name)
	return 0
}

func TestDispatchExceptionToHandler(t *testing.T) {
	env := newTestEnv(t, Options{})
	b := env.h.Classes().Builtins
	exc := env.allocExc(t, b.NullPointer)

	env.install(t, 0x4000, &meta.MethodMeta{
		Name: "m",
		Size: 100,
		Handlers: []meta.HandlerEntry{
			{Start: 0, End: 50, Handler: 60, CatchType: uint32(b.NullPointer)},
		},
	})
	ctx := exec.NewContext(0)
	if err := ctx.PushCompiled("m", 0x4000+10); err != nil {
		t.Fatalf("PushCompiled: %v", err)
	}
	ctx.Raise(uint64(exc))

	out, err := env.d.DispatchException(ctx)
	if err != nil {
		t.Fatalf("DispatchException: %v", err)
	}
	if out.Action != exec.ActionResume || out.ResumeAddr != 0x4000+60 {
		t.Fatalf("outcome = %+v, want resume at %s", out, code.Addr(0x4000+60))
	}
	if top := ctx.Top(); top == nil || top.Addr != 0x4000+60 {
		t.Fatalf("handler frame not repositioned: %+v", ctx.Top())
	}
	if ctx.Regs[abi.JRet0] != uint64(exc) {
		t.Fatalf("exception not delivered in return register: %#x", ctx.Regs[abi.JRet0])
	}
	if ctx.HasPending() {
		t.Fatal("pending exception survived dispatch")
	}
	if got := counterValue(t, env.ctrs, "exception.handled"); got != 1 {
		t.Fatalf("exception.handled = %d, want 1", got)
	}
}

func TestDispatchExceptionSupertypeCatch(t *testing.T) {
	env := newTestEnv(t, Options{})
	b := env.h.Classes().Builtins
	exc := env.allocExc(t, b.NegativeArraySize)

	// The handler catches Throwable; the raised class is a subclass.
	env.install(t, 0x4000, &meta.MethodMeta{
		Name:     "m",
		Size:     64,
		Handlers: []meta.HandlerEntry{{Start: 0, End: 32, Handler: 40, CatchType: uint32(b.Throwable)}},
	})
	ctx := exec.NewContext(0)
	if err := ctx.PushCompiled("m", 0x4000+4); err != nil {
		t.Fatalf("PushCompiled: %v", err)
	}
	ctx.Raise(uint64(exc))

	out, err := env.d.DispatchException(ctx)
	if err != nil || out.Action != exec.ActionResume || out.ResumeAddr != 0x4000+40 {
		t.Fatalf("outcome = %+v, %v", out, err)
	}
}

func TestDispatchExceptionEntryOrderWins(t *testing.T) {
	env := newTestEnv(t, Options{})
	b := env.h.Classes().Builtins
	exc := env.allocExc(t, b.NullPointer)

	// An earlier catch-all shadows the later exact match.
	env.install(t, 0x4000, &meta.MethodMeta{
		Name: "m",
		Size: 100,
		Handlers: []meta.HandlerEntry{
			{Start: 0, End: 50, Handler: 60, CatchType: meta.CatchAll},
			{Start: 0, End: 50, Handler: 70, CatchType: uint32(b.NullPointer)},
		},
	})
	ctx := exec.NewContext(0)
	if err := ctx.PushCompiled("m", 0x4000+8); err != nil {
		t.Fatalf("PushCompiled: %v", err)
	}
	ctx.Raise(uint64(exc))

	out, err := env.d.DispatchException(ctx)
	if err != nil || out.ResumeAddr != 0x4000+60 {
		t.Fatalf("outcome = %+v, %v; want the first covering entry", out, err)
	}
}

func TestDispatchExceptionUnwindsToCaller(t *testing.T) {
	env := newTestEnv(t, Options{})
	b := env.h.Classes().Builtins
	exc := env.allocExc(t, b.ArrayStore)

	// callee has a handler table, but nothing matching an ArrayStore raise.
	env.install(t, 0x4000, &meta.MethodMeta{
		Name:     "callee",
		Size:     64,
		Handlers: []meta.HandlerEntry{{Start: 0, End: 64, Handler: 32, CatchType: uint32(b.ClassCast)}},
	})
	env.install(t, 0x5000, &meta.MethodMeta{
		Name:     "caller",
		Size:     64,
		Handlers: []meta.HandlerEntry{{Start: 0, End: 64, Handler: 48, CatchType: meta.CatchAll}},
	})
	ctx := exec.NewContext(0)
	if err := ctx.PushCompiled("caller", 0x5000+16); err != nil {
		t.Fatalf("PushCompiled caller: %v", err)
	}
	if err := ctx.PushCompiled("callee", 0x4000+16); err != nil {
		t.Fatalf("PushCompiled callee: %v", err)
	}
	ctx.Raise(uint64(exc))

	out, err := env.d.DispatchException(ctx)
	if err != nil || out.Action != exec.ActionResume || out.ResumeAddr != 0x5000+48 {
		t.Fatalf("outcome = %+v, %v", out, err)
	}
	if ctx.Depth() != 1 || ctx.Top().Name != "caller" {
		t.Fatalf("callee frame not popped: depth=%d top=%+v", ctx.Depth(), ctx.Top())
	}
}

func TestDispatchExceptionDefaultHandlerRunsOnce(t *testing.T) {
	calls := 0
	var seen heap.Oop
	env := newTestEnv(t, Options{Uncaught: func(_ *exec.Context, oop heap.Oop) {
		calls++
		seen = oop
	}})
	b := env.h.Classes().Builtins
	exc := env.allocExc(t, b.OutOfMemory)

	env.install(t, 0x4000, &meta.MethodMeta{Name: "plain", Size: 32})
	ctx := exec.NewContext(0)
	for i := 0; i < 3; i++ {
		if err := ctx.PushCompiled("plain", 0x4000+code.Addr(i)); err != nil {
			t.Fatalf("PushCompiled: %v", err)
		}
	}
	ctx.Raise(uint64(exc))

	out, err := env.d.DispatchException(ctx)
	if err != nil || out.Action != exec.ActionUnwound {
		t.Fatalf("outcome = %+v, %v", out, err)
	}
	if ctx.Depth() != 0 {
		t.Fatalf("stack not fully unwound: depth=%d", ctx.Depth())
	}
	if calls != 1 || seen != exc {
		t.Fatalf("uncaught hook: calls=%d seen=%#x", calls, uint64(seen))
	}
	if ctx.Uncaught() != uint64(exc) {
		t.Fatalf("Uncaught = %#x, want %#x", ctx.Uncaught(), uint64(exc))
	}
	if got := counterValue(t, env.ctrs, "exception.uncaught"); got != 1 {
		t.Fatalf("exception.uncaught = %d, want 1", got)
	}

	// A second escaping exception runs the default handler once more.
	if err := ctx.PushCompiled("plain", 0x4000+5); err != nil {
		t.Fatalf("PushCompiled: %v", err)
	}
	ctx.Raise(uint64(exc))
	if _, err := env.d.DispatchException(ctx); err != nil {
		t.Fatalf("second DispatchException: %v", err)
	}
	if calls != 2 {
		t.Fatalf("uncaught hook calls = %d, want 2", calls)
	}
}

func TestDispatchExceptionMissingMetadataIsFatal(t *testing.T) {
	env := newTestEnv(t, Options{})
	exc := env.allocExc(t, env.h.Classes().Builtins.NullPointer)

	ctx := exec.NewContext(0)
	if err := ctx.PushCompiled("ghost", 0x9000); err != nil {
		t.Fatalf("PushCompiled: %v", err)
	}
	ctx.Raise(uint64(exc))

	if _, err := env.d.DispatchException(ctx); !errors.Is(err, meta.ErrCorruptMetadata) {
		t.Fatalf("err = %v, want ErrCorruptMetadata", err)
	}
}

func TestDispatchExceptionRejectsNonObject(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := exec.NewContext(0)
	if err := ctx.PushCompiled("m", 0x4000); err != nil {
		t.Fatalf("PushCompiled: %v", err)
	}
	ctx.Raise(0xDEAD)
	if _, err := env.d.DispatchException(ctx); err == nil {
		t.Fatal("dispatch accepted a non-object exception")
	}
}

func TestTrapRequestRoundTrip(t *testing.T) {
	for r := ReasonNone; r < NumReasons; r++ {
		for a := ActionNone; a < NumActions; a++ {
			req := MakeTrapRequest(r, a)
			if req >= 0 {
				t.Fatalf("MakeTrapRequest(%s, %s) = %d, want negative", r, a, req)
			}
			if got := TrapRequestReason(req); got != r {
				t.Fatalf("reason(%d) = %s, want %s", req, got, r)
			}
			if got := TrapRequestAction(req); got != a {
				t.Fatalf("action(%d) = %s, want %s", req, got, a)
			}
			if !ValidTrapRequest(req) {
				t.Fatalf("ValidTrapRequest(%d) = false", req)
			}
		}
	}
	if MakeTrapRequest(ReasonNone, ActionNone) != exec.TrapReturnBarrier {
		t.Fatalf("(none, none) = %d, want the return-barrier request %d",
			MakeTrapRequest(ReasonNone, ActionNone), exec.TrapReturnBarrier)
	}
	for _, req := range []int64{0, 1, 42, ^int64(1 << 40)} {
		if ValidTrapRequest(req) {
			t.Fatalf("ValidTrapRequest(%d) = true", req)
		}
	}
}

func TestDispatchDeoptBuildsRecord(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.install(t, 0x4000, &meta.MethodMeta{
		Name:      "hot",
		Size:      64,
		CallSites: []meta.CallSite{{RetOff: 40, BCI: 7, Reexecute: true}},
	})
	ctx := exec.NewContext(0)
	if err := ctx.PushCompiled("hot", 0x4000+40); err != nil {
		t.Fatalf("PushCompiled: %v", err)
	}

	req := MakeTrapRequest(ReasonClassCheck, ActionReinterpret)
	rec, err := env.d.DispatchDeopt(ctx, req)
	if err != nil {
		t.Fatalf("DispatchDeopt: %v", err)
	}
	if rec.Method != "hot" || rec.Addr != 0x4000+40 || rec.BCI != 7 || !rec.Reexecute || rec.TrapRequest != req {
		t.Fatalf("record = %+v", rec)
	}
	if ctx.Depth() != 0 {
		t.Fatalf("trapped frame not discarded: depth=%d", ctx.Depth())
	}
	if got := counterValue(t, env.ctrs, "uncommon_trap.class_check"); got != 1 {
		t.Fatalf("uncommon_trap.class_check = %d, want 1", got)
	}
}

func TestDispatchDeoptRequiresCallSite(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.install(t, 0x4000, &meta.MethodMeta{Name: "hot", Size: 64})
	ctx := exec.NewContext(0)
	if err := ctx.PushCompiled("hot", 0x4000+8); err != nil {
		t.Fatalf("PushCompiled: %v", err)
	}
	req := MakeTrapRequest(ReasonNullCheck, ActionReinterpret)
	if _, err := env.d.DispatchDeopt(ctx, req); !errors.Is(err, meta.ErrCorruptMetadata) {
		t.Fatalf("err = %v, want ErrCorruptMetadata", err)
	}
}

func TestDispatchDeoptRejectsMalformedRequest(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := exec.NewContext(0)
	if _, err := env.d.DispatchDeopt(ctx, 3); err == nil {
		t.Fatal("malformed trap request accepted")
	}
}

func TestDispatchDeoptEmptyStack(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := exec.NewContext(0)
	req := MakeTrapRequest(ReasonUnreached, ActionMakeNotEntrant)
	if _, err := env.d.DispatchDeopt(ctx, req); err == nil {
		t.Fatal("deopt with no compiled frame accepted")
	}
}

func TestDeoptimizeCallerFrameMarking(t *testing.T) {
	ctx := exec.NewContext(0)
	if err := ctx.PushCompiled("hot", 0x4000); err != nil {
		t.Fatalf("PushCompiled: %v", err)
	}
	if DeoptimizeCallerFrame(ctx, false) {
		t.Fatal("doit=false marked a frame")
	}
	if IsDeoptimizedCallerFrame(ctx) {
		t.Fatal("frame marked before the request")
	}
	if !DeoptimizeCallerFrame(ctx, true) {
		t.Fatal("doit=true found no compiled frame")
	}
	if !IsDeoptimizedCallerFrame(ctx) {
		t.Fatal("mark not observable after the request")
	}
}
