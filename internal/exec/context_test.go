package exec

import (
	"errors"
	"strings"
	"testing"

	"kiln/internal/code"
)

func TestContextTokensDistinct(t *testing.T) {
	a := NewContext(0)
	b := NewContext(0)
	if a.Token() == 0 || b.Token() == 0 {
		t.Fatalf("zero token: a=%d b=%d", a.Token(), b.Token())
	}
	if a.Token() == b.Token() {
		t.Fatalf("contexts share token %d", a.Token())
	}
}

func TestRaiseAndClear(t *testing.T) {
	ctx := NewContext(0)
	if ctx.HasPending() {
		t.Fatal("fresh context has a pending exception")
	}
	ctx.Raise(0xBEEF)
	if !ctx.HasPending() || ctx.Pending() != 0xBEEF {
		t.Fatalf("pending = %#x, want 0xBEEF", ctx.Pending())
	}
	got := ctx.ClearPending()
	if got != 0xBEEF {
		t.Fatalf("ClearPending = %#x, want 0xBEEF", got)
	}
	if ctx.HasPending() {
		t.Fatal("pending survived ClearPending")
	}
}

func TestRaiseZeroPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Raise(0) did not panic")
		}
	}()
	NewContext(0).Raise(0)
}

func TestDoubleRaisePanics(t *testing.T) {
	ctx := NewContext(0)
	ctx.Raise(1)
	defer func() {
		if recover() == nil {
			t.Fatal("second Raise did not panic")
		}
	}()
	ctx.Raise(2)
}

func TestRecordUncaught(t *testing.T) {
	ctx := NewContext(0)
	if ctx.Uncaught() != 0 {
		t.Fatalf("fresh uncaught = %#x", ctx.Uncaught())
	}
	ctx.RecordUncaught(0xF00D)
	if ctx.Uncaught() != 0xF00D {
		t.Fatalf("uncaught = %#x, want 0xF00D", ctx.Uncaught())
	}
}

func TestPushPopCompiled(t *testing.T) {
	ctx := NewContext(0)
	if err := ctx.PushCompiled("hot", code.NilAddr); err == nil {
		t.Fatal("PushCompiled accepted NilAddr")
	}
	if err := ctx.PushCompiled("hot", 0x500); err != nil {
		t.Fatalf("PushCompiled: %v", err)
	}
	if ctx.Depth() != 1 {
		t.Fatalf("depth = %d, want 1", ctx.Depth())
	}
	top := ctx.Top()
	if top == nil || top.Kind != FrameCompiled || top.Name != "hot" || top.Addr != 0x500 {
		t.Fatalf("top = %+v", top)
	}
	f, ok := ctx.PopFrame()
	if !ok || f.Name != "hot" {
		t.Fatalf("PopFrame = %+v, %v", f, ok)
	}
	if _, ok := ctx.PopFrame(); ok {
		t.Fatal("PopFrame on empty stack reported ok")
	}
}

func TestStackOverflowFault(t *testing.T) {
	ctx := NewContext(2)
	if err := ctx.PushCompiled("a", 0x100); err != nil {
		t.Fatalf("push a: %v", err)
	}
	if err := ctx.PushCompiled("b", 0x200); err != nil {
		t.Fatalf("push b: %v", err)
	}
	err := ctx.PushCompiled("c", 0x300)
	if err == nil {
		t.Fatal("third push succeeded past the frame limit")
	}
	var fault *Fault
	if !errors.As(err, &fault) || fault.Code != FaultStackOverflow {
		t.Fatalf("err = %v, want %v", err, FaultStackOverflow)
	}
}

func TestDeoptimizeCallerSkipsBlobFrames(t *testing.T) {
	ctx := NewContext(0)
	if ctx.DeoptimizeCallerFrame() {
		t.Fatal("deoptimized with no compiled frame on the stack")
	}
	if err := ctx.PushCompiled("hot", 0x500); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := ctx.push(Frame{Kind: FrameBlob, Name: "stub_a"}); err != nil {
		t.Fatalf("push blob: %v", err)
	}
	if err := ctx.push(Frame{Kind: FrameBlob, Name: "stub_b"}); err != nil {
		t.Fatalf("push blob: %v", err)
	}
	if ctx.IsDeoptimizedCallerFrame() {
		t.Fatal("caller reported deoptimized before the mark")
	}
	if !ctx.DeoptimizeCallerFrame() {
		t.Fatal("DeoptimizeCallerFrame found no compiled frame")
	}
	if !ctx.IsDeoptimizedCallerFrame() {
		t.Fatal("mark not visible through blob frames")
	}
	if ctx.FrameAt(0).Kind != FrameCompiled || !ctx.FrameAt(0).DeoptPending {
		t.Fatalf("compiled frame not marked: %+v", ctx.FrameAt(0))
	}
	for i := 1; i < ctx.Depth(); i++ {
		if ctx.FrameAt(i).DeoptPending {
			t.Fatalf("blob frame %d marked", i)
		}
	}
}

func TestFaultBacktraceTopFirst(t *testing.T) {
	ctx := NewContext(0)
	if err := ctx.PushCompiled("outer", 0x100); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := ctx.PushCompiled("inner", 0x200); err != nil {
		t.Fatalf("push: %v", err)
	}
	fault := ctx.faultf(FaultHalt, 0x200, "boom")
	if len(fault.Backtrace) != 2 {
		t.Fatalf("backtrace depth = %d, want 2", len(fault.Backtrace))
	}
	if fault.Backtrace[0].Name != "inner" || fault.Backtrace[1].Name != "outer" {
		t.Fatalf("backtrace order: %+v", fault.Backtrace)
	}
	text := fault.Format()
	if !strings.Contains(text, "EX2011") || !strings.Contains(text, "at inner") {
		t.Fatalf("Format missing pieces:\n%s", text)
	}
	if strings.Index(text, "inner") > strings.Index(text, "outer") {
		t.Fatalf("Format not top-first:\n%s", text)
	}
}
