// Package exec runs installed trampoline blobs. A Context is the mutable
// machine: one register file, one frame stack, one pending-exception slot.
// The Interp walks blob instructions, calls registered native targets, and
// hands exceptional control flow to the wired Dispatcher.
package exec

import (
	"fmt"
	"sync/atomic"

	"kiln/internal/abi"
	"kiln/internal/code"
)

// FrameKind distinguishes synthetic compiled-method frames from trampoline
// blob frames.
type FrameKind uint8

const (
	// FrameCompiled stands in for a compiled method's activation. The
	// executor never runs these; they anchor return addresses, handler
	// lookups and deopt marks.
	FrameCompiled FrameKind = iota
	// FrameBlob is a live trampoline activation.
	FrameBlob
)

// Frame is one activation on a context's stack.
type Frame struct {
	Kind FrameKind
	Name string

	// Blob and PC drive execution of FrameBlob frames.
	Blob *code.Blob
	PC   int

	// Addr is a FrameCompiled frame's current position: the return address
	// of the call it is suspended at.
	Addr code.Addr

	Slots   []uint64
	RetAddr code.Addr

	// DeoptPending marks a compiled frame whose code has been invalidated;
	// the next return into it diverts to the deopt entry.
	DeoptPending bool
}

// DeoptRecord captures why and where a compiled frame was abandoned.
type DeoptRecord struct {
	Method      string
	Addr        code.Addr
	BCI         int32
	Reexecute   bool
	TrapRequest int64
}

var contextTokens atomic.Uint64

// Context is one execution context. Contexts are not goroutine-safe; each
// belongs to the single goroutine driving it, matching one mutator thread.
type Context struct {
	Regs [abi.NumRegisters]uint64

	token     uint64
	frames    []Frame
	maxFrames int
	inArgs    []uint64

	pending  uint64
	uncaught uint64
	deopt    *DeoptRecord
}

// NewContext creates a context with the given frame limit. maxFrames <= 0
// selects a default deep enough for any trampoline nesting.
func NewContext(maxFrames int) *Context {
	if maxFrames <= 0 {
		maxFrames = 256
	}
	return &Context{
		token:     contextTokens.Add(1),
		maxFrames: maxFrames,
	}
}

// Token returns the context's identity value, the one trampolines load into
// the ctx register before native calls.
func (ctx *Context) Token() uint64 { return ctx.token }

// Raise sets the pending exception. Raising a nil reference or raising over
// an existing pending exception is a helper bug, not a guest condition.
func (ctx *Context) Raise(oop uint64) {
	if oop == 0 {
		panic("exec: Raise(0)")
	}
	if ctx.pending != 0 {
		panic(fmt.Sprintf("exec: Raise(%#x) over pending %#x", oop, ctx.pending))
	}
	ctx.pending = oop
}

// Pending returns the pending exception, 0 if none.
func (ctx *Context) Pending() uint64 { return ctx.pending }

// HasPending reports whether an exception is pending.
func (ctx *Context) HasPending() bool { return ctx.pending != 0 }

// ClearPending removes and returns the pending exception.
func (ctx *Context) ClearPending() uint64 {
	oop := ctx.pending
	ctx.pending = 0
	return oop
}

// RecordUncaught notes an exception that unwound past every frame.
func (ctx *Context) RecordUncaught(oop uint64) { ctx.uncaught = oop }

// Uncaught returns the last exception that unwound the whole stack.
func (ctx *Context) Uncaught() uint64 { return ctx.uncaught }

// SetDeopt records the most recent deoptimization.
func (ctx *Context) SetDeopt(rec *DeoptRecord) { ctx.deopt = rec }

// LastDeopt returns the most recent deoptimization record.
func (ctx *Context) LastDeopt() *DeoptRecord { return ctx.deopt }

// Depth returns the frame count.
func (ctx *Context) Depth() int { return len(ctx.frames) }

// Top returns the top frame, nil when the stack is empty.
func (ctx *Context) Top() *Frame {
	if len(ctx.frames) == 0 {
		return nil
	}
	return &ctx.frames[len(ctx.frames)-1]
}

// FrameAt returns the i-th frame, 0 being the bottom.
func (ctx *Context) FrameAt(i int) *Frame { return &ctx.frames[i] }

// PushCompiled pushes a synthetic compiled-method frame suspended at addr.
func (ctx *Context) PushCompiled(name string, addr code.Addr) error {
	if addr == code.NilAddr {
		return fmt.Errorf("exec: compiled frame %q with nil address", name)
	}
	return ctx.push(Frame{Kind: FrameCompiled, Name: name, Addr: addr})
}

// PopFrame removes and returns the top frame.
func (ctx *Context) PopFrame() (Frame, bool) {
	if len(ctx.frames) == 0 {
		return Frame{}, false
	}
	f := ctx.frames[len(ctx.frames)-1]
	ctx.frames = ctx.frames[:len(ctx.frames)-1]
	return f, true
}

func (ctx *Context) push(f Frame) error {
	if len(ctx.frames) >= ctx.maxFrames {
		return ctx.faultf(FaultStackOverflow, f.Addr, "frame limit %d exceeded", ctx.maxFrames)
	}
	ctx.frames = append(ctx.frames, f)
	return nil
}

// callerCompiled returns the innermost compiled frame, skipping trampoline
// frames, which is the caller a runtime helper acts on behalf of.
func (ctx *Context) callerCompiled() *Frame {
	for i := len(ctx.frames) - 1; i >= 0; i-- {
		if ctx.frames[i].Kind == FrameCompiled {
			return &ctx.frames[i]
		}
	}
	return nil
}

// DeoptimizeCallerFrame marks the compiled frame a helper runs on behalf of,
// so the return into it diverts to the deopt entry. It reports whether a
// compiled frame was found.
func (ctx *Context) DeoptimizeCallerFrame() bool {
	f := ctx.callerCompiled()
	if f == nil {
		return false
	}
	f.DeoptPending = true
	return true
}

// IsDeoptimizedCallerFrame reports whether the helper's compiled caller is
// already marked.
func (ctx *Context) IsDeoptimizedCallerFrame() bool {
	f := ctx.callerCompiled()
	return f != nil && f.DeoptPending
}
