package helpers

import (
	"kiln/internal/exec"
	"kiln/internal/trace"
)

// Throw is (exception) -> (): set the exception pending. The trampoline's
// pending check then forwards to the exception blob. Throwing a nil
// reference throws the null-pointer exception instead, as the language
// requires.
func (hs *Helpers) Throw(ctx *exec.Context, args []uint64) (uint64, uint64) {
	oop := args[0]
	if oop == 0 {
		oop = uint64(hs.Pre.NullPointer)
	}
	trace.Point(hs.tr, trace.ScopeCall, "helper:throw", "", oop)
	ctx.Raise(oop)
	return 0, 0
}

// Rethrow is (exception, return_address) -> (exception, return_address):
// re-enter exception dispatch for an exception already in flight. The saved
// return address passes through untouched so the dispatcher searches the
// handler table of the original frame.
func (hs *Helpers) Rethrow(ctx *exec.Context, args []uint64) (uint64, uint64) {
	oop := args[0]
	if oop == 0 {
		oop = uint64(hs.Pre.NullPointer)
	}
	trace.Point(hs.tr, trace.ScopeCall, "helper:rethrow", "", oop)
	ctx.Raise(oop)
	return oop, args[1]
}

// NotifyVThread is (vthread, start) -> (): virtual-execution-context
// lifecycle notification. Observability only; no runtime state changes.
func (hs *Helpers) NotifyVThread(_ *exec.Context, args []uint64) (uint64, uint64) {
	name := "vthread:end"
	if args[1] != 0 {
		name = "vthread:start"
	}
	trace.Point(hs.tr, trace.ScopeCall, name, "", args[0])
	return 0, 0
}

// OSREnd is (osr_buf) -> (): the on-stack-replacement migration finished
// and the buffer can be dropped.
func (hs *Helpers) OSREnd(_ *exec.Context, args []uint64) (uint64, uint64) {
	trace.Point(hs.tr, trace.ScopeCall, "osr:end", "", args[0])
	return 0, 0
}
