package exec

import "kiln/internal/code"

// Action is a dispatcher's verdict on exceptional control flow.
type Action uint8

const (
	// ActionResume transfers to a handler in a surviving compiled frame.
	ActionResume Action = iota
	// ActionUnwound means the exception escaped every frame of the call.
	ActionUnwound
)

// Outcome describes where control goes after exception dispatch. For
// ActionResume the dispatcher has already popped abandoned frames and moved
// the handler frame's position to ResumeAddr.
type Outcome struct {
	Action     Action
	ResumeAddr code.Addr
}

// Dispatcher decides what a pending exception or a deoptimization request
// does to the frame stack. The concrete implementation lives above this
// package; the executor only needs the verdicts.
type Dispatcher interface {
	// DispatchException consumes ctx's pending exception and unwinds. An
	// error means metadata was inconsistent and execution must not continue.
	DispatchException(ctx *Context) (Outcome, error)

	// DispatchDeopt abandons the helper's compiled caller frame and builds
	// the record the lower tier resumes from.
	DispatchDeopt(ctx *Context, trapRequest int64) (*DeoptRecord, error)
}
