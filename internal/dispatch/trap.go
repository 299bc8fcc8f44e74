package dispatch

import "fmt"

// Reason classifies why compiled code gave up on one of its assumptions.
type Reason uint8

const (
	// ReasonNone is the synthetic reason used by the return barrier, where
	// the frame was invalidated from outside rather than by its own trap.
	ReasonNone Reason = iota
	// ReasonNullCheck is an implicit null check that fired.
	ReasonNullCheck
	// ReasonRangeCheck is an array index outside its proven bounds.
	ReasonRangeCheck
	// ReasonClassCheck is a receiver class the compiled code did not expect.
	ReasonClassCheck
	// ReasonArrayCheck is an array store whose element class surprised the
	// compiled covariance proof.
	ReasonArrayCheck
	// ReasonUnreached is a path the profile claimed was never taken.
	ReasonUnreached
	// ReasonUnloaded is a class or field that was not resolved at compile
	// time.
	ReasonUnloaded
	// ReasonUninitialized is a class whose initializer has not run yet.
	ReasonUninitialized
	// ReasonIntrinsic is an intrinsic bailing out to the general case.
	ReasonIntrinsic
	// ReasonDiv0Check is an integer division by zero.
	ReasonDiv0Check
	// ReasonConstraint is a miscellaneous invariant the optimizer leaned on.
	ReasonConstraint
	// ReasonLoopLimitCheck is a loop trip count overflowing its analysis.
	ReasonLoopLimitCheck

	// NumReasons bounds the reason space; per-reason counters index by it.
	NumReasons
)

var reasonNames = [NumReasons]string{
	ReasonNone:           "none",
	ReasonNullCheck:      "null_check",
	ReasonRangeCheck:     "range_check",
	ReasonClassCheck:     "class_check",
	ReasonArrayCheck:     "array_check",
	ReasonUnreached:      "unreached",
	ReasonUnloaded:       "unloaded",
	ReasonUninitialized:  "uninitialized",
	ReasonIntrinsic:      "intrinsic",
	ReasonDiv0Check:      "div0_check",
	ReasonConstraint:     "constraint",
	ReasonLoopLimitCheck: "loop_limit_check",
}

func (r Reason) String() string {
	if r < NumReasons {
		return reasonNames[r]
	}
	return fmt.Sprintf("reason?%d", uint8(r))
}

// Action is what the trap asks the compilation policy to do with the code
// that trapped.
type Action uint8

const (
	// ActionNone leaves the code alone; the trap was informational.
	ActionNone Action = iota
	// ActionMaybeRecompile lets the policy decide after profiling.
	ActionMaybeRecompile
	// ActionReinterpret resumes in the lower tier without touching the code.
	ActionReinterpret
	// ActionMakeNotEntrant blocks new activations of the code.
	ActionMakeNotEntrant
	// ActionMakeNotCompilable gives up on compiling the method again.
	ActionMakeNotCompilable

	// NumActions bounds the action space.
	NumActions
)

var actionNames = [NumActions]string{
	ActionNone:              "none",
	ActionMaybeRecompile:    "maybe_recompile",
	ActionReinterpret:       "reinterpret",
	ActionMakeNotEntrant:    "make_not_entrant",
	ActionMakeNotCompilable: "make_not_compilable",
}

func (a Action) String() string {
	if a < NumActions {
		return actionNames[a]
	}
	return fmt.Sprintf("action?%d", uint8(a))
}

// A trap request is the packed word compiled code materializes before
// jumping to the uncommon-trap blob: the bitwise complement of
// (reason << 3 | action). Every valid request is negative, which keeps the
// non-negative space free and makes the return barrier's -1 decode to
// (none, none).
const (
	actionBits  = 3
	reasonBits  = 5
	actionShift = 0
	reasonShift = actionShift + actionBits
)

// MakeTrapRequest packs reason and action into a trap request.
func MakeTrapRequest(r Reason, a Action) int64 {
	return ^int64(uint64(r)<<reasonShift | uint64(a)<<actionShift)
}

// TrapRequestReason unpacks the reason field.
func TrapRequestReason(req int64) Reason {
	return Reason((^req >> reasonShift) & (1<<reasonBits - 1))
}

// TrapRequestAction unpacks the action field.
func TrapRequestAction(req int64) Action {
	return Action((^req >> actionShift) & (1<<actionBits - 1))
}

// ValidTrapRequest reports whether req is a well-formed packed request.
func ValidTrapRequest(req int64) bool {
	r, a := TrapRequestReason(req), TrapRequestAction(req)
	return r < NumReasons && a < NumActions && MakeTrapRequest(r, a) == req
}
