// Package helpers implements the native bodies behind the generated stubs:
// slow-path allocation, monitor operations, checked array copy, finalizer
// registration, and lifecycle notifications. Every body follows the same
// protocol: poll the safepoint before touching the heap, report results
// through the return slots, and report failures by raising a managed
// exception on the context, never a partial result.
package helpers

import (
	"errors"
	"fmt"

	"kiln/internal/counters"
	"kiln/internal/exec"
	"kiln/internal/heap"
	"kiln/internal/safepoint"
	"kiln/internal/trace"
)

// Preallocated holds the exception instances the helpers raise. They are
// allocated once at construction so that raising never allocates; an
// out-of-memory condition can still be reported.
type Preallocated struct {
	NullPointer         heap.Oop
	NegativeArraySize   heap.Oop
	IndexOutOfBounds    heap.Oop
	ArrayStore          heap.Oop
	ClassCast           heap.Oop
	IllegalMonitorState heap.Oop
	OutOfMemory         heap.Oop
}

// Helpers binds the helper bodies to their runtime collaborators.
type Helpers struct {
	heap *heap.Heap
	sp   *safepoint.Coordinator
	tr   trace.Tracer

	// Pre is the preallocated exception set, exported for dispatch tests
	// and crash reporting.
	Pre Preallocated

	lockCtr   *counters.Counter
	elidedCtr *counters.Counter
}

// New allocates the preallocated exceptions and the monitor counters. The
// heap, coordinator, and registry must be non-nil.
func New(h *heap.Heap, sp *safepoint.Coordinator, reg *counters.Registry, tr trace.Tracer) (*Helpers, error) {
	if tr == nil {
		tr = trace.Nop
	}
	hs := &Helpers{
		heap:      h,
		sp:        sp,
		tr:        tr,
		lockCtr:   reg.NewCounter("complete_monitor_enter", counters.TagLock),
		elidedCtr: reg.NewCounter("monitor_enter.uncontended", counters.TagEliminatedLock),
	}
	b := h.Classes().Builtins
	for _, pre := range []struct {
		klass heap.KlassID
		slot  *heap.Oop
	}{
		{b.NullPointer, &hs.Pre.NullPointer},
		{b.NegativeArraySize, &hs.Pre.NegativeArraySize},
		{b.IndexOutOfBounds, &hs.Pre.IndexOutOfBounds},
		{b.ArrayStore, &hs.Pre.ArrayStore},
		{b.ClassCast, &hs.Pre.ClassCast},
		{b.IllegalMonitorState, &hs.Pre.IllegalMonitorState},
		{b.OutOfMemory, &hs.Pre.OutOfMemory},
	} {
		oop, err := h.AllocInstance(pre.klass)
		if err != nil {
			return nil, fmt.Errorf("helpers: preallocate %s: %w", h.Classes().Name(pre.klass), err)
		}
		*pre.slot = oop
	}
	return hs, nil
}

// RegisterAll registers every helper body in the target table under its
// canonical name. Stub generation resolves targets by these names.
func (hs *Helpers) RegisterAll(tt *exec.TargetTable) error {
	regs := []struct {
		name           string
		arity, results int
		fn             exec.TargetFunc
	}{
		{"new_instance", 1, 1, hs.NewInstance},
		{"new_array", 2, 1, hs.NewArray},
		{"new_array_nozero", 2, 1, hs.NewArrayNoZero},
		{"multianewarray2", 3, 1, hs.MultiNewArray2},
		{"multianewarray3", 4, 1, hs.MultiNewArray3},
		{"multianewarray4", 5, 1, hs.MultiNewArray4},
		{"multianewarray5", 6, 1, hs.MultiNewArray5},
		{"multianewarrayN", 2, 1, hs.MultiNewArrayN},
		{"complete_monitor_enter", 2, 0, hs.CompleteMonitorEnter},
		{"complete_monitor_exit", 2, 0, hs.CompleteMonitorExit},
		{"monitor_notify", 1, 0, hs.MonitorNotify},
		{"monitor_notifyAll", 1, 0, hs.MonitorNotifyAll},
		{"slow_arraycopy", 5, 0, hs.SlowArrayCopy},
		{"register_finalizer", 1, 0, hs.RegisterFinalizer},
		{"notify_vthread", 2, 0, hs.NotifyVThread},
		{"osr_end", 1, 0, hs.OSREnd},
		{"athrow", 1, 0, hs.Throw},
		{"rethrow", 2, 2, hs.Rethrow},
	}
	for _, r := range regs {
		if _, err := tt.Register(r.name, r.arity, r.results, r.fn); err != nil {
			return fmt.Errorf("helpers: register %s: %w", r.name, err)
		}
	}
	return nil
}

// raise maps a heap failure to its managed exception and sets it pending.
func (hs *Helpers) raise(ctx *exec.Context, err error) {
	var oop heap.Oop
	switch {
	case errors.Is(err, heap.ErrNegativeSize):
		oop = hs.Pre.NegativeArraySize
	case errors.Is(err, heap.ErrExhausted):
		oop = hs.Pre.OutOfMemory
	case errors.Is(err, heap.ErrBounds):
		oop = hs.Pre.IndexOutOfBounds
	case errors.Is(err, heap.ErrStoreMismatch):
		oop = hs.Pre.ArrayStore
	case errors.Is(err, heap.ErrNotOwner):
		oop = hs.Pre.IllegalMonitorState
	default:
		// Wild references and class mismatches from compiled code surface
		// as null-pointer conditions.
		oop = hs.Pre.NullPointer
	}
	trace.Point(hs.tr, trace.ScopeCall, "helper:raise", err.Error(), uint64(oop))
	ctx.Raise(uint64(oop))
}

func (hs *Helpers) raiseOop(ctx *exec.Context, oop heap.Oop, why string) {
	trace.Point(hs.tr, trace.ScopeCall, "helper:raise", why, uint64(oop))
	ctx.Raise(uint64(oop))
}
