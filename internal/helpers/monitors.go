package helpers

import (
	"kiln/internal/exec"
	"kiln/internal/heap"
)

// CompleteMonitorEnter is (object, lock_slot) -> (): the monitor acquisition
// slow path. The lock slot exists for signature fidelity with the fast path;
// the body keys the monitor off the object alone.
func (hs *Helpers) CompleteMonitorEnter(ctx *exec.Context, args []uint64) (uint64, uint64) {
	mon, ok := hs.monitorArg(ctx, args[0])
	if !ok {
		return 0, 0
	}
	// Cooperate before parking: a stopped world must not wait on us.
	hs.sp.Poll()
	contended := mon.Enter(ctx.Token())
	hs.lockCtr.Inc()
	if !contended {
		// The fast path should have taken this acquisition.
		hs.elidedCtr.Inc()
	}
	return 0, 0
}

// CompleteMonitorExit is (object, lock_slot) -> ().
func (hs *Helpers) CompleteMonitorExit(ctx *exec.Context, args []uint64) (uint64, uint64) {
	mon, ok := hs.monitorArg(ctx, args[0])
	if !ok {
		return 0, 0
	}
	if err := mon.Exit(ctx.Token()); err != nil {
		hs.raise(ctx, err)
	}
	return 0, 0
}

// MonitorNotify is (object) -> ().
func (hs *Helpers) MonitorNotify(ctx *exec.Context, args []uint64) (uint64, uint64) {
	mon, ok := hs.monitorArg(ctx, args[0])
	if !ok {
		return 0, 0
	}
	if err := mon.Notify(ctx.Token()); err != nil {
		hs.raise(ctx, err)
	}
	return 0, 0
}

// MonitorNotifyAll is (object) -> ().
func (hs *Helpers) MonitorNotifyAll(ctx *exec.Context, args []uint64) (uint64, uint64) {
	mon, ok := hs.monitorArg(ctx, args[0])
	if !ok {
		return 0, 0
	}
	if err := mon.NotifyAll(ctx.Token()); err != nil {
		hs.raise(ctx, err)
	}
	return 0, 0
}

func (hs *Helpers) monitorArg(ctx *exec.Context, raw uint64) (*heap.Monitor, bool) {
	if raw == 0 {
		hs.raiseOop(ctx, hs.Pre.NullPointer, "monitor op on nil object")
		return nil, false
	}
	mon, err := hs.heap.MonitorOf(heap.Oop(raw))
	if err != nil {
		hs.raise(ctx, err)
		return nil, false
	}
	return mon, true
}
