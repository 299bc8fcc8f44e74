package helpers

import (
	"kiln/internal/exec"
	"kiln/internal/heap"
)

// NewInstance is (klass) -> (oop): slow-path instance allocation.
func (hs *Helpers) NewInstance(ctx *exec.Context, args []uint64) (uint64, uint64) {
	hs.sp.Poll()
	oop, err := hs.heap.AllocInstance(heap.KlassID(args[0]))
	if err != nil {
		hs.raiseAndDeopt(ctx, err)
		return 0, 0
	}
	return uint64(oop), 0
}

// NewArray is (klass, len) -> (oop): slow-path array allocation.
func (hs *Helpers) NewArray(ctx *exec.Context, args []uint64) (uint64, uint64) {
	hs.sp.Poll()
	oop, err := hs.heap.AllocArray(heap.KlassID(args[0]), int(int64(args[1])))
	if err != nil {
		hs.raiseAndDeopt(ctx, err)
		return 0, 0
	}
	return uint64(oop), 0
}

// NewArrayNoZero is NewArray without the clearing pass. Compiled code only
// selects it when it proves every element is overwritten before any read.
func (hs *Helpers) NewArrayNoZero(ctx *exec.Context, args []uint64) (uint64, uint64) {
	hs.sp.Poll()
	oop, err := hs.heap.AllocArrayNoZero(heap.KlassID(args[0]), int(int64(args[1])))
	if err != nil {
		hs.raiseAndDeopt(ctx, err)
		return 0, 0
	}
	return uint64(oop), 0
}

// raiseAndDeopt raises the failure and marks the compiled caller for
// deoptimization. An allocation site that failed once re-executes in the
// lower tier, where the failure surfaces at the exact source position.
func (hs *Helpers) raiseAndDeopt(ctx *exec.Context, err error) {
	hs.raise(ctx, err)
	ctx.DeoptimizeCallerFrame()
}

// MultiNewArray2 is (klass, len1, len2) -> (oop).
func (hs *Helpers) MultiNewArray2(ctx *exec.Context, args []uint64) (uint64, uint64) {
	return hs.multiNew(ctx, args)
}

// MultiNewArray3 is (klass, len1..len3) -> (oop).
func (hs *Helpers) MultiNewArray3(ctx *exec.Context, args []uint64) (uint64, uint64) {
	return hs.multiNew(ctx, args)
}

// MultiNewArray4 is (klass, len1..len4) -> (oop).
func (hs *Helpers) MultiNewArray4(ctx *exec.Context, args []uint64) (uint64, uint64) {
	return hs.multiNew(ctx, args)
}

// MultiNewArray5 is (klass, len1..len5) -> (oop).
func (hs *Helpers) MultiNewArray5(ctx *exec.Context, args []uint64) (uint64, uint64) {
	return hs.multiNew(ctx, args)
}

// MultiNewArrayN is (klass, dims_array) -> (oop): the arbitrary-rank form
// with the dimension sizes in a value array.
func (hs *Helpers) MultiNewArrayN(ctx *exec.Context, args []uint64) (uint64, uint64) {
	klass := heap.KlassID(args[0])
	dims := heap.Oop(args[1])
	if dims == 0 {
		hs.raiseOop(ctx, hs.Pre.NullPointer, "multianewarrayN: nil dims")
		return 0, 0
	}
	rank, err := hs.heap.ArrayLen(dims)
	if err != nil {
		hs.raise(ctx, err)
		return 0, 0
	}
	if rank < 1 {
		hs.raiseOop(ctx, hs.Pre.IndexOutOfBounds, "multianewarrayN: empty dims")
		return 0, 0
	}
	lens := make([]int64, rank)
	for i := 0; i < rank; i++ {
		v, err := hs.heap.LoadElem(dims, i)
		if err != nil {
			hs.raise(ctx, err)
			return 0, 0
		}
		lens[i] = int64(v)
	}
	return hs.allocLevels(ctx, klass, lens)
}

func (hs *Helpers) multiNew(ctx *exec.Context, args []uint64) (uint64, uint64) {
	lens := make([]int64, len(args)-1)
	for i := range lens {
		lens[i] = int64(args[i+1])
	}
	return hs.allocLevels(ctx, heap.KlassID(args[0]), lens)
}

// allocLevels builds the nested arrays outermost first. Every length is
// validated before the first allocation, so a negative length at any level
// leaves nothing behind.
func (hs *Helpers) allocLevels(ctx *exec.Context, klass heap.KlassID, lens []int64) (uint64, uint64) {
	for _, n := range lens {
		if n < 0 {
			hs.raiseOop(ctx, hs.Pre.NegativeArraySize, "multianewarray: negative length")
			return 0, 0
		}
	}
	hs.sp.Poll()
	oop, err := hs.buildLevel(klass, lens)
	if err != nil {
		hs.raise(ctx, err)
		return 0, 0
	}
	return uint64(oop), 0
}

func (hs *Helpers) buildLevel(klass heap.KlassID, lens []int64) (heap.Oop, error) {
	oop, err := hs.heap.AllocArray(klass, int(lens[0]))
	if err != nil {
		return 0, err
	}
	if len(lens) == 1 {
		return oop, nil
	}
	k, ok := hs.heap.Classes().Get(klass)
	if !ok {
		return 0, heap.ErrBadKlass
	}
	for i := 0; i < int(lens[0]); i++ {
		sub, err := hs.buildLevel(k.Elem, lens[1:])
		if err != nil {
			return 0, err
		}
		if err := hs.heap.StoreElem(oop, i, uint64(sub)); err != nil {
			return 0, err
		}
	}
	return oop, nil
}

// RegisterFinalizer is (object) -> (): queue the object for finalization.
func (hs *Helpers) RegisterFinalizer(ctx *exec.Context, args []uint64) (uint64, uint64) {
	if args[0] == 0 {
		hs.raiseOop(ctx, hs.Pre.NullPointer, "register_finalizer: nil object")
		return 0, 0
	}
	if err := hs.heap.RegisterFinalizer(heap.Oop(args[0])); err != nil {
		hs.raise(ctx, err)
	}
	return 0, 0
}
