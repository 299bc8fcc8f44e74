package helpers

import (
	"errors"

	"kiln/internal/exec"
	"kiln/internal/heap"
)

// SlowArrayCopy is (src, src_pos, dst, dst_pos, length) -> (): the fully
// checked element-by-element copy. Bounds are validated before the first
// element moves; a store mismatch raises mid-copy and leaves the elements
// already copied in place.
func (hs *Helpers) SlowArrayCopy(ctx *exec.Context, args []uint64) (uint64, uint64) {
	src, dst := heap.Oop(args[0]), heap.Oop(args[2])
	srcPos, dstPos, length := int64(args[1]), int64(args[3]), int64(args[4])

	if src == 0 || dst == 0 {
		hs.raiseOop(ctx, hs.Pre.NullPointer, "slow_arraycopy: nil array")
		return 0, 0
	}
	srcObj, err := hs.heap.Get(src)
	if err != nil {
		hs.raise(ctx, err)
		return 0, 0
	}
	dstObj, err := hs.heap.Get(dst)
	if err != nil {
		hs.raise(ctx, err)
		return 0, 0
	}
	if srcObj.Kind != heap.ObjArray || dstObj.Kind != heap.ObjArray {
		hs.raiseOop(ctx, hs.Pre.ArrayStore, "slow_arraycopy: not an array")
		return 0, 0
	}
	srcK, _ := hs.heap.Classes().Get(srcObj.Klass)
	dstK, _ := hs.heap.Classes().Get(dstObj.Klass)
	if (srcK.Kind == heap.KindOopArray) != (dstK.Kind == heap.KindOopArray) {
		hs.raiseOop(ctx, hs.Pre.ArrayStore, "slow_arraycopy: incompatible array kinds")
		return 0, 0
	}

	if srcPos < 0 || dstPos < 0 || length < 0 ||
		srcPos+length > int64(srcObj.Len()) || dstPos+length > int64(dstObj.Len()) {
		hs.raiseOop(ctx, hs.Pre.IndexOutOfBounds, "slow_arraycopy: range")
		return 0, 0
	}

	if src == dst {
		// Overlap-safe: stage through a temporary. Same array means the
		// element classes match, so no store can fail.
		tmp := make([]uint64, length)
		for i := int64(0); i < length; i++ {
			v, err := hs.heap.LoadElem(src, int(srcPos+i))
			if err != nil {
				hs.raise(ctx, err)
				return 0, 0
			}
			tmp[i] = v
		}
		for i := int64(0); i < length; i++ {
			if err := hs.heap.StoreElem(dst, int(dstPos+i), tmp[i]); err != nil {
				hs.raise(ctx, err)
				return 0, 0
			}
		}
		return 0, 0
	}

	for i := int64(0); i < length; i++ {
		v, err := hs.heap.LoadElem(src, int(srcPos+i))
		if err != nil {
			hs.raise(ctx, err)
			return 0, 0
		}
		if err := hs.heap.StoreElem(dst, int(dstPos+i), v); err != nil {
			if errors.Is(err, heap.ErrStoreMismatch) {
				hs.raiseOop(ctx, hs.Pre.ArrayStore, "slow_arraycopy: store mismatch")
			} else {
				hs.raise(ctx, err)
			}
			return 0, 0
		}
	}
	return 0, 0
}
