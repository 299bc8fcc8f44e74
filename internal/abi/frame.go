package abi

// FrameLayout describes a trampoline frame in the portable stack. Slot
// indices are relative to the frame pointer; slot 0 always holds the return
// address so frame walkers can unwind without per-blob shape tables.
//
//	fp+0                  return address
//	fp+1                  saved context register
//	fp+2 ..               callee-saved spills
//	.. spill area ..      trampoline scratch
//	.. outgoing area ..   shadow slots, then stack arguments
type FrameLayout struct {
	TotalSlots int

	ReturnAddrSlot int
	SavedCtxSlot   int

	calleeSaveBase int
	spillBase      int
	outBase        int

	numCalleeSaved int
	numSpills      int
	outSlots       int
}

// NewFrameLayout shapes a frame for a trampoline that spills numSpills
// scratch values and performs one outgoing call with maxOutArgs arguments
// under callee's convention.
func NewFrameLayout(numSpills, maxOutArgs int, callee *Convention) *FrameLayout {
	fl := &FrameLayout{
		ReturnAddrSlot: 0,
		SavedCtxSlot:   1,
		numCalleeSaved: len(callee.CalleeSaved),
		numSpills:      numSpills,
		outSlots:       callee.OutgoingSlots(maxOutArgs),
	}
	fl.calleeSaveBase = 2
	fl.spillBase = fl.calleeSaveBase + fl.numCalleeSaved
	fl.outBase = fl.spillBase + fl.numSpills
	fl.TotalSlots = alignSlots(fl.outBase+fl.outSlots, callee.StackAlignSlots)
	return fl
}

// CalleeSaveSlot returns the slot that preserves the i-th callee-saved
// register across the outgoing call.
func (fl *FrameLayout) CalleeSaveSlot(i int) int { return fl.calleeSaveBase + i }

// SpillSlot returns the i-th scratch slot.
func (fl *FrameLayout) SpillSlot(i int) int { return fl.spillBase + i }

// OutArgSlot translates an outgoing-area index, as assigned by
// Convention.AssignArgs into Location.Slot, to a frame slot.
func (fl *FrameLayout) OutArgSlot(i int) int { return fl.outBase + i }

// NumSpills returns the scratch slot count.
func (fl *FrameLayout) NumSpills() int { return fl.numSpills }
