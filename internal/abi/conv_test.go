package abi

import (
	"testing"

	"kiln/internal/types"
)

func TestCompiledArgAssignment(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()

	domain := []types.TypeID{b.Klass, b.Int, b.Int, b.Int, b.Int, b.Int, b.Int, b.Long}
	locs := Compiled.AssignArgs(domain)
	if len(locs) != len(domain) {
		t.Fatalf("got %d locations for %d args", len(locs), len(domain))
	}
	wantRegs := []Register{J0, J1, J2, J3, J4, J5}
	for i, r := range wantRegs {
		if !locs[i].IsRegister() || locs[i].Reg != r {
			t.Fatalf("arg %d assigned %s, want %s", i, locs[i], r)
		}
	}
	for i := 6; i < len(domain); i++ {
		if !locs[i].IsStack() {
			t.Fatalf("arg %d assigned %s, want stack slot", i, locs[i])
		}
		if got, want := locs[i].Slot, i-6; got != want {
			t.Fatalf("arg %d assigned stack slot %d, want %d", i, got, want)
		}
	}
}

func TestNativeShadowOffsetsStackArgs(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()

	domain := make([]types.TypeID, 10)
	for i := range domain {
		domain[i] = b.Long
	}
	locs := Native.AssignArgs(domain)
	for i := 0; i < 8; i++ {
		if !locs[i].IsRegister() {
			t.Fatalf("arg %d assigned %s, want register", i, locs[i])
		}
	}
	// Stack arguments land beyond the shadow slots.
	if got, want := locs[8].Slot, Native.ShadowSlots; got != want {
		t.Fatalf("first stack arg at out-slot %d, want %d", got, want)
	}
	if got, want := locs[9].Slot, Native.ShadowSlots+1; got != want {
		t.Fatalf("second stack arg at out-slot %d, want %d", got, want)
	}
}

func TestAssignResults(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()

	single := Compiled.AssignResults([]types.TypeID{b.Oop})
	if len(single) != 1 || single[0].Reg != JRet0 {
		t.Fatalf("single result assigned %v", single)
	}
	pair := Compiled.AssignResults([]types.TypeID{b.Oop, b.RetAddress})
	if pair[0].Reg != JRet0 || pair[1].Reg != JRet1 {
		t.Fatalf("pair assigned %v", pair)
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("three results did not panic")
		}
	}()
	Compiled.AssignResults([]types.TypeID{b.Int, b.Int, b.Int})
}

func TestOutgoingSlotsAligned(t *testing.T) {
	tests := []struct {
		conv    *Convention
		numArgs int
		want    int
	}{
		{&Compiled, 0, 0},
		{&Compiled, 6, 0},
		{&Compiled, 7, 2},  // one stack arg, aligned up
		{&Compiled, 8, 2},
		{&Native, 8, 2},    // shadow only
		{&Native, 9, 4},    // shadow + one stack arg, aligned up
	}
	for _, tt := range tests {
		if got := tt.conv.OutgoingSlots(tt.numArgs); got != tt.want {
			t.Fatalf("%s OutgoingSlots(%d) = %d, want %d", tt.conv.Name, tt.numArgs, got, tt.want)
		}
	}
}

func TestFrameLayoutSlots(t *testing.T) {
	fl := NewFrameLayout(2, 9, &Native)
	if fl.ReturnAddrSlot != 0 {
		t.Fatalf("return address slot = %d, want 0", fl.ReturnAddrSlot)
	}
	if fl.SavedCtxSlot != 1 {
		t.Fatalf("saved ctx slot = %d, want 1", fl.SavedCtxSlot)
	}
	// Layout order: ret addr, ctx, callee saves, spills, outgoing.
	if got, want := fl.CalleeSaveSlot(0), 2; got != want {
		t.Fatalf("callee save 0 at %d, want %d", got, want)
	}
	if got, want := fl.SpillSlot(0), 2+len(Native.CalleeSaved); got != want {
		t.Fatalf("spill 0 at %d, want %d", got, want)
	}
	outBase := 2 + len(Native.CalleeSaved) + 2
	if got, want := fl.OutArgSlot(Native.ShadowSlots), outBase+Native.ShadowSlots; got != want {
		t.Fatalf("first stack arg at %d, want %d", got, want)
	}
	if fl.TotalSlots%Native.StackAlignSlots != 0 {
		t.Fatalf("frame size %d not aligned to %d", fl.TotalSlots, Native.StackAlignSlots)
	}
	if fl.TotalSlots < outBase+Native.OutgoingSlots(9) {
		t.Fatalf("frame size %d too small", fl.TotalSlots)
	}
}

func TestRegisterNames(t *testing.T) {
	if J0.String() != "j0" || Ctx.String() != "ctx" || NRet1.String() != "nret1" {
		t.Fatalf("unexpected register names: %s %s %s", J0, Ctx, NRet1)
	}
	if NoRegister.String() != "noreg" {
		t.Fatalf("NoRegister = %s", NoRegister)
	}
}
