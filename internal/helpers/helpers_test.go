package helpers

import (
	"testing"

	"kiln/internal/counters"
	"kiln/internal/exec"
	"kiln/internal/heap"
	"kiln/internal/safepoint"
)

type testEnv struct {
	hs   *Helpers
	heap *heap.Heap
	ct   *heap.ClassTable
	reg  *counters.Registry
}

func newTestEnv(t *testing.T, maxSlots int) *testEnv {
	t.Helper()
	ct := heap.NewClassTable()
	h := heap.NewHeap(ct, maxSlots, nil)
	reg := counters.NewRegistry()
	hs, err := New(h, safepoint.NewCoordinator(), reg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testEnv{hs: hs, heap: h, ct: ct, reg: reg}
}

func wantRaised(t *testing.T, ctx *exec.Context, want heap.Oop) {
	t.Helper()
	if !ctx.HasPending() {
		t.Fatal("no pending exception")
	}
	if got := ctx.ClearPending(); got != uint64(want) {
		t.Fatalf("pending = %d, want %d", got, want)
	}
}

func TestNewInstanceHelper(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := exec.NewContext(0)
	point, err := env.ct.Define("Point", env.ct.Builtins.Object, 2)
	if err != nil {
		t.Fatalf("Define: %v", err)
	}

	r0, _ := env.hs.NewInstance(ctx, []uint64{uint64(point)})
	if ctx.HasPending() || r0 == 0 {
		t.Fatalf("r0 = %d, pending = %v", r0, ctx.HasPending())
	}
	if k, err := env.heap.KlassOf(heap.Oop(r0)); err != nil || k != point {
		t.Fatalf("KlassOf = %d, %v", k, err)
	}
}

func TestAllocationExhaustionRaisesPreallocatedOOM(t *testing.T) {
	// Seven exception preallocations use seven slots; leave two spare.
	env := newTestEnv(t, 9)
	ctx := exec.NewContext(0)
	va := env.ct.Builtins.ValueArray

	r0, _ := env.hs.NewArray(ctx, []uint64{uint64(va), 2})
	if ctx.HasPending() || r0 == 0 {
		t.Fatalf("fitting alloc failed: r0 = %d", r0)
	}
	r0, _ = env.hs.NewArray(ctx, []uint64{uint64(va), 8})
	if r0 != 0 {
		t.Fatalf("over-budget alloc returned %d", r0)
	}
	wantRaised(t, ctx, env.hs.Pre.OutOfMemory)
}

func TestNewArrayNegativeLength(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := exec.NewContext(0)
	va := env.ct.Builtins.ValueArray

	before := env.heap.Len()
	r0, _ := env.hs.NewArray(ctx, []uint64{uint64(va), uint64(0xFFFFFFFFFFFFFFFF)})
	if r0 != 0 {
		t.Fatalf("r0 = %d", r0)
	}
	wantRaised(t, ctx, env.hs.Pre.NegativeArraySize)
	if env.heap.Len() != before {
		t.Fatal("negative-length allocation left an object behind")
	}
}

func TestNewArrayNoZeroHelper(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := exec.NewContext(0)
	va := env.ct.Builtins.ValueArray

	r0, _ := env.hs.NewArrayNoZero(ctx, []uint64{uint64(va), 3})
	if ctx.HasPending() {
		t.Fatal("unexpected raise")
	}
	if v, err := env.heap.LoadElem(heap.Oop(r0), 1); err != nil || v == 0 {
		t.Fatalf("elem = %#x, %v; want fill pattern", v, err)
	}
}

func TestMultiNewArrayLevels(t *testing.T) {
	env := newTestEnv(t, 0)
	va := env.ct.Builtins.ValueArray
	va2, _ := env.ct.ArrayOf(va)
	va3, _ := env.ct.ArrayOf(va2)
	va4, _ := env.ct.ArrayOf(va3)
	va5, _ := env.ct.ArrayOf(va4)

	cases := []struct {
		name  string
		klass heap.KlassID
		lens  []uint64
		fn    exec.TargetFunc
	}{
		{"rank2", va2, []uint64{2, 3}, env.hs.MultiNewArray2},
		{"rank3", va3, []uint64{2, 3, 4}, env.hs.MultiNewArray3},
		{"rank4", va4, []uint64{1, 2, 3, 4}, env.hs.MultiNewArray4},
		{"rank5", va5, []uint64{1, 2, 1, 2, 1}, env.hs.MultiNewArray5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := exec.NewContext(0)
			args := append([]uint64{uint64(tc.klass)}, tc.lens...)
			r0, _ := tc.fn(ctx, args)
			if ctx.HasPending() || r0 == 0 {
				t.Fatalf("r0 = %d, pending = %v", r0, ctx.HasPending())
			}
			checkLevels(t, env.heap, heap.Oop(r0), tc.lens)
		})
	}
}

// checkLevels asserts the level-i length equals the requested input i.
func checkLevels(t *testing.T, h *heap.Heap, oop heap.Oop, lens []uint64) {
	t.Helper()
	n, err := h.ArrayLen(oop)
	if err != nil || n != int(lens[0]) {
		t.Fatalf("level length = %d, %v; want %d", n, err, lens[0])
	}
	if len(lens) == 1 {
		return
	}
	for i := 0; i < n; i++ {
		sub, err := h.LoadElem(oop, i)
		if err != nil || sub == 0 {
			t.Fatalf("element %d = %d, %v", i, sub, err)
		}
		checkLevels(t, h, heap.Oop(sub), lens[1:])
	}
}

func TestMultiNewArrayNegativeInnerLength(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := exec.NewContext(0)
	va := env.ct.Builtins.ValueArray
	va2, _ := env.ct.ArrayOf(va)

	before := env.heap.Len()
	neg := uint64(0xFFFFFFFFFFFFFFFE) // -2
	r0, _ := env.hs.MultiNewArray2(ctx, []uint64{uint64(va2), 4, neg})
	if r0 != 0 {
		t.Fatalf("r0 = %d", r0)
	}
	wantRaised(t, ctx, env.hs.Pre.NegativeArraySize)
	if env.heap.Len() != before {
		t.Fatal("negative inner length still allocated")
	}
}

func TestMultiNewArrayN(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := exec.NewContext(0)
	va := env.ct.Builtins.ValueArray
	va2, _ := env.ct.ArrayOf(va)
	va3, _ := env.ct.ArrayOf(va2)

	dims, err := env.heap.AllocArray(va, 3)
	if err != nil {
		t.Fatalf("dims alloc: %v", err)
	}
	for i, n := range []uint64{2, 1, 3} {
		if err := env.heap.StoreElem(dims, i, n); err != nil {
			t.Fatalf("dims store: %v", err)
		}
	}

	r0, _ := env.hs.MultiNewArrayN(ctx, []uint64{uint64(va3), uint64(dims)})
	if ctx.HasPending() || r0 == 0 {
		t.Fatalf("r0 = %d, pending = %v", r0, ctx.HasPending())
	}
	checkLevels(t, env.heap, heap.Oop(r0), []uint64{2, 1, 3})

	r0, _ = env.hs.MultiNewArrayN(ctx, []uint64{uint64(va3), 0})
	if r0 != 0 {
		t.Fatalf("nil dims returned %d", r0)
	}
	wantRaised(t, ctx, env.hs.Pre.NullPointer)
}

func TestMonitorHelpers(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := exec.NewContext(0)
	obj, _ := env.heap.AllocInstance(env.ct.Builtins.Object)

	env.hs.CompleteMonitorEnter(ctx, []uint64{uint64(obj), 0})
	if ctx.HasPending() {
		t.Fatal("enter raised")
	}
	mon, _ := env.heap.MonitorOf(obj)
	if mon.Owner() != ctx.Token() {
		t.Fatalf("owner = %d, want %d", mon.Owner(), ctx.Token())
	}

	env.hs.MonitorNotify(ctx, []uint64{uint64(obj)})
	if ctx.HasPending() {
		t.Fatal("notify while owning raised")
	}
	env.hs.CompleteMonitorExit(ctx, []uint64{uint64(obj), 0})
	if ctx.HasPending() {
		t.Fatal("exit raised")
	}

	// Unowned operations raise the monitor-state exception.
	env.hs.CompleteMonitorExit(ctx, []uint64{uint64(obj), 0})
	wantRaised(t, ctx, env.hs.Pre.IllegalMonitorState)
	env.hs.MonitorNotifyAll(ctx, []uint64{uint64(obj)})
	wantRaised(t, ctx, env.hs.Pre.IllegalMonitorState)

	env.hs.CompleteMonitorEnter(ctx, []uint64{0, 0})
	wantRaised(t, ctx, env.hs.Pre.NullPointer)
}

func TestMonitorCounters(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := exec.NewContext(0)
	obj, _ := env.heap.AllocInstance(env.ct.Builtins.Object)

	env.hs.CompleteMonitorEnter(ctx, []uint64{uint64(obj), 0})
	env.hs.CompleteMonitorExit(ctx, []uint64{uint64(obj), 0})

	var lock, elided int64 = -1, -1
	for _, row := range env.reg.Snapshot() {
		switch row.Tag {
		case counters.TagLock:
			lock = row.Value
		case counters.TagEliminatedLock:
			elided = row.Value
		}
	}
	if lock != 1 {
		t.Fatalf("lock counter = %d, want 1", lock)
	}
	if elided != 1 {
		t.Fatalf("eliminated-lock counter = %d, want 1", elided)
	}
}

func TestSlowArrayCopy(t *testing.T) {
	env := newTestEnv(t, 0)
	va := env.ct.Builtins.ValueArray

	t.Run("values", func(t *testing.T) {
		ctx := exec.NewContext(0)
		src, _ := env.heap.AllocArray(va, 4)
		dst, _ := env.heap.AllocArray(va, 4)
		for i := 0; i < 4; i++ {
			env.heap.StoreElem(src, i, uint64(10+i))
		}
		env.hs.SlowArrayCopy(ctx, []uint64{uint64(src), 1, uint64(dst), 0, 3})
		if ctx.HasPending() {
			t.Fatal("copy raised")
		}
		for i, want := range []uint64{11, 12, 13, 0} {
			if v, _ := env.heap.LoadElem(dst, i); v != want {
				t.Fatalf("dst[%d] = %d, want %d", i, v, want)
			}
		}
	})

	t.Run("overlap", func(t *testing.T) {
		ctx := exec.NewContext(0)
		arr, _ := env.heap.AllocArray(va, 5)
		for i := 0; i < 5; i++ {
			env.heap.StoreElem(arr, i, uint64(i+1))
		}
		// Shift right by one inside the same array.
		env.hs.SlowArrayCopy(ctx, []uint64{uint64(arr), 0, uint64(arr), 1, 4})
		if ctx.HasPending() {
			t.Fatal("overlap copy raised")
		}
		for i, want := range []uint64{1, 1, 2, 3, 4} {
			if v, _ := env.heap.LoadElem(arr, i); v != want {
				t.Fatalf("arr[%d] = %d, want %d", i, v, want)
			}
		}
	})

	t.Run("bounds", func(t *testing.T) {
		ctx := exec.NewContext(0)
		src, _ := env.heap.AllocArray(va, 2)
		dst, _ := env.heap.AllocArray(va, 2)
		env.hs.SlowArrayCopy(ctx, []uint64{uint64(src), 1, uint64(dst), 0, 2})
		wantRaised(t, ctx, env.hs.Pre.IndexOutOfBounds)
	})

	t.Run("nil", func(t *testing.T) {
		ctx := exec.NewContext(0)
		dst, _ := env.heap.AllocArray(va, 2)
		env.hs.SlowArrayCopy(ctx, []uint64{0, 0, uint64(dst), 0, 1})
		wantRaised(t, ctx, env.hs.Pre.NullPointer)
	})

	t.Run("store mismatch keeps prefix", func(t *testing.T) {
		ctx := exec.NewContext(0)
		b := env.ct.Builtins
		strK, _ := env.ct.Define("CopyString", b.Object, 0)
		objArr, _ := env.ct.ArrayOf(b.Object)
		strArr, _ := env.ct.ArrayOf(strK)

		s, _ := env.heap.AllocInstance(strK)
		o, _ := env.heap.AllocInstance(b.Object)
		src, _ := env.heap.AllocArray(objArr, 2)
		env.heap.StoreElem(src, 0, uint64(s))
		env.heap.StoreElem(src, 1, uint64(o))
		dst, _ := env.heap.AllocArray(strArr, 2)

		env.hs.SlowArrayCopy(ctx, []uint64{uint64(src), 0, uint64(dst), 0, 2})
		wantRaised(t, ctx, env.hs.Pre.ArrayStore)
		if v, _ := env.heap.LoadElem(dst, 0); v != uint64(s) {
			t.Fatalf("prefix element lost: dst[0] = %d, want %d", v, s)
		}
		if v, _ := env.heap.LoadElem(dst, 1); v != 0 {
			t.Fatalf("mismatching element stored: dst[1] = %d", v)
		}
	})

	t.Run("kind mismatch", func(t *testing.T) {
		ctx := exec.NewContext(0)
		objArr, _ := env.ct.ArrayOf(env.ct.Builtins.Object)
		src, _ := env.heap.AllocArray(va, 1)
		dst, _ := env.heap.AllocArray(objArr, 1)
		env.hs.SlowArrayCopy(ctx, []uint64{uint64(src), 0, uint64(dst), 0, 1})
		wantRaised(t, ctx, env.hs.Pre.ArrayStore)
	})
}

func TestRegisterFinalizerHelper(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := exec.NewContext(0)
	obj, _ := env.heap.AllocInstance(env.ct.Builtins.Object)

	env.hs.RegisterFinalizer(ctx, []uint64{uint64(obj)})
	if ctx.HasPending() {
		t.Fatal("register raised")
	}
	q := env.heap.Finalizers()
	if len(q) != 1 || q[0] != obj {
		t.Fatalf("queue = %v", q)
	}

	env.hs.RegisterFinalizer(ctx, []uint64{0})
	wantRaised(t, ctx, env.hs.Pre.NullPointer)
}

func TestThrowAndRethrow(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := exec.NewContext(0)
	exc, _ := env.heap.AllocInstance(env.ct.Builtins.Throwable)

	env.hs.Throw(ctx, []uint64{uint64(exc)})
	wantRaised(t, ctx, exc)

	// Throwing nil throws the null-pointer exception instead.
	env.hs.Throw(ctx, []uint64{0})
	wantRaised(t, ctx, env.hs.Pre.NullPointer)

	r0, r1 := env.hs.Rethrow(ctx, []uint64{uint64(exc), 0x4242})
	wantRaised(t, ctx, exc)
	if r0 != uint64(exc) || r1 != 0x4242 {
		t.Fatalf("rethrow returned (%d, %#x)", r0, r1)
	}
}

func TestRegisterAll(t *testing.T) {
	env := newTestEnv(t, 0)
	tt := exec.NewTargetTable()
	if err := env.hs.RegisterAll(tt); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	for _, name := range []string{
		"new_instance", "new_array", "new_array_nozero",
		"multianewarray2", "multianewarray3", "multianewarray4",
		"multianewarray5", "multianewarrayN",
		"complete_monitor_enter", "complete_monitor_exit",
		"monitor_notify", "monitor_notifyAll",
		"slow_arraycopy", "register_finalizer", "notify_vthread",
		"osr_end", "athrow", "rethrow",
	} {
		if _, ok := tt.LookupName(name); !ok {
			t.Fatalf("target %q not registered", name)
		}
	}
	if err := env.hs.RegisterAll(tt); err == nil {
		t.Fatal("second RegisterAll did not report duplicates")
	}
}
