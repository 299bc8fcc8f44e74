package sig

import (
	"sync"
	"testing"

	"kiln/internal/types"
)

func newTestCatalog() *Catalog {
	return NewCatalog(types.NewInterner())
}

func TestCatalogMemoizesPointerIdentity(t *testing.T) {
	c := newTestCatalog()
	first := c.NewInstance()
	second := c.NewInstance()
	if first != second {
		t.Fatalf("NewInstance returned distinct pointers: %p vs %p", first, second)
	}
	if c.Rethrow() != c.Rethrow() {
		t.Fatalf("Rethrow returned distinct pointers across calls")
	}
	if c.MultiNewArray(3) != c.MultiNewArray(3) {
		t.Fatalf("MultiNewArray(3) returned distinct pointers across calls")
	}
	if c.MonitorNotifyAll() != c.MonitorNotify() {
		t.Fatalf("notifyAll does not share the notify shape")
	}
	if c.MonitorLocking() != c.CompleteMonitorEnter() {
		t.Fatalf("locking does not share the enter shape")
	}
}

func TestCatalogConcurrentFirstUse(t *testing.T) {
	c := newTestCatalog()
	const goroutines = 16
	got := make([]*Signature, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			got[slot] = c.CompleteMonitorEnter()
		}(i)
	}
	wg.Wait()
	for i := 1; i < goroutines; i++ {
		if got[i] != got[0] {
			t.Fatalf("goroutine %d observed %p, goroutine 0 observed %p", i, got[i], got[0])
		}
	}
}

func TestCatalogShapes(t *testing.T) {
	c := newTestCatalog()
	b := c.Types().Builtins()

	tests := []struct {
		name    string
		sig     *Signature
		domain  []types.TypeID
		results []types.TypeID
	}{
		{"new_instance", c.NewInstance(), []types.TypeID{b.Klass}, []types.TypeID{b.Oop}},
		{"new_array", c.NewArray(), []types.TypeID{b.Klass, b.Int}, []types.TypeID{b.Oop}},
		{"multianewarray2", c.MultiNewArray(2), []types.TypeID{b.Klass, b.Int, b.Int}, []types.TypeID{b.Oop}},
		{"multianewarray5", c.MultiNewArray(5), []types.TypeID{b.Klass, b.Int, b.Int, b.Int, b.Int, b.Int}, []types.TypeID{b.Oop}},
		{"multianewarrayN", c.MultiNewArrayN(), []types.TypeID{b.Klass, b.Oop}, []types.TypeID{b.Oop}},
		{"monitor_enter", c.CompleteMonitorEnter(), []types.TypeID{b.Oop, b.RawAddress}, nil},
		{"rethrow", c.Rethrow(), []types.TypeID{b.Oop, b.RetAddress}, []types.TypeID{b.Oop, b.RetAddress}},
		{"uncommon_trap", c.UncommonTrap(), []types.TypeID{b.Int}, nil},
		{"l2f", c.L2F(), []types.TypeID{b.Long}, []types.TypeID{b.Float}},
		{"void_long", c.VoidLong(), nil, []types.TypeID{b.Long}},
		{"slow_arraycopy", c.SlowArrayCopy(), []types.TypeID{b.Oop, b.Int, b.Oop, b.Int, b.Int}, nil},
		{"crc32", c.UpdateBytesCRC32(), []types.TypeID{b.Int, b.RawAddress, b.Int}, []types.TypeID{b.Int}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, want := tt.sig.NumArgs(), len(tt.domain); got != want {
				t.Fatalf("NumArgs = %d, want %d", got, want)
			}
			for i, want := range tt.domain {
				if got := tt.sig.Arg(i); got != want {
					t.Fatalf("Arg(%d) = %v, want %v", i, got, want)
				}
			}
			if got, want := tt.sig.NumResults(), len(tt.results); got != want {
				t.Fatalf("NumResults = %d, want %d", got, want)
			}
			for i, want := range tt.results {
				if got := tt.sig.Result(i); got != want {
					t.Fatalf("Result(%d) = %v, want %v", i, got, want)
				}
			}
		})
	}
}

func TestMultiNewArrayRankOutOfRangePanics(t *testing.T) {
	c := newTestCatalog()
	for _, ndim := range []int{0, 1, 6} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("MultiNewArray(%d) did not panic", ndim)
				}
			}()
			c.MultiNewArray(ndim)
		}()
	}
}

func TestVectorVectorMemoization(t *testing.T) {
	c := newTestCatalog()
	in := c.Types()
	d4 := in.VectorOf(in.Builtins().Double, 4)
	d8 := in.VectorOf(in.Builtins().Double, 8)

	unary := c.VectorVector(1, d4, d4)
	if again := c.VectorVector(1, d4, d4); again != unary {
		t.Fatalf("same vector shape produced distinct pointers: %p vs %p", again, unary)
	}
	binary := c.VectorVector(2, d4, d4)
	if binary == unary {
		t.Fatalf("different arities unexpectedly shared a signature")
	}
	if got := binary.NumArgs(); got != 2 {
		t.Fatalf("binary vector helper NumArgs = %d, want 2", got)
	}
	wide := c.VectorVector(1, d8, d8)
	if wide == unary {
		t.Fatalf("different lane counts unexpectedly shared a signature")
	}

	var wg sync.WaitGroup
	got := make([]*Signature, 8)
	for i := range got {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			got[slot] = c.VectorVector(3, d8, d4)
		}(i)
	}
	wg.Wait()
	for i := 1; i < len(got); i++ {
		if got[i] != got[0] {
			t.Fatalf("concurrent vector lookups diverged: %p vs %p", got[i], got[0])
		}
	}
}

func TestPrewarmBuildsEveryEntry(t *testing.T) {
	c := newTestCatalog()
	if err := c.Prewarm(4); err != nil {
		t.Fatalf("Prewarm: %v", err)
	}
	for h := helperSig(0); h < numHelperSigs; h++ {
		if c.entries[h].sig == nil {
			t.Fatalf("catalog entry %d not built after Prewarm", int(h))
		}
	}
}

func TestDescribe(t *testing.T) {
	c := newTestCatalog()
	in := c.Types()
	if got, want := c.NewArray().Describe(in), "new_array(klass,int)->oop"; got != want {
		t.Fatalf("Describe = %q, want %q", got, want)
	}
	if got, want := c.VoidVoid().Describe(in), "void_void()->void"; got != want {
		t.Fatalf("Describe = %q, want %q", got, want)
	}
	if got, want := c.Rethrow().Describe(in), "rethrow(oop,retaddr)->oop,retaddr"; got != want {
		t.Fatalf("Describe = %q, want %q", got, want)
	}
}
