package counters

import (
	"strings"
	"sync"
	"testing"
)

func TestFreshCounterVisibleOnce(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("Point::move @ 12", TagLock)
	if c.Value() != 0 {
		t.Fatalf("fresh value = %d", c.Value())
	}
	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot rows = %d, want 1", len(snap))
	}
	if snap[0].Name != "Point::move @ 12" || snap[0].Tag != TagLock || snap[0].Value != 0 {
		t.Fatalf("row = %+v", snap[0])
	}
}

func TestSingleThreadIncrements(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("hits", TagNone)
	for i := 0; i < 1000; i++ {
		c.Inc()
	}
	c.Add(5)
	if c.Value() != 1005 {
		t.Fatalf("value = %d, want 1005", c.Value())
	}
}

func TestRacingIncrementsStayBounded(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("racy", TagNone)
	const workers, per = 8, 500

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()
	if v := c.Value(); v < 0 || v > workers*per {
		t.Fatalf("value = %d, outside [0, %d]", v, workers*per)
	}
}

func TestListOrderNewestFirst(t *testing.T) {
	r := NewRegistry()
	r.NewCounter("a", TagNone)
	r.NewCounter("b", TagLock)
	r.NewCounter("c", TagEliminatedLock)

	snap := r.Snapshot()
	if len(snap) != 3 || r.Len() != 3 {
		t.Fatalf("len = %d / %d, want 3", len(snap), r.Len())
	}
	for i, want := range []string{"c", "b", "a"} {
		if snap[i].Name != want {
			t.Fatalf("row %d = %q, want %q", i, snap[i].Name, want)
		}
	}
}

func TestConcurrentCreation(t *testing.T) {
	r := NewRegistry()
	const workers = 16

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.NewCounter("site", TagLock).Inc()
		}()
	}
	wg.Wait()

	if r.Len() != workers {
		t.Fatalf("Len = %d, want %d", r.Len(), workers)
	}
	snap := r.Snapshot()
	if len(snap) != workers {
		t.Fatalf("snapshot rows = %d, want %d", len(snap), workers)
	}
	for _, row := range snap {
		if row.Value != 1 {
			t.Fatalf("row value = %d, want 1", row.Value)
		}
	}
}

func TestDumpFormat(t *testing.T) {
	r := NewRegistry()
	r.NewCounter("alloc.slow", TagNone).Add(3)
	c := r.NewCounter("Vec::push @ 4", TagEliminatedLock)
	c.Inc()

	var sb strings.Builder
	if err := r.Dump(&sb); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	out := sb.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "eliminated-lock") || !strings.Contains(lines[0], "Vec::push @ 4") {
		t.Fatalf("first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "alloc.slow") || !strings.Contains(lines[1], "3") {
		t.Fatalf("second line %q", lines[1])
	}
}
