package cache

import (
	"context"
	"testing"
	"time"

	"budgetlens/internal/core"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestLRU(size int, ttl time.Duration) (*LRU[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRU[string](size, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestLRU(2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be present")
	}
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("a = %q, %v", v, ok)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 items, got %d", c.Len())
	}
}

func TestLRUOverwriteKeepsSize(t *testing.T) {
	c, _ := newTestLRU(2, time.Minute)
	c.Set("a", "1")
	c.Set("a", "2")
	if v, _ := c.Get("a"); v != "2" || c.Len() != 1 {
		t.Fatalf("overwrite failed: %q len=%d", v, c.Len())
	}
}

func TestLRUExpiry(t *testing.T) {
	c, clock := newTestLRU(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	clock.t = clock.t.Add(30 * time.Second)
	c.Set("c", "3")

	clock.t = clock.t.Add(45 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatal("a should have expired")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("expected 1 expired entry swept, got %d", n)
	}
	if v, ok := c.Get("c"); !ok || v != "3" {
		t.Fatalf("c should still be fresh, got %q %v", v, ok)
	}
}

func TestLRUZeroTTLNeverExpires(t *testing.T) {
	c, clock := newTestLRU(1, 0)
	c.Set("a", "1")
	clock.t = clock.t.Add(24 * time.Hour)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("zero ttl should not expire")
	}
}

func TestLRUPurgeAndDelete(t *testing.T) {
	c, _ := newTestLRU(5, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3")

	c.Delete("b")
	c.Delete("missing")
	if c.Len() != 2 {
		t.Fatalf("expected 2 after delete, got %d", c.Len())
	}
	if n := c.Purge(); n != 2 {
		t.Fatalf("purge removed %d, want 2", n)
	}
	if _, ok := c.Get("a"); ok || c.Len() != 0 {
		t.Fatal("cache should be empty after purge")
	}
	c.Set("d", "4")
	if v, ok := c.Get("d"); !ok || v != "4" {
		t.Fatal("cache should be usable after purge")
	}
}

func TestJanitorSweepsUntilCancelled(t *testing.T) {
	c, clock := newTestLRU(5, time.Minute)
	c.Set("a", "1")
	clock.t = clock.t.Add(2 * time.Minute)

	j := NewJanitor(nil, c)
	ctx, cancel := context.WithCancel(context.Background())
	go j.Run(ctx, time.Millisecond)

	deadline := time.After(2 * time.Second)
	for c.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("janitor never swept the expired entry")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-j.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestReportsPublishAndLookup(t *testing.T) {
	r := NewReports(4, time.Minute)
	p := core.Params{ViewedMonth: 4, ViewedYear: 2024, LookbackMonths: 6, MinDataPoints: 6}

	if _, ok := r.Lookup(p); ok {
		t.Fatal("empty cache should miss")
	}
	if err := r.Publish(context.Background(), core.Report{RunID: "run-1", Params: p}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	got, ok := r.Lookup(p)
	if !ok || got.RunID != "run-1" {
		t.Fatalf("Lookup() = %+v, %v", got, ok)
	}

	other := p
	other.LookbackMonths = 3
	if _, ok := r.Lookup(other); ok {
		t.Fatal("different lookback must not share a cache entry")
	}
}

func TestReportsDropStaleEpochs(t *testing.T) {
	r := NewReports(4, time.Minute)
	p := core.Params{ViewedMonth: 1, ViewedYear: 2024, LookbackMonths: 3, MinDataPoints: 3}
	ctx := context.Background()

	if err := r.Publish(ctx, core.Report{RunID: "before", Params: p}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if n := r.Invalidate(1); n != 1 {
		t.Fatalf("Invalidate() dropped %d reports, want 1", n)
	}

	// A run that read entries before the invalidation finishes late.
	if err := r.Publish(ctx, core.Report{RunID: "late", Params: p, Epoch: 0}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got, ok := r.Lookup(p); ok {
		t.Fatalf("stale report cached after invalidation: %s", got.RunID)
	}

	if err := r.Publish(ctx, core.Report{RunID: "fresh", Params: p, Epoch: 1}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got, ok := r.Lookup(p); !ok || got.RunID != "fresh" {
		t.Fatalf("Lookup() = %+v, %v, want fresh", got, ok)
	}

	if r.Invalidate(0); r.Len() != 0 {
		t.Fatalf("Invalidate should purge regardless of epoch")
	}
	if err := r.Publish(ctx, core.Report{RunID: "still-old", Params: p, Epoch: 0}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if _, ok := r.Lookup(p); ok {
		t.Fatalf("an older epoch must not lower the floor")
	}
}
