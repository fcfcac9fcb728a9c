package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(perMinute int) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	cfg := DefaultConfig()
	cfg.RequestsPerMinute = perMinute
	return newLimiter(cfg, clock.now), clock
}

func TestAllowWindow(t *testing.T) {
	rl, clock := newTestLimiter(3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Fatalf("fourth request in the window should be rejected")
	}
	if !rl.Allow("10.0.0.2") {
		t.Fatalf("other clients have their own window")
	}

	clock.advance(time.Minute)
	if !rl.Allow("10.0.0.1") {
		t.Fatalf("a new window should reset the count")
	}

	m := rl.GetMetrics()
	if m.TotalHits != 1 || m.ClientCount != 2 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
}

func TestCleanupStaleEntries(t *testing.T) {
	rl, clock := newTestLimiter(10)
	rl.Allow("a")
	clock.advance(9 * time.Minute)
	rl.Allow("b")
	clock.advance(2 * time.Minute)

	if removed := rl.cleanupStaleEntries(); removed != 1 {
		t.Fatalf("expected 1 stale client removed, got %d", removed)
	}
	if got := rl.GetMetrics().ClientCount; got != 1 {
		t.Fatalf("expected 1 client left, got %d", got)
	}
}

func TestMiddlewareOnlyLimitsConfiguredMethods(t *testing.T) {
	rl, _ := newTestLimiter(1)
	h := rl.Middleware(func(*http.Request) string { return "ip" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	)

	codes := make([]int, 0, 4)
	for _, method := range []string{http.MethodPost, http.MethodPost, http.MethodGet, http.MethodGet} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(method, "/", nil))
		codes = append(codes, rr.Code)
		if rr.Code == http.StatusTooManyRequests && rr.Header().Get("Retry-After") != "60" {
			t.Fatalf("missing Retry-After header")
		}
	}

	want := []int{http.StatusNoContent, http.StatusTooManyRequests, http.StatusNoContent, http.StatusNoContent}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("request %d: expected %d, got %d", i, want[i], codes[i])
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	rl := NewLimiter(DefaultConfig())
	rl.Stop()
	rl.Stop()
}
