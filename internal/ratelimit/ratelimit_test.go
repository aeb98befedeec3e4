package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests move the window forward deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(max int, window time.Duration) (*Limiter, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	l := New(max, window)
	l.now = clk.now
	return l, clk
}

func TestAllowUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !l.Allow("u1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("u1") {
		t.Error("fourth request should be throttled")
	}
	if l.Remaining("u1") != 0 {
		t.Errorf("remaining = %d, want 0", l.Remaining("u1"))
	}
}

func TestActorsIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	if !l.Allow("u1") || !l.Allow("u2") {
		t.Error("limits are per actor")
	}
}

func TestWindowSlides(t *testing.T) {
	l, clk := newTestLimiter(2, time.Minute)

	l.Allow("u1")
	clk.advance(30 * time.Second)
	l.Allow("u1")
	if l.Allow("u1") {
		t.Fatal("should be throttled at the limit")
	}

	// The first request ages out; one slot frees up.
	clk.advance(31 * time.Second)
	if !l.Allow("u1") {
		t.Error("slot should free as the window slides")
	}
	if l.Allow("u1") {
		t.Error("second slot is still occupied")
	}
}

func TestDeniedRequestsNotRecorded(t *testing.T) {
	l, clk := newTestLimiter(1, time.Minute)

	l.Allow("u1")
	for i := 0; i < 10; i++ {
		l.Allow("u1") // hammering while throttled
	}
	clk.advance(61 * time.Second)
	if !l.Allow("u1") {
		t.Error("denied attempts must not extend the throttle")
	}
}

func TestConcurrentAllow(t *testing.T) {
	l, _ := newTestLimiter(50, time.Minute)

	var wg sync.WaitGroup
	allowed := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- l.Allow("u1")
		}()
	}
	wg.Wait()
	close(allowed)

	n := 0
	for ok := range allowed {
		if ok {
			n++
		}
	}
	if n != 50 {
		t.Errorf("allowed %d of 100 concurrent requests, want exactly 50", n)
	}
}
