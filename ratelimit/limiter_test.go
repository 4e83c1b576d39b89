package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAllow_Unlimited(t *testing.T) {
	l := New(0, 0)
	for i := 0; i < 100; i++ {
		if !l.Allow("example.com") {
			t.Fatal("unlimited limiter denied a request")
		}
	}
}

func TestAllow_NilLimiter(t *testing.T) {
	var l *Limiter
	if !l.Allow("example.com") {
		t.Fatal("nil limiter should allow")
	}
	l.Reset("example.com")
}

func TestAllow_Burst(t *testing.T) {
	l := New(1, 2)

	if !l.Allow("a.example") {
		t.Fatal("first call should be allowed")
	}
	if !l.Allow("a.example") {
		t.Fatal("second call should be allowed")
	}
	if l.Allow("a.example") {
		t.Fatal("third call should be denied")
	}

	// Other keys have their own bucket.
	if !l.Allow("b.example") {
		t.Fatal("separate key should be allowed")
	}
}

func TestAllow_Refills(t *testing.T) {
	l := New(20, 1)

	l.Allow("host")
	if l.Allow("host") {
		t.Fatal("should be denied after exhausting bucket")
	}

	time.Sleep(100 * time.Millisecond)

	if !l.Allow("host") {
		t.Fatal("should be allowed after refill")
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	l := New(0.1, 1)
	l.Allow("host")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx, "host"); err == nil {
		t.Fatal("Wait should fail when the token arrives after the deadline")
	}
}

func TestWait_EventuallyAllowed(t *testing.T) {
	l := New(20, 1)
	l.Allow("host")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := l.Wait(ctx, "host"); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("Wait should have blocked")
	}
}

func TestReset(t *testing.T) {
	l := New(0.01, 1)

	l.Allow("host")
	if l.Allow("host") {
		t.Fatal("should be denied")
	}

	l.Reset("host")

	if !l.Allow("host") {
		t.Fatal("should be allowed after reset")
	}
}

func TestConcurrentAccess(t *testing.T) {
	l := New(0.01, 50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("host") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Fatalf("allowed = %d, want 50", allowed)
	}
}
