package server

import (
	"testing"
	"time"
)

func TestRateLimiterBurstAndRefill(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(3, time.Second)
	rl.lastCheck = clock
	rl.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		if !rl.allow() {
			t.Fatalf("message %d within burst rejected", i)
		}
	}
	if rl.allow() {
		t.Fatalf("message beyond burst accepted")
	}

	// 400ms at 3 tokens/s refills a little over one token.
	clock = clock.Add(400 * time.Millisecond)
	if !rl.allow() {
		t.Fatalf("refilled token rejected")
	}
	if rl.allow() {
		t.Fatalf("bucket should be empty again")
	}

	// Long idle periods never exceed capacity.
	clock = clock.Add(time.Hour)
	for i := 0; i < 3; i++ {
		if !rl.allow() {
			t.Fatalf("message %d after idle rejected", i)
		}
	}
	if rl.allow() {
		t.Fatalf("capacity exceeded after idle")
	}
}

func TestNewRateLimiterDefaults(t *testing.T) {
	rl := newRateLimiter(0, 0)
	if rl.capacity != 1 || rl.rate != 1 {
		t.Fatalf("defaults: capacity=%v rate=%v", rl.capacity, rl.rate)
	}
}
