package router

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FUNCTIONAL VALIDATION TEST: Exactly 100 messages per minute per sender
func TestRateLimiter_Allow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(DefaultMessagesPerMinute, time.Minute)
	rl.now = clock.Now

	for i := 0; i < 100; i++ {
		if !rl.Allow("a@uni.edu") {
			t.Fatalf("Message %d should be allowed", i+1)
		}
	}
	if rl.Allow("a@uni.edu") {
		t.Error("Message 101 should be rejected")
	}
	if !rl.Allow("b@uni.edu") {
		t.Error("Other senders have their own window")
	}

	clock.Advance(59 * time.Second)
	if rl.Allow("a@uni.edu") {
		t.Error("Window has not passed yet")
	}

	clock.Advance(time.Second)
	if !rl.Allow("a@uni.edu") {
		t.Error("A new window should allow sending again")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(10, time.Minute)
	rl.now = clock.Now

	rl.Allow("a@uni.edu")
	clock.Advance(4 * time.Minute)
	rl.Allow("b@uni.edu")
	clock.Advance(2 * time.Minute)

	rl.Cleanup()
	if got := rl.tracked(); got != 1 {
		t.Errorf("Expected only the recent sender to remain, got %d", got)
	}
}

// TECHNICAL VALIDATION TEST: Concurrent senders never exceed the limit
func TestRateLimiter_Concurrent(t *testing.T) {
	rl := NewRateLimiter(50, time.Hour)

	var allowed int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("a@uni.edu") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("Expected exactly 50 allowed, got %d", allowed)
	}
}
