package router

import (
	"sync"
	"time"
)

// DefaultMessagesPerMinute is the per-sender send limit
const DefaultMessagesPerMinute = 100

// RateLimiter implements per-sender rate limiting
// ARCHITECTURAL DISCOVERY: Per-sender state tracking with periodic cleanup prevents memory leaks
type RateLimiter struct {
	mu      sync.Mutex
	senders map[string]*senderLimit
	limit   int
	window  time.Duration
	now     func() time.Time
}

// senderLimit tracks the current window of one sender
type senderLimit struct {
	messageCount int
	windowStart  time.Time
}

// NewRateLimiter allows limit messages per sender per window
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultMessagesPerMinute
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		senders: make(map[string]*senderLimit),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Allow reports whether sender may send one more message now
// FUNCTIONAL DISCOVERY: fixed window anchored at the sender's first message, the
// count resets once a full window has passed
func (rl *RateLimiter) Allow(sender string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	limit, exists := rl.senders[sender]
	if !exists || now.Sub(limit.windowStart) >= rl.window {
		rl.senders[sender] = &senderLimit{messageCount: 1, windowStart: now}
		return true
	}

	if limit.messageCount >= rl.limit {
		return false
	}

	limit.messageCount++
	return true
}

// Cleanup removes senders idle for five windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for sender, limit := range rl.senders {
		if now.Sub(limit.windowStart) > 5*rl.window {
			delete(rl.senders, sender)
		}
	}
}

// tracked returns the number of senders with state, for tests and stats
func (rl *RateLimiter) tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.senders)
}
