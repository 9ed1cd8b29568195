package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket implements a token bucket rate limiter. Refill is computed
// lazily from elapsed wall-clock time at withdrawal, so the bucket stays
// correct across long process suspensions without a background timer.
type TokenBucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a bucket that starts full.
// capacity is the maximum number of tokens the bucket can hold.
// refillRate is the number of tokens added per second.
func NewTokenBucket(capacity, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// refill adds tokens based on elapsed time since last refill.
// Caller must hold b.mu.
func (b *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// TryConsume attempts to consume the given number of tokens without blocking.
func (b *TokenBucket) TryConsume(tokens float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= tokens {
		b.tokens -= tokens
		return true
	}
	return false
}

// ConsumeWithTimeout blocks until the tokens are available or the timeout
// expires. Returns false on timeout.
func (b *TokenBucket) ConsumeWithTimeout(tokens float64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for {
		b.mu.Lock()
		b.refill()

		if b.tokens >= tokens {
			b.tokens -= tokens
			b.mu.Unlock()
			return true
		}

		deficit := tokens - b.tokens
		waitTime := time.Duration(deficit / b.refillRate * float64(time.Second))
		b.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		if waitTime > remaining {
			waitTime = remaining
		}
		if waitTime < 10*time.Millisecond {
			waitTime = 10 * time.Millisecond
		}
		time.Sleep(waitTime)
	}
}

// Available returns the current number of available tokens.
func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.tokens
}

// Return returns tokens to the bucket, e.g. when an acquired request is
// cancelled before the API call is made.
func (b *TokenBucket) Return(tokens float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens += tokens
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
}

// Reset restores the bucket to full capacity.
func (b *TokenBucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = b.capacity
	b.lastRefill = time.Now()
}
