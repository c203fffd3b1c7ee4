package ratelimit

import "time"

// Bucket is a token bucket refilled lazily from elapsed time. It is not safe
// for concurrent use; Limiter guards every bucket with its mutex.
type Bucket struct {
	capacity   int
	interval   time.Duration // one token per interval
	tokens     int
	lastRefill time.Time
}

func NewBucket(capacity int, interval time.Duration, now time.Time) *Bucket {
	if capacity < 1 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Bucket{capacity: capacity, interval: interval, tokens: capacity, lastRefill: now}
}

// refill adds whole tokens for the intervals elapsed since lastRefill. The
// remainder of a partial interval is kept by advancing lastRefill only by
// the intervals consumed.
func (b *Bucket) refill(now time.Time) {
	if b.tokens >= b.capacity {
		b.lastRefill = now
		return
	}
	elapsed := now.Sub(b.lastRefill)
	if elapsed < b.interval {
		return
	}
	n := int(elapsed / b.interval)
	b.tokens += n
	if b.tokens >= b.capacity {
		b.tokens = b.capacity
		b.lastRefill = now
		return
	}
	b.lastRefill = b.lastRefill.Add(time.Duration(n) * b.interval)
}

func (b *Bucket) available(now time.Time) int {
	b.refill(now)
	return b.tokens
}

func (b *Bucket) take() {
	b.tokens--
}

func (b *Bucket) full(now time.Time) bool {
	return b.available(now) >= b.capacity
}

// Tokens reports the tokens available at now.
func (b *Bucket) Tokens(now time.Time) int {
	return b.available(now)
}

// TryTake takes a token if one is available.
func (b *Bucket) TryTake(now time.Time) bool {
	if b.available(now) < 1 {
		return false
	}
	b.take()
	return true
}
