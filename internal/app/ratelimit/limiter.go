package ratelimit

import (
	"context"
	"sync"
	"time"

	"contest_judge/internal/platform/observability"
)

type Config struct {
	GlobalCapacity int
	GlobalInterval time.Duration
	UserCapacity   int
	UserInterval   time.Duration
}

func DefaultConfig() Config {
	return Config{
		GlobalCapacity: 5,
		GlobalInterval: 2 * time.Second,
		UserCapacity:   10,
		UserInterval:   5 * time.Second,
	}
}

// Limiter admits a submission only when both the process-wide bucket and the
// submitter's own bucket have a token. Rejections consume nothing.
type Limiter struct {
	mu     sync.Mutex
	cfg    Config
	now    func() time.Time
	global *Bucket
	users  map[string]*Bucket
}

type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{cfg: cfg, now: time.Now, users: make(map[string]*Bucket)}
	for _, opt := range opts {
		opt(l)
	}
	l.global = NewBucket(cfg.GlobalCapacity, cfg.GlobalInterval, l.now())
	return l
}

func (l *Limiter) TryAdmit(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	user, ok := l.users[userID]
	if !ok {
		user = NewBucket(l.cfg.UserCapacity, l.cfg.UserInterval, now)
		l.users[userID] = user
	}

	if l.global.available(now) < 1 {
		observability.Default.IncCounter("rate_limited_total", map[string]string{"bucket": "global"}, 1)
		return false
	}
	if user.available(now) < 1 {
		observability.Default.IncCounter("rate_limited_total", map[string]string{"bucket": "user"}, 1)
		return false
	}
	l.global.take()
	user.take()
	return true
}

// Prune drops per-user buckets that have refilled completely. A fresh bucket
// starts full, so dropping one changes nothing observable.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, b := range l.users {
		if b.full(now) {
			delete(l.users, id)
			removed++
		}
	}
	return removed
}

func (l *Limiter) trackedUsers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}

// RunJanitor prunes idle buckets every interval until ctx is done.
func (l *Limiter) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}
