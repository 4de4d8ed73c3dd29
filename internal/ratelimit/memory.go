package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// FixedWindow is the in-process limiter. Counts are per process.
type FixedWindow struct {
	mu      sync.Mutex
	buckets map[string]*window
	max     int
	window  time.Duration
	now     func() time.Time
}

// NewFixedWindow allows max requests per key in every window.
func NewFixedWindow(max int, windowSize time.Duration) *FixedWindow {
	return &FixedWindow{
		buckets: make(map[string]*window),
		max:     max,
		window:  windowSize,
		now:     time.Now,
	}
}

func (l *FixedWindow) Consume(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &window{resetAt: now.Add(l.window)}
		l.buckets[key] = b
	}
	b.count++
	return result(b.count, l.max, b.resetAt.Sub(now)), nil
}

// Sweep drops buckets whose window has ended and returns how many were removed.
func (l *FixedWindow) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Run sweeps expired buckets every interval until ctx is done.
func (l *FixedWindow) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = l.window
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
