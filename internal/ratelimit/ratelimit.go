package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultSweepInterval is how often Sweep prunes idle identifiers.
const DefaultSweepInterval = time.Minute

// SlidingWindow is an in-process, per-identifier sliding-window limiter.
// Admission depends on the count of requests within the trailing window,
// recomputed on each call. State is process-local: with multiple server
// instances the effective global rate is instances times maxRequests.
type SlidingWindow struct {
	mu          sync.Mutex
	window      time.Duration
	maxRequests int
	requests    map[string][]time.Time

	// now is swappable for tests.
	now func() time.Time
}

func NewSlidingWindow(maxRequests int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		window:      window,
		maxRequests: maxRequests,
		requests:    make(map[string][]time.Time),
		now:         time.Now,
	}
}

// Allow reports whether a request for the identifier is admitted. The
// window check and the append are a single atomic unit under the lock, so
// two concurrent requests can't both take the last slot. Rejected
// attempts are not recorded.
func (l *SlidingWindow) Allow(identifier string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	timestamps := prune(l.requests[identifier], now.Add(-l.window))

	if len(timestamps) >= l.maxRequests {
		l.requests[identifier] = timestamps
		return false
	}

	l.requests[identifier] = append(timestamps, now)

	return true
}

// Sweep periodically drops identifiers whose window is empty, bounding
// memory to active identifiers. It blocks until ctx is cancelled.
func (l *SlidingWindow) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *SlidingWindow) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	windowStart := l.now().Add(-l.window)

	for identifier, timestamps := range l.requests {
		timestamps = prune(timestamps, windowStart)
		if len(timestamps) == 0 {
			delete(l.requests, identifier)
			continue
		}
		l.requests[identifier] = timestamps
	}
}

// prune drops timestamps at or before windowStart. Timestamps are
// appended in order, so the first one inside the window marks the cut.
func prune(timestamps []time.Time, windowStart time.Time) []time.Time {
	for i, ts := range timestamps {
		if ts.After(windowStart) {
			return timestamps[i:]
		}
	}

	return timestamps[:0]
}
