package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
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

func newTestLimiter(maxRequests int, window time.Duration) (*SlidingWindow, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	l := NewSlidingWindow(maxRequests, window)
	l.now = clock.Now
	return l, clock
}

func TestSlidingWindow_Allow(t *testing.T) {
	t.Run("admits up to the limit and rejects the rest", func(t *testing.T) {
		l, _ := newTestLimiter(3, time.Second)

		assert.True(t, l.Allow("10.0.0.1"))
		assert.True(t, l.Allow("10.0.0.1"))
		assert.True(t, l.Allow("10.0.0.1"))
		assert.False(t, l.Allow("10.0.0.1"))
	})

	t.Run("admits again after the window passes", func(t *testing.T) {
		l, clock := newTestLimiter(3, time.Second)

		for i := 0; i < 3; i++ {
			assert.True(t, l.Allow("10.0.0.1"))
		}
		assert.False(t, l.Allow("10.0.0.1"))

		clock.Advance(1001 * time.Millisecond)

		assert.True(t, l.Allow("10.0.0.1"))
	})

	t.Run("rejected attempts are not recorded", func(t *testing.T) {
		l, clock := newTestLimiter(1, time.Second)

		assert.True(t, l.Allow("10.0.0.1"))

		// Hammering while limited must not extend the lockout.
		for i := 0; i < 10; i++ {
			assert.False(t, l.Allow("10.0.0.1"))
			clock.Advance(50 * time.Millisecond)
		}

		clock.Advance(501 * time.Millisecond)
		assert.True(t, l.Allow("10.0.0.1"))
	})

	t.Run("identifiers are independent", func(t *testing.T) {
		l, _ := newTestLimiter(1, time.Second)

		assert.True(t, l.Allow("10.0.0.1"))
		assert.False(t, l.Allow("10.0.0.1"))
		assert.True(t, l.Allow("10.0.0.2"))
	})

	t.Run("partial window expiry frees slots gradually", func(t *testing.T) {
		l, clock := newTestLimiter(2, time.Second)

		assert.True(t, l.Allow("10.0.0.1"))
		clock.Advance(600 * time.Millisecond)
		assert.True(t, l.Allow("10.0.0.1"))
		assert.False(t, l.Allow("10.0.0.1"))

		// First timestamp falls out, second is still in the window.
		clock.Advance(500 * time.Millisecond)
		assert.True(t, l.Allow("10.0.0.1"))
		assert.False(t, l.Allow("10.0.0.1"))
	})
}

func TestSlidingWindow_ConcurrentAllow(t *testing.T) {
	const limit = 10
	const attempts = 100

	l, _ := newTestLimiter(limit, time.Minute)

	var admitted atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("10.0.0.1") {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), admitted.Load())
}

func TestSlidingWindow_Sweep(t *testing.T) {
	l, clock := newTestLimiter(3, time.Second)

	l.Allow("10.0.0.1")
	l.Allow("10.0.0.2")

	clock.Advance(2 * time.Second)
	l.Allow("10.0.0.3")

	l.sweep()

	l.mu.Lock()
	defer l.mu.Unlock()

	assert.NotContains(t, l.requests, "10.0.0.1")
	assert.NotContains(t, l.requests, "10.0.0.2")
	assert.Contains(t, l.requests, "10.0.0.3")
}
