package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestTokenBucketRefills(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tb := newTokenBucket(2, 1, clock.Now)

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	clock.Advance(500 * time.Millisecond)
	assert.False(t, tb.Allow())

	clock.Advance(500 * time.Millisecond)
	assert.True(t, tb.Allow())

	clock.Advance(time.Hour)
	assert.InDelta(t, 2, tb.Available(), 0.0001, "never refills past capacity")

	tb.AllowN(2)
	tb.Reset()
	assert.InDelta(t, 2, tb.Available(), 0.0001)
}

func TestIPRateLimiterIsolatesClients(t *testing.T) {
	ipl := NewIPRateLimiter(1, 0.001, time.Minute)
	defer ipl.Stop()

	assert.True(t, ipl.Allow("10.0.0.1"))
	assert.False(t, ipl.Allow("10.0.0.1"))
	assert.True(t, ipl.Allow("10.0.0.2"))
}

func TestIPRateLimiterEvictsIdleClients(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	ipl := NewIPRateLimiter(1, 0.001, time.Minute)
	defer ipl.Stop()
	ipl.now = clock.Now

	ipl.Allow("10.0.0.1")
	clock.Advance(30 * time.Second)
	ipl.Allow("10.0.0.2")
	clock.Advance(45 * time.Second)

	ipl.evictIdle()
	assert.Equal(t, 1, ipl.Len())
	assert.True(t, ipl.Allow("10.0.0.1"), "evicted client starts with a full bucket")

	ipl.Stop()
}
