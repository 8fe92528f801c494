package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
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
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestMemoryStore(limit int, window time.Duration) (*MemoryStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(Policy{Limit: limit, Window: window})
	s.now = clock.Now
	return s, clock
}

func TestMemoryStore_AdmitsUpToLimit(t *testing.T) {
	s, _ := newTestMemoryStore(1000, 15*time.Minute)
	ctx := context.Background()

	for i := 1; i <= 1000; i++ {
		res, err := s.Take(ctx, "203.0.113.7")
		require.NoError(t, err)
		require.Truef(t, res.Allowed, "request %d should be admitted", i)
		require.Equal(t, 1000-i, res.Remaining)
	}

	res, err := s.Take(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, res.Allowed, "request 1001 should be rejected")
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 1000, res.Limit)
}

func TestMemoryStore_WindowResets(t *testing.T) {
	s, clock := newTestMemoryStore(2, time.Minute)
	ctx := context.Background()

	start := clock.Now()
	for range 3 {
		_, err := s.Take(ctx, "a")
		require.NoError(t, err)
	}

	res, err := s.Take(ctx, "a")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, start.Add(time.Minute), res.ResetAt)

	clock.Advance(59 * time.Second)
	res, err = s.Take(ctx, "a")
	require.NoError(t, err)
	assert.False(t, res.Allowed, "window must not reset early")

	clock.Advance(time.Second)
	res, err = s.Take(ctx, "a")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "window resets at its boundary")
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, clock.Now().Add(time.Minute), res.ResetAt)
}

func TestMemoryStore_KeysAreIndependent(t *testing.T) {
	s, clock := newTestMemoryStore(1, time.Minute)
	ctx := context.Background()

	res, err := s.Take(ctx, "a")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	// b's window opens 30s later and expires on its own schedule.
	clock.Advance(30 * time.Second)
	res, err = s.Take(ctx, "b")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = s.Take(ctx, "a")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	clock.Advance(30 * time.Second)
	res, err = s.Take(ctx, "a")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "a's window expired")

	res, err = s.Take(ctx, "b")
	require.NoError(t, err)
	assert.False(t, res.Allowed, "b's window is still open")
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s, _ := newTestMemoryStore(500, time.Minute)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				res, err := s.Take(ctx, "shared")
				if err != nil {
					t.Error(err)
					return
				}
				if res.Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, allowed)
}

func TestMemoryStore_Sweep(t *testing.T) {
	s, clock := newTestMemoryStore(10, time.Minute)
	ctx := context.Background()

	for i := range 5 {
		_, err := s.Take(ctx, fmt.Sprintf("old-%d", i))
		require.NoError(t, err)
	}
	clock.Advance(45 * time.Second)
	_, err := s.Take(ctx, "fresh")
	require.NoError(t, err)
	require.Equal(t, 6, s.Len())

	clock.Advance(15 * time.Second)
	assert.Equal(t, 5, s.Sweep())
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_RunStopsOnCancel(t *testing.T) {
	s, _ := newTestMemoryStore(10, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}

func TestResult_RetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	r := Result{ResetAt: now.Add(90 * time.Second)}
	assert.Equal(t, 90*time.Second, r.RetryAfter(now))

	r = Result{ResetAt: now.Add(-time.Second)}
	assert.Equal(t, time.Duration(0), r.RetryAfter(now))
}
