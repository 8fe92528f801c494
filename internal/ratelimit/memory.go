package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int
	start time.Time
}

// MemoryStore keeps counters in process memory. Expired windows are
// replaced lazily on the next request and removed by Sweep.
type MemoryStore struct {
	policy Policy
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryStore creates a MemoryStore enforcing p.
func NewMemoryStore(p Policy) *MemoryStore {
	return &MemoryStore{
		policy:  p,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// Take counts one request for key.
func (s *MemoryStore) Take(_ context.Context, key string) (Result, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.start.Add(s.policy.Window)) {
		w = &window{start: now}
		s.windows[key] = w
	}
	w.count++

	return s.policy.result(w.count, w.start.Add(s.policy.Window)), nil
}

// Sweep deletes windows that have expired and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		if !now.Before(w.start.Add(s.policy.Window)) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Run sweeps expired windows every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
