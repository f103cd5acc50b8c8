package rewards

import (
	"context"
	"sort"
	"sync"
)

// Store persists credited deltas.
type Store interface {
	// Credit stores d unless its key is already present. It reports whether
	// d was stored.
	Credit(ctx context.Context, d Delta) (bool, error)
	Total(ctx context.Context, userID string) (int, error)
	Top(ctx context.Context, n int) ([]Standing, error)
}

type MemoryStore struct {
	mu     sync.RWMutex
	keys   map[string]Delta
	totals map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys:   make(map[string]Delta),
		totals: make(map[string]int),
	}
}

func (s *MemoryStore) Credit(_ context.Context, d Delta) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[d.Key]; ok {
		return false, nil
	}
	s.keys[d.Key] = d
	s.totals[d.UserID] += d.Points
	return true, nil
}

func (s *MemoryStore) Total(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totals[userID], nil
}

func (s *MemoryStore) Top(_ context.Context, n int) ([]Standing, error) {
	s.mu.RLock()
	out := make([]Standing, 0, len(s.totals))
	for user, pts := range s.totals {
		out = append(out, Standing{UserID: user, Points: pts})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].UserID < out[j].UserID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}
