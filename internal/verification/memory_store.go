package verification

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps votes in a map keyed by complaint then voter.
type MemoryStore struct {
	mu    sync.RWMutex
	votes map[string]map[string]Vote
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{votes: make(map[string]map[string]Vote)}
}

func (s *MemoryStore) Upsert(_ context.Context, v Vote) (*Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byVoter, ok := s.votes[v.ComplaintID]
	if !ok {
		byVoter = make(map[string]Vote)
		s.votes[v.ComplaintID] = byVoter
	}

	var prev *Vote
	if old, ok := byVoter[v.VoterID]; ok {
		prev = &old
	}
	byVoter[v.VoterID] = v
	return prev, nil
}

func (s *MemoryStore) List(_ context.Context, complaintID string) ([]Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Vote, 0, len(s.votes[complaintID]))
	for _, v := range s.votes[complaintID] {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VoterID < out[j].VoterID })
	return out, nil
}
