package evidence

import (
	"context"
	"sort"
	"sync"
	"time"
)

// IndexEntry is one accepted photo in the duplicate index.
type IndexEntry struct {
	Fingerprint Fingerprint `json:"-"`
	PhotoID     string      `json:"photo_id"`
	ComplaintID string      `json:"complaint_id"`
	Kind        Kind        `json:"kind"`
	AddedAt     time.Time   `json:"added_at"`
}

// Match is an index entry at or above the similarity threshold.
type Match struct {
	Entry      IndexEntry
	Similarity float64
}

// DuplicateIndex stores fingerprints of accepted photos. Implementations are
// safe for concurrent use; an insert may become visible to lookups late.
type DuplicateIndex interface {
	// Lookup returns matches with similarity >= threshold, best first.
	Lookup(ctx context.Context, fp Fingerprint, threshold float64) ([]Match, error)
	Insert(ctx context.Context, entry IndexEntry) error
}

// MemoryIndex is an in-process DuplicateIndex.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries []IndexEntry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (m *MemoryIndex) Lookup(_ context.Context, fp Fingerprint, threshold float64) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return matchEntries(m.entries, fp, threshold), nil
}

func (m *MemoryIndex) Insert(_ context.Context, entry IndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.PhotoID == entry.PhotoID {
			return nil
		}
	}
	m.entries = append(m.entries, entry)
	return nil
}

// Len returns the number of indexed photos.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func matchEntries(entries []IndexEntry, fp Fingerprint, threshold float64) []Match {
	var out []Match
	for _, e := range entries {
		if s := Similarity(fp, e.Fingerprint); s >= threshold {
			out = append(out, Match{Entry: e, Similarity: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	return out
}
