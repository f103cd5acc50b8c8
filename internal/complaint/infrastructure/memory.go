package infrastructure

import (
	"context"
	"sort"
	"sync"

	"github.com/grievancegenie/platform/internal/complaint/domain"
	"github.com/grievancegenie/platform/internal/shared/errors"
	"github.com/grievancegenie/platform/internal/shared/types"
)

// MemoryRepository keeps complaints in a map. Callers always get copies.
type MemoryRepository struct {
	mu         sync.RWMutex
	complaints map[types.ComplaintID]*domain.Complaint
	sequences  map[int]int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		complaints: make(map[types.ComplaintID]*domain.Complaint),
		sequences:  make(map[int]int64),
	}
}

func (r *MemoryRepository) NextID(_ context.Context, year int) (types.ComplaintID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sequences[year]++
	return types.NewComplaintID(year, r.sequences[year]), nil
}

func (r *MemoryRepository) Create(_ context.Context, c *domain.Complaint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.complaints[c.ID]; ok {
		return errors.Conflict("complaint with this id already exists")
	}
	r.complaints[c.ID] = c.Clone()
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id types.ComplaintID) (*domain.Complaint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.complaints[id]
	if !ok {
		return nil, errors.NotFound("complaint", id.String())
	}
	return c.Clone(), nil
}

func (r *MemoryRepository) Update(_ context.Context, c *domain.Complaint, expected uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.complaints[c.ID]
	if !ok {
		return errors.NotFound("complaint", c.ID.String())
	}
	if stored.Version != expected {
		return errors.StaleVersion(c.ID.String(), expected, stored.Version)
	}
	r.complaints[c.ID] = c.Clone()
	return nil
}

func (r *MemoryRepository) List(_ context.Context, f domain.ListFilter) ([]domain.Complaint, error) {
	r.mu.RLock()
	out := make([]domain.Complaint, 0, len(r.complaints))
	for _, c := range r.complaints {
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		if f.ReporterID != "" && c.ReporterID != f.ReporterID {
			continue
		}
		out = append(out, *c.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []domain.Complaint{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

var _ domain.Repository = (*MemoryRepository)(nil)
