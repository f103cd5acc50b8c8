package domain

import (
	"context"

	"github.com/grievancegenie/platform/internal/shared/types"
)

// Repository persists complaints.
type Repository interface {
	// NextID reserves the next GG-<year>-<seq> identifier.
	NextID(ctx context.Context, year int) (types.ComplaintID, error)
	Create(ctx context.Context, c *Complaint) error
	Get(ctx context.Context, id types.ComplaintID) (*Complaint, error)
	// Update stores c if the stored version still equals expected, and
	// fails with a StaleVersion error otherwise.
	Update(ctx context.Context, c *Complaint, expected uint64) error
	List(ctx context.Context, filter ListFilter) ([]Complaint, error)
}

type ListFilter struct {
	Status     *Status `json:"status,omitempty"`
	ReporterID string  `json:"reporter_id,omitempty"`
	Limit      int     `json:"limit,omitempty"`
	Offset     int     `json:"offset,omitempty"`
}
