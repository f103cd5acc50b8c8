package service

import (
	"context"
	"log/slog"

	"github.com/grievancegenie/platform/internal/complaint/domain"
	"github.com/grievancegenie/platform/internal/shared/metrics"
	"github.com/grievancegenie/platform/internal/shared/types"
	"github.com/grievancegenie/platform/internal/verification"
)

// Report files a new complaint in reported state.
func (s *Service) Report(ctx context.Context, actor domain.Actor, in domain.NewComplaint) (*domain.Complaint, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := s.now()

	id, err := s.repo.NextID(ctx, now.Year())
	if err != nil {
		return nil, err
	}
	c, err := domain.Report(id, in, actor, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	metrics.RecordComplaintReported(c.Category, string(c.Severity))
	s.log.InfoContext(ctx, "complaint reported",
		slog.String("complaint_id", c.ID.String()),
		slog.String("category", c.Category),
		slog.String("severity", string(c.Severity)),
	)
	s.publishTimeline(ctx, c, c.Timeline)
	return c, nil
}

func (s *Service) Get(ctx context.Context, id types.ComplaintID) (*domain.Complaint, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.Complaint, error) {
	return s.repo.List(ctx, filter)
}

// TallyView is the current vote count and what consensus makes of it.
type TallyView struct {
	ComplaintID string                `json:"complaint_id"`
	Status      domain.Status         `json:"status"`
	Decision    verification.Decision `json:"decision"`
}

// Tally recomputes the vote counts from the stored votes.
func (s *Service) Tally(ctx context.Context, id types.ComplaintID) (TallyView, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return TallyView{}, err
	}
	t, err := s.votes.Tally(ctx, id.String())
	if err != nil {
		return TallyView{}, err
	}
	return TallyView{
		ComplaintID: id.String(),
		Status:      c.Status,
		Decision:    s.consensus.Evaluate(t, c.Severity),
	}, nil
}
