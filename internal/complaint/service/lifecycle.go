package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/grievancegenie/platform/internal/complaint/domain"
	"github.com/grievancegenie/platform/internal/rewards"
	apperrors "github.com/grievancegenie/platform/internal/shared/errors"
	"github.com/grievancegenie/platform/internal/shared/types"
)

// OfficerDecision settles a complaint under review.
func (s *Service) OfficerDecision(ctx context.Context, actor domain.Actor, id types.ComplaintID, approve bool, note string, version *uint64) (*domain.Complaint, error) {
	var acquired *types.ID
	c, added, err := s.mutate(ctx, id, version, func(c *domain.Complaint) error {
		now := s.now()
		if !approve {
			return c.Fire(domain.TriggerOfficerReject, actor, withNote("rejected by officer", note), now)
		}
		if err := c.Fire(domain.TriggerOfficerApprove, actor, withNote("approved by officer", note), now); err != nil {
			return err
		}
		acquired = s.pickWorker(ctx, c, now)
		return nil
	})
	if err != nil {
		if acquired != nil {
			s.dispatch(ctx, *acquired)
		}
		return nil, err
	}
	s.publishTimeline(ctx, c, added)
	return c, nil
}

// AssignWorker assigns or reassigns a worker. The most recent assignment
// wins and the previous worker is freed.
func (s *Service) AssignWorker(ctx context.Context, actor domain.Actor, id types.ComplaintID, workerID types.ID, version *uint64) (*domain.Complaint, error) {
	if _, err := s.workers.Get(workerID); err != nil {
		return nil, err
	}

	var (
		prev  *types.ID
		bound bool
	)
	c, added, err := s.mutate(ctx, id, version, func(c *domain.Complaint) error {
		if c.Status != domain.StatusAssigned && c.Status != domain.StatusInProgress {
			return apperrors.InvalidTransition(c.ID.String(), string(c.Status), string(domain.TriggerWorkerAssigned))
		}
		if c.AssignedWorker != nil && *c.AssignedWorker == workerID {
			return nil
		}
		if _, err := s.workers.AssignTo(workerID, c.ID.String()); err != nil {
			return err
		}
		bound = true

		var err error
		prev, err = c.AssignWorker(workerID, actor, s.now())
		return err
	})
	if err != nil {
		if bound {
			s.dispatch(ctx, workerID)
		}
		return nil, err
	}

	s.publishTimeline(ctx, c, added)
	if prev != nil {
		s.dispatch(ctx, *prev)
	}
	return c, nil
}

// StartWork moves an assigned complaint to in_progress. Workers can only
// start their own assignment.
func (s *Service) StartWork(ctx context.Context, actor domain.Actor, id types.ComplaintID, version *uint64) (*domain.Complaint, error) {
	c, added, err := s.mutate(ctx, id, version, func(c *domain.Complaint) error {
		if c.Status == domain.StatusAssigned && c.AssignedWorker == nil {
			return apperrors.Conflict("no worker assigned yet")
		}
		if actor.Role == domain.RoleWorker && c.AssignedWorker != nil && actor.ID != c.AssignedWorker.String() {
			return apperrors.Forbidden("complaint is assigned to another worker")
		}
		return c.Fire(domain.TriggerWorkStarted, actor, "work started", s.now())
	})
	if err != nil {
		return nil, err
	}
	s.publishTimeline(ctx, c, added)
	return c, nil
}

// SubmitRating stores the reporter's rating of a resolved complaint.
func (s *Service) SubmitRating(ctx context.Context, actor domain.Actor, id types.ComplaintID, r domain.Rating, version *uint64) (*domain.Complaint, error) {
	c, added, err := s.mutate(ctx, id, version, func(c *domain.Complaint) error {
		if actor.ID != c.ReporterID {
			return apperrors.Forbidden("only the reporter can rate the resolution")
		}
		return c.Rate(r, actor, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.publishTimeline(ctx, c, added)
	s.credit(ctx, c, rewards.Activity{
		Type:        rewards.EventRating,
		ComplaintID: c.ID.String(),
		UserID:      c.ReporterID,
		Overall:     c.Rating.Overall,
		Tags:        c.Rating.Tags,
		OccurredAt:  c.Rating.SubmittedAt,
	})
	return c, nil
}

// ShareSuccess records that the reporter shared a resolved complaint.
func (s *Service) ShareSuccess(ctx context.Context, actor domain.Actor, id types.ComplaintID, channel string) (*domain.Complaint, error) {
	c, added, err := s.mutate(ctx, id, nil, func(c *domain.Complaint) error {
		if actor.ID != c.ReporterID {
			return apperrors.Forbidden("only the reporter can share the resolution")
		}
		return c.Fire(domain.TriggerShared, actor, withNote("resolution shared", channel), s.now())
	})
	if err != nil {
		return nil, err
	}

	s.publishTimeline(ctx, c, added)
	s.credit(ctx, c, rewards.Activity{
		Type:        rewards.EventShare,
		ComplaintID: c.ID.String(),
		UserID:      c.ReporterID,
		OccurredAt:  c.LastEvent().OccurredAt,
	})
	return c, nil
}

// dispatch frees a worker and hands it the oldest queued complaint.
func (s *Service) dispatch(ctx context.Context, workerID types.ID) {
	if s.workers == nil {
		return
	}
	next, ok := s.workers.Release(workerID)
	if !ok {
		return
	}
	if _, err := s.assignQueued(ctx, types.ComplaintID(next)); err != nil {
		s.log.ErrorContext(ctx, "failed to assign queued complaint",
			slog.String("complaint_id", next),
			slog.Any("error", err),
		)
	}
}

// assignQueued picks a worker for an assigned complaint that has none.
func (s *Service) assignQueued(ctx context.Context, id types.ComplaintID) (bool, error) {
	var acquired *types.ID
	c, added, err := s.mutate(ctx, id, nil, func(c *domain.Complaint) error {
		if c.Status != domain.StatusAssigned || c.AssignedWorker != nil {
			s.workers.Unqueue(id.String())
			return nil
		}
		acquired = s.pickWorker(ctx, c, s.now())
		return nil
	})
	if err != nil {
		if acquired != nil {
			s.workers.Release(*acquired)
		}
		return false, err
	}
	s.publishTimeline(ctx, c, added)
	return acquired != nil, nil
}

// DrainQueue hands queued complaints to available workers, oldest first.
// Complaints that still find no worker keep their queue position.
func (s *Service) DrainQueue(ctx context.Context) (int, error) {
	if s.workers == nil {
		return 0, nil
	}
	assigned := 0
	for _, id := range s.workers.Queued() {
		ok, err := s.assignQueued(ctx, types.ComplaintID(id))
		if err != nil {
			return assigned, err
		}
		if ok {
			assigned++
		}
	}
	return assigned, nil
}

func withNote(desc, note string) string {
	if note == "" {
		return desc
	}
	return fmt.Sprintf("%s: %s", desc, note)
}
