package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grievancegenie/platform/internal/complaint/domain"
	"github.com/grievancegenie/platform/internal/rewards"
	apperrors "github.com/grievancegenie/platform/internal/shared/errors"
	"github.com/grievancegenie/platform/internal/shared/events"
	"github.com/grievancegenie/platform/internal/shared/types"
	"github.com/grievancegenie/platform/internal/verification"
)

// VoteResult is returned to the voter.
type VoteResult struct {
	ComplaintID string                `json:"complaint_id"`
	Tally       verification.Tally    `json:"tally"`
	Decision    verification.Decision `json:"decision"`
	Replaced    bool                  `json:"replaced"`
	Status      domain.Status         `json:"status"`
	Version     uint64                `json:"version"`
}

type votePayload struct {
	VoterID  string               `json:"voter_id"`
	Verdict  verification.Verdict `json:"verdict"`
	Replaced bool                 `json:"replaced"`
	Tally    verification.Tally   `json:"tally"`
}

// CastVote records a community verdict on a verifying complaint and applies
// the consensus outcome once the complaint is eligible.
func (s *Service) CastVote(ctx context.Context, actor domain.Actor, id types.ComplaintID, verdict verification.Verdict, version *uint64) (VoteResult, error) {
	verdict, err := verification.ParseVerdict(string(verdict))
	if err != nil {
		return VoteResult{}, apperrors.Validation("invalid verdict", map[string]string{"verdict": err.Error()})
	}

	var (
		res      VoteResult
		acquired *types.ID
	)
	c, added, err := s.mutate(ctx, id, version, func(c *domain.Complaint) error {
		if c.Status != domain.StatusVerifying {
			return apperrors.InvalidTransition(c.ID.String(), string(c.Status), "vote_submitted")
		}
		if actor.ID == c.ReporterID {
			return apperrors.Forbidden("reporters cannot vote on their own complaint")
		}

		now := s.now()
		submitted, err := s.votes.Submit(ctx, c.ID.String(), actor.ID, verdict, now)
		if err != nil {
			return err
		}
		res.Replaced = submitted.Replaced
		c.SetTally(submitted.Tally, now)

		res.Decision, acquired = s.applyConsensus(ctx, c, now)
		return nil
	})
	if err != nil {
		if acquired != nil {
			s.dispatch(ctx, *acquired)
		}
		return VoteResult{}, err
	}

	res.ComplaintID = c.ID.String()
	res.Tally = c.Tally
	res.Status = c.Status
	res.Version = c.Version

	s.publish(ctx, events.NewEvent(EventVoteRecorded, eventSource, votePayload{
		VoterID:  actor.ID,
		Verdict:  verdict,
		Replaced: res.Replaced,
		Tally:    c.Tally,
	}).WithSubject(c.ID.String(), c.Version).WithActor(actor.ID, actor.Role))
	s.publishTimeline(ctx, c, added)
	s.credit(ctx, c, rewards.Activity{
		Type:        rewards.EventVote,
		ComplaintID: c.ID.String(),
		UserID:      actor.ID,
		OccurredAt:  s.now(),
	})
	return res, nil
}

// applyConsensus evaluates the stored tally and fires the matching trigger.
// When the complaint moves to assigned a worker is picked or the complaint
// is queued; the picked worker is returned so a failed commit can free it.
func (s *Service) applyConsensus(ctx context.Context, c *domain.Complaint, at time.Time) (verification.Decision, *types.ID) {
	d := s.consensus.Evaluate(c.Tally, c.Severity)

	switch d.Outcome {
	case verification.OutcomeAssign:
		desc := fmt.Sprintf("community verified: %d yes, %d no, %d unsure (crowd score %d)",
			d.Tally.Yes, d.Tally.No, d.Tally.Unsure, d.CrowdScore)
		if !s.fire(ctx, c, domain.TriggerConsensusAssign, domain.System, desc, at) {
			return d, nil
		}
		return d, s.pickWorker(ctx, c, at)
	case verification.OutcomeReview:
		desc := fmt.Sprintf("community disputed: %d yes, %d no, %d unsure, sent to officer review",
			d.Tally.Yes, d.Tally.No, d.Tally.Unsure)
		s.fire(ctx, c, domain.TriggerConsensusReview, domain.System, desc, at)
	}
	return d, nil
}

// pickWorker binds the longest-idle available worker to an assigned
// complaint, or leaves it queued.
func (s *Service) pickWorker(ctx context.Context, c *domain.Complaint, at time.Time) *types.ID {
	if s.workers == nil {
		return nil
	}
	w, ok := s.workers.Acquire(c.ID.String())
	if !ok {
		return nil
	}
	if _, err := c.AssignWorker(w.ID, domain.System, at); err != nil {
		s.anomaly(ctx, c, err)
		s.workers.Release(w.ID)
		return nil
	}
	s.log.InfoContext(ctx, "worker assigned",
		slog.String("complaint_id", c.ID.String()),
		slog.String("worker_id", w.ID.String()),
	)
	return &w.ID
}
