package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grievancegenie/platform/internal/complaint/domain"
	"github.com/grievancegenie/platform/internal/evidence"
	"github.com/grievancegenie/platform/internal/shared/metrics"
	"github.com/grievancegenie/platform/internal/shared/types"
	"github.com/grievancegenie/platform/internal/verification"
)

// SweepReport counts what one sweep changed.
type SweepReport struct {
	Decided   int `json:"decided"`
	Assigned  int `json:"assigned"`
	Expired   int `json:"expired"`
	Archived  int `json:"archived"`
	Abandoned int `json:"abandoned"`
}

// Sweeper runs Sweep periodically.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	log      *slog.Logger
}

func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{svc: svc, interval: interval, log: svc.log.With("component", "sweeper")}
}

// Start sweeps every interval until ctx is cancelled.
func (w *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.InfoContext(ctx, "sweeper started", slog.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.log.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			report, err := w.svc.Sweep(ctx)
			if err != nil {
				w.log.ErrorContext(ctx, "sweep failed", slog.Any("error", err))
				continue
			}
			if report != (SweepReport{}) {
				w.log.InfoContext(ctx, "sweep completed",
					slog.Int("decided", report.Decided),
					slog.Int("assigned", report.Assigned),
					slog.Int("expired", report.Expired),
					slog.Int("archived", report.Archived),
					slog.Int("abandoned", report.Abandoned),
				)
			}
		}
	}
}

// Sweep resolves time-based lifecycle work and hands queued complaints to
// workers that became available. Each complaint is reloaded under its lock
// and committed with compare-and-swap.
func (s *Service) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	all, err := s.repo.List(ctx, domain.ListFilter{})
	if err != nil {
		return report, fmt.Errorf("list complaints: %w", err)
	}

	for _, c := range all {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if len(c.Validating()) > 0 {
			n, err := s.abandonStale(ctx, c.ID)
			if err != nil {
				s.log.WarnContext(ctx, "abandon sweep failed", slog.String("complaint_id", c.ID.String()), slog.Any("error", err))
			}
			report.Abandoned += n
		}

		switch c.Status {
		case domain.StatusVerifying:
			outcome, err := s.sweepVerifying(ctx, c.ID)
			if err != nil {
				s.log.WarnContext(ctx, "verification sweep failed", slog.String("complaint_id", c.ID.String()), slog.Any("error", err))
				continue
			}
			switch outcome {
			case sweepDecided:
				report.Decided++
			case sweepExpired:
				report.Expired++
			}
		case domain.StatusAssigned:
			if c.AssignedWorker != nil || s.workers == nil {
				continue
			}
			assigned, err := s.assignQueued(ctx, c.ID)
			if err != nil {
				s.log.WarnContext(ctx, "queued assignment failed", slog.String("complaint_id", c.ID.String()), slog.Any("error", err))
				continue
			}
			if assigned {
				report.Assigned++
			}
		case domain.StatusResolved:
			archived, err := s.archive(ctx, c.ID)
			if err != nil {
				s.log.WarnContext(ctx, "archive sweep failed", slog.String("complaint_id", c.ID.String()), slog.Any("error", err))
				continue
			}
			if archived {
				report.Archived++
			}
		}
	}
	return report, nil
}

type sweepOutcome int

const (
	sweepNone sweepOutcome = iota
	sweepDecided
	sweepExpired
)

// sweepVerifying recomputes the tally from the vote store, applies a
// consensus decision if one is due, and otherwise closes the complaint once
// its verification window has run out.
func (s *Service) sweepVerifying(ctx context.Context, id types.ComplaintID) (sweepOutcome, error) {
	outcome := sweepNone
	var acquired *types.ID

	c, added, err := s.mutate(ctx, id, nil, func(c *domain.Complaint) error {
		if c.Status != domain.StatusVerifying {
			return nil
		}
		now := s.now()
		t, err := s.votes.Tally(ctx, c.ID.String())
		if err != nil {
			return err
		}
		c.SetTally(t, now)

		var d verification.Decision
		d, acquired = s.applyConsensus(ctx, c, now)
		if d.Outcome != verification.OutcomePending {
			outcome = sweepDecided
			return nil
		}

		if c.VerifyingSince == nil || !s.consensus.Expired(*c.VerifyingSince, now) {
			return nil
		}
		desc := fmt.Sprintf("%s: %d of %d required votes within %s",
			domain.CloseUnverifiedTimeout, d.Tally.Total, d.Required, s.consensus.Window)
		if s.fire(ctx, c, domain.TriggerVerificationExpired, domain.System, desc, now) {
			outcome = sweepExpired
		}
		return nil
	})
	if err != nil {
		if acquired != nil {
			s.dispatch(ctx, *acquired)
		}
		return sweepNone, err
	}

	switch outcome {
	case sweepDecided:
		metrics.RecordSweepAction("consensus")
	case sweepExpired:
		metrics.RecordSweepAction("unverified_timeout")
		s.log.InfoContext(ctx, "complaint closed unverified",
			slog.String("complaint_id", c.ID.String()),
			slog.Int("votes", c.Tally.Total),
		)
	}
	s.publishTimeline(ctx, c, added)
	return outcome, nil
}

func (s *Service) archive(ctx context.Context, id types.ComplaintID) (bool, error) {
	archived := false
	c, added, err := s.mutate(ctx, id, nil, func(c *domain.Complaint) error {
		now := s.now()
		if c.Status != domain.StatusResolved || c.ResolvedAt == nil || now.Sub(*c.ResolvedAt) <= s.cfg.ArchiveAfter {
			return nil
		}
		archived = s.fire(ctx, c, domain.TriggerArchived, domain.System, "archived after resolution", now)
		return nil
	})
	if err != nil {
		return false, err
	}
	if archived {
		metrics.RecordSweepAction("archive")
	}
	s.publishTimeline(ctx, c, added)
	return archived, nil
}

// abandonStale fails validations that have been running longer than the
// validation timeout.
func (s *Service) abandonStale(ctx context.Context, id types.ComplaintID) (int, error) {
	if s.cfg.ValidationTimeout <= 0 {
		return 0, nil
	}
	n := 0
	_, _, err := s.mutate(ctx, id, nil, func(c *domain.Complaint) error {
		now := s.now()
		for _, ev := range c.Validating() {
			if now.Sub(ev.SubmittedAt) <= s.cfg.ValidationTimeout {
				continue
			}
			changed, err := c.DecideEvidence(evidence.Abandon(ev, now), now)
			if err != nil {
				return err
			}
			if changed {
				n++
				metrics.RecordEvidenceValidation(string(ev.Kind), string(evidence.StatusError), []string{string(evidence.ReasonValidationAbandoned)})
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.RecordSweepAction("validation_abandoned")
	}
	return n, nil
}
