package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/grievancegenie/platform/internal/complaint/domain"
	"github.com/grievancegenie/platform/internal/evidence"
	"github.com/grievancegenie/platform/internal/rewards"
	"github.com/grievancegenie/platform/internal/shared/config"
	apperrors "github.com/grievancegenie/platform/internal/shared/errors"
	"github.com/grievancegenie/platform/internal/shared/events"
	"github.com/grievancegenie/platform/internal/shared/metrics"
	"github.com/grievancegenie/platform/internal/shared/types"
	"github.com/grievancegenie/platform/internal/verification"
	"github.com/grievancegenie/platform/internal/workforce"
)

const eventSource = "complaint-service"

// Event types published on the bus.
const (
	EventEvidenceDecided = "evidence.decided"
	EventVoteRecorded    = "vote.recorded"
	EventRewardCredited  = "reward.credited"
	// Timeline entries are published as "complaint.<trigger>".
	timelinePrefix = "complaint."
)

// Config holds the lifecycle timings.
type Config struct {
	ArchiveAfter      time.Duration
	ValidationTimeout time.Duration
	SweepInterval     time.Duration
}

func ConfigFrom(lc config.LifecycleConfig, ev config.EvidenceConfig) Config {
	return Config{
		ArchiveAfter:      lc.ArchiveAfter,
		ValidationTimeout: ev.ValidationTimeout,
		SweepInterval:     lc.SweepInterval,
	}
}

// Deps are the collaborators of the service.
type Deps struct {
	Repo      domain.Repository
	Validator *evidence.Validator
	Votes     *verification.Ledger
	Consensus verification.Policy
	Rewards   *rewards.Ledger
	Workers   *workforce.Registry
	Bus       events.EventBus
}

// Service drives complaints through their lifecycle. Mutations of one
// complaint are serialized by a per-id lock and persisted with a version
// compare-and-swap.
type Service struct {
	repo      domain.Repository
	validator *evidence.Validator
	votes     *verification.Ledger
	consensus verification.Policy
	rewards   *rewards.Ledger
	workers   *workforce.Registry
	bus       events.EventBus
	cfg       Config
	locks     *keyedMutex
	now       func() time.Time
	log       *slog.Logger
}

type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(log *slog.Logger, deps Deps, cfg Config, opts ...Option) *Service {
	s := &Service{
		repo:      deps.Repo,
		validator: deps.Validator,
		votes:     deps.Votes,
		consensus: deps.Consensus,
		rewards:   deps.Rewards,
		workers:   deps.Workers,
		bus:       deps.Bus,
		cfg:       cfg,
		locks:     newKeyedMutex(),
		now:       time.Now,
		log:       log.With("service", "complaint"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TimelinePayload is the data of a published timeline event.
type TimelinePayload struct {
	ComplaintID string             `json:"complaint_id"`
	ReporterID  string             `json:"reporter_id"`
	WorkerID    string             `json:"worker_id,omitempty"`
	Seq         int                `json:"seq"`
	From        domain.Status      `json:"from"`
	To          domain.Status      `json:"to"`
	Trigger     domain.Trigger     `json:"trigger"`
	Description string             `json:"description"`
	CloseReason domain.CloseReason `json:"close_reason,omitempty"`
}

// mutate runs fn on a fresh copy of the complaint while holding its lock and
// stores the result if fn changed it. It returns the stored complaint and the
// timeline events fn appended.
func (s *Service) mutate(ctx context.Context, id types.ComplaintID, expected *uint64, fn func(c *domain.Complaint) error) (*domain.Complaint, []domain.TimelineEvent, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if expected != nil && *expected != c.Version {
		s.stale(ctx, c, *expected)
		return nil, nil, apperrors.StaleVersion(id.String(), *expected, c.Version)
	}

	base := c.Version
	seen := len(c.Timeline)
	if err := fn(c); err != nil {
		if apperrors.Is(err, apperrors.ErrInvalidTransition) {
			s.anomaly(ctx, c, err)
		}
		return nil, nil, err
	}
	if c.Version == base {
		return c, nil, nil
	}

	if err := s.repo.Update(ctx, c, base); err != nil {
		if apperrors.Is(err, apperrors.ErrStaleVersion) {
			s.stale(ctx, c, base)
		}
		return nil, nil, err
	}
	return c, c.Timeline[seen:], nil
}

// fire applies trigger when the current status allows it, and otherwise
// records the anomaly and leaves the complaint untouched.
func (s *Service) fire(ctx context.Context, c *domain.Complaint, trigger domain.Trigger, actor domain.Actor, description string, at time.Time) bool {
	if err := c.Fire(trigger, actor, description, at); err != nil {
		s.anomaly(ctx, c, err)
		return false
	}
	return true
}

func (s *Service) anomaly(ctx context.Context, c *domain.Complaint, err error) {
	trigger := ""
	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		trigger = appErr.Details["trigger"]
	}
	metrics.RecordTransitionAnomaly(string(c.Status), trigger, "invalid_transition")
	s.log.WarnContext(ctx, "invalid lifecycle transition ignored",
		slog.String("complaint_id", c.ID.String()),
		slog.String("status", string(c.Status)),
		slog.String("trigger", trigger),
		slog.Uint64("version", c.Version),
	)
}

func (s *Service) stale(ctx context.Context, c *domain.Complaint, expected uint64) {
	metrics.RecordTransitionAnomaly(string(c.Status), "", "stale_version")
	s.log.WarnContext(ctx, "stale complaint version rejected",
		slog.String("complaint_id", c.ID.String()),
		slog.Uint64("expected", expected),
		slog.Uint64("actual", c.Version),
	)
}

// publishTimeline emits one event per appended timeline entry.
func (s *Service) publishTimeline(ctx context.Context, c *domain.Complaint, added []domain.TimelineEvent) {
	for _, e := range added {
		from := e.Status
		if e.Seq >= 2 {
			from = c.Timeline[e.Seq-2].Status
		}
		if e.Trigger != domain.TriggerReported {
			metrics.RecordTransition(string(from), string(e.Status), string(e.Trigger))
		}

		payload := TimelinePayload{
			ComplaintID: c.ID.String(),
			ReporterID:  c.ReporterID,
			Seq:         e.Seq,
			From:        from,
			To:          e.Status,
			Trigger:     e.Trigger,
			Description: e.Description,
		}
		if e.Status == domain.StatusClosed {
			payload.CloseReason = c.CloseReason
		}
		if c.AssignedWorker != nil {
			payload.WorkerID = c.AssignedWorker.String()
		}
		s.publish(ctx, events.NewEvent(timelinePrefix+string(e.Trigger), eventSource, payload).
			WithSubject(c.ID.String(), c.Version).
			WithActor(e.Actor.ID, e.Actor.Role).
			At(e.OccurredAt))
	}
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, e); err != nil {
		s.log.ErrorContext(ctx, "failed to publish event",
			slog.String("event_type", e.Type),
			slog.String("complaint_id", e.Subject),
			slog.Any("error", err),
		)
	}
}

// credit applies a reward and publishes the delta when it was new.
func (s *Service) credit(ctx context.Context, c *domain.Complaint, a rewards.Activity) {
	if s.rewards == nil {
		return
	}
	d, credited, err := s.rewards.Apply(ctx, a)
	if err != nil {
		s.log.ErrorContext(ctx, "failed to credit reward",
			slog.String("complaint_id", a.ComplaintID),
			slog.String("event_type", string(a.Type)),
			slog.Any("error", err),
		)
		return
	}
	if !credited {
		return
	}
	s.publish(ctx, events.NewEvent(EventRewardCredited, eventSource, d).
		WithSubject(c.ID.String(), c.Version).
		WithActor(d.UserID, "").
		At(d.CreditedAt))
}
