package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grievancegenie/platform/internal/complaint/domain"
	"github.com/grievancegenie/platform/internal/evidence"
	"github.com/grievancegenie/platform/internal/rewards"
	apperrors "github.com/grievancegenie/platform/internal/shared/errors"
	"github.com/grievancegenie/platform/internal/shared/events"
	"github.com/grievancegenie/platform/internal/shared/types"
)

// EvidenceInput is one uploaded photo.
type EvidenceInput struct {
	Kind  evidence.Kind
	Image []byte
	// ClaimedLocation overrides the reported location for before-photos.
	// After-photos are always checked against the before-photo position.
	ClaimedLocation *types.GeoPoint
	Version         *uint64
}

// SubmitEvidence attaches a photo, validates it outside the complaint lock
// and applies the decision. Rejected and failed validations return the
// stored record together with an EvidenceRejected or EvidenceError.
func (s *Service) SubmitEvidence(ctx context.Context, actor domain.Actor, id types.ComplaintID, in EvidenceInput) (evidence.PhotoEvidence, error) {
	if !in.Kind.Valid() {
		return evidence.PhotoEvidence{}, apperrors.BadRequest("kind must be before or after")
	}
	if len(in.Image) == 0 {
		return evidence.PhotoEvidence{}, apperrors.Validation("photo is required", map[string]string{"photo": "required"})
	}
	if in.ClaimedLocation != nil {
		if err := in.ClaimedLocation.Validate(); err != nil {
			return evidence.PhotoEvidence{}, apperrors.Validation("invalid location", map[string]string{"location": err.Error()})
		}
	}

	var req evidence.Request
	_, _, err := s.mutate(ctx, id, in.Version, func(c *domain.Complaint) error {
		if err := canSubmit(c, actor, in.Kind); err != nil {
			return err
		}
		claimed := c.Location
		if in.Kind == evidence.KindAfter {
			claimed = c.AfterPhotoLocation()
		} else if in.ClaimedLocation != nil {
			claimed = *in.ClaimedLocation
		}
		now := s.now()
		req = evidence.Request{
			PhotoID:         types.NewID().String(),
			ComplaintID:     c.ID.String(),
			Kind:            in.Kind,
			Image:           in.Image,
			ClaimedLocation: claimed,
			ClaimedCategory: c.Category,
			SubmittedBy:     actor.ID,
			SubmittedAt:     now.UTC(),
		}
		return c.AttachEvidence(evidence.Pending(req), now)
	})
	if err != nil {
		return evidence.PhotoEvidence{}, err
	}

	decided := s.validator.Validate(ctx, req)
	return s.applyDecision(ctx, actor, id, decided)
}

func canSubmit(c *domain.Complaint, actor domain.Actor, kind evidence.Kind) error {
	if actor.Role == domain.RoleOfficer {
		return nil
	}
	switch kind {
	case evidence.KindBefore:
		if actor.ID != c.ReporterID {
			return apperrors.Forbidden("only the reporter can add before-photos")
		}
	case evidence.KindAfter:
		if c.AssignedWorker == nil || actor.ID != c.AssignedWorker.String() {
			return apperrors.Forbidden("only the assigned worker can add after-photos")
		}
	}
	return nil
}

func (s *Service) applyDecision(ctx context.Context, actor domain.Actor, id types.ComplaintID, decided evidence.PhotoEvidence) (evidence.PhotoEvidence, error) {
	var stored evidence.PhotoEvidence
	c, added, err := s.mutate(ctx, id, nil, func(c *domain.Complaint) error {
		now := s.now()
		changed, err := c.DecideEvidence(decided, now)
		if err != nil {
			return err
		}
		stored, _ = c.Photo(decided.ID)
		if !changed {
			return nil
		}
		s.transitionOnDecision(ctx, c, actor, decided, now)
		return nil
	})
	if err != nil {
		return decided, err
	}

	s.publish(ctx, events.NewEvent(EventEvidenceDecided, eventSource, stored).
		WithSubject(c.ID.String(), c.Version).
		WithActor(actor.ID, actor.Role))
	s.publishTimeline(ctx, c, added)

	for _, e := range added {
		switch e.Trigger {
		case domain.TriggerEvidenceAccepted:
			s.credit(ctx, c, rewards.Activity{
				Type:        rewards.EventReportVerified,
				ComplaintID: c.ID.String(),
				UserID:      c.ReporterID,
				OccurredAt:  e.OccurredAt,
			})
		case domain.TriggerAfterPhotoAccepted:
			if c.AssignedWorker != nil {
				s.dispatch(ctx, *c.AssignedWorker)
			}
		}
	}

	switch stored.Status {
	case evidence.StatusRejected:
		return stored, apperrors.EvidenceRejected(stored.ID, stored.Codes())
	case evidence.StatusError:
		return stored, apperrors.EvidenceError(stored.ID, stored.Codes(), nil)
	}
	return stored, nil
}

func (s *Service) transitionOnDecision(ctx context.Context, c *domain.Complaint, actor domain.Actor, ev evidence.PhotoEvidence, at time.Time) {
	codes := strings.Join(ev.Codes(), ", ")

	switch {
	case ev.Kind == evidence.KindBefore && c.Status != domain.StatusReported:
		// A second before-photo after verification started changes nothing.
	case ev.Kind == evidence.KindBefore && ev.Status == evidence.StatusAccepted:
		s.fire(ctx, c, domain.TriggerEvidenceAccepted, actor,
			fmt.Sprintf("before-photo accepted (confidence %.2f), open for community verification", ev.Confidence), at)
	case ev.Kind == evidence.KindBefore && ev.Status == evidence.StatusRejected:
		s.fire(ctx, c, domain.TriggerEvidenceRejected, actor,
			fmt.Sprintf("before-photo rejected: %s", codes), at)
	case ev.Kind == evidence.KindAfter && ev.Status == evidence.StatusAccepted:
		s.fire(ctx, c, domain.TriggerAfterPhotoAccepted, actor,
			fmt.Sprintf("after-photo accepted (confidence %.2f), issue resolved", ev.Confidence), at)
	case ev.Kind == evidence.KindAfter && ev.Status == evidence.StatusRejected:
		s.fire(ctx, c, domain.TriggerAfterPhotoRejected, actor,
			fmt.Sprintf("after-photo rejected: %s", codes), at)
	}
}
