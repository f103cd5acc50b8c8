package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/grievancegenie/platform/internal/complaint/domain"
	"github.com/grievancegenie/platform/internal/complaint/service"
	"github.com/grievancegenie/platform/internal/evidence"
	"github.com/grievancegenie/platform/internal/rewards"
	"github.com/grievancegenie/platform/internal/shared/events"
	"github.com/grievancegenie/platform/internal/shared/types"
)

const consumerName = "notifier"

var subscribedEvents = []string{"complaint.*", service.EventEvidenceDecided, service.EventRewardCredited}

var statusSubjects = map[domain.Trigger]string{
	domain.TriggerReported:            "Your complaint was received",
	domain.TriggerEvidenceAccepted:    "Your photo was accepted",
	domain.TriggerConsensusAssign:     "Your neighbours confirmed the issue",
	domain.TriggerConsensusReview:     "Your complaint is with an officer",
	domain.TriggerVerificationExpired: "Your complaint was sent for review",
	domain.TriggerOfficerApprove:      "An officer approved your complaint",
	domain.TriggerOfficerReject:       "An officer closed your complaint",
	domain.TriggerWorkerAssigned:      "A worker was assigned",
	domain.TriggerWorkStarted:         "Work has started",
	domain.TriggerAfterPhotoAccepted:  "The issue was resolved",
	domain.TriggerAfterPhotoRejected:  "The repair could not be confirmed",
	domain.TriggerArchived:            "Your complaint was archived",
}

// Subscribe attaches the notifier to the lifecycle events it turns into
// citizen and worker notifications.
func (s *Service) Subscribe(ctx context.Context, bus events.EventBus) error {
	for _, pattern := range subscribedEvents {
		if err := bus.Subscribe(ctx, pattern, consumerName, s.HandleEvent); err != nil {
			return fmt.Errorf("failed to subscribe notifier to %s: %w", pattern, err)
		}
	}
	return nil
}

// HandleEvent maps one bus event to zero or more notifications. Delivery
// problems are logged, never returned, so the bus does not redeliver.
// Notifications already produced by an earlier delivery are skipped.
func (s *Service) HandleEvent(ctx context.Context, e events.Event) error {
	list, err := fromEvent(e)
	if err != nil {
		return err
	}
	for _, n := range list {
		n.ID = notificationID(e.ID, n)
		if err := s.Notify(n); err != nil {
			s.log.WarnContext(ctx, "notification not queued",
				"event_id", e.ID, "recipient_id", n.RecipientID, "error", err)
		}
	}
	return nil
}

// notificationID is stable per event, recipient and kind, so a redelivered
// event maps onto the notifications it already produced.
func notificationID(eventID string, n *Notification) string {
	if eventID == "" {
		return ""
	}
	return types.NewDeterministicID("notification", eventID+"/"+n.RecipientID+"/"+string(n.Kind)).String()
}

func fromEvent(e events.Event) ([]*Notification, error) {
	switch {
	case e.Type == service.EventEvidenceDecided:
		var p evidence.PhotoEvidence
		if err := e.DecodeData(&p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Type, err)
		}
		return evidenceNotifications(e, p), nil

	case e.Type == service.EventRewardCredited:
		var d rewards.Delta
		if err := e.DecodeData(&d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Type, err)
		}
		if d.UserID == "" || d.Points == 0 {
			return nil, nil
		}
		return []*Notification{{
			Kind:        KindPointsCredited,
			RecipientID: d.UserID,
			Subject:     fmt.Sprintf("You earned %d points", d.Points),
			Body:        d.Reason,
			EventID:     e.ID,
			ComplaintID: d.ComplaintID,
			Data:        map[string]string{"event_type": string(d.EventType)},
		}}, nil

	case strings.HasPrefix(e.Type, "complaint."):
		var p service.TimelinePayload
		if err := e.DecodeData(&p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Type, err)
		}
		return timelineNotifications(e, p), nil
	}
	return nil, nil
}

// evidenceNotifications tells the submitter why a photo was not accepted.
func evidenceNotifications(e events.Event, p evidence.PhotoEvidence) []*Notification {
	if p.SubmittedBy == "" {
		return nil
	}
	if p.Status != evidence.StatusRejected && p.Status != evidence.StatusError {
		return nil
	}

	reasons := make([]string, 0, len(p.ReasonCodes))
	for _, code := range p.ReasonCodes {
		reasons = append(reasons, evidence.Message(code))
	}
	return []*Notification{{
		Kind:        KindEvidenceRejected,
		RecipientID: p.SubmittedBy,
		Subject:     "Your photo could not be accepted",
		Body:        strings.Join(reasons, " "),
		EventID:     e.ID,
		ComplaintID: p.ComplaintID,
		Data: map[string]string{
			"evidence_id": p.ID,
			"status":      string(p.Status),
		},
	}}
}

// timelineNotifications tells the reporter about a status change and the
// worker about a new assignment.
func timelineNotifications(e events.Event, p service.TimelinePayload) []*Notification {
	var out []*Notification

	if subject, ok := statusSubjects[p.Trigger]; ok && p.ReporterID != "" {
		out = append(out, &Notification{
			Kind:        KindStatusChange,
			RecipientID: p.ReporterID,
			Subject:     subject,
			Body:        p.Description,
			EventID:     e.ID,
			ComplaintID: p.ComplaintID,
			Data: map[string]string{
				"from":    string(p.From),
				"to":      string(p.To),
				"trigger": string(p.Trigger),
			},
		})
	}

	if p.Trigger == domain.TriggerWorkerAssigned && p.WorkerID != "" {
		out = append(out, &Notification{
			Kind:        KindWorkAssigned,
			RecipientID: p.WorkerID,
			Subject:     "New work order",
			Body:        p.Description,
			EventID:     e.ID,
			ComplaintID: p.ComplaintID,
		})
	}
	return out
}
