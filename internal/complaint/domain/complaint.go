package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/grievancegenie/platform/internal/evidence"
	apperrors "github.com/grievancegenie/platform/internal/shared/errors"
	"github.com/grievancegenie/platform/internal/shared/types"
	"github.com/grievancegenie/platform/internal/verification"
)

// Actor is whoever caused a timeline event.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// Actor roles.
const (
	RoleCitizen = "citizen"
	RoleOfficer = "officer"
	RoleWorker  = "worker"
	RoleSystem  = "system"
)

// System is the actor for sweeper and consensus driven events.
var System = Actor{ID: "system", Role: RoleSystem}

// TimelineEvent is one entry of the append-only complaint history. Status is
// the complaint status after the event.
type TimelineEvent struct {
	Seq         int       `json:"seq"`
	Status      Status    `json:"status"`
	Trigger     Trigger   `json:"trigger"`
	Actor       Actor     `json:"actor"`
	Description string    `json:"description"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Complaint is the aggregate root of the lifecycle. Every mutation bumps
// Version; Status always equals the status of the last timeline event.
type Complaint struct {
	ID           types.ComplaintID `json:"id"`
	Category     string            `json:"category"`
	Severity     types.Severity    `json:"severity"`
	Description  string            `json:"description"`
	LocationText string            `json:"location_text"`
	Location     types.GeoPoint    `json:"location"`
	ReporterID   string            `json:"reporter_id"`

	Status      Status      `json:"status"`
	CloseReason CloseReason `json:"close_reason,omitempty"`

	Evidence       []evidence.PhotoEvidence `json:"evidence"`
	Tally          verification.Tally       `json:"tally"`
	AssignedWorker *types.ID                `json:"assigned_worker"`
	Rating         *Rating                  `json:"rating"`
	Timeline       []TimelineEvent          `json:"timeline"`

	Version        uint64     `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	VerifyingSince *time.Time `json:"verifying_since,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// NewComplaint is the report submission input.
type NewComplaint struct {
	Category     string         `json:"category"`
	Severity     types.Severity `json:"severity"`
	Description  string         `json:"description"`
	LocationText string         `json:"location_text"`
	Location     types.GeoPoint `json:"location"`
}

func (n NewComplaint) Validate() error {
	details := map[string]string{}
	if strings.TrimSpace(n.Category) == "" {
		details["category"] = "required"
	}
	if strings.TrimSpace(n.Description) == "" {
		details["description"] = "required"
	}
	if _, err := types.ParseSeverity(string(n.Severity)); err != nil {
		details["severity"] = "must be Low, Medium or High"
	}
	if err := n.Location.Validate(); err != nil {
		details["location"] = err.Error()
	}
	if len(details) > 0 {
		return apperrors.Validation("invalid complaint", details)
	}
	return nil
}

// Report creates a complaint in reported state.
func Report(id types.ComplaintID, in NewComplaint, reporter Actor, at time.Time) (*Complaint, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	sev, _ := types.ParseSeverity(string(in.Severity))
	at = at.UTC()

	c := &Complaint{
		ID:           id,
		Category:     strings.TrimSpace(in.Category),
		Severity:     sev,
		Description:  strings.TrimSpace(in.Description),
		LocationText: in.LocationText,
		Location:     in.Location,
		ReporterID:   reporter.ID,
		Status:       StatusReported,
		Evidence:     []evidence.PhotoEvidence{},
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	c.record(StatusReported, TriggerReported, reporter, fmt.Sprintf("%s issue reported", c.Category), at)
	return c, nil
}

// Fire applies trigger. An undefined (status, trigger) pair leaves the
// complaint untouched and returns an InvalidTransition error.
func (c *Complaint) Fire(trigger Trigger, actor Actor, description string, at time.Time) error {
	to, ok := Next(c.Status, trigger)
	if !ok {
		return apperrors.InvalidTransition(c.ID.String(), string(c.Status), string(trigger))
	}
	at = at.UTC()

	switch to {
	case StatusVerifying:
		if c.VerifyingSince == nil {
			c.VerifyingSince = &at
		}
	case StatusResolved:
		if c.ResolvedAt == nil {
			c.ResolvedAt = &at
		}
	case StatusClosed:
		c.CloseReason = closeReason(trigger)
	}

	c.Status = to
	c.record(to, trigger, actor, description, at)
	return nil
}

func (c *Complaint) record(status Status, trigger Trigger, actor Actor, description string, at time.Time) {
	c.Timeline = append(c.Timeline, TimelineEvent{
		Seq:         len(c.Timeline) + 1,
		Status:      status,
		Trigger:     trigger,
		Actor:       actor,
		Description: description,
		OccurredAt:  at,
	})
	c.touch(at)
}

func (c *Complaint) touch(at time.Time) {
	c.Version++
	c.UpdatedAt = at
}

// AttachEvidence adds a validating photo record. Before-photos are taken
// while reported, after-photos while in_progress.
func (c *Complaint) AttachEvidence(ev evidence.PhotoEvidence, at time.Time) error {
	want := StatusReported
	if ev.Kind == evidence.KindAfter {
		want = StatusInProgress
	}
	if c.Status != want {
		return apperrors.InvalidTransition(c.ID.String(), string(c.Status), "evidence_submitted")
	}
	if _, ok := c.findEvidence(ev.ID); ok {
		return apperrors.Conflict(fmt.Sprintf("photo %s already attached", ev.ID))
	}
	c.Evidence = append(c.Evidence, ev)
	c.touch(at.UTC())
	return nil
}

// DecideEvidence stores the terminal result for a validating photo. It
// reports false when the record was already decided.
func (c *Complaint) DecideEvidence(decided evidence.PhotoEvidence, at time.Time) (bool, error) {
	i, ok := c.findEvidence(decided.ID)
	if !ok {
		return false, apperrors.NotFound("photo", decided.ID)
	}
	if c.Evidence[i].Status.Terminal() {
		return false, nil
	}
	if !decided.Status.Terminal() {
		return false, fmt.Errorf("photo %s: decision status %s is not terminal", decided.ID, decided.Status)
	}
	c.Evidence[i] = decided
	c.touch(at.UTC())
	return true, nil
}

func (c *Complaint) findEvidence(photoID string) (int, bool) {
	for i, ev := range c.Evidence {
		if ev.ID == photoID {
			return i, true
		}
	}
	return -1, false
}

// Photo returns the evidence record with the given id.
func (c *Complaint) Photo(photoID string) (evidence.PhotoEvidence, bool) {
	i, ok := c.findEvidence(photoID)
	if !ok {
		return evidence.PhotoEvidence{}, false
	}
	return c.Evidence[i], true
}

// LatestAccepted returns the most recent accepted photo of the given kind.
func (c *Complaint) LatestAccepted(kind evidence.Kind) (evidence.PhotoEvidence, bool) {
	for i := len(c.Evidence) - 1; i >= 0; i-- {
		if ev := c.Evidence[i]; ev.Kind == kind && ev.Status == evidence.StatusAccepted {
			return ev, true
		}
	}
	return evidence.PhotoEvidence{}, false
}

// Validating returns photos still waiting for a decision.
func (c *Complaint) Validating() []evidence.PhotoEvidence {
	var out []evidence.PhotoEvidence
	for _, ev := range c.Evidence {
		if !ev.Status.Terminal() {
			out = append(out, ev)
		}
	}
	return out
}

// AfterPhotoLocation is where an after-photo must have been taken: the GPS
// position of the accepted before-photo, or the reported location.
func (c *Complaint) AfterPhotoLocation() types.GeoPoint {
	if before, ok := c.LatestAccepted(evidence.KindBefore); ok && before.EXIF.GPS != nil {
		return *before.EXIF.GPS
	}
	return c.Location
}

// SetTally stores the recomputed vote counts.
func (c *Complaint) SetTally(t verification.Tally, at time.Time) {
	if c.Tally == t {
		return
	}
	c.Tally = t
	c.touch(at.UTC())
}

// AssignWorker records the worker on an assigned or in-progress complaint.
// The previous worker, if any, is returned so the caller can release it.
func (c *Complaint) AssignWorker(worker types.ID, actor Actor, at time.Time) (*types.ID, error) {
	if c.AssignedWorker != nil && *c.AssignedWorker == worker {
		return nil, nil
	}
	prev := c.AssignedWorker
	desc := fmt.Sprintf("worker %s assigned", worker)
	if prev != nil {
		desc = fmt.Sprintf("worker %s reassigned to %s", *prev, worker)
	}
	if err := c.Fire(TriggerWorkerAssigned, actor, desc, at); err != nil {
		return nil, err
	}
	c.AssignedWorker = &worker
	return prev, nil
}

// Rate attaches the citizen rating. It is allowed once, after resolution.
func (c *Complaint) Rate(r Rating, actor Actor, at time.Time) error {
	if c.Status != StatusResolved {
		return apperrors.InvalidTransition(c.ID.String(), string(c.Status), string(TriggerRated))
	}
	if c.Rating != nil {
		return apperrors.Conflict("complaint already rated")
	}
	if err := r.Validate(); err != nil {
		return err
	}
	r.SubmittedAt = at.UTC()
	r.Tags = normalizeTags(r.Tags)
	if err := c.Fire(TriggerRated, actor, fmt.Sprintf("rated %d/5", r.Overall), at); err != nil {
		return err
	}
	c.Rating = &r
	return nil
}

// Clone returns a deep copy safe to mutate independently.
func (c *Complaint) Clone() *Complaint {
	out := *c
	out.Evidence = slices.Clone(c.Evidence)
	out.Timeline = slices.Clone(c.Timeline)
	if c.AssignedWorker != nil {
		w := *c.AssignedWorker
		out.AssignedWorker = &w
	}
	if c.Rating != nil {
		r := *c.Rating
		r.Tags = slices.Clone(c.Rating.Tags)
		out.Rating = &r
	}
	if c.VerifyingSince != nil {
		t := *c.VerifyingSince
		out.VerifyingSince = &t
	}
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		out.ResolvedAt = &t
	}
	return &out
}

// LastEvent returns the newest timeline entry.
func (c *Complaint) LastEvent() TimelineEvent {
	if len(c.Timeline) == 0 {
		return TimelineEvent{}
	}
	return c.Timeline[len(c.Timeline)-1]
}
