package evidence

import (
	"slices"
	"time"

	"github.com/grievancegenie/platform/internal/shared/types"
)

// Kind tells whether a photo proves the issue exists or that it was fixed.
type Kind string

const (
	KindBefore Kind = "before"
	KindAfter  Kind = "after"
)

func (k Kind) Valid() bool {
	return k == KindBefore || k == KindAfter
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusValidating Status = "validating"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
	StatusError      Status = "error"
)

// Terminal reports whether no further change is allowed.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusError
}

type ReasonCode string

// Rejecting codes.
const (
	ReasonAIGenerated      ReasonCode = "ai_generated_suspected"
	ReasonLocationMismatch ReasonCode = "location_mismatch"
	ReasonDuplicateImage   ReasonCode = "duplicate_image"
	ReasonNoEXIF           ReasonCode = "no_exif_data"
)

// Warning codes.
const (
	ReasonNoGPS      ReasonCode = "no_gps_data"
	ReasonStalePhoto ReasonCode = "stale_photo"
)

// Infrastructure codes, attached to StatusError.
const (
	ReasonScorerUnavailable   ReasonCode = "scorer_unavailable"
	ReasonMalformedImage      ReasonCode = "malformed_image"
	ReasonIndexUnavailable    ReasonCode = "index_unavailable"
	ReasonValidationAbandoned ReasonCode = "validation_abandoned"
)

var rejecting = []ReasonCode{ReasonAIGenerated, ReasonLocationMismatch, ReasonDuplicateImage, ReasonNoEXIF}

func (r ReasonCode) Rejecting() bool {
	return slices.Contains(rejecting, r)
}

func (r ReasonCode) Warning() bool {
	return r == ReasonNoGPS || r == ReasonStalePhoto
}

// EXIF is the subset of embedded metadata the validator uses.
type EXIF struct {
	Present   bool            `json:"present"`
	GPS       *types.GeoPoint `json:"gps,omitempty"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
	Camera    string          `json:"camera,omitempty"`
}

// DuplicateMatch points at an earlier accepted photo.
type DuplicateMatch struct {
	PhotoID     string  `json:"photo_id"`
	ComplaintID string  `json:"complaint_id"`
	Similarity  float64 `json:"similarity"`
}

// PhotoEvidence is the decision record for one uploaded photo. Once its
// status is terminal it is never changed; a retry produces a new record.
type PhotoEvidence struct {
	ID                string          `json:"id"`
	ComplaintID       string          `json:"complaint_id"`
	Kind              Kind            `json:"kind"`
	ImageRef          string          `json:"image_ref"`
	SizeBytes         int             `json:"size_bytes"`
	ClaimedLocation   types.GeoPoint  `json:"claimed_location"`
	ClaimedCategory   string          `json:"claimed_category,omitempty"`
	EXIF              EXIF            `json:"exif"`
	AuthenticityScore *float64        `json:"authenticity_score,omitempty"`
	Fingerprint       string          `json:"fingerprint,omitempty"`
	Duplicate         *DuplicateMatch `json:"duplicate,omitempty"`
	Status            Status          `json:"status"`
	Confidence        float64         `json:"confidence"`
	ReasonCodes       []ReasonCode    `json:"reason_codes"`
	SubmittedBy       string          `json:"submitted_by"`
	SubmittedAt       time.Time       `json:"submitted_at"`
	DecidedAt         *time.Time      `json:"decided_at,omitempty"`
}

// HasRejectingReason reports whether any rejecting code is attached.
func (p PhotoEvidence) HasRejectingReason() bool {
	return slices.ContainsFunc(p.ReasonCodes, ReasonCode.Rejecting)
}

// Codes returns the reason codes as plain strings.
func (p PhotoEvidence) Codes() []string {
	out := make([]string, len(p.ReasonCodes))
	for i, r := range p.ReasonCodes {
		out[i] = string(r)
	}
	return out
}
