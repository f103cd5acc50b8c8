package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/grievancegenie/platform/internal/shared/config"
	"github.com/grievancegenie/platform/internal/shared/metrics"
	"github.com/grievancegenie/platform/internal/shared/types"
)

// Policy holds the tunable thresholds of the validation pipeline.
type Policy struct {
	AIThreshold          float64
	RadiusMeters         float64
	Staleness            time.Duration
	Similarity           float64
	WarningPenalty       float64
	RequireEXIF          bool
	RejectUnchangedAfter bool
	ScorerTimeout        time.Duration
}

func PolicyFromConfig(e config.EvidenceConfig, s config.ScorerConfig) Policy {
	return Policy{
		AIThreshold:          e.AIThreshold,
		RadiusMeters:         e.LocationRadiusMeters,
		Staleness:            e.StalenessWindow,
		Similarity:           e.SimilarityThreshold,
		WarningPenalty:       e.WarningPenalty,
		RequireEXIF:          e.RequireEXIF,
		RejectUnchangedAfter: e.RejectUnchangedAfterPhoto,
		ScorerTimeout:        s.Timeout,
	}
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		AIThreshold:          0.5,
		RadiusMeters:         500,
		Staleness:            24 * time.Hour,
		Similarity:           0.9,
		WarningPenalty:       0.1,
		RejectUnchangedAfter: true,
		ScorerTimeout:        10 * time.Second,
	}
}

// Request is one photo to validate.
type Request struct {
	PhotoID         string
	ComplaintID     string
	Kind            Kind
	Image           []byte
	ImageRef        string
	ClaimedLocation types.GeoPoint
	ClaimedCategory string
	SubmittedBy     string
	SubmittedAt     time.Time
}

// Validator runs the evidence pipeline: authenticity, EXIF/geo, duplicate,
// then decision aggregation.
type Validator struct {
	scorer    Scorer
	extractor Extractor
	hasher    Fingerprinter
	index     DuplicateIndex
	policy    Policy
	now       func() time.Time
	log       *slog.Logger
}

type Option func(*Validator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

func NewValidator(log *slog.Logger, policy Policy, scorer Scorer, extractor Extractor, hasher Fingerprinter, index DuplicateIndex, opts ...Option) *Validator {
	v := &Validator{
		scorer:    scorer,
		extractor: extractor,
		hasher:    hasher,
		index:     index,
		policy:    policy,
		now:       time.Now,
		log:       log.With("service", "evidence_validator"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Pending builds the validating record stored before the pipeline runs.
func Pending(req Request) PhotoEvidence {
	ref := req.ImageRef
	if ref == "" {
		sum := sha256.Sum256(req.Image)
		ref = "sha256:" + hex.EncodeToString(sum[:])
	}
	return PhotoEvidence{
		ID:              req.PhotoID,
		ComplaintID:     req.ComplaintID,
		Kind:            req.Kind,
		ImageRef:        ref,
		SizeBytes:       len(req.Image),
		ClaimedLocation: req.ClaimedLocation,
		ClaimedCategory: req.ClaimedCategory,
		Status:          StatusValidating,
		ReasonCodes:     []ReasonCode{},
		SubmittedBy:     req.SubmittedBy,
		SubmittedAt:     req.SubmittedAt,
	}
}

// Validate always returns a terminal PhotoEvidence. Scorer or decoding
// failures produce StatusError rather than an error value.
func (v *Validator) Validate(ctx context.Context, req Request) PhotoEvidence {
	ev := Pending(req)
	ev = v.run(ctx, req, ev)

	decided := v.now().UTC()
	ev.DecidedAt = &decided
	if ev.Status != StatusAccepted {
		ev.Confidence = 0
	}

	metrics.RecordEvidenceValidation(string(ev.Kind), string(ev.Status), ev.Codes())
	v.log.InfoContext(ctx, "photo validated",
		slog.String("complaint_id", ev.ComplaintID),
		slog.String("photo_id", ev.ID),
		slog.String("kind", string(ev.Kind)),
		slog.String("status", string(ev.Status)),
		slog.Float64("confidence", ev.Confidence),
		slog.Any("reasons", ev.Codes()),
	)
	return ev
}

func (v *Validator) run(ctx context.Context, req Request, ev PhotoEvidence) PhotoEvidence {
	if err := Decodable(req.Image); err != nil {
		return fail(ev, ReasonMalformedImage)
	}

	// 1. Authenticity.
	score, err := v.score(ctx, req.Image)
	if err != nil {
		v.log.WarnContext(ctx, "authenticity scorer failed",
			slog.String("photo_id", ev.ID), slog.Any("error", err))
		return fail(ev, ReasonScorerUnavailable)
	}
	ev.AuthenticityScore = &score
	if score >= v.policy.AIThreshold {
		return reject(ev, ReasonAIGenerated)
	}

	// 2. EXIF and geo.
	meta, err := v.extractor.Extract(req.Image)
	if err != nil {
		v.log.WarnContext(ctx, "exif extraction failed",
			slog.String("photo_id", ev.ID), slog.Any("error", err))
		meta = EXIF{}
	}
	ev.EXIF = meta

	var warnings []ReasonCode
	if !meta.Present && v.policy.RequireEXIF {
		return reject(ev, ReasonNoEXIF)
	}
	if meta.GPS == nil {
		warnings = append(warnings, ReasonNoGPS)
	} else if !WithinRadius(*meta.GPS, req.ClaimedLocation, v.policy.RadiusMeters) {
		return reject(ev, ReasonLocationMismatch)
	}
	if Stale(meta.Timestamp, v.now(), v.policy.Staleness) {
		warnings = append(warnings, ReasonStalePhoto)
	}
	ev.ReasonCodes = append(ev.ReasonCodes, warnings...)

	// 3. Duplicates.
	fp, err := v.hasher.Fingerprint(req.Image)
	if err != nil {
		return fail(ev, ReasonMalformedImage)
	}
	ev.Fingerprint = fp.String()

	matches, err := v.index.Lookup(ctx, fp, v.policy.Similarity)
	if err != nil {
		v.log.WarnContext(ctx, "duplicate index lookup failed",
			slog.String("photo_id", ev.ID), slog.Any("error", err))
		return fail(ev, ReasonIndexUnavailable)
	}
	for _, m := range matches {
		dup := &DuplicateMatch{PhotoID: m.Entry.PhotoID, ComplaintID: m.Entry.ComplaintID, Similarity: m.Similarity}
		if m.Entry.ComplaintID != req.ComplaintID {
			ev.Duplicate = dup
			return reject(ev, ReasonDuplicateImage)
		}
		if v.policy.RejectUnchangedAfter && req.Kind == KindAfter && m.Entry.Kind == KindBefore {
			ev.Duplicate = dup
			return reject(ev, ReasonDuplicateImage)
		}
		if ev.Duplicate == nil {
			ev.Duplicate = dup
		}
	}

	// 4. Decision.
	ev.Status = StatusAccepted
	ev.Confidence = confidence(score, len(warnings), v.policy.WarningPenalty)

	entry := IndexEntry{
		Fingerprint: fp,
		PhotoID:     ev.ID,
		ComplaintID: ev.ComplaintID,
		Kind:        ev.Kind,
		AddedAt:     v.now().UTC(),
	}
	if err := v.index.Insert(ctx, entry); err != nil {
		v.log.WarnContext(ctx, "duplicate index insert failed",
			slog.String("photo_id", ev.ID), slog.Any("error", err))
	}
	return ev
}

func (v *Validator) score(ctx context.Context, image []byte) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, v.policy.ScorerTimeout)
	defer cancel()

	start := time.Now()
	score, err := v.scorer.Score(ctx, image)
	outcome := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	metrics.RecordScorerCall(outcome, time.Since(start))

	if err != nil {
		return 0, err
	}
	if math.IsNaN(score) || score < 0 || score > 1 {
		return 0, errors.New("score out of range")
	}
	return score, nil
}

func confidence(score float64, warnings int, penalty float64) float64 {
	c := 1 - score - float64(warnings)*penalty
	return math.Max(0, math.Min(1, c))
}

func reject(ev PhotoEvidence, code ReasonCode) PhotoEvidence {
	ev.Status = StatusRejected
	ev.ReasonCodes = append(ev.ReasonCodes, code)
	return ev
}

func fail(ev PhotoEvidence, code ReasonCode) PhotoEvidence {
	ev.Status = StatusError
	ev.ReasonCodes = append(ev.ReasonCodes, code)
	return ev
}

// Abandon resolves a validation that never finished.
func Abandon(ev PhotoEvidence, at time.Time) PhotoEvidence {
	if ev.Status.Terminal() {
		return ev
	}
	ev = fail(ev, ReasonValidationAbandoned)
	ev.Confidence = 0
	decided := at.UTC()
	ev.DecidedAt = &decided
	return ev
}
