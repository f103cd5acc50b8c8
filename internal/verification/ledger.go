package verification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grievancegenie/platform/internal/shared/metrics"
)

// Store persists votes keyed by (complaint, voter).
type Store interface {
	// Upsert writes v, replacing any earlier vote by the same voter on the
	// same complaint, and returns the replaced vote if there was one.
	Upsert(ctx context.Context, v Vote) (*Vote, error)
	List(ctx context.Context, complaintID string) ([]Vote, error)
}

// Result is the outcome of one Submit call.
type Result struct {
	Tally    Tally    `json:"tally"`
	Replaced bool     `json:"replaced"`
	Previous *Verdict `json:"previous,omitempty"`
}

// Ledger records community votes. The tally is always recomputed from the
// stored vote set, never incremented.
type Ledger struct {
	store Store
	log   *slog.Logger
}

func NewLedger(log *slog.Logger, store Store) *Ledger {
	return &Ledger{store: store, log: log.With("service", "verification_ledger")}
}

func (l *Ledger) Submit(ctx context.Context, complaintID, voterID string, verdict Verdict, at time.Time) (Result, error) {
	if complaintID == "" || voterID == "" {
		return Result{}, fmt.Errorf("complaint id and voter id are required")
	}
	if _, err := ParseVerdict(string(verdict)); err != nil {
		return Result{}, err
	}

	prev, err := l.store.Upsert(ctx, Vote{
		ComplaintID: complaintID,
		VoterID:     voterID,
		Verdict:     verdict,
		CastAt:      at.UTC(),
	})
	if err != nil {
		return Result{}, fmt.Errorf("store vote: %w", err)
	}

	tally, err := l.Tally(ctx, complaintID)
	if err != nil {
		return Result{}, err
	}

	res := Result{Tally: tally, Replaced: prev != nil}
	if prev != nil {
		res.Previous = &prev.Verdict
	}

	metrics.RecordVote(string(verdict), res.Replaced)
	l.log.DebugContext(ctx, "vote recorded",
		slog.String("complaint_id", complaintID),
		slog.String("verdict", string(verdict)),
		slog.Bool("replaced", res.Replaced),
		slog.Int("total", tally.Total),
	)
	return res, nil
}

// Tally recomputes the counts by a full scan of the complaint's votes.
func (l *Ledger) Tally(ctx context.Context, complaintID string) (Tally, error) {
	votes, err := l.store.List(ctx, complaintID)
	if err != nil {
		return Tally{}, fmt.Errorf("list votes: %w", err)
	}
	return Count(votes), nil
}
