package rewards

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/grievancegenie/platform/internal/shared/metrics"
)

// Ledger applies activities to the store exactly once per idempotency key.
type Ledger struct {
	store Store
	log   *slog.Logger
}

func NewLedger(log *slog.Logger, store Store) *Ledger {
	return &Ledger{store: store, log: log.With("service", "rewards_ledger")}
}

// Apply credits the activity's delta. A replayed activity returns
// credited=false and the same delta.
func (l *Ledger) Apply(ctx context.Context, a Activity) (Delta, bool, error) {
	d, ok := Compute(a)
	if !ok {
		return Delta{}, false, nil
	}

	credited, err := l.store.Credit(ctx, d)
	if err != nil {
		return Delta{}, false, fmt.Errorf("credit %s: %w", d.Key, err)
	}
	if !credited {
		metrics.RecordRewardDuplicate()
		l.log.DebugContext(ctx, "reward already credited", slog.String("key", d.Key))
		return d, false, nil
	}

	metrics.RecordRewardCredited(string(d.EventType), d.Points)
	l.log.InfoContext(ctx, "reward credited",
		slog.String("user_id", d.UserID),
		slog.String("complaint_id", d.ComplaintID),
		slog.String("event_type", string(d.EventType)),
		slog.Int("points", d.Points),
	)
	return d, true, nil
}

func (l *Ledger) Total(ctx context.Context, userID string) (int, error) {
	return l.store.Total(ctx, userID)
}

// Leaderboard returns the top n users by cumulative points.
func (l *Ledger) Leaderboard(ctx context.Context, n int) ([]Standing, error) {
	return l.store.Top(ctx, n)
}
