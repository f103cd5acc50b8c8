package rewards

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/grievancegenie/platform/internal/shared/database"
	"github.com/grievancegenie/platform/internal/shared/metrics"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore keeps the ledger in reward_ledger; idempotency_key is the
// primary key.
type PostgresStore struct {
	db database.Querier
}

func NewPostgresStore(db database.Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Credit(ctx context.Context, d Delta) (bool, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("reward_credit", time.Since(start)) }()

	query, args, err := psql.Insert("reward_ledger").
		Columns("idempotency_key", "complaint_id", "event_type", "user_id", "points", "reason", "credited_at").
		Values(d.Key, d.ComplaintID, string(d.EventType), d.UserID, d.Points, d.Reason, d.CreditedAt).
		Suffix("ON CONFLICT (idempotency_key) DO NOTHING").
		ToSql()
	if err != nil {
		return false, err
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert reward: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Total(ctx context.Context, userID string) (int, error) {
	query, args, err := psql.Select("COALESCE(SUM(points), 0)").
		From("reward_ledger").
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return 0, err
	}

	var total int
	if err := s.db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum rewards: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) Top(ctx context.Context, n int) ([]Standing, error) {
	b := psql.Select("user_id", "SUM(points) AS total").
		From("reward_ledger").
		GroupBy("user_id").
		OrderBy("total DESC", "user_id")
	if n > 0 {
		b = b.Limit(uint64(n))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	var out []Standing
	if err := pgxscan.Select(ctx, s.db, &out, query, args...); err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	return out, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
