package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/grievancegenie/platform/internal/shared/database"
	"github.com/grievancegenie/platform/internal/shared/metrics"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore persists votes in verification_votes, one row per
// (complaint_id, voter_id).
type PostgresStore struct {
	db database.Querier
}

func NewPostgresStore(db database.Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, v Vote) (*Vote, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("vote_upsert", time.Since(start)) }()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	query, args, err := psql.Select("verdict", "cast_at").
		From("verification_votes").
		Where(sq.Eq{"complaint_id": v.ComplaintID, "voter_id": v.VoterID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, err
	}

	var prev *Vote
	var verdict string
	var castAt time.Time
	switch err := tx.QueryRow(ctx, query, args...).Scan(&verdict, &castAt); {
	case err == nil:
		prev = &Vote{ComplaintID: v.ComplaintID, VoterID: v.VoterID, Verdict: Verdict(verdict), CastAt: castAt}
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, fmt.Errorf("read previous vote: %w", err)
	}

	query, args, err = psql.Insert("verification_votes").
		Columns("complaint_id", "voter_id", "verdict", "cast_at").
		Values(v.ComplaintID, v.VoterID, string(v.Verdict), v.CastAt).
		Suffix("ON CONFLICT (complaint_id, voter_id) DO UPDATE SET verdict = EXCLUDED.verdict, cast_at = EXCLUDED.cast_at").
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("upsert vote: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return prev, nil
}

func (s *PostgresStore) List(ctx context.Context, complaintID string) ([]Vote, error) {
	query, args, err := psql.Select("voter_id", "verdict", "cast_at").
		From("verification_votes").
		Where(sq.Eq{"complaint_id": complaintID}).
		OrderBy("voter_id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query votes: %w", err)
	}
	defer rows.Close()

	var out []Vote
	for rows.Next() {
		v := Vote{ComplaintID: complaintID}
		var verdict string
		if err := rows.Scan(&v.VoterID, &verdict, &v.CastAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		v.Verdict = Verdict(verdict)
		out = append(out, v)
	}
	return out, rows.Err()
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
