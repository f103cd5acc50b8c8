package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/grievancegenie/platform/internal/complaint/domain"
	"github.com/grievancegenie/platform/internal/evidence"
	"github.com/grievancegenie/platform/internal/shared/database"
	"github.com/grievancegenie/platform/internal/shared/errors"
	"github.com/grievancegenie/platform/internal/shared/metrics"
	"github.com/grievancegenie/platform/internal/shared/types"
	"github.com/grievancegenie/platform/internal/verification"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var complaintColumns = []string{
	"id", "category", "severity", "description", "location_text", "lat", "lng",
	"status", "close_reason", "reporter_id", "assigned_worker",
	"evidence", "tally", "rating",
	"version", "created_at", "verifying_since", "resolved_at", "updated_at",
}

var timelineColumns = []string{
	"complaint_id", "seq", "status", "trigger", "actor_id", "actor_role", "description", "occurred_at",
}

// PostgresRepository implements domain.Repository. Evidence, tally and
// rating are stored as JSONB; the timeline lives in its own insert-only
// table.
type PostgresRepository struct {
	db database.Querier
}

func NewPostgresRepository(db database.Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) NextID(ctx context.Context, year int) (types.ComplaintID, error) {
	query, args, err := psql.Insert("complaint_sequences").
		Columns("year", "last_seq").
		Values(year, 1).
		Suffix("ON CONFLICT (year) DO UPDATE SET last_seq = complaint_sequences.last_seq + 1 RETURNING last_seq").
		ToSql()
	if err != nil {
		return "", err
	}

	var seq int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&seq); err != nil {
		return "", errors.Wrap(err, "failed to reserve complaint id")
	}
	return types.NewComplaintID(year, seq), nil
}

func (r *PostgresRepository) Create(ctx context.Context, c *domain.Complaint) error {
	defer r.observe("complaint_create", time.Now())

	values, err := rowValues(c)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query, args, err := psql.Insert("complaints").Columns(complaintColumns...).Values(values...).ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("complaint with this id already exists")
		}
		return errors.Wrap(err, "failed to save complaint")
	}

	if err := insertTimeline(ctx, tx, c.ID, c.Timeline); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, c *domain.Complaint, expected uint64) error {
	defer r.observe("complaint_update", time.Now())

	values, err := rowValues(c)
	if err != nil {
		return err
	}
	set := make(map[string]any, len(complaintColumns)-1)
	for i, col := range complaintColumns {
		if col != "id" && col != "created_at" {
			set[col] = values[i]
		}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query, args, err := psql.Update("complaints").
		SetMap(set).
		Where(sq.Eq{"id": c.ID.String(), "version": expected}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "failed to update complaint")
	}
	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, tx, c.ID, expected)
	}

	var persisted int
	query, args, err = psql.Select("COALESCE(MAX(seq), 0)").
		From("complaint_timeline").
		Where(sq.Eq{"complaint_id": c.ID.String()}).
		ToSql()
	if err != nil {
		return err
	}
	if err := tx.QueryRow(ctx, query, args...).Scan(&persisted); err != nil {
		return errors.Wrap(err, "failed to read timeline position")
	}
	if persisted < len(c.Timeline) {
		if err := insertTimeline(ctx, tx, c.ID, c.Timeline[persisted:]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func (r *PostgresRepository) staleOrMissing(ctx context.Context, tx pgx.Tx, id types.ComplaintID, expected uint64) error {
	query, args, err := psql.Select("version").From("complaints").Where(sq.Eq{"id": id.String()}).ToSql()
	if err != nil {
		return err
	}
	var actual int64
	err = tx.QueryRow(ctx, query, args...).Scan(&actual)
	if err == pgx.ErrNoRows {
		return errors.NotFound("complaint", id.String())
	}
	if err != nil {
		return errors.Wrap(err, "failed to read complaint version")
	}
	return errors.StaleVersion(id.String(), expected, uint64(actual))
}

func (r *PostgresRepository) Get(ctx context.Context, id types.ComplaintID) (*domain.Complaint, error) {
	query, args, err := psql.Select(complaintColumns...).
		From("complaints").
		Where(sq.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		return nil, err
	}

	c, err := scanComplaint(r.db.QueryRow(ctx, query, args...))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("complaint", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find complaint")
	}

	timelines, err := r.timelines(ctx, []string{id.String()})
	if err != nil {
		return nil, err
	}
	c.Timeline = timelines[c.ID]
	return c, nil
}

func (r *PostgresRepository) List(ctx context.Context, f domain.ListFilter) ([]domain.Complaint, error) {
	b := psql.Select(complaintColumns...).From("complaints").OrderBy("created_at", "id")
	if f.Status != nil {
		b = b.Where(sq.Eq{"status": string(*f.Status)})
	}
	if f.ReporterID != "" {
		b = b.Where(sq.Eq{"reporter_id": f.ReporterID})
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		b = b.Offset(uint64(f.Offset))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list complaints")
	}
	defer rows.Close()

	out := []domain.Complaint{}
	var ids []string
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan complaint")
		}
		out = append(out, *c)
		ids = append(ids, c.ID.String())
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list complaints")
	}
	if len(ids) == 0 {
		return out, nil
	}

	timelines, err := r.timelines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Timeline = timelines[out[i].ID]
	}
	return out, nil
}

func (r *PostgresRepository) timelines(ctx context.Context, ids []string) (map[types.ComplaintID][]domain.TimelineEvent, error) {
	query, args, err := psql.Select(timelineColumns...).
		From("complaint_timeline").
		Where(sq.Eq{"complaint_id": ids}).
		OrderBy("complaint_id", "seq").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load timeline")
	}
	defer rows.Close()

	out := make(map[types.ComplaintID][]domain.TimelineEvent, len(ids))
	for rows.Next() {
		var (
			id string
			e  domain.TimelineEvent
		)
		if err := rows.Scan(&id, &e.Seq, &e.Status, &e.Trigger, &e.Actor.ID, &e.Actor.Role, &e.Description, &e.OccurredAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan timeline event")
		}
		out[types.ComplaintID(id)] = append(out[types.ComplaintID(id)], e)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) observe(op string, start time.Time) {
	metrics.RecordDBQuery(op, time.Since(start))
}

func insertTimeline(ctx context.Context, tx pgx.Tx, id types.ComplaintID, events []domain.TimelineEvent) error {
	if len(events) == 0 {
		return nil
	}
	b := psql.Insert("complaint_timeline").Columns(timelineColumns...)
	for _, e := range events {
		b = b.Values(id.String(), e.Seq, string(e.Status), string(e.Trigger), e.Actor.ID, e.Actor.Role, e.Description, e.OccurredAt)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return errors.Wrap(err, "failed to append timeline")
	}
	return nil
}

func rowValues(c *domain.Complaint) ([]any, error) {
	evidenceJSON, err := json.Marshal(c.Evidence)
	if err != nil {
		return nil, fmt.Errorf("marshal evidence: %w", err)
	}
	tallyJSON, err := json.Marshal(c.Tally)
	if err != nil {
		return nil, fmt.Errorf("marshal tally: %w", err)
	}
	var ratingJSON []byte
	if c.Rating != nil {
		if ratingJSON, err = json.Marshal(c.Rating); err != nil {
			return nil, fmt.Errorf("marshal rating: %w", err)
		}
	}
	var worker *string
	if c.AssignedWorker != nil {
		w := c.AssignedWorker.String()
		worker = &w
	}

	return []any{
		c.ID.String(), c.Category, string(c.Severity), c.Description, c.LocationText, c.Location.Lat, c.Location.Lng,
		string(c.Status), string(c.CloseReason), c.ReporterID, worker,
		evidenceJSON, tallyJSON, ratingJSON,
		c.Version, c.CreatedAt, c.VerifyingSince, c.ResolvedAt, c.UpdatedAt,
	}, nil
}

func scanComplaint(row pgx.Row) (*domain.Complaint, error) {
	var (
		c                               domain.Complaint
		id                              string
		worker                          *string
		evidenceJSON, tallyJSON, rating []byte
	)
	err := row.Scan(
		&id, &c.Category, &c.Severity, &c.Description, &c.LocationText, &c.Location.Lat, &c.Location.Lng,
		&c.Status, &c.CloseReason, &c.ReporterID, &worker,
		&evidenceJSON, &tallyJSON, &rating,
		&c.Version, &c.CreatedAt, &c.VerifyingSince, &c.ResolvedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.ID = types.ComplaintID(id)
	if worker != nil {
		w := types.ID(*worker)
		c.AssignedWorker = &w
	}

	c.Evidence = []evidence.PhotoEvidence{}
	if len(evidenceJSON) > 0 {
		if err := json.Unmarshal(evidenceJSON, &c.Evidence); err != nil {
			return nil, fmt.Errorf("unmarshal evidence: %w", err)
		}
	}
	if len(tallyJSON) > 0 {
		var t verification.Tally
		if err := json.Unmarshal(tallyJSON, &t); err != nil {
			return nil, fmt.Errorf("unmarshal tally: %w", err)
		}
		c.Tally = t
	}
	if len(rating) > 0 {
		c.Rating = &domain.Rating{}
		if err := json.Unmarshal(rating, c.Rating); err != nil {
			return nil, fmt.Errorf("unmarshal rating: %w", err)
		}
	}
	return &c, nil
}

var _ domain.Repository = (*PostgresRepository)(nil)
