package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/grievancegenie/platform/internal/shared/database"
	"github.com/grievancegenie/platform/internal/shared/metrics"
)

// Store is append-only storage for the chain.
type Store interface {
	// Last returns the head of the chain, or nil when empty.
	Last(ctx context.Context) (*Entry, error)
	Has(ctx context.Context, id string) (bool, error)
	Append(ctx context.Context, e *Entry) error
	// List returns up to limit entries with sequence > after, ascending.
	List(ctx context.Context, after int64, limit int) ([]*Entry, error)
}

// MemoryStore keeps the chain in a slice.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
	ids     map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]struct{})}
}

func (s *MemoryStore) Last(_ context.Context) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, nil
	}
	cp := *s.entries[len(s.entries)-1]
	return &cp, nil
}

func (s *MemoryStore) Has(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok, nil
}

func (s *MemoryStore) Append(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[e.ID]; ok {
		return fmt.Errorf("audit entry %s already recorded", e.ID)
	}
	cp := *e
	s.entries = append(s.entries, &cp)
	s.ids[e.ID] = struct{}{}
	return nil
}

func (s *MemoryStore) List(_ context.Context, after int64, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Entry
	for _, e := range s.entries {
		if e.Sequence <= after {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// tamper overwrites a stored entry in place; tests use it to break the chain.
func (s *MemoryStore) tamper(seq int64, fn func(*Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Sequence == seq {
			fn(e)
		}
	}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var entryColumns = []string{
	"sequence", "id", "occurred_at", "event_type", "subject",
	"actor_id", "actor_role", "payload", "prev_hash", "hash",
}

// PostgresStore writes the chain to audit_log.
type PostgresStore struct {
	db database.Querier
}

func NewPostgresStore(db database.Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Last(ctx context.Context) (*Entry, error) {
	query, args, err := psql.Select(entryColumns...).
		From("audit_log").
		OrderBy("sequence DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	e, err := scanEntry(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read audit head: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) Has(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM audit_log WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check audit entry: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Append(ctx context.Context, e *Entry) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("audit_append", time.Since(start)) }()

	query, args, err := psql.Insert("audit_log").
		Columns(entryColumns...).
		Values(e.Sequence, e.ID, e.OccurredAt, e.EventType, e.Subject,
			e.ActorID, e.ActorRole, []byte(e.Payload), e.PrevHash, e.Hash).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, after int64, limit int) ([]*Entry, error) {
	b := psql.Select(entryColumns...).
		From("audit_log").
		Where(sq.Gt{"sequence": after}).
		OrderBy("sequence")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var payload []byte
	err := row.Scan(&e.Sequence, &e.ID, &e.OccurredAt, &e.EventType, &e.Subject,
		&e.ActorID, &e.ActorRole, &payload, &e.PrevHash, &e.Hash)
	if err != nil {
		return nil, err
	}
	e.Payload = payload
	return &e, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
