package infrastructure

import (
	"context"
	"sync"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grievancegenie/platform/internal/complaint/domain"
	"github.com/grievancegenie/platform/internal/shared/errors"
	"github.com/grievancegenie/platform/internal/shared/types"
)

var now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func reported(t *testing.T, id types.ComplaintID, at time.Time) *domain.Complaint {
	t.Helper()
	c, err := domain.Report(id, domain.NewComplaint{
		Category:    "drainage",
		Severity:    types.SeverityMedium,
		Description: "Blocked drain",
		Location:    types.GeoPoint{Lat: 12.97, Lng: 77.59},
	}, domain.Actor{ID: "citizen-1", Role: "citizen"}, at)
	require.NoError(t, err)
	return c
}

// updateArgs matches the complaint UPDATE: the SET values in column order
// with status and the new version pinned, then the id and expected version
// of the WHERE clause.
func updateArgs(c *domain.Complaint, expected uint64) []any {
	args := make([]any, 0, len(complaintColumns))
	for i := 0; i < len(complaintColumns)-2; i++ {
		args = append(args, pgxmock.AnyArg())
	}
	args[12] = string(c.Status)
	args[16] = c.Version
	return append(args, c.ID.String(), expected)
}

func TestMemoryRepository_NextIDPerYear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryRepository()

	var (
		mu  sync.Mutex
		ids = map[types.ComplaintID]bool{}
		wg  sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := repo.NextID(ctx, 2026)
			assert.NoError(t, err)
			mu.Lock()
			ids[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, ids, 50)
	assert.True(t, ids["GG-2026-00050"])

	id, err := repo.NextID(ctx, 2027)
	require.NoError(t, err)
	assert.Equal(t, types.ComplaintID("GG-2027-00001"), id)
}

func TestMemoryRepository_UpdateCompareAndSwap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryRepository()
	c := reported(t, "GG-2026-00001", now)
	require.NoError(t, repo.Create(ctx, c))
	assert.True(t, errors.Is(repo.Create(ctx, c), errors.ErrConflict))

	a, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	b, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)

	expected := a.Version
	require.NoError(t, a.Fire(domain.TriggerEvidenceAccepted, domain.System, "", now))
	require.NoError(t, repo.Update(ctx, a, expected))

	require.NoError(t, b.Fire(domain.TriggerEvidenceRejected, domain.System, "", now))
	err = repo.Update(ctx, b, expected)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStaleVersion))

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVerifying, got.Status)

	_, err = repo.Get(ctx, "GG-2026-09999")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestMemoryRepository_ListFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryRepository()
	for i, id := range []types.ComplaintID{"GG-2026-00001", "GG-2026-00002", "GG-2026-00003"} {
		c := reported(t, id, now.Add(time.Duration(i)*time.Minute))
		if i == 1 {
			require.NoError(t, c.Fire(domain.TriggerEvidenceAccepted, domain.System, "", now))
		}
		require.NoError(t, repo.Create(ctx, c))
	}

	all, err := repo.List(ctx, domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, types.ComplaintID("GG-2026-00001"), all[0].ID)

	verifying := domain.StatusVerifying
	got, err := repo.List(ctx, domain.ListFilter{Status: &verifying})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.ComplaintID("GG-2026-00002"), got[0].ID)

	page, err := repo.List(ctx, domain.ListFilter{Limit: 1, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, types.ComplaintID("GG-2026-00003"), page[0].ID)
}

func TestPostgresRepository_NextID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO complaint_sequences .* ON CONFLICT \(year\) DO UPDATE`).
		WithArgs(2026, 1).
		WillReturnRows(pgxmock.NewRows([]string{"last_seq"}).AddRow(int64(42)))

	id, err := NewPostgresRepository(mock).NextID(context.Background(), 2026)
	require.NoError(t, err)
	assert.Equal(t, types.ComplaintID("GG-2026-00042"), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpdateStale(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := reported(t, "GG-2026-00001", now)
	require.NoError(t, c.Fire(domain.TriggerEvidenceAccepted, domain.System, "", now))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE complaints SET .* WHERE id = \$18 AND version = \$19`).
		WithArgs(updateArgs(c, 1)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT version FROM complaints WHERE id = \$1`).
		WithArgs("GG-2026-00001").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(5)))
	mock.ExpectRollback()

	err = NewPostgresRepository(mock).Update(context.Background(), c, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStaleVersion))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpdateAppendsNewTimelineOnly(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := reported(t, "GG-2026-00001", now)
	require.NoError(t, c.Fire(domain.TriggerEvidenceAccepted, domain.System, "validated", now))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE complaints SET`).
		WithArgs(updateArgs(c, 1)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(seq\), 0\) FROM complaint_timeline`).
		WithArgs("GG-2026-00001").
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO complaint_timeline`).
		WithArgs("GG-2026-00001", 2, "verifying", "evidence_accepted", "system", "system", "validated", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, NewPostgresRepository(mock).Update(context.Background(), c, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}
