package rewards

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grievancegenie/platform/internal/shared/logging"
)

var at = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func TestCompute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     Activity
		points int
		key    string
		ok     bool
	}{
		{"report verified", Activity{Type: EventReportVerified, ComplaintID: "GG-2026-00001", UserID: "r1"}, 25, "GG-2026-00001:report_verified", true},
		{"vote", Activity{Type: EventVote, ComplaintID: "GG-2026-00001", UserID: "v1"}, 15, "GG-2026-00001:vote:v1", true},
		{"rating plain", Activity{Type: EventRating, ComplaintID: "GG-2026-00001", UserID: "r1", Overall: 3}, 10, "GG-2026-00001:rating", true},
		{"rating top score", Activity{Type: EventRating, ComplaintID: "GG-2026-00001", UserID: "r1", Overall: 5}, 15, "GG-2026-00001:rating", true},
		{"rating with tags", Activity{Type: EventRating, ComplaintID: "GG-2026-00001", UserID: "r1", Overall: 4, Tags: []string{"fast"}}, 15, "GG-2026-00001:rating", true},
		{"rating max", Activity{Type: EventRating, ComplaintID: "GG-2026-00001", UserID: "r1", Overall: 5, Tags: []string{"fast", "polite"}}, 20, "GG-2026-00001:rating", true},
		{"share", Activity{Type: EventShare, ComplaintID: "GG-2026-00001", UserID: "r1"}, 10, "GG-2026-00001:share", true},
		{"unknown type", Activity{Type: "like", ComplaintID: "GG-2026-00001", UserID: "r1"}, 0, "", false},
		{"missing user", Activity{Type: EventShare, ComplaintID: "GG-2026-00001"}, 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := Compute(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.points, d.Points)
			assert.Equal(t, tt.key, d.Key)
		})
	}
}

func TestLedger_RatingCreditedOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := NewLedger(logging.Discard(), NewMemoryStore())
	rating := Activity{
		Type:        EventRating,
		ComplaintID: "GG-2026-00001",
		UserID:      "r1",
		Overall:     5,
		Tags:        []string{"fast", "clean"},
		OccurredAt:  at,
	}

	d, credited, err := l.Apply(ctx, rating)
	require.NoError(t, err)
	assert.True(t, credited)
	assert.Equal(t, 20, d.Points)

	_, credited, err = l.Apply(ctx, rating)
	require.NoError(t, err)
	assert.False(t, credited)

	total, err := l.Total(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 20, total)
}

func TestLedger_VotesKeyedPerVoter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := NewLedger(logging.Discard(), NewMemoryStore())

	for _, voter := range []string{"v1", "v2", "v1"} {
		_, _, err := l.Apply(ctx, Activity{Type: EventVote, ComplaintID: "GG-2026-00001", UserID: voter, OccurredAt: at})
		require.NoError(t, err)
	}
	_, _, err := l.Apply(ctx, Activity{Type: EventVote, ComplaintID: "GG-2026-00002", UserID: "v1", OccurredAt: at})
	require.NoError(t, err)

	top, err := l.Leaderboard(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []Standing{{UserID: "v1", Points: 30}, {UserID: "v2", Points: 15}}, top)

	top, err = l.Leaderboard(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestPostgresStore_CreditConflictIsNoop(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	d, ok := Compute(Activity{Type: EventShare, ComplaintID: "GG-2026-00001", UserID: "r1", OccurredAt: at})
	require.True(t, ok)

	mock.ExpectExec(`INSERT INTO reward_ledger .* ON CONFLICT \(idempotency_key\) DO NOTHING`).
		WithArgs(d.Key, d.ComplaintID, "share", d.UserID, d.Points, d.Reason, d.CreditedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO reward_ledger`).
		WithArgs(d.Key, d.ComplaintID, "share", d.UserID, d.Points, d.Reason, d.CreditedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	store := NewPostgresStore(mock)
	credited, err := store.Credit(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, credited)

	credited, err = store.Credit(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, credited)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Top(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT user_id, SUM\(points\) AS total FROM reward_ledger GROUP BY user_id ORDER BY total DESC, user_id LIMIT 2`).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "total"}).
			AddRow("r1", 45).
			AddRow("v1", 30))

	top, err := NewPostgresStore(mock).Top(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []Standing{{UserID: "r1", Points: 45}, {UserID: "v1", Points: 30}}, top)
	assert.NoError(t, mock.ExpectationsWereMet())
}
