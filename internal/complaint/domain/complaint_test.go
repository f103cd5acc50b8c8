package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grievancegenie/platform/internal/evidence"
	apperrors "github.com/grievancegenie/platform/internal/shared/errors"
	"github.com/grievancegenie/platform/internal/shared/types"
	"github.com/grievancegenie/platform/internal/verification"
)

var (
	now      = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	citizen  = Actor{ID: "citizen-1", Role: "citizen"}
	officer  = Actor{ID: "officer-1", Role: "officer"}
	location = types.GeoPoint{Lat: 12.9716, Lng: 77.5946}
)

func newComplaint(t *testing.T) *Complaint {
	t.Helper()
	c, err := Report("GG-2026-00001", NewComplaint{
		Category:    "pothole",
		Severity:    types.SeverityHigh,
		Description: "Deep pothole near the bus stop",
		Location:    location,
	}, citizen, now)
	require.NoError(t, err)
	return c
}

func assertStatusMatchesTimeline(t *testing.T, c *Complaint) {
	t.Helper()
	require.NotEmpty(t, c.Timeline)
	assert.Equal(t, c.Status, c.LastEvent().Status)
	for i, e := range c.Timeline {
		assert.Equal(t, i+1, e.Seq)
	}
}

func TestReport(t *testing.T) {
	t.Parallel()

	c := newComplaint(t)
	assert.Equal(t, StatusReported, c.Status)
	assert.Equal(t, uint64(1), c.Version)
	assert.Equal(t, "citizen-1", c.ReporterID)
	assertStatusMatchesTimeline(t, c)

	_, err := Report("GG-2026-00002", NewComplaint{Severity: "urgent", Location: types.GeoPoint{Lat: 91}}, citizen, now)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Details, "category")
	assert.Contains(t, appErr.Details, "severity")
	assert.Contains(t, appErr.Details, "location")
}

func TestNext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    Status
		trigger Trigger
		to      Status
		ok      bool
	}{
		{StatusReported, TriggerEvidenceAccepted, StatusVerifying, true},
		{StatusReported, TriggerEvidenceRejected, StatusReported, true},
		{StatusVerifying, TriggerConsensusAssign, StatusAssigned, true},
		{StatusVerifying, TriggerConsensusReview, StatusUnderReview, true},
		{StatusVerifying, TriggerVerificationExpired, StatusClosed, true},
		{StatusUnderReview, TriggerOfficerApprove, StatusAssigned, true},
		{StatusUnderReview, TriggerOfficerReject, StatusClosed, true},
		{StatusAssigned, TriggerWorkStarted, StatusInProgress, true},
		{StatusInProgress, TriggerAfterPhotoAccepted, StatusResolved, true},
		{StatusResolved, TriggerArchived, StatusClosed, true},
		{StatusReported, TriggerConsensusAssign, "", false},
		{StatusVerifying, TriggerWorkStarted, "", false},
		{StatusAssigned, TriggerAfterPhotoAccepted, "", false},
		{StatusClosed, TriggerArchived, "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.trigger), func(t *testing.T) {
			to, ok := Next(tt.from, tt.trigger)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.to, to)
		})
	}
}

// reachable walks the transition table from reported without entering
// the excluded states.
func reachable(exclude ...Status) map[Status]bool {
	seen := map[Status]bool{StatusReported: true}
	queue := []Status{StatusReported}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for _, trig := range AllTriggers {
			to, ok := Next(s, trig)
			if !ok || seen[to] {
				continue
			}
			skip := false
			for _, ex := range exclude {
				if to == ex {
					skip = true
				}
			}
			if skip {
				continue
			}
			seen[to] = true
			queue = append(queue, to)
		}
	}
	return seen
}

func TestLifecycle_ResolvedRequiresAssignedAndInProgress(t *testing.T) {
	t.Parallel()

	all := reachable()
	for _, s := range AllStatuses {
		assert.True(t, all[s], "status %s should be reachable", s)
	}
	assert.False(t, reachable(StatusAssigned)[StatusResolved])
	assert.False(t, reachable(StatusInProgress)[StatusResolved])
	assert.True(t, StatusClosed.Terminal())
}

func TestFire_InvalidTransitionLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	c := newComplaint(t)
	before := c.Clone()

	err := c.Fire(TriggerWorkStarted, officer, "start", now)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTransition))
	assert.Equal(t, before, c)
}

func TestFire_FullHappyPath(t *testing.T) {
	t.Parallel()

	c := newComplaint(t)
	steps := []struct {
		trigger Trigger
		want    Status
	}{
		{TriggerEvidenceAccepted, StatusVerifying},
		{TriggerConsensusAssign, StatusAssigned},
		{TriggerWorkStarted, StatusInProgress},
		{TriggerAfterPhotoAccepted, StatusResolved},
		{TriggerArchived, StatusClosed},
	}
	for i, step := range steps {
		at := now.Add(time.Duration(i+1) * time.Hour)
		require.NoError(t, c.Fire(step.trigger, System, string(step.trigger), at))
		assert.Equal(t, step.want, c.Status)
		assertStatusMatchesTimeline(t, c)
	}

	assert.Equal(t, uint64(len(steps)+1), c.Version)
	require.NotNil(t, c.VerifyingSince)
	assert.Equal(t, now.Add(time.Hour), *c.VerifyingSince)
	require.NotNil(t, c.ResolvedAt)
	assert.Equal(t, CloseArchived, c.CloseReason)
}

func TestFire_TimeoutCloseReason(t *testing.T) {
	t.Parallel()

	c := newComplaint(t)
	require.NoError(t, c.Fire(TriggerEvidenceAccepted, System, "", now))
	require.NoError(t, c.Fire(TriggerVerificationExpired, System, "", now.Add(31*24*time.Hour)))
	assert.Equal(t, StatusClosed, c.Status)
	assert.Equal(t, CloseUnverifiedTimeout, c.CloseReason)
}

func TestEvidence_AttachAndDecide(t *testing.T) {
	t.Parallel()

	c := newComplaint(t)
	pending := evidence.PhotoEvidence{ID: "p1", Kind: evidence.KindBefore, Status: evidence.StatusValidating}
	require.NoError(t, c.AttachEvidence(pending, now))
	assert.Len(t, c.Validating(), 1)

	err := c.AttachEvidence(evidence.PhotoEvidence{ID: "p2", Kind: evidence.KindAfter}, now)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTransition))

	gps := types.GeoPoint{Lat: 12.97, Lng: 77.59}
	decided := pending
	decided.Status = evidence.StatusAccepted
	decided.EXIF = evidence.EXIF{Present: true, GPS: &gps}
	changed, err := c.DecideEvidence(decided, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Empty(t, c.Validating())

	// A decided record never changes again.
	again := decided
	again.Status = evidence.StatusRejected
	changed, err = c.DecideEvidence(again, now)
	require.NoError(t, err)
	assert.False(t, changed)
	got, ok := c.Photo("p1")
	require.True(t, ok)
	assert.Equal(t, evidence.StatusAccepted, got.Status)

	assert.Equal(t, gps, c.AfterPhotoLocation())
}

func TestAssignWorker_Reassignment(t *testing.T) {
	t.Parallel()

	c := newComplaint(t)
	require.NoError(t, c.Fire(TriggerEvidenceAccepted, System, "", now))

	_, err := c.AssignWorker("w1", officer, now)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTransition))

	require.NoError(t, c.Fire(TriggerConsensusAssign, System, "", now))
	prev, err := c.AssignWorker("w1", System, now)
	require.NoError(t, err)
	assert.Nil(t, prev)

	require.NoError(t, c.Fire(TriggerWorkStarted, Actor{ID: "w1", Role: "worker"}, "", now))
	prev, err = c.AssignWorker("w2", officer, now)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, types.ID("w1"), *prev)
	assert.Equal(t, types.ID("w2"), *c.AssignedWorker)
	assert.Equal(t, StatusInProgress, c.Status)
	assertStatusMatchesTimeline(t, c)
}

func TestRate(t *testing.T) {
	t.Parallel()

	c := newComplaint(t)
	good := Rating{Overall: 5, Speed: 4, Quality: 5, Communication: 3, Tags: []string{" fast ", "fast", ""}}

	err := c.Rate(good, citizen, now)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTransition))

	for _, trig := range []Trigger{TriggerEvidenceAccepted, TriggerConsensusAssign, TriggerWorkStarted, TriggerAfterPhotoAccepted} {
		require.NoError(t, c.Fire(trig, System, "", now))
	}

	err = c.Rate(Rating{Overall: 6, Speed: 1, Quality: 1, Communication: 1}, citizen, now)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	require.NoError(t, c.Rate(good, citizen, now))
	require.NotNil(t, c.Rating)
	assert.Equal(t, []string{"fast"}, c.Rating.Tags)

	err = c.Rate(good, citizen, now)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestSetTally_OnlyBumpsOnChange(t *testing.T) {
	t.Parallel()

	c := newComplaint(t)
	v := c.Version
	c.SetTally(verification.Tally{}, now)
	assert.Equal(t, v, c.Version)
	c.SetTally(verification.Tally{Yes: 1, Total: 1}, now)
	assert.Equal(t, v+1, c.Version)
}

func TestClone_IsDeep(t *testing.T) {
	t.Parallel()

	c := newComplaint(t)
	cp := c.Clone()
	require.NoError(t, cp.Fire(TriggerEvidenceAccepted, System, "", now))
	assert.Equal(t, StatusReported, c.Status)
	assert.Len(t, c.Timeline, 1)
	assert.Len(t, cp.Timeline, 2)
}
