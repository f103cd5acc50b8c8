package rewards

import (
	"fmt"
	"time"
)

// EventType is the lifecycle event that earns points.
type EventType string

const (
	EventReportVerified EventType = "report_verified"
	EventVote           EventType = "vote"
	EventRating         EventType = "rating"
	EventShare          EventType = "share"
)

const (
	PointsReportVerified = 25
	PointsVote           = 15
	PointsRatingBase     = 10
	PointsRatingTopScore = 5
	PointsRatingFeedback = 5
	PointsShare          = 10
)

// Activity is a lifecycle event as seen by the rewards ledger.
type Activity struct {
	Type        EventType `json:"type"`
	ComplaintID string    `json:"complaint_id"`
	UserID      string    `json:"user_id"`
	// Overall and Tags are set for EventRating only.
	Overall    int       `json:"overall,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Delta is a point credit. Key is unique per credit; applying the same key
// twice is a no-op.
type Delta struct {
	Key         string    `json:"key"`
	ComplaintID string    `json:"complaint_id"`
	EventType   EventType `json:"event_type"`
	UserID      string    `json:"user_id"`
	Points      int       `json:"points"`
	Reason      string    `json:"reason"`
	CreditedAt  time.Time `json:"credited_at"`
}

// Standing is one leaderboard row.
type Standing struct {
	UserID string `json:"user_id" db:"user_id"`
	Points int    `json:"points"  db:"total"`
}

// IdempotencyKey is (complaint, event type) for per-complaint events and
// (complaint, vote, voter) for votes.
func IdempotencyKey(a Activity) string {
	if a.Type == EventVote {
		return fmt.Sprintf("%s:%s:%s", a.ComplaintID, a.Type, a.UserID)
	}
	return fmt.Sprintf("%s:%s", a.ComplaintID, a.Type)
}
