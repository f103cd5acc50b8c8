package notification

import (
	"time"
)

// Channel is the delivery channel of a notification.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelPush  Channel = "push"
)

// Kind classifies what the notification is about.
type Kind string

const (
	KindStatusChange     Kind = "status_change"
	KindEvidenceRejected Kind = "evidence_rejected"
	KindWorkAssigned     Kind = "work_assigned"
	KindPointsCredited   Kind = "points_credited"
)

// Status is the delivery status of a notification.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Notification is a message to one citizen or worker.
type Notification struct {
	ID          string  `json:"id"`
	Kind        Kind    `json:"kind"`
	Channel     Channel `json:"channel"`
	Status      Status  `json:"status"`
	RecipientID string  `json:"recipient_id"`

	Subject string            `json:"subject"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data,omitempty"`

	// EventID is the bus event the notification was derived from.
	EventID     string `json:"event_id"`
	ComplaintID string `json:"complaint_id,omitempty"`

	RetryCount   int        `json:"retry_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Stats counts notifications by outcome.
type Stats struct {
	Queued  int64          `json:"queued"`
	Sent    int64          `json:"sent"`
	Failed  int64          `json:"failed"`
	Dropped int64          `json:"dropped"`
	ByKind  map[Kind]int64 `json:"by_kind"`
}
