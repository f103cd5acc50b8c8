package domain

// Status is a complaint lifecycle state.
type Status string

const (
	StatusReported    Status = "reported"
	StatusVerifying   Status = "verifying"
	StatusAssigned    Status = "assigned"
	StatusUnderReview Status = "under_review"
	StatusInProgress  Status = "in_progress"
	StatusResolved    Status = "resolved"
	StatusClosed      Status = "closed"
)

var AllStatuses = []Status{
	StatusReported,
	StatusVerifying,
	StatusAssigned,
	StatusUnderReview,
	StatusInProgress,
	StatusResolved,
	StatusClosed,
}

func ParseStatus(s string) (Status, bool) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Trigger is anything that may move a complaint through its lifecycle.
type Trigger string

const (
	TriggerReported            Trigger = "reported"
	TriggerEvidenceAccepted    Trigger = "evidence_accepted"
	TriggerEvidenceRejected    Trigger = "evidence_rejected"
	TriggerConsensusAssign     Trigger = "consensus_assign"
	TriggerConsensusReview     Trigger = "consensus_review"
	TriggerVerificationExpired Trigger = "verification_expired"
	TriggerOfficerApprove      Trigger = "officer_approve"
	TriggerOfficerReject       Trigger = "officer_reject"
	TriggerWorkerAssigned      Trigger = "worker_assigned"
	TriggerWorkStarted         Trigger = "work_started"
	TriggerAfterPhotoAccepted  Trigger = "after_photo_accepted"
	TriggerAfterPhotoRejected  Trigger = "after_photo_rejected"
	TriggerRated               Trigger = "rated"
	TriggerShared              Trigger = "shared"
	TriggerArchived            Trigger = "archived"
)

var AllTriggers = []Trigger{
	TriggerEvidenceAccepted,
	TriggerEvidenceRejected,
	TriggerConsensusAssign,
	TriggerConsensusReview,
	TriggerVerificationExpired,
	TriggerOfficerApprove,
	TriggerOfficerReject,
	TriggerWorkerAssigned,
	TriggerWorkStarted,
	TriggerAfterPhotoAccepted,
	TriggerAfterPhotoRejected,
	TriggerRated,
	TriggerShared,
	TriggerArchived,
}

// CloseReason says why a complaint reached closed.
type CloseReason string

const (
	CloseUnverifiedTimeout CloseReason = "unverified_timeout"
	CloseOfficerRejected   CloseReason = "officer_rejected"
	CloseArchived          CloseReason = "archived"
)

// transitions is the whole lifecycle. Pairs missing from it are invalid.
// Entries whose target equals the source record an event without moving.
var transitions = map[Status]map[Trigger]Status{
	StatusReported: {
		TriggerEvidenceAccepted: StatusVerifying,
		TriggerEvidenceRejected: StatusReported,
	},
	StatusVerifying: {
		TriggerConsensusAssign:     StatusAssigned,
		TriggerConsensusReview:     StatusUnderReview,
		TriggerVerificationExpired: StatusClosed,
	},
	StatusUnderReview: {
		TriggerOfficerApprove: StatusAssigned,
		TriggerOfficerReject:  StatusClosed,
	},
	StatusAssigned: {
		TriggerWorkerAssigned: StatusAssigned,
		TriggerWorkStarted:    StatusInProgress,
	},
	StatusInProgress: {
		TriggerWorkerAssigned:     StatusInProgress,
		TriggerAfterPhotoAccepted: StatusResolved,
		TriggerAfterPhotoRejected: StatusInProgress,
	},
	StatusResolved: {
		TriggerRated:    StatusResolved,
		TriggerShared:   StatusResolved,
		TriggerArchived: StatusClosed,
	},
	StatusClosed: {},
}

// Next returns the state trigger leads to from from.
func Next(from Status, trigger Trigger) (Status, bool) {
	to, ok := transitions[from][trigger]
	return to, ok
}

// Terminal reports whether no trigger applies to s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func closeReason(trigger Trigger) CloseReason {
	switch trigger {
	case TriggerVerificationExpired:
		return CloseUnverifiedTimeout
	case TriggerOfficerReject:
		return CloseOfficerRejected
	case TriggerArchived:
		return CloseArchived
	}
	return ""
}
