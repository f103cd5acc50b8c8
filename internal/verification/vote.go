package verification

import (
	"fmt"
	"strings"
	"time"
)

type Verdict string

const (
	VerdictYes    Verdict = "yes"
	VerdictNo     Verdict = "no"
	VerdictUnsure Verdict = "unsure"
)

func ParseVerdict(s string) (Verdict, error) {
	switch v := Verdict(strings.ToLower(strings.TrimSpace(s))); v {
	case VerdictYes, VerdictNo, VerdictUnsure:
		return v, nil
	case "not_sure", "notsure":
		return VerdictUnsure, nil
	}
	return "", fmt.Errorf("invalid verdict %q", s)
}

// Vote is one voter's current verdict on a complaint. There is at most one
// per (ComplaintID, VoterID).
type Vote struct {
	ComplaintID string    `json:"complaint_id"`
	VoterID     string    `json:"voter_id"`
	Verdict     Verdict   `json:"verdict"`
	CastAt      time.Time `json:"cast_at"`
}

// Tally counts the current votes of a complaint.
type Tally struct {
	Yes    int `json:"yes"`
	No     int `json:"no"`
	Unsure int `json:"unsure"`
	Total  int `json:"total"`
}

// CrowdScore is 2*yes - no. Unsure votes count toward Total only.
func (t Tally) CrowdScore() int {
	return 2*t.Yes - t.No
}

// Count recomputes a tally from the full vote set.
func Count(votes []Vote) Tally {
	var t Tally
	for _, v := range votes {
		switch v.Verdict {
		case VerdictYes:
			t.Yes++
		case VerdictNo:
			t.No++
		case VerdictUnsure:
			t.Unsure++
		default:
			continue
		}
		t.Total++
	}
	return t
}
