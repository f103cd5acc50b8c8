package verification

import (
	"time"

	"github.com/grievancegenie/platform/internal/shared/config"
	"github.com/grievancegenie/platform/internal/shared/types"
)

type Outcome string

const (
	// OutcomePending: not enough votes yet.
	OutcomePending Outcome = "pending"
	// OutcomeAssign: eligible with a positive crowd score.
	OutcomeAssign Outcome = "assign"
	// OutcomeReview: eligible but disputed; an officer decides.
	OutcomeReview Outcome = "review"
)

// Policy holds the consensus thresholds.
type Policy struct {
	HighVotes   int
	MediumVotes int
	LowVotes    int
	NoMargin    int
	Window      time.Duration
}

func PolicyFromConfig(cfg config.VerificationConfig) Policy {
	return Policy{
		HighVotes:   cfg.HighVotes,
		MediumVotes: cfg.MediumVotes,
		LowVotes:    cfg.LowVotes,
		NoMargin:    cfg.NoMargin,
		Window:      cfg.Window,
	}
}

func DefaultPolicy() Policy {
	return Policy{HighVotes: 3, MediumVotes: 5, LowVotes: 8, NoMargin: 1, Window: 30 * 24 * time.Hour}
}

// RequiredVotes is the escalation threshold for a severity. Unknown
// severities get the strictest threshold.
func (p Policy) RequiredVotes(sev types.Severity) int {
	switch sev {
	case types.SeverityHigh:
		return p.HighVotes
	case types.SeverityMedium:
		return p.MediumVotes
	default:
		return p.LowVotes
	}
}

// Decision is the consensus reading of a tally.
type Decision struct {
	Outcome    Outcome `json:"outcome"`
	Eligible   bool    `json:"eligible"`
	CrowdScore int     `json:"crowd_score"`
	Required   int     `json:"required"`
	Tally      Tally   `json:"tally"`
}

// Evaluate applies the escalation rules:
//   - total below the severity threshold: pending
//   - no exceeding yes by at least NoMargin: review
//   - positive crowd score: assign
//   - anything else (only unsure votes): review
func (p Policy) Evaluate(t Tally, sev types.Severity) Decision {
	d := Decision{
		CrowdScore: t.CrowdScore(),
		Required:   p.RequiredVotes(sev),
		Tally:      t,
		Outcome:    OutcomePending,
	}
	d.Eligible = t.Total >= d.Required
	if !d.Eligible {
		return d
	}

	margin := p.NoMargin
	if margin < 1 {
		margin = 1
	}
	switch {
	case t.No-t.Yes >= margin:
		d.Outcome = OutcomeReview
	case d.CrowdScore > 0:
		d.Outcome = OutcomeAssign
	default:
		d.Outcome = OutcomeReview
	}
	return d
}

// Expired reports whether a verification that started at since has run out
// of time at now.
func (p Policy) Expired(since, now time.Time) bool {
	return !since.IsZero() && now.Sub(since) > p.Window
}
