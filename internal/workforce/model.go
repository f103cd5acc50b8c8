package workforce

import (
	"fmt"
	"time"

	"github.com/grievancegenie/platform/internal/shared/types"
)

type Availability string

const (
	Available Availability = "available"
	Busy      Availability = "busy"
	OffDuty   Availability = "off_duty"
)

func ParseAvailability(s string) (Availability, error) {
	switch a := Availability(s); a {
	case Available, Busy, OffDuty:
		return a, nil
	}
	return "", fmt.Errorf("invalid availability %q", s)
}

// Worker is a field worker who resolves complaints.
type Worker struct {
	ID           types.ID     `json:"id"`
	Name         string       `json:"name"`
	Availability Availability `json:"availability"`
	Assignment   string       `json:"current_assignment,omitempty"`
	// IdleSince orders available workers; the longest idle is picked first.
	IdleSince time.Time `json:"idle_since"`
}
