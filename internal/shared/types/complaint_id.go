package types

import (
	"fmt"
	"strconv"
	"strings"
)

const complaintPrefix = "GG"

// ComplaintID is the public complaint identifier, GG-<year>-<sequence>.
type ComplaintID string

// NewComplaintID formats a complaint identifier. Sequences are zero padded
// to five digits and grow past that when needed.
func NewComplaintID(year int, seq int64) ComplaintID {
	return ComplaintID(fmt.Sprintf("%s-%d-%05d", complaintPrefix, year, seq))
}

// ParseComplaintID validates the GG-<year>-<sequence> shape.
func ParseComplaintID(s string) (ComplaintID, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 || parts[0] != complaintPrefix {
		return "", fmt.Errorf("invalid complaint id %q", s)
	}
	if year, err := strconv.Atoi(parts[1]); err != nil || year < 2000 || year > 9999 {
		return "", fmt.Errorf("invalid complaint id %q: bad year", s)
	}
	if seq, err := strconv.ParseInt(parts[2], 10, 64); err != nil || seq <= 0 {
		return "", fmt.Errorf("invalid complaint id %q: bad sequence", s)
	}
	return ComplaintID(s), nil
}

func (id ComplaintID) String() string {
	return string(id)
}

func (id ComplaintID) IsZero() bool {
	return id == ""
}
