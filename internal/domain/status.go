package domain

import (
	"fmt"
	"strings"
)

// Status is the closed set of application lifecycle states.
type Status string

const (
	StatusApplied     Status = "APPLIED"
	StatusReviewed    Status = "REVIEWED"
	StatusShortlisted Status = "SHORTLISTED"
	StatusInterview   Status = "INTERVIEW"
	StatusOffer       Status = "OFFER"
	StatusHired       Status = "HIRED"
	StatusRejected    Status = "REJECTED"
)

var statuses = map[Status]struct{}{
	StatusApplied:     {},
	StatusReviewed:    {},
	StatusShortlisted: {},
	StatusInterview:   {},
	StatusOffer:       {},
	StatusHired:       {},
	StatusRejected:    {},
}

// UnknownStatusError reports a value outside the status enum.
type UnknownStatusError struct {
	Raw string
}

func (e UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown status %q", e.Raw)
}

// ParseStatus normalizes raw input to uppercase and rejects values outside
// the enum.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := statuses[s]; !ok {
		return "", UnknownStatusError{Raw: raw}
	}
	return s, nil
}

// Terminal reports whether no further transitions are offered from s.
func (s Status) Terminal() bool {
	return s == StatusHired || s == StatusRejected
}

func (s Status) String() string { return string(s) }
