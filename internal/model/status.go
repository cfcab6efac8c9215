package model

import "errors"

// Status is the processing state of a single attachment
type Status string

const (
	StatusPending          Status = "pending"
	StatusFetched          Status = "fetched"
	StatusParsed           Status = "parsed"
	StatusValidated        Status = "validated"
	StatusValidationFailed Status = "validation_failed"
	StatusStored           Status = "stored"
	StatusNotified         Status = "notified"
	StatusDuplicate        Status = "duplicate"
	StatusFailed           Status = "failed"
)

// ErrInvalidTransition is returned when a status change is not allowed
var ErrInvalidTransition = errors.New("invalid status transition")

var transitions = map[Status][]Status{
	StatusPending:   {StatusFetched},
	StatusFetched:   {StatusParsed, StatusFailed},
	StatusParsed:    {StatusValidated, StatusValidationFailed, StatusFailed},
	StatusValidated: {StatusStored, StatusDuplicate, StatusFailed},
	StatusStored:    {StatusNotified},
}

var terminalStates = map[Status]bool{
	StatusNotified:         true,
	StatusValidationFailed: true,
	StatusDuplicate:        true,
	StatusFailed:           true,
}

// IsValid returns true if s is one of the declared statuses
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusFetched, StatusParsed, StatusValidated, StatusValidationFailed,
		StatusStored, StatusNotified, StatusDuplicate, StatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true if no further transition can leave s
func (s Status) IsTerminal() bool {
	return terminalStates[s]
}

// IsSuccess returns true for statuses that mean the invoice was accepted
func (s Status) IsSuccess() bool {
	return s == StatusStored || s == StatusNotified
}

// CanTransitionTo reports whether s may move to next
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}
