package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrOutcomeCompleted is returned when a completed outcome is mutated
var ErrOutcomeCompleted = errors.New("outcome already completed")

// Outcome tracks the processing of one attachment through the pipeline
type Outcome struct {
	Attachment       Attachment `json:"attachment"`
	Status           Status     `json:"status"`
	Invoice          *Invoice   `json:"invoice,omitempty"`
	ValidationErrors []string   `json:"validation_errors,omitempty"`
	Warnings         []string   `json:"warnings,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	RecordID         string     `json:"record_id,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      time.Time  `json:"completed_at"`
}

// NewOutcome starts tracking an attachment in the pending state
func NewOutcome(a Attachment, now time.Time) *Outcome {
	return &Outcome{
		Attachment: a,
		Status:     StatusPending,
		StartedAt:  now,
	}
}

// Advance moves the outcome to next, enforcing the status transition table
func (o *Outcome) Advance(next Status) error {
	if o.IsCompleted() {
		return ErrOutcomeCompleted
	}
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	return nil
}

// Fail moves the outcome to next (a failure status) and records the message
func (o *Outcome) Fail(next Status, message string) error {
	if err := o.Advance(next); err != nil {
		return err
	}
	o.ErrorMessage = message
	return nil
}

// Complete stamps the completion time; the outcome is immutable afterwards
func (o *Outcome) Complete(now time.Time) {
	if o.IsCompleted() {
		return
	}
	o.CompletedAt = now
}

// IsCompleted reports whether Complete has been called
func (o *Outcome) IsCompleted() bool {
	return !o.CompletedAt.IsZero()
}

// IsSuccess reports whether the invoice was accepted (stored, notified or not)
func (o *Outcome) IsSuccess() bool {
	return o.Status.IsSuccess()
}

// IsTerminal reports whether the outcome reached a state with no further transitions
func (o *Outcome) IsTerminal() bool {
	return o.Status.IsTerminal()
}

// Duration returns the processing time, or zero if not completed
func (o *Outcome) Duration() time.Duration {
	if !o.IsCompleted() {
		return 0
	}
	return o.CompletedAt.Sub(o.StartedAt)
}

// InvoiceNumber returns the extracted invoice number, if any
func (o *Outcome) InvoiceNumber() string {
	if o.Invoice == nil {
		return ""
	}
	return o.Invoice.Number
}
