package extractor

import (
	"errors"
	"strings"
)

// Kinds of extraction failure, matched with errors.Is
var (
	ErrNoText          = errors.New("no text extracted")
	ErrUnreadable      = errors.New("document unreadable")
	ErrMissingField    = errors.New("required field missing")
	ErrMalformedAmount = errors.New("malformed amount")
	ErrInvalidInvoice  = errors.New("invalid invoice")
)

// ExtractionError reports why a single document could not be turned into an invoice
type ExtractionError struct {
	Filename string
	Field    string
	Kind     error
	Cause    error
}

func (e *ExtractionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	if e.Filename != "" {
		b.WriteString(" (")
		b.WriteString(e.Filename)
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ExtractionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
