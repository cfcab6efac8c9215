package pipeline

import (
	"context"
	"time"

	"invoice-relay-go/internal/model"
)

// Mailbox is an open mailbox session for one run
type Mailbox interface {
	FetchPending(ctx context.Context) ([]model.Attachment, error)
	MarkConsumed(ctx context.Context, id string) error
	Close() error
}

// Store persists accepted invoices. Insert reports an already recorded
// invoice number with model.ErrDuplicateInvoice.
type Store interface {
	Exists(ctx context.Context, invoiceNumber string) (bool, error)
	Insert(ctx context.Context, inv *model.Invoice, src model.SourceMeta) (string, error)
	AppendAudit(ctx context.Context, invoiceNumber, kind, detail string) error
	Close() error
}

// Notifier reports outcomes to humans. Every error is swallowed by the pipeline.
type Notifier interface {
	ReportSuccess(ctx context.Context, inv *model.Invoice) error
	ReportFailure(ctx context.Context, filename, message, sender string) error
	ReportSummary(ctx context.Context, outcomes []*model.Outcome) error
}

// Extractor turns document bytes into an invoice
type Extractor interface {
	Extract(content []byte, filename string) (*model.Invoice, error)
}

// Validator checks an invoice against the business rules
type Validator interface {
	Validate(inv *model.Invoice) *model.Verdict
}

// Metrics receives pipeline observations
type Metrics interface {
	RunStarted()
	RunFinished(outcome string, d time.Duration)
	ItemProcessed(status string, d time.Duration)
	ValidationFailed(check string)
	RetryAttempt(operation string)
	FetchDuration(d time.Duration)
	ExtractDuration(d time.Duration)
	StoreDuration(d time.Duration)
}

// MailboxOpener connects to the mailbox at the start of a run
type MailboxOpener func(ctx context.Context) (Mailbox, error)

// StoreOpener connects to the store at the start of a run
type StoreOpener func(ctx context.Context) (Store, error)

type nopNotifier struct{}

func (nopNotifier) ReportSuccess(context.Context, *model.Invoice) error         { return nil }
func (nopNotifier) ReportFailure(context.Context, string, string, string) error { return nil }
func (nopNotifier) ReportSummary(context.Context, []*model.Outcome) error       { return nil }
