// Package pipeline drives invoice attachments through extraction, validation,
// storage and notification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"invoice-relay-go/internal/metrics"
	"invoice-relay-go/internal/model"
	"invoice-relay-go/internal/retry"
)

// Item result labels reported to Metrics.ItemProcessed
const (
	ItemSuccess          = "success"
	ItemValidationFailed = "validation_failed"
	ItemDuplicate        = "duplicate"
	ItemParseError       = "parse_error"
	ItemStoreError       = "db_error"
	ItemUnexpectedError  = "unexpected_error"
)

// Run result labels reported to Metrics.RunFinished
const (
	RunSuccess   = "success"
	RunEmpty     = "empty"
	RunError     = "error"
	RunCancelled = "cancelled"
)

// Deps are the collaborators of a pipeline
type Deps struct {
	OpenMailbox MailboxOpener
	OpenStore   StoreOpener
	Extractor   Extractor
	Validator   Validator
	Notifier    Notifier
	Metrics     Metrics
}

// Options tune a pipeline
type Options struct {
	DryRun bool
	Retry  retry.Policy
	Now    func() time.Time
}

// Pipeline processes one batch of attachments per Run
type Pipeline struct {
	openMailbox MailboxOpener
	openStore   StoreOpener
	extractor   Extractor
	validator   Validator
	notifier    Notifier
	metrics     Metrics
	retry       retry.Policy
	dryRun      bool
	now         func() time.Time
}

// New creates a pipeline. A nil Notifier or Metrics disables that concern.
func New(deps Deps, opts Options) *Pipeline {
	p := &Pipeline{
		openMailbox: deps.OpenMailbox,
		openStore:   deps.OpenStore,
		extractor:   deps.Extractor,
		validator:   deps.Validator,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		retry:       opts.Retry,
		dryRun:      opts.DryRun,
		now:         opts.Now,
	}
	if p.notifier == nil {
		p.notifier = nopNotifier{}
	}
	if p.metrics == nil {
		p.metrics = metrics.Nop{}
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// DryRun reports whether storage and notifications are suppressed
func (p *Pipeline) DryRun() bool {
	return p.dryRun
}

// Run fetches the pending attachments and processes them one at a time.
//
// Only a failure to reach the mailbox or fetch the batch is returned as an
// error; every per-item failure is recorded in that item's outcome. When ctx
// is cancelled no further items are started and the outcomes gathered so far
// are returned together with the context error.
func (p *Pipeline) Run(ctx context.Context) (outcomes []*model.Outcome, err error) {
	p.metrics.RunStarted()
	start := time.Now()
	runOutcome := RunError
	defer func() {
		d := time.Since(start)
		p.metrics.RunFinished(runOutcome, d)
		logrus.Infof("Pipeline run duration: %.2f seconds", d.Seconds())
	}()

	logrus.WithField("dry_run", p.dryRun).Info("Starting invoice processing pipeline run")

	mbox, err := retry.Value(ctx, p.policy("mailbox connect"), "mailbox connect", func(ctx context.Context) (Mailbox, error) {
		return p.openMailbox(ctx)
	})
	if err != nil {
		logrus.Errorf("Failed to connect to mailbox: %v", err)
		return nil, fmt.Errorf("failed to connect to mailbox: %w", err)
	}
	defer func() {
		if cerr := mbox.Close(); cerr != nil {
			logrus.Warnf("Failed to close mailbox: %v", cerr)
		}
	}()

	fetchStart := time.Now()
	attachments, err := retry.Value(ctx, p.policy("fetch attachments"), "fetch attachments", mbox.FetchPending)
	p.metrics.FetchDuration(time.Since(fetchStart))
	if err != nil {
		logrus.Errorf("Failed to fetch invoice attachments: %v", err)
		return nil, fmt.Errorf("failed to fetch attachments: %w", err)
	}

	if len(attachments) == 0 {
		logrus.Info("No invoice attachments found")
		runOutcome = RunEmpty
		return []*model.Outcome{}, nil
	}

	logrus.Infof("Processing %d attachment(s)", len(attachments))

	var store Store
	var storeErr error
	if !p.dryRun {
		store, storeErr = retry.Value(ctx, p.policy("store connect"), "store connect", func(ctx context.Context) (Store, error) {
			return p.openStore(ctx)
		})
		if storeErr != nil {
			logrus.Errorf("Failed to connect to store: %v", storeErr)
		} else {
			defer func() {
				if cerr := store.Close(); cerr != nil {
					logrus.Warnf("Failed to close store: %v", cerr)
				}
			}()
		}
	}

	outcomes = make([]*model.Outcome, 0, len(attachments))
	for _, a := range attachments {
		if ctx.Err() != nil {
			logrus.Warnf("Run cancelled, %d attachment(s) left unprocessed", len(attachments)-len(outcomes))
			break
		}
		outcomes = append(outcomes, p.processOne(ctx, a, mbox, store, storeErr))
	}

	safely("", "summary notification", func() { p.sendSummary(ctx, outcomes) })

	s := model.Summarize(outcomes)
	logrus.Infof("Pipeline run complete: %d processed, %d successful, %d failed", s.Total, s.Successful, s.Failed)

	if err := ctx.Err(); err != nil {
		runOutcome = RunCancelled
		return outcomes, err
	}
	runOutcome = RunSuccess
	return outcomes, nil
}

// processOne runs a single attachment to a terminal state, recovering panics as failures
func (p *Pipeline) processOne(ctx context.Context, a model.Attachment, mbox Mailbox, store Store, storeErr error) *model.Outcome {
	o := model.NewOutcome(a, p.now())
	label := ItemUnexpectedError

	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("filename", a.Filename).Errorf("Unexpected error processing attachment: %v", r)
			label = ItemUnexpectedError
			msg := fmt.Sprintf("unexpected error: %v", r)
			if err := o.Fail(model.StatusFailed, msg); err != nil {
				o.ErrorMessage = msg
			}
		}

		if o.Status == model.StatusFailed || o.Status == model.StatusValidationFailed {
			safely(a.Filename, "failure notification", func() { p.reportFailure(ctx, a, o.ErrorMessage) })
		}
		safely(a.Filename, "mark consumed", func() { p.markConsumed(ctx, mbox, a) })

		o.Complete(p.now())
		p.metrics.ItemProcessed(label, o.Duration())
		logrus.WithFields(logrus.Fields{
			"filename":       a.Filename,
			"attachment_id":  a.ID,
			"invoice_number": o.InvoiceNumber(),
			"status":         o.Status,
			"duration_ms":    o.Duration().Milliseconds(),
		}).Infof("Processed %s in %.2f seconds", a.Filename, o.Duration().Seconds())
	}()

	mustAdvance(o, model.StatusFetched)
	logrus.WithFields(logrus.Fields{
		"filename": a.Filename,
		"sender":   a.Sender,
	}).Info("Extracting attachment")

	extractStart := time.Now()
	inv, err := p.extractor.Extract(a.Content, a.Filename)
	p.metrics.ExtractDuration(time.Since(extractStart))
	if err != nil {
		logrus.WithField("filename", a.Filename).Errorf("Extraction failed: %v", err)
		mustFail(o, model.StatusFailed, err.Error())
		label = ItemParseError
		return o
	}
	o.Invoice = inv
	mustAdvance(o, model.StatusParsed)

	verdict := p.validator.Validate(inv)
	o.Warnings = verdict.Warnings
	if !verdict.Valid {
		o.ValidationErrors = verdict.Errors
		msg := strings.Join(verdict.Errors, "; ")
		mustFail(o, model.StatusValidationFailed, msg)
		for _, check := range verdict.FailedChecks {
			p.metrics.ValidationFailed(check)
		}
		label = ItemValidationFailed
		if !p.dryRun && store != nil {
			p.audit(ctx, store, inv.Number, model.AuditValidationFailed, msg)
		}
		return o
	}
	mustAdvance(o, model.StatusValidated)

	if p.dryRun {
		logrus.Infof("[DRY RUN] Would store invoice %s", inv.Number)
		mustAdvance(o, model.StatusStored)
		label = ItemSuccess
		return o
	}

	if store == nil {
		mustFail(o, model.StatusFailed, fmt.Sprintf("store unavailable: %v", storeErr))
		label = ItemStoreError
		return o
	}

	exists, err := retry.Value(ctx, p.policy("duplicate check"), "duplicate check", func(ctx context.Context) (bool, error) {
		return store.Exists(ctx, inv.Number)
	})
	if err != nil {
		mustFail(o, model.StatusFailed, fmt.Sprintf("duplicate check failed: %v", err))
		label = ItemStoreError
		return o
	}
	if exists {
		p.skipDuplicate(ctx, o, store)
		label = ItemDuplicate
		return o
	}

	storeStart := time.Now()
	id, err := retry.Value(ctx, p.policy("insert invoice"), "insert invoice", func(ctx context.Context) (string, error) {
		return store.Insert(ctx, inv, a.Source())
	})
	p.metrics.StoreDuration(time.Since(storeStart))
	if errors.Is(err, model.ErrDuplicateInvoice) {
		p.skipDuplicate(ctx, o, store)
		label = ItemDuplicate
		return o
	}
	if err != nil {
		logrus.WithField("invoice_number", inv.Number).Errorf("Failed to store invoice: %v", err)
		mustFail(o, model.StatusFailed, fmt.Sprintf("failed to store invoice: %v", err))
		label = ItemStoreError
		return o
	}
	o.RecordID = id
	mustAdvance(o, model.StatusStored)
	label = ItemSuccess

	if err := p.notifier.ReportSuccess(ctx, inv); err != nil {
		logrus.WithField("invoice_number", inv.Number).Warnf("Failed to send success notification: %v", err)
		return o
	}
	mustAdvance(o, model.StatusNotified)
	return o
}

func (p *Pipeline) skipDuplicate(ctx context.Context, o *model.Outcome, store Store) {
	number := o.InvoiceNumber()
	msg := fmt.Sprintf("Duplicate invoice: %s", number)
	logrus.Warn(msg)
	mustFail(o, model.StatusDuplicate, msg)
	p.audit(ctx, store, number, model.AuditDuplicateSkipped, o.Attachment.Filename)
}

func (p *Pipeline) audit(ctx context.Context, store Store, number, kind, detail string) {
	if err := store.AppendAudit(ctx, number, kind, detail); err != nil {
		logrus.WithField("invoice_number", number).Warnf("Failed to record %s audit event: %v", kind, err)
	}
}

func (p *Pipeline) reportFailure(ctx context.Context, a model.Attachment, message string) {
	if p.dryRun {
		return
	}
	if err := p.notifier.ReportFailure(ctx, a.Filename, message, a.Sender); err != nil {
		logrus.WithField("filename", a.Filename).Warnf("Failed to send failure notification: %v", err)
	}
}

// markConsumed flags the source message as handled. Dry runs leave the mailbox untouched.
func (p *Pipeline) markConsumed(ctx context.Context, mbox Mailbox, a model.Attachment) {
	if p.dryRun {
		return
	}
	if err := mbox.MarkConsumed(ctx, a.ID); err != nil {
		logrus.WithField("attachment_id", a.ID).Warnf("Failed to mark email as processed: %v", err)
	}
}

func (p *Pipeline) sendSummary(ctx context.Context, outcomes []*model.Outcome) {
	if p.dryRun || len(outcomes) == 0 {
		return
	}
	if err := p.notifier.ReportSummary(ctx, outcomes); err != nil {
		logrus.Warnf("Failed to send summary notification: %v", err)
	}
}

// policy returns the retry policy for operation, counting every retry
func (p *Pipeline) policy(operation string) retry.Policy {
	policy := p.retry
	observe := policy.OnRetry
	policy.OnRetry = func(attempt int, err error) {
		p.metrics.RetryAttempt(operation)
		if observe != nil {
			observe(attempt, err)
		}
	}
	return policy
}

// safely runs a best-effort side effect, logging a panic instead of letting it abort the run
func safely(filename, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("filename", filename).Errorf("Unexpected error during %s: %v", what, r)
		}
	}()
	fn()
}

// mustAdvance panics on an illegal transition; processOne recovers it as a failure
func mustAdvance(o *model.Outcome, next model.Status) {
	if err := o.Advance(next); err != nil {
		panic(err)
	}
}

func mustFail(o *model.Outcome, next model.Status, message string) {
	if err := o.Fail(next, message); err != nil {
		panic(err)
	}
}
