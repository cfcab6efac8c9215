package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"invoice-relay-go/internal/extractor"
	"invoice-relay-go/internal/model"
	"invoice-relay-go/internal/retry"
	"invoice-relay-go/internal/validator"
)

const invoiceA = `Invoice Number: INV-2024-001
Date: 01/15/2024
Vendor: Acme Corp
Widget A    10    25.00    250.00
Widget B     5    50.00    250.00
Total: $500.00`

var clock = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

type fakeMailbox struct {
	attachments []model.Attachment
	fetchErr    error
	markErr     error
	consumed    []string
	closed      bool
}

func (m *fakeMailbox) FetchPending(context.Context) ([]model.Attachment, error) {
	return m.attachments, m.fetchErr
}

func (m *fakeMailbox) MarkConsumed(_ context.Context, id string) error {
	m.consumed = append(m.consumed, id)
	return m.markErr
}

func (m *fakeMailbox) Close() error {
	m.closed = true
	return nil
}

type fakeStore struct {
	existing  map[string]bool
	inserted  []*model.Invoice
	audits    []string
	existsErr error
	insertErr error
	closed    bool
}

func newFakeStore(existing ...string) *fakeStore {
	s := &fakeStore{existing: map[string]bool{}}
	for _, n := range existing {
		s.existing[n] = true
	}
	return s
}

func (s *fakeStore) Exists(_ context.Context, number string) (bool, error) {
	return s.existing[number], s.existsErr
}

func (s *fakeStore) Insert(_ context.Context, inv *model.Invoice, _ model.SourceMeta) (string, error) {
	if s.insertErr != nil {
		return "", s.insertErr
	}
	s.inserted = append(s.inserted, inv)
	s.existing[inv.Number] = true
	return "rec-" + inv.Number, nil
}

func (s *fakeStore) AppendAudit(_ context.Context, number, kind, _ string) error {
	s.audits = append(s.audits, kind+":"+number)
	return nil
}

func (s *fakeStore) Close() error {
	s.closed = true
	return nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) ReportSuccess(ctx context.Context, inv *model.Invoice) error {
	return m.Called(ctx, inv).Error(0)
}

func (m *mockNotifier) ReportFailure(ctx context.Context, filename, message, sender string) error {
	return m.Called(ctx, filename, message, sender).Error(0)
}

func (m *mockNotifier) ReportSummary(ctx context.Context, outcomes []*model.Outcome) error {
	return m.Called(ctx, outcomes).Error(0)
}

func newNotifier() *mockNotifier {
	n := &mockNotifier{}
	n.On("ReportSuccess", mock.Anything, mock.Anything).Return(nil).Maybe()
	n.On("ReportFailure", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	n.On("ReportSummary", mock.Anything, mock.Anything).Return(nil).Maybe()
	return n
}

type recordingMetrics struct {
	items   map[string]int
	checks  []string
	retries []string
	runs    []string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{items: map[string]int{}}
}

func (r *recordingMetrics) RunStarted()                                  {}
func (r *recordingMetrics) RunFinished(outcome string, _ time.Duration)  { r.runs = append(r.runs, outcome) }
func (r *recordingMetrics) ItemProcessed(status string, _ time.Duration) { r.items[status]++ }
func (r *recordingMetrics) ValidationFailed(check string)                { r.checks = append(r.checks, check) }
func (r *recordingMetrics) RetryAttempt(op string)                       { r.retries = append(r.retries, op) }
func (r *recordingMetrics) FetchDuration(time.Duration)                  {}
func (r *recordingMetrics) ExtractDuration(time.Duration)                {}
func (r *recordingMetrics) StoreDuration(time.Duration)                  {}

// textExtractor treats attachment content as the document text
func textExtractor() Extractor {
	return extractor.New(extractor.TextFunc(func(content []byte) ([]string, error) {
		return []string{string(content)}, nil
	}), extractor.WithClock(clock))
}

func testValidator() Validator {
	ref := validator.NewReferenceData(nil, []string{"Acme Corp"})
	return validator.New(validator.DefaultRules(), ref, validator.WithClock(clock))
}

func noSleepPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

type harness struct {
	mailbox  *fakeMailbox
	store    *fakeStore
	notifier *mockNotifier
	metrics  *recordingMetrics
	deps     Deps
	opts     Options
}

func newHarness(attachments ...model.Attachment) *harness {
	h := &harness{
		mailbox:  &fakeMailbox{attachments: attachments},
		store:    newFakeStore(),
		notifier: newNotifier(),
		metrics:  newRecordingMetrics(),
	}
	h.deps = Deps{
		OpenMailbox: func(context.Context) (Mailbox, error) { return h.mailbox, nil },
		OpenStore:   func(context.Context) (Store, error) { return h.store, nil },
		Extractor:   textExtractor(),
		Validator:   testValidator(),
		Notifier:    h.notifier,
		Metrics:     h.metrics,
	}
	h.opts = Options{Retry: noSleepPolicy(), Now: clock}
	return h
}

func (h *harness) run(t *testing.T) []*model.Outcome {
	t.Helper()
	outcomes, err := New(h.deps, h.opts).Run(context.Background())
	require.NoError(t, err)
	return outcomes
}

func attachment(id, filename, text string) model.Attachment {
	return model.Attachment{
		ID:       id,
		Filename: filename,
		Content:  []byte(text),
		Sender:   "billing@acme.example",
		Subject:  "Invoice " + id,
	}
}

func TestValidInvoiceIsStoredAndNotified(t *testing.T) {
	h := newHarness(attachment("1", "a.pdf", invoiceA))

	outcomes := h.run(t)

	require.Len(t, outcomes, 1)
	o := outcomes[0]
	assert.Equal(t, model.StatusNotified, o.Status)
	assert.True(t, o.IsSuccess())
	assert.True(t, o.IsCompleted())
	assert.Equal(t, "rec-INV-2024-001", o.RecordID)
	assert.Equal(t, []string{"No PO number on invoice"}, o.Warnings)
	require.Len(t, h.store.inserted, 1)
	assert.Equal(t, "INV-2024-001", h.store.inserted[0].Number)
	assert.Equal(t, []string{"1"}, h.mailbox.consumed)
	assert.True(t, h.mailbox.closed)
	assert.True(t, h.store.closed)

	h.notifier.AssertNumberOfCalls(t, "ReportSuccess", 1)
	h.notifier.AssertNotCalled(t, "ReportFailure", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.notifier.AssertNumberOfCalls(t, "ReportSummary", 1)
	assert.Equal(t, 1, h.metrics.items[ItemSuccess])
	assert.Equal(t, []string{RunSuccess}, h.metrics.runs)
}

func TestMismatchedTotalFailsValidation(t *testing.T) {
	text := strings.Replace(invoiceA, "Total: $500.00", "Total: $999.99", 1)
	h := newHarness(attachment("2", "b.pdf", text))

	outcomes := h.run(t)

	o := outcomes[0]
	assert.Equal(t, model.StatusValidationFailed, o.Status)
	require.Len(t, o.ValidationErrors, 1)
	assert.Contains(t, o.ErrorMessage, "does not match")
	assert.Empty(t, h.store.inserted)
	assert.Equal(t, []string{model.AuditValidationFailed + ":INV-2024-001"}, h.store.audits)
	assert.Equal(t, []string{validator.CheckLineItemsSum}, h.metrics.checks)

	h.notifier.AssertNumberOfCalls(t, "ReportFailure", 1)
	h.notifier.AssertCalled(t, "ReportFailure", mock.Anything, "b.pdf", o.ErrorMessage, "billing@acme.example")
	h.notifier.AssertNotCalled(t, "ReportSuccess", mock.Anything, mock.Anything)
}

func TestDuplicateInvoiceIsSkippedSilently(t *testing.T) {
	h := newHarness(attachment("3", "c.pdf", invoiceA))
	h.store = newFakeStore("INV-2024-001")

	outcomes := h.run(t)

	o := outcomes[0]
	assert.Equal(t, model.StatusDuplicate, o.Status)
	assert.Equal(t, "Duplicate invoice: INV-2024-001", o.ErrorMessage)
	assert.Empty(t, h.store.inserted)
	assert.Equal(t, []string{model.AuditDuplicateSkipped + ":INV-2024-001"}, h.store.audits)
	assert.Equal(t, []string{"3"}, h.mailbox.consumed)
	h.notifier.AssertNotCalled(t, "ReportFailure", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1, h.metrics.items[ItemDuplicate])
}

func TestSecondCopyInSameBatchIsDuplicate(t *testing.T) {
	h := newHarness(attachment("1", "a.pdf", invoiceA), attachment("2", "a-copy.pdf", invoiceA))

	outcomes := h.run(t)

	assert.Equal(t, model.StatusNotified, outcomes[0].Status)
	assert.Equal(t, model.StatusDuplicate, outcomes[1].Status)
	assert.Len(t, h.store.inserted, 1)
}

func TestInsertRaceReportedAsDuplicate(t *testing.T) {
	h := newHarness(attachment("1", "a.pdf", invoiceA))
	h.store.insertErr = model.ErrDuplicateInvoice

	outcomes := h.run(t)

	assert.Equal(t, model.StatusDuplicate, outcomes[0].Status)
	h.notifier.AssertNotCalled(t, "ReportFailure", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEmptyDocumentFails(t *testing.T) {
	h := newHarness(attachment("4", "empty.pdf", ""))

	outcomes := h.run(t)

	o := outcomes[0]
	assert.Equal(t, model.StatusFailed, o.Status)
	assert.Contains(t, o.ErrorMessage, "no text extracted")
	assert.Nil(t, o.Invoice)
	h.notifier.AssertNumberOfCalls(t, "ReportFailure", 1)
	assert.Equal(t, 1, h.metrics.items[ItemParseError])
}

func TestFailuresAreIsolatedPerItem(t *testing.T) {
	h := newHarness(
		attachment("1", "empty.pdf", ""),
		attachment("2", "panic.pdf", "boom"),
		attachment("3", "good.pdf", invoiceA),
	)
	base := h.deps.Extractor
	h.deps.Extractor = extractorFunc(func(content []byte, filename string) (*model.Invoice, error) {
		if filename == "panic.pdf" {
			panic("corrupt font table")
		}
		return base.Extract(content, filename)
	})

	outcomes := h.run(t)

	require.Len(t, outcomes, 3)
	assert.Equal(t, model.StatusFailed, outcomes[0].Status)
	assert.Equal(t, model.StatusFailed, outcomes[1].Status)
	assert.Equal(t, "unexpected error: corrupt font table", outcomes[1].ErrorMessage)
	assert.Equal(t, model.StatusNotified, outcomes[2].Status)
	for _, o := range outcomes {
		assert.True(t, o.IsTerminal())
		assert.True(t, o.IsCompleted())
	}
	assert.Equal(t, []string{"1", "2", "3"}, h.mailbox.consumed)
	h.notifier.AssertNumberOfCalls(t, "ReportFailure", 2)
	h.notifier.AssertNumberOfCalls(t, "ReportSummary", 1)

	summary := h.notifier.Calls[len(h.notifier.Calls)-1]
	assert.Equal(t, "ReportSummary", summary.Method)
	assert.Len(t, summary.Arguments.Get(1), 3)
}

// panickyMailbox panics while marking the listed ids as consumed
type panickyMailbox struct {
	*fakeMailbox
	panicOn map[string]bool
}

func (m *panickyMailbox) MarkConsumed(ctx context.Context, id string) error {
	if m.panicOn[id] {
		panic("mark boom")
	}
	return m.fakeMailbox.MarkConsumed(ctx, id)
}

func TestPanicDuringCleanupDoesNotAbortBatch(t *testing.T) {
	h := newHarness(
		attachment("1", "empty.pdf", ""),
		attachment("2", "good.pdf", invoiceA),
	)
	mbox := &panickyMailbox{fakeMailbox: h.mailbox, panicOn: map[string]bool{"1": true}}
	h.deps.OpenMailbox = func(context.Context) (Mailbox, error) { return mbox, nil }
	h.notifier = &mockNotifier{}
	h.notifier.On("ReportFailure", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("notifier boom") }).Return(nil)
	h.notifier.On("ReportSuccess", mock.Anything, mock.Anything).Return(nil)
	h.notifier.On("ReportSummary", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("summary boom") }).Return(nil)
	h.deps.Notifier = h.notifier

	var outcomes []*model.Outcome
	var err error
	require.NotPanics(t, func() {
		outcomes, err = New(h.deps, h.opts).Run(context.Background())
	})
	require.NoError(t, err)

	require.Len(t, outcomes, 2)
	assert.Equal(t, model.StatusFailed, outcomes[0].Status)
	assert.True(t, outcomes[0].IsCompleted())
	assert.Equal(t, model.StatusNotified, outcomes[1].Status)
	assert.Equal(t, []string{"2"}, h.mailbox.consumed)
	assert.Equal(t, 1, h.metrics.items[ItemParseError])
	assert.Equal(t, 1, h.metrics.items[ItemSuccess])
}

type extractorFunc func(content []byte, filename string) (*model.Invoice, error)

func (f extractorFunc) Extract(content []byte, filename string) (*model.Invoice, error) {
	return f(content, filename)
}

func TestDryRunSuppressesSideEffects(t *testing.T) {
	h := newHarness(
		attachment("1", "a.pdf", invoiceA),
		attachment("2", "empty.pdf", ""),
	)
	storeOpened := false
	h.deps.OpenStore = func(context.Context) (Store, error) {
		storeOpened = true
		return h.store, nil
	}
	h.opts.DryRun = true

	outcomes := h.run(t)

	assert.Equal(t, model.StatusStored, outcomes[0].Status)
	assert.Equal(t, model.StatusFailed, outcomes[1].Status)
	assert.False(t, storeOpened)
	assert.Empty(t, h.mailbox.consumed)
	assert.Empty(t, h.notifier.Calls)
}

func TestNotificationFailureKeepsStored(t *testing.T) {
	h := newHarness(attachment("1", "a.pdf", invoiceA))
	h.notifier = &mockNotifier{}
	h.notifier.On("ReportSuccess", mock.Anything, mock.Anything).Return(errors.New("slack down"))
	h.notifier.On("ReportSummary", mock.Anything, mock.Anything).Return(errors.New("slack down"))
	h.deps.Notifier = h.notifier

	outcomes := h.run(t)

	assert.Equal(t, model.StatusStored, outcomes[0].Status)
	assert.True(t, outcomes[0].IsSuccess())
	assert.Empty(t, outcomes[0].ErrorMessage)
	h.notifier.AssertExpectations(t)
}

func TestMarkConsumedFailureIsSwallowed(t *testing.T) {
	h := newHarness(attachment("1", "a.pdf", invoiceA))
	h.mailbox.markErr = errors.New("imap gone")

	outcomes := h.run(t)

	assert.Equal(t, model.StatusNotified, outcomes[0].Status)
	assert.Equal(t, []string{"1"}, h.mailbox.consumed)
}

func TestStoreInsertFailureFailsItem(t *testing.T) {
	h := newHarness(attachment("1", "a.pdf", invoiceA))
	h.store.insertErr = errors.New("disk full")

	outcomes := h.run(t)

	o := outcomes[0]
	assert.Equal(t, model.StatusFailed, o.Status)
	assert.Contains(t, o.ErrorMessage, "failed to store invoice")
	assert.Contains(t, o.ErrorMessage, "disk full")
	h.notifier.AssertNumberOfCalls(t, "ReportFailure", 1)
	assert.Equal(t, 1, h.metrics.items[ItemStoreError])
	assert.Len(t, h.metrics.retries, 2)
}

func TestStoreUnavailableFailsValidatedItems(t *testing.T) {
	h := newHarness(
		attachment("1", "a.pdf", invoiceA),
		attachment("2", "empty.pdf", ""),
	)
	h.deps.OpenStore = func(context.Context) (Store, error) { return nil, errors.New("connection refused") }

	outcomes, err := New(h.deps, h.opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.StatusFailed, outcomes[0].Status)
	assert.Contains(t, outcomes[0].ErrorMessage, "store unavailable")
	assert.Contains(t, outcomes[1].ErrorMessage, "no text extracted")
}

func TestFetchFailureAbortsRun(t *testing.T) {
	h := newHarness()
	h.mailbox.fetchErr = errors.New("mailbox locked")

	outcomes, err := New(h.deps, h.opts).Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch attachments")
	var exhausted *retry.ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
	assert.Nil(t, outcomes)
	assert.True(t, h.mailbox.closed)
	assert.Equal(t, []string{RunError}, h.metrics.runs)
	assert.Equal(t, []string{"fetch attachments", "fetch attachments"}, h.metrics.retries)
	assert.Empty(t, h.notifier.Calls)
}

func TestMailboxConnectRetriesThenSucceeds(t *testing.T) {
	h := newHarness(attachment("1", "a.pdf", invoiceA))
	attempts := 0
	h.deps.OpenMailbox = func(context.Context) (Mailbox, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("timeout")
		}
		return h.mailbox, nil
	}

	outcomes := h.run(t)

	assert.Equal(t, 2, attempts)
	assert.Len(t, outcomes, 1)
	assert.Equal(t, []string{"mailbox connect"}, h.metrics.retries)
}

func TestEmptyBatchSendsNoSummary(t *testing.T) {
	h := newHarness()

	outcomes := h.run(t)

	assert.Empty(t, outcomes)
	assert.Empty(t, h.notifier.Calls)
	assert.Equal(t, []string{RunEmpty}, h.metrics.runs)
}

func TestCancellationStopsStartingItems(t *testing.T) {
	h := newHarness(
		attachment("1", "a.pdf", invoiceA),
		attachment("2", "b.pdf", invoiceA),
	)
	ctx, cancel := context.WithCancel(context.Background())
	base := h.deps.Extractor
	h.deps.Extractor = extractorFunc(func(content []byte, filename string) (*model.Invoice, error) {
		cancel()
		return base.Extract(content, filename)
	})

	outcomes, err := New(h.deps, h.opts).Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].IsTerminal())
	assert.Equal(t, []string{RunCancelled}, h.metrics.runs)
}

func TestExecuteBuildsReport(t *testing.T) {
	text := strings.Replace(invoiceA, "Total: $500.00", "Total: $999.99", 1)
	h := newHarness(
		attachment("1", "a.pdf", invoiceA),
		attachment("2", "b.pdf", text),
		attachment("3", "a-copy.pdf", invoiceA),
	)

	report, err := New(h.deps, h.opts).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Successful)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 1, report.ValidationFailed)
	assert.Len(t, report.Failures, 2)
	assert.Empty(t, report.Error)
	assert.False(t, report.DryRun)
}
