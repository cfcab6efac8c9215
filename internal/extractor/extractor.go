// Package extractor turns invoice document text into structured invoices
// using ordered pattern rules per field.
package extractor

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"invoice-relay-go/internal/model"
)

// Extractor parses invoice documents
type Extractor struct {
	source TextSource
	now    func() time.Time
}

// Option configures an Extractor
type Option func(*Extractor)

// WithClock sets the clock used for the default invoice date
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

// New creates an extractor reading document text from source
func New(source TextSource, opts ...Option) *Extractor {
	e := &Extractor{
		source: source,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads the document text and parses it into an invoice
func (e *Extractor) Extract(content []byte, filename string) (*model.Invoice, error) {
	logrus.WithField("filename", filename).Info("Extracting invoice")

	pages, err := e.source.Pages(content)
	if err != nil {
		return nil, &ExtractionError{Filename: filename, Kind: ErrUnreadable, Cause: err}
	}

	nonEmpty := make([]string, 0, len(pages))
	for _, p := range pages {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}

	return e.Parse(strings.Join(nonEmpty, "\n"), filename)
}

// Parse extracts invoice fields from already-extracted document text
func (e *Extractor) Parse(text, filename string) (*model.Invoice, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil, &ExtractionError{Filename: filename, Kind: ErrNoText}
	}
	logrus.Debugf("Extracted text length: %d characters", len(text))

	number, ok := firstMatch(text, invoiceNumberRules)
	if !ok {
		return nil, &ExtractionError{Filename: filename, Field: "invoice number", Kind: ErrMissingField}
	}

	vendor, ok := firstMatch(text, vendorRules)
	if !ok {
		return nil, &ExtractionError{Filename: filename, Field: "vendor name", Kind: ErrMissingField}
	}

	rawTotal, ok := firstMatch(text, totalRules)
	if !ok {
		return nil, &ExtractionError{Filename: filename, Field: "total amount", Kind: ErrMissingField}
	}

	total, err := parseAmount(rawTotal)
	if err != nil {
		return nil, &ExtractionError{Filename: filename, Field: "total amount", Kind: ErrMalformedAmount, Cause: err}
	}

	fields := model.InvoiceFields{
		Number:      number,
		VendorName:  vendor,
		TotalAmount: total,
		LineItems:   extractLineItems(text),
		RawText:     text,
	}

	if invoiceDate, ok := extractDate(text, invoiceDateRules); ok {
		fields.InvoiceDate = invoiceDate
	} else {
		fields.InvoiceDate = model.DateOf(e.now())
		logrus.WithField("filename", filename).Warn("No invoice date found, using today")
	}

	if dueDate, ok := extractDate(text, dueDateRules); ok {
		fields.DueDate = &dueDate
	}
	if po, ok := firstMatch(text, poNumberRules); ok {
		fields.PONumber = po
	}
	if currency, ok := firstMatch(text, currencyRules); ok {
		fields.Currency = currency
	}

	inv, err := model.NewInvoice(fields)
	if err != nil {
		return nil, &ExtractionError{Filename: filename, Kind: ErrInvalidInvoice, Cause: err}
	}

	logrus.WithFields(logrus.Fields{
		"filename":       filename,
		"invoice_number": inv.Number,
		"vendor":         inv.VendorName,
		"line_items":     len(inv.LineItems),
	}).Infof("Parsed invoice (total: %s %s)", inv.TotalAmount.StringFixed(2), inv.Currency)

	return inv, nil
}

func extractDate(text string, rules []*regexp.Regexp) (time.Time, bool) {
	raw, ok := firstMatch(text, rules)
	if !ok {
		return time.Time{}, false
	}
	t, ok := parseDate(raw)
	if !ok {
		logrus.Warnf("Could not parse date: %s", raw)
	}
	return t, ok
}

func parseAmount(raw string) (decimal.Decimal, error) {
	cleaned := normalizeAmount(raw)
	if cleaned == "" {
		return decimal.Zero, errors.New("empty amount")
	}
	return decimal.NewFromString(cleaned)
}

// extractLineItems collects every well-formed table row; malformed rows are skipped
func extractLineItems(text string) []model.LineItem {
	var items []model.LineItem
	for _, m := range lineItemRule.FindAllStringSubmatch(text, -1) {
		item, err := parseLineItem(m[1], m[2], m[3], m[4])
		if err != nil {
			logrus.Warnf("Skipping unparseable line item %q: %v", strings.TrimSpace(m[0]), err)
			continue
		}
		items = append(items, item)
	}
	logrus.Debugf("Extracted %d line item(s)", len(items))
	return items
}

func parseLineItem(description, quantity, unitPrice, total string) (model.LineItem, error) {
	qty, err := strconv.Atoi(quantity)
	if err != nil {
		return model.LineItem{}, err
	}
	price, err := parseAmount(unitPrice)
	if err != nil {
		return model.LineItem{}, err
	}
	lineTotal, err := parseAmount(total)
	if err != nil {
		return model.LineItem{}, err
	}
	return model.NewLineItem(description, qty, price, lineTotal)
}
