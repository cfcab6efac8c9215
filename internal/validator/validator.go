// Package validator checks extracted invoices against business rules and
// reference data.
package validator

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"invoice-relay-go/internal/model"
)

// Check names recorded in Verdict.FailedChecks
const (
	CheckNumberFormat   = "number_format"
	CheckAmountRange    = "amount_range"
	CheckPONumber       = "po_number"
	CheckApprovedVendor = "approved_vendor"
	CheckLineItemsSum   = "line_items_sum"
	CheckDateSanity     = "date_sanity"
)

var invoiceNumberFormat = regexp.MustCompile(`^[A-Za-z0-9\-/_]+$`)

// Rules holds the configurable bounds
type Rules struct {
	MinAmount         decimal.Decimal
	MaxAmount         decimal.Decimal
	MaxInvoiceAgeDays int
}

// DefaultRules returns the bounds used when nothing is configured
func DefaultRules() Rules {
	return Rules{
		MinAmount:         decimal.RequireFromString("0.01"),
		MaxAmount:         decimal.NewFromInt(1_000_000),
		MaxInvoiceAgeDays: 365,
	}
}

// Validator runs the rule checks. It holds no mutable state and is safe for
// concurrent use.
type Validator struct {
	rules Rules
	ref   *ReferenceData
	now   func() time.Time
}

// Option configures a Validator
type Option func(*Validator)

// WithClock sets the clock used for the date checks
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// New creates a validator; a nil ref disables both reference checks
func New(rules Rules, ref *ReferenceData, opts ...Option) *Validator {
	if ref == nil {
		ref = NewReferenceData(nil, nil)
	}
	v := &Validator{
		rules: rules,
		ref:   ref,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs every check and returns a fresh verdict
func (v *Validator) Validate(inv *model.Invoice) *model.Verdict {
	verdict := model.NewVerdict()

	v.checkNumberFormat(inv, verdict)
	v.checkAmountRange(inv, verdict)
	v.checkPONumber(inv, verdict)
	v.checkApprovedVendor(inv, verdict)
	v.checkLineItemsSum(inv, verdict)
	v.checkDateSanity(inv, verdict)

	verdict.Score()

	entry := logrus.WithFields(logrus.Fields{
		"invoice_number": inv.Number,
		"vendor":         inv.VendorName,
	})
	if verdict.Valid {
		entry.Infof("Invoice passed all validation checks (%d warning(s))", len(verdict.Warnings))
	} else {
		entry.Warnf("Invoice failed validation: %s", strings.Join(verdict.Errors, "; "))
	}

	return verdict
}

func (v *Validator) checkNumberFormat(inv *model.Invoice, verdict *model.Verdict) {
	if inv.Number == "" {
		verdict.AddError(CheckNumberFormat, "Invoice number is empty")
		return
	}
	if !invoiceNumberFormat.MatchString(inv.Number) {
		verdict.AddError(CheckNumberFormat, fmt.Sprintf("Invalid invoice number format: %s", inv.Number))
	}
}

func (v *Validator) checkAmountRange(inv *model.Invoice, verdict *model.Verdict) {
	switch {
	case inv.TotalAmount.LessThan(v.rules.MinAmount):
		verdict.AddError(CheckAmountRange, fmt.Sprintf("Invoice amount %s is below minimum %s",
			inv.TotalAmount.String(), v.rules.MinAmount.String()))
	case inv.TotalAmount.GreaterThan(v.rules.MaxAmount):
		verdict.AddError(CheckAmountRange, fmt.Sprintf("Invoice amount %s exceeds maximum %s",
			inv.TotalAmount.String(), v.rules.MaxAmount.String()))
	}
}

func (v *Validator) checkPONumber(inv *model.Invoice, verdict *model.Verdict) {
	if !inv.HasPO() {
		verdict.AddWarning("No PO number on invoice")
		return
	}
	if v.ref.PONumbers.Len() == 0 {
		return
	}
	if !v.ref.PONumbers.Contains(inv.PONumber) {
		verdict.AddError(CheckPONumber, fmt.Sprintf("PO number %s not found in reference data", inv.PONumber))
		return
	}
	verdict.MatchedPO = inv.PONumber
}

func (v *Validator) checkApprovedVendor(inv *model.Invoice, verdict *model.Verdict) {
	if v.ref.Vendors.Len() == 0 {
		return
	}
	if !v.ref.Vendors.Contains(normalizeVendor(inv.VendorName)) {
		verdict.AddError(CheckApprovedVendor, fmt.Sprintf("Vendor '%s' is not an approved vendor", inv.VendorName))
	}
}

func (v *Validator) checkLineItemsSum(inv *model.Invoice, verdict *model.Verdict) {
	if len(inv.LineItems) == 0 {
		verdict.AddWarning("No line items found on invoice")
		return
	}
	sum := inv.LineItemsTotal()
	if !sum.Equal(inv.TotalAmount) {
		verdict.AddError(CheckLineItemsSum, fmt.Sprintf("Line items sum (%s) does not match total amount (%s)",
			sum.StringFixed(2), inv.TotalAmount.StringFixed(2)))
	}
}

func (v *Validator) checkDateSanity(inv *model.Invoice, verdict *model.Verdict) {
	today := model.DateOf(v.now())
	invoiceDate := model.DateOf(inv.InvoiceDate)
	oldest := today.AddDate(0, 0, -v.rules.MaxInvoiceAgeDays)

	if invoiceDate.After(today) {
		verdict.AddError(CheckDateSanity, fmt.Sprintf("Invoice date %s is in the future", invoiceDate.Format(time.DateOnly)))
	}
	if invoiceDate.Before(oldest) {
		verdict.AddError(CheckDateSanity, fmt.Sprintf("Invoice date %s is older than %d days",
			invoiceDate.Format(time.DateOnly), v.rules.MaxInvoiceAgeDays))
	}
	if inv.DueDate != nil && model.DateOf(*inv.DueDate).Before(invoiceDate) {
		verdict.AddWarning("Due date is before invoice date")
	}
}
