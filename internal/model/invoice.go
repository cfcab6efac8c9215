package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a document does not state its currency
const DefaultCurrency = "USD"

var (
	// ErrInvalidInvoice is returned when an invoice is missing a required field or has a non-positive amount
	ErrInvalidInvoice = errors.New("invalid invoice")

	// ErrInvalidLineItem is returned for a line item with a bad quantity or price
	ErrInvalidLineItem = errors.New("invalid line item")
)

// LineItem represents a single row of an invoice table
type LineItem struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// NewLineItem builds a line item, rejecting non-positive quantities and negative prices
func NewLineItem(description string, quantity int, unitPrice, total decimal.Decimal) (LineItem, error) {
	if quantity <= 0 {
		return LineItem{}, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidLineItem, quantity)
	}
	if unitPrice.IsNegative() {
		return LineItem{}, fmt.Errorf("%w: unit price must not be negative", ErrInvalidLineItem)
	}
	if total.IsNegative() {
		return LineItem{}, fmt.Errorf("%w: line total must not be negative", ErrInvalidLineItem)
	}

	return LineItem{
		Description: strings.TrimSpace(description),
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Total:       total,
	}, nil
}

// InvoiceFields carries the raw values an Invoice is constructed from
type InvoiceFields struct {
	Number      string
	VendorName  string
	InvoiceDate time.Time
	DueDate     *time.Time
	TotalAmount decimal.Decimal
	Currency    string
	PONumber    string
	LineItems   []LineItem
	RawText     string
}

// Invoice is a structured invoice extracted from a document.
//
// Invoices are only created through NewInvoice, which guarantees a non-empty
// number and a strictly positive total. Once handed to validation an Invoice
// is treated as read-only.
type Invoice struct {
	Number      string          `json:"invoice_number"`
	VendorName  string          `json:"vendor_name"`
	InvoiceDate time.Time       `json:"invoice_date"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	PONumber    string          `json:"po_number,omitempty"`
	LineItems   []LineItem      `json:"line_items"`
	RawText     string          `json:"-"`
}

// NewInvoice checks the number and total and returns an Invoice
func NewInvoice(f InvoiceFields) (*Invoice, error) {
	number := strings.TrimSpace(f.Number)
	if number == "" {
		return nil, fmt.Errorf("%w: invoice number is required", ErrInvalidInvoice)
	}
	if !f.TotalAmount.IsPositive() {
		return nil, fmt.Errorf("%w: invoice total must be positive, got %s", ErrInvalidInvoice, f.TotalAmount.String())
	}

	currency := strings.ToUpper(strings.TrimSpace(f.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if len(currency) != 3 {
		return nil, fmt.Errorf("%w: currency code must have 3 letters, got %q", ErrInvalidInvoice, currency)
	}

	items := make([]LineItem, len(f.LineItems))
	copy(items, f.LineItems)

	var due *time.Time
	if f.DueDate != nil {
		d := DateOf(*f.DueDate)
		due = &d
	}

	return &Invoice{
		Number:      number,
		VendorName:  strings.TrimSpace(f.VendorName),
		InvoiceDate: DateOf(f.InvoiceDate),
		DueDate:     due,
		TotalAmount: f.TotalAmount,
		Currency:    currency,
		PONumber:    strings.TrimSpace(f.PONumber),
		LineItems:   items,
		RawText:     f.RawText,
	}, nil
}

// HasPO reports whether the invoice references a purchase order
func (i *Invoice) HasPO() bool {
	return i.PONumber != ""
}

// LineItemsTotal sums the line totals
func (i *Invoice) LineItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range i.LineItems {
		sum = sum.Add(item.Total)
	}
	return sum
}

// DateOf truncates t to a calendar date at UTC midnight
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
