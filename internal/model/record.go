package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrDuplicateInvoice is returned by a store when the invoice number is already recorded
var ErrDuplicateInvoice = errors.New("duplicate invoice")

// Audit event kinds
const (
	AuditInvoiceStored    = "invoice_stored"
	AuditValidationFailed = "validation_failed"
	AuditDuplicateSkipped = "duplicate_skipped"
)

// InvoiceRecord represents a stored invoice in the database
type InvoiceRecord struct {
	ID            string          `json:"id" gorm:"type:varchar(64);primaryKey"`
	InvoiceNumber string          `json:"invoice_number" gorm:"type:varchar(64);not null;uniqueIndex"`
	VendorName    string          `json:"vendor_name" gorm:"type:varchar(256);not null"`
	InvoiceDate   time.Time       `json:"invoice_date" gorm:"not null"`
	DueDate       *time.Time      `json:"due_date"`
	TotalAmount   decimal.Decimal `json:"total_amount" gorm:"type:decimal(15,2);not null"`
	Currency      string          `json:"currency" gorm:"type:varchar(3);not null;default:USD"`
	PONumber      string          `json:"po_number" gorm:"type:varchar(64)"`
	LineItems     string          `json:"line_items" gorm:"type:text"`
	Status        string          `json:"status" gorm:"type:varchar(32);not null"`
	RawText       string          `json:"-" gorm:"type:text"`
	EmailFrom     string          `json:"email_from" gorm:"type:varchar(256)"`
	EmailSubject  string          `json:"email_subject" gorm:"type:varchar(512)"`
	Filename      string          `json:"filename" gorm:"type:varchar(256)"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableName specifies the table name for InvoiceRecord
func (InvoiceRecord) TableName() string {
	return "invoices"
}

// AuditLog represents an audit event recorded against an invoice number
type AuditLog struct {
	ID            string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	InvoiceNumber string    `json:"invoice_number" gorm:"type:varchar(64);not null;index"`
	EventType     string    `json:"event_type" gorm:"type:varchar(64);not null"`
	EventData     string    `json:"event_data" gorm:"type:text"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName specifies the table name for AuditLog
func (AuditLog) TableName() string {
	return "invoice_audit_log"
}
