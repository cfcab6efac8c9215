package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"invoice-relay-go/internal/model"
)

// InvoiceResponse represents a stored invoice
type InvoiceResponse struct {
	ID            string           `json:"id"`
	InvoiceNumber string           `json:"invoice_number"`
	VendorName    string           `json:"vendor_name"`
	InvoiceDate   string           `json:"invoice_date"`
	DueDate       string           `json:"due_date,omitempty"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	Currency      string           `json:"currency"`
	PONumber      string           `json:"po_number,omitempty"`
	LineItems     []model.LineItem `json:"line_items"`
	Status        string           `json:"status"`
	EmailFrom     string           `json:"email_from"`
	EmailSubject  string           `json:"email_subject"`
	Filename      string           `json:"filename"`
	CreatedAt     time.Time        `json:"created_at"`
}

// AuditEventResponse represents one audit log entry
type AuditEventResponse struct {
	ID        string    `json:"id"`
	EventType string    `json:"event_type"`
	EventData string    `json:"event_data"`
	CreatedAt time.Time `json:"created_at"`
}

// Pagination describes a page of results
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Scheduler map[string]string `json:"scheduler,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// RunSummary condenses the last pipeline run for status responses
type RunSummary struct {
	Total            int    `json:"total"`
	Successful       int    `json:"successful"`
	Failed           int    `json:"failed"`
	Duplicates       int    `json:"duplicates"`
	ValidationFailed int    `json:"validation_failed"`
	DryRun           bool   `json:"dry_run"`
	DurationMs       int64  `json:"duration_ms"`
	Error            string `json:"error,omitempty"`
}

// SchedulerStatusResponse describes the scheduler and the run it last finished
type SchedulerStatusResponse struct {
	Message string      `json:"message,omitempty"`
	Status  string      `json:"status"`
	NextRun *time.Time  `json:"next_run,omitempty"`
	LastRun *time.Time  `json:"last_run,omitempty"`
	Last    *RunSummary `json:"last_result,omitempty"`
}
