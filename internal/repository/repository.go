package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"invoice-relay-go/internal/model"
)

// Repository stores invoices and their audit trail
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// DB returns the underlying connection
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// Exists reports whether an invoice with this number is already stored
func (r *Repository) Exists(ctx context.Context, invoiceNumber string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.InvoiceRecord{}).
		Where("invoice_number = ?", invoiceNumber).
		Count(&count).Error
	if err != nil {
		return false, storeError("duplicate check", err)
	}
	return count > 0, nil
}

// Insert stores the invoice together with an invoice_stored audit event in
// one transaction and returns the new record id
func (r *Repository) Insert(ctx context.Context, inv *model.Invoice, src model.SourceMeta) (string, error) {
	items, err := json.Marshal(inv.LineItems)
	if err != nil {
		return "", fmt.Errorf("failed to encode line items: %w", err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("failed to generate record id: %w", err)
	}

	record := model.InvoiceRecord{
		ID:            id.String(),
		InvoiceNumber: inv.Number,
		VendorName:    inv.VendorName,
		InvoiceDate:   inv.InvoiceDate,
		DueDate:       inv.DueDate,
		TotalAmount:   inv.TotalAmount,
		Currency:      inv.Currency,
		PONumber:      inv.PONumber,
		LineItems:     string(items),
		Status:        model.StatusStored.String(),
		RawText:       inv.RawText,
		EmailFrom:     src.Sender,
		EmailSubject:  src.Subject,
		Filename:      src.Filename,
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		event, err := r.auditRow(inv.Number, model.AuditInvoiceStored, src.Filename)
		if err != nil {
			return err
		}
		return tx.Create(event).Error
	})
	if err != nil {
		return "", storeError("insert", err)
	}

	logrus.WithFields(logrus.Fields{
		"invoice_number": inv.Number,
		"record_id":      record.ID,
	}).Debug("Invoice stored")
	return record.ID, nil
}

// AppendAudit records an audit event against an invoice number
func (r *Repository) AppendAudit(ctx context.Context, invoiceNumber, kind, detail string) error {
	event, err := r.auditRow(invoiceNumber, kind, detail)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return storeError("append audit", err)
	}
	return nil
}

func (r *Repository) auditRow(invoiceNumber, kind, detail string) (*model.AuditLog, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("failed to generate audit id: %w", err)
	}
	return &model.AuditLog{
		ID:            id.String(),
		InvoiceNumber: invoiceNumber,
		EventType:     kind,
		EventData:     detail,
		CreatedAt:     r.now(),
	}, nil
}

// ListInvoices returns one page of stored invoices, newest first, and the total count
func (r *Repository) ListInvoices(ctx context.Context, page, limit int) ([]model.InvoiceRecord, int64, error) {
	db := r.db.WithContext(ctx)

	var total int64
	if err := db.Model(&model.InvoiceRecord{}).Count(&total).Error; err != nil {
		return nil, 0, storeError("count invoices", err)
	}

	var records []model.InvoiceRecord
	if err := db.Order("created_at DESC").Offset(offset(page, limit)).Limit(limit).Find(&records).Error; err != nil {
		return nil, 0, storeError("list invoices", err)
	}
	return records, total, nil
}

// GetInvoice returns the invoice stored under number
func (r *Repository) GetInvoice(ctx context.Context, invoiceNumber string) (*model.InvoiceRecord, error) {
	var record model.InvoiceRecord
	err := r.db.WithContext(ctx).Where("invoice_number = ?", invoiceNumber).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeError("get invoice", err)
	}
	return &record, nil
}

// ListAudit returns one page of audit events for an invoice number, oldest first
func (r *Repository) ListAudit(ctx context.Context, invoiceNumber string, page, limit int) ([]model.AuditLog, int64, error) {
	db := r.db.WithContext(ctx).Model(&model.AuditLog{}).Where("invoice_number = ?", invoiceNumber)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, storeError("count audit", err)
	}

	var events []model.AuditLog
	err := r.db.WithContext(ctx).
		Where("invoice_number = ?", invoiceNumber).
		Order("created_at ASC").
		Offset(offset(page, limit)).Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, 0, storeError("list audit", err)
	}
	return events, total, nil
}

// Ping checks the connection
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func offset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}
