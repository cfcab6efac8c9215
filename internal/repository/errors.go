package repository

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"gorm.io/gorm"

	"invoice-relay-go/internal/model"
)

var (
	// ErrDuplicate is returned by Insert when the invoice number is already stored
	ErrDuplicate = fmt.Errorf("invoice already stored: %w", model.ErrDuplicateInvoice)

	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("not found")

	// ErrTransient marks store failures worth retrying
	ErrTransient = errors.New("transient store error")
)

// StoreError is a failed store operation
type StoreError struct {
	Op        string
	Err       error
	Transient bool
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrTransient) match retryable failures
func (e *StoreError) Is(target error) bool {
	return target == ErrTransient && e.Transient
}

func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return &StoreError{Op: op, Err: err, Transient: isTransient(err)}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "broken pipe", "database is locked", "too many connections"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
