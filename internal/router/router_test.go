package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"invoice-relay-go/internal/handler"
	"invoice-relay-go/internal/model"
	"invoice-relay-go/internal/pipeline"
)

type emptyStore struct{}

func (emptyStore) ListInvoices(context.Context, int, int) ([]model.InvoiceRecord, int64, error) {
	return nil, 0, nil
}
func (emptyStore) GetInvoice(context.Context, string) (*model.InvoiceRecord, error) { return nil, nil }
func (emptyStore) ListAudit(context.Context, string, int, int) ([]model.AuditLog, int64, error) {
	return nil, 0, nil
}
func (emptyStore) Ping(context.Context) error { return nil }

type idleScheduler struct{}

func (idleScheduler) Start() error                                      { return nil }
func (idleScheduler) Stop() error                                       { return nil }
func (idleScheduler) IsRunning() bool                                   { return false }
func (idleScheduler) RunOnce(context.Context) (*pipeline.Report, error) { return &pipeline.Report{}, nil }
func (idleScheduler) LastReport() *pipeline.Report                      { return nil }
func (idleScheduler) GetNextRun() time.Time                             { return time.Time{} }
func (idleScheduler) GetLastRun() time.Time                             { return time.Time{} }

func TestSetupRouter(t *testing.T) {
	r := SetupRouter(handler.NewHandlers(emptyStore{}, idleScheduler{}, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
