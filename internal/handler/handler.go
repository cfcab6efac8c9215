package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"invoice-relay-go/internal/model"
	"invoice-relay-go/internal/pipeline"
)

// InvoiceStore is the read side of the invoice store
type InvoiceStore interface {
	ListInvoices(ctx context.Context, page, limit int) ([]model.InvoiceRecord, int64, error)
	GetInvoice(ctx context.Context, invoiceNumber string) (*model.InvoiceRecord, error)
	ListAudit(ctx context.Context, invoiceNumber string, page, limit int) ([]model.AuditLog, int64, error)
	Ping(ctx context.Context) error
}

// Scheduler controls periodic and manual pipeline runs
type Scheduler interface {
	Start() error
	Stop() error
	IsRunning() bool
	RunOnce(ctx context.Context) (*pipeline.Report, error)
	LastReport() *pipeline.Report
	GetNextRun() time.Time
	GetLastRun() time.Time
}

// Handlers contains all HTTP handlers
type Handlers struct {
	store     InvoiceStore
	scheduler Scheduler
	metrics   http.Handler
}

// NewHandlers creates new HTTP handlers
func NewHandlers(store InvoiceStore, scheduler Scheduler, metrics http.Handler) *Handlers {
	return &Handlers{
		store:     store,
		scheduler: scheduler,
		metrics:   metrics,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}

	api := router.Group("/api/v1")
	{
		api.GET("/invoices", h.GetInvoices)
		api.GET("/invoices/:number", h.GetInvoice)
		api.GET("/invoices/:number/audit", h.GetInvoiceAudit)

		api.POST("/pipeline/run", h.RunPipeline)
		api.GET("/pipeline/last-run", h.GetLastRun)

		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Scheduler: make(map[string]string),
	}

	if err := h.store.Ping(c.Request.Context()); err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	if h.scheduler.IsRunning() {
		response.Scheduler["status"] = "running"
		response.Scheduler["next_run"] = h.scheduler.GetNextRun().Format(time.RFC3339)
	} else {
		response.Scheduler["status"] = "stopped"
	}
	if last := h.scheduler.GetLastRun(); !last.IsZero() {
		response.Scheduler["last_run"] = last.Format(time.RFC3339)
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}
