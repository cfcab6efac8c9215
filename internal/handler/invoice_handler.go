package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"invoice-relay-go/internal/model"
	"invoice-relay-go/internal/repository"
)

// GetInvoices returns stored invoices with pagination
func (h *Handlers) GetInvoices(c *gin.Context) {
	page, limit := pagination(c)

	records, total, err := h.store.ListInvoices(c.Request.Context(), page, limit)
	if err != nil {
		logrus.Errorf("Failed to list invoices: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch invoices",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	responses := make([]InvoiceResponse, 0, len(records))
	for i := range records {
		responses = append(responses, toInvoiceResponse(&records[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"invoices":   responses,
		"pagination": Pagination{Page: page, Limit: limit, Total: total},
	})
}

// GetInvoice returns a stored invoice by number
func (h *Handlers) GetInvoice(c *gin.Context) {
	record, err := h.store.GetInvoice(c.Request.Context(), c.Param("number"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Invoice not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		logrus.Errorf("Failed to fetch invoice: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch invoice",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, toInvoiceResponse(record))
}

// GetInvoiceAudit returns the audit trail of an invoice number
func (h *Handlers) GetInvoiceAudit(c *gin.Context) {
	page, limit := pagination(c)

	events, total, err := h.store.ListAudit(c.Request.Context(), c.Param("number"), page, limit)
	if err != nil {
		logrus.Errorf("Failed to list audit events: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch audit events",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	responses := make([]AuditEventResponse, 0, len(events))
	for _, e := range events {
		responses = append(responses, AuditEventResponse{
			ID:        e.ID,
			EventType: e.EventType,
			EventData: e.EventData,
			CreatedAt: e.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"invoice_number": c.Param("number"),
		"events":         responses,
		"pagination":     Pagination{Page: page, Limit: limit, Total: total},
	})
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}
	return page, limit
}

func toInvoiceResponse(r *model.InvoiceRecord) InvoiceResponse {
	resp := InvoiceResponse{
		ID:            r.ID,
		InvoiceNumber: r.InvoiceNumber,
		VendorName:    r.VendorName,
		InvoiceDate:   r.InvoiceDate.Format("2006-01-02"),
		TotalAmount:   r.TotalAmount,
		Currency:      r.Currency,
		PONumber:      r.PONumber,
		LineItems:     []model.LineItem{},
		Status:        r.Status,
		EmailFrom:     r.EmailFrom,
		EmailSubject:  r.EmailSubject,
		Filename:      r.Filename,
		CreatedAt:     r.CreatedAt,
	}
	if r.DueDate != nil {
		resp.DueDate = r.DueDate.Format("2006-01-02")
	}
	if r.LineItems != "" {
		if err := json.Unmarshal([]byte(r.LineItems), &resp.LineItems); err != nil {
			logrus.WithField("invoice_number", r.InvoiceNumber).Warnf("Failed to decode line items: %v", err)
		}
	}
	return resp
}
