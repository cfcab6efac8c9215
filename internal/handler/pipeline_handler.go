package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"invoice-relay-go/internal/scheduler"
)

// RunPipeline runs one batch immediately and returns its report
func (h *Handlers) RunPipeline(c *gin.Context) {
	report, err := h.scheduler.RunOnce(c.Request.Context())
	if errors.Is(err, scheduler.ErrRunInProgress) {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "run_in_progress",
			Message: "A pipeline run is already in progress",
			Code:    http.StatusConflict,
		})
		return
	}
	if err != nil && report == nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "pipeline_error",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, report)
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetLastRun returns the report of the most recent run
func (h *Handlers) GetLastRun(c *gin.Context) {
	report := h.scheduler.LastReport()
	if report == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "No pipeline run has completed yet",
			Code:    http.StatusNotFound,
		})
		return
	}

	c.JSON(http.StatusOK, report)
}
