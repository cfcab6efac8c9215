package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StartScheduler starts periodic invoice runs
func (h *Handlers) StartScheduler(c *gin.Context) {
	if err := h.scheduler.Start(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: "Failed to start scheduler: " + err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, h.schedulerStatus("Scheduler started successfully"))
}

// StopScheduler stops periodic invoice runs. A run already in flight finishes.
func (h *Handlers) StopScheduler(c *gin.Context) {
	if err := h.scheduler.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: "Failed to stop scheduler: " + err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, h.schedulerStatus("Scheduler stopped successfully"))
}

// GetSchedulerStatus returns the scheduler state and the outcome counts of the last run
func (h *Handlers) GetSchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.schedulerStatus(""))
}

func (h *Handlers) schedulerStatus(message string) SchedulerStatusResponse {
	resp := SchedulerStatusResponse{Message: message, Status: "stopped"}
	if h.scheduler.IsRunning() {
		resp.Status = "running"
		if next := h.scheduler.GetNextRun(); !next.IsZero() {
			resp.NextRun = &next
		}
	}

	report := h.scheduler.LastReport()
	if report == nil {
		return resp
	}
	started := report.StartedAt
	resp.LastRun = &started
	resp.Last = &RunSummary{
		Total:            report.Total,
		Successful:       report.Successful,
		Failed:           report.Failed,
		Duplicates:       report.Duplicates,
		ValidationFailed: report.ValidationFailed,
		DryRun:           report.DryRun,
		DurationMs:       report.Duration().Milliseconds(),
		Error:            report.Error,
	}
	return resp
}
