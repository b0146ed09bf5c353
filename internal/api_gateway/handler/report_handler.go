package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/bytebank-ledger/internal/api_gateway/service"
	"github.com/bytebank-ledger/internal/domain/transaction"
)

// ReportHandler serves the caller's spending reports and activity feed
type ReportHandler struct {
	reports  service.ReportService
	activity service.ActivityService
	logger   *slog.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(logger *slog.Logger, reports service.ReportService, activity service.ActivityService) *ReportHandler {
	return &ReportHandler{
		reports:  reports,
		activity: activity,
		logger:   logger,
	}
}

// ExpensesByCategory returns the caller's largest outbound categories
func (h *ReportHandler) ExpensesByCategory(c *gin.Context) {
	totals, err := h.reports.ExpensesByCategory(c.Request.Context())
	if err != nil {
		RespondError(c, h.logger, "expenses by category", err)
		return
	}
	RespondOK(c, totals)
}

// MonthlySummary returns per-month income and expenses. months defaults to 6.
func (h *ReportHandler) MonthlySummary(c *gin.Context) {
	var params MonthlySummaryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid months parameter")
		return
	}

	totals, err := h.reports.MonthlySummary(c.Request.Context(), params.Months)
	if err != nil {
		RespondError(c, h.logger, "monthly summary", err)
		return
	}
	RespondOK(c, totals)
}

// Activity pages through the caller's delivered ledger events, newest first
func (h *ReportHandler) Activity(c *gin.Context) {
	var pagination transaction.PaginationOptions
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	page, err := h.activity.Feed(c.Request.Context(), pagination)
	if err != nil {
		RespondError(c, h.logger, "activity feed", err)
		return
	}
	RespondWithPage(c, page)
}
