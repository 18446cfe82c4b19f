package handler

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/scantrack/attendance-api/internal/service"
	"github.com/scantrack/attendance-api/pkg/response"
)

type reportService interface {
	Generate(ctx context.Context, sessionID string, format service.ReportFormat) (*service.Report, error)
}

// ReportHandler serves downloadable attendance registers.
type ReportHandler struct {
	service reportService
}

// NewReportHandler constructs the handler.
func NewReportHandler(service reportService) *ReportHandler {
	return &ReportHandler{service: service}
}

// Download godoc
// @Summary Download a session's register as CSV or PDF
// @Tags Reports
// @Produce octet-stream
// @Param id path string true "Session ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /sessions/{id}/report [get]
func (h *ReportHandler) Download(c *gin.Context) {
	format := service.ReportFormat(c.DefaultQuery("format", "csv"))
	report, err := h.service.Generate(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName))
	c.Data(200, report.ContentType, report.Content)
}
