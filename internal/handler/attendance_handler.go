package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scantrack/attendance-api/internal/models"
	"github.com/scantrack/attendance-api/internal/service"
	"github.com/scantrack/attendance-api/pkg/clock"
	appErrors "github.com/scantrack/attendance-api/pkg/errors"
	"github.com/scantrack/attendance-api/pkg/qrtoken"
	"github.com/scantrack/attendance-api/pkg/response"
)

type attendanceService interface {
	MarkScan(ctx context.Context, req service.ScanRequest, claims *models.JWTClaims) (*service.ScanResult, error)
	MarkExcused(ctx context.Context, recordID string, req service.ExcuseRequest, claims *models.JWTClaims) (*models.AttendanceRecord, error)
	Override(ctx context.Context, req service.OverrideRequest, claims *models.JWTClaims) (*models.AttendanceRecord, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRow, error)
	SessionSummary(ctx context.Context, sessionID string) (*models.SessionSummary, bool, error)
}

// AttendanceHandler exposes scan, excuse, override and listing endpoints.
type AttendanceHandler struct {
	service attendanceService
	signer  *qrtoken.Signer
	clk     clock.Clock
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(service attendanceService, signer *qrtoken.Signer, clk clock.Clock) *AttendanceHandler {
	return &AttendanceHandler{service: service, signer: signer, clk: clk}
}

type scanPayload struct {
	AdmissionNumber string `json:"admission_number"`
	QRToken         string `json:"qr_token"`
	SessionID       string `json:"session_id"`
}

// Scan godoc
// @Summary Record a student scan
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body scanPayload true "Scan"
// @Success 200 {object} response.Envelope
// @Router /attendance/scan [post]
func (h *AttendanceHandler) Scan(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload scanPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}

	admission := payload.AdmissionNumber
	if admission == "" && payload.QRToken != "" {
		parsed, err := h.signer.Parse(payload.QRToken, h.clk.Now())
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrInvalidBadgeToken, ""))
			return
		}
		admission = parsed
	}
	if admission == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "admission_number or qr_token required"))
		return
	}

	result, err := h.service.MarkScan(c.Request.Context(), service.ScanRequest{
		AdmissionNumber: admission,
		SessionID:       payload.SessionID,
	}, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Excuse godoc
// @Summary Convert an absence to excused within the grace window
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Attendance record ID"
// @Param payload body service.ExcuseRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Router /attendance/{id}/excuse [post]
func (h *AttendanceHandler) Excuse(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.ExcuseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	record, err := h.service.MarkExcused(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Override godoc
// @Summary Manually set a student's status for a session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.OverrideRequest true "Override"
// @Success 200 {object} response.Envelope
// @Router /attendance/override [post]
func (h *AttendanceHandler) Override(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	record, err := h.service.Override(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// ListBySession godoc
// @Summary List a session's attendance register
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/attendance [get]
func (h *AttendanceHandler) ListBySession(c *gin.Context) {
	rows, err := h.service.ListBySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Summary godoc
// @Summary Per-status counts for one session
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/summary [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	summary, cacheHit, err := h.service.SessionSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil, map[string]interface{}{"cache_hit": cacheHit})
}
