package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scantrack/attendance-api/internal/models"
	"github.com/scantrack/attendance-api/internal/service"
	appErrors "github.com/scantrack/attendance-api/pkg/errors"
	"github.com/scantrack/attendance-api/pkg/response"
)

type sessionService interface {
	Create(ctx context.Context, req service.CreateSessionRequest, claims *models.JWTClaims) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, *models.Pagination, error)
	Activate(ctx context.Context, id string) (*models.Session, error)
	ForceComplete(ctx context.Context, id string) (*models.ReconcileReport, error)
}

type reconcileService interface {
	Reconcile(ctx context.Context) (*models.ReconcileReport, error)
}

// SessionHandler exposes session lifecycle endpoints.
type SessionHandler struct {
	sessions  sessionService
	reconcile reconcileService
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(sessions sessionService, reconcile reconcileService) *SessionHandler {
	return &SessionHandler{sessions: sessions, reconcile: reconcile}
}

// Create godoc
// @Summary Create an attendance session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.CreateSessionRequest true "Session"
// @Success 201 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	session, err := h.sessions.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Get godoc
// @Summary Fetch one session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// List godoc
// @Summary List sessions
// @Tags Sessions
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD)"
// @Param status query string false "Lifecycle status"
// @Param class query string false "Class"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	filter := models.SessionFilter{
		Class:    c.Query("class"),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "limit", 50),
	}
	date, err := parseDateParam(c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.Date = date
	if raw := c.Query("status"); raw != "" {
		status := models.SessionStatus(raw)
		if !status.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid session status"))
			return
		}
		filter.Status = &status
	}

	sessions, pagination, err := h.sessions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}

// Activate godoc
// @Summary Activate a scheduled session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/activate [post]
func (h *SessionHandler) Activate(c *gin.Context) {
	session, err := h.sessions.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// ForceComplete godoc
// @Summary Reconcile and complete one session now
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/complete [post]
func (h *SessionHandler) ForceComplete(c *gin.Context) {
	report, err := h.sessions.ForceComplete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Reconcile godoc
// @Summary Sweep and close all ended sessions
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reconcile [post]
func (h *SessionHandler) Reconcile(c *gin.Context) {
	report, err := h.reconcile.Reconcile(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
