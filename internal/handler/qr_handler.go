package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scantrack/attendance-api/internal/models"
	"github.com/scantrack/attendance-api/pkg/clock"
	appErrors "github.com/scantrack/attendance-api/pkg/errors"
	"github.com/scantrack/attendance-api/pkg/qrtoken"
	"github.com/scantrack/attendance-api/pkg/response"
)

type badgeRoster interface {
	Get(ctx context.Context, admissionNumber string) (*models.Student, error)
}

// QRHandler issues signed badge tokens for student QR codes.
type QRHandler struct {
	roster badgeRoster
	signer *qrtoken.Signer
	clk    clock.Clock
}

// NewQRHandler constructs the handler.
func NewQRHandler(roster badgeRoster, signer *qrtoken.Signer, clk clock.Clock) *QRHandler {
	return &QRHandler{roster: roster, signer: signer, clk: clk}
}

type badgeTokenResponse struct {
	AdmissionNumber string    `json:"admission_number"`
	Token           string    `json:"token"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Token godoc
// @Summary Issue a signed badge token for a student
// @Tags QR
// @Produce json
// @Param admissionNumber path string true "Admission number"
// @Success 200 {object} response.Envelope
// @Router /qr/token/{admissionNumber} [get]
func (h *QRHandler) Token(c *gin.Context) {
	student, err := h.roster.Get(c.Request.Context(), c.Param("admissionNumber"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if student == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrStudentNotFound, ""))
		return
	}
	token, expiresAt, err := h.signer.Generate(student.AdmissionNumber, h.clk.Now())
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue badge token"))
		return
	}
	response.JSON(c, http.StatusOK, badgeTokenResponse{
		AdmissionNumber: student.AdmissionNumber,
		Token:           token,
		ExpiresAt:       expiresAt,
	}, nil)
}
