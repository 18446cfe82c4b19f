package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scantrack/attendance-api/internal/models"
	"github.com/scantrack/attendance-api/pkg/response"
)

type studentService interface {
	Get(ctx context.Context, admissionNumber string) (*models.Student, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error)
}

// StudentHandler exposes read-only roster endpoints.
type StudentHandler struct {
	service studentService
}

// NewStudentHandler constructs the handler.
func NewStudentHandler(service studentService) *StudentHandler {
	return &StudentHandler{service: service}
}

// List godoc
// @Summary List enrolled students
// @Tags Students
// @Produce json
// @Param class query string false "Class"
// @Param section query string false "Section"
// @Param search query string false "Name or admission number"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	filter := models.StudentFilter{
		Class:    c.Query("class"),
		Section:  c.Query("section"),
		Search:   c.Query("search"),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 50),
	}
	students, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Fetch one student by admission number
// @Tags Students
// @Produce json
// @Param admissionNumber path string true "Admission number"
// @Success 200 {object} response.Envelope
// @Router /students/{admissionNumber} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.service.Get(c.Request.Context(), c.Param("admissionNumber"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}
