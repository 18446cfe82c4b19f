package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/scantrack/attendance-api/internal/models"
	appErrors "github.com/scantrack/attendance-api/pkg/errors"
)

type studentStore interface {
	Get(ctx context.Context, admissionNumber string) (*models.Student, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
}

// StudentService exposes roster reads.
type StudentService struct {
	repo   studentStore
	logger *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentStore, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, logger: logger}
}

// Get returns one student by admission number.
func (s *StudentService) Get(ctx context.Context, admissionNumber string) (*models.Student, error) {
	student, err := s.repo.Get(ctx, admissionNumber)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student == nil {
		return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "")
	}
	return student, nil
}

// List returns roster rows matching the filter with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, models.NewPagination(filter.Page, filter.PageSize, total), nil
}
