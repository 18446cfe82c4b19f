package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/scantrack/attendance-api/internal/models"
)

// StudentRepository reads the enrolled-student roster.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// Get returns a student by admission number, or nil when missing.
func (r *StudentRepository) Get(ctx context.Context, admissionNumber string) (*models.Student, error) {
	query := `SELECT admission_number, full_name, class, section, created_at, updated_at
FROM students WHERE admission_number = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, admissionNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get student: %w", err)
	}
	return &student, nil
}

// List returns roster rows matching the filter.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Class != "" {
		where = append(where, fmt.Sprintf("class = $%d", len(args)+1))
		args = append(args, filter.Class)
	}
	if filter.Section != "" {
		where = append(where, fmt.Sprintf("section = $%d", len(args)+1))
		args = append(args, filter.Section)
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(full_name ILIKE $%d OR admission_number ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT admission_number, full_name, class, section, created_at, updated_at
FROM students WHERE %s
ORDER BY full_name ASC
LIMIT %d OFFSET %d`, whereClause, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM students WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// ListAdmissionNumbers returns the in-scope roster ids. Empty class means the
// whole roster.
func (r *StudentRepository) ListAdmissionNumbers(ctx context.Context, class, section string) ([]string, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if class != "" {
		where = append(where, fmt.Sprintf("class = $%d", len(args)+1))
		args = append(args, class)
	}
	if section != "" {
		where = append(where, fmt.Sprintf("section = $%d", len(args)+1))
		args = append(args, section)
	}
	query := fmt.Sprintf("SELECT admission_number FROM students WHERE %s", strings.Join(where, " AND "))
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("list admission numbers: %w", err)
	}
	return ids, nil
}
