package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/scantrack/attendance-api/internal/models"
)

// SessionRepository persists attendance sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	now := time.Now().UTC()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	session.CreatedAt = now
	session.UpdatedAt = now
	query := `INSERT INTO attendance_sessions (id, class, section, date, start_time, end_time, status, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(ctx, query, session.ID, session.Class, session.Section, session.Date,
		session.StartTime, session.EndTime, session.Status, session.CreatedBy, session.CreatedAt, session.UpdatedAt); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetByID returns a session, or nil when it does not exist.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT id, class, section, date, start_time, end_time, status, created_by, created_at, updated_at
FROM attendance_sessions WHERE id = $1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &session, nil
}

// SetStatus moves a session forward. Completed sessions are never touched, so
// the update is idempotent and safe under racing reconcilers. The row count is
// returned for callers that care whether this invocation made the change.
func (r *SessionRepository) SetStatus(ctx context.Context, id string, status models.SessionStatus) (bool, error) {
	query := `UPDATE attendance_sessions SET status = $2, updated_at = $3
WHERE id = $1 AND status <> $4 AND status <> $2`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC(), models.SessionStatusCompleted)
	if err != nil {
		return false, fmt.Errorf("set session status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set session status: %w", err)
	}
	return affected > 0, nil
}

// ListActiveForDate returns sessions still marked active on the given date.
func (r *SessionRepository) ListActiveForDate(ctx context.Context, date time.Time) ([]models.Session, error) {
	query := `SELECT id, class, section, date, start_time, end_time, status, created_by, created_at, updated_at
FROM attendance_sessions WHERE date = $1 AND status = $2
ORDER BY start_time ASC`
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, date, models.SessionStatusActive); err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}

// FindScannableForDate returns the earliest-starting open session for the
// date, preferring active over scheduled. Nil when none exists.
func (r *SessionRepository) FindScannableForDate(ctx context.Context, date time.Time) (*models.Session, error) {
	query := `SELECT id, class, section, date, start_time, end_time, status, created_by, created_at, updated_at
FROM attendance_sessions WHERE date = $1 AND status <> $2
ORDER BY CASE status WHEN 'active' THEN 0 ELSE 1 END, start_time ASC
LIMIT 1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, date, models.SessionStatusCompleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find scannable session: %w", err)
	}
	return &session, nil
}

// List returns sessions matching the filter, newest first.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Date != nil {
		where = append(where, fmt.Sprintf("date = $%d", len(args)+1))
		args = append(args, *filter.Date)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Class != "" {
		where = append(where, fmt.Sprintf("class = $%d", len(args)+1))
		args = append(args, filter.Class)
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

	query := fmt.Sprintf(`SELECT id, class, section, date, start_time, end_time, status, created_by, created_at, updated_at
FROM attendance_sessions WHERE %s
ORDER BY date DESC, start_time DESC
LIMIT %d OFFSET %d`, whereClause, size, offset)

	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM attendance_sessions WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}
