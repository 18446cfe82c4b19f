package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/scantrack/attendance-api/internal/models"
)

// AuditRepository persists the attendance audit trail.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends one audit entry.
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO audit_logs (id, action, student_id, session_id, previous_status, new_status, performed_by, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query, entry.ID, entry.Action, entry.StudentID, entry.SessionID,
		entry.PreviousStatus, entry.NewStatus, entry.PerformedBy, entry.Reason, entry.CreatedAt); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// ListBySession returns audit entries for one session, newest first.
func (r *AuditRepository) ListBySession(ctx context.Context, sessionID string) ([]models.AuditLog, error) {
	query := `SELECT id, action, student_id, session_id, previous_status, new_status, performed_by, reason, created_at
FROM audit_logs WHERE session_id = $1 ORDER BY created_at DESC`
	var entries []models.AuditLog
	if err := r.db.SelectContext(ctx, &entries, query, sessionID); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return entries, nil
}
