package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/scantrack/attendance-api/internal/models"
)

// ErrDuplicateRecord signals a unique-constraint conflict on
// (student_id, session_id). Callers decide whether it is fatal: scans surface
// it as already-marked, reconciliation swallows it.
var ErrDuplicateRecord = errors.New("attendance record already exists")

const pqUniqueViolation = "23505"

// AttendanceRepository persists the one-record-per-(student, session) ledger.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Find returns the record for a (student, session) pair, or nil when absent.
func (r *AttendanceRepository) Find(ctx context.Context, studentID, sessionID string) (*models.AttendanceRecord, error) {
	query := `SELECT id, student_id, session_id, date, status, scan_time, marked_by, reason, created_at, updated_at
FROM attendance_logs WHERE student_id = $1 AND session_id = $2`
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find attendance record: %w", err)
	}
	return &record, nil
}

// GetByID returns a record by primary key.
func (r *AttendanceRepository) GetByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	query := `SELECT id, student_id, session_id, date, status, scan_time, marked_by, reason, created_at, updated_at
FROM attendance_logs WHERE id = $1`
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get attendance record: %w", err)
	}
	return &record, nil
}

// Insert writes a single record. A unique-constraint conflict returns
// ErrDuplicateRecord; racing inserts for the same pair have exactly one winner.
func (r *AttendanceRepository) Insert(ctx context.Context, record *models.AttendanceRecord) error {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	query := `INSERT INTO attendance_logs (id, student_id, session_id, date, status, scan_time, marked_by, reason, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(ctx, query, record.ID, record.StudentID, record.SessionID, record.Date, record.Status,
		record.ScanTime, record.MarkedBy, record.Reason, record.CreatedAt, record.UpdatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateRecord
		}
		return fmt.Errorf("insert attendance record: %w", err)
	}
	return nil
}

// BulkInsertIgnoringConflicts writes many records best-effort. Rows that
// already exist are skipped, never fatal, so repeated reconciliation passes
// converge. Returns the number of rows actually inserted.
func (r *AttendanceRepository) BulkInsertIgnoringConflicts(ctx context.Context, records []models.AttendanceRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin bulk attendance insert: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()
	query := `INSERT INTO attendance_logs (id, student_id, session_id, date, status, scan_time, marked_by, reason, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (student_id, session_id) DO NOTHING`
	now := time.Now().UTC()
	inserted := 0
	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
		res, err := tx.ExecContext(ctx, query, rec.ID, rec.StudentID, rec.SessionID, rec.Date, rec.Status,
			rec.ScanTime, rec.MarkedBy, rec.Reason, rec.CreatedAt, rec.UpdatedAt)
		if err != nil {
			return 0, fmt.Errorf("bulk insert attendance: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit bulk attendance insert: %w", err)
	}
	commit = true
	return inserted, nil
}

// UpdateStatus mutates one record's status, reason and scan time.
func (r *AttendanceRepository) UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus, reason *string, scanTime time.Time, markedBy string) error {
	query := `UPDATE attendance_logs
SET status = $2, reason = $3, scan_time = $4, marked_by = $5, updated_at = $6
WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, reason, scanTime, markedBy, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update attendance record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update attendance record: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListBySession returns all records for a session with student metadata.
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRow, error) {
	query := `SELECT al.id, al.student_id, al.session_id, al.date, al.status, al.scan_time, al.marked_by, al.reason, al.created_at, al.updated_at,
        s.full_name AS student_name, s.class, s.section
FROM attendance_logs al
JOIN students s ON s.admission_number = al.student_id
WHERE al.session_id = $1
ORDER BY s.full_name ASC`
	var rows []models.AttendanceRow
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session attendance: %w", err)
	}
	return rows, nil
}

// ListStudentIDsBySession returns ids of students already holding a record.
func (r *AttendanceRepository) ListStudentIDsBySession(ctx context.Context, sessionID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT student_id FROM attendance_logs WHERE session_id = $1`, sessionID); err != nil {
		return nil, fmt.Errorf("list scanned student ids: %w", err)
	}
	return ids, nil
}

// SummaryBySession aggregates status counts for one session.
func (r *AttendanceRepository) SummaryBySession(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	query := `SELECT status, COUNT(*) AS cnt FROM attendance_logs WHERE session_id = $1 GROUP BY status`
	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"cnt"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("session attendance summary: %w", err)
	}
	summary := &models.SessionSummary{SessionID: sessionID}
	for _, row := range rows {
		switch models.AttendanceStatus(row.Status) {
		case models.AttendanceStatusPresent:
			summary.Present += row.Count
		case models.AttendanceStatusLate:
			summary.Late += row.Count
		case models.AttendanceStatusAbsent:
			summary.Absent += row.Count
		case models.AttendanceStatusExcused:
			summary.Excused += row.Count
		}
		summary.Total += row.Count
	}
	return summary, nil
}
