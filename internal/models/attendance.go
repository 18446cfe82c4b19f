package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusLate    AttendanceStatus = "late"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusExcused AttendanceStatus = "excused"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusLate, AttendanceStatusAbsent, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// AttendanceRecord is one attendance fact. The store enforces uniqueness on
// (student_id, session_id); at most one record exists per pair.
type AttendanceRecord struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	SessionID string           `db:"session_id" json:"session_id"`
	Date      time.Time        `db:"date" json:"date"`
	Status    AttendanceStatus `db:"status" json:"status"`
	ScanTime  time.Time        `db:"scan_time" json:"scan_time"`
	MarkedBy  string           `db:"marked_by" json:"marked_by"`
	Reason    *string          `db:"reason" json:"reason,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceRow extends a record with student metadata for listings.
type AttendanceRow struct {
	AttendanceRecord
	StudentName string `db:"student_name" json:"student_name"`
	Class       string `db:"class" json:"class"`
	Section     string `db:"section" json:"section"`
}

// SessionSummary carries per-session status counts.
type SessionSummary struct {
	SessionID string `json:"session_id"`
	Present   int    `json:"present"`
	Late      int    `json:"late"`
	Absent    int    `json:"absent"`
	Excused   int    `json:"excused"`
	Total     int    `json:"total"`
}

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	SessionsProcessed int `json:"sessions_processed"`
	SessionsCompleted int `json:"sessions_completed"`
	AbsentMarked      int `json:"absent_marked"`
}
