package models

import "time"

// AuditAction labels entries in the attendance audit trail.
type AuditAction string

const (
	AuditActionManualOverride   AuditAction = "manual_override"
	AuditActionManualAttendance AuditAction = "manual_attendance"
	AuditActionMarkExcused      AuditAction = "mark_excused"
)

// AuditLog records a manual mutation of attendance facts.
type AuditLog struct {
	ID             string      `db:"id" json:"id"`
	Action         AuditAction `db:"action" json:"action"`
	StudentID      string      `db:"student_id" json:"student_id"`
	SessionID      string      `db:"session_id" json:"session_id"`
	PreviousStatus *string     `db:"previous_status" json:"previous_status,omitempty"`
	NewStatus      string      `db:"new_status" json:"new_status"`
	PerformedBy    string      `db:"performed_by" json:"performed_by"`
	Reason         string      `db:"reason" json:"reason"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}
