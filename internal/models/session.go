package models

import "time"

// SessionStatus is the lifecycle state of an attendance session.
type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
)

// Valid returns true when the status is a supported value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusScheduled, SessionStatusActive, SessionStatusCompleted:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the lifecycle permits moving to next.
// Statuses only move forward; repeating the current status is an idempotent
// no-op and is allowed.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case SessionStatusScheduled:
		return next == SessionStatusActive || next == SessionStatusCompleted
	case SessionStatusActive:
		return next == SessionStatusCompleted
	default:
		return false
	}
}

// Session is one time-bounded attendance window on a single civil date.
// StartTime and EndTime are HH:MM strings in the school timezone.
type Session struct {
	ID        string        `db:"id" json:"id"`
	Class     string        `db:"class" json:"class"`
	Section   string        `db:"section" json:"section"`
	Date      time.Time     `db:"date" json:"date"`
	StartTime string        `db:"start_time" json:"start_time"`
	EndTime   string        `db:"end_time" json:"end_time"`
	Status    SessionStatus `db:"status" json:"status"`
	CreatedBy string        `db:"created_by" json:"created_by"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// Scoped reports whether the session is restricted to one class+section.
// An empty class means the whole roster is in scope.
func (s *Session) Scoped() bool {
	return s.Class != ""
}

// InScope reports whether a student belongs to this session's audience.
func (s *Session) InScope(student *Student) bool {
	if !s.Scoped() {
		return true
	}
	if s.Class != student.Class {
		return false
	}
	return s.Section == "" || s.Section == student.Section
}

// SessionFilter scopes session listing queries.
type SessionFilter struct {
	Date     *time.Time
	Status   *SessionStatus
	Class    string
	Page     int
	PageSize int
}
