package models

import "time"

// Student is one enrolled student, keyed by admission number. The roster is
// owned by the import/admin tooling; this service only reads it.
type Student struct {
	AdmissionNumber string    `db:"admission_number" json:"admission_number"`
	FullName        string    `db:"full_name" json:"full_name"`
	Class           string    `db:"class" json:"class"`
	Section         string    `db:"section" json:"section"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter scopes roster listing queries.
type StudentFilter struct {
	Class    string
	Section  string
	Search   string
	Page     int
	PageSize int
}
