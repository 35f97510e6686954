package models

import "time"

// StudentStatus captures the lifecycle of a customer account.
type StudentStatus string

const (
	StudentStatusNew      StudentStatus = "new"
	StudentStatusActive   StudentStatus = "active"
	StudentStatusInactive StudentStatus = "inactive"
)

// ValidStudentStatus reports whether the given value is a known status.
func ValidStudentStatus(s string) bool {
	switch StudentStatus(s) {
	case StudentStatusNew, StudentStatusActive, StudentStatusInactive:
		return true
	}
	return false
}

// Student represents a customer of the tutoring business. The hour totals are
// denormalized aggregates over the student's packages; they are recomputed
// from the packages, never edited directly.
type Student struct {
	ID             string        `db:"id" json:"id"`
	Name           string        `db:"name" json:"name"`
	Phone          string        `db:"phone" json:"phone,omitempty"`
	Email          string        `db:"email" json:"email,omitempty"`
	BirthDate      *time.Time    `db:"birth_date" json:"birth_date,omitempty"`
	Address        string        `db:"address" json:"address,omitempty"`
	Notes          string        `db:"notes" json:"notes,omitempty"`
	Status         StudentStatus `db:"status" json:"status"`
	TotalHours     float64       `db:"total_hours" json:"total_hours"`
	UsedHours      float64       `db:"used_hours" json:"used_hours"`
	RemainingHours float64       `db:"remaining_hours" json:"remaining_hours"`
	RegisterDate   time.Time     `db:"register_date" json:"register_date"`
	LastClassDate  *time.Time    `db:"last_class_date" json:"last_class_date,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates the list query parameters. A fresh value is
// built per request; list state is never shared between calls.
type StudentFilter struct {
	Status   string
	Search   string
	Page     int
	PageSize int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
