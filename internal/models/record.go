package models

import "time"

// ConsumptionRecord is an immutable charge of hours against one package. The
// remaining/used fields snapshot the package balance after the charge was
// applied; records are listed newest first and never updated.
type ConsumptionRecord struct {
	ID               string    `db:"id" json:"id"`
	StudentID        string    `db:"student_id" json:"student_id"`
	PackageID        string    `db:"package_id" json:"package_id"`
	ConsumptionHours float64   `db:"consumption_hours" json:"consumption_hours"`
	RemainingHours   float64   `db:"remaining_hours" json:"remaining_hours"`
	UsedHours        float64   `db:"used_hours" json:"used_hours"`
	OperationTime    time.Time `db:"operation_time" json:"operation_time"`
	OperatorName     string    `db:"operator_name" json:"operator_name,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// ClassRecord logs one delivered lesson for a student.
type ClassRecord struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Date      time.Time `db:"date" json:"date"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
