package models

import "time"

// PackageStatus captures the lifecycle of a prepaid course-hour package.
type PackageStatus string

const (
	PackageStatusActive   PackageStatus = "active"
	PackageStatusInactive PackageStatus = "inactive"
	PackageStatusExpired  PackageStatus = "expired"
	PackageStatusUsed     PackageStatus = "used"
)

// ValidPackageStatus reports whether the given value is a known status.
func ValidPackageStatus(s string) bool {
	switch PackageStatus(s) {
	case PackageStatusActive, PackageStatusInactive, PackageStatusExpired, PackageStatusUsed:
		return true
	}
	return false
}

// Package is a prepaid bucket of instructional hours owned by exactly one
// student. UsedHours only grows, through consumption records; RemainingHours
// is kept equal to max(0, TotalHours-UsedHours).
type Package struct {
	ID             string        `db:"id" json:"id"`
	StudentID      string        `db:"student_id" json:"student_id"`
	Name           string        `db:"name" json:"name,omitempty"`
	TotalHours     float64       `db:"total_hours" json:"total_hours"`
	UsedHours      float64       `db:"used_hours" json:"used_hours"`
	RemainingHours float64       `db:"remaining_hours" json:"remaining_hours"`
	Status         PackageStatus `db:"status" json:"status"`
	PurchaseDate   time.Time     `db:"purchase_date" json:"purchase_date"`
	ExpireDate     *time.Time    `db:"expire_date" json:"expire_date,omitempty"`
	Notes          string        `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// Exhausted reports whether the package has no hours left to charge.
func (p Package) Exhausted() bool {
	return p.RemainingHours <= 0
}
