// Package ledger implements the balance arithmetic for prepaid course-hour
// packages: creation rules, consumption charges, and the aggregate totals a
// student view displays. All functions are pure; persistence and transport
// live elsewhere.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tutortrack/tutor-admin-api/internal/models"
)

// ErrInvalidQuantity rejects consumption amounts that are zero, negative, or
// not finite.
var ErrInvalidQuantity = errors.New("consumption hours must be a positive number")

// ErrMissingSelection rejects a consumption request that names no package.
var ErrMissingSelection = errors.New("no package selected")

// ValidationError reports malformed package input caught before any I/O.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InsufficientBalanceError reports a charge that exceeds the package's
// remaining hours. It carries the actual remaining value so callers can show
// it in the failure message.
type InsufficientBalanceError struct {
	Remaining float64
	Requested float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: %.2f hours remaining, %.2f requested", e.Remaining, e.Requested)
}

// NewPackage builds an in-memory package for a student. TotalHours must be a
// positive finite number; the status defaults to active when empty.
func NewPackage(studentID, name string, totalHours float64, notes string, status models.PackageStatus) (models.Package, error) {
	if studentID == "" {
		return models.Package{}, &ValidationError{Field: "student_id", Reason: "must not be empty"}
	}
	if math.IsNaN(totalHours) || math.IsInf(totalHours, 0) || totalHours <= 0 {
		return models.Package{}, &ValidationError{Field: "total_hours", Reason: "must be a positive finite number"}
	}
	if status == "" {
		status = models.PackageStatusActive
	}
	if !models.ValidPackageStatus(string(status)) {
		return models.Package{}, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}
	return models.Package{
		StudentID:      studentID,
		Name:           name,
		TotalHours:     totalHours,
		UsedHours:      0,
		RemainingHours: totalHours,
		Status:         status,
		PurchaseDate:   time.Now().UTC(),
		Notes:          notes,
	}, nil
}

// ApplyConsumption charges hours against the package and returns the updated
// copy. The input package is never mutated. The charge is rejected when hours
// is not a positive finite number or exceeds the remaining balance; charging
// exactly the remaining balance is allowed and transitions the package to
// status used.
func ApplyConsumption(pkg models.Package, hours float64) (models.Package, error) {
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours <= 0 {
		return pkg, ErrInvalidQuantity
	}
	if hours > pkg.RemainingHours {
		return pkg, &InsufficientBalanceError{Remaining: pkg.RemainingHours, Requested: hours}
	}
	out := pkg
	out.UsedHours += hours
	remaining, _ := RecalculateRemaining(out.TotalHours, out.UsedHours)
	out.RemainingHours = remaining
	if remaining == 0 {
		out.Status = models.PackageStatusUsed
	}
	return out, nil
}

// RecalculateRemaining derives the displayable remaining balance. The result
// is clamped at zero; clamped reports whether the clamp fired, which means
// the stored used hours exceed the total and should be flagged upstream.
func RecalculateRemaining(totalHours, usedHours float64) (remaining float64, clamped bool) {
	remaining = totalHours - usedHours
	if remaining < 0 {
		return 0, true
	}
	return remaining, false
}
