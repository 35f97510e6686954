package ledger

import "github.com/tutortrack/tutor-admin-api/internal/models"

// AggregateScope selects which packages contribute to a student's totals.
// The scope is always an explicit argument; callers maintaining the
// student's stored totals use ScopeAll.
type AggregateScope int

const (
	// ScopeAll sums every package regardless of status.
	ScopeAll AggregateScope = iota
	// ScopeActive sums only packages with active status.
	ScopeActive
)

// Totals holds a student's aggregate hour counters.
type Totals struct {
	TotalHours     float64 `json:"total_hours"`
	UsedHours      float64 `json:"used_hours"`
	RemainingHours float64 `json:"remaining_hours"`
}

// Aggregate sums hour counters across the student's packages under the given
// scope.
func Aggregate(packages []models.Package, scope AggregateScope) Totals {
	var totals Totals
	for _, pkg := range packages {
		if scope == ScopeActive && pkg.Status != models.PackageStatusActive {
			continue
		}
		totals.TotalHours += pkg.TotalHours
		totals.UsedHours += pkg.UsedHours
		totals.RemainingHours += pkg.RemainingHours
	}
	return totals
}

// SuggestInactive reports whether the student looks finished: at least one
// package exists and every one of them is exhausted. The suggestion is
// advisory; the stored student status only changes through an explicit edit.
func SuggestInactive(packages []models.Package) bool {
	if len(packages) == 0 {
		return false
	}
	for _, pkg := range packages {
		if !pkg.Exhausted() {
			return false
		}
	}
	return true
}
