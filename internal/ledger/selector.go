package ledger

import "github.com/tutortrack/tutor-admin-api/internal/models"

// EligiblePackages filters to the packages a consumption event may be charged
// against: active status with hours left. The input ordering is preserved so
// the server's recency ordering carries through to the caller. An empty
// result is a normal outcome, not an error.
func EligiblePackages(all []models.Package) []models.Package {
	eligible := make([]models.Package, 0, len(all))
	for _, pkg := range all {
		if pkg.Status == models.PackageStatusActive && !pkg.Exhausted() {
			eligible = append(eligible, pkg)
		}
	}
	return eligible
}

// DefaultSelection picks the package a consumption form should preselect: the
// first eligible one, or nil when none qualify.
func DefaultSelection(eligible []models.Package) *models.Package {
	if len(eligible) == 0 {
		return nil
	}
	return &eligible[0]
}

// DefaultConsumptionHours is the prefilled charge for a selected package: one
// hour, capped at whatever the package has left.
func DefaultConsumptionHours(pkg models.Package) float64 {
	if pkg.RemainingHours < 1 {
		return pkg.RemainingHours
	}
	return 1
}
