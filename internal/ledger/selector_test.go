package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutortrack/tutor-admin-api/internal/models"
)

func TestEligiblePackagesFiltersAndKeepsOrder(t *testing.T) {
	all := []models.Package{
		{ID: "a", Status: models.PackageStatusActive, RemainingHours: 5},
		{ID: "b", Status: models.PackageStatusExpired, RemainingHours: 5},
		{ID: "c", Status: models.PackageStatusActive, RemainingHours: 0},
		{ID: "d", Status: models.PackageStatusUsed, RemainingHours: 0},
		{ID: "e", Status: models.PackageStatusActive, RemainingHours: 0.5},
	}

	eligible := EligiblePackages(all)
	require.Len(t, eligible, 2)
	assert.Equal(t, "a", eligible[0].ID)
	assert.Equal(t, "e", eligible[1].ID)
}

func TestEligiblePackagesEmptyWhenAllExhausted(t *testing.T) {
	all := []models.Package{
		{ID: "a", Status: models.PackageStatusActive, RemainingHours: 0},
		{ID: "b", Status: models.PackageStatusUsed, RemainingHours: 0},
	}

	eligible := EligiblePackages(all)
	assert.NotNil(t, eligible)
	assert.Empty(t, eligible)
	assert.Nil(t, DefaultSelection(eligible))
}

func TestDefaultSelectionPicksFirst(t *testing.T) {
	eligible := []models.Package{
		{ID: "first", Status: models.PackageStatusActive, RemainingHours: 2},
		{ID: "second", Status: models.PackageStatusActive, RemainingHours: 9},
	}
	selected := DefaultSelection(eligible)
	require.NotNil(t, selected)
	assert.Equal(t, "first", selected.ID)
}

func TestDefaultConsumptionHours(t *testing.T) {
	assert.Equal(t, 1.0, DefaultConsumptionHours(models.Package{RemainingHours: 8}))
	assert.Equal(t, 0.5, DefaultConsumptionHours(models.Package{RemainingHours: 0.5}))
}
