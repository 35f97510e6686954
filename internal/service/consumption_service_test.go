package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tutortrack/tutor-admin-api/internal/ledger"
	"github.com/tutortrack/tutor-admin-api/internal/models"
	appErrors "github.com/tutortrack/tutor-admin-api/pkg/errors"
)

type mockConsumptionRepo struct {
	stored      *models.Package
	records     []models.ConsumptionRecord
	recordCalls int
	recordErr   error
}

func (m *mockConsumptionRepo) ListByStudent(_ context.Context, studentID, packageID string) ([]models.ConsumptionRecord, error) {
	return m.records, nil
}

func (m *mockConsumptionRepo) Record(_ context.Context, rec *models.ConsumptionRecord) (*models.Package, error) {
	m.recordCalls++
	if m.recordErr != nil {
		return nil, m.recordErr
	}
	charged, err := ledger.ApplyConsumption(*m.stored, rec.ConsumptionHours)
	if err != nil {
		return nil, err
	}
	*m.stored = charged
	rec.ID = "rec-1"
	rec.RemainingHours = charged.RemainingHours
	rec.UsedHours = charged.UsedHours
	if rec.OperationTime.IsZero() {
		rec.OperationTime = time.Now().UTC()
	}
	m.records = append([]models.ConsumptionRecord{*rec}, m.records...)
	return &charged, nil
}

type mockPackageReader struct {
	packages map[string]*models.Package
	findErr  error
	listErr  error
}

func (m *mockPackageReader) FindByID(_ context.Context, id string) (*models.Package, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	pkg, ok := m.packages[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *pkg
	return &copied, nil
}

func (m *mockPackageReader) ListByStudent(_ context.Context, studentID string, activeOnly bool) ([]models.Package, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.Package
	for _, pkg := range m.packages {
		if pkg.StudentID != studentID {
			continue
		}
		if activeOnly && pkg.Status != models.PackageStatusActive {
			continue
		}
		out = append(out, *pkg)
	}
	return out, nil
}

type memIdempotencyStore struct {
	keys     map[string]bool
	reserves int
	releases int
}

func (m *memIdempotencyStore) Reserve(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.reserves++
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memIdempotencyStore) Release(_ context.Context, key string) {
	m.releases++
	delete(m.keys, key)
}

type mockSummaryNotifier struct {
	enqueued []string
}

func (m *mockSummaryNotifier) EnqueueRecalculate(studentID string) {
	m.enqueued = append(m.enqueued, studentID)
}

func newConsumptionFixture(pkg *models.Package) (*ConsumptionService, *mockConsumptionRepo, *memIdempotencyStore, *mockSummaryNotifier) {
	repo := &mockConsumptionRepo{stored: pkg}
	packages := &mockPackageReader{packages: map[string]*models.Package{pkg.ID: pkg}}
	idem := &memIdempotencyStore{}
	summaries := &mockSummaryNotifier{}
	svc := NewConsumptionService(repo, packages, idem, summaries, nil, NewMetricsService(), zap.NewNop(), ConsumptionServiceConfig{})
	return svc, repo, idem, summaries
}

func activePackage(id, studentID string, total, used float64) *models.Package {
	return &models.Package{
		ID:             id,
		StudentID:      studentID,
		Name:           "20-hour block",
		TotalHours:     total,
		UsedHours:      used,
		RemainingHours: total - used,
		Status:         models.PackageStatusActive,
		PurchaseDate:   time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestConsumptionSubmitChargesPackage(t *testing.T) {
	pkg := activePackage("pkg-1", "stu-1", 10, 0)
	svc, repo, idem, summaries := newConsumptionFixture(pkg)

	result, err := svc.Submit(context.Background(), SubmitConsumptionRequest{
		StudentID:        "stu-1",
		PackageID:        "pkg-1",
		ConsumptionHours: 3,
		OperatorName:     "ms. chen",
		RequestID:        "req-1",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, repo.recordCalls)
	assert.Equal(t, 7.0, result.Package.RemainingHours)
	assert.Equal(t, 3.0, result.Package.UsedHours)
	assert.Equal(t, models.PackageStatusActive, result.Package.Status)
	assert.Equal(t, 3.0, result.Record.ConsumptionHours)
	assert.Equal(t, 7.0, result.Record.RemainingHours)
	assert.Equal(t, "ms. chen", result.Record.OperatorName)
	assert.Equal(t, []string{"stu-1"}, summaries.enqueued)
	assert.True(t, idem.keys["consumption:req-1"])

	require.NotNil(t, result.Eligible)
	assert.Len(t, result.Eligible.Packages, 1)
	assert.Equal(t, "pkg-1", result.Eligible.DefaultPackageID)
	assert.Equal(t, 1.0, result.Eligible.DefaultHours)
	assert.False(t, result.SuggestInactive)
}

func TestConsumptionSubmitExactExhaustion(t *testing.T) {
	pkg := activePackage("pkg-1", "stu-1", 10, 9)
	svc, _, _, _ := newConsumptionFixture(pkg)

	result, err := svc.Submit(context.Background(), SubmitConsumptionRequest{
		StudentID:        "stu-1",
		PackageID:        "pkg-1",
		ConsumptionHours: 1,
		RequestID:        "req-1",
	})
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.Package.RemainingHours)
	assert.Equal(t, models.PackageStatusUsed, result.Package.Status)
	require.NotNil(t, result.Eligible)
	assert.Empty(t, result.Eligible.Packages)
	assert.Empty(t, result.Eligible.DefaultPackageID)
	assert.True(t, result.SuggestInactive)
}

func TestConsumptionSubmitInsufficientBalance(t *testing.T) {
	pkg := activePackage("pkg-1", "stu-1", 10, 9)
	svc, repo, idem, _ := newConsumptionFixture(pkg)

	_, err := svc.Submit(context.Background(), SubmitConsumptionRequest{
		StudentID:        "stu-1",
		PackageID:        "pkg-1",
		ConsumptionHours: 2,
		RequestID:        "req-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInsufficientBalance.Code, appErrors.FromError(err).Code)

	// Rejected before any reservation or write.
	assert.Equal(t, 0, repo.recordCalls)
	assert.Equal(t, 0, idem.reserves)
	assert.Equal(t, 9.0, pkg.UsedHours)
	assert.Equal(t, 1.0, pkg.RemainingHours)
}

func TestConsumptionSubmitMissingSelection(t *testing.T) {
	pkg := activePackage("pkg-1", "stu-1", 10, 0)
	svc, repo, _, _ := newConsumptionFixture(pkg)

	_, err := svc.Submit(context.Background(), SubmitConsumptionRequest{
		StudentID:        "stu-1",
		ConsumptionHours: 1,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrMissingSelection.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, repo.recordCalls)
}

func TestConsumptionSubmitInvalidQuantity(t *testing.T) {
	cases := []struct {
		name  string
		hours float64
	}{
		{"zero", 0},
		{"negative", -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pkg := activePackage("pkg-1", "stu-1", 10, 0)
			svc, repo, _, _ := newConsumptionFixture(pkg)

			_, err := svc.Submit(context.Background(), SubmitConsumptionRequest{
				StudentID:        "stu-1",
				PackageID:        "pkg-1",
				ConsumptionHours: tc.hours,
			})
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrInvalidQuantity.Code, appErrors.FromError(err).Code)
			assert.Equal(t, 0, repo.recordCalls)
		})
	}
}

func TestConsumptionSubmitPackageNotFound(t *testing.T) {
	pkg := activePackage("pkg-1", "stu-1", 10, 0)
	svc, _, _, _ := newConsumptionFixture(pkg)

	_, err := svc.Submit(context.Background(), SubmitConsumptionRequest{
		StudentID:        "stu-1",
		PackageID:        "pkg-missing",
		ConsumptionHours: 1,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestConsumptionSubmitWrongStudent(t *testing.T) {
	pkg := activePackage("pkg-1", "stu-1", 10, 0)
	svc, repo, _, _ := newConsumptionFixture(pkg)

	_, err := svc.Submit(context.Background(), SubmitConsumptionRequest{
		StudentID:        "stu-2",
		PackageID:        "pkg-1",
		ConsumptionHours: 1,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, repo.recordCalls)
}

func TestConsumptionSubmitInvalidOperationTime(t *testing.T) {
	pkg := activePackage("pkg-1", "stu-1", 10, 0)
	svc, _, _, _ := newConsumptionFixture(pkg)

	_, err := svc.Submit(context.Background(), SubmitConsumptionRequest{
		StudentID:        "stu-1",
		PackageID:        "pkg-1",
		ConsumptionHours: 1,
		OperationTime:    "10/02/2026",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestConsumptionSubmitDuplicateRequest(t *testing.T) {
	pkg := activePackage("pkg-1", "stu-1", 10, 0)
	svc, repo, _, _ := newConsumptionFixture(pkg)

	req := SubmitConsumptionRequest{
		StudentID:        "stu-1",
		PackageID:        "pkg-1",
		ConsumptionHours: 2,
		RequestID:        "req-dup",
	}

	_, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateRequest.Code, appErrors.FromError(err).Code)

	// The duplicate never reached the database; only one charge landed.
	assert.Equal(t, 1, repo.recordCalls)
	assert.Equal(t, 8.0, pkg.RemainingHours)
}

func TestConsumptionSubmitFailureLeavesNothingBehind(t *testing.T) {
	pkg := activePackage("pkg-1", "stu-1", 10, 0)
	svc, repo, idem, summaries := newConsumptionFixture(pkg)
	repo.recordErr = errors.New("connection reset")

	req := SubmitConsumptionRequest{
		StudentID:        "stu-1",
		PackageID:        "pkg-1",
		ConsumptionHours: 3,
		RequestID:        "req-retry",
	}

	_, err := svc.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)

	// Balance untouched, no recalculation scheduled, reservation freed.
	assert.Equal(t, 0.0, pkg.UsedHours)
	assert.Empty(t, summaries.enqueued)
	assert.Equal(t, 1, idem.releases)
	assert.False(t, idem.keys["consumption:req-retry"])

	// An identical retry now goes through.
	repo.recordErr = nil
	result, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 7.0, result.Package.RemainingHours)
	assert.Equal(t, 2, repo.recordCalls)
}

func TestConsumptionSubmitGeneratesRequestID(t *testing.T) {
	pkg := activePackage("pkg-1", "stu-1", 10, 0)
	svc, _, idem, _ := newConsumptionFixture(pkg)

	_, err := svc.Submit(context.Background(), SubmitConsumptionRequest{
		StudentID:        "stu-1",
		PackageID:        "pkg-1",
		ConsumptionHours: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, idem.reserves)
	assert.Len(t, idem.keys, 1)
}

func TestConsumptionList(t *testing.T) {
	pkg := activePackage("pkg-1", "stu-1", 10, 0)
	svc, repo, _, _ := newConsumptionFixture(pkg)
	repo.records = []models.ConsumptionRecord{{ID: "rec-9", StudentID: "stu-1"}}

	records, err := svc.List(context.Background(), "stu-1", "")
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, "rec-9", records[0].ID)
}
