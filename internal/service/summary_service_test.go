package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tutortrack/tutor-admin-api/internal/ledger"
	"github.com/tutortrack/tutor-admin-api/internal/models"
	appErrors "github.com/tutortrack/tutor-admin-api/pkg/errors"
)

type mockSummaryStudents struct {
	students    map[string]*models.Student
	hoursCalls  int
	storedTotal float64
	storedUsed  float64
	storedLeft  float64
}

func (m *mockSummaryStudents) FindByID(_ context.Context, id string) (*models.Student, error) {
	student, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *student
	return &copied, nil
}

func (m *mockSummaryStudents) UpdateHours(_ context.Context, id string, total, used, remaining float64) error {
	m.hoursCalls++
	m.storedTotal = total
	m.storedUsed = used
	m.storedLeft = remaining
	if student, ok := m.students[id]; ok {
		student.TotalHours = total
		student.UsedHours = used
		student.RemainingHours = remaining
	}
	return nil
}

type stubCache struct {
	store   map[string][]byte
	deletes []string
}

func (s *stubCache) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCache) Delete(_ context.Context, key string) error {
	s.deletes = append(s.deletes, key)
	delete(s.store, key)
	return nil
}

func newSummaryFixture(cacheEnabled bool, packages ...*models.Package) (*SummaryService, *mockSummaryStudents, *stubCache) {
	reader := &mockPackageReader{packages: make(map[string]*models.Package)}
	for _, pkg := range packages {
		reader.packages[pkg.ID] = pkg
	}
	students := &mockSummaryStudents{students: map[string]*models.Student{
		"stu-1": {ID: "stu-1", Name: "Wang Xiaoming", Status: models.StudentStatusActive},
	}}
	cache := &stubCache{}
	svc := NewSummaryService(reader, students, cache, NewMetricsService(), zap.NewNop(), SummaryServiceConfig{
		CacheEnabled: cacheEnabled,
		CacheTTL:     time.Minute,
	})
	return svc, students, cache
}

func TestSummaryScopes(t *testing.T) {
	open := activePackage("pkg-a", "stu-1", 10, 3)
	retired := activePackage("pkg-b", "stu-1", 20, 20)
	retired.Status = models.PackageStatusUsed

	svc, _, _ := newSummaryFixture(false, open, retired)

	all, err := svc.Summary(context.Background(), "stu-1", ledger.ScopeAll)
	require.NoError(t, err)
	assert.Equal(t, 30.0, all.Totals.TotalHours)
	assert.Equal(t, 23.0, all.Totals.UsedHours)
	assert.Equal(t, 7.0, all.Totals.RemainingHours)

	active, err := svc.Summary(context.Background(), "stu-1", ledger.ScopeActive)
	require.NoError(t, err)
	assert.Equal(t, 10.0, active.Totals.TotalHours)
	assert.Equal(t, 7.0, active.Totals.RemainingHours)
}

func TestSummaryCachesScopeAll(t *testing.T) {
	open := activePackage("pkg-a", "stu-1", 10, 3)
	svc, _, cache := newSummaryFixture(true, open)

	first, err := svc.Summary(context.Background(), "stu-1", ledger.ScopeAll)
	require.NoError(t, err)
	assert.Contains(t, cache.store, "summary:stu-1")

	// The backing package changes; the cached view is served until invalidated.
	open.UsedHours = 9
	open.RemainingHours = 1

	second, err := svc.Summary(context.Background(), "stu-1", ledger.ScopeAll)
	require.NoError(t, err)
	assert.Equal(t, first.Totals, second.Totals)
}

func TestSummarySuggestInactive(t *testing.T) {
	retired := activePackage("pkg-a", "stu-1", 10, 10)
	retired.Status = models.PackageStatusUsed

	svc, _, _ := newSummaryFixture(false, retired)

	summary, err := svc.Summary(context.Background(), "stu-1", ledger.ScopeAll)
	require.NoError(t, err)
	assert.True(t, summary.SuggestInactive)
}

func TestSummaryNoPackagesNoSuggestion(t *testing.T) {
	svc, _, _ := newSummaryFixture(false)

	summary, err := svc.Summary(context.Background(), "stu-1", ledger.ScopeAll)
	require.NoError(t, err)
	assert.Zero(t, summary.Totals.TotalHours)
	assert.False(t, summary.SuggestInactive)
}

func TestRecalculateStoresTotals(t *testing.T) {
	open := activePackage("pkg-a", "stu-1", 10, 3)
	extra := activePackage("pkg-b", "stu-1", 5, 5)
	extra.Status = models.PackageStatusUsed

	svc, students, cache := newSummaryFixture(true, open, extra)
	require.NoError(t, cache.Set(context.Background(), "summary:stu-1", StudentSummary{StudentID: "stu-1"}, time.Minute))

	student, err := svc.Recalculate(context.Background(), "stu-1")
	require.NoError(t, err)

	assert.Equal(t, 1, students.hoursCalls)
	assert.Equal(t, 15.0, students.storedTotal)
	assert.Equal(t, 8.0, students.storedUsed)
	assert.Equal(t, 7.0, students.storedLeft)
	assert.Equal(t, 15.0, student.TotalHours)
	assert.Contains(t, cache.deletes, "summary:stu-1")
}

func TestRecalculateUnknownStudent(t *testing.T) {
	svc, _, _ := newSummaryFixture(false)

	_, err := svc.Recalculate(context.Background(), "stu-missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
