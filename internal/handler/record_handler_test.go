package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tutortrack/tutor-admin-api/internal/ledger"
	"github.com/tutortrack/tutor-admin-api/internal/models"
	"github.com/tutortrack/tutor-admin-api/internal/service"
	"github.com/tutortrack/tutor-admin-api/pkg/response"
)

type fakeConsumptionRepo struct {
	pkg     *models.Package
	records []models.ConsumptionRecord
}

func (f *fakeConsumptionRepo) ListByStudent(_ context.Context, studentID, packageID string) ([]models.ConsumptionRecord, error) {
	return f.records, nil
}

func (f *fakeConsumptionRepo) Record(_ context.Context, rec *models.ConsumptionRecord) (*models.Package, error) {
	charged, err := ledger.ApplyConsumption(*f.pkg, rec.ConsumptionHours)
	if err != nil {
		return nil, err
	}
	*f.pkg = charged
	rec.ID = "rec-1"
	rec.RemainingHours = charged.RemainingHours
	rec.UsedHours = charged.UsedHours
	if rec.OperationTime.IsZero() {
		rec.OperationTime = time.Now().UTC()
	}
	return &charged, nil
}

type fakePackageReader struct {
	pkg *models.Package
}

func (f *fakePackageReader) FindByID(_ context.Context, id string) (*models.Package, error) {
	if f.pkg == nil || f.pkg.ID != id {
		return nil, sql.ErrNoRows
	}
	copied := *f.pkg
	return &copied, nil
}

func (f *fakePackageReader) ListByStudent(_ context.Context, studentID string, activeOnly bool) ([]models.Package, error) {
	if f.pkg == nil || f.pkg.StudentID != studentID {
		return nil, nil
	}
	return []models.Package{*f.pkg}, nil
}

type fakeIdempotency struct{}

func (fakeIdempotency) Reserve(context.Context, string, time.Duration) (bool, error) { return true, nil }
func (fakeIdempotency) Release(context.Context, string)                              {}

type fakeNotifier struct{}

func (fakeNotifier) EnqueueRecalculate(string) {}

func newRecordHandlerFixture(pkg *models.Package) *RecordHandler {
	consumptions := service.NewConsumptionService(
		&fakeConsumptionRepo{pkg: pkg},
		&fakePackageReader{pkg: pkg},
		fakeIdempotency{},
		fakeNotifier{},
		nil,
		service.NewMetricsService(),
		zap.NewNop(),
		service.ConsumptionServiceConfig{},
	)
	return NewRecordHandler(consumptions, nil)
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestRecordHandlerSubmitConsumption(t *testing.T) {
	gin.SetMode(gin.TestMode)
	pkg := &models.Package{
		ID: "pkg-1", StudentID: "stu-1", TotalHours: 10, RemainingHours: 10,
		Status: models.PackageStatusActive,
	}
	handler := newRecordHandlerFixture(pkg)

	payload, _ := json.Marshal(service.SubmitConsumptionRequest{
		PackageID:        "pkg-1",
		ConsumptionHours: 3,
	})
	c, w := newGinContext(http.MethodPost, "/students/stu-1/consumption-records", payload)
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}}

	handler.SubmitConsumption(c)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Data)
	assert.Equal(t, 7.0, pkg.RemainingHours)
}

func TestRecordHandlerSubmitConsumptionInsufficient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	pkg := &models.Package{
		ID: "pkg-1", StudentID: "stu-1", TotalHours: 10, UsedHours: 9, RemainingHours: 1,
		Status: models.PackageStatusActive,
	}
	handler := newRecordHandlerFixture(pkg)

	payload, _ := json.Marshal(service.SubmitConsumptionRequest{
		PackageID:        "pkg-1",
		ConsumptionHours: 2,
	})
	c, w := newGinContext(http.MethodPost, "/students/stu-1/consumption-records", payload)
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}}

	handler.SubmitConsumption(c)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 1.0, pkg.RemainingHours)
}

func TestRecordHandlerSubmitConsumptionMissingSelection(t *testing.T) {
	gin.SetMode(gin.TestMode)
	pkg := &models.Package{
		ID: "pkg-1", StudentID: "stu-1", TotalHours: 10, RemainingHours: 10,
		Status: models.PackageStatusActive,
	}
	handler := newRecordHandlerFixture(pkg)

	payload, _ := json.Marshal(service.SubmitConsumptionRequest{ConsumptionHours: 1})
	c, w := newGinContext(http.MethodPost, "/students/stu-1/consumption-records", payload)
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}}

	handler.SubmitConsumption(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordHandlerListConsumptions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	pkg := &models.Package{
		ID: "pkg-1", StudentID: "stu-1", TotalHours: 10, RemainingHours: 10,
		Status: models.PackageStatusActive,
	}
	handler := newRecordHandlerFixture(pkg)

	c, w := newGinContext(http.MethodGet, "/students/stu-1/consumption-records", nil)
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}}

	handler.ListConsumptions(c)
	require.Equal(t, http.StatusOK, w.Code)
}
