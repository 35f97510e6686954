package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutortrack/tutor-admin-api/internal/ledger"
	"github.com/tutortrack/tutor-admin-api/internal/models"
	appErrors "github.com/tutortrack/tutor-admin-api/pkg/errors"
)

type consumptionRepository interface {
	ListByStudent(ctx context.Context, studentID, packageID string) ([]models.ConsumptionRecord, error)
	Record(ctx context.Context, rec *models.ConsumptionRecord) (*models.Package, error)
}

type consumptionPackageReader interface {
	FindByID(ctx context.Context, id string) (*models.Package, error)
	ListByStudent(ctx context.Context, studentID string, activeOnly bool) ([]models.Package, error)
}

type idempotencyStore interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string)
}

type summaryNotifier interface {
	EnqueueRecalculate(studentID string)
}

// SubmitConsumptionRequest is one consumption submission. RequestID is the
// client-generated idempotency key; a retry after a network failure reuses it
// so the charge cannot land twice.
type SubmitConsumptionRequest struct {
	StudentID        string  `json:"student_id" validate:"required"`
	PackageID        string  `json:"package_id"`
	ConsumptionHours float64 `json:"consumption_hours"`
	OperationTime    string  `json:"operation_time"`
	OperatorName     string  `json:"operator_name"`
	RequestID        string  `json:"request_id"`
}

// ConsumptionResult is everything dependent views need to reconcile after a
// successful charge: the new record, the package's post-charge balance, the
// refreshed candidate list, and the advisory student-status suggestion. It is
// produced atomically so no view updates from partial state.
type ConsumptionResult struct {
	Record          *models.ConsumptionRecord `json:"record"`
	Package         *models.Package           `json:"package"`
	Eligible        *EligiblePackagesResponse `json:"eligible"`
	SuggestInactive bool                      `json:"suggest_inactive"`
}

// ConsumptionServiceConfig tunes submission behaviour.
type ConsumptionServiceConfig struct {
	SubmitTimeout  time.Duration
	IdempotencyTTL time.Duration
}

// ConsumptionService validates and submits consumption events and propagates
// their results.
type ConsumptionService struct {
	repo        consumptionRepository
	packages    consumptionPackageReader
	idempotency idempotencyStore
	summaries   summaryNotifier
	validator   *validator.Validate
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         ConsumptionServiceConfig
}

// NewConsumptionService constructs the consumption service.
func NewConsumptionService(repo consumptionRepository, packages consumptionPackageReader, idempotency idempotencyStore, summaries summaryNotifier, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cfg ConsumptionServiceConfig) *ConsumptionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 10 * time.Second
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	return &ConsumptionService{
		repo:        repo,
		packages:    packages,
		idempotency: idempotency,
		summaries:   summaries,
		validator:   validate,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
	}
}

// List returns a student's consumption records, optionally narrowed to one
// package, newest first.
func (s *ConsumptionService) List(ctx context.Context, studentID, packageID string) ([]models.ConsumptionRecord, error) {
	records, err := s.repo.ListByStudent(ctx, studentID, packageID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list consumption records")
	}
	return records, nil
}

// Submit runs one consumption event through validation, the transactional
// charge, and result propagation. Validation failures never reach the
// database; a database failure leaves no local or stored state behind.
func (s *ConsumptionService) Submit(ctx context.Context, req SubmitConsumptionRequest) (*ConsumptionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		s.metrics.RecordConsumption("rejected")
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid consumption payload")
	}
	if req.PackageID == "" {
		s.metrics.RecordConsumption("rejected")
		return nil, appErrors.Clone(appErrors.ErrMissingSelection, "")
	}

	pkg, err := s.packages.FindByID(ctx, req.PackageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordConsumption("rejected")
			return nil, appErrors.Clone(appErrors.ErrNotFound, "package not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load package")
	}
	if pkg.StudentID != req.StudentID {
		s.metrics.RecordConsumption("rejected")
		return nil, appErrors.Clone(appErrors.ErrValidation, "package does not belong to this student")
	}

	// Fast local pre-check against the in-memory balance; the transactional
	// charge re-validates against the stored row.
	if _, err := ledger.ApplyConsumption(*pkg, req.ConsumptionHours); err != nil {
		s.metrics.RecordConsumption("rejected")
		return nil, mapLedgerError(err)
	}

	var operationTime time.Time
	if req.OperationTime != "" {
		operationTime, err = time.Parse(time.RFC3339, req.OperationTime)
		if err != nil {
			s.metrics.RecordConsumption("rejected")
			return nil, appErrors.Clone(appErrors.ErrValidation, "operation time must be RFC 3339")
		}
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	idemKey := fmt.Sprintf("consumption:%s", requestID)
	reserved, err := s.idempotency.Reserve(ctx, idemKey, s.cfg.IdempotencyTTL)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve request id")
	}
	if !reserved {
		s.metrics.RecordDuplicateSubmission()
		return nil, appErrors.Clone(appErrors.ErrDuplicateRequest, "this consumption was already submitted")
	}

	record := &models.ConsumptionRecord{
		StudentID:        req.StudentID,
		PackageID:        req.PackageID,
		ConsumptionHours: req.ConsumptionHours,
		OperationTime:    operationTime,
		OperatorName:     req.OperatorName,
	}

	submitCtx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()

	charged, err := s.repo.Record(submitCtx, record)
	if err != nil {
		// The reservation is freed so an identical retry can succeed.
		s.idempotency.Release(ctx, idemKey)
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordConsumption("rejected")
			return nil, appErrors.Clone(appErrors.ErrNotFound, "package not found")
		}
		var balErr *ledger.InsufficientBalanceError
		if errors.As(err, &balErr) || errors.Is(err, ledger.ErrInvalidQuantity) {
			s.metrics.RecordConsumption("rejected")
			return nil, mapLedgerError(err)
		}
		s.metrics.RecordConsumption("failed")
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "consumption submission timed out")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record consumption")
	}

	s.metrics.RecordConsumption("succeeded")
	s.summaries.EnqueueRecalculate(req.StudentID)

	result := &ConsumptionResult{Record: record, Package: charged}
	if all, err := s.packages.ListByStudent(ctx, req.StudentID, false); err != nil {
		// The charge is committed; the refresh is best-effort.
		s.logger.Warn("failed to refresh eligible packages", zap.String("student_id", req.StudentID), zap.Error(err))
	} else {
		eligible := ledger.EligiblePackages(all)
		resp := &EligiblePackagesResponse{Packages: eligible}
		if selected := ledger.DefaultSelection(eligible); selected != nil {
			resp.DefaultPackageID = selected.ID
			resp.DefaultHours = ledger.DefaultConsumptionHours(*selected)
		}
		result.Eligible = resp
		result.SuggestInactive = ledger.SuggestInactive(all)
	}
	return result, nil
}
