package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tutortrack/tutor-admin-api/internal/ledger"
	"github.com/tutortrack/tutor-admin-api/internal/models"
	appErrors "github.com/tutortrack/tutor-admin-api/pkg/errors"
)

type packageRepository interface {
	ListByStudent(ctx context.Context, studentID string, activeOnly bool) ([]models.Package, error)
	FindByID(ctx context.Context, id string) (*models.Package, error)
	Create(ctx context.Context, pkg *models.Package) error
	Update(ctx context.Context, pkg *models.Package) error
	Delete(ctx context.Context, id string) error
}

type packageStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type consumptionCounter interface {
	CountByPackage(ctx context.Context, packageID string) (int, error)
}

type summaryRefresher interface {
	Recalculate(ctx context.Context, studentID string) (*models.Student, error)
}

// CreatePackageRequest holds payload for creating a package.
type CreatePackageRequest struct {
	StudentID    string  `json:"student_id" validate:"required"`
	Name         string  `json:"name"`
	TotalHours   float64 `json:"total_hours" validate:"required"`
	UsedHours    float64 `json:"used_hours" validate:"gte=0"`
	Status       string  `json:"status"`
	PurchaseDate string  `json:"purchase_date"`
	ExpireDate   string  `json:"expire_date"`
	Notes        string  `json:"notes"`
}

// UpdatePackageRequest holds the editable package fields. Nil pointers leave
// the stored value untouched.
type UpdatePackageRequest struct {
	Name         *string  `json:"name"`
	TotalHours   *float64 `json:"total_hours"`
	UsedHours    *float64 `json:"used_hours"`
	Status       *string  `json:"status"`
	PurchaseDate *string  `json:"purchase_date"`
	ExpireDate   *string  `json:"expire_date"`
	Notes        *string  `json:"notes"`
}

// EligiblePackagesResponse carries the selector contract: the candidate list,
// the preselected package, and the prefilled hours, produced together so
// consumers can update all form fields atomically.
type EligiblePackagesResponse struct {
	Packages         []models.Package `json:"packages"`
	DefaultPackageID string           `json:"default_package_id,omitempty"`
	DefaultHours     float64          `json:"default_hours,omitempty"`
}

// PackageService handles course-hour package use-cases.
type PackageService struct {
	repo      packageRepository
	students  packageStudentReader
	records   consumptionCounter
	summaries summaryRefresher
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewPackageService constructs the package service.
func NewPackageService(repo packageRepository, students packageStudentReader, records consumptionCounter, summaries summaryRefresher, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *PackageService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PackageService{repo: repo, students: students, records: records, summaries: summaries, validator: validate, metrics: metrics, logger: logger}
}

// ListByStudent returns a student's packages in the server's recency order.
func (s *PackageService) ListByStudent(ctx context.Context, studentID string, activeOnly bool) ([]models.Package, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	packages, err := s.repo.ListByStudent(ctx, studentID, activeOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list packages")
	}
	return packages, nil
}

// Eligible resolves the packages a consumption may be charged against and the
// default selection. An empty candidate list is a valid response; callers
// render the explicit "no eligible package" affordance.
func (s *PackageService) Eligible(ctx context.Context, studentID string) (*EligiblePackagesResponse, error) {
	packages, err := s.ListByStudent(ctx, studentID, false)
	if err != nil {
		return nil, err
	}
	eligible := ledger.EligiblePackages(packages)
	resp := &EligiblePackagesResponse{Packages: eligible}
	if selected := ledger.DefaultSelection(eligible); selected != nil {
		resp.DefaultPackageID = selected.ID
		resp.DefaultHours = ledger.DefaultConsumptionHours(*selected)
	}
	return resp, nil
}

// Get returns one package.
func (s *PackageService) Get(ctx context.Context, id string) (*models.Package, error) {
	pkg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "package not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load package")
	}
	return pkg, nil
}

// Create registers a new package for a student and refreshes the student's
// stored totals.
func (s *PackageService) Create(ctx context.Context, req CreatePackageRequest) (*models.Package, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid package payload")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	pkg, err := ledger.NewPackage(req.StudentID, req.Name, req.TotalHours, req.Notes, models.PackageStatus(req.Status))
	if err != nil {
		return nil, mapLedgerError(err)
	}
	if req.UsedHours > 0 {
		if req.UsedHours > pkg.TotalHours {
			return nil, appErrors.Clone(appErrors.ErrValidation, "used hours cannot exceed total hours")
		}
		pkg.UsedHours = req.UsedHours
		pkg.RemainingHours, _ = ledger.RecalculateRemaining(pkg.TotalHours, pkg.UsedHours)
	}
	if req.PurchaseDate != "" {
		d, err := parseDate(req.PurchaseDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid purchase date")
		}
		pkg.PurchaseDate = d
	}
	if req.ExpireDate != "" {
		d, err := parseDate(req.ExpireDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid expire date")
		}
		pkg.ExpireDate = &d
	}

	if err := s.repo.Create(ctx, &pkg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create package")
	}
	if _, err := s.summaries.Recalculate(ctx, pkg.StudentID); err != nil {
		s.logger.Warn("failed to refresh student totals after package create", zap.String("student_id", pkg.StudentID), zap.Error(err))
	}
	return &pkg, nil
}

// Update edits an existing package. Changing total or used hours recomputes
// the remaining balance; a clamp is flagged rather than displayed.
func (s *PackageService) Update(ctx context.Context, id string, req UpdatePackageRequest) (*models.Package, error) {
	pkg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		pkg.Name = *req.Name
	}
	if req.TotalHours != nil {
		if *req.TotalHours <= 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "total hours must be a positive number")
		}
		pkg.TotalHours = *req.TotalHours
	}
	if req.UsedHours != nil {
		if *req.UsedHours < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "used hours cannot be negative")
		}
		pkg.UsedHours = *req.UsedHours
	}
	if req.TotalHours != nil || req.UsedHours != nil {
		remaining, clamped := ledger.RecalculateRemaining(pkg.TotalHours, pkg.UsedHours)
		if clamped {
			s.metrics.RecordBalanceClamp()
			s.logger.Warn("package edit clamped remaining balance",
				zap.String("package_id", pkg.ID),
				zap.Float64("total_hours", pkg.TotalHours),
				zap.Float64("used_hours", pkg.UsedHours),
			)
		}
		pkg.RemainingHours = remaining
		if remaining == 0 && pkg.Status == models.PackageStatusActive {
			pkg.Status = models.PackageStatusUsed
		}
	}
	if req.Status != nil {
		if !models.ValidPackageStatus(*req.Status) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown package status")
		}
		pkg.Status = models.PackageStatus(*req.Status)
	}
	if req.PurchaseDate != nil && *req.PurchaseDate != "" {
		d, err := parseDate(*req.PurchaseDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid purchase date")
		}
		pkg.PurchaseDate = d
	}
	if req.ExpireDate != nil {
		if *req.ExpireDate == "" {
			pkg.ExpireDate = nil
		} else {
			d, err := parseDate(*req.ExpireDate)
			if err != nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, "invalid expire date")
			}
			pkg.ExpireDate = &d
		}
	}
	if req.Notes != nil {
		pkg.Notes = *req.Notes
	}

	if err := s.repo.Update(ctx, pkg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update package")
	}
	if _, err := s.summaries.Recalculate(ctx, pkg.StudentID); err != nil {
		s.logger.Warn("failed to refresh student totals after package update", zap.String("student_id", pkg.StudentID), zap.Error(err))
	}
	return pkg, nil
}

// Delete removes a package. Deletion is refused while consumption records
// still reference it; the history must be kept intact.
func (s *PackageService) Delete(ctx context.Context, id string) error {
	pkg, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	count, err := s.records.CountByPackage(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check consumption records")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrPackageInUse, "package has consumption records and cannot be deleted")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete package")
	}
	if _, err := s.summaries.Recalculate(ctx, pkg.StudentID); err != nil {
		s.logger.Warn("failed to refresh student totals after package delete", zap.String("student_id", pkg.StudentID), zap.Error(err))
	}
	return nil
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse("2006-01-02", raw)
}

// mapLedgerError converts domain ledger errors into the typed API errors.
func mapLedgerError(err error) error {
	var vErr *ledger.ValidationError
	if errors.As(err, &vErr) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, vErr.Error())
	}
	var balErr *ledger.InsufficientBalanceError
	if errors.As(err, &balErr) {
		return appErrors.Wrap(err, appErrors.ErrInsufficientBalance.Code, appErrors.ErrInsufficientBalance.Status, balErr.Error())
	}
	if errors.Is(err, ledger.ErrInvalidQuantity) {
		return appErrors.Clone(appErrors.ErrInvalidQuantity, "")
	}
	if errors.Is(err, ledger.ErrMissingSelection) {
		return appErrors.Clone(appErrors.ErrMissingSelection, "")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "ledger operation failed")
}
