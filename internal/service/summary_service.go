package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutortrack/tutor-admin-api/internal/ledger"
	"github.com/tutortrack/tutor-admin-api/internal/models"
	appErrors "github.com/tutortrack/tutor-admin-api/pkg/errors"
	"github.com/tutortrack/tutor-admin-api/pkg/jobs"
)

type summaryPackageReader interface {
	ListByStudent(ctx context.Context, studentID string, activeOnly bool) ([]models.Package, error)
}

type summaryStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	UpdateHours(ctx context.Context, id string, totalHours, usedHours, remainingHours float64) error
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// StudentSummary is the aggregate view returned for a student's hour totals.
type StudentSummary struct {
	StudentID       string        `json:"student_id"`
	Totals          ledger.Totals `json:"totals"`
	SuggestInactive bool          `json:"suggest_inactive"`
}

// SummaryServiceConfig tunes caching and the recalculation worker pool.
type SummaryServiceConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
	Workers      int
}

// SummaryService aggregates student hour totals from their packages and keeps
// the student's stored (denormalized) totals in sync after mutations.
type SummaryService struct {
	packages summaryPackageReader
	students summaryStudentRepository
	cache    summaryCache
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      SummaryServiceConfig
	queue    *jobs.Queue
}

// NewSummaryService constructs the summary service.
func NewSummaryService(packages summaryPackageReader, students summaryStudentRepository, cache summaryCache, metrics *MetricsService, logger *zap.Logger, cfg SummaryServiceConfig) *SummaryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	s := &SummaryService{
		packages: packages,
		students: students,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
	s.queue = jobs.NewQueue("student-hours", s.handleRecalculateJob, jobs.QueueConfig{
		Workers: cfg.Workers,
		Logger:  logger,
	})
	return s
}

// Start launches the background recalculation workers.
func (s *SummaryService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the background workers.
func (s *SummaryService) Stop() {
	s.queue.Stop()
}

func summaryCacheKey(studentID string) string {
	return fmt.Sprintf("summary:%s", studentID)
}

// Summary returns the student's aggregate totals under the given scope, plus
// the advisory inactive suggestion. ScopeAll results are cached.
func (s *SummaryService) Summary(ctx context.Context, studentID string, scope ledger.AggregateScope) (*StudentSummary, error) {
	if scope == ledger.ScopeAll && s.cacheEnabled() {
		var cached StudentSummary
		if err := s.cache.Get(ctx, summaryCacheKey(studentID), &cached); err == nil {
			s.metrics.RecordCacheLookup(true)
			return &cached, nil
		}
		s.metrics.RecordCacheLookup(false)
	}

	packages, err := s.packages.ListByStudent(ctx, studentID, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load packages")
	}
	s.flagClampedBalances(studentID, packages)

	summary := &StudentSummary{
		StudentID:       studentID,
		Totals:          ledger.Aggregate(packages, scope),
		SuggestInactive: ledger.SuggestInactive(packages),
	}

	if scope == ledger.ScopeAll && s.cacheEnabled() {
		if err := s.cache.Set(ctx, summaryCacheKey(studentID), summary, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache summary", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	return summary, nil
}

// Recalculate re-derives the student's stored hour totals from their packages
// and invalidates the cached summary.
func (s *SummaryService) Recalculate(ctx context.Context, studentID string) (*models.Student, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	packages, err := s.packages.ListByStudent(ctx, studentID, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load packages")
	}
	s.flagClampedBalances(studentID, packages)

	totals := ledger.Aggregate(packages, ledger.ScopeAll)
	if err := s.students.UpdateHours(ctx, studentID, totals.TotalHours, totals.UsedHours, totals.RemainingHours); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store totals")
	}

	if s.cacheEnabled() {
		if err := s.cache.Delete(ctx, summaryCacheKey(studentID)); err != nil {
			s.logger.Warn("failed to invalidate summary cache", zap.String("student_id", studentID), zap.Error(err))
		}
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload student")
	}
	return student, nil
}

// EnqueueRecalculate schedules an asynchronous recalculation of the student's
// stored totals. Falls back to a synchronous run when the queue is not
// running.
func (s *SummaryService) EnqueueRecalculate(studentID string) {
	job := jobs.Job{ID: uuid.NewString(), Type: "recalculate", Payload: studentID}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("recalculate queue unavailable, running inline", zap.String("student_id", studentID), zap.Error(err))
		if _, err := s.Recalculate(context.Background(), studentID); err != nil {
			s.logger.Error("inline recalculation failed", zap.String("student_id", studentID), zap.Error(err))
		}
	}
}

func (s *SummaryService) handleRecalculateJob(ctx context.Context, job jobs.Job) error {
	studentID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("recalculate job payload must be a student id, got %T", job.Payload)
	}
	_, err := s.Recalculate(ctx, studentID)
	return err
}

func (s *SummaryService) cacheEnabled() bool {
	return s.cfg.CacheEnabled && s.cache != nil
}

// flagClampedBalances surfaces stored packages whose used hours exceed their
// totals. The clamp keeps the displayed balance non-negative; the log line
// and counter are the integrity signal.
func (s *SummaryService) flagClampedBalances(studentID string, packages []models.Package) {
	for _, pkg := range packages {
		if _, clamped := ledger.RecalculateRemaining(pkg.TotalHours, pkg.UsedHours); clamped {
			s.metrics.RecordBalanceClamp()
			s.logger.Warn("package balance clamped to zero",
				zap.String("student_id", studentID),
				zap.String("package_id", pkg.ID),
				zap.Float64("total_hours", pkg.TotalHours),
				zap.Float64("used_hours", pkg.UsedHours),
			)
		}
	}
}
