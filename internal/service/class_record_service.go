package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tutortrack/tutor-admin-api/internal/models"
	appErrors "github.com/tutortrack/tutor-admin-api/pkg/errors"
)

type classRecordRepository interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.ClassRecord, error)
	Create(ctx context.Context, record *models.ClassRecord) error
}

type classRecordStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	UpdateLastClassDate(ctx context.Context, id string, date time.Time) error
}

// CreateClassRecordRequest holds payload for logging a lesson.
type CreateClassRecordRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Date      string `json:"date" validate:"required"`
	Content   string `json:"content" validate:"required"`
}

// ClassRecordService handles lesson logs.
type ClassRecordService struct {
	repo      classRecordRepository
	students  classRecordStudentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassRecordService constructs the class record service.
func NewClassRecordService(repo classRecordRepository, students classRecordStudentRepository, validate *validator.Validate, logger *zap.Logger) *ClassRecordService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassRecordService{repo: repo, students: students, validator: validate, logger: logger}
}

// ListByStudent returns the student's lesson history, most recent first.
func (s *ClassRecordService) ListByStudent(ctx context.Context, studentID string) ([]models.ClassRecord, error) {
	records, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class records")
	}
	return records, nil
}

// Create logs a lesson and advances the student's last class date when the
// new record is the most recent one.
func (s *ClassRecordService) Create(ctx context.Context, req CreateClassRecordRequest) (*models.ClassRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class record payload")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid class date")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	record := &models.ClassRecord{
		StudentID: req.StudentID,
		Date:      date,
		Content:   req.Content,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class record")
	}

	if student.LastClassDate == nil || date.After(*student.LastClassDate) {
		if err := s.students.UpdateLastClassDate(ctx, student.ID, date); err != nil {
			s.logger.Warn("failed to advance last class date", zap.String("student_id", student.ID), zap.Error(err))
		}
	}
	return record, nil
}
