package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutortrack/tutor-admin-api/internal/models"
)

// ClassRecordRepository manages persisted lesson logs.
type ClassRecordRepository struct {
	db *sqlx.DB
}

// NewClassRecordRepository constructs a ClassRecordRepository.
func NewClassRecordRepository(db *sqlx.DB) *ClassRecordRepository {
	return &ClassRecordRepository{db: db}
}

// ListByStudent returns the student's class records, most recent date first.
func (r *ClassRecordRepository) ListByStudent(ctx context.Context, studentID string) ([]models.ClassRecord, error) {
	const query = `SELECT id, student_id, date, content, created_at, updated_at
        FROM class_records WHERE student_id = $1 ORDER BY date DESC, created_at DESC`
	var records []models.ClassRecord
	if err := r.db.SelectContext(ctx, &records, query, studentID); err != nil {
		return nil, fmt.Errorf("list class records: %w", err)
	}
	return records, nil
}

// Create inserts a new class record.
func (r *ClassRecordRepository) Create(ctx context.Context, record *models.ClassRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO class_records (id, student_id, date, content, created_at, updated_at)
        VALUES (:id, :student_id, :date, :content, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create class record: %w", err)
	}
	return nil
}
