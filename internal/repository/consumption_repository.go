package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutortrack/tutor-admin-api/internal/ledger"
	"github.com/tutortrack/tutor-admin-api/internal/models"
)

// ConsumptionRepository manages the append-only consumption ledger.
type ConsumptionRepository struct {
	db *sqlx.DB
}

// NewConsumptionRepository constructs a ConsumptionRepository.
func NewConsumptionRepository(db *sqlx.DB) *ConsumptionRepository {
	return &ConsumptionRepository{db: db}
}

// ListByStudent returns the student's consumption records, newest first. An
// optional package ID narrows the result to one package's history.
func (r *ConsumptionRepository) ListByStudent(ctx context.Context, studentID, packageID string) ([]models.ConsumptionRecord, error) {
	query := `SELECT id, student_id, package_id, consumption_hours, remaining_hours, used_hours,
        operation_time, operator_name, created_at FROM consumption_records WHERE student_id = $1`
	args := []interface{}{studentID}
	if packageID != "" {
		query += " AND package_id = $2"
		args = append(args, packageID)
	}
	query += " ORDER BY operation_time DESC"

	var records []models.ConsumptionRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list consumption records: %w", err)
	}
	return records, nil
}

// CountByPackage returns how many records reference the given package.
func (r *ConsumptionRepository) CountByPackage(ctx context.Context, packageID string) (int, error) {
	const query = `SELECT COUNT(*) FROM consumption_records WHERE package_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, packageID); err != nil {
		return 0, fmt.Errorf("count consumption records: %w", err)
	}
	return count, nil
}

// Record charges the package and appends the consumption record in one
// transaction. The package row is locked and the balance re-validated against
// the stored state, which is the authority; the in-memory pre-check in the
// service is only for fast feedback. On any error nothing is persisted.
func (r *ConsumptionRepository) Record(ctx context.Context, rec *models.ConsumptionRecord) (*models.Package, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin consumption tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := fmt.Sprintf(`SELECT %s FROM packages WHERE id = $1 FOR UPDATE`, packageColumns)
	var pkg models.Package
	if err := tx.GetContext(ctx, &pkg, query, rec.PackageID); err != nil {
		return nil, err
	}

	charged, err := ledger.ApplyConsumption(pkg, rec.ConsumptionHours)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	charged.UpdatedAt = now
	const updatePkg = `UPDATE packages SET used_hours = $2, remaining_hours = $3, status = $4, updated_at = $5 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updatePkg, charged.ID, charged.UsedHours, charged.RemainingHours, charged.Status, now); err != nil {
		return nil, fmt.Errorf("charge package: %w", err)
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.OperationTime.IsZero() {
		rec.OperationTime = now
	}
	rec.RemainingHours = charged.RemainingHours
	rec.UsedHours = charged.UsedHours
	rec.CreatedAt = now
	const insertRec = `INSERT INTO consumption_records (id, student_id, package_id, consumption_hours,
        remaining_hours, used_hours, operation_time, operator_name, created_at)
        VALUES (:id, :student_id, :package_id, :consumption_hours, :remaining_hours, :used_hours,
        :operation_time, :operator_name, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertRec, rec); err != nil {
		return nil, fmt.Errorf("insert consumption record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit consumption tx: %w", err)
	}
	return &charged, nil
}
