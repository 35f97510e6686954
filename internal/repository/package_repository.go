package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutortrack/tutor-admin-api/internal/models"
)

const packageColumns = `id, student_id, name, total_hours, used_hours, remaining_hours, status,
        purchase_date, expire_date, notes, created_at, updated_at`

// PackageRepository manages persistence for course-hour packages.
type PackageRepository struct {
	db *sqlx.DB
}

// NewPackageRepository constructs a PackageRepository.
func NewPackageRepository(db *sqlx.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

// ListByStudent returns the student's packages, most recent purchase first.
// The ordering is the contract consumers rely on for default selection.
func (r *PackageRepository) ListByStudent(ctx context.Context, studentID string, activeOnly bool) ([]models.Package, error) {
	query := fmt.Sprintf(`SELECT %s FROM packages WHERE student_id = $1`, packageColumns)
	args := []interface{}{studentID}
	if activeOnly {
		query += " AND status = $2"
		args = append(args, models.PackageStatusActive)
	}
	query += " ORDER BY purchase_date DESC, created_at DESC"

	var packages []models.Package
	if err := r.db.SelectContext(ctx, &packages, query, args...); err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	return packages, nil
}

// FindByID fetches a package by ID.
func (r *PackageRepository) FindByID(ctx context.Context, id string) (*models.Package, error) {
	query := fmt.Sprintf(`SELECT %s FROM packages WHERE id = $1`, packageColumns)
	var pkg models.Package
	if err := r.db.GetContext(ctx, &pkg, query, id); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// Create inserts a new package.
func (r *PackageRepository) Create(ctx context.Context, pkg *models.Package) error {
	if pkg.ID == "" {
		pkg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if pkg.CreatedAt.IsZero() {
		pkg.CreatedAt = now
	}
	if pkg.PurchaseDate.IsZero() {
		pkg.PurchaseDate = now
	}
	pkg.UpdatedAt = now
	const query = `INSERT INTO packages (id, student_id, name, total_hours, used_hours, remaining_hours, status,
        purchase_date, expire_date, notes, created_at, updated_at)
        VALUES (:id, :student_id, :name, :total_hours, :used_hours, :remaining_hours, :status,
        :purchase_date, :expire_date, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, pkg); err != nil {
		return fmt.Errorf("create package: %w", err)
	}
	return nil
}

// Update overwrites the package's editable fields and recomputed balances.
func (r *PackageRepository) Update(ctx context.Context, pkg *models.Package) error {
	pkg.UpdatedAt = time.Now().UTC()
	const query = `UPDATE packages SET name = :name, total_hours = :total_hours, used_hours = :used_hours,
        remaining_hours = :remaining_hours, status = :status, purchase_date = :purchase_date,
        expire_date = :expire_date, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, pkg); err != nil {
		return fmt.Errorf("update package: %w", err)
	}
	return nil
}

// Delete removes a package. Consumption records referencing it cascade at the
// database level; callers gate deletion on the referential rules first.
func (r *PackageRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM packages WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete package: %w", err)
	}
	return nil
}
