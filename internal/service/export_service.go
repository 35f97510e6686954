package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tutortrack/tutor-admin-api/internal/models"
	appErrors "github.com/tutortrack/tutor-admin-api/pkg/errors"
	"github.com/tutortrack/tutor-admin-api/pkg/export"
)

type exportConsumptionReader interface {
	ListByStudent(ctx context.Context, studentID, packageID string) ([]models.ConsumptionRecord, error)
}

type exportStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ExportService renders a student's consumption history as CSV or PDF.
type ExportService struct {
	records  exportConsumptionReader
	students exportStudentReader
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
}

// NewExportService constructs the export service.
func NewExportService(records exportConsumptionReader, students exportStudentReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		records:  records,
		students: students,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
	}
}

var consumptionExportHeaders = []string{"Operation Time", "Package", "Hours Consumed", "Hours Remaining", "Operator"}

// ConsumptionHistory renders the student's consumption records in the
// requested format (csv or pdf).
func (s *ExportService) ConsumptionHistory(ctx context.Context, studentID, packageID, format string) (*ExportFile, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	records, err := s.records.ListByStudent(ctx, studentID, packageID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list consumption records")
	}

	dataset := export.Dataset{Headers: consumptionExportHeaders}
	for _, rec := range records {
		operator := rec.OperatorName
		if operator == "" {
			operator = "system"
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Operation Time":  rec.OperationTime.Format("2006-01-02 15:04"),
			"Package":         rec.PackageID,
			"Hours Consumed":  strconv.FormatFloat(rec.ConsumptionHours, 'f', -1, 64),
			"Hours Remaining": strconv.FormatFloat(rec.RemainingHours, 'f', -1, 64),
			"Operator":        operator,
		})
	}

	stamp := time.Now().UTC().Format("20060102")
	switch format {
	case "csv", "":
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportFile{
			Filename:    fmt.Sprintf("consumption-%s-%s.csv", student.ID, stamp),
			ContentType: "text/csv",
			Content:     content,
		}, nil
	case "pdf":
		title := fmt.Sprintf("Consumption history - %s", student.Name)
		content, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportFile{
			Filename:    fmt.Sprintf("consumption-%s-%s.pdf", student.ID, stamp),
			ContentType: "application/pdf",
			Content:     content,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}
