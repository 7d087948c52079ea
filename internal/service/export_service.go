package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/unireg/unireg-api/internal/models"
	"github.com/unireg/unireg-api/pkg/export"
	"github.com/unireg/unireg-api/pkg/storage"
)

type exportDataSource interface {
	RegistrationRows(ctx context.Context, params models.ReportJobParams) ([]models.RegistrationDetail, error)
	ModuleRows(ctx context.Context, params models.ReportJobParams) ([]models.ModuleDetail, error)
	StudentRows(ctx context.Context, params models.ReportJobParams) ([]models.StudentDetail, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	source  exportDataSource
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// NewExportService constructs an ExportService.
func NewExportService(source exportDataSource, storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		source:  source,
		storage: storage,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate builds dataset according to job definition and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/reports/download/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	scope := job.Params.ModuleCode
	if scope == "" {
		scope = job.Params.CourseCode
	}
	name := fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), sanitizeFilename(scope), timestamp, job.Params.Format)
	return name
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "all"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ReportTypeRegistrations:
		return s.buildRegistrationDataset(ctx, job.Params)
	case models.ReportTypeModules:
		return s.buildModuleDataset(ctx, job.Params)
	case models.ReportTypeStudents:
		return s.buildStudentDataset(ctx, job.Params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildRegistrationDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	rows, err := s.source.RegistrationRows(ctx, params)
	if err != nil {
		return export.Dataset{}, "", err
	}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		dataRows = append(dataRows, map[string]string{
			"Student Number": row.StudentNumber,
			"Student Name":   row.StudentName,
			"Module Code":    row.ModuleCode,
			"Module Name":    row.ModuleName,
			"Status":         row.Status.Label(),
			"Grade":          deref(row.Grade),
			"Registered At":  row.RegisteredAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Student Number", "Student Name", "Module Code", "Module Name", "Status", "Grade", "Registered At"},
		Rows:    dataRows,
	}
	title := "Registration Report"
	if params.ModuleCode != "" {
		title = fmt.Sprintf("Registration Report %s", params.ModuleCode)
	}
	return dataset, title, nil
}

func (s *ExportService) buildModuleDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	rows, err := s.source.ModuleRows(ctx, params)
	if err != nil {
		return export.Dataset{}, "", err
	}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		available := "No"
		if row.Availability {
			available = "Yes"
		}
		dataRows = append(dataRows, map[string]string{
			"Code":        row.Code,
			"Name":        row.Name,
			"Category":    string(row.Category),
			"Credit":      fmt.Sprintf("%d", row.Credit),
			"Capacity":    fmt.Sprintf("%d", row.Capacity),
			"Registered":  fmt.Sprintf("%d", row.RegisteredCount),
			"Free Slots":  fmt.Sprintf("%d", row.AvailableSlots),
			"Available":   available,
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Code", "Name", "Category", "Credit", "Capacity", "Registered", "Free Slots", "Available"},
		Rows:    dataRows,
	}
	return dataset, "Module Report", nil
}

func (s *ExportService) buildStudentDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	rows, err := s.source.StudentRows(ctx, params)
	if err != nil {
		return export.Dataset{}, "", err
	}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		dataRows = append(dataRows, map[string]string{
			"Student Number": row.StudentNumber,
			"Name":           row.FullName,
			"Email":          row.Email,
			"Course":         deref(row.CourseCode),
			"Active":         fmt.Sprintf("%t", row.Active),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Student Number", "Name", "Email", "Course", "Active"},
		Rows:    dataRows,
	}
	title := "Student Report"
	if params.CourseCode != "" {
		title = fmt.Sprintf("Student Report %s", params.CourseCode)
	}
	return dataset, title, nil
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
