package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unireg/unireg-api/internal/models"
	"github.com/unireg/unireg-api/pkg/storage"
)

type fakeExportSource struct {
	registrations []models.RegistrationDetail
	modules       []models.ModuleDetail
	students      []models.StudentDetail
	err           error
}

func (f *fakeExportSource) RegistrationRows(ctx context.Context, params models.ReportJobParams) ([]models.RegistrationDetail, error) {
	return f.registrations, f.err
}

func (f *fakeExportSource) ModuleRows(ctx context.Context, params models.ReportJobParams) ([]models.ModuleDetail, error) {
	return f.modules, f.err
}

func (f *fakeExportSource) StudentRows(ctx context.Context, params models.ReportJobParams) ([]models.StudentDetail, error) {
	return f.students, f.err
}

func newTestExportService(t *testing.T, source *fakeExportSource) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return NewExportService(source, store, signer, ExportConfig{APIPrefix: "/api/v1"}, zap.NewNop(), nil, nil)
}

func registrationExportJob(format models.ReportFormat) *models.ReportJob {
	return &models.ReportJob{
		ID:   "job-1",
		Type: models.ReportTypeRegistrations,
		Params: models.ReportJobParams{
			ModuleCode: "DB101",
			Format:     format,
		},
	}
}

func TestExportGenerateRegistrationsCSV(t *testing.T) {
	grade := "A"
	source := &fakeExportSource{registrations: []models.RegistrationDetail{
		{
			Registration: models.Registration{
				Status:       models.RegistrationApproved,
				Grade:        &grade,
				RegisteredAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			},
			StudentNumber: "STU00042",
			StudentName:   "Dana Osei",
			ModuleCode:    "DB101",
			ModuleName:    "Databases",
		},
	}}
	svc := newTestExportService(t, source)

	result, err := svc.Generate(context.Background(), registrationExportJob(models.ReportFormatCSV))
	require.NoError(t, err)
	assert.Equal(t, models.ReportFormatCSV, result.Format)
	assert.Contains(t, result.URL, "/api/v1/reports/download/")
	assert.True(t, result.ExpiresAt.After(time.Now()))

	file, err := svc.Open(result.RelativePath)
	require.NoError(t, err)
	defer file.Close()
	content, err := io.ReadAll(file)
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, "STU00042")
	assert.Contains(t, text, "Approved")
	assert.True(t, strings.HasPrefix(result.RelativePath, "registrations_DB101_"))
}

func TestExportGenerateModulesPDF(t *testing.T) {
	source := &fakeExportSource{modules: []models.ModuleDetail{{
		Module: models.Module{
			Code:     "DB101",
			Name:     "Databases",
			Category: models.ModuleCategoryComputerScience,
			Credit:   6,
			Capacity: 30,
		},
		RegisteredCount: 12,
		AvailableSlots:  18,
	}}}
	svc := newTestExportService(t, source)

	job := &models.ReportJob{
		ID:     "job-2",
		Type:   models.ReportTypeModules,
		Params: models.ReportJobParams{Format: models.ReportFormatPDF},
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, models.ReportFormatPDF, result.Format)

	file, err := svc.Open(result.RelativePath)
	require.NoError(t, err)
	defer file.Close()
	header := make([]byte, 4)
	_, err = file.Read(header)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(header))
}

func TestExportGenerateUnsupportedFormat(t *testing.T) {
	svc := newTestExportService(t, &fakeExportSource{})
	_, err := svc.Generate(context.Background(), registrationExportJob(models.ReportFormat("xlsx")))
	require.Error(t, err)
}

func TestExportDownloadTokenRoundTrip(t *testing.T) {
	source := &fakeExportSource{students: []models.StudentDetail{{
		Student:  models.Student{StudentNumber: "STU00001", Active: true},
		FullName: "Ana Silva",
		Email:    "ana@example.com",
	}}}
	svc := newTestExportService(t, source)

	job := &models.ReportJob{
		ID:     "job-3",
		Type:   models.ReportTypeStudents,
		Params: models.ReportJobParams{Format: models.ReportFormatCSV},
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)

	jobID, relPath, expiresAt, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	assert.Equal(t, "job-3", jobID)
	assert.Equal(t, result.RelativePath, relPath)
	assert.WithinDuration(t, result.ExpiresAt, expiresAt, time.Second)

	_, _, _, err = svc.ParseToken(result.Token+"tampered", false)
	require.Error(t, err)
}
