package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unireg/unireg-api/internal/dto"
	"github.com/unireg/unireg-api/internal/models"
	"github.com/unireg/unireg-api/internal/repository"
	appErrors "github.com/unireg/unireg-api/pkg/errors"
	"github.com/unireg/unireg-api/pkg/jobs"
)

type fakeReportStore struct {
	mu      sync.Mutex
	jobs    map[string]*models.ReportJob
	queued  []models.ReportJob
	saveErr error
}

func newFakeReportStore() *fakeReportStore {
	return &fakeReportStore{jobs: make(map[string]*models.ReportJob)}
}

func (f *fakeReportStore) Create(ctx context.Context, job *models.ReportJob) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	copy := *job
	f.jobs[job.ID] = &copy
	return nil
}

func (f *fakeReportStore) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *job
	return &copy, nil
}

func (f *fakeReportStore) Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (f *fakeReportStore) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	return f.queued, nil
}

func (f *fakeReportStore) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	return nil, nil
}

type fakeDispatcher struct {
	enqueued []jobs.Job
	err      error
}

func (f *fakeDispatcher) Enqueue(job jobs.Job) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, job)
	return nil
}

type fakeGenerator struct {
	result   *ExportResult
	err      error
	failures int
	calls    int
}

func (f *fakeGenerator) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("render failed")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func validReportRequest() dto.ReportRequest {
	return dto.ReportRequest{
		Type:   models.ReportTypeRegistrations,
		Format: models.ReportFormatCSV,
	}
}

func TestReportCreateJobQueuesWork(t *testing.T) {
	store := newFakeReportStore()
	queue := &fakeDispatcher{}
	svc := NewReportService(store, queue, nil, zap.NewNop(), ReportServiceConfig{})

	resp, err := svc.CreateJob(context.Background(), validReportRequest(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusQueued, resp.Status)
	assert.Equal(t, 0, resp.Progress)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, resp.ID, queue.enqueued[0].ID)

	stored, err := store.GetByID(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.CreatedBy)
}

func TestReportCreateJobRejectsBadRequests(t *testing.T) {
	svc := NewReportService(newFakeReportStore(), &fakeDispatcher{}, nil, zap.NewNop(), ReportServiceConfig{})

	cases := []struct {
		name string
		req  dto.ReportRequest
	}{
		{"unknown type", dto.ReportRequest{Type: "grades", Format: models.ReportFormatCSV}},
		{"unknown format", dto.ReportRequest{Type: models.ReportTypeModules, Format: "xlsx"}},
		{"unknown status filter", dto.ReportRequest{Type: models.ReportTypeRegistrations, Format: models.ReportFormatCSV, Status: "X"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateJob(context.Background(), tc.req, "user-1")
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestReportCreateJobEnqueueFailureMarksJobFailed(t *testing.T) {
	store := newFakeReportStore()
	queue := &fakeDispatcher{err: errors.New("queue closed")}
	svc := NewReportService(store, queue, nil, zap.NewNop(), ReportServiceConfig{})

	_, err := svc.CreateJob(context.Background(), validReportRequest(), "user-1")
	require.Error(t, err)

	for _, job := range store.jobs {
		assert.Equal(t, models.ReportStatusFailed, job.Status)
		require.NotNil(t, job.ErrorMessage)
	}
}

func TestReportGetStatusOwnership(t *testing.T) {
	store := newFakeReportStore()
	job := &models.ReportJob{ID: "job-1", Status: models.ReportStatusProcessing, Progress: 40, CreatedBy: "owner"}
	require.NoError(t, store.Create(context.Background(), job))
	svc := NewReportService(store, &fakeDispatcher{}, nil, zap.NewNop(), ReportServiceConfig{})

	resp, err := svc.GetStatus(context.Background(), "job-1", "owner", models.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, 40, resp.Progress)

	_, err = svc.GetStatus(context.Background(), "job-1", "other", models.RoleStudent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.GetStatus(context.Background(), "job-1", "other", models.RoleAdmin)
	require.NoError(t, err)

	_, err = svc.GetStatus(context.Background(), "missing", "owner", models.RoleAdmin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestReportRecoverPendingJobs(t *testing.T) {
	store := newFakeReportStore()
	store.queued = []models.ReportJob{
		{ID: "job-1", Type: models.ReportTypeModules},
		{ID: "job-2", Type: models.ReportTypeStudents},
	}
	queue := &fakeDispatcher{}
	svc := NewReportService(store, queue, nil, zap.NewNop(), ReportServiceConfig{})

	svc.RecoverPendingJobs(context.Background())
	assert.Len(t, queue.enqueued, 2)
}

func TestReportWorkerFinishesJob(t *testing.T) {
	store := newFakeReportStore()
	job := &models.ReportJob{
		ID:     "job-1",
		Type:   models.ReportTypeRegistrations,
		Status: models.ReportStatusQueued,
		Params: models.ReportJobParams{Format: models.ReportFormatCSV},
	}
	require.NoError(t, store.Create(context.Background(), job))
	generator := &fakeGenerator{result: &ExportResult{URL: "/api/v1/reports/download/token"}}
	worker := NewReportWorker(store, generator, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 1})
	require.NoError(t, err)

	stored, err := store.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFinished, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	require.NotNil(t, stored.ResultURL)
	assert.Equal(t, "/api/v1/reports/download/token", *stored.ResultURL)
	require.NotNil(t, stored.FinishedAt)
}

func TestReportWorkerRequeuesOnTransientFailure(t *testing.T) {
	store := newFakeReportStore()
	job := &models.ReportJob{ID: "job-1", Type: models.ReportTypeRegistrations, Status: models.ReportStatusQueued}
	require.NoError(t, store.Create(context.Background(), job))
	generator := &fakeGenerator{failures: 1}
	worker := NewReportWorker(store, generator, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 1})
	require.Error(t, err)

	stored, err := store.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusQueued, stored.Status)
	assert.Equal(t, 0, stored.Progress)
}

func TestReportWorkerFailsAfterMaxRetries(t *testing.T) {
	store := newFakeReportStore()
	job := &models.ReportJob{ID: "job-1", Type: models.ReportTypeRegistrations, Status: models.ReportStatusQueued}
	require.NoError(t, store.Create(context.Background(), job))
	generator := &fakeGenerator{err: fmt.Errorf("render failed")}
	worker := NewReportWorker(store, generator, 2, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 2})
	require.Error(t, err)

	stored, err := store.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "render failed", *stored.ErrorMessage)
}
