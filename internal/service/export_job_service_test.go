package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/xdmy1/colete/internal/dto"
	"github.com/xdmy1/colete/internal/models"
	"github.com/xdmy1/colete/internal/repository"
	appErrors "github.com/xdmy1/colete/pkg/errors"
	"github.com/xdmy1/colete/pkg/jobs"
)

type exportJobStoreStub struct {
	jobs     map[string]*models.ExportJob
	nextID   int
	statuses []models.ExportStatus
}

func newExportJobStoreStub() *exportJobStoreStub {
	return &exportJobStoreStub{jobs: make(map[string]*models.ExportJob)}
}

func (s *exportJobStoreStub) Create(ctx context.Context, job *models.ExportJob) error {
	s.nextID++
	job.ID = fmt.Sprintf("job-%d", s.nextID)
	copy := *job
	s.jobs[job.ID] = &copy
	return nil
}

func (s *exportJobStoreStub) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *job
	return &copy, nil
}

func (s *exportJobStoreStub) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	job, ok := s.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
		s.statuses = append(s.statuses, *params.Status)
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

func (s *exportJobStoreStub) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	result := []models.ExportJob{}
	for _, job := range s.jobs {
		if job.Status == models.ExportStatusQueued {
			result = append(result, *job)
		}
	}
	return result, nil
}

func (s *exportJobStoreStub) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	return nil, nil
}

type queueStub struct {
	enqueued []jobs.Job
	err      error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, job)
	return nil
}

type generatorStub struct {
	result *ExportResult
	err    error
}

func (g *generatorStub) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

func TestExportJobServiceCreateJob(t *testing.T) {
	repo := newExportJobStoreStub()
	queue := &queueStub{}
	svc := NewExportJobService(repo, queue, nil, nil, ExportJobConfig{})

	resp, err := svc.CreateJob(context.Background(), dto.ExportRequest{
		WeekID: "2026-W07",
		Format: "csv",
	}, "admin-1")
	require.NoError(t, err)
	require.Equal(t, "job-1", resp.JobID)
	require.Equal(t, string(models.ExportStatusQueued), resp.Status)
	require.Len(t, queue.enqueued, 1)
	require.Equal(t, "job-1", queue.enqueued[0].ID)
	require.Equal(t, "admin-1", repo.jobs["job-1"].CreatedBy)
}

func TestExportJobServiceCreateJobValidation(t *testing.T) {
	repo := newExportJobStoreStub()
	svc := NewExportJobService(repo, &queueStub{}, nil, nil, ExportJobConfig{})

	_, err := svc.CreateJob(context.Background(), dto.ExportRequest{WeekID: "week-7", Format: "csv"}, "admin-1")
	require.Error(t, err)
	require.Equal(t, "VALIDATION_ERROR", appErrors.FromError(err).Code)

	_, err = svc.CreateJob(context.Background(), dto.ExportRequest{WeekID: "2026-W07", Format: "xlsx"}, "admin-1")
	require.Error(t, err)
	require.Equal(t, "VALIDATION_ERROR", appErrors.FromError(err).Code)
	require.Empty(t, repo.jobs)
}

func TestExportJobServiceCreateJobEnqueueFailure(t *testing.T) {
	repo := newExportJobStoreStub()
	queue := &queueStub{err: errors.New("queue full")}
	svc := NewExportJobService(repo, queue, nil, nil, ExportJobConfig{})

	_, err := svc.CreateJob(context.Background(), dto.ExportRequest{WeekID: "2026-W07", Format: "pdf"}, "admin-1")
	require.Error(t, err)
	// The persisted job is marked failed, not left dangling in the queue state.
	require.Equal(t, models.ExportStatusFailed, repo.jobs["job-1"].Status)
}

func TestExportJobServiceGetStatus(t *testing.T) {
	repo := newExportJobStoreStub()
	svc := NewExportJobService(repo, &queueStub{}, nil, nil, ExportJobConfig{})

	_, err := svc.CreateJob(context.Background(), dto.ExportRequest{WeekID: "2026-W07", Format: "csv"}, "admin-1")
	require.NoError(t, err)

	url := "/api/v1/exports/download/tok123"
	finished := models.ExportStatusFinished
	progress := 100
	require.NoError(t, repo.Update(context.Background(), "job-1", repository.UpdateExportJobParams{
		Status:    &finished,
		Progress:  &progress,
		ResultURL: &url,
	}))

	status, err := svc.GetStatus(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, string(models.ExportStatusFinished), status.Status)
	require.Equal(t, url, status.DownloadURL)

	_, err = svc.GetStatus(context.Background(), "missing")
	require.Error(t, err)
	require.Equal(t, "NOT_FOUND", appErrors.FromError(err).Code)
}

func TestExportWorkerHandleSuccess(t *testing.T) {
	repo := newExportJobStoreStub()
	require.NoError(t, repo.Create(context.Background(), &models.ExportJob{
		Params: models.ExportJobParams{WeekID: "2026-W07", Format: models.ExportFormatCSV},
		Status: models.ExportStatusQueued,
	}))
	generator := &generatorStub{result: &ExportResult{URL: "/api/v1/exports/download/tok123"}}
	metrics := NewMetricsService()
	worker := NewExportWorker(repo, generator, 3, nil).WithMetrics(metrics)

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 1}))
	require.Equal(t, []models.ExportStatus{models.ExportStatusProcessing, models.ExportStatusFinished}, repo.statuses)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.exportJobs.WithLabelValues(string(models.ExportStatusFinished))))

	job := repo.jobs["job-1"]
	require.Equal(t, 100, job.Progress)
	require.NotNil(t, job.ResultURL)
	require.Equal(t, "/api/v1/exports/download/tok123", *job.ResultURL)
	require.NotNil(t, job.FinishedAt)
}

func TestExportWorkerHandleRequeuesBeforeGivingUp(t *testing.T) {
	repo := newExportJobStoreStub()
	require.NoError(t, repo.Create(context.Background(), &models.ExportJob{
		Params: models.ExportJobParams{WeekID: "2026-W07", Format: models.ExportFormatCSV},
		Status: models.ExportStatusQueued,
	}))
	generator := &generatorStub{err: errors.New("render failed")}
	metrics := NewMetricsService()
	worker := NewExportWorker(repo, generator, 2, nil).WithMetrics(metrics)

	// Attempts below the retry ceiling put the job back in the queue.
	require.Error(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 1}))
	require.Equal(t, models.ExportStatusQueued, repo.jobs["job-1"].Status)
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.exportJobs.WithLabelValues(string(models.ExportStatusFailed))))

	// The final attempt marks it failed with the error preserved.
	require.Error(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 2}))
	job := repo.jobs["job-1"]
	require.Equal(t, models.ExportStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	require.Equal(t, "render failed", *job.ErrorMessage)
	require.NotNil(t, job.FinishedAt)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.exportJobs.WithLabelValues(string(models.ExportStatusFailed))))
}
