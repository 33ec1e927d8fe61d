package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/xdmy1/colete/internal/models"
)

const exportJobColumns = `id, week_id, driver_id, format, archived, status, progress,
       result_url, error_message, created_by, created_at, finished_at`

// ExportJobRepository persists async manifest export jobs.
type ExportJobRepository struct {
	db *sqlx.DB
}

// NewExportJobRepository constructs the repository.
func NewExportJobRepository(db *sqlx.DB) *ExportJobRepository {
	return &ExportJobRepository{db: db}
}

// Create inserts a new export job.
func (r *ExportJobRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}
	job.WeekID = job.Params.WeekID
	job.DriverID = job.Params.DriverID
	job.Format = job.Params.Format
	job.Archived = job.Params.Archived
	const query = `INSERT INTO export_jobs
	(id, week_id, driver_id, format, archived, status, progress, result_url, error_message, created_by, created_at, finished_at)
	VALUES (:id, :week_id, :driver_id, :format, :archived, :status, :progress, :result_url, :error_message, :created_by, :created_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create export job: %w", err)
	}
	return nil
}

// GetByID fetches one export job.
func (r *ExportJobRepository) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM export_jobs WHERE id = $1`, exportJobColumns)
	var job models.ExportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	job.SyncParams()
	return &job, nil
}

// UpdateExportJobParams groups the mutable job columns.
type UpdateExportJobParams struct {
	Status       *models.ExportStatus
	Progress     *int
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update applies partial changes to a job.
func (r *ExportJobRepository) Update(ctx context.Context, id string, params UpdateExportJobParams) error {
	setParts := make([]string, 0, 5)
	namedArgs := map[string]interface{}{"id": id}
	if params.Status != nil {
		setParts = append(setParts, "status = :status")
		namedArgs["status"] = *params.Status
	}
	if params.Progress != nil {
		setParts = append(setParts, "progress = :progress")
		namedArgs["progress"] = *params.Progress
	}
	if params.ResultURL != nil {
		setParts = append(setParts, "result_url = :result_url")
		namedArgs["result_url"] = *params.ResultURL
	}
	if params.ErrorMessage != nil {
		setParts = append(setParts, "error_message = :error_message")
		namedArgs["error_message"] = *params.ErrorMessage
	}
	if params.FinishedAt != nil {
		setParts = append(setParts, "finished_at = :finished_at")
		namedArgs["finished_at"] = *params.FinishedAt
	}
	if len(setParts) == 0 {
		return nil
	}
	query := fmt.Sprintf("UPDATE export_jobs SET %s WHERE id = :id", strings.Join(setParts, ", "))
	res, err := r.db.NamedExecContext(ctx, query, namedArgs)
	if err != nil {
		return fmt.Errorf("update export job: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check export job rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListQueued returns jobs waiting for a worker, oldest first.
func (r *ExportJobRepository) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM export_jobs WHERE status = $1 ORDER BY created_at ASC LIMIT %d`,
		exportJobColumns, limit)
	var jobsList []models.ExportJob
	if err := r.db.SelectContext(ctx, &jobsList, query, models.ExportStatusQueued); err != nil {
		return nil, fmt.Errorf("list queued export jobs: %w", err)
	}
	for i := range jobsList {
		jobsList[i].SyncParams()
	}
	return jobsList, nil
}

// ListFinishedBefore returns terminal jobs finished before the cutoff, used by
// the cleanup loop.
func (r *ExportJobRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM export_jobs
	WHERE status IN ($1, $2) AND finished_at IS NOT NULL AND finished_at < $3
	ORDER BY finished_at ASC LIMIT %d`, exportJobColumns, limit)
	var jobsList []models.ExportJob
	if err := r.db.SelectContext(ctx, &jobsList, query, models.ExportStatusFinished, models.ExportStatusFailed, cutoff); err != nil {
		return nil, fmt.Errorf("list finished export jobs: %w", err)
	}
	for i := range jobsList {
		jobsList[i].SyncParams()
	}
	return jobsList, nil
}
