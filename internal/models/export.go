package models

import "time"

// ExportFormat selects the rendered manifest format.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportStatus tracks an export job through its lifecycle.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportJobParams describes what a manifest export covers.
type ExportJobParams struct {
	WeekID   string       `json:"week_id"`
	DriverID *string      `json:"driver_id,omitempty"`
	Format   ExportFormat `json:"format"`
	Archived bool         `json:"archived"`
}

// ExportJob is a persisted async manifest export.
type ExportJob struct {
	ID           string          `db:"id" json:"id"`
	Params       ExportJobParams `db:"-" json:"params"`
	WeekID       string          `db:"week_id" json:"-"`
	DriverID     *string         `db:"driver_id" json:"-"`
	Format       ExportFormat    `db:"format" json:"-"`
	Archived     bool            `db:"archived" json:"-"`
	Status       ExportStatus    `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
}

// SyncParams mirrors the flat DB columns into the Params struct after a scan.
func (j *ExportJob) SyncParams() {
	j.Params = ExportJobParams{
		WeekID:   j.WeekID,
		DriverID: j.DriverID,
		Format:   j.Format,
		Archived: j.Archived,
	}
}
