package dto

import "github.com/unireg/unireg-api/internal/models"

// ReportRequest is the payload for queuing an asynchronous export.
type ReportRequest struct {
	Type       models.ReportType   `json:"type" validate:"required"`
	Format     models.ReportFormat `json:"format" validate:"required"`
	ModuleCode string              `json:"module_code,omitempty"`
	CourseCode string              `json:"course_code,omitempty"`
	Status     string              `json:"status,omitempty"`
}

// ReportJobResponse acknowledges a queued export job.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse reports job progress and, once finished, the
// signed download URL.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
