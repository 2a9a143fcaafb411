package models

import "time"

// ExportFormat is the rendering format of an export.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatJSON ExportFormat = "json"
	ExportFormatPDF  ExportFormat = "pdf"
)

// ExportFields selects which field groups are included; the id is always present.
type ExportFields struct {
	PersonalInfo bool `json:"personalInfo"`
	CardInfo     bool `json:"cardInfo"`
	Status       bool `json:"status"`
	Timestamps   bool `json:"timestamps"`
}

// AllExportFields enables every group.
func AllExportFields() ExportFields {
	return ExportFields{PersonalInfo: true, CardInfo: true, Status: true, Timestamps: true}
}

// ExportJobStatus tracks the lifecycle of an async export.
type ExportJobStatus string

const (
	ExportStatusQueued   ExportJobStatus = "QUEUED"
	ExportStatusRunning  ExportJobStatus = "RUNNING"
	ExportStatusFinished ExportJobStatus = "FINISHED"
	ExportStatusFailed   ExportJobStatus = "FAILED"
)

// ExportJob is an export request processed on the worker queue.
type ExportJob struct {
	ID           string          `json:"id"`
	Format       ExportFormat    `json:"format"`
	Fields       ExportFields    `json:"fields"`
	Query        ViewQuery       `json:"query"`
	Status       ExportJobStatus `json:"status"`
	RecordCount  int             `json:"recordCount"`
	RelativePath string          `json:"-"`
	ResultURL    *string         `json:"resultUrl,omitempty"`
	ErrorMessage *string         `json:"error,omitempty"`
	CreatedBy    string          `json:"createdBy"`
	CreatedAt    time.Time       `json:"createdAt"`
	FinishedAt   *time.Time      `json:"finishedAt,omitempty"`
	ExpiresAt    *time.Time      `json:"expiresAt,omitempty"`
}
