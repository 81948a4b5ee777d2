package models

import "time"

// ExportKind enumerates the printable documents.
type ExportKind string

const (
	ExportDailySheet     ExportKind = "daily_sheet"
	ExportStudentHistory ExportKind = "student_history"
	ExportClassPeriod    ExportKind = "class_period"
	ExportDailyStats     ExportKind = "daily_stats"
)

// ExportFormat enumerates supported file formats.
type ExportFormat string

const (
	ExportFormatPDF  ExportFormat = "pdf"
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatXLSX ExportFormat = "xlsx"
)

// ContentType returns the MIME type served on download.
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportFormatPDF:
		return "application/pdf"
	case ExportFormatCSV:
		return "text/csv; charset=utf-8"
	case ExportFormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// ExportStatus captures background job lifecycle states.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportRequest selects a document and its scope. Which ids are needed
// depends on the kind.
type ExportRequest struct {
	Kind           ExportKind   `json:"kind" validate:"required,oneof=daily_sheet student_history class_period daily_stats"`
	Format         ExportFormat `json:"format" validate:"required,oneof=pdf csv xlsx"`
	Date           string       `json:"date,omitempty" validate:"omitempty,iso_date"`
	ClassID        string       `json:"classId,omitempty"`
	StudentID      string       `json:"studentId,omitempty"`
	From           *string      `json:"from,omitempty" validate:"omitempty,iso_date"`
	To             *string      `json:"to,omitempty" validate:"omitempty,iso_date"`
	OnlyViolations bool         `json:"onlyViolations,omitempty"`
}

// ExportJob is the status of an asynchronous export.
type ExportJob struct {
	ID          string        `json:"id"`
	Request     ExportRequest `json:"request"`
	Status      ExportStatus  `json:"status"`
	Progress    int           `json:"progress"`
	FileName    string        `json:"fileName,omitempty"`
	DownloadURL *string       `json:"downloadUrl,omitempty"`
	Error       *string       `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	FinishedAt  *time.Time    `json:"finishedAt,omitempty"`
	ExpiresAt   *time.Time    `json:"expiresAt,omitempty"`

	// Path is the stored file relative to the export directory.
	Path string `json:"-"`
}
