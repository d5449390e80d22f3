package models

import (
	"time"
)

// Document processing states. Pending is the only initial state; completed
// and failed are terminal. A failed document is never reopened — resubmission
// creates a new Document.
const (
	DocumentStatusPending    = "pending"
	DocumentStatusProcessing = "processing"
	DocumentStatusCompleted  = "completed"
	DocumentStatusFailed     = "failed"
)

type Document struct {
	ID               string     `json:"id" db:"id"`
	OwnerID          string     `json:"owner_id" db:"owner_id"`
	Filename         string     `json:"filename" db:"filename"`
	OriginalFilename string     `json:"original_filename" db:"original_filename"`
	StorageKey       string     `json:"-" db:"storage_key"`
	FileSize         int64      `json:"file_size" db:"file_size"`
	FileType         string     `json:"file_type" db:"file_type"`
	MimeType         string     `json:"mime_type" db:"mime_type"`
	Title            string     `json:"title" db:"title"`
	Description      *string    `json:"description,omitempty" db:"description"`
	ContentPreview   *string    `json:"content_preview,omitempty" db:"content_preview"`
	NotebookDocID    *string    `json:"notebook_document_id,omitempty" db:"notebook_document_id"`
	Status           string     `json:"processing_status" db:"processing_status"`
	ProcessingError  *string    `json:"processing_error,omitempty" db:"processing_error"`
	QueryCount       int        `json:"query_count" db:"query_count"`
	LastQueriedAt    *time.Time `json:"last_queried_at,omitempty" db:"last_queried_at"`
	IsActive         bool       `json:"is_active" db:"is_active"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the document's lifecycle has ended.
func (d *Document) IsTerminal() bool {
	return d.Status == DocumentStatusCompleted || d.Status == DocumentStatusFailed
}

// IngestOutcome is what the async ingestion step reports back to the
// lifecycle manager. Exactly one of NotebookDocID or Err is meaningful.
type IngestOutcome struct {
	NotebookDocID  string
	ContentPreview string
	Err            error
}

type UploadRequest struct {
	File        []byte
	Filename    string
	ContentType string
	Title       string
	Description string
}

type UploadResponse struct {
	ID               string    `json:"id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	FileSize         int64     `json:"file_size"`
	Status           string    `json:"processing_status"`
	CreatedAt        time.Time `json:"created_at"`
	Message          string    `json:"message"`
}

type DocumentUpdateRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

type DocumentStatusResponse struct {
	ID              string  `json:"id"`
	Filename        string  `json:"filename"`
	Status          string  `json:"processing_status"`
	ProcessingError *string `json:"processing_error,omitempty"`
	NotebookDocID   *string `json:"notebook_document_id,omitempty"`
}

type DocumentList struct {
	Documents []*Document `json:"documents"`
	Total     int         `json:"total"`
	Page      int         `json:"page"`
	PageSize  int         `json:"page_size"`
}

type DocumentStats struct {
	TotalDocuments int            `json:"total_documents"`
	TotalSize      int64          `json:"total_size"`
	ByFileType     map[string]int `json:"by_file_type"`
	ByStatus       map[string]int `json:"by_status"`
	RecentUploads  []*Document    `json:"recent_uploads"`
}
