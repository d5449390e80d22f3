package models

import (
	"time"
)

// Audit event types. One constant per state-changing or security-relevant
// operation; free-form strings are not accepted by the recorder.
const (
	AuditEventUserRegistration = "user_registration"
	AuditEventLoginSuccess     = "login_success"
	AuditEventLoginFailed      = "login_failed"
	AuditEventTokenRefresh     = "token_refresh"
	AuditEventLogout           = "logout"
	AuditEventProfileUpdate    = "profile_update"
	AuditEventPasswordChange   = "password_change"
	AuditEventDocumentUpload   = "document_upload"
	AuditEventDocumentReady    = "document_ready"
	AuditEventDocumentUpdate   = "document_update"
	AuditEventDocumentRetire   = "document_retire"
	AuditEventDocumentFailed   = "document_failed"
	AuditEventQueryExecute     = "query_execute"
	AuditEventQueryFailed      = "query_failed"
	AuditEventQueryFeedback    = "query_feedback"
)

// AuditEntry is append-only: rows are inserted once and never touched again.
type AuditEntry struct {
	ID            string         `json:"id" db:"id"`
	EventType     string         `json:"event_type" db:"event_type"`
	Description   string         `json:"event_description" db:"event_description"`
	ResourceType  *string        `json:"resource_type,omitempty" db:"resource_type"`
	ResourceID    *string        `json:"resource_id,omitempty" db:"resource_id"`
	UserID        *string        `json:"user_id,omitempty" db:"user_id"`
	CorrelationID string         `json:"correlation_id" db:"correlation_id"`
	Metadata      map[string]any `json:"metadata,omitempty" db:"-"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

type AuditLogList struct {
	Entries  []*AuditEntry `json:"entries"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// SystemStats is the admin-facing platform overview.
type SystemStats struct {
	TotalUsers     int `json:"total_users"`
	TotalDocuments int `json:"total_documents"`
	TotalQueries   int `json:"total_queries"`
}
