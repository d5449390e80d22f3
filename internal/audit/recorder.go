// Package audit writes the append-only trail of state-changing and
// security-relevant events.
package audit

import (
	"context"
	"time"

	"knowledgebase/internal/correlation"
	"knowledgebase/internal/models"
	"knowledgebase/internal/repository"
	"knowledgebase/internal/utils"
)

// Recorder persists audit entries. Record never returns an error: an audit
// write failure must not unwind the operation that triggered it, so failures
// are logged and swallowed. The insert is synchronous — by the time the
// triggering operation reports success, its entry is durable.
type Recorder struct {
	repo   repository.AuditRepository
	logger *utils.Logger
}

func NewRecorder(repo repository.AuditRepository, logger *utils.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: logger.Component("audit"),
	}
}

// Entry is the caller-facing shape; id, timestamp and correlation id are
// filled in by the recorder.
type Entry struct {
	EventType    string
	Description  string
	ResourceType string
	ResourceID   string
	UserID       string
	Metadata     map[string]any
}

func (r *Recorder) Record(ctx context.Context, e Entry) {
	entry := &models.AuditEntry{
		ID:            utils.GenerateID(),
		EventType:     e.EventType,
		Description:   e.Description,
		CorrelationID: correlation.FromContext(ctx),
		Metadata:      e.Metadata,
		CreatedAt:     time.Now().UTC(),
	}
	if e.ResourceType != "" {
		entry.ResourceType = &e.ResourceType
	}
	if e.ResourceID != "" {
		entry.ResourceID = &e.ResourceID
	}
	if e.UserID != "" {
		entry.UserID = &e.UserID
	}

	if err := r.repo.Insert(ctx, entry); err != nil {
		r.logger.Error("failed to write audit entry",
			"error", err,
			"event_type", e.EventType,
			"resource_id", e.ResourceID,
			"correlation_id", entry.CorrelationID)
	}
}
