package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	"knowledgebase/internal/models"
)

// AuditFilter narrows audit reads. Empty fields match everything.
type AuditFilter struct {
	CorrelationID string
	UserID        string
	EventType     string
}

// AuditRepository is append-only: entries are inserted once and read back for
// the admin trail. There are deliberately no update or delete statements for
// audit_logs anywhere in the codebase.
type AuditRepository interface {
	Insert(ctx context.Context, entry *models.AuditEntry) error
	List(ctx context.Context, filter AuditFilter, limit, offset int) ([]*models.AuditEntry, error)
	Count(ctx context.Context, filter AuditFilter) (int, error)
}

type auditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) AuditRepository {
	return &auditRepository{db: db}
}

// auditRow mirrors models.AuditEntry with the metadata column as raw text.
type auditRow struct {
	models.AuditEntry
	MetadataJSON sql.NullString `db:"metadata"`
}

func (row *auditRow) toModel() (*models.AuditEntry, error) {
	entry := row.AuditEntry
	if row.MetadataJSON.Valid && row.MetadataJSON.String != "" {
		if err := json.Unmarshal([]byte(row.MetadataJSON.String), &entry.Metadata); err != nil {
			return nil, err
		}
	}
	return &entry, nil
}

func (r *auditRepository) Insert(ctx context.Context, entry *models.AuditEntry) error {
	var metadataJSON *string
	if entry.Metadata != nil {
		data, err := json.Marshal(entry.Metadata)
		if err != nil {
			return err
		}
		s := string(data)
		metadataJSON = &s
	}

	query := `
		INSERT INTO audit_logs (id, event_type, event_description, resource_type,
		                        resource_id, user_id, correlation_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.EventType,
		entry.Description,
		entry.ResourceType,
		entry.ResourceID,
		entry.UserID,
		entry.CorrelationID,
		metadataJSON,
		entry.CreatedAt,
	)

	return err
}

const auditFilterClause = `
	($1 = '' OR correlation_id = $1)
	AND ($2 = '' OR user_id = $2)
	AND ($3 = '' OR event_type = $3)
`

func (r *auditRepository) List(ctx context.Context, filter AuditFilter, limit, offset int) ([]*models.AuditEntry, error) {
	rows := []auditRow{}

	query := `SELECT id, event_type, event_description, resource_type, resource_id,
			user_id, correlation_id, metadata, created_at
		FROM audit_logs
		WHERE ` + auditFilterClause + `
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`

	err := r.db.SelectContext(ctx, &rows, query,
		filter.CorrelationID, filter.UserID, filter.EventType, limit, offset)
	if err != nil {
		return nil, err
	}

	entries := make([]*models.AuditEntry, 0, len(rows))
	for i := range rows {
		entry, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *auditRepository) Count(ctx context.Context, filter AuditFilter) (int, error) {
	var count int

	query := `SELECT COUNT(*) FROM audit_logs WHERE ` + auditFilterClause

	err := r.db.GetContext(ctx, &count, query,
		filter.CorrelationID, filter.UserID, filter.EventType)
	return count, err
}
