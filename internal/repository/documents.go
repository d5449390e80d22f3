package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"knowledgebase/internal/models"
)

type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	GetByNotebookDocID(ctx context.Context, ownerID, notebookDocID string) (*models.Document, error)
	List(ctx context.Context, ownerID, status string, limit, offset int) ([]*models.Document, error)
	Count(ctx context.Context, ownerID, status string) (int, error)
	CountAll(ctx context.Context) (int, error)
	ListAll(ctx context.Context, ownerID string) ([]*models.Document, error)
	CompletedNotebookRefs(ctx context.Context, ownerID string) ([]string, error)
	MarkProcessing(ctx context.Context, id string, at time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id, notebookDocID, contentPreview string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, processingError string, at time.Time) (bool, error)
	IncrementQueryCount(ctx context.Context, id string, at time.Time) (bool, error)
	UpdateInfo(ctx context.Context, id string, title, description *string, at time.Time) error
	Retire(ctx context.Context, id string, at time.Time) error
}

type documentRepository struct {
	db *sqlx.DB
}

func NewDocumentRepository(db *sqlx.DB) DocumentRepository {
	return &documentRepository{db: db}
}

const documentColumns = `
	id, owner_id, filename, original_filename, storage_key, file_size, file_type,
	mime_type, title, description, content_preview, notebook_document_id,
	processing_status, processing_error, query_count, last_queried_at, is_active,
	created_at, updated_at
`

func (r *documentRepository) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES (:id, :owner_id, :filename, :original_filename, :storage_key, :file_size,
		        :file_type, :mime_type, :title, :description, :content_preview,
		        :notebook_document_id, :processing_status, :processing_error,
		        :query_count, :last_queried_at, :is_active, :created_at, :updated_at)
	`

	_, err := r.db.NamedExecContext(ctx, query, doc)
	return err
}

func (r *documentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document

	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	err := r.db.GetContext(ctx, &doc, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &doc, nil
}

func (r *documentRepository) GetByNotebookDocID(ctx context.Context, ownerID, notebookDocID string) (*models.Document, error) {
	var doc models.Document

	query := `SELECT ` + documentColumns + ` FROM documents WHERE owner_id = $1 AND notebook_document_id = $2`

	err := r.db.GetContext(ctx, &doc, query, ownerID, notebookDocID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &doc, nil
}

func (r *documentRepository) List(ctx context.Context, ownerID, status string, limit, offset int) ([]*models.Document, error) {
	docs := []*models.Document{}

	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE owner_id = $1 AND is_active = 1
		  AND ($2 = '' OR processing_status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	if err := r.db.SelectContext(ctx, &docs, query, ownerID, status, limit, offset); err != nil {
		return nil, err
	}

	return docs, nil
}

func (r *documentRepository) Count(ctx context.Context, ownerID, status string) (int, error) {
	var total int

	query := `SELECT COUNT(*) FROM documents
		WHERE owner_id = $1 AND is_active = 1
		  AND ($2 = '' OR processing_status = $2)`

	if err := r.db.GetContext(ctx, &total, query, ownerID, status); err != nil {
		return 0, err
	}

	return total, nil
}

func (r *documentRepository) CountAll(ctx context.Context) (int, error) {
	var total int

	query := `SELECT COUNT(*) FROM documents WHERE is_active = 1`

	err := r.db.GetContext(ctx, &total, query)
	return total, err
}

func (r *documentRepository) ListAll(ctx context.Context, ownerID string) ([]*models.Document, error) {
	docs := []*models.Document{}

	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE owner_id = $1 AND is_active = 1
		ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &docs, query, ownerID); err != nil {
		return nil, err
	}

	return docs, nil
}

func (r *documentRepository) CompletedNotebookRefs(ctx context.Context, ownerID string) ([]string, error) {
	refs := []string{}

	query := `SELECT notebook_document_id FROM documents
		WHERE owner_id = $1 AND is_active = 1
		  AND processing_status = 'completed' AND notebook_document_id IS NOT NULL`

	if err := r.db.SelectContext(ctx, &refs, query, ownerID); err != nil {
		return nil, err
	}

	return refs, nil
}

// MarkProcessing, MarkCompleted and MarkFailed guard the transition in SQL so
// that the first writer wins and a replay from a terminal state touches
// nothing. The boolean reports whether the transition was applied.

func (r *documentRepository) MarkProcessing(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `UPDATE documents
		SET processing_status = 'processing', updated_at = $2
		WHERE id = $1 AND processing_status = 'pending'`

	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, err
	}

	return rowsAffected(res)
}

func (r *documentRepository) MarkCompleted(ctx context.Context, id, notebookDocID, contentPreview string, at time.Time) (bool, error) {
	query := `UPDATE documents
		SET processing_status = 'completed', notebook_document_id = $2,
		    content_preview = $3, processing_error = NULL, updated_at = $4
		WHERE id = $1 AND processing_status IN ('pending', 'processing')`

	res, err := r.db.ExecContext(ctx, query, id, notebookDocID, contentPreview, at)
	if err != nil {
		return false, err
	}

	return rowsAffected(res)
}

func (r *documentRepository) MarkFailed(ctx context.Context, id, processingError string, at time.Time) (bool, error) {
	query := `UPDATE documents
		SET processing_status = 'failed', processing_error = $2,
		    notebook_document_id = NULL, updated_at = $3
		WHERE id = $1 AND processing_status IN ('pending', 'processing')`

	res, err := r.db.ExecContext(ctx, query, id, processingError, at)
	if err != nil {
		return false, err
	}

	return rowsAffected(res)
}

func (r *documentRepository) IncrementQueryCount(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `UPDATE documents
		SET query_count = query_count + 1, last_queried_at = $2, updated_at = $2
		WHERE id = $1 AND processing_status = 'completed'`

	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, err
	}

	return rowsAffected(res)
}

func (r *documentRepository) UpdateInfo(ctx context.Context, id string, title, description *string, at time.Time) error {
	query := `UPDATE documents
		SET title = COALESCE($2, title),
		    description = COALESCE($3, description),
		    updated_at = $4
		WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id, title, description, at)
	return err
}

func (r *documentRepository) Retire(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE documents SET is_active = 0, updated_at = $2 WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id, at)
	return err
}

func rowsAffected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
