package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"knowledgebase/internal/models"
)

type QueryRepository interface {
	Create(ctx context.Context, q *models.Query) error
	GetByID(ctx context.Context, id string) (*models.Query, error)
	MarkCompleted(ctx context.Context, id string, responseText string, sources []models.QuerySource, metadata map[string]any, executionTime float64, tokensUsed int, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, errorMessage string, executionTime float64, at time.Time) (bool, error)
	UpdateFeedback(ctx context.Context, id string, rating *int, feedback *string, at time.Time) (bool, error)
	List(ctx context.Context, userID, conversationID string, limit, offset int) ([]*models.Query, error)
	ListConversation(ctx context.Context, userID, conversationID string) ([]*models.Query, error)
	Stats(ctx context.Context, userID string) (*models.QueryStats, error)
	CountAll(ctx context.Context) (int, error)
}

type queryRepository struct {
	db *sqlx.DB
}

func NewQueryRepository(db *sqlx.DB) QueryRepository {
	return &queryRepository{db: db}
}

// queryRow mirrors models.Query with the JSON columns as raw text.
type queryRow struct {
	models.Query
	ResponseSourcesJSON  sql.NullString `db:"response_sources"`
	ResponseMetadataJSON sql.NullString `db:"response_metadata"`
}

func (row *queryRow) toModel() (*models.Query, error) {
	q := row.Query

	if row.ResponseSourcesJSON.Valid && row.ResponseSourcesJSON.String != "" {
		if err := json.Unmarshal([]byte(row.ResponseSourcesJSON.String), &q.ResponseSources); err != nil {
			return nil, err
		}
	}
	if row.ResponseMetadataJSON.Valid && row.ResponseMetadataJSON.String != "" {
		if err := json.Unmarshal([]byte(row.ResponseMetadataJSON.String), &q.ResponseMetadata); err != nil {
			return nil, err
		}
	}

	return &q, nil
}

const queryColumns = `
	id, user_id, query_text, query_type, conversation_id, parent_query_id,
	response_text, response_sources, response_metadata, execution_time,
	tokens_used, status, error_message, user_rating, user_feedback,
	created_at, updated_at
`

func (r *queryRepository) Create(ctx context.Context, q *models.Query) error {
	query := `
		INSERT INTO queries (id, user_id, query_text, query_type, conversation_id,
		                     parent_query_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		q.ID,
		q.UserID,
		q.QueryText,
		q.QueryType,
		q.ConversationID,
		q.ParentQueryID,
		q.Status,
		q.CreatedAt,
		q.UpdatedAt,
	)

	return err
}

func (r *queryRepository) GetByID(ctx context.Context, id string) (*models.Query, error) {
	var row queryRow

	query := `SELECT ` + queryColumns + ` FROM queries WHERE id = $1`

	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return row.toModel()
}

func (r *queryRepository) MarkCompleted(ctx context.Context, id string, responseText string, sources []models.QuerySource, metadata map[string]any, executionTime float64, tokensUsed int, at time.Time) (bool, error) {
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return false, err
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return false, err
	}

	query := `UPDATE queries
		SET status = 'completed', response_text = $2, response_sources = $3,
		    response_metadata = $4, execution_time = $5, tokens_used = $6,
		    updated_at = $7
		WHERE id = $1 AND status = 'pending'`

	res, err := r.db.ExecContext(ctx, query, id, responseText, string(sourcesJSON),
		string(metadataJSON), executionTime, tokensUsed, at)
	if err != nil {
		return false, err
	}

	return rowsAffected(res)
}

func (r *queryRepository) MarkFailed(ctx context.Context, id, errorMessage string, executionTime float64, at time.Time) (bool, error) {
	query := `UPDATE queries
		SET status = 'failed', error_message = $2, execution_time = $3, updated_at = $4
		WHERE id = $1 AND status = 'pending'`

	res, err := r.db.ExecContext(ctx, query, id, errorMessage, executionTime, at)
	if err != nil {
		return false, err
	}

	return rowsAffected(res)
}

func (r *queryRepository) UpdateFeedback(ctx context.Context, id string, rating *int, feedback *string, at time.Time) (bool, error) {
	query := `UPDATE queries
		SET user_rating = COALESCE($2, user_rating),
		    user_feedback = COALESCE($3, user_feedback),
		    updated_at = $4
		WHERE id = $1 AND status = 'completed'`

	res, err := r.db.ExecContext(ctx, query, id, rating, feedback, at)
	if err != nil {
		return false, err
	}

	return rowsAffected(res)
}

func (r *queryRepository) List(ctx context.Context, userID, conversationID string, limit, offset int) ([]*models.Query, error) {
	rows := []queryRow{}

	query := `SELECT ` + queryColumns + `
		FROM queries
		WHERE user_id = $1 AND ($2 = '' OR conversation_id = $2)
		ORDER BY created_at ASC
		LIMIT $3 OFFSET $4`

	if err := r.db.SelectContext(ctx, &rows, query, userID, conversationID, limit, offset); err != nil {
		return nil, err
	}

	return toModels(rows)
}

func (r *queryRepository) ListConversation(ctx context.Context, userID, conversationID string) ([]*models.Query, error) {
	rows := []queryRow{}

	query := `SELECT ` + queryColumns + `
		FROM queries
		WHERE user_id = $1 AND conversation_id = $2
		ORDER BY created_at ASC`

	if err := r.db.SelectContext(ctx, &rows, query, userID, conversationID); err != nil {
		return nil, err
	}

	return toModels(rows)
}

func (r *queryRepository) Stats(ctx context.Context, userID string) (*models.QueryStats, error) {
	var agg struct {
		Total      int             `db:"total"`
		Successful int             `db:"successful"`
		Failed     int             `db:"failed"`
		AvgTime    sql.NullFloat64 `db:"avg_time"`
		AvgRating  sql.NullFloat64 `db:"avg_rating"`
	}

	query := `SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0) AS successful,
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) AS failed,
			AVG(execution_time) AS avg_time,
			AVG(user_rating) AS avg_rating
		FROM queries WHERE user_id = $1`

	if err := r.db.GetContext(ctx, &agg, query, userID); err != nil {
		return nil, err
	}

	stats := &models.QueryStats{
		TotalQueries:      agg.Total,
		SuccessfulQueries: agg.Successful,
		FailedQueries:     agg.Failed,
	}
	if agg.AvgTime.Valid {
		stats.AverageExecutionTime = agg.AvgTime.Float64
	}
	if agg.AvgRating.Valid {
		rating := agg.AvgRating.Float64
		stats.AverageRating = &rating
	}

	return stats, nil
}

func (r *queryRepository) CountAll(ctx context.Context) (int, error) {
	var total int

	query := `SELECT COUNT(*) FROM queries`

	err := r.db.GetContext(ctx, &total, query)
	return total, err
}

func toModels(rows []queryRow) ([]*models.Query, error) {
	queries := make([]*models.Query, 0, len(rows))
	for i := range rows {
		q, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	return queries, nil
}
