package models

import (
	"time"
)

// Query states. A query is a single round trip to the notebook service, so
// there is no intermediate state between pending and a terminal one.
const (
	QueryStatusPending   = "pending"
	QueryStatusCompleted = "completed"
	QueryStatusFailed    = "failed"
)

const (
	QueryTypeSemantic       = "semantic"
	QueryTypeKeyword        = "keyword"
	QueryTypeConversational = "conversational"
)

type Query struct {
	ID               string         `json:"id" db:"id"`
	UserID           string         `json:"user_id" db:"user_id"`
	QueryText        string         `json:"query_text" db:"query_text"`
	QueryType        string         `json:"query_type" db:"query_type"`
	ConversationID   string         `json:"conversation_id" db:"conversation_id"`
	ParentQueryID    *string        `json:"parent_query_id,omitempty" db:"parent_query_id"`
	ResponseText     *string        `json:"response_text,omitempty" db:"response_text"`
	ResponseSources  []QuerySource  `json:"response_sources,omitempty" db:"-"`
	ResponseMetadata map[string]any `json:"response_metadata,omitempty" db:"-"`
	ExecutionTime    *float64       `json:"execution_time,omitempty" db:"execution_time"`
	TokensUsed       *int           `json:"tokens_used,omitempty" db:"tokens_used"`
	Status           string         `json:"status" db:"status"`
	ErrorMessage     *string        `json:"error_message,omitempty" db:"error_message"`
	UserRating       *int           `json:"user_rating,omitempty" db:"user_rating"`
	UserFeedback     *string        `json:"user_feedback,omitempty" db:"user_feedback"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

// QuerySource is one cited document in a response.
type QuerySource struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title,omitempty"`
	Excerpt    string  `json:"excerpt,omitempty"`
	Relevance  float64 `json:"relevance,omitempty"`
}

type QuerySubmitRequest struct {
	QueryText      string  `json:"query_text"`
	QueryType      string  `json:"query_type,omitempty"`
	ConversationID *string `json:"conversation_id,omitempty"`
	ParentQueryID  *string `json:"parent_query_id,omitempty"`
	IncludeSources bool    `json:"include_sources"`
	MaxResults     int     `json:"max_results,omitempty"`
}

type QueryFeedbackRequest struct {
	UserRating   *int    `json:"user_rating,omitempty"`
	UserFeedback *string `json:"user_feedback,omitempty"`
}

type ConversationHistory struct {
	ConversationID string    `json:"conversation_id"`
	Queries        []*Query  `json:"queries"`
	TotalQueries   int       `json:"total_queries"`
	StartedAt      time.Time `json:"started_at"`
	LastActivity   time.Time `json:"last_activity"`
}

type QueryStats struct {
	TotalQueries         int      `json:"total_queries"`
	SuccessfulQueries    int      `json:"successful_queries"`
	FailedQueries        int      `json:"failed_queries"`
	AverageExecutionTime float64  `json:"average_execution_time"`
	AverageRating        *float64 `json:"average_rating,omitempty"`
}
