package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"knowledgebase/internal/audit"
	"knowledgebase/internal/models"
	"knowledgebase/internal/notebook"
	"knowledgebase/internal/repository"
	"knowledgebase/internal/utils"
)

const (
	defaultMaxResults = 5
	maxQueryLength    = 2000
)

// QueryService orchestrates a query round trip: thread resolution, a pending
// record, the notebook call, and the terminal transition with its audit entry.
type QueryService interface {
	Submit(ctx context.Context, userID string, req *models.QuerySubmitRequest) (*models.Query, error)
	Get(ctx context.Context, queryID, userID string) (*models.Query, error)
	History(ctx context.Context, userID, conversationID string, page, pageSize int) ([]*models.Query, error)
	Conversation(ctx context.Context, userID, conversationID string) (*models.ConversationHistory, error)
	Rate(ctx context.Context, queryID, userID string, req *models.QueryFeedbackRequest) (*models.Query, error)
	Stats(ctx context.Context, userID string) (*models.QueryStats, error)
}

type queryService struct {
	repo      repository.QueryRepository
	docs      repository.DocumentRepository
	users     repository.UserRepository
	documents DocumentService
	notebook  notebook.Client
	auditor   *audit.Recorder
	logger    *utils.Logger
}

func NewQueryService(
	repo repository.QueryRepository,
	docs repository.DocumentRepository,
	users repository.UserRepository,
	documents DocumentService,
	nb notebook.Client,
	auditor *audit.Recorder,
	logger *utils.Logger,
) QueryService {
	return &queryService{
		repo:      repo,
		docs:      docs,
		users:     users,
		documents: documents,
		notebook:  nb,
		auditor:   auditor,
		logger:    logger.Component("queries"),
	}
}

func (s *queryService) Submit(ctx context.Context, userID string, req *models.QuerySubmitRequest) (*models.Query, error) {
	queryText := strings.TrimSpace(req.QueryText)
	if queryText == "" {
		return nil, utils.NewValidationError("Query text must not be empty")
	}
	if len(queryText) > maxQueryLength {
		return nil, utils.NewValidationError(fmt.Sprintf("Query text exceeds %d characters", maxQueryLength))
	}

	queryType := req.QueryType
	if queryType == "" {
		queryType = models.QueryTypeSemantic
	}
	switch queryType {
	case models.QueryTypeSemantic, models.QueryTypeKeyword, models.QueryTypeConversational:
	default:
		return nil, utils.NewValidationError(fmt.Sprintf("Unknown query type '%s'", queryType))
	}

	maxResults := req.MaxResults
	if maxResults < 1 || maxResults > 20 {
		maxResults = defaultMaxResults
	}

	conversationID, parentQueryID, err := s.resolveThread(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load user", "error", err, "user_id", userID)
		return nil, utils.NewInternalError("Failed to execute query")
	}
	if user == nil || user.NotebookID == nil {
		return nil, utils.NewValidationError("No notebook is provisioned for this account")
	}

	now := time.Now().UTC()
	query := &models.Query{
		ID:             utils.GenerateID(),
		UserID:         userID,
		QueryText:      queryText,
		QueryType:      queryType,
		ConversationID: conversationID,
		ParentQueryID:  parentQueryID,
		Status:         models.QueryStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, query); err != nil {
		s.logger.Error("failed to create query", "error", err, "user_id", userID)
		return nil, utils.NewInternalError("Failed to execute query")
	}

	refs, err := s.docs.CompletedNotebookRefs(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load document refs", "error", err, "user_id", userID)
		return nil, s.fail(ctx, query, "failed to resolve queryable documents", now,
			utils.NewInternalError("Failed to execute query"))
	}
	if len(refs) == 0 {
		return nil, s.fail(ctx, query, "no completed documents available", now,
			utils.NewValidationError("No completed documents available to query"))
	}

	result, err := s.notebook.Query(ctx, &notebook.QueryRequest{
		NotebookID:     *user.NotebookID,
		QueryText:      queryText,
		ConversationID: conversationID,
		DocumentRefs:   refs,
		MaxResults:     maxResults,
		IncludeSources: req.IncludeSources,
	})
	if err != nil {
		return nil, s.fail(ctx, query, err.Error(), now, mapNotebookError(err))
	}

	elapsed := time.Since(now).Seconds()

	sources := make([]models.QuerySource, 0, len(result.Sources))
	for _, src := range result.Sources {
		sources = append(sources, models.QuerySource{
			DocumentID: src.DocumentID,
			Title:      src.Title,
			Excerpt:    src.Excerpt,
			Relevance:  src.Relevance,
		})
	}

	applied, err := s.repo.MarkCompleted(ctx, query.ID, result.Answer, sources,
		result.Metadata, elapsed, result.TokensUsed, time.Now().UTC())
	if err != nil {
		s.logger.Error("failed to complete query", "error", err, "query_id", query.ID)
		return nil, utils.NewInternalError("Failed to record query result")
	}
	if !applied {
		s.logger.Warn("ignoring completion of non-pending query", "query_id", query.ID)
	} else {
		s.recordCitations(ctx, userID, result.Sources)

		s.auditor.Record(ctx, audit.Entry{
			EventType:    models.AuditEventQueryExecute,
			Description:  "Query executed",
			ResourceType: "query",
			ResourceID:   query.ID,
			UserID:       userID,
			Metadata: map[string]any{
				"conversation_id": conversationID,
				"execution_time":  elapsed,
				"source_count":    len(sources),
			},
		})
	}

	s.logger.Info("query completed",
		"query_id", query.ID,
		"user_id", userID,
		"conversation_id", conversationID,
		"execution_time", elapsed)

	return s.repo.GetByID(ctx, query.ID)
}

// resolveThread decides which conversation the query belongs to. A parent
// reference pins the conversation to the parent's; otherwise an explicit id
// is taken as-is and a fresh one is minted for a new thread.
func (s *queryService) resolveThread(ctx context.Context, userID string, req *models.QuerySubmitRequest) (string, *string, error) {
	if req.ParentQueryID == nil {
		if req.ConversationID != nil && *req.ConversationID != "" {
			return *req.ConversationID, nil, nil
		}
		return utils.GenerateID(), nil, nil
	}

	parent, err := s.repo.GetByID(ctx, *req.ParentQueryID)
	if err != nil {
		s.logger.Error("failed to load parent query", "error", err, "parent_id", *req.ParentQueryID)
		return "", nil, utils.NewInternalError("Failed to execute query")
	}
	if parent == nil || parent.UserID != userID {
		return "", nil, utils.NewInvalidThreadError("Parent query not found")
	}
	if req.ConversationID != nil && *req.ConversationID != "" && *req.ConversationID != parent.ConversationID {
		return "", nil, utils.NewInvalidThreadError("Parent query belongs to a different conversation")
	}

	return parent.ConversationID, req.ParentQueryID, nil
}

// fail marks the query failed and returns the caller-facing error. The
// failure row and audit entry are written even when the terminal transition
// loses a race; the audit entry is skipped only on repository errors.
func (s *queryService) fail(ctx context.Context, query *models.Query, reason string, startedAt time.Time, outErr error) error {
	elapsed := time.Since(startedAt).Seconds()

	applied, err := s.repo.MarkFailed(ctx, query.ID, reason, elapsed, time.Now().UTC())
	if err != nil {
		s.logger.Error("failed to mark query failed", "error", err, "query_id", query.ID)
		return outErr
	}
	if !applied {
		s.logger.Warn("ignoring failure of non-pending query", "query_id", query.ID)
		return outErr
	}

	s.auditor.Record(ctx, audit.Entry{
		EventType:    models.AuditEventQueryFailed,
		Description:  fmt.Sprintf("Query failed: %s", reason),
		ResourceType: "query",
		ResourceID:   query.ID,
		UserID:       query.UserID,
		Metadata:     map[string]any{"conversation_id": query.ConversationID},
	})

	s.logger.Warn("query failed", "query_id", query.ID, "user_id", query.UserID, "reason", reason)
	return outErr
}

// recordCitations bumps usage counters on every document the response cited.
// Citation bookkeeping never fails the query.
func (s *queryService) recordCitations(ctx context.Context, userID string, sources []notebook.Source) {
	for _, src := range sources {
		doc, err := s.docs.GetByNotebookDocID(ctx, userID, src.DocumentID)
		if err != nil {
			s.logger.Warn("failed to resolve cited document", "error", err, "notebook_doc_id", src.DocumentID)
			continue
		}
		if doc == nil {
			s.logger.Warn("response cited unknown document", "notebook_doc_id", src.DocumentID)
			continue
		}
		if err := s.documents.RecordQuery(ctx, doc.ID); err != nil {
			s.logger.Warn("failed to record citation", "error", err, "doc_id", doc.ID)
		}
	}
}

func (s *queryService) Get(ctx context.Context, queryID, userID string) (*models.Query, error) {
	return s.ownedQuery(ctx, queryID, userID)
}

func (s *queryService) History(ctx context.Context, userID, conversationID string, page, pageSize int) ([]*models.Query, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	queries, err := s.repo.List(ctx, userID, conversationID, pageSize, (page-1)*pageSize)
	if err != nil {
		s.logger.Error("failed to list queries", "error", err, "user_id", userID)
		return nil, utils.NewInternalError("Failed to load query history")
	}

	return queries, nil
}

func (s *queryService) Conversation(ctx context.Context, userID, conversationID string) (*models.ConversationHistory, error) {
	queries, err := s.repo.ListConversation(ctx, userID, conversationID)
	if err != nil {
		s.logger.Error("failed to load conversation", "error", err, "conversation_id", conversationID)
		return nil, utils.NewInternalError("Failed to load conversation")
	}
	if len(queries) == 0 {
		return nil, utils.NewNotFoundError("Conversation not found")
	}

	return &models.ConversationHistory{
		ConversationID: conversationID,
		Queries:        queries,
		TotalQueries:   len(queries),
		StartedAt:      queries[0].CreatedAt,
		LastActivity:   queries[len(queries)-1].UpdatedAt,
	}, nil
}

// Rate attaches user feedback to a completed query. Ratings on pending or
// failed queries are rejected rather than silently dropped.
func (s *queryService) Rate(ctx context.Context, queryID, userID string, req *models.QueryFeedbackRequest) (*models.Query, error) {
	if req.UserRating == nil && req.UserFeedback == nil {
		return nil, utils.NewValidationError("Feedback requires a rating or a comment")
	}
	if req.UserRating != nil && (*req.UserRating < 1 || *req.UserRating > 5) {
		return nil, utils.NewValidationError("Rating must be between 1 and 5")
	}

	query, err := s.ownedQuery(ctx, queryID, userID)
	if err != nil {
		return nil, err
	}
	if query.Status != models.QueryStatusCompleted {
		return nil, utils.NewInvalidStateError("Only completed queries can be rated")
	}

	applied, err := s.repo.UpdateFeedback(ctx, queryID, req.UserRating, req.UserFeedback, time.Now().UTC())
	if err != nil {
		s.logger.Error("failed to save feedback", "error", err, "query_id", queryID)
		return nil, utils.NewInternalError("Failed to save feedback")
	}
	if !applied {
		// the query left completed between the read and the write
		return nil, utils.NewInvalidStateError("Only completed queries can be rated")
	}

	s.auditor.Record(ctx, audit.Entry{
		EventType:    models.AuditEventQueryFeedback,
		Description:  "Feedback recorded for query",
		ResourceType: "query",
		ResourceID:   queryID,
		UserID:       userID,
	})

	return s.repo.GetByID(ctx, queryID)
}

func (s *queryService) Stats(ctx context.Context, userID string) (*models.QueryStats, error) {
	stats, err := s.repo.Stats(ctx, userID)
	if err != nil {
		s.logger.Error("failed to compute query stats", "error", err, "user_id", userID)
		return nil, utils.NewInternalError("Failed to compute statistics")
	}
	return stats, nil
}

func (s *queryService) ownedQuery(ctx context.Context, queryID, userID string) (*models.Query, error) {
	query, err := s.repo.GetByID(ctx, queryID)
	if err != nil {
		s.logger.Error("failed to get query", "error", err, "query_id", queryID)
		return nil, utils.NewInternalError("Failed to retrieve query")
	}
	if query == nil || query.UserID != userID {
		return nil, utils.NewNotFoundError("Query not found")
	}
	return query, nil
}

// mapNotebookError translates transport failures into the caller-facing
// taxonomy. Timeouts and upstream faults leave the query failed but the
// conversation intact, so a retry threads normally.
func mapNotebookError(err error) error {
	switch {
	case errors.Is(err, notebook.ErrTimeout):
		return utils.NewUpstreamTimeoutError("Generation service timed out")
	case errors.Is(err, notebook.ErrInvalidInput):
		return utils.NewValidationError("Generation service rejected the query")
	default:
		return utils.NewUpstreamError("Generation service request failed")
	}
}
