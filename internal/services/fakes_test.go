package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"knowledgebase/internal/models"
	"knowledgebase/internal/notebook"
	"knowledgebase/internal/repository"
)

// In-memory doubles for the repository and transport interfaces. The
// document fake enforces the same status guards as the SQL so transition
// tests exercise real first-write-wins behavior.

type fakeDocumentRepo struct {
	mu   sync.Mutex
	docs map[string]*models.Document
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{docs: map[string]*models.Document{}}
}

func (r *fakeDocumentRepo) Create(_ context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *fakeDocumentRepo) GetByID(_ context.Context, id string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (r *fakeDocumentRepo) GetByNotebookDocID(_ context.Context, ownerID, notebookDocID string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, doc := range r.docs {
		if doc.OwnerID == ownerID && doc.NotebookDocID != nil && *doc.NotebookDocID == notebookDocID {
			cp := *doc
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeDocumentRepo) List(_ context.Context, ownerID, status string, limit, offset int) ([]*models.Document, error) {
	all, _ := r.ListAll(context.Background(), ownerID)
	var out []*models.Document
	for _, doc := range all {
		if status != "" && doc.Status != status {
			continue
		}
		out = append(out, doc)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeDocumentRepo) Count(_ context.Context, ownerID, status string) (int, error) {
	all, _ := r.List(context.Background(), ownerID, status, 1<<30, 0)
	return len(all), nil
}

func (r *fakeDocumentRepo) ListAll(_ context.Context, ownerID string) ([]*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Document
	for _, doc := range r.docs {
		if doc.OwnerID == ownerID && doc.IsActive {
			cp := *doc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) CountAll(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, doc := range r.docs {
		if doc.IsActive {
			count++
		}
	}
	return count, nil
}

func (r *fakeDocumentRepo) CompletedNotebookRefs(_ context.Context, ownerID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var refs []string
	for _, doc := range r.docs {
		if doc.OwnerID == ownerID && doc.IsActive &&
			doc.Status == models.DocumentStatusCompleted && doc.NotebookDocID != nil {
			refs = append(refs, *doc.NotebookDocID)
		}
	}
	return refs, nil
}

func (r *fakeDocumentRepo) MarkProcessing(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok || doc.Status != models.DocumentStatusPending {
		return false, nil
	}
	doc.Status = models.DocumentStatusProcessing
	doc.UpdatedAt = at
	return true, nil
}

func (r *fakeDocumentRepo) MarkCompleted(_ context.Context, id, notebookDocID, contentPreview string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok || (doc.Status != models.DocumentStatusPending && doc.Status != models.DocumentStatusProcessing) {
		return false, nil
	}
	doc.Status = models.DocumentStatusCompleted
	doc.NotebookDocID = &notebookDocID
	doc.ContentPreview = &contentPreview
	doc.ProcessingError = nil
	doc.UpdatedAt = at
	return true, nil
}

func (r *fakeDocumentRepo) MarkFailed(_ context.Context, id, processingError string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok || (doc.Status != models.DocumentStatusPending && doc.Status != models.DocumentStatusProcessing) {
		return false, nil
	}
	doc.Status = models.DocumentStatusFailed
	doc.ProcessingError = &processingError
	doc.NotebookDocID = nil
	doc.UpdatedAt = at
	return true, nil
}

func (r *fakeDocumentRepo) IncrementQueryCount(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok || doc.Status != models.DocumentStatusCompleted {
		return false, nil
	}
	doc.QueryCount++
	doc.LastQueriedAt = &at
	doc.UpdatedAt = at
	return true, nil
}

func (r *fakeDocumentRepo) UpdateInfo(_ context.Context, id string, title, description *string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return errors.New("document not found")
	}
	if title != nil {
		doc.Title = *title
	}
	if description != nil {
		doc.Description = description
	}
	doc.UpdatedAt = at
	return nil
}

func (r *fakeDocumentRepo) Retire(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return errors.New("document not found")
	}
	doc.IsActive = false
	doc.UpdatedAt = at
	return nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*models.User{}}
}

func (r *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *user
	return &cp, nil
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == username {
			cp := *user
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == username || user.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeUserRepo) List(_ context.Context, limit, offset int) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.User
	for _, user := range r.users {
		cp := *user
		out = append(out, &cp)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.Before(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeUserRepo) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users), nil
}

func (r *fakeUserRepo) UpdateProfile(_ context.Context, id string, email, fullName *string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return errors.New("user not found")
	}
	if email != nil {
		user.Email = *email
	}
	if fullName != nil {
		user.FullName = *fullName
	}
	user.UpdatedAt = at
	return nil
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, id, hashedPassword string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return errors.New("user not found")
	}
	user.HashedPassword = hashedPassword
	user.UpdatedAt = at
	return nil
}

type fakeQueryRepo struct {
	mu      sync.Mutex
	queries map[string]*models.Query
}

func newFakeQueryRepo() *fakeQueryRepo {
	return &fakeQueryRepo{queries: map[string]*models.Query{}}
}

func (r *fakeQueryRepo) Create(_ context.Context, q *models.Query) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *q
	r.queries[q.ID] = &cp
	return nil
}

func (r *fakeQueryRepo) GetByID(_ context.Context, id string) (*models.Query, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queries[id]
	if !ok {
		return nil, nil
	}
	cp := *q
	return &cp, nil
}

func (r *fakeQueryRepo) MarkCompleted(_ context.Context, id string, responseText string, sources []models.QuerySource, metadata map[string]any, executionTime float64, tokensUsed int, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queries[id]
	if !ok || q.Status != models.QueryStatusPending {
		return false, nil
	}
	q.Status = models.QueryStatusCompleted
	q.ResponseText = &responseText
	q.ResponseSources = sources
	q.ResponseMetadata = metadata
	q.ExecutionTime = &executionTime
	q.TokensUsed = &tokensUsed
	q.UpdatedAt = at
	return true, nil
}

func (r *fakeQueryRepo) MarkFailed(_ context.Context, id, errorMessage string, executionTime float64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queries[id]
	if !ok || q.Status != models.QueryStatusPending {
		return false, nil
	}
	q.Status = models.QueryStatusFailed
	q.ErrorMessage = &errorMessage
	q.ExecutionTime = &executionTime
	q.UpdatedAt = at
	return true, nil
}

func (r *fakeQueryRepo) UpdateFeedback(_ context.Context, id string, rating *int, feedback *string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queries[id]
	if !ok || q.Status != models.QueryStatusCompleted {
		return false, nil
	}
	if rating != nil {
		q.UserRating = rating
	}
	if feedback != nil {
		q.UserFeedback = feedback
	}
	q.UpdatedAt = at
	return true, nil
}

func (r *fakeQueryRepo) List(_ context.Context, userID, conversationID string, limit, offset int) ([]*models.Query, error) {
	all, err := r.ListConversation(context.Background(), userID, conversationID)
	if err != nil {
		return nil, err
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *fakeQueryRepo) ListConversation(_ context.Context, userID, conversationID string) ([]*models.Query, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Query
	for _, q := range r.queries {
		if q.UserID != userID {
			continue
		}
		if conversationID != "" && q.ConversationID != conversationID {
			continue
		}
		cp := *q
		out = append(out, &cp)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.Before(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (r *fakeQueryRepo) CountAll(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queries), nil
}

func (r *fakeQueryRepo) Stats(_ context.Context, userID string) (*models.QueryStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &models.QueryStats{}
	var totalTime float64
	var timed int
	for _, q := range r.queries {
		if q.UserID != userID {
			continue
		}
		stats.TotalQueries++
		switch q.Status {
		case models.QueryStatusCompleted:
			stats.SuccessfulQueries++
		case models.QueryStatusFailed:
			stats.FailedQueries++
		}
		if q.ExecutionTime != nil {
			totalTime += *q.ExecutionTime
			timed++
		}
	}
	if timed > 0 {
		stats.AverageExecutionTime = totalTime / float64(timed)
	}
	return stats, nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*models.AuditEntry
}

func (r *fakeAuditRepo) Insert(_ context.Context, entry *models.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *entry
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *fakeAuditRepo) matches(entry *models.AuditEntry, filter repository.AuditFilter) bool {
	if filter.CorrelationID != "" && entry.CorrelationID != filter.CorrelationID {
		return false
	}
	if filter.UserID != "" && (entry.UserID == nil || *entry.UserID != filter.UserID) {
		return false
	}
	if filter.EventType != "" && entry.EventType != filter.EventType {
		return false
	}
	return true
}

func (r *fakeAuditRepo) List(_ context.Context, filter repository.AuditFilter, limit, offset int) ([]*models.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditEntry
	for i := len(r.entries) - 1; i >= 0; i-- { // newest first
		if r.matches(r.entries[i], filter) {
			out = append(out, r.entries[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeAuditRepo) Count(_ context.Context, filter repository.AuditFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, entry := range r.entries {
		if r.matches(entry, filter) {
			count++
		}
	}
	return count, nil
}

func (r *fakeAuditRepo) byEvent(eventType string) []*models.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditEntry
	for _, e := range r.entries {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (s *fakeStorage) Upload(_ context.Context, key string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *fakeStorage) Download(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return append([]byte(nil), data...), nil
}

func (s *fakeStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

type fakeNotebook struct {
	mu sync.Mutex

	addDocErr   error
	queryErr    error
	queryResult *notebook.QueryResult

	added   []string
	removed []string
	queries []*notebook.QueryRequest
}

func (f *fakeNotebook) CreateNotebook(_ context.Context, _, _ string) (string, error) {
	return "nb-1", nil
}

func (f *fakeNotebook) AddDocument(_ context.Context, _ string, _ []byte, filename, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addDocErr != nil {
		return "", f.addDocErr
	}
	ref := "ndoc-" + filename
	f.added = append(f.added, ref)
	return ref, nil
}

func (f *fakeNotebook) RemoveDocument(_ context.Context, _, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, documentID)
	return nil
}

func (f *fakeNotebook) Query(_ context.Context, req *notebook.QueryRequest) (*notebook.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, req)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.queryResult != nil {
		return f.queryResult, nil
	}
	return &notebook.QueryResult{Answer: "answer"}, nil
}
