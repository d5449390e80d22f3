package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"knowledgebase/internal/audit"
	"knowledgebase/internal/config"
	"knowledgebase/internal/correlation"
	"knowledgebase/internal/extractor"
	"knowledgebase/internal/models"
	"knowledgebase/internal/notebook"
	"knowledgebase/internal/repository"
	"knowledgebase/internal/storage"
	"knowledgebase/internal/utils"
)

const previewLength = 500

// DocumentService owns the document lifecycle: pending → processing →
// {completed | failed}. All status mutations go through it; nothing else
// writes document rows.
type DocumentService interface {
	Upload(ctx context.Context, ownerID string, req *models.UploadRequest) (*models.UploadResponse, error)
	Advance(ctx context.Context, documentID string, outcome models.IngestOutcome)
	RecordQuery(ctx context.Context, documentID string) error
	Get(ctx context.Context, documentID, callerID string) (*models.Document, error)
	Status(ctx context.Context, documentID, callerID string) (*models.DocumentStatusResponse, error)
	List(ctx context.Context, ownerID, status string, page, pageSize int) (*models.DocumentList, error)
	Update(ctx context.Context, documentID, callerID string, req *models.DocumentUpdateRequest) (*models.Document, error)
	Retire(ctx context.Context, documentID, callerID string, isAdmin bool) error
	Stats(ctx context.Context, ownerID string) (*models.DocumentStats, error)
}

type documentService struct {
	repo     repository.DocumentRepository
	users    repository.UserRepository
	storage  storage.Storage
	notebook notebook.Client
	auditor  *audit.Recorder
	logger   *utils.Logger

	maxFileSize  int64
	allowedTypes map[string]bool
}

func NewDocumentService(
	repo repository.DocumentRepository,
	users repository.UserRepository,
	store storage.Storage,
	nb notebook.Client,
	auditor *audit.Recorder,
	cfg *config.Config,
	logger *utils.Logger,
) DocumentService {
	allowed := make(map[string]bool, len(cfg.AllowedFileTypes))
	for _, t := range cfg.AllowedFileTypes {
		allowed[strings.ToLower(t)] = true
	}

	return &documentService{
		repo:         repo,
		users:        users,
		storage:      store,
		notebook:     nb,
		auditor:      auditor,
		logger:       logger.Component("documents"),
		maxFileSize:  cfg.MaxFileSize,
		allowedTypes: allowed,
	}
}

// Upload validates the file, persists a pending document and hands it to the
// async ingestion step. The caller gets the pending record back immediately;
// ingestion outcome is visible through Status.
func (s *documentService) Upload(ctx context.Context, ownerID string, req *models.UploadRequest) (*models.UploadResponse, error) {
	if int64(len(req.File)) > s.maxFileSize {
		return nil, utils.NewValidationError(fmt.Sprintf("File size exceeds maximum of %d bytes", s.maxFileSize))
	}
	if len(req.File) == 0 {
		return nil, utils.NewValidationError("Uploaded file is empty")
	}

	fileType := strings.ToLower(strings.TrimPrefix(filepath.Ext(req.Filename), "."))
	if !s.allowedTypes[fileType] {
		return nil, utils.NewValidationError(fmt.Sprintf("File type '%s' is not allowed", fileType))
	}

	docID := utils.GenerateID()
	storageKey := fmt.Sprintf("documents/%s/%s", docID, req.Filename)

	if err := s.storage.Upload(ctx, storageKey, req.File, req.ContentType); err != nil {
		s.logger.Error("failed to store upload", "error", err, "doc_id", docID)
		return nil, utils.NewInternalError("Failed to store document")
	}

	title := req.Title
	if title == "" {
		title = req.Filename
	}

	now := time.Now().UTC()
	doc := &models.Document{
		ID:               docID,
		OwnerID:          ownerID,
		Filename:         fmt.Sprintf("%s%s", docID, filepath.Ext(req.Filename)),
		OriginalFilename: req.Filename,
		StorageKey:       storageKey,
		FileSize:         int64(len(req.File)),
		FileType:         fileType,
		MimeType:         req.ContentType,
		Title:            title,
		Status:           models.DocumentStatusPending,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.Description != "" {
		doc.Description = &req.Description
	}

	if err := s.repo.Create(ctx, doc); err != nil {
		s.logger.Error("failed to save document", "error", err, "doc_id", docID)
		_ = s.storage.Delete(ctx, storageKey)
		return nil, utils.NewInternalError("Failed to save document metadata")
	}

	s.auditor.Record(ctx, audit.Entry{
		EventType:    models.AuditEventDocumentUpload,
		Description:  fmt.Sprintf("Document uploaded: %s", req.Filename),
		ResourceType: "document",
		ResourceID:   docID,
		UserID:       ownerID,
		Metadata:     map[string]any{"filename": req.Filename, "file_size": len(req.File)},
	})

	s.logger.Info("document accepted",
		"doc_id", docID,
		"owner_id", ownerID,
		"filename", req.Filename,
		"file_type", fileType)

	// Detach from the request lifetime but keep the correlation id so the
	// ingestion audit trail links back to the upload.
	go s.ingest(context.WithoutCancel(ctx), docID)

	return &models.UploadResponse{
		ID:               docID,
		Filename:         doc.Filename,
		OriginalFilename: req.Filename,
		FileSize:         doc.FileSize,
		Status:           models.DocumentStatusPending,
		CreatedAt:        now,
		Message:          "Document uploaded successfully and is being processed",
	}, nil
}

// ingest is the async processing step: extract text, push the document into
// the owner's notebook and advance the lifecycle with the outcome.
func (s *documentService) ingest(ctx context.Context, documentID string) {
	applied, err := s.repo.MarkProcessing(ctx, documentID, time.Now().UTC())
	if err != nil {
		s.logger.Error("failed to mark document processing", "error", err, "doc_id", documentID)
		return
	}
	if !applied {
		// already advanced by a competing worker; nothing to do
		s.logger.Warn("document not pending, skipping ingestion", "doc_id", documentID)
		return
	}

	outcome := s.runIngestion(ctx, documentID)
	s.Advance(ctx, documentID, outcome)
}

func (s *documentService) runIngestion(ctx context.Context, documentID string) models.IngestOutcome {
	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil || doc == nil {
		return models.IngestOutcome{Err: fmt.Errorf("document lookup failed: %w", err)}
	}

	data, err := s.storage.Download(ctx, doc.StorageKey)
	if err != nil {
		return models.IngestOutcome{Err: fmt.Errorf("failed to read stored file: %w", err)}
	}

	text, err := extractor.Extract(doc.FileType, data)
	if err != nil {
		return models.IngestOutcome{Err: fmt.Errorf("content extraction failed: %w", err)}
	}

	owner, err := s.users.GetByID(ctx, doc.OwnerID)
	if err != nil {
		return models.IngestOutcome{Err: fmt.Errorf("owner lookup failed: %w", err)}
	}
	if owner == nil || owner.NotebookID == nil {
		return models.IngestOutcome{Err: errors.New("owner has no notebook")}
	}

	ref, err := s.notebook.AddDocument(ctx, *owner.NotebookID, data, doc.OriginalFilename, doc.MimeType)
	if err != nil {
		return models.IngestOutcome{Err: fmt.Errorf("notebook ingestion failed: %w", err)}
	}

	return models.IngestOutcome{
		NotebookDocID:  ref,
		ContentPreview: contentPreview(text, previewLength),
	}
}

// Advance applies a terminal transition. The repository guards the state
// machine in SQL, so a replay against an already-terminal document changes
// nothing: the row keeps its updated_at and no audit entry is written.
func (s *documentService) Advance(ctx context.Context, documentID string, outcome models.IngestOutcome) {
	ctx, _ = correlation.EnsureID(ctx)
	now := time.Now().UTC()

	if outcome.Err == nil && outcome.NotebookDocID == "" {
		// completed without a reference would break the status invariant
		outcome.Err = errors.New("ingestion produced no notebook reference")
	}

	var (
		applied bool
		err     error
	)
	if outcome.Err != nil {
		applied, err = s.repo.MarkFailed(ctx, documentID, outcome.Err.Error(), now)
	} else {
		applied, err = s.repo.MarkCompleted(ctx, documentID, outcome.NotebookDocID, outcome.ContentPreview, now)
	}
	if err != nil {
		s.logger.Error("failed to advance document", "error", err, "doc_id", documentID)
		return
	}
	if !applied {
		s.logger.Warn("ignoring transition attempt on terminal document", "doc_id", documentID)
		return
	}

	if outcome.Err != nil {
		s.logger.Warn("document processing failed", "doc_id", documentID, "error", outcome.Err)
		s.auditor.Record(ctx, audit.Entry{
			EventType:    models.AuditEventDocumentFailed,
			Description:  fmt.Sprintf("Document processing failed: %v", outcome.Err),
			ResourceType: "document",
			ResourceID:   documentID,
		})
		return
	}

	s.logger.Info("document processed", "doc_id", documentID, "notebook_doc_id", outcome.NotebookDocID)
	s.auditor.Record(ctx, audit.Entry{
		EventType:    models.AuditEventDocumentReady,
		Description:  "Document processed and added to notebook",
		ResourceType: "document",
		ResourceID:   documentID,
		Metadata:     map[string]any{"notebook_document_id": outcome.NotebookDocID},
	})
}

// RecordQuery bumps usage counters on a cited document. Only completed
// documents can be cited; anything else is an anomaly worth logging.
func (s *documentService) RecordQuery(ctx context.Context, documentID string) error {
	applied, err := s.repo.IncrementQueryCount(ctx, documentID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !applied {
		s.logger.Warn("query recorded against non-completed document", "doc_id", documentID)
		return utils.NewInvalidStateError("Document is not completed")
	}
	return nil
}

func (s *documentService) Get(ctx context.Context, documentID, callerID string) (*models.Document, error) {
	doc, err := s.ownedDocument(ctx, documentID, callerID)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *documentService) Status(ctx context.Context, documentID, callerID string) (*models.DocumentStatusResponse, error) {
	doc, err := s.ownedDocument(ctx, documentID, callerID)
	if err != nil {
		return nil, err
	}

	return &models.DocumentStatusResponse{
		ID:              doc.ID,
		Filename:        doc.OriginalFilename,
		Status:          doc.Status,
		ProcessingError: doc.ProcessingError,
		NotebookDocID:   doc.NotebookDocID,
	}, nil
}

func (s *documentService) List(ctx context.Context, ownerID, status string, page, pageSize int) (*models.DocumentList, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	docs, err := s.repo.List(ctx, ownerID, status, pageSize, (page-1)*pageSize)
	if err != nil {
		s.logger.Error("failed to list documents", "error", err, "owner_id", ownerID)
		return nil, utils.NewInternalError("Failed to list documents")
	}

	total, err := s.repo.Count(ctx, ownerID, status)
	if err != nil {
		s.logger.Error("failed to count documents", "error", err, "owner_id", ownerID)
		return nil, utils.NewInternalError("Failed to list documents")
	}

	return &models.DocumentList{
		Documents: docs,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
	}, nil
}

func (s *documentService) Update(ctx context.Context, documentID, callerID string, req *models.DocumentUpdateRequest) (*models.Document, error) {
	doc, err := s.ownedDocument(ctx, documentID, callerID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateInfo(ctx, doc.ID, req.Title, req.Description, time.Now().UTC()); err != nil {
		s.logger.Error("failed to update document", "error", err, "doc_id", documentID)
		return nil, utils.NewInternalError("Failed to update document")
	}

	s.auditor.Record(ctx, audit.Entry{
		EventType:    models.AuditEventDocumentUpdate,
		Description:  fmt.Sprintf("Document updated: %s", doc.OriginalFilename),
		ResourceType: "document",
		ResourceID:   doc.ID,
		UserID:       callerID,
	})

	return s.repo.GetByID(ctx, documentID)
}

// Retire soft-flags the document inactive. The row survives so audit entries
// and query sources keep valid references; the notebook copy is removed on a
// best-effort basis.
func (s *documentService) Retire(ctx context.Context, documentID, callerID string, isAdmin bool) error {
	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		s.logger.Error("failed to get document", "error", err, "doc_id", documentID)
		return utils.NewInternalError("Failed to retrieve document")
	}
	if doc == nil || !doc.IsActive {
		return utils.NewNotFoundError("Document not found")
	}
	if doc.OwnerID != callerID && !isAdmin {
		return utils.NewForbiddenError("Not allowed to retire this document")
	}

	if doc.NotebookDocID != nil {
		owner, err := s.users.GetByID(ctx, doc.OwnerID)
		if err == nil && owner != nil && owner.NotebookID != nil {
			if err := s.notebook.RemoveDocument(ctx, *owner.NotebookID, *doc.NotebookDocID); err != nil {
				s.logger.Warn("failed to remove document from notebook", "error", err, "doc_id", documentID)
			}
		}
	}

	if err := s.repo.Retire(ctx, documentID, time.Now().UTC()); err != nil {
		s.logger.Error("failed to retire document", "error", err, "doc_id", documentID)
		return utils.NewInternalError("Failed to retire document")
	}

	s.auditor.Record(ctx, audit.Entry{
		EventType:    models.AuditEventDocumentRetire,
		Description:  fmt.Sprintf("Document retired: %s", doc.OriginalFilename),
		ResourceType: "document",
		ResourceID:   documentID,
		UserID:       callerID,
	})

	s.logger.Info("document retired", "doc_id", documentID, "caller_id", callerID)
	return nil
}

func (s *documentService) Stats(ctx context.Context, ownerID string) (*models.DocumentStats, error) {
	docs, err := s.repo.ListAll(ctx, ownerID)
	if err != nil {
		s.logger.Error("failed to load documents for stats", "error", err, "owner_id", ownerID)
		return nil, utils.NewInternalError("Failed to compute statistics")
	}

	stats := &models.DocumentStats{
		TotalDocuments: len(docs),
		ByFileType:     map[string]int{},
		ByStatus:       map[string]int{},
	}
	for _, doc := range docs {
		stats.TotalSize += doc.FileSize
		stats.ByFileType[doc.FileType]++
		stats.ByStatus[doc.Status]++
	}

	recent := docs
	if len(recent) > 10 {
		recent = recent[:10]
	}
	stats.RecentUploads = recent

	return stats, nil
}

func (s *documentService) ownedDocument(ctx context.Context, documentID, callerID string) (*models.Document, error) {
	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		s.logger.Error("failed to get document", "error", err, "doc_id", documentID)
		return nil, utils.NewInternalError("Failed to retrieve document")
	}
	if doc == nil || !doc.IsActive || doc.OwnerID != callerID {
		// Not distinguishing "exists but not yours" keeps document ids
		// unenumerable.
		return nil, utils.NewNotFoundError("Document not found")
	}
	return doc, nil
}

// contentPreview cuts the text at maxLength, preferring a sentence boundary
// when one lands in the last 30% of the window.
func contentPreview(content string, maxLength int) string {
	if len(content) <= maxLength {
		return content
	}

	preview := content[:maxLength]
	lastSentenceEnd := max(
		strings.LastIndexByte(preview, '.'),
		strings.LastIndexByte(preview, '!'),
		strings.LastIndexByte(preview, '?'),
	)

	if lastSentenceEnd > maxLength*7/10 {
		return preview[:lastSentenceEnd+1]
	}
	return preview + "..."
}
