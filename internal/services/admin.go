package services

import (
	"context"

	"knowledgebase/internal/models"
	"knowledgebase/internal/repository"
	"knowledgebase/internal/utils"
)

// AdminService serves the operator surface: the audit trail, the user roster
// and platform-wide counters. Read-only; admin-gated at the router.
type AdminService interface {
	AuditLogs(ctx context.Context, filter repository.AuditFilter, page, pageSize int) (*models.AuditLogList, error)
	Users(ctx context.Context, page, pageSize int) (*models.UserList, error)
	SystemStats(ctx context.Context) (*models.SystemStats, error)
}

type adminService struct {
	audits  repository.AuditRepository
	users   repository.UserRepository
	docs    repository.DocumentRepository
	queries repository.QueryRepository
	logger  *utils.Logger
}

func NewAdminService(
	audits repository.AuditRepository,
	users repository.UserRepository,
	docs repository.DocumentRepository,
	queries repository.QueryRepository,
	logger *utils.Logger,
) AdminService {
	return &adminService{
		audits:  audits,
		users:   users,
		docs:    docs,
		queries: queries,
		logger:  logger.Component("admin"),
	}
}

// AuditLogs pages through the trail, newest first. Filtering by correlation
// id is the support path: one id stitches a request's entries together.
func (s *adminService) AuditLogs(ctx context.Context, filter repository.AuditFilter, page, pageSize int) (*models.AuditLogList, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	entries, err := s.audits.List(ctx, filter, pageSize, (page-1)*pageSize)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		return nil, utils.NewInternalError("Failed to list audit entries")
	}

	total, err := s.audits.Count(ctx, filter)
	if err != nil {
		s.logger.Error("failed to count audit entries", "error", err)
		return nil, utils.NewInternalError("Failed to list audit entries")
	}

	return &models.AuditLogList{
		Entries:  entries,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func (s *adminService) Users(ctx context.Context, page, pageSize int) (*models.UserList, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	users, err := s.users.List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		s.logger.Error("failed to list users", "error", err)
		return nil, utils.NewInternalError("Failed to list users")
	}

	total, err := s.users.Count(ctx)
	if err != nil {
		s.logger.Error("failed to count users", "error", err)
		return nil, utils.NewInternalError("Failed to list users")
	}

	return &models.UserList{
		Users:    users,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func (s *adminService) SystemStats(ctx context.Context) (*models.SystemStats, error) {
	users, err := s.users.Count(ctx)
	if err != nil {
		s.logger.Error("failed to count users", "error", err)
		return nil, utils.NewInternalError("Failed to compute system statistics")
	}

	docs, err := s.docs.CountAll(ctx)
	if err != nil {
		s.logger.Error("failed to count documents", "error", err)
		return nil, utils.NewInternalError("Failed to compute system statistics")
	}

	queries, err := s.queries.CountAll(ctx)
	if err != nil {
		s.logger.Error("failed to count queries", "error", err)
		return nil, utils.NewInternalError("Failed to compute system statistics")
	}

	return &models.SystemStats{
		TotalUsers:     users,
		TotalDocuments: docs,
		TotalQueries:   queries,
	}, nil
}
