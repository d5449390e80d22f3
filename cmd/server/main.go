package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"knowledgebase/internal/audit"
	"knowledgebase/internal/config"
	"knowledgebase/internal/db"
	"knowledgebase/internal/handlers"
	"knowledgebase/internal/notebook"
	"knowledgebase/internal/repository"
	"knowledgebase/internal/router"
	"knowledgebase/internal/services"
	"knowledgebase/internal/storage"
	"knowledgebase/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.NewLogger("info").Fatal("failed to load config", "error", err)
	}

	logger := utils.NewLogger(cfg.LogLevel)

	if err := db.RunMigrations(cfg.DatabaseFile); err != nil {
		logger.Fatal("failed to run migrations", "error", err)
	}

	database, err := db.NewSQLiteDB(cfg.DatabaseFile)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close()

	store, err := storage.NewS3Storage(cfg)
	if err != nil {
		logger.Fatal("failed to initialize object storage", "error", err)
	}

	userRepo := repository.NewUserRepository(database)
	documentRepo := repository.NewDocumentRepository(database)
	queryRepo := repository.NewQueryRepository(database)
	auditRepo := repository.NewAuditRepository(database)

	auditor := audit.NewRecorder(auditRepo, logger)

	notebookClient := notebook.New(
		cfg.NotebookBaseURL,
		cfg.NotebookClientID,
		cfg.NotebookClientSecret,
		cfg.NotebookTimeout,
		logger,
	)

	authService := services.NewAuthService(userRepo, notebookClient, auditor, cfg, logger)
	documentService := services.NewDocumentService(documentRepo, userRepo, store, notebookClient, auditor, cfg, logger)
	queryService := services.NewQueryService(queryRepo, documentRepo, userRepo, documentService, notebookClient, auditor, logger)
	adminService := services.NewAdminService(auditRepo, userRepo, documentRepo, queryRepo, logger)

	authHandler := handlers.NewAuthHandler(authService, logger)
	documentHandler := handlers.NewDocumentHandler(documentService, cfg.MaxFileSize, logger)
	queryHandler := handlers.NewQueryHandler(queryService, logger)
	adminHandler := handlers.NewAdminHandler(adminService, logger)

	r := router.New(authService, authHandler, documentHandler, queryHandler, adminHandler, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}

	logger.Info("server stopped")
}
