package router

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"knowledgebase/internal/handlers"
	"knowledgebase/internal/middleware"
	"knowledgebase/internal/services"
	"knowledgebase/internal/utils"
)

// New wires the HTTP surface. Auth endpoints, health and metrics are
// open; everything else requires a bearer token.
func New(
	authService services.AuthService,
	authHandler *handlers.AuthHandler,
	documentHandler *handlers.DocumentHandler,
	queryHandler *handlers.QueryHandler,
	adminHandler *handlers.AdminHandler,
	logger *utils.Logger,
) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Correlation)
	r.Use(middleware.Recovery(logger, handlers.RespondError))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		handlers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", authHandler.Register).Methods(http.MethodPost)
	auth.HandleFunc("/login", authHandler.Login).Methods(http.MethodPost)
	auth.HandleFunc("/refresh", authHandler.Refresh).Methods(http.MethodPost)

	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.Auth(authService, handlers.RespondError))

	protected.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost)
	protected.HandleFunc("/auth/me", authHandler.Me).Methods(http.MethodGet)
	protected.HandleFunc("/auth/me", authHandler.UpdateProfile).Methods(http.MethodPut)
	protected.HandleFunc("/auth/change-password", authHandler.ChangePassword).Methods(http.MethodPost)

	protected.HandleFunc("/documents/upload", documentHandler.Upload).Methods(http.MethodPost)
	protected.HandleFunc("/documents/stats/overview", documentHandler.Stats).Methods(http.MethodGet)
	protected.HandleFunc("/documents", documentHandler.List).Methods(http.MethodGet)
	protected.HandleFunc("/documents/{id}", documentHandler.Get).Methods(http.MethodGet)
	protected.HandleFunc("/documents/{id}", documentHandler.Update).Methods(http.MethodPut)
	protected.HandleFunc("/documents/{id}", documentHandler.Delete).Methods(http.MethodDelete)
	protected.HandleFunc("/documents/{id}/status", documentHandler.Status).Methods(http.MethodGet)

	protected.HandleFunc("/queries/execute", queryHandler.Execute).Methods(http.MethodPost)
	protected.HandleFunc("/queries/stats/overview", queryHandler.Stats).Methods(http.MethodGet)
	protected.HandleFunc("/queries/conversations/{id}", queryHandler.Conversation).Methods(http.MethodGet)
	protected.HandleFunc("/queries", queryHandler.List).Methods(http.MethodGet)
	protected.HandleFunc("/queries/{id}", queryHandler.Get).Methods(http.MethodGet)
	protected.HandleFunc("/queries/{id}/feedback", queryHandler.Feedback).Methods(http.MethodPut)

	admin := protected.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireAdmin(handlers.RespondError))
	admin.HandleFunc("/audit-logs", adminHandler.AuditLogs).Methods(http.MethodGet)
	admin.HandleFunc("/users", adminHandler.Users).Methods(http.MethodGet)
	admin.HandleFunc("/stats/system", adminHandler.SystemStats).Methods(http.MethodGet)

	return r
}
