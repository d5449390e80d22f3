package handlers

import (
	"net/http"

	"knowledgebase/internal/repository"
	"knowledgebase/internal/services"
	"knowledgebase/internal/utils"
)

type AdminHandler struct {
	admin  services.AdminService
	logger *utils.Logger
}

func NewAdminHandler(admin services.AdminService, logger *utils.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

// AuditLogs lists the trail, filterable by correlation_id, user_id and
// event_type. Correlation id is the support entry point: clients report the
// id echoed on a failed response, and this endpoint resolves it.
func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	q := r.URL.Query()

	list, err := h.admin.AuditLogs(r.Context(), repository.AuditFilter{
		CorrelationID: q.Get("correlation_id"),
		UserID:        q.Get("user_id"),
		EventType:     q.Get("event_type"),
	}, page, pageSize)
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, list)
}

func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)

	list, err := h.admin.Users(r.Context(), page, pageSize)
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, list)
}

func (h *AdminHandler) SystemStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.SystemStats(r.Context())
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, stats)
}
