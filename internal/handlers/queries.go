package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"knowledgebase/internal/middleware"
	"knowledgebase/internal/models"
	"knowledgebase/internal/services"
	"knowledgebase/internal/utils"
)

type QueryHandler struct {
	queries services.QueryService
	logger  *utils.Logger
}

func NewQueryHandler(queries services.QueryService, logger *utils.Logger) *QueryHandler {
	return &QueryHandler{queries: queries, logger: logger}
}

func (h *QueryHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req models.QuerySubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, err)
		return
	}

	query, err := h.queries.Submit(r.Context(), middleware.UserID(r.Context()), &req)
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, query)
}

func (h *QueryHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	conversationID := r.URL.Query().Get("conversation_id")

	queries, err := h.queries.History(r.Context(), middleware.UserID(r.Context()), conversationID, page, pageSize)
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"queries":   queries,
		"page":      page,
		"page_size": pageSize,
	})
}

func (h *QueryHandler) Get(w http.ResponseWriter, r *http.Request) {
	query, err := h.queries.Get(r.Context(), mux.Vars(r)["id"], middleware.UserID(r.Context()))
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, query)
}

func (h *QueryHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req models.QueryFeedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, err)
		return
	}

	query, err := h.queries.Rate(r.Context(), mux.Vars(r)["id"], middleware.UserID(r.Context()), &req)
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, query)
}

func (h *QueryHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	history, err := h.queries.Conversation(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, history)
}

func (h *QueryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queries.Stats(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, stats)
}
