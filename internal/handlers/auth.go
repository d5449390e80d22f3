package handlers

import (
	"net/http"

	"knowledgebase/internal/middleware"
	"knowledgebase/internal/models"
	"knowledgebase/internal/services"
	"knowledgebase/internal/utils"
)

type AuthHandler struct {
	auth   services.AuthService
	logger *utils.Logger
}

func NewAuthHandler(auth services.AuthService, logger *utils.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, err)
		return
	}

	user, err := h.auth.Register(r.Context(), &req)
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, err)
		return
	}

	tokens, err := h.auth.Login(r.Context(), &req)
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, err)
		return
	}
	if req.RefreshToken == "" {
		RespondError(w, r, utils.NewValidationError("refresh_token is required"))
		return
	}

	tokens, err := h.auth.Refresh(r.Context(), &req)
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.auth.Logout(r.Context(), middleware.UserID(r.Context()))
	RespondJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Me(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.ProfileUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, err)
		return
	}

	user, err := h.auth.UpdateProfile(r.Context(), middleware.UserID(r.Context()), &req)
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req models.PasswordChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, err)
		return
	}

	if err := h.auth.ChangePassword(r.Context(), middleware.UserID(r.Context()), &req); err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"message": "Password changed"})
}
