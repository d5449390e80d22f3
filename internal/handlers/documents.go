package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"knowledgebase/internal/middleware"
	"knowledgebase/internal/models"
	"knowledgebase/internal/services"
	"knowledgebase/internal/utils"
)

type DocumentHandler struct {
	documents   services.DocumentService
	maxFileSize int64
	logger      *utils.Logger
}

func NewDocumentHandler(documents services.DocumentService, maxFileSize int64, logger *utils.Logger) *DocumentHandler {
	return &DocumentHandler{documents: documents, maxFileSize: maxFileSize, logger: logger}
}

// Upload accepts a multipart form with a "file" part plus optional title and
// description fields. The request body is capped a bit above the configured
// file limit to leave room for the multipart framing.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+1<<20)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			RespondError(w, r, utils.NewValidationError("Uploaded file is too large"))
			return
		}
		RespondError(w, r, utils.NewValidationError("Request must be multipart/form-data with a file"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		RespondError(w, r, utils.NewValidationError("A 'file' part is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		RespondError(w, r, utils.NewValidationError("Failed to read uploaded file"))
		return
	}

	req := &models.UploadRequest{
		File:        data,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
	}

	resp, err := h.documents.Upload(r.Context(), middleware.UserID(r.Context()), req)
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusAccepted, resp)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	status := r.URL.Query().Get("status")

	list, err := h.documents.List(r.Context(), middleware.UserID(r.Context()), status, page, pageSize)
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, list)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.documents.Get(r.Context(), mux.Vars(r)["id"], middleware.UserID(r.Context()))
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.documents.Status(r.Context(), mux.Vars(r)["id"], middleware.UserID(r.Context()))
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, status)
}

func (h *DocumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.DocumentUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, err)
		return
	}
	if req.Title == nil && req.Description == nil {
		RespondError(w, r, utils.NewValidationError("Nothing to update"))
		return
	}

	doc, err := h.documents.Update(r.Context(), mux.Vars(r)["id"], middleware.UserID(r.Context()), &req)
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	err := h.documents.Retire(ctx, mux.Vars(r)["id"], middleware.UserID(ctx), middleware.IsAdmin(ctx))
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"message": "Document retired"})
}

func (h *DocumentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.documents.Stats(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, stats)
}

func pagination(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return page, pageSize
}
