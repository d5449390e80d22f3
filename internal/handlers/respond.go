package handlers

import (
	"encoding/json"
	"net/http"

	"knowledgebase/internal/correlation"
	"knowledgebase/internal/utils"
)

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// RespondError renders the error taxonomy: the AppError body plus the
// request's correlation id so clients can report failures traceably.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := utils.AsAppError(err).WithCorrelation(correlation.FromContext(r.Context()))
	RespondJSON(w, appErr.StatusCode, appErr)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return utils.NewValidationError("Invalid JSON body")
	}
	return nil
}
