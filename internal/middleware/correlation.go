package middleware

import (
	"net/http"

	"knowledgebase/internal/correlation"
)

// Correlation accepts an inbound X-Correlation-ID or mints one, puts it on
// the request context and echoes it on the response. Everything downstream
// (logs, audit entries, notebook calls) carries the same id.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlation.Header)
		if id == "" {
			id = correlation.NewID()
		}

		ctx := correlation.WithID(r.Context(), id)
		w.Header().Set(correlation.Header, id)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
