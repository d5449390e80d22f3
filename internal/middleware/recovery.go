package middleware

import (
	"net/http"

	"knowledgebase/internal/correlation"
	"knowledgebase/internal/utils"
)

// Recovery turns handler panics into a 500 instead of killing the server.
func Recovery(logger *utils.Logger, respond func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						"panic", rec,
						"method", r.Method,
						"path", r.URL.Path,
						"correlation_id", correlation.FromContext(r.Context()),
					)
					respond(w, r, utils.NewInternalError("Internal server error"))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
