package middleware

import (
	"context"
	"net/http"
	"strings"

	"knowledgebase/internal/services"
	"knowledgebase/internal/utils"
)

type contextKey string

const (
	userIDKey  contextKey = "user_id"
	isAdminKey contextKey = "is_admin"
)

// UserID returns the authenticated user id, or "" outside an authenticated
// request.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

func IsAdmin(ctx context.Context) bool {
	admin, _ := ctx.Value(isAdminKey).(bool)
	return admin
}

// Auth validates the bearer token and stashes the caller's identity on the
// request context.
func Auth(auth services.AuthService, respond func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				respond(w, r, utils.NewAuthInvalidError("Authorization header required"))
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				respond(w, r, utils.NewAuthInvalidError("Authorization header must be a bearer token"))
				return
			}

			claims, err := auth.VerifyAccessToken(token)
			if err != nil {
				respond(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.Subject)
			ctx = context.WithValue(ctx, isAdminKey, claims.IsAdmin)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin gates a subtree on the admin claim. Must run after Auth.
func RequireAdmin(respond func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsAdmin(r.Context()) {
				respond(w, r, utils.NewForbiddenError("Admin privileges required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
