package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"knowledgebase/internal/audit"
	"knowledgebase/internal/config"
	"knowledgebase/internal/correlation"
	"knowledgebase/internal/handlers"
	"knowledgebase/internal/middleware"
	"knowledgebase/internal/models"
	"knowledgebase/internal/repository"
	"knowledgebase/internal/services"
	"knowledgebase/internal/utils"
)

type nopUserRepo struct{}

func (nopUserRepo) Create(context.Context, *models.User) error { return nil }
func (nopUserRepo) GetByID(context.Context, string) (*models.User, error) {
	return &models.User{ID: "user-1", IsActive: true}, nil
}
func (nopUserRepo) GetByUsername(context.Context, string) (*models.User, error) { return nil, nil }
func (nopUserRepo) ExistsByUsernameOrEmail(context.Context, string, string) (bool, error) {
	return false, nil
}
func (nopUserRepo) List(context.Context, int, int) ([]*models.User, error) { return nil, nil }
func (nopUserRepo) Count(context.Context) (int, error)                     { return 0, nil }
func (nopUserRepo) UpdateProfile(context.Context, string, *string, *string, time.Time) error {
	return nil
}
func (nopUserRepo) UpdatePassword(context.Context, string, string, time.Time) error { return nil }

type nopAuditRepo struct{}

func (nopAuditRepo) Insert(context.Context, *models.AuditEntry) error { return nil }
func (nopAuditRepo) List(context.Context, repository.AuditFilter, int, int) ([]*models.AuditEntry, error) {
	return nil, nil
}
func (nopAuditRepo) Count(context.Context, repository.AuditFilter) (int, error) { return 0, nil }

// loginUserRepo serves one fixed user for login round trips.
type loginUserRepo struct {
	user *models.User
}

func (r loginUserRepo) Create(context.Context, *models.User) error { return nil }
func (r loginUserRepo) GetByID(context.Context, string) (*models.User, error) {
	return r.user, nil
}
func (r loginUserRepo) GetByUsername(context.Context, string) (*models.User, error) {
	return r.user, nil
}
func (r loginUserRepo) ExistsByUsernameOrEmail(context.Context, string, string) (bool, error) {
	return true, nil
}
func (r loginUserRepo) List(context.Context, int, int) ([]*models.User, error) { return nil, nil }
func (r loginUserRepo) Count(context.Context) (int, error)                     { return 1, nil }
func (r loginUserRepo) UpdateProfile(context.Context, string, *string, *string, time.Time) error {
	return nil
}
func (r loginUserRepo) UpdatePassword(context.Context, string, string, time.Time) error { return nil }

var _ repository.UserRepository = nopUserRepo{}
var _ repository.UserRepository = loginUserRepo{}
var _ repository.AuditRepository = nopAuditRepo{}

func testAuthService() services.AuthService {
	logger := utils.NewLogger("error")
	cfg := &config.Config{
		JWTSecret:          "test-secret",
		AccessTokenExpiry:  time.Minute,
		RefreshTokenExpiry: time.Hour,
	}
	return services.NewAuthService(nopUserRepo{}, nil, audit.NewRecorder(nopAuditRepo{}, logger), cfg, logger)
}

func TestCorrelationMintsAndEchoesID(t *testing.T) {
	var seen string
	handler := middleware.Correlation(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = correlation.FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("no correlation id on the request context")
	}
	if got := rec.Header().Get(correlation.Header); got != seen {
		t.Errorf("response header %q, context id %q", got, seen)
	}
}

func TestCorrelationKeepsInboundID(t *testing.T) {
	var seen string
	handler := middleware.Correlation(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = correlation.FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(correlation.Header, "inbound-id")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "inbound-id" {
		t.Errorf("inbound id replaced with %q", seen)
	}
}

func TestAuthRejectsMissingOrMalformedHeader(t *testing.T) {
	handler := middleware.Auth(testAuthService(), handlers.RespondError)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached without credentials")
	}))

	for _, header := range []string{"", "Basic abc", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status %d, want 401", header, rec.Code)
		}
	}
}

func TestAuthPutsIdentityOnContext(t *testing.T) {
	auth := testAuthService()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	repo := loginUserRepo{user: &models.User{
		ID:             "user-1",
		Username:       "alice",
		HashedPassword: string(hash),
		IsAdmin:        true,
		IsActive:       true,
	}}

	logger := utils.NewLogger("error")
	cfg := &config.Config{
		JWTSecret:          "test-secret",
		AccessTokenExpiry:  time.Minute,
		RefreshTokenExpiry: time.Hour,
	}
	auth = services.NewAuthService(repo, nil, audit.NewRecorder(nopAuditRepo{}, logger), cfg, logger)

	tokens, err := auth.Login(context.Background(), &models.LoginRequest{Username: "alice", Password: "password123"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	handler := middleware.Auth(auth, handlers.RespondError)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := middleware.UserID(r.Context()); got != "user-1" {
			t.Errorf("UserID = %q, want user-1", got)
		}
		if !middleware.IsAdmin(r.Context()) {
			t.Error("IsAdmin = false, want true")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status %d, want 200", rec.Code)
	}
}

func TestRequireAdminRejectsNonAdmins(t *testing.T) {
	auth := testAuthService()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}

	chain := func(user *models.User) (*httptest.ResponseRecorder, bool) {
		logger := utils.NewLogger("error")
		cfg := &config.Config{
			JWTSecret:          "test-secret",
			AccessTokenExpiry:  time.Minute,
			RefreshTokenExpiry: time.Hour,
		}
		auth = services.NewAuthService(loginUserRepo{user: user}, nil, audit.NewRecorder(nopAuditRepo{}, logger), cfg, logger)

		tokens, err := auth.Login(context.Background(), &models.LoginRequest{Username: user.Username, Password: "password123"})
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}

		reached := false
		handler := middleware.Auth(auth, handlers.RespondError)(
			middleware.RequireAdmin(handlers.RespondError)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
			})))

		req := httptest.NewRequest(http.MethodGet, "/admin/audit-logs", nil)
		req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec, reached
	}

	rec, reached := chain(&models.User{
		ID: "user-1", Username: "mallory", HashedPassword: string(hash), IsActive: true,
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-admin status %d, want 403", rec.Code)
	}
	if reached {
		t.Error("non-admin reached the admin handler")
	}

	rec, reached = chain(&models.User{
		ID: "user-2", Username: "root", HashedPassword: string(hash), IsAdmin: true, IsActive: true,
	})
	if rec.Code != http.StatusOK {
		t.Errorf("admin status %d, want 200", rec.Code)
	}
	if !reached {
		t.Error("admin blocked from the admin handler")
	}
}

func TestRecoveryConvertsPanic(t *testing.T) {
	logger := utils.NewLogger("error")
	handler := middleware.Recovery(logger, handlers.RespondError)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status %d, want 500", rec.Code)
	}
}
