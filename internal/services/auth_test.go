package services

import (
	"context"
	"testing"
	"time"

	"knowledgebase/internal/audit"
	"knowledgebase/internal/config"
	"knowledgebase/internal/models"
	"knowledgebase/internal/utils"
)

func newAuthFixture(t *testing.T) (AuthService, *fakeUserRepo, *fakeAuditRepo) {
	t.Helper()

	logger := utils.NewLogger("error")
	audits := &fakeAuditRepo{}
	users := newFakeUserRepo()

	cfg := &config.Config{
		JWTSecret:          "test-secret",
		AccessTokenExpiry:  time.Minute,
		RefreshTokenExpiry: time.Hour,
	}

	service := NewAuthService(users, &fakeNotebook{}, audit.NewRecorder(audits, logger), cfg, logger)
	return service, users, audits
}

func TestRegisterLoginRefreshFlow(t *testing.T) {
	service, _, audits := newAuthFixture(t)
	ctx := context.Background()

	user, err := service.Register(ctx, &models.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		FullName: "Alice Example",
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.NotebookID == nil || *user.NotebookID == "" {
		t.Error("registration should provision a notebook")
	}
	if user.HashedPassword == "correct-horse" {
		t.Fatal("password stored in clear")
	}

	tokens, err := service.Login(ctx, &models.LoginRequest{Username: "alice", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if tokens.TokenType != "bearer" || tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("unexpected token response: %+v", tokens)
	}

	claims, err := service.VerifyAccessToken(tokens.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccessToken failed: %v", err)
	}
	if claims.Subject != user.ID {
		t.Errorf("access token subject %s, want %s", claims.Subject, user.ID)
	}

	// a refresh token must not pass as an access token
	if _, err := service.VerifyAccessToken(tokens.RefreshToken); err == nil {
		t.Error("refresh token accepted as access token")
	}

	rotated, err := service.Refresh(ctx, &models.RefreshRequest{RefreshToken: tokens.RefreshToken})
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, err := service.VerifyAccessToken(rotated.AccessToken); err != nil {
		t.Errorf("rotated access token invalid: %v", err)
	}

	if entries := audits.byEvent(models.AuditEventLoginSuccess); len(entries) != 1 {
		t.Errorf("expected 1 login_success audit entry, got %d", len(entries))
	}
	if entries := audits.byEvent(models.AuditEventTokenRefresh); len(entries) != 1 {
		t.Errorf("expected 1 token_refresh audit entry, got %d", len(entries))
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	service, _, audits := newAuthFixture(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, &models.RegisterRequest{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "password123",
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, err := service.Login(ctx, &models.LoginRequest{Username: "bob", Password: "wrong"})
	if utils.AsAppError(err).Kind != utils.KindAuthInvalid {
		t.Fatalf("expected auth_invalid, got %v", err)
	}

	_, err = service.Login(ctx, &models.LoginRequest{Username: "nobody", Password: "wrong"})
	if utils.AsAppError(err).Kind != utils.KindAuthInvalid {
		t.Fatalf("expected auth_invalid for unknown user, got %v", err)
	}

	if entries := audits.byEvent(models.AuditEventLoginFailed); len(entries) != 2 {
		t.Errorf("expected 2 login_failed audit entries, got %d", len(entries))
	}
}

func TestRegisterValidation(t *testing.T) {
	service, _, _ := newAuthFixture(t)
	ctx := context.Background()

	cases := []models.RegisterRequest{
		{Username: "ab", Email: "a@b.c", Password: "password123"},
		{Username: "alice", Email: "not-an-email", Password: "password123"},
		{Username: "alice", Email: "a@b.c", Password: "short"},
	}
	for _, req := range cases {
		if _, err := service.Register(ctx, &req); utils.AsAppError(err).Kind != utils.KindValidation {
			t.Errorf("expected validation error for %+v, got %v", req, err)
		}
	}

	if _, err := service.Register(ctx, &models.RegisterRequest{
		Username: "carol", Email: "carol@example.com", Password: "password123",
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	_, err := service.Register(ctx, &models.RegisterRequest{
		Username: "carol", Email: "other@example.com", Password: "password123",
	})
	if utils.AsAppError(err).Kind != utils.KindValidation {
		t.Errorf("expected validation error for duplicate username, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	service, _, audits := newAuthFixture(t)
	ctx := context.Background()

	user, err := service.Register(ctx, &models.RegisterRequest{
		Username: "erin", Email: "erin@example.com", Password: "password123",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, err := service.UpdateProfile(ctx, user.ID, &models.ProfileUpdateRequest{}); utils.AsAppError(err).Kind != utils.KindValidation {
		t.Errorf("empty update should be rejected, got %v", err)
	}

	badEmail := "not-an-email"
	if _, err := service.UpdateProfile(ctx, user.ID, &models.ProfileUpdateRequest{Email: &badEmail}); utils.AsAppError(err).Kind != utils.KindValidation {
		t.Errorf("expected validation error for malformed email, got %v", err)
	}

	newEmail := "Erin.New@Example.COM"
	newName := "Erin Example"
	updated, err := service.UpdateProfile(ctx, user.ID, &models.ProfileUpdateRequest{Email: &newEmail, FullName: &newName})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if updated.Email != "erin.new@example.com" {
		t.Errorf("email not normalized: %q", updated.Email)
	}
	if updated.FullName != "Erin Example" {
		t.Errorf("full name %q, want Erin Example", updated.FullName)
	}

	if entries := audits.byEvent(models.AuditEventProfileUpdate); len(entries) != 1 {
		t.Errorf("expected 1 profile_update audit entry, got %d", len(entries))
	}
}

func TestChangePassword(t *testing.T) {
	service, _, audits := newAuthFixture(t)
	ctx := context.Background()

	user, err := service.Register(ctx, &models.RegisterRequest{
		Username: "frank", Email: "frank@example.com", Password: "password123",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	err = service.ChangePassword(ctx, user.ID, &models.PasswordChangeRequest{
		CurrentPassword: "password123", NewPassword: "short",
	})
	if utils.AsAppError(err).Kind != utils.KindValidation {
		t.Errorf("expected validation error for short password, got %v", err)
	}

	err = service.ChangePassword(ctx, user.ID, &models.PasswordChangeRequest{
		CurrentPassword: "wrong-password", NewPassword: "password456",
	})
	if utils.AsAppError(err).Kind != utils.KindAuthInvalid {
		t.Errorf("expected auth_invalid for wrong current password, got %v", err)
	}

	if err := service.ChangePassword(ctx, user.ID, &models.PasswordChangeRequest{
		CurrentPassword: "password123", NewPassword: "password456",
	}); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	if _, err := service.Login(ctx, &models.LoginRequest{Username: "frank", Password: "password123"}); err == nil {
		t.Error("old password still accepted after change")
	}
	if _, err := service.Login(ctx, &models.LoginRequest{Username: "frank", Password: "password456"}); err != nil {
		t.Errorf("new password rejected: %v", err)
	}

	if entries := audits.byEvent(models.AuditEventPasswordChange); len(entries) != 1 {
		t.Errorf("expected 1 password_change audit entry, got %d", len(entries))
	}
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	logger := utils.NewLogger("error")
	users := newFakeUserRepo()
	cfg := &config.Config{
		JWTSecret:          "test-secret",
		AccessTokenExpiry:  -time.Minute,
		RefreshTokenExpiry: -time.Minute,
	}
	service := NewAuthService(users, &fakeNotebook{}, audit.NewRecorder(&fakeAuditRepo{}, logger), cfg, logger)

	ctx := context.Background()
	if _, err := service.Register(ctx, &models.RegisterRequest{
		Username: "dave", Email: "dave@example.com", Password: "password123",
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	tokens, err := service.Login(ctx, &models.LoginRequest{Username: "dave", Password: "password123"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	_, err = service.Refresh(ctx, &models.RefreshRequest{RefreshToken: tokens.RefreshToken})
	if utils.AsAppError(err).Kind != utils.KindAuthExpired {
		t.Fatalf("expected auth_expired, got %v", err)
	}
}
