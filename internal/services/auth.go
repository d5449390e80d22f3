package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"knowledgebase/internal/audit"
	"knowledgebase/internal/config"
	"knowledgebase/internal/models"
	"knowledgebase/internal/notebook"
	"knowledgebase/internal/repository"
	"knowledgebase/internal/utils"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims carried by both access and refresh tokens. TokenType keeps a
// refresh token from being replayed as an access token.
type Claims struct {
	TokenType string `json:"type"`
	IsAdmin   bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

type AuthService interface {
	Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, req *models.LoginRequest) (*models.TokenResponse, error)
	Refresh(ctx context.Context, req *models.RefreshRequest) (*models.TokenResponse, error)
	Logout(ctx context.Context, userID string)
	Me(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, req *models.ProfileUpdateRequest) (*models.User, error)
	ChangePassword(ctx context.Context, userID string, req *models.PasswordChangeRequest) error
	VerifyAccessToken(tokenString string) (*Claims, error)
}

type authService struct {
	users    repository.UserRepository
	notebook notebook.Client
	auditor  *audit.Recorder
	logger   *utils.Logger

	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

func NewAuthService(
	users repository.UserRepository,
	nb notebook.Client,
	auditor *audit.Recorder,
	cfg *config.Config,
	logger *utils.Logger,
) AuthService {
	return &authService{
		users:         users,
		notebook:      nb,
		auditor:       auditor,
		logger:        logger.Component("auth"),
		secret:        []byte(cfg.JWTSecret),
		accessExpiry:  cfg.AccessTokenExpiry,
		refreshExpiry: cfg.RefreshTokenExpiry,
	}
}

func (s *authService) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(strings.ToLower(req.Email))

	if len(username) < 3 {
		return nil, utils.NewValidationError("Username must be at least 3 characters")
	}
	if !strings.Contains(email, "@") {
		return nil, utils.NewValidationError("A valid email address is required")
	}
	if len(req.Password) < 8 {
		return nil, utils.NewValidationError("Password must be at least 8 characters")
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		s.logger.Error("failed to check existing users", "error", err)
		return nil, utils.NewInternalError("Failed to register user")
	}
	if exists {
		return nil, utils.NewValidationError("Username or email is already registered")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("failed to hash password", "error", err)
		return nil, utils.NewInternalError("Failed to register user")
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:             utils.GenerateID(),
		Username:       username,
		Email:          email,
		FullName:       strings.TrimSpace(req.FullName),
		HashedPassword: string(hashed),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// Provision the user's notebook up front. Registration still succeeds
	// if the notebook service is down; ingestion reports the gap later.
	notebookID, err := s.notebook.CreateNotebook(ctx,
		fmt.Sprintf("%s's Knowledge Base", username),
		fmt.Sprintf("Documents for user %s", username))
	if err != nil {
		s.logger.Warn("failed to provision notebook", "error", err, "username", username)
	} else {
		user.NotebookID = &notebookID
	}

	if err := s.users.Create(ctx, user); err != nil {
		s.logger.Error("failed to create user", "error", err, "username", username)
		return nil, utils.NewInternalError("Failed to register user")
	}

	s.auditor.Record(ctx, audit.Entry{
		EventType:    models.AuditEventUserRegistration,
		Description:  fmt.Sprintf("User registered: %s", username),
		ResourceType: "user",
		ResourceID:   user.ID,
		UserID:       user.ID,
	})

	s.logger.Info("user registered", "user_id", user.ID, "username", username)
	return user, nil
}

func (s *authService) Login(ctx context.Context, req *models.LoginRequest) (*models.TokenResponse, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		s.logger.Error("failed to load user", "error", err)
		return nil, utils.NewInternalError("Failed to log in")
	}

	if user == nil || !user.IsActive ||
		bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)) != nil {
		s.auditor.Record(ctx, audit.Entry{
			EventType:   models.AuditEventLoginFailed,
			Description: fmt.Sprintf("Failed login attempt for username: %s", req.Username),
		})
		return nil, utils.NewAuthInvalidError("Invalid username or password")
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		s.logger.Error("failed to issue tokens", "error", err, "user_id", user.ID)
		return nil, utils.NewInternalError("Failed to log in")
	}

	s.auditor.Record(ctx, audit.Entry{
		EventType:    models.AuditEventLoginSuccess,
		Description:  fmt.Sprintf("User logged in: %s", user.Username),
		ResourceType: "user",
		ResourceID:   user.ID,
		UserID:       user.ID,
	})

	s.logger.Info("user logged in", "user_id", user.ID, "username", user.Username)
	return tokens, nil
}

// Refresh rotates the token pair. The presented refresh token is validated
// for signature, expiry and type; a stale or malformed one ends the session.
func (s *authService) Refresh(ctx context.Context, req *models.RefreshRequest) (*models.TokenResponse, error) {
	claims, err := s.parseToken(req.RefreshToken)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeRefresh {
		return nil, utils.NewAuthInvalidError("Not a refresh token")
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		s.logger.Error("failed to load user", "error", err, "user_id", claims.Subject)
		return nil, utils.NewInternalError("Failed to refresh session")
	}
	if user == nil || !user.IsActive {
		return nil, utils.NewAuthInvalidError("Account is no longer active")
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		s.logger.Error("failed to issue tokens", "error", err, "user_id", user.ID)
		return nil, utils.NewInternalError("Failed to refresh session")
	}

	s.auditor.Record(ctx, audit.Entry{
		EventType:    models.AuditEventTokenRefresh,
		Description:  "Token pair refreshed",
		ResourceType: "user",
		ResourceID:   user.ID,
		UserID:       user.ID,
	})

	return tokens, nil
}

// Logout only leaves an audit mark. Tokens are stateless, so the client
// discards them; nothing is revoked server side.
func (s *authService) Logout(ctx context.Context, userID string) {
	s.auditor.Record(ctx, audit.Entry{
		EventType:    models.AuditEventLogout,
		Description:  "User logged out",
		ResourceType: "user",
		ResourceID:   userID,
		UserID:       userID,
	})
}

func (s *authService) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load user", "error", err, "user_id", userID)
		return nil, utils.NewInternalError("Failed to load profile")
	}
	if user == nil || !user.IsActive {
		return nil, utils.NewNotFoundError("User not found")
	}
	return user, nil
}

func (s *authService) UpdateProfile(ctx context.Context, userID string, req *models.ProfileUpdateRequest) (*models.User, error) {
	if req.Email == nil && req.FullName == nil {
		return nil, utils.NewValidationError("Nothing to update")
	}

	var email *string
	if req.Email != nil {
		normalized := strings.TrimSpace(strings.ToLower(*req.Email))
		if !strings.Contains(normalized, "@") {
			return nil, utils.NewValidationError("A valid email address is required")
		}
		email = &normalized
	}

	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateProfile(ctx, user.ID, email, req.FullName, time.Now().UTC()); err != nil {
		s.logger.Error("failed to update profile", "error", err, "user_id", userID)
		return nil, utils.NewInternalError("Failed to update profile")
	}

	s.auditor.Record(ctx, audit.Entry{
		EventType:    models.AuditEventProfileUpdate,
		Description:  "Profile updated",
		ResourceType: "user",
		ResourceID:   userID,
		UserID:       userID,
	})

	return s.users.GetByID(ctx, userID)
}

// ChangePassword re-verifies the current password before accepting a new one,
// so a stolen access token alone cannot rotate the credential.
func (s *authService) ChangePassword(ctx context.Context, userID string, req *models.PasswordChangeRequest) error {
	if len(req.NewPassword) < 8 {
		return utils.NewValidationError("Password must be at least 8 characters")
	}

	user, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.CurrentPassword)) != nil {
		return utils.NewAuthInvalidError("Current password is incorrect")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("failed to hash password", "error", err)
		return utils.NewInternalError("Failed to change password")
	}

	if err := s.users.UpdatePassword(ctx, user.ID, string(hashed), time.Now().UTC()); err != nil {
		s.logger.Error("failed to change password", "error", err, "user_id", userID)
		return utils.NewInternalError("Failed to change password")
	}

	s.auditor.Record(ctx, audit.Entry{
		EventType:    models.AuditEventPasswordChange,
		Description:  "Password changed",
		ResourceType: "user",
		ResourceID:   userID,
		UserID:       userID,
	})

	return nil
}

// VerifyAccessToken validates a bearer token presented to the API.
func (s *authService) VerifyAccessToken(tokenString string) (*Claims, error) {
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, utils.NewAuthInvalidError("Not an access token")
	}
	return claims, nil
}

func (s *authService) parseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, utils.NewAuthExpiredError("Token has expired")
		}
		return nil, utils.NewAuthInvalidError("Invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, utils.NewAuthInvalidError("Invalid token")
	}
	return claims, nil
}

func (s *authService) issueTokens(user *models.User) (*models.TokenResponse, error) {
	now := time.Now().UTC()

	access, err := s.signToken(user, tokenTypeAccess, now, s.accessExpiry)
	if err != nil {
		return nil, err
	}
	refresh, err := s.signToken(user, tokenTypeRefresh, now, s.refreshExpiry)
	if err != nil {
		return nil, err
	}

	return &models.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(s.accessExpiry.Seconds()),
	}, nil
}

func (s *authService) signToken(user *models.User, tokenType string, now time.Time, expiry time.Duration) (string, error) {
	claims := Claims{
		TokenType: tokenType,
		IsAdmin:   user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
