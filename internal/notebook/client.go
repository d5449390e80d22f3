// Package notebook is the HTTP client for the external retrieval-generation
// service. The service is treated as opaque: possibly slow, possibly failing,
// authenticated with an access/refresh token pair owned by internal/session.
package notebook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"knowledgebase/internal/session"
	"knowledgebase/internal/utils"
)

// Failure categories of the generation service. Callers branch on these with
// errors.Is; the wrapped error keeps the detail.
var (
	ErrTimeout      = errors.New("notebook service timeout")
	ErrService      = errors.New("notebook service error")
	ErrInvalidInput = errors.New("notebook service rejected input")
)

type Client interface {
	CreateNotebook(ctx context.Context, displayName, description string) (string, error)
	AddDocument(ctx context.Context, notebookID string, content []byte, filename, mimeType string) (string, error)
	RemoveDocument(ctx context.Context, notebookID, documentID string) error
	Query(ctx context.Context, req *QueryRequest) (*QueryResult, error)
}

type QueryRequest struct {
	NotebookID     string
	QueryText      string
	ConversationID string
	DocumentRefs   []string
	MaxResults     int
	IncludeSources bool
}

type QueryResult struct {
	Answer     string         `json:"answer"`
	Sources    []Source       `json:"sources"`
	Metadata   map[string]any `json:"metadata"`
	TokensUsed int            `json:"tokens_used"`
}

type Source struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title,omitempty"`
	Excerpt    string  `json:"excerpt,omitempty"`
	Relevance  float64 `json:"relevance,omitempty"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type client struct {
	baseURL      string
	clientID     string
	clientSecret string
	timeout      time.Duration
	httpClient   *http.Client
	session      *session.Manager
	logger       *utils.Logger
}

func New(baseURL, clientID, clientSecret string, timeout time.Duration, logger *utils.Logger) Client {
	c := &client{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		timeout:      timeout,
		httpClient:   &http.Client{},
		logger:       logger.Component("notebook"),
	}
	c.session = session.NewManager(c.issueTokens, c.refreshTokens, logger)
	return c
}

func (c *client) CreateNotebook(ctx context.Context, displayName, description string) (string, error) {
	body := map[string]string{"display_name": displayName}
	if description != "" {
		body["description"] = description
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/notebooks", body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%w: notebook response missing id", ErrService)
	}

	return resp.ID, nil
}

func (c *client) AddDocument(ctx context.Context, notebookID string, content []byte, filename, mimeType string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := writer.WriteField("mime_type", mimeType); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}

	path := fmt.Sprintf("/notebooks/%s/documents", notebookID)
	respBody, err := c.do(ctx, http.MethodPost, path, buf.Bytes(), writer.FormDataContentType())
	if err != nil {
		return "", err
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("%w: malformed document response: %v", ErrService, err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%w: document response missing id", ErrService)
	}

	return resp.ID, nil
}

func (c *client) RemoveDocument(ctx context.Context, notebookID, documentID string) error {
	path := fmt.Sprintf("/notebooks/%s/documents/%s", notebookID, documentID)
	_, err := c.do(ctx, http.MethodDelete, path, nil, "")
	return err
}

func (c *client) Query(ctx context.Context, req *QueryRequest) (*QueryResult, error) {
	body := map[string]any{
		"query":           req.QueryText,
		"document_ids":    req.DocumentRefs,
		"max_results":     req.MaxResults,
		"include_sources": req.IncludeSources,
	}
	if req.ConversationID != "" {
		body["conversation_id"] = req.ConversationID
	}

	var result QueryResult
	path := fmt.Sprintf("/notebooks/%s/query", req.NotebookID)
	if err := c.doJSON(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (c *client) doJSON(ctx context.Context, method, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	respBody, err := c.do(ctx, method, path, data, "application/json")
	if err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%w: malformed response: %v", ErrService, err)
		}
	}

	return nil
}

// do performs one authenticated round trip with the configured timeout. On a
// 401 it asks the session manager for a refreshed token and retries exactly
// once; any second 401 is surfaced as-is.
func (c *client) do(ctx context.Context, method, path string, body []byte, contentType string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.session.Ensure(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrService, err)
	}

	respBody, status, err := c.roundTrip(ctx, method, path, body, contentType)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		if _, err := c.session.OnUnauthorized(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrService, err)
		}
		respBody, status, err = c.roundTrip(ctx, method, path, body, contentType)
		if err != nil {
			return nil, err
		}
	}

	switch {
	case status >= 200 && status < 300:
		return respBody, nil
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, errorDetail(respBody))
	default:
		c.logger.Error("notebook service error", "status", status, "path", path)
		return nil, fmt.Errorf("%w: status %d: %s", ErrService, status, errorDetail(respBody))
	}
}

func (c *client) roundTrip(ctx context.Context, method, path string, body []byte, contentType string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.session.Attach(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, 0, fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrService, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to read response: %v", ErrService, err)
	}

	return respBody, resp.StatusCode, nil
}

// issueTokens and refreshTokens talk to the issuer directly, bypassing
// Attach so an expired access token cannot recurse into its own refresh.

func (c *client) issueTokens(ctx context.Context) (*session.Tokens, error) {
	body, err := json.Marshal(map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
	})
	if err != nil {
		return nil, err
	}

	return c.postTokens(ctx, "/auth/login", body)
}

func (c *client) refreshTokens(ctx context.Context, refreshToken string) (*session.Tokens, error) {
	body, err := json.Marshal(map[string]string{
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, err
	}

	return c.postTokens(ctx, "/auth/refresh", body)
}

func (c *client) postTokens(ctx context.Context, path string, body []byte) (*session.Tokens, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: %s", session.ErrAuthInvalid, errorDetail(respBody))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("issuer returned status %d: %s", resp.StatusCode, errorDetail(respBody))
	}

	var tokens tokenResponse
	if err := json.Unmarshal(respBody, &tokens); err != nil {
		return nil, fmt.Errorf("malformed token response: %w", err)
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access token")
	}

	return &session.Tokens{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
	}, nil
}

func errorDetail(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
