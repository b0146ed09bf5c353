// Package gotrue talks to a GoTrue-compatible authentication server over REST
// and exposes each device's connection as an identity.Provider.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bytebank-ledger/internal/config"
	"github.com/bytebank-ledger/internal/domain/identity"
	"github.com/bytebank-ledger/internal/domain/shared"
)

// Client is the stateless REST client shared by every device session
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	verifier   *TokenVerifier
	logger     *slog.Logger
}

// NewClient creates a client from configuration. Access tokens are verified
// locally when a JWT secret is configured.
func NewClient(cfg *config.IdentityConfig, logger *slog.Logger) *Client {
	var verifier *TokenVerifier
	if cfg.JWTSecret != "" {
		verifier = NewTokenVerifier(cfg.JWTSecret)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		verifier:   verifier,
		logger:     logger,
	}
}

// Verifier returns the local token verifier, or nil when none is configured
func (c *Client) Verifier() *TokenVerifier {
	return c.verifier
}

type userPayload struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	CreatedAt    time.Time      `json:"created_at"`
	UserMetadata map[string]any `json:"user_metadata"`
}

type sessionPayload struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	User         *userPayload `json:"user"`
}

// signUpPayload is either a session (auto-confirm) or a bare user (confirmation pending)
type signUpPayload struct {
	sessionPayload
	userPayload
}

type errorPayload struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// APIError is a non-2xx answer from the auth server
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth server returned %d %s: %s", e.Status, e.Code, e.Message)
}

func (c *Client) signUp(ctx context.Context, email, password, fullName string) (*identity.User, *identity.Session, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"full_name": fullName},
	}

	var out signUpPayload
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "", body, &out); err != nil {
		return nil, nil, mapError("sign up", err)
	}

	if out.AccessToken != "" && out.sessionPayload.User != nil {
		session, err := c.toSession(&out.sessionPayload)
		if err != nil {
			return nil, nil, err
		}
		return &session.User, session, nil
	}

	user, err := toUser(&out.userPayload)
	if err != nil {
		return nil, nil, err
	}
	return user, nil, nil
}

func (c *Client) passwordGrant(ctx context.Context, email, password string) (*identity.Session, error) {
	var out sessionPayload
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body, &out); err != nil {
		return nil, mapError("sign in", err)
	}
	return c.toSession(&out)
}

func (c *Client) refreshGrant(ctx context.Context, refreshToken string) (*identity.Session, error) {
	var out sessionPayload
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body, &out); err != nil {
		return nil, mapError("refresh", err)
	}
	return c.toSession(&out)
}

func (c *Client) logout(ctx context.Context, accessToken string) error {
	if err := c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil); err != nil {
		return mapError("sign out", err)
	}
	return nil
}

func (c *Client) user(ctx context.Context, accessToken string) (*identity.User, error) {
	var out userPayload
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &out); err != nil {
		return nil, mapError("get user", err)
	}
	return toUser(&out)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode auth request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build auth request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read auth response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var payload errorPayload
		_ = json.Unmarshal(data, &payload)
		apiErr := &APIError{Status: resp.StatusCode, Code: payload.ErrorCode, Message: payload.Msg}
		if apiErr.Code == "" {
			apiErr.Code = payload.Error
		}
		if apiErr.Message == "" {
			apiErr.Message = payload.ErrorDescription
		}
		c.logger.Debug("Auth server rejected request", "path", strings.SplitN(path, "?", 2)[0], "status", resp.StatusCode, "code", apiErr.Code)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode auth response: %w", err)
	}
	return nil
}

// mapError folds auth server answers into the identity error vocabulary
func mapError(op string, err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && !errors.Is(err, context.Canceled) {
			return shared.NewTransientError(op, err)
		}
		return fmt.Errorf("%s failed: %w", op, err)
	}

	code := strings.ToLower(apiErr.Code)
	message := strings.ToLower(apiErr.Message)
	switch {
	case apiErr.Status >= http.StatusInternalServerError || apiErr.Status == http.StatusTooManyRequests:
		return shared.NewTransientError(op, err)
	case code == "email_not_confirmed" || strings.Contains(message, "email not confirmed"):
		return fmt.Errorf("%s: %w", op, identity.ErrEmailNotConfirmed)
	case code == "user_already_exists" || code == "email_exists" || strings.Contains(message, "already registered"):
		return fmt.Errorf("%s: %w", op, identity.ErrUserAlreadyRegistered)
	case op == "sign in" && (code == "invalid_grant" || code == "invalid_credentials"):
		return fmt.Errorf("%s: %w", op, identity.ErrInvalidCredentials)
	case apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden ||
		code == "invalid_grant" || code == "refresh_token_not_found" || code == "bad_jwt" || code == "session_not_found":
		return fmt.Errorf("%s: %w", op, identity.ErrInvalidToken)
	case apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnprocessableEntity:
		return shared.NewValidationError("credentials", apiErr.Message)
	default:
		return fmt.Errorf("%s failed: %w", op, err)
	}
}

func (c *Client) toSession(p *sessionPayload) (*identity.Session, error) {
	if p.AccessToken == "" || p.User == nil {
		return nil, errors.New("auth server returned an incomplete session")
	}

	user, err := toUser(p.User)
	if err != nil {
		return nil, err
	}

	if c.verifier != nil {
		claims, err := c.verifier.Verify(p.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("auth server issued an unverifiable token: %w", err)
		}
		if claims.Subject != user.ID.String() {
			return nil, fmt.Errorf("auth server issued a token for %s to %s: %w", claims.Subject, user.ID, identity.ErrInvalidToken)
		}
	}

	var expiresAt time.Time
	switch {
	case p.ExpiresAt > 0:
		expiresAt = time.Unix(p.ExpiresAt, 0).UTC()
	case p.ExpiresIn > 0:
		expiresAt = time.Now().UTC().Add(time.Duration(p.ExpiresIn) * time.Second)
	}

	return &identity.Session{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    expiresAt,
		User:         *user,
	}, nil
}

func toUser(p *userPayload) (*identity.User, error) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return nil, fmt.Errorf("auth server returned an invalid user id %q: %w", p.ID, err)
	}

	user := &identity.User{ID: id, Email: p.Email, CreatedAt: p.CreatedAt}
	if name, ok := p.UserMetadata["full_name"].(string); ok {
		user.FullName = name
	}
	return user, nil
}
