package gotrue

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bytebank-ledger/internal/config"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signToken(t *testing.T, secret string, userID uuid.UUID, ttl time.Duration) string {
	t.Helper()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Email: "ana@example.com",
		Role:  "authenticated",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

// fakeAuthServer is a minimal GoTrue stand-in. Handlers may be swapped per test.
type fakeAuthServer struct {
	t      *testing.T
	userID uuid.UUID

	mu       sync.Mutex
	calls    map[string]int
	handlers map[string]http.HandlerFunc
}

func newFakeAuthServer(t *testing.T) (*fakeAuthServer, *httptest.Server) {
	f := &fakeAuthServer{
		t:        t,
		userID:   uuid.New(),
		calls:    make(map[string]int),
		handlers: make(map[string]http.HandlerFunc),
	}

	f.handlers["/auth/v1/token"] = func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch r.URL.Query().Get("grant_type") {
		case "password":
			if body["password"] != "correct-horse" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error_code": "invalid_credentials", "msg": "Invalid login credentials"})
				return
			}
		case "refresh_token":
			if body["refresh_token"] != "refresh-1" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error_code": "refresh_token_not_found", "msg": "Invalid Refresh Token"})
				return
			}
		}
		writeJSON(w, http.StatusOK, f.session(time.Hour))
	}
	f.handlers["/auth/v1/signup"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, f.session(time.Hour))
	}
	f.handlers["/auth/v1/user"] = func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error_code": "bad_jwt", "msg": "missing token"})
			return
		}
		writeJSON(w, http.StatusOK, f.user())
	}
	f.handlers["/auth/v1/logout"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "anon-key" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "No API key found in request"})
			return
		}

		f.mu.Lock()
		f.calls[r.URL.Path]++
		h, ok := f.handlers[r.URL.Path]
		f.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAuthServer) handle(path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = h
}

func (f *fakeAuthServer) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeAuthServer) user() map[string]any {
	return map[string]any{
		"id":            f.userID.String(),
		"email":         "ana@example.com",
		"created_at":    "2024-05-01T12:00:00Z",
		"user_metadata": map[string]any{"full_name": "Ana Souza"},
	}
}

func (f *fakeAuthServer) session(ttl time.Duration) map[string]any {
	return map[string]any{
		"access_token":  signToken(f.t, testSecret, f.userID, ttl),
		"refresh_token": "refresh-1",
		"expires_in":    int64(ttl.Seconds()),
		"expires_at":    time.Now().Add(ttl).Unix(),
		"user":          f.user(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(srv *httptest.Server, secret string) *Client {
	return NewClient(&config.IdentityConfig{
		BaseURL:        srv.URL,
		APIKey:         "anon-key",
		JWTSecret:      secret,
		RequestTimeout: 5 * time.Second,
	}, newTestLogger())
}
