package api_gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytebank-ledger/internal/api_gateway/middleware"
	"github.com/bytebank-ledger/internal/api_gateway/service"
	"github.com/bytebank-ledger/internal/config"
	"github.com/bytebank-ledger/internal/platform/gotrue"
)

type emptyStore struct{}

func (emptyStore) Create(ctx context.Context) (string, service.Session, error) { return "", nil, nil }
func (emptyStore) Get(id string) (service.Session, bool)                       { return nil, false }
func (emptyStore) Remove(id string)                                            {}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Server:   config.ServerConfig{Port: 0, WriteTimeout: time.Second},
		Receipts: config.ReceiptsConfig{MaxSizeBytes: 1024},
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewServer(logger, cfg, Services{
		Sessions: emptyStore{},
		Verifier: gotrue.NewTokenVerifier("test-secret"),
	})
}

func TestRouter(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"Health", http.MethodGet, "/health", http.StatusOK},
		{"TransactionsRequireAuth", http.MethodGet, "/api/v1/transactions", http.StatusUnauthorized},
		{"AccountsRequireAuth", http.MethodPost, "/api/v1/accounts/ensure", http.StatusUnauthorized},
		{"ReportsRequireAuth", http.MethodGet, "/api/v1/reports/monthly", http.StatusUnauthorized},
		{"ActivityRequiresAuth", http.MethodGet, "/api/v1/activity", http.StatusUnauthorized},
		{"AuthRequiresSession", http.MethodGet, "/api/v1/auth/state", http.StatusUnauthorized},
		{"UnknownRoute", http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}

func TestRouter_EchoesCorrelationID(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil)
	req.Header.Set(middleware.CorrelationIDHeader, "corr-42")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "corr-42", rr.Header().Get(middleware.CorrelationIDHeader))
	assert.Contains(t, rr.Body.String(), "corr-42")
}

func TestServer_StopWithoutStart(t *testing.T) {
	srv := newTestServer(t)
	assert.NoError(t, srv.Stop(context.Background()))
}
