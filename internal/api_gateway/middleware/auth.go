package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bytebank-ledger/internal/api_gateway/service"
	"github.com/bytebank-ledger/internal/domain/identity"
	"github.com/bytebank-ledger/internal/domain/shared"
)

const (
	// SessionIDHeader names the device session a request belongs to
	SessionIDHeader = "X-Session-ID"

	// SessionKey stores the resolved service.Session in the gin context
	SessionKey = "session"

	// UserIDKey stores the authenticated user id in the gin context
	UserIDKey = "user_id"
)

// Session resolves the X-Session-ID header against the store. A missing or
// unknown id aborts with 401.
func Session(sessions service.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(SessionIDHeader)
		if id == "" {
			abortUnauthorized(c, "missing "+SessionIDHeader+" header")
			return
		}
		s, ok := sessions.Get(id)
		if !ok {
			abortUnauthorized(c, "unknown or expired session")
			return
		}
		c.Set(SessionKey, s)
		c.Next()
	}
}

// GetSession returns the session resolved by the Session middleware
func GetSession(c *gin.Context) (service.Session, bool) {
	v, ok := c.Get(SessionKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(service.Session)
	return s, ok
}

// Authenticate puts the caller's principal on the request context. Device
// sessions are resolved through X-Session-ID; other clients present a bearer
// access token. A request carrying both is rejected unless the token was issued
// to the session's signed-in user.
func Authenticate(logger *slog.Logger, sessions service.SessionStore, verifier service.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := resolvePrincipal(c, sessions, verifier)
		if err != nil {
			if !errors.Is(err, shared.ErrAuthenticationRequired) && !errors.Is(err, identity.ErrInvalidToken) {
				logger.Error("Failed to resolve caller", "error", err, "correlation_id", GetCorrelationID(c))
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(c, "INTERNAL_SERVER_ERROR", "An internal server error occurred"))
				return
			}
			abortUnauthorized(c, "authentication required")
			return
		}

		c.Set(UserIDKey, principal.UserID.String())
		c.Request = c.Request.WithContext(identity.WithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}

func resolvePrincipal(c *gin.Context, sessions service.SessionStore, verifier service.TokenVerifier) (identity.Principal, error) {
	if id := c.GetHeader(SessionIDHeader); id != "" {
		s, ok := sessions.Get(id)
		if !ok {
			return identity.Principal{}, shared.ErrAuthenticationRequired
		}
		c.Set(SessionKey, s)
		principal, err := s.Principal(c.Request.Context())
		if err != nil {
			return identity.Principal{}, err
		}
		if c.GetHeader("Authorization") == "" {
			return principal, nil
		}

		// A token sent alongside a session must belong to the session's user
		tokenPrincipal, err := verifyBearer(c, verifier)
		if err != nil {
			return identity.Principal{}, err
		}
		if tokenPrincipal.UserID != principal.UserID {
			return identity.Principal{}, identity.ErrInvalidToken
		}
		return principal, nil
	}

	return verifyBearer(c, verifier)
}

func verifyBearer(c *gin.Context, verifier service.TokenVerifier) (identity.Principal, error) {
	token, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok || verifier == nil {
		return identity.Principal{}, shared.ErrAuthenticationRequired
	}
	return verifier.Principal(token)
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(c, "UNAUTHORIZED", message))
}

// errorBody mirrors the handler package's error envelope
func errorBody(c *gin.Context, code, message string) gin.H {
	body := gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
	if correlationID := GetCorrelationID(c); correlationID != "" {
		body["correlation_id"] = correlationID
	}
	return body
}
