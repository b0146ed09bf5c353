package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bytebank-ledger/internal/api_gateway/middleware"
	"github.com/bytebank-ledger/internal/api_gateway/service"
)

// AuthHandler drives device sessions: their lifecycle and the sign-in flows
// that run inside them
type AuthHandler struct {
	sessions service.SessionStore
	logger   *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(logger *slog.Logger, sessions service.SessionStore) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// CreateSession opens a device session. Its id goes in the X-Session-ID header
// of later requests.
func (h *AuthHandler) CreateSession(c *gin.Context) {
	id, s, err := h.sessions.Create(c.Request.Context())
	if err != nil {
		RespondError(c, h.logger, "create session", err)
		return
	}
	RespondCreated(c, SessionResponse{SessionID: id, State: s.State()})
}

// EndSession signs out and forgets the device session
func (h *AuthHandler) EndSession(c *gin.Context) {
	s, ok := middleware.GetSession(c)
	if !ok {
		RespondInternalError(c)
		return
	}
	if err := s.SignOut(c.Request.Context()); err != nil {
		h.logger.Warn("Sign-out failed while ending session", "error", err)
	}
	h.sessions.Remove(c.GetHeader(middleware.SessionIDHeader))
	RespondNoContent(c)
}

// State returns the session snapshot
func (h *AuthHandler) State(c *gin.Context) {
	s, ok := middleware.GetSession(c)
	if !ok {
		RespondInternalError(c)
		return
	}
	RespondOK(c, SessionResponse{State: s.State()})
}

// SignIn authenticates the device session with email and password
func (h *AuthHandler) SignIn(c *gin.Context) {
	s, ok := middleware.GetSession(c)
	if !ok {
		RespondInternalError(c)
		return
	}

	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	tokens, err := s.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		RespondError(c, h.logger, "sign in", err)
		return
	}
	RespondOK(c, AuthResponse{State: s.State(), User: &tokens.User, Tokens: tokens})
}

// SignUp registers a user. The account is provisioned on the user's first sign-in.
func (h *AuthHandler) SignUp(c *gin.Context) {
	s, ok := middleware.GetSession(c)
	if !ok {
		RespondInternalError(c)
		return
	}

	var req SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	user, tokens, err := s.SignUp(c.Request.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		RespondError(c, h.logger, "sign up", err)
		return
	}

	status := http.StatusCreated
	if tokens == nil {
		// Email confirmation pending
		status = http.StatusAccepted
	}
	RespondWithData(c, status, AuthResponse{State: s.State(), User: user, Tokens: tokens})
}

// SignOut ends the authentication of the device session, keeping the session itself
func (h *AuthHandler) SignOut(c *gin.Context) {
	s, ok := middleware.GetSession(c)
	if !ok {
		RespondInternalError(c)
		return
	}
	if err := s.SignOut(c.Request.Context()); err != nil {
		RespondError(c, h.logger, "sign out", err)
		return
	}
	RespondOK(c, SessionResponse{State: s.State()})
}

// Restore resumes authentication from a refresh token kept by the device
func (h *AuthHandler) Restore(c *gin.Context) {
	s, ok := middleware.GetSession(c)
	if !ok {
		RespondInternalError(c)
		return
	}

	var req RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	tokens, err := s.Restore(c.Request.Context(), req.RefreshToken)
	if err != nil {
		RespondError(c, h.logger, "restore session", err)
		return
	}
	RespondOK(c, AuthResponse{State: s.State(), User: &tokens.User, Tokens: tokens})
}
