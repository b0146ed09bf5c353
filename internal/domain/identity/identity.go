// Package identity models authenticated users, their sessions and the
// auth-state events the identity provider emits.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/bytebank-ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidCredentials    = errors.New("invalid login credentials")
	ErrInvalidToken          = errors.New("invalid or expired token")
	ErrUserAlreadyRegistered = errors.New("user already registered")
	ErrEmailNotConfirmed     = errors.New("email not confirmed")
)

// User is the identity provider's view of a person
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a signed-in user's token pair
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Expired reports whether the access token is past its expiry at now
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Principal returns the caller identity carried by this session
func (s *Session) Principal() Principal {
	return Principal{UserID: s.User.ID, Email: s.User.Email, AccessToken: s.AccessToken}
}

// EventType names an auth-state transition
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
)

// AuthEvent is delivered to listeners on every auth-state transition. Session is
// nil for EventSignedOut.
type AuthEvent struct {
	Type    EventType
	Session *Session
}

// Listener receives auth events synchronously, in emission order
type Listener func(AuthEvent)

// Provider is one device's connection to the identity service. Implementations
// hold at most one session at a time.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)

	// SignUp registers a user. The returned session is nil when the service
	// requires email confirmation before sign-in.
	SignUp(ctx context.Context, email, password, fullName string) (*User, *Session, error)
	SignOut(ctx context.Context) error

	// GetSession returns the current session, or nil when signed out
	GetSession(ctx context.Context) (*Session, error)
	GetUser(ctx context.Context) (*User, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	OnAuthStateChange(listener Listener) (unsubscribe func())
}

// Principal identifies the caller of a ledger operation
type Principal struct {
	UserID      uuid.UUID
	Email       string
	AccessToken string
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal carried by ctx
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.UserID == uuid.Nil {
		return Principal{}, false
	}
	return p, true
}

// RequirePrincipal is PrincipalFrom that fails with shared.ErrAuthenticationRequired
func RequirePrincipal(ctx context.Context) (Principal, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return Principal{}, shared.ErrAuthenticationRequired
	}
	return p, nil
}
