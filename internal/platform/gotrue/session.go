package gotrue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bytebank-ledger/internal/domain/identity"
)

var _ identity.Provider = (*Session)(nil)

// Session is one device's connection to the auth server. It holds at most one
// session and notifies listeners synchronously on every transition.
//
// A session obtained from SignUp is held but not announced; the first
// GetSession that confirms it with the server emits SIGNED_IN.
type Session struct {
	client *Client
	now    func() time.Time

	mu        sync.Mutex
	current   *identity.Session
	announced bool

	listenersMu sync.Mutex
	listeners   map[int]identity.Listener
	nextID      int
}

// NewSession starts a signed-out device session
func (c *Client) NewSession() *Session {
	return &Session{
		client:    c,
		now:       time.Now,
		listeners: make(map[int]identity.Listener),
	}
}

func (s *Session) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	session, err := s.client.passwordGrant(ctx, email, password)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = session
	s.announced = true
	s.mu.Unlock()

	s.emit(identity.AuthEvent{Type: identity.EventSignedIn, Session: session})
	return session, nil
}

func (s *Session) SignUp(ctx context.Context, email, password, fullName string) (*identity.User, *identity.Session, error) {
	user, session, err := s.client.signUp(ctx, email, password, fullName)
	if err != nil {
		return nil, nil, err
	}

	if session != nil {
		s.mu.Lock()
		s.current = session
		s.announced = false
		s.mu.Unlock()
	}
	return user, session, nil
}

// SignOut clears the local session even when the server call fails
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	previous := s.current
	s.current = nil
	s.announced = false
	s.mu.Unlock()

	if previous == nil {
		return nil
	}

	err := s.client.logout(ctx, previous.AccessToken)
	if err != nil {
		s.client.logger.Warn("Server-side sign out failed, local session cleared", "user_id", previous.User.ID, "error", err)
	}

	s.emit(identity.AuthEvent{Type: identity.EventSignedOut})
	return err
}

// GetSession returns the held session, refreshing it when expired and
// confirming it with the server when it has not been announced yet.
func (s *Session) GetSession(ctx context.Context) (*identity.Session, error) {
	s.mu.Lock()
	current := s.current
	announced := s.announced
	s.mu.Unlock()

	if current == nil {
		return nil, nil
	}

	if current.Expired(s.now()) {
		if current.RefreshToken == "" {
			s.drop(current)
			return nil, nil
		}
		refreshed, err := s.Refresh(ctx, current.RefreshToken)
		if err != nil {
			return nil, err
		}
		return refreshed, nil
	}

	if announced {
		return current, nil
	}

	if _, err := s.client.user(ctx, current.AccessToken); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.current != current || s.announced {
		s.mu.Unlock()
		return current, nil
	}
	s.announced = true
	s.mu.Unlock()

	s.emit(identity.AuthEvent{Type: identity.EventSignedIn, Session: current})
	return current, nil
}

func (s *Session) GetUser(ctx context.Context) (*identity.User, error) {
	session, err := s.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	return s.client.user(ctx, session.AccessToken)
}

// Refresh exchanges a refresh token for a new session. Restoring a session on a
// signed-out device, or for a different user, emits SIGNED_IN; otherwise TOKEN_REFRESHED.
func (s *Session) Refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	session, err := s.client.refreshGrant(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	previous := s.current
	wasAnnounced := s.announced
	s.current = session
	s.announced = true
	s.mu.Unlock()

	eventType := identity.EventTokenRefreshed
	if previous == nil || !wasAnnounced || previous.User.ID != session.User.ID {
		eventType = identity.EventSignedIn
	}
	s.emit(identity.AuthEvent{Type: eventType, Session: session})
	return session, nil
}

func (s *Session) OnAuthStateChange(listener identity.Listener) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// drop forgets an expired session that cannot be refreshed
func (s *Session) drop(expired *identity.Session) {
	s.mu.Lock()
	if s.current != expired {
		s.mu.Unlock()
		return
	}
	s.current = nil
	s.announced = false
	s.mu.Unlock()

	s.emit(identity.AuthEvent{Type: identity.EventSignedOut})
}

// emit runs listeners in registration order without holding any lock, so a
// listener may call back into the session
func (s *Session) emit(event identity.AuthEvent) {
	s.listenersMu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	listeners := make([]identity.Listener, 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.listenersMu.Unlock()

	for _, l := range listeners {
		l(event)
	}
}
