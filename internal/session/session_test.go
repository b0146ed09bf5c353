package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/bytebank-ledger/internal/config"
	"github.com/bytebank-ledger/internal/domain/account"
	"github.com/bytebank-ledger/internal/domain/identity"
	"github.com/bytebank-ledger/internal/platform/cache"
	"github.com/bytebank-ledger/internal/platform/workerpool"
)

const validRefreshToken = "refresh-ok"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider mimics a single-device identity session: sign-in announces
// immediately, sign-up sessions are announced on the first GetSession
type fakeProvider struct {
	mu        sync.Mutex
	session   *identity.Session
	announced bool
	listeners map[int]identity.Listener
	nextID    int

	signUpIssuesSession bool
	refreshUser         identity.User
	signInErr           error
	signOutErr          error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		listeners:   make(map[int]identity.Listener),
		refreshUser: identity.User{ID: uuid.New(), Email: "restored@example.com"},
	}
}

func newSession(user identity.User) *identity.Session {
	return &identity.Session{
		AccessToken:  "access-" + user.ID.String(),
		RefreshToken: validRefreshToken,
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         user,
	}
}

func (p *fakeProvider) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	if p.signInErr != nil {
		return nil, p.signInErr
	}
	session := newSession(identity.User{ID: uuid.NewSHA1(uuid.NameSpaceURL, []byte(email)), Email: email})

	p.mu.Lock()
	p.session = session
	p.announced = true
	p.mu.Unlock()

	p.emit(identity.AuthEvent{Type: identity.EventSignedIn, Session: session})
	return session, nil
}

func (p *fakeProvider) SignUp(ctx context.Context, email, password, fullName string) (*identity.User, *identity.Session, error) {
	user := identity.User{ID: uuid.NewSHA1(uuid.NameSpaceURL, []byte(email)), Email: email, FullName: fullName}
	if !p.signUpIssuesSession {
		return &user, nil, nil
	}

	session := newSession(user)
	p.mu.Lock()
	p.session = session
	p.announced = false
	p.mu.Unlock()
	return &user, session, nil
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	had := p.session != nil
	p.session = nil
	p.announced = false
	p.mu.Unlock()

	if had {
		p.emit(identity.AuthEvent{Type: identity.EventSignedOut})
	}
	return p.signOutErr
}

func (p *fakeProvider) GetSession(ctx context.Context) (*identity.Session, error) {
	p.mu.Lock()
	session := p.session
	announce := session != nil && !p.announced
	if announce {
		p.announced = true
	}
	p.mu.Unlock()

	if announce {
		p.emit(identity.AuthEvent{Type: identity.EventSignedIn, Session: session})
	}
	return session, nil
}

func (p *fakeProvider) GetUser(ctx context.Context) (*identity.User, error) {
	session, _ := p.GetSession(ctx)
	if session == nil {
		return nil, nil
	}
	return &session.User, nil
}

func (p *fakeProvider) Refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	if refreshToken != validRefreshToken {
		return nil, identity.ErrInvalidToken
	}
	session := newSession(p.refreshUser)

	p.mu.Lock()
	previous := p.session
	p.session = session
	p.announced = true
	p.mu.Unlock()

	eventType := identity.EventSignedIn
	if previous != nil && previous.User.ID == session.User.ID {
		eventType = identity.EventTokenRefreshed
	}
	p.emit(identity.AuthEvent{Type: eventType, Session: session})
	return session, nil
}

func (p *fakeProvider) OnAuthStateChange(listener identity.Listener) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = listener
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *fakeProvider) listenerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

func (p *fakeProvider) emit(event identity.AuthEvent) {
	p.mu.Lock()
	ids := make([]int, 0, len(p.listeners))
	for id := range p.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]identity.Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, p.listeners[id])
	}
	p.mu.Unlock()

	for _, l := range listeners {
		l(event)
	}
}

type MockProvisioner struct {
	mock.Mock
}

func (m *MockProvisioner) Ensure(ctx context.Context, userID uuid.UUID, accountType account.Type, currency string) (*account.Account, error) {
	args := m.Called(ctx, userID, accountType, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

// withPrincipalOf matches task contexts carrying userID's principal
func withPrincipalOf(userID uuid.UUID) any {
	return mock.MatchedBy(func(ctx context.Context) bool {
		p, ok := identity.PrincipalFrom(ctx)
		_, hasDeadline := ctx.Deadline()
		return ok && p.UserID == userID && hasDeadline
	})
}

// syncSubmitter runs tasks inline
type syncSubmitter struct {
	mu        sync.Mutex
	names     []string
	results   []error
	submitErr error
}

func (s *syncSubmitter) Submit(ctx context.Context, name string, task workerpool.Task) error {
	if s.submitErr != nil {
		return s.submitErr
	}
	err := task(ctx)

	s.mu.Lock()
	s.names = append(s.names, name)
	s.results = append(s.results, err)
	s.mu.Unlock()
	return nil
}

func (s *syncSubmitter) submitted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.names)
}

type coordinatorFixture struct {
	provider    *fakeProvider
	provisioner *MockProvisioner
	pool        *syncSubmitter
	markers     *cache.MemoryMarkers
	cache       *cache.MemoryCache
	coordinator *Coordinator
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	f := &coordinatorFixture{
		provider:    newFakeProvider(),
		provisioner: new(MockProvisioner),
		pool:        &syncSubmitter{},
		markers:     cache.NewMemoryMarkers(),
		cache:       cache.NewMemoryCache(time.Minute),
	}
	t.Cleanup(func() { _ = f.cache.Close() })

	f.coordinator = newTestCoordinator(f.provider, f.provisioner, f.pool, f.markers, f.cache)
	t.Cleanup(f.coordinator.Close)
	return f
}

func newTestCoordinator(provider identity.Provider, provisioner Provisioner, pool Submitter, markers cache.Markers, c cache.Cache) *Coordinator {
	return NewCoordinator(
		newTestLogger(),
		provider,
		provisioner,
		pool,
		markers,
		c,
		&config.CacheConfig{PendingMarkerTTL: time.Hour},
		&config.ProvisioningConfig{TaskTimeout: time.Second, DefaultAccountType: "checking", DefaultCurrency: "BRL"},
	)
}

var errProvisioning = errors.New("provisioning failed")
