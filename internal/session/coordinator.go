// Package session tracks one device's authentication state and reacts to the
// identity provider's auth events: it drops cached ledger data across user
// changes and provisions the bank account of a newly registered user on their
// first sign-in.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bytebank-ledger/internal/config"
	"github.com/bytebank-ledger/internal/domain/account"
	"github.com/bytebank-ledger/internal/domain/identity"
	"github.com/bytebank-ledger/internal/domain/shared"
	"github.com/bytebank-ledger/internal/ledger"
	"github.com/bytebank-ledger/internal/platform/cache"
	"github.com/bytebank-ledger/internal/platform/workerpool"
)

// Phase is the coarse authentication state of a device
type Phase string

const (
	PhaseInitializing    Phase = "initializing"
	PhaseUnauthenticated Phase = "unauthenticated"
	PhaseAuthenticated   Phase = "authenticated"
)

// markerTimeout bounds cache and marker calls made from auth listeners, which
// have no caller context
const markerTimeout = 5 * time.Second

// State is a snapshot of the coordinator, safe to share
type State struct {
	Phase   Phase          `json:"phase"`
	User    *identity.User `json:"user,omitempty"`
	Loading bool           `json:"loading"`
	Error   string         `json:"error,omitempty"`
}

// Provisioner creates the bank account of a user
type Provisioner interface {
	Ensure(ctx context.Context, userID uuid.UUID, accountType account.Type, currency string) (*account.Account, error)
}

// Submitter schedules background work
type Submitter interface {
	Submit(ctx context.Context, name string, task workerpool.Task) error
}

var _ Submitter = (*workerpool.Pool)(nil)

// Coordinator owns one device's session. Registration writes a
// pending-provisioning marker; the first SIGNED_IN observed for that user
// consumes it and provisions the account in the background.
type Coordinator struct {
	provider    identity.Provider
	provisioner Provisioner
	pool        Submitter
	markers     cache.Markers
	cache       cache.Cache
	logger      *slog.Logger

	markerTTL   time.Duration
	taskTimeout time.Duration
	accountType account.Type
	currency    string

	mu          sync.RWMutex
	state       State
	currentUser uuid.UUID
	stopListen  func()

	subsMu      sync.Mutex
	subscribers map[int]chan State
	nextSubID   int
}

// NewCoordinator creates a coordinator in PhaseInitializing. c may be nil when
// caching is disabled.
func NewCoordinator(
	logger *slog.Logger,
	provider identity.Provider,
	provisioner Provisioner,
	pool Submitter,
	markers cache.Markers,
	c cache.Cache,
	cacheCfg *config.CacheConfig,
	provisioningCfg *config.ProvisioningConfig,
) *Coordinator {
	return &Coordinator{
		provider:    provider,
		provisioner: provisioner,
		pool:        pool,
		markers:     markers,
		cache:       c,
		logger:      logger.With("component", "session_coordinator"),
		markerTTL:   cacheCfg.PendingMarkerTTL,
		taskTimeout: provisioningCfg.TaskTimeout,
		accountType: account.Type(provisioningCfg.DefaultAccountType),
		currency:    provisioningCfg.DefaultCurrency,
		state:       State{Phase: PhaseInitializing, Loading: true},
		subscribers: make(map[int]chan State),
	}
}

// Start subscribes to auth events and resolves the initial phase from any
// session the provider already holds
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopListen == nil {
		c.stopListen = c.provider.OnAuthStateChange(c.handleAuthEvent)
	}
	c.mu.Unlock()

	session, err := c.provider.GetSession(ctx)
	if err != nil {
		c.logger.Warn("Failed to read initial session", "error", err)
		c.update(func(s *State) {
			s.Phase = PhaseUnauthenticated
			s.User = nil
			s.Loading = false
			s.Error = err.Error()
		})
		return err
	}

	c.update(func(s *State) {
		s.Loading = false
		if session == nil {
			s.Phase = PhaseUnauthenticated
			s.User = nil
			return
		}
		user := session.User
		s.Phase = PhaseAuthenticated
		s.User = &user
	})
	return nil
}

// SignIn authenticates with email and password
func (c *Coordinator) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, shared.NewValidationError("email", "is required")
	}
	if password == "" {
		return nil, shared.NewValidationError("password", "is required")
	}

	c.begin()
	session, err := c.provider.SignIn(ctx, email, password)
	c.finish(err)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// SignUp registers a user and marks their account for provisioning. When the
// provider returns a session right away it is confirmed, which announces the
// sign-in and triggers provisioning; otherwise provisioning waits for the first
// sign-in after email confirmation.
func (c *Coordinator) SignUp(ctx context.Context, email, password, fullName string) (*identity.User, *identity.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil, shared.NewValidationError("email", "is required")
	}
	if len(password) < 6 {
		return nil, nil, shared.NewValidationError("password", "must be at least 6 characters")
	}

	c.begin()
	user, session, err := c.provider.SignUp(ctx, email, password, strings.TrimSpace(fullName))
	if err != nil {
		c.finish(err)
		return nil, nil, err
	}

	if err := c.markers.Mark(ctx, ledger.PendingProvisioningKey(user.ID), c.markerTTL); err != nil {
		// Sign-up stands; the account can still be provisioned manually
		c.logger.Error("Failed to mark account for provisioning", "user_id", user.ID.String(), "error", err)
	}

	if session != nil {
		confirmed, err := c.provider.GetSession(ctx)
		if err != nil {
			c.logger.Warn("Failed to confirm new session", "user_id", user.ID.String(), "error", err)
		} else {
			session = confirmed
		}
	}

	c.finish(nil)
	c.logger.Info("User registered", "user_id", user.ID.String(), "session_issued", session != nil)
	return user, session, nil
}

// SignOut ends the session. Local state is cleared even when the provider call fails.
func (c *Coordinator) SignOut(ctx context.Context) error {
	c.begin()
	err := c.provider.SignOut(ctx)
	c.finish(err)
	return err
}

// Restore resumes a session from a refresh token kept by the device
func (c *Coordinator) Restore(ctx context.Context, refreshToken string) (*identity.Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, shared.NewValidationError("refresh_token", "is required")
	}

	c.begin()
	session, err := c.provider.Refresh(ctx, refreshToken)
	c.finish(err)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Principal returns the caller identity of the current session, refreshing an
// expired access token first
func (c *Coordinator) Principal(ctx context.Context) (identity.Principal, error) {
	session, err := c.provider.GetSession(ctx)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			return identity.Principal{}, shared.ErrAuthenticationRequired
		}
		return identity.Principal{}, err
	}
	if session == nil {
		return identity.Principal{}, shared.ErrAuthenticationRequired
	}
	return session.Principal(), nil
}

// State returns the current snapshot
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot()
}

// Subscribe returns a channel that always holds the latest snapshot. Slow
// readers skip intermediate states. Call the returned func to unsubscribe.
func (c *Coordinator) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	ch <- c.State()

	c.subsMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	c.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subsMu.Lock()
			if _, ok := c.subscribers[id]; ok {
				delete(c.subscribers, id)
				close(ch)
			}
			c.subsMu.Unlock()
		})
	}
}

// Close stops listening to auth events and closes every subscription
func (c *Coordinator) Close() {
	c.mu.Lock()
	stop := c.stopListen
	c.stopListen = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}

	c.subsMu.Lock()
	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
	c.subsMu.Unlock()
}

func (c *Coordinator) handleAuthEvent(event identity.AuthEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), markerTimeout)
	defer cancel()

	switch event.Type {
	case identity.EventSignedIn:
		if event.Session == nil {
			return
		}
		user := event.Session.User

		c.mu.Lock()
		previous := c.currentUser
		c.currentUser = user.ID
		c.mu.Unlock()

		c.dropCache(ctx, user.ID)
		if previous != uuid.Nil && previous != user.ID {
			c.dropCache(ctx, previous)
		}
		c.update(func(s *State) {
			s.Phase = PhaseAuthenticated
			s.User = &user
			s.Error = ""
		})
		c.logger.Info("Signed in", "user_id", user.ID.String())

		c.provisionIfPending(ctx, event.Session)

	case identity.EventTokenRefreshed:
		if event.Session == nil {
			return
		}
		user := event.Session.User
		c.update(func(s *State) {
			s.Phase = PhaseAuthenticated
			s.User = &user
		})

	case identity.EventSignedOut:
		c.mu.Lock()
		previous := c.currentUser
		c.currentUser = uuid.Nil
		c.mu.Unlock()

		if previous != uuid.Nil {
			c.dropCache(ctx, previous)
		}
		c.update(func(s *State) {
			s.Phase = PhaseUnauthenticated
			s.User = nil
		})
		c.logger.Info("Signed out", "user_id", previous.String())
	}
}

// provisionIfPending consumes the user's pending marker and, when it was set,
// schedules account provisioning. The task runs detached from any request with
// its own timeout.
func (c *Coordinator) provisionIfPending(ctx context.Context, session *identity.Session) {
	userID := session.User.ID
	key := ledger.PendingProvisioningKey(userID)

	pending, err := c.markers.Consume(ctx, key)
	if err != nil {
		c.logger.Error("Failed to read provisioning marker", "user_id", userID.String(), "error", err)
		return
	}
	if !pending {
		return
	}

	principal := session.Principal()
	task := func(taskCtx context.Context) error {
		taskCtx, cancel := context.WithTimeout(identity.WithPrincipal(taskCtx, principal), c.taskTimeout)
		defer cancel()

		acc, err := c.provisioner.Ensure(taskCtx, userID, c.accountType, c.currency)
		if err != nil {
			c.logger.Error("Deferred account provisioning failed", "user_id", userID.String(), "error", err)
			return err
		}
		c.logger.Info("Deferred account provisioning completed", "user_id", userID.String(), "account_id", acc.ID.String())
		return nil
	}

	if err := c.pool.Submit(context.Background(), "provision-account", task); err != nil {
		c.logger.Error("Failed to schedule account provisioning", "user_id", userID.String(), "error", err)
		// Leave the marker for the next sign-in
		if markErr := c.markers.Mark(ctx, key, c.markerTTL); markErr != nil {
			c.logger.Error("Failed to restore provisioning marker", "user_id", userID.String(), "error", markErr)
		}
	}
}

func (c *Coordinator) dropCache(ctx context.Context, userID uuid.UUID) {
	if err := ledger.Invalidate(ctx, c.cache, userID, ledger.UserPrefix(userID)); err != nil {
		c.logger.Warn("Failed to drop cached ledger data", "user_id", userID.String(), "error", err)
	}
}

func (c *Coordinator) begin() {
	c.update(func(s *State) {
		s.Loading = true
		s.Error = ""
	})
}

func (c *Coordinator) finish(err error) {
	c.update(func(s *State) {
		s.Loading = false
		if err != nil {
			s.Error = err.Error()
		}
	})
}

// update applies fn under the lock and publishes the new snapshot
func (c *Coordinator) update(fn func(s *State)) {
	c.mu.Lock()
	fn(&c.state)
	snapshot := c.snapshot()
	c.mu.Unlock()

	c.publish(snapshot)
}

func (c *Coordinator) snapshot() State {
	s := c.state
	if s.User != nil {
		user := *s.User
		s.User = &user
	}
	return s
}

func (c *Coordinator) publish(s State) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	for _, ch := range c.subscribers {
		select {
		case ch <- s:
		default:
			// Replace the unread snapshot with the newer one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}
