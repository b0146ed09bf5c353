package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Factory builds a coordinator bound to a fresh identity provider session
type Factory func() *Coordinator

type entry struct {
	coordinator *Coordinator
	lastSeen    time.Time
}

// Registry maps opaque device session ids to coordinators and evicts sessions
// left idle longer than the idle timeout
type Registry struct {
	factory     Factory
	idleTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

func NewRegistry(logger *slog.Logger, factory Factory, idleTimeout time.Duration) *Registry {
	return &Registry{
		factory:     factory,
		idleTimeout: idleTimeout,
		now:         time.Now,
		logger:      logger.With("component", "session_registry"),
		sessions:    make(map[string]*entry),
	}
}

// Create starts a new coordinator and returns its session id
func (r *Registry) Create(ctx context.Context) (string, *Coordinator, error) {
	coordinator := r.factory()
	if err := coordinator.Start(ctx); err != nil {
		coordinator.Close()
		return "", nil, err
	}

	id := uuid.NewString()
	r.mu.Lock()
	r.sessions[id] = &entry{coordinator: coordinator, lastSeen: r.now()}
	r.mu.Unlock()

	r.logger.Debug("Session created", "session_id", id)
	return id, coordinator, nil
}

// Get returns the coordinator of id and marks the session as used
func (r *Registry) Get(id string) (*Coordinator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.coordinator, true
}

// Remove closes and forgets the session
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		e.coordinator.Close()
	}
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts idle sessions and returns how many were removed
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTimeout)

	var evicted []*Coordinator
	r.mu.Lock()
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			evicted = append(evicted, e.coordinator)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, c := range evicted {
		c.Close()
	}
	if len(evicted) > 0 {
		r.logger.Info("Evicted idle sessions", "count", len(evicted))
	}
	return len(evicted)
}

// Run sweeps every interval until ctx is done, then closes every session
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) closeAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range sessions {
		e.coordinator.Close()
	}
}
