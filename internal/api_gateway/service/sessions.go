package service

import (
	"context"

	"github.com/bytebank-ledger/internal/session"
)

type registryStore struct {
	registry *session.Registry
}

// NewSessionStore exposes a session registry as a SessionStore
func NewSessionStore(registry *session.Registry) SessionStore {
	return &registryStore{registry: registry}
}

func (s *registryStore) Create(ctx context.Context) (string, Session, error) {
	id, coordinator, err := s.registry.Create(ctx)
	if err != nil {
		return "", nil, err
	}
	return id, coordinator, nil
}

func (s *registryStore) Get(id string) (Session, bool) {
	coordinator, ok := s.registry.Get(id)
	if !ok {
		return nil, false
	}
	return coordinator, true
}

func (s *registryStore) Remove(id string) {
	s.registry.Remove(id)
}
