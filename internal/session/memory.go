package session

import (
	"context"
	"sync"
	"time"

	"warden.dev/internal/subject"
)

var _ Store = (*MemoryStore)(nil)

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Insert(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) HasValid(_ context.Context, principal subject.Ref, now time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.Principal == principal && s.ValidAt(now) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) Revoke(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	revoke(s, at)
	return nil
}

func (m *MemoryStore) RevokeAll(_ context.Context, principal subject.Ref, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.Principal == principal && !s.Revoked {
			revoke(s, at)
			n++
		}
	}
	return n, nil
}

func revoke(s *Session, at time.Time) {
	if s.Revoked {
		return
	}
	ts := at
	s.Revoked = true
	s.RevokedAt = &ts
}
