package keys

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a Store for tests and single-process development. Its mutex
// plays the role of the database uniqueness constraint.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]*KeyMaterial
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]*KeyMaterial)}
}

func (s *MemoryStore) Insert(_ context.Context, k *KeyMaterial) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeLocked(k.TenantID) != nil {
		return ErrActiveExists
	}
	s.appendLocked(k)
	return nil
}

func (s *MemoryStore) Rotate(_ context.Context, next *KeyMaterial, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur := s.activeLocked(next.TenantID); cur != nil {
		ts := at
		cur.Status = StatusRevoked
		cur.RevokedAt = &ts
	}
	s.appendLocked(next)
	return nil
}

func (s *MemoryStore) Active(_ context.Context, tenantID string) (*KeyMaterial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.activeLocked(tenantID)
	if cur == nil {
		return nil, ErrNotFound
	}
	cp := *cur
	return &cp, nil
}

func (s *MemoryStore) Revoke(_ context.Context, tenantID, keyID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records[tenantID] {
		if rec.KeyID != keyID {
			continue
		}
		if rec.Status != StatusRevoked {
			ts := at
			rec.Status = StatusRevoked
			rec.RevokedAt = &ts
		}
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) List(_ context.Context, tenantID string) ([]KeyMaterial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]KeyMaterial, 0, len(s.records[tenantID]))
	for _, rec := range s.records[tenantID] {
		out = append(out, *rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) activeLocked(tenantID string) *KeyMaterial {
	for _, rec := range s.records[tenantID] {
		if rec.Status == StatusActive {
			return rec
		}
	}
	return nil
}

func (s *MemoryStore) appendLocked(k *KeyMaterial) {
	cp := *k
	s.records[k.TenantID] = append(s.records[k.TenantID], &cp)
}
