// Package session is the server-side revocation layer behind issued tokens.
// A token for a session-backed principal only authenticates while one of
// its sessions is unrevoked and unexpired.
package session

import (
	"context"
	"errors"
	"time"

	"warden.dev/internal/subject"
)

const DefaultTTL = 14 * 24 * time.Hour

var ErrNotFound = errors.New("session: not found")

type Session struct {
	ID        string      `json:"id"`
	Principal subject.Ref `json:"-"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
	Revoked   bool        `json:"revoked"`
	RevokedAt *time.Time  `json:"revoked_at,omitempty"`
}

// ValidAt reports whether s is unrevoked and unexpired at now.
func (s Session) ValidAt(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// Store persists sessions. Revocation is idempotent at this layer.
type Store interface {
	Insert(ctx context.Context, s *Session) error
	// Get returns the session or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// HasValid reports whether principal owns any session valid at now.
	HasValid(ctx context.Context, principal subject.Ref, now time.Time) (bool, error)
	// Revoke marks one session revoked; an unknown id is ErrNotFound.
	Revoke(ctx context.Context, id string, at time.Time) error
	// RevokeAll revokes every live session of principal and reports how many changed.
	RevokeAll(ctx context.Context, principal subject.Ref, at time.Time) (int, error)
}
