package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"warden.dev/internal/fault"
	"warden.dev/internal/ids"
	"warden.dev/internal/subject"
)

// Registry creates, checks and revokes sessions. Multiple concurrent
// sessions per principal are allowed.
type Registry struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
	log   zerolog.Logger
}

type Option func(*Registry)

func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(r *Registry) {
		if fn != nil {
			r.now = fn
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{store: store, ttl: DefaultTTL, now: time.Now, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) TTL() time.Duration { return r.ttl }

// Create opens a new session for principal.
func (r *Registry) Create(ctx context.Context, principal subject.Ref) (*Session, error) {
	if strings.TrimSpace(principal.ID) == "" || !principal.Kind.Valid() {
		return nil, errors.New("session: principal id and kind are required")
	}
	now := r.now().UTC()
	s := &Session{
		ID:        ids.New(),
		Principal: principal,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}
	if err := r.store.Insert(ctx, s); err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}
	return s, nil
}

// IsValid reports whether principal holds at least one live session.
func (r *Registry) IsValid(ctx context.Context, principal subject.Ref) (bool, error) {
	ok, err := r.store.HasValid(ctx, principal, r.now().UTC())
	if err != nil {
		return false, fmt.Errorf("session: lookup: %w", err)
	}
	return ok, nil
}

// ValidFor gates authentication. With a session id it checks that exact
// session belongs to principal and is live; without one it falls back to
// IsValid. Failures are fault.ErrSessionInvalid.
func (r *Registry) ValidFor(ctx context.Context, principal subject.Ref, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		ok, err := r.IsValid(ctx, principal)
		if err != nil {
			return err
		}
		if !ok {
			return fault.ErrSessionInvalid
		}
		return nil
	}
	s, err := r.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fault.ErrSessionInvalid.WithDetail("unknown session")
		}
		return fmt.Errorf("session: lookup: %w", err)
	}
	if s.Principal != principal {
		return fault.ErrSessionInvalid.WithDetail("session belongs to another principal")
	}
	if !s.ValidAt(r.now().UTC()) {
		return fault.ErrSessionInvalid
	}
	return nil
}

// Revoke ends one session. Revoking a revoked session is a no-op.
func (r *Registry) Revoke(ctx context.Context, sessionID string) error {
	if err := r.store.Revoke(ctx, strings.TrimSpace(sessionID), r.now().UTC()); err != nil {
		return err
	}
	r.log.Info().Str("session_id", sessionID).Msg("session revoked")
	return nil
}

// RevokeAll ends every session of principal.
func (r *Registry) RevokeAll(ctx context.Context, principal subject.Ref) (int, error) {
	n, err := r.store.RevokeAll(ctx, principal, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("session: revoke all: %w", err)
	}
	r.log.Info().Str("principal", principal.String()).Int("revoked", n).Msg("sessions revoked")
	return n, nil
}
