package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"warden.dev/internal/subject"
)

var _ Store = (*PGStore)(nil)

type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Insert(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx,
		`insert into sessions (id, principal_id, kind, created_at, expires_at, revoked)
		 values ($1,$2,$3,$4,$5,false)`,
		sess.ID, sess.Principal.ID, string(sess.Principal.Kind), sess.CreatedAt, sess.ExpiresAt,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id string) (*Session, error) {
	var (
		sess    Session
		kind    string
		revoked sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`select id, principal_id, kind, created_at, expires_at, revoked, revoked_at from sessions where id = $1`, id,
	).Scan(&sess.ID, &sess.Principal.ID, &kind, &sess.CreatedAt, &sess.ExpiresAt, &sess.Revoked, &revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sess.Principal.Kind = subject.Kind(kind)
	if revoked.Valid {
		ts := revoked.Time
		sess.RevokedAt = &ts
	}
	return &sess, nil
}

func (s *PGStore) HasValid(ctx context.Context, principal subject.Ref, now time.Time) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`select exists (select 1 from sessions
		 where principal_id = $1 and kind = $2 and revoked = false and expires_at > $3)`,
		principal.ID, string(principal.Kind), now,
	).Scan(&ok)
	return ok, err
}

func (s *PGStore) Revoke(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update sessions set revoked = true, revoked_at = coalesce(revoked_at, $2) where id = $1`, id, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) RevokeAll(ctx context.Context, principal subject.Ref, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`update sessions set revoked = true, revoked_at = $3
		 where principal_id = $1 and kind = $2 and revoked = false`,
		principal.ID, string(principal.Kind), at,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
