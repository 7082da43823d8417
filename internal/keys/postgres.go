package keys

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgErrUniqueViolation = "23505"
	activeKeyConstraint  = "tenant_keys_one_active"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store on PostgreSQL. The partial unique index
// tenant_keys_one_active (tenant_id) where status = 'active' backs the
// single-active-key invariant; see internal/migrate/migrations.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const insertKeySQL = `insert into tenant_keys
	(id, tenant_id, key_id, kid, public_key_pem, private_key_enc, algorithm, key_size, status, created_at)
	values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

const selectKeyColumns = `select id, tenant_id, key_id, kid, public_key_pem, private_key_enc,
	algorithm, key_size, status, created_at, revoked_at from tenant_keys`

func (s *PGStore) Insert(ctx context.Context, k *KeyMaterial) error {
	_, err := s.db.ExecContext(ctx, insertKeySQL, insertArgs(k)...)
	return mapWriteError(err)
}

func (s *PGStore) Rotate(ctx context.Context, next *KeyMaterial, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`update tenant_keys set status = 'revoked', revoked_at = $2 where tenant_id = $1 and status = 'active'`,
		next.TenantID, at,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, insertKeySQL, insertArgs(next)...); err != nil {
		return mapWriteError(err)
	}
	return tx.Commit()
}

func (s *PGStore) Active(ctx context.Context, tenantID string) (*KeyMaterial, error) {
	row := s.db.QueryRowContext(ctx, selectKeyColumns+` where tenant_id = $1 and status = 'active'`, tenantID)
	k, err := scanKey(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return k, nil
}

func (s *PGStore) Revoke(ctx context.Context, tenantID, keyID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update tenant_keys set status = 'revoked', revoked_at = coalesce(revoked_at, $3)
		 where tenant_id = $1 and key_id = $2`,
		tenantID, keyID, at,
	)
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

func (s *PGStore) List(ctx context.Context, tenantID string) ([]KeyMaterial, error) {
	rows, err := s.db.QueryContext(ctx, selectKeyColumns+` where tenant_id = $1 order by created_at desc`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KeyMaterial
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (*KeyMaterial, error) {
	var (
		k       KeyMaterial
		status  string
		revoked sql.NullTime
	)
	if err := row.Scan(&k.ID, &k.TenantID, &k.KeyID, &k.Kid, &k.PublicKeyPEM, &k.EncryptedPrivateKey,
		&k.Algorithm, &k.KeySize, &status, &k.CreatedAt, &revoked); err != nil {
		return nil, err
	}
	k.Status = Status(status)
	if revoked.Valid {
		ts := revoked.Time
		k.RevokedAt = &ts
	}
	return &k, nil
}

func insertArgs(k *KeyMaterial) []any {
	return []any{k.ID, k.TenantID, k.KeyID, k.Kid, k.PublicKeyPEM, k.EncryptedPrivateKey,
		k.Algorithm, k.KeySize, string(k.Status), k.CreatedAt}
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation &&
		(pgErr.ConstraintName == activeKeyConstraint || pgErr.ConstraintName == "") {
		return ErrActiveExists
	}
	return err
}
