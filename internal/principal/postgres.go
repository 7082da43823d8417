package principal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
)

var (
	_ Directory = (*PGDirectory)(nil)
	_ Registrar = (*PGDirectory)(nil)
)

// PGDirectory implements Directory and Registrar on PostgreSQL.
type PGDirectory struct {
	db *sql.DB
}

func NewPGDirectory(db *sql.DB) *PGDirectory {
	return &PGDirectory{db: db}
}

func (d *PGDirectory) Tenant(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	err := d.db.QueryRowContext(ctx,
		`select id, name, plan, active, secret_hash, created_at from tenants where id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Plan, &t.Active, &t.SecretHash, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

const adminColumns = `select id, email, role, active, password_hash, created_at from admins`

func (d *PGDirectory) Admin(ctx context.Context, id string) (*Admin, error) {
	return scanAdmin(d.db.QueryRowContext(ctx, adminColumns+` where id = $1`, id))
}

func (d *PGDirectory) AdminByEmail(ctx context.Context, email string) (*Admin, error) {
	return scanAdmin(d.db.QueryRowContext(ctx, adminColumns+` where lower(email) = $1`, strings.ToLower(strings.TrimSpace(email))))
}

func scanAdmin(row *sql.Row) (*Admin, error) {
	var a Admin
	if err := row.Scan(&a.ID, &a.Email, &a.Role, &a.Active, &a.PasswordHash, &a.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

const userColumns = `select id, tenant_id, application_id, email, roles, pending_role, active, password_hash, created_at from users`

func (d *PGDirectory) User(ctx context.Context, id string) (*User, error) {
	return scanUser(d.db.QueryRowContext(ctx, userColumns+` where id = $1`, id))
}

func (d *PGDirectory) UserByEmail(ctx context.Context, applicationID, email string) (*User, error) {
	return scanUser(d.db.QueryRowContext(ctx, userColumns+` where application_id = $1 and lower(email) = $2`,
		applicationID, strings.ToLower(strings.TrimSpace(email))))
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u       User
		pending sql.NullString
	)
	if err := row.Scan(&u.ID, &u.TenantID, &u.ApplicationID, &u.Email, &u.Roles, &pending, &u.Active, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	u.PendingRole = pending.String
	return &u, nil
}

func (d *PGDirectory) Application(ctx context.Context, id string) (*Application, error) {
	var (
		app     Application
		mode    string
		origins []byte
		hook    []byte
		secret  sql.NullString
	)
	err := d.db.QueryRowContext(ctx,
		`select id, tenant_id, name, auth_mode, default_role, allowed_origins, secret_hash, webhook, active, created_at
		 from applications where id = $1`, id,
	).Scan(&app.ID, &app.TenantID, &app.Name, &mode, &app.DefaultRole, &origins, &secret, &hook, &app.Active, &app.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	app.AuthMode = AuthMode(mode)
	app.SecretHash = secret.String
	if len(origins) > 0 {
		if err := json.Unmarshal(origins, &app.AllowedOrigins); err != nil {
			return nil, err
		}
	}
	if len(hook) > 0 {
		if err := json.Unmarshal(hook, &app.Webhook); err != nil {
			return nil, err
		}
	}
	return &app, nil
}

func (d *PGDirectory) PutTenant(ctx context.Context, t *Tenant) error {
	_, err := d.db.ExecContext(ctx,
		`insert into tenants (id, name, plan, active, secret_hash) values ($1,$2,$3,$4,$5)
		 on conflict (id) do update set name = excluded.name, plan = excluded.plan,
		   active = excluded.active, secret_hash = excluded.secret_hash`,
		t.ID, t.Name, t.Plan, t.Active, t.SecretHash)
	return err
}

func (d *PGDirectory) PutAdmin(ctx context.Context, a *Admin) error {
	_, err := d.db.ExecContext(ctx,
		`insert into admins (id, email, role, active, password_hash) values ($1,$2,$3,$4,$5)
		 on conflict (id) do update set email = excluded.email, role = excluded.role,
		   active = excluded.active, password_hash = excluded.password_hash`,
		a.ID, a.Email, a.Role, a.Active, a.PasswordHash)
	return err
}

func (d *PGDirectory) PutUser(ctx context.Context, u *User) error {
	_, err := d.db.ExecContext(ctx,
		`insert into users (id, tenant_id, application_id, email, roles, pending_role, active, password_hash)
		 values ($1,$2,$3,$4,$5,nullif($6,''),$7,$8)
		 on conflict (id) do update set email = excluded.email, roles = excluded.roles,
		   pending_role = excluded.pending_role, active = excluded.active, password_hash = excluded.password_hash`,
		u.ID, u.TenantID, u.ApplicationID, u.Email, u.Roles, u.PendingRole, u.Active, u.PasswordHash)
	return err
}

func (d *PGDirectory) PutApplication(ctx context.Context, app *Application) error {
	origins, err := json.Marshal(app.AllowedOrigins)
	if err != nil {
		return err
	}
	hook, err := json.Marshal(app.Webhook)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx,
		`insert into applications (id, tenant_id, name, auth_mode, default_role, allowed_origins, secret_hash, webhook, active)
		 values ($1,$2,$3,$4,$5,$6,nullif($7,''),$8,$9)
		 on conflict (id) do update set name = excluded.name, auth_mode = excluded.auth_mode,
		   default_role = excluded.default_role, allowed_origins = excluded.allowed_origins,
		   secret_hash = excluded.secret_hash, webhook = excluded.webhook, active = excluded.active`,
		app.ID, app.TenantID, app.Name, string(app.AuthMode), app.DefaultRole, origins, app.SecretHash, hook, app.Active)
	return err
}

func (d *PGDirectory) SetUserActive(ctx context.Context, id string, active bool) error {
	res, err := d.db.ExecContext(ctx, `update users set active = $2 where id = $1`, id, active)
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

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
