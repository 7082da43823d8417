package principal

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var (
	applicationColumns = []string{"id", "tenant_id", "name", "auth_mode", "default_role", "allowed_origins",
		"secret_hash", "webhook", "active", "created_at"}
	userRowColumns = []string{"id", "tenant_id", "application_id", "email", "roles", "pending_role",
		"active", "password_hash", "created_at"}
)

func newMockDirectory(t *testing.T) (*PGDirectory, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPGDirectory(db), mock
}

func TestPGDirectoryApplicationDecodesJSONColumns(t *testing.T) {
	d, mock := newMockDirectory(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("from applications where id = $1")).WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows(applicationColumns).AddRow(
			"app-1", "t1", "storefront", "origin", "member",
			[]byte(`["https://shop.io","https://*.shop.io"]`), nil,
			[]byte(`{"url":"https://hooks.shop.io","events":["user.created"]}`), true, now))

	app, err := d.Application(context.Background(), "app-1")
	if err != nil {
		t.Fatalf("Application: %v", err)
	}
	if app.AuthMode != AuthModeOrigin {
		t.Fatalf("auth mode = %q", app.AuthMode)
	}
	if app.SecretHash != "" {
		t.Fatalf("null secret_hash should scan empty, got %q", app.SecretHash)
	}
	if len(app.AllowedOrigins) != 2 || app.AllowedOrigins[1] != "https://*.shop.io" {
		t.Fatalf("origins = %v", app.AllowedOrigins)
	}
	if app.Webhook.URL != "https://hooks.shop.io" || len(app.Webhook.Events) != 1 {
		t.Fatalf("webhook = %+v", app.Webhook)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGDirectoryApplicationBadOriginsJSON(t *testing.T) {
	d, mock := newMockDirectory(t)
	mock.ExpectQuery("from applications").WillReturnRows(sqlmock.NewRows(applicationColumns).AddRow(
		"app-1", "t1", "storefront", "origin", "", []byte(`{not json`), nil, nil, true, time.Now()))

	if _, err := d.Application(context.Background(), "app-1"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestPGDirectoryUserByEmailNormalizes(t *testing.T) {
	d, mock := newMockDirectory(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("where application_id = $1 and lower(email) = $2")).
		WithArgs("app-1", "jane@example.com").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(
			"u-1", "t1", "app-1", "Jane@Example.com", []byte(`["Member","editor"]`), "billing", true, "hash", now))

	u, err := d.UserByEmail(context.Background(), "app-1", "  JANE@example.COM ")
	if err != nil {
		t.Fatalf("UserByEmail: %v", err)
	}
	if !u.Roles.Has("member") || !u.Roles.Has("editor") || len(u.Roles) != 2 {
		t.Fatalf("roles = %v", u.Roles.Slice())
	}
	if u.PendingRole != "billing" {
		t.Fatalf("pending role = %q", u.PendingRole)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGDirectoryUserNullColumns(t *testing.T) {
	d, mock := newMockDirectory(t)
	mock.ExpectQuery(regexp.QuoteMeta("from users where id = $1")).WithArgs("u-2").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(
			"u-2", "t1", "app-1", "sam@example.com", nil, nil, false, "hash", time.Now()))

	u, err := d.User(context.Background(), "u-2")
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if u.Roles == nil || len(u.Roles) != 0 {
		t.Fatalf("null roles should scan to an empty set, got %v", u.Roles)
	}
	if u.PendingRole != "" || u.Active {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestPGDirectoryMissingRowsAreNotFound(t *testing.T) {
	d, mock := newMockDirectory(t)
	ctx := context.Background()

	mock.ExpectQuery("from tenants where id").WithArgs("t-missing").WillReturnError(sql.ErrNoRows)
	if _, err := d.Tenant(ctx, "t-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Tenant: expected ErrNotFound, got %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta("from admins where lower(email) = $1")).WithArgs("root@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "role", "active", "password_hash", "created_at"}))
	if _, err := d.AdminByEmail(ctx, "Root@Example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("AdminByEmail: expected ErrNotFound, got %v", err)
	}

	boom := errors.New("connection reset")
	mock.ExpectQuery("from users where id").WillReturnError(boom)
	if _, err := d.User(ctx, "u-1"); !errors.Is(err, boom) {
		t.Fatalf("User: expected driver error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGDirectoryPutUserStoresRolesAsJSON(t *testing.T) {
	d, mock := newMockDirectory(t)
	u := &User{
		ID:            "u-1",
		TenantID:      "t1",
		ApplicationID: "app-1",
		Email:         "jane@example.com",
		Roles:         NewRoleSet("member", "Editor"),
		Active:        true,
		PasswordHash:  "hash",
	}

	mock.ExpectExec(regexp.QuoteMeta("nullif($6,'')")).
		WithArgs("u-1", "t1", "app-1", "jane@example.com", `["editor","member"]`, "", true, "hash").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := d.PutUser(context.Background(), u); err != nil {
		t.Fatalf("PutUser: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGDirectoryPutApplicationEncodesOrigins(t *testing.T) {
	d, mock := newMockDirectory(t)
	app := &Application{
		ID:             "app-1",
		TenantID:       "t1",
		Name:           "storefront",
		AuthMode:       AuthModeOrigin,
		AllowedOrigins: []string{"https://shop.io"},
		Active:         true,
	}

	mock.ExpectExec("insert into applications").
		WithArgs("app-1", "t1", "storefront", "origin", "", []byte(`["https://shop.io"]`), "", []byte(`{}`), true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := d.PutApplication(context.Background(), app); err != nil {
		t.Fatalf("PutApplication: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGDirectorySetUserActive(t *testing.T) {
	d, mock := newMockDirectory(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("update users set active = $2 where id = $1")).
		WithArgs("u-1", false).WillReturnResult(sqlmock.NewResult(0, 1))
	if err := d.SetUserActive(ctx, "u-1", false); err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}

	mock.ExpectExec("update users set active").
		WithArgs("u-missing", true).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := d.SetUserActive(ctx, "u-missing", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
