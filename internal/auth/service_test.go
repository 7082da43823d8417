package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"warden.dev/internal/fault"
	"warden.dev/internal/keys"
	"warden.dev/internal/principal"
	"warden.dev/internal/session"
	"warden.dev/internal/subject"
	"warden.dev/internal/token"
)

type fixture struct {
	dir      *principal.MemoryDirectory
	keys     *keys.Manager
	codec    *token.Codec
	platform token.SharedSecret
	tenant   token.TenantKeys
	sessions *session.Registry
	svc      *Service
}

func newFixture(t *testing.T, opts ...ServiceOption) *fixture {
	t.Helper()
	ctx := context.Background()

	cipher, err := keys.NewCipher([]byte("auth-test-master"))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	mgr, err := keys.NewManager(keys.NewMemoryStore(), cipher, keys.WithKeyBits(1024))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	platform, err := token.NewSharedSecret([]byte("platform-secret-platform-secret-!"))
	if err != nil {
		t.Fatalf("NewSharedSecret: %v", err)
	}
	f := &fixture{
		dir:      principal.NewMemoryDirectory(),
		keys:     mgr,
		codec:    token.NewCodec(),
		platform: platform,
		tenant:   token.TenantKeys{Source: mgr},
		sessions: session.NewRegistry(session.NewMemoryStore(), session.WithTTL(time.Hour)),
	}
	f.svc, err = NewService(f.dir, f.codec, f.platform, f.tenant, f.sessions, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(f.dir.PutTenant(ctx, &principal.Tenant{ID: "t1", Name: "Acme", Active: true, SecretHash: principal.HashSecret("tenant-secret")}))
	must(f.dir.PutAdmin(ctx, &principal.Admin{ID: "a1", Email: "ops@warden.dev", Role: RoleAdmin, Active: true, PasswordHash: hash}))
	must(f.dir.PutApplication(ctx, &principal.Application{ID: "app1", TenantID: "t1", Name: "web", AuthMode: principal.AuthModeOrigin, Active: true}))
	must(f.dir.PutUser(ctx, &principal.User{
		ID: "u1", TenantID: "t1", ApplicationID: "app1", Email: "jane@acme.test",
		Roles: principal.NewRoleSet("member"), Active: true, PasswordHash: hash,
	}))
	if _, err := mgr.Generate(ctx, "t1"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return f
}

func TestLoginAdminIssuesSessionBoundPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, id, err := f.svc.LoginAdmin(ctx, " OPS@warden.dev ", "correct horse")
	if err != nil {
		t.Fatalf("LoginAdmin: %v", err)
	}
	if pair.SessionID == "" || id.SessionID != pair.SessionID {
		t.Fatalf("expected session id on pair and identity, got %q / %q", pair.SessionID, id.SessionID)
	}
	claims, err := f.codec.Verify(ctx, pair.AccessToken, token.PurposeAccess, f.platform)
	if err != nil {
		t.Fatalf("Verify access: %v", err)
	}
	if claims.Subject != "a1" || claims.Kind != subject.KindAdmin || claims.SessionID != pair.SessionID {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Role != RoleAdmin {
		t.Fatalf("expected role %q, got %q", RoleAdmin, claims.Role)
	}
	if !pair.RefreshExpiresAt.After(pair.AccessExpiresAt) {
		t.Fatalf("refresh should outlive access: %v <= %v", pair.RefreshExpiresAt, pair.AccessExpiresAt)
	}
}

func TestLoginAdminFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, _, err := f.svc.LoginAdmin(ctx, "ops@warden.dev", "wrong"); !errors.Is(err, fault.ErrInvalidCredential) {
		t.Fatalf("wrong password: expected invalid credential, got %v", err)
	}
	if _, _, err := f.svc.LoginAdmin(ctx, "nobody@warden.dev", "correct horse"); !errors.Is(err, fault.ErrInvalidCredential) {
		t.Fatalf("unknown admin: expected invalid credential, got %v", err)
	}
	if _, _, err := f.svc.LoginAdmin(ctx, "", ""); !errors.Is(err, fault.ErrMissingCredential) {
		t.Fatalf("blank: expected missing credential, got %v", err)
	}

	admin, _ := f.dir.Admin(ctx, "a1")
	admin.Active = false
	if err := f.dir.PutAdmin(ctx, admin); err != nil {
		t.Fatalf("PutAdmin: %v", err)
	}
	if _, _, err := f.svc.LoginAdmin(ctx, "ops@warden.dev", "correct horse"); !errors.Is(err, fault.ErrPrincipalInactive) {
		t.Fatalf("inactive admin: expected principal inactive, got %v", err)
	}
}

func TestLoginUserSignsWithTenantKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, _, err := f.svc.LoginUser(ctx, "app1", "jane@acme.test", "correct horse")
	if err != nil {
		t.Fatalf("LoginUser: %v", err)
	}
	claims, err := f.codec.Verify(ctx, pair.AccessToken, token.PurposeAccess, f.tenant)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.TenantID != "t1" || claims.ApplicationID != "app1" {
		t.Fatalf("unexpected binding: %+v", claims)
	}
	if _, err := f.codec.Verify(ctx, pair.AccessToken, token.PurposeAccess, f.platform); err == nil {
		t.Fatal("user token must not verify against the platform secret")
	}
}

func TestLoginUserWithoutTenantKeyLeavesNoSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	active, err := f.keys.GetActive(ctx, "t1")
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if err := f.keys.Revoke(ctx, "t1", active.Record.KeyID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	_, _, err = f.svc.LoginUser(ctx, "app1", "jane@acme.test", "correct horse")
	if !errors.Is(err, fault.ErrNoActiveKey) {
		t.Fatalf("expected no active key, got %v", err)
	}
	ok, err := f.sessions.IsValid(ctx, subject.Ref{ID: "u1", Kind: subject.KindUser})
	if err != nil {
		t.Fatalf("IsValid: %v", err)
	}
	if ok {
		t.Fatal("failed login must not leave a live session")
	}
}

func TestLoginUserInactiveApplication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	app, _ := f.dir.Application(ctx, "app1")
	app.Active = false
	if err := f.dir.PutApplication(ctx, app); err != nil {
		t.Fatalf("PutApplication: %v", err)
	}
	if _, _, err := f.svc.LoginUser(ctx, "app1", "jane@acme.test", "correct horse"); !errors.Is(err, fault.ErrPrincipalInactive) {
		t.Fatalf("expected principal inactive, got %v", err)
	}
}

func TestRefreshRotatesPairAndHonorsSuspension(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, _, err := f.svc.LoginUser(ctx, "app1", "jane@acme.test", "correct horse")
	if err != nil {
		t.Fatalf("LoginUser: %v", err)
	}

	next, err := f.svc.Refresh(ctx, subject.KindUser, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.SessionID != pair.SessionID {
		t.Fatalf("refresh should stay in session %s, got %s", pair.SessionID, next.SessionID)
	}

	if _, err := f.svc.Refresh(ctx, subject.KindUser, pair.AccessToken); !errors.Is(err, fault.ErrTokenPurposeMismatch) {
		t.Fatalf("access token as refresh: expected purpose mismatch, got %v", err)
	}

	if err := f.svc.SuspendUser(ctx, "u1"); err != nil {
		t.Fatalf("SuspendUser: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, subject.KindUser, next.RefreshToken); !errors.Is(err, fault.ErrPrincipalInactive) {
		t.Fatalf("after suspension: expected principal inactive, got %v", err)
	}

	if err := f.svc.ReactivateUser(ctx, "u1"); err != nil {
		t.Fatalf("ReactivateUser: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, subject.KindUser, next.RefreshToken); !errors.Is(err, fault.ErrSessionInvalid) {
		t.Fatalf("after reactivation: expected session invalid, got %v", err)
	}
}

func TestRefreshRequiresActiveTenantAndApplication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, _, err := f.svc.LoginUser(ctx, "app1", "jane@acme.test", "correct horse")
	if err != nil {
		t.Fatalf("LoginUser: %v", err)
	}

	tenant, _ := f.dir.Tenant(ctx, "t1")
	tenant.Active = false
	if err := f.dir.PutTenant(ctx, tenant); err != nil {
		t.Fatalf("PutTenant: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, subject.KindUser, pair.RefreshToken); !errors.Is(err, fault.ErrPrincipalInactive) {
		t.Fatalf("inactive tenant: expected principal inactive, got %v", err)
	}

	tenant.Active = true
	if err := f.dir.PutTenant(ctx, tenant); err != nil {
		t.Fatalf("PutTenant: %v", err)
	}
	app, _ := f.dir.Application(ctx, "app1")
	app.Active = false
	if err := f.dir.PutApplication(ctx, app); err != nil {
		t.Fatalf("PutApplication: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, subject.KindUser, pair.RefreshToken); !errors.Is(err, fault.ErrPrincipalInactive) {
		t.Fatalf("inactive application: expected principal inactive, got %v", err)
	}

	app.Active = true
	if err := f.dir.PutApplication(ctx, app); err != nil {
		t.Fatalf("PutApplication: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, subject.KindUser, pair.RefreshToken); err != nil {
		t.Fatalf("reactivated tenant and application: %v", err)
	}
}

func TestUnknownLoginStillComparesPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var calls int
	orig := compareHash
	compareHash = func(hash, password []byte) error {
		calls++
		return orig(hash, password)
	}
	t.Cleanup(func() { compareHash = orig })

	if _, _, err := f.svc.LoginAdmin(ctx, "nobody@warden.dev", "correct horse"); !errors.Is(err, fault.ErrInvalidCredential) {
		t.Fatalf("unknown admin: expected invalid credential, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("unknown admin: expected 1 bcrypt comparison, got %d", calls)
	}

	calls = 0
	if _, _, err := f.svc.LoginUser(ctx, "app1", "nobody@acme.test", "correct horse"); !errors.Is(err, fault.ErrInvalidCredential) {
		t.Fatalf("unknown user: expected invalid credential, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("unknown user: expected 1 bcrypt comparison, got %d", calls)
	}

	calls = 0
	if _, _, err := f.svc.LoginAdmin(ctx, "ops@warden.dev", "wrong password"); !errors.Is(err, fault.ErrInvalidCredential) {
		t.Fatalf("wrong password: expected invalid credential, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("wrong password: expected 1 bcrypt comparison, got %d", calls)
	}
}

func TestRefreshRejectsOtherKind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, _, err := f.svc.LoginAdmin(ctx, "ops@warden.dev", "correct horse")
	if err != nil {
		t.Fatalf("LoginAdmin: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, subject.KindClient, pair.RefreshToken); !errors.Is(err, fault.ErrInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, id, err := f.svc.LoginAdmin(ctx, "ops@warden.dev", "correct horse")
	if err != nil {
		t.Fatalf("LoginAdmin: %v", err)
	}
	second, _, err := f.svc.LoginAdmin(ctx, "ops@warden.dev", "correct horse")
	if err != nil {
		t.Fatalf("LoginAdmin: %v", err)
	}

	if err := f.svc.Logout(ctx, id, false); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, subject.KindAdmin, first.RefreshToken); !errors.Is(err, fault.ErrSessionInvalid) {
		t.Fatalf("logged-out session: expected session invalid, got %v", err)
	}
	if _, err := f.svc.Refresh(ctx, subject.KindAdmin, second.RefreshToken); err != nil {
		t.Fatalf("other session should survive: %v", err)
	}

	if err := f.svc.Logout(ctx, id, true); err != nil {
		t.Fatalf("Logout everywhere: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, subject.KindAdmin, second.RefreshToken); !errors.Is(err, fault.ErrSessionInvalid) {
		t.Fatalf("after logout everywhere: expected session invalid, got %v", err)
	}
}

func TestLoginClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, _, err := f.svc.LoginClient(ctx, "t1", "nope"); !errors.Is(err, fault.ErrInvalidCredential) {
		t.Fatalf("wrong secret: expected invalid credential, got %v", err)
	}
	pair, id, err := f.svc.LoginClient(ctx, "t1", "tenant-secret")
	if err != nil {
		t.Fatalf("LoginClient: %v", err)
	}
	if pair.SessionID != "" || id.TenantID != "t1" {
		t.Fatalf("unexpected client login: %+v %+v", pair, id)
	}
	if _, err := f.svc.Refresh(ctx, subject.KindClient, pair.RefreshToken); err != nil {
		t.Fatalf("sessionless refresh: %v", err)
	}
}

func TestLoginClientWithSessions(t *testing.T) {
	f := newFixture(t, WithClientSessions(true))
	ctx := context.Background()

	pair, id, err := f.svc.LoginClient(ctx, "t1", "tenant-secret")
	if err != nil {
		t.Fatalf("LoginClient: %v", err)
	}
	if pair.SessionID == "" {
		t.Fatal("expected a client session")
	}
	if err := f.svc.Logout(ctx, id, false); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, subject.KindClient, pair.RefreshToken); !errors.Is(err, fault.ErrSessionInvalid) {
		t.Fatalf("expected session invalid, got %v", err)
	}
}

func TestSuspendUnknownUser(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.SuspendUser(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHashPasswordRejectsShort(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected weak password, got %v", err)
	}
	if err := VerifyPassword("", "anything"); err == nil {
		t.Fatal("empty hash must never verify")
	}
}
