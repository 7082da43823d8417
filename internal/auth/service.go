// Package auth implements the login flows that mint tokens for each
// principal kind, plus refresh, logout and account suspension.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"warden.dev/internal/audit"
	"warden.dev/internal/fault"
	"warden.dev/internal/principal"
	"warden.dev/internal/session"
	"warden.dev/internal/subject"
	"warden.dev/internal/token"
)

// Directory is what login and provisioning need from the principal store.
type Directory interface {
	principal.Directory
	principal.Registrar
}

// Service authenticates first-factor credentials and issues token pairs.
type Service struct {
	dir        Directory
	codec      *token.Codec
	platform   token.SharedSecret
	tenantKeys token.TenantKeys
	sessions   *session.Registry

	clientSessions bool
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClientSessions makes client logins open a session, for deployments
// that enable the session check on the client strategy.
func WithClientSessions(on bool) ServiceOption {
	return func(s *Service) error {
		s.clientSessions = on
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(dir Directory, codec *token.Codec, platform token.SharedSecret, tenantKeys token.TenantKeys, sessions *session.Registry, opts ...ServiceOption) (*Service, error) {
	if dir == nil || codec == nil || sessions == nil {
		return nil, errors.New("auth: directory, codec and sessions are required")
	}
	if !platform.Configured() {
		return nil, errors.New("auth: platform secret is required")
	}
	if tenantKeys.Source == nil {
		return nil, errors.New("auth: tenant key source is required")
	}
	svc := &Service{dir: dir, codec: codec, platform: platform, tenantKeys: tenantKeys, sessions: sessions}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// TokenPair represents access and refresh tokens along with their expirations.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	SessionID        string    `json:"session_id,omitempty"`
}

// LoginAdmin checks an admin's email and password and opens a session.
func (s *Service) LoginAdmin(ctx context.Context, email, password string) (TokenPair, *principal.Identity, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return TokenPair{}, nil, fault.ErrMissingCredential
	}
	admin, err := s.dir.AdminByEmail(ctx, email)
	if err != nil {
		burnPasswordCheck(password)
		return TokenPair{}, nil, lookupFailed(err)
	}
	if err := VerifyPassword(admin.PasswordHash, password); err != nil {
		return TokenPair{}, nil, fault.ErrInvalidCredential
	}
	if !admin.Active {
		return TokenPair{}, nil, fault.ErrPrincipalInactive
	}
	id := &principal.Identity{ID: admin.ID, Kind: subject.KindAdmin, Roles: principal.NewRoleSet(admin.Role)}
	sub := token.Subject{ID: admin.ID, Kind: subject.KindAdmin, Role: admin.Role}
	pair, err := s.openSession(ctx, id, sub, s.platform)
	if err != nil {
		return TokenPair{}, nil, err
	}
	s.audit(ctx, "admin.login", id)
	return pair, id, nil
}

// LoginClient checks a tenant's client secret.
func (s *Service) LoginClient(ctx context.Context, tenantID, secret string) (TokenPair, *principal.Identity, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" || secret == "" {
		return TokenPair{}, nil, fault.ErrMissingCredential
	}
	tenant, err := s.dir.Tenant(ctx, tenantID)
	if err != nil {
		return TokenPair{}, nil, lookupFailed(err)
	}
	if !principal.VerifySecret(tenant.SecretHash, secret) {
		return TokenPair{}, nil, fault.ErrInvalidCredential
	}
	if !tenant.Active {
		return TokenPair{}, nil, fault.ErrPrincipalInactive
	}
	id := &principal.Identity{
		ID: tenant.ID, Kind: subject.KindClient, TenantID: tenant.ID,
		Roles: principal.NewRoleSet(principal.RoleClient),
	}
	sub := token.Subject{ID: tenant.ID, Kind: subject.KindClient, TenantID: tenant.ID, Role: principal.RoleClient}
	var pair TokenPair
	if s.clientSessions {
		pair, err = s.openSession(ctx, id, sub, s.platform)
	} else {
		pair, err = s.mint(ctx, sub, s.platform)
	}
	if err != nil {
		return TokenPair{}, nil, err
	}
	s.audit(ctx, "client.login", id)
	return pair, id, nil
}

// LoginUser checks an end user's password within one application. User
// tokens are signed with the tenant's active key.
func (s *Service) LoginUser(ctx context.Context, applicationID, email, password string) (TokenPair, *principal.Identity, error) {
	applicationID = strings.TrimSpace(applicationID)
	email = normalizeEmail(email)
	if applicationID == "" || email == "" || password == "" {
		return TokenPair{}, nil, fault.ErrMissingCredential
	}
	app, err := s.dir.Application(ctx, applicationID)
	if err != nil {
		burnPasswordCheck(password)
		return TokenPair{}, nil, lookupFailed(err)
	}
	user, err := s.dir.UserByEmail(ctx, app.ID, email)
	if err != nil {
		burnPasswordCheck(password)
		return TokenPair{}, nil, lookupFailed(err)
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, nil, fault.ErrInvalidCredential
	}
	tenant, err := s.dir.Tenant(ctx, app.TenantID)
	if err != nil {
		return TokenPair{}, nil, lookupFailed(err)
	}
	if !user.Active || !app.Active || !tenant.Active || user.TenantID != tenant.ID {
		return TokenPair{}, nil, fault.ErrPrincipalInactive
	}
	id := &principal.Identity{
		ID: user.ID, Kind: subject.KindUser, Roles: principal.NewRoleSet(user.Roles.Slice()...),
		TenantID: user.TenantID, ApplicationID: user.ApplicationID,
	}
	sub := token.Subject{
		ID: user.ID, Kind: subject.KindUser, TenantID: user.TenantID,
		ApplicationID: user.ApplicationID, Roles: user.Roles.Slice(),
	}
	pair, err := s.openSession(ctx, id, sub, s.tenantKeys)
	if err != nil {
		return TokenPair{}, nil, err
	}
	s.audit(ctx, "user.login", id)
	return pair, id, nil
}

// Refresh exchanges a refresh token for a new pair. The principal is
// reloaded so suspensions and role changes take effect, and the session
// the refresh token belongs to must still be live.
func (s *Service) Refresh(ctx context.Context, kind subject.Kind, refreshToken string) (TokenPair, error) {
	material := s.materialFor(kind)
	claims, err := s.codec.Verify(ctx, refreshToken, token.PurposeRefresh, material)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.Kind != kind {
		return TokenPair{}, fault.ErrInvalidCredential.WithDetail("refresh token was issued to a " + string(claims.Kind))
	}

	sub, err := s.reload(ctx, claims)
	if err != nil {
		return TokenPair{}, err
	}
	if kind != subject.KindClient || s.clientSessions {
		if err := s.sessions.ValidFor(ctx, claims.Ref(), claims.SessionID); err != nil {
			return TokenPair{}, err
		}
	}
	sub.SessionID = claims.SessionID
	pair, err := s.mint(ctx, sub, material)
	if err != nil {
		return TokenPair{}, err
	}
	pair.SessionID = claims.SessionID
	return pair, nil
}

// Logout revokes the caller's current session, or all of its sessions.
func (s *Service) Logout(ctx context.Context, id *principal.Identity, everywhere bool) error {
	if id == nil {
		return fault.ErrMissingCredential
	}
	if everywhere || id.SessionID == "" {
		if _, err := s.sessions.RevokeAll(ctx, id.Ref()); err != nil {
			return err
		}
	} else if err := s.sessions.Revoke(ctx, id.SessionID); err != nil && !errors.Is(err, session.ErrNotFound) {
		return err
	}
	s.audit(ctx, "logout", id)
	return nil
}

// SuspendUser deactivates a user and revokes every session it holds, so
// outstanding tokens stop authenticating at once.
func (s *Service) SuspendUser(ctx context.Context, userID string) error {
	if err := s.dir.SetUserActive(ctx, userID, false); err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		return err
	}
	n, err := s.sessions.RevokeAll(ctx, subject.Ref{ID: userID, Kind: subject.KindUser})
	if err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "user.suspended", map[string]any{"user_id": userID, "sessions_revoked": n})
	return nil
}

// ReactivateUser re-enables a suspended user. Old sessions stay revoked.
func (s *Service) ReactivateUser(ctx context.Context, userID string) error {
	if err := s.dir.SetUserActive(ctx, userID, true); err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		return err
	}
	_ = audit.LogEvent(ctx, "user.reactivated", map[string]any{"user_id": userID})
	return nil
}

func (s *Service) openSession(ctx context.Context, id *principal.Identity, sub token.Subject, m token.SigningMaterial) (TokenPair, error) {
	sess, err := s.sessions.Create(ctx, id.Ref())
	if err != nil {
		return TokenPair{}, err
	}
	id.SessionID = sess.ID
	sub.SessionID = sess.ID
	pair, err := s.mint(ctx, sub, m)
	if err != nil {
		// The session would otherwise outlive a login that never completed.
		_ = s.sessions.Revoke(ctx, sess.ID)
		return TokenPair{}, err
	}
	pair.SessionID = sess.ID
	return pair, nil
}

func (s *Service) mint(ctx context.Context, sub token.Subject, m token.SigningMaterial) (TokenPair, error) {
	access, err := s.codec.Issue(ctx, sub, token.PurposeAccess, m)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.codec.Issue(ctx, sub, token.PurposeRefresh, m)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access.Token,
		RefreshToken:     refresh.Token,
		TokenType:        "Bearer",
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

func (s *Service) materialFor(kind subject.Kind) token.SigningMaterial {
	if kind == subject.KindUser {
		return s.tenantKeys
	}
	return s.platform
}

// reload rebuilds the token subject from the current principal record.
func (s *Service) reload(ctx context.Context, claims *token.Claims) (token.Subject, error) {
	switch claims.Kind {
	case subject.KindAdmin:
		admin, err := s.dir.Admin(ctx, claims.Subject)
		if err != nil {
			return token.Subject{}, lookupFailed(err)
		}
		if !admin.Active {
			return token.Subject{}, fault.ErrPrincipalInactive
		}
		return token.Subject{ID: admin.ID, Kind: subject.KindAdmin, Role: admin.Role}, nil
	case subject.KindClient:
		tenant, err := s.dir.Tenant(ctx, claims.Subject)
		if err != nil {
			return token.Subject{}, lookupFailed(err)
		}
		if !tenant.Active {
			return token.Subject{}, fault.ErrPrincipalInactive
		}
		return token.Subject{ID: tenant.ID, Kind: subject.KindClient, TenantID: tenant.ID, Role: principal.RoleClient}, nil
	case subject.KindUser:
		user, err := s.dir.User(ctx, claims.Subject)
		if err != nil {
			return token.Subject{}, lookupFailed(err)
		}
		if !user.Active {
			return token.Subject{}, fault.ErrPrincipalInactive
		}
		if user.TenantID != claims.TenantID || user.ApplicationID != claims.ApplicationID {
			return token.Subject{}, fault.ErrInvalidCredential.WithDetail("token binding does not match user")
		}
		tenant, err := s.dir.Tenant(ctx, user.TenantID)
		if err != nil {
			return token.Subject{}, lookupFailed(err)
		}
		app, err := s.dir.Application(ctx, user.ApplicationID)
		if err != nil {
			return token.Subject{}, lookupFailed(err)
		}
		if !tenant.Active || !app.Active {
			return token.Subject{}, fault.ErrPrincipalInactive
		}
		return token.Subject{
			ID: user.ID, Kind: subject.KindUser, TenantID: user.TenantID,
			ApplicationID: user.ApplicationID, Roles: user.Roles.Slice(),
		}, nil
	default:
		return token.Subject{}, fault.ErrInvalidCredential.WithDetail("kind " + string(claims.Kind) + " cannot refresh")
	}
}

func (s *Service) audit(ctx context.Context, event string, id *principal.Identity) {
	fields := map[string]any{"principal_id": id.ID, "kind": string(id.Kind)}
	if id.TenantID != "" {
		fields["tenant_id"] = id.TenantID
	}
	if id.SessionID != "" {
		fields["session_id"] = id.SessionID
	}
	_ = audit.LogEvent(ctx, event, fields)
}

func lookupFailed(err error) error {
	if errors.Is(err, principal.ErrNotFound) {
		return fault.ErrInvalidCredential
	}
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
