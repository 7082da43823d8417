package principal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"warden.dev/internal/fault"
	"warden.dev/internal/subject"
	"warden.dev/internal/token"
)

// Authenticator is one credential strategy. Each strategy trusts only its
// own root: none accepts another's credential.
type Authenticator interface {
	Kind() subject.Kind
	Authenticate(ctx context.Context, cred Credential) (*Identity, error)
}

// TokenVerifier is satisfied by *token.Codec.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string, expected token.Purpose, m token.SigningMaterial) (*token.Claims, error)
}

// SessionChecker is satisfied by *session.Registry.
type SessionChecker interface {
	ValidFor(ctx context.Context, principal subject.Ref, sessionID string) error
}

const RoleClient = "client"

// bearer verifies an access token and pins it to one principal kind.
type bearer struct {
	tokens   TokenVerifier
	material token.SigningMaterial
	kind     subject.Kind
}

func (b bearer) claims(ctx context.Context, cred Credential) (*token.Claims, error) {
	if strings.TrimSpace(cred.Bearer) == "" {
		return nil, fault.ErrMissingCredential.WithDetail("bearer token required")
	}
	claims, err := b.tokens.Verify(ctx, cred.Bearer, token.PurposeAccess, b.material)
	if err != nil {
		return nil, err
	}
	if claims.Kind != b.kind {
		return nil, fault.ErrInvalidCredential.WithDetail("token was issued to a " + string(claims.Kind))
	}
	return claims, nil
}

// requireSession is the session step shared by the session-backed kinds.
func requireSession(ctx context.Context, sessions SessionChecker, id *Identity) error {
	return sessions.ValidFor(ctx, id.Ref(), id.SessionID)
}

func lookupFailed(what string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fault.ErrInvalidCredential.WithDetail("unknown " + what)
	}
	return fmt.Errorf("principal: load %s: %w", what, err)
}

// AdminAuthenticator accepts platform-signed admin tokens backed by a live session.
type AdminAuthenticator struct {
	bearer   bearer
	dir      Directory
	sessions SessionChecker
}

func NewAdminAuthenticator(tokens TokenVerifier, platform token.SharedSecret, dir Directory, sessions SessionChecker) *AdminAuthenticator {
	return &AdminAuthenticator{
		bearer:   bearer{tokens: tokens, material: platform, kind: subject.KindAdmin},
		dir:      dir,
		sessions: sessions,
	}
}

func (a *AdminAuthenticator) Kind() subject.Kind { return subject.KindAdmin }

func (a *AdminAuthenticator) Authenticate(ctx context.Context, cred Credential) (*Identity, error) {
	claims, err := a.bearer.claims(ctx, cred)
	if err != nil {
		return nil, err
	}
	admin, err := a.dir.Admin(ctx, claims.Subject)
	if err != nil {
		return nil, lookupFailed("admin", err)
	}
	if !admin.Active {
		return nil, fault.ErrPrincipalInactive.WithDetail("admin " + admin.ID)
	}
	id := &Identity{
		ID:        admin.ID,
		Kind:      subject.KindAdmin,
		Roles:     NewRoleSet(admin.Role),
		SessionID: claims.SessionID,
	}
	if err := requireSession(ctx, a.sessions, id); err != nil {
		return nil, err
	}
	return id, nil
}

// ClientAuthenticator accepts platform-signed tokens for a tenant acting on
// its own behalf. Sessions are not consulted unless checkSession is set.
type ClientAuthenticator struct {
	bearer       bearer
	dir          Directory
	sessions     SessionChecker
	checkSession bool
}

func NewClientAuthenticator(tokens TokenVerifier, platform token.SharedSecret, dir Directory, sessions SessionChecker, checkSession bool) *ClientAuthenticator {
	return &ClientAuthenticator{
		bearer:       bearer{tokens: tokens, material: platform, kind: subject.KindClient},
		dir:          dir,
		sessions:     sessions,
		checkSession: checkSession,
	}
}

func (c *ClientAuthenticator) Kind() subject.Kind { return subject.KindClient }

func (c *ClientAuthenticator) Authenticate(ctx context.Context, cred Credential) (*Identity, error) {
	claims, err := c.bearer.claims(ctx, cred)
	if err != nil {
		return nil, err
	}
	tenant, err := c.dir.Tenant(ctx, claims.Subject)
	if err != nil {
		return nil, lookupFailed("client", err)
	}
	if !tenant.Active {
		return nil, fault.ErrPrincipalInactive.WithDetail("client " + tenant.ID)
	}
	id := &Identity{
		ID:        tenant.ID,
		Kind:      subject.KindClient,
		Roles:     NewRoleSet(RoleClient),
		TenantID:  tenant.ID,
		SessionID: claims.SessionID,
	}
	if c.checkSession {
		if err := requireSession(ctx, c.sessions, id); err != nil {
			return nil, err
		}
	}
	return id, nil
}

// UserAuthenticator accepts tenant-signed user tokens. The user, its tenant
// and its application must all be active, and a user session must be live.
type UserAuthenticator struct {
	bearer   bearer
	dir      Directory
	sessions SessionChecker
}

func NewUserAuthenticator(tokens TokenVerifier, tenantKeys token.TenantKeys, dir Directory, sessions SessionChecker) *UserAuthenticator {
	return &UserAuthenticator{
		bearer:   bearer{tokens: tokens, material: tenantKeys, kind: subject.KindUser},
		dir:      dir,
		sessions: sessions,
	}
}

func (u *UserAuthenticator) Kind() subject.Kind { return subject.KindUser }

func (u *UserAuthenticator) Authenticate(ctx context.Context, cred Credential) (*Identity, error) {
	claims, err := u.bearer.claims(ctx, cred)
	if err != nil {
		return nil, err
	}
	user, err := u.dir.User(ctx, claims.Subject)
	if err != nil {
		return nil, lookupFailed("user", err)
	}
	if user.TenantID != claims.TenantID || user.ApplicationID != claims.ApplicationID {
		return nil, fault.ErrInvalidCredential.WithDetail("token binding does not match user")
	}
	tenant, err := u.dir.Tenant(ctx, user.TenantID)
	if err != nil {
		return nil, lookupFailed("client", err)
	}
	app, err := u.dir.Application(ctx, user.ApplicationID)
	if err != nil {
		return nil, lookupFailed("application", err)
	}
	switch {
	case !user.Active:
		return nil, fault.ErrPrincipalInactive.WithDetail("user " + user.ID)
	case !tenant.Active:
		return nil, fault.ErrPrincipalInactive.WithDetail("client " + tenant.ID)
	case !app.Active || app.TenantID != tenant.ID:
		return nil, fault.ErrPrincipalInactive.WithDetail("application " + app.ID)
	}
	id := &Identity{
		ID:            user.ID,
		Kind:          subject.KindUser,
		Roles:         NewRoleSet(user.Roles.Slice()...),
		TenantID:      user.TenantID,
		ApplicationID: user.ApplicationID,
		SessionID:     claims.SessionID,
	}
	if err := requireSession(ctx, u.sessions, id); err != nil {
		return nil, err
	}
	return id, nil
}

// ApplicationAuthenticator authenticates machine callers by application id
// plus either the shared secret or a trusted Origin. A presented secret
// always decides the outcome: a wrong secret never falls back to Origin.
type ApplicationAuthenticator struct {
	dir     Directory
	devMode bool
}

func NewApplicationAuthenticator(dir Directory, devMode bool) *ApplicationAuthenticator {
	return &ApplicationAuthenticator{dir: dir, devMode: devMode}
}

func (a *ApplicationAuthenticator) Kind() subject.Kind { return subject.KindApplication }

func (a *ApplicationAuthenticator) Authenticate(ctx context.Context, cred Credential) (*Identity, error) {
	if cred.ApplicationID == "" {
		return nil, fault.ErrMissingCredential.WithDetail("application id required")
	}
	app, err := a.dir.Application(ctx, cred.ApplicationID)
	if err != nil {
		return nil, lookupFailed("application", err)
	}
	if !app.Active {
		return nil, fault.ErrPrincipalInactive.WithDetail("application " + app.ID)
	}
	tenant, err := a.dir.Tenant(ctx, app.TenantID)
	if err != nil {
		return nil, lookupFailed("client", err)
	}
	if !tenant.Active {
		return nil, fault.ErrPrincipalInactive.WithDetail("client " + tenant.ID)
	}

	if err := a.check(app, cred); err != nil {
		return nil, err
	}
	return &Identity{
		ID:            app.ID,
		Kind:          subject.KindApplication,
		Roles:         NewRoleSet(app.DefaultRole),
		TenantID:      app.TenantID,
		ApplicationID: app.ID,
	}, nil
}

func (a *ApplicationAuthenticator) check(app *Application, cred Credential) error {
	if cred.ApplicationSecret != "" {
		if !VerifySecret(app.SecretHash, cred.ApplicationSecret) {
			return fault.ErrInvalidCredential.WithDetail("application secret mismatch")
		}
		return nil
	}
	if app.AuthMode != AuthModeOrigin {
		return fault.ErrMissingCredential.WithDetail("application secret required")
	}
	if cred.Origin == "" {
		return fault.ErrMissingCredential.WithDetail("origin required")
	}
	if a.devMode && IsLoopbackOrigin(cred.Origin) {
		return nil
	}
	if !MatchOrigin(app.AllowedOrigins, cred.Origin) {
		return fault.ErrInvalidCredential.WithDetail("origin not allowed")
	}
	return nil
}
