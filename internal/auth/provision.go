package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"warden.dev/internal/audit"
	"warden.dev/internal/ids"
	"warden.dev/internal/principal"
	"warden.dev/internal/subject"
)

// NewApplication describes an application to register under a tenant.
type NewApplication struct {
	Name           string
	AuthMode       principal.AuthMode
	DefaultRole    string
	AllowedOrigins []string
	Webhook        principal.Webhook
}

// NewUser describes an end user to register under an application.
type NewUser struct {
	Email    string
	Password string
	Roles    []string
}

// CreateTenant registers an active tenant and returns its client secret.
// The secret is only ever returned here.
func (s *Service) CreateTenant(ctx context.Context, name, plan string) (*principal.Tenant, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", fmt.Errorf("%w: tenant name is required", ErrInvalid)
	}
	secret, hash, err := principal.NewSecret()
	if err != nil {
		return nil, "", err
	}
	t := &principal.Tenant{
		ID:         ids.New(),
		Name:       name,
		Plan:       strings.TrimSpace(plan),
		Active:     true,
		SecretHash: hash,
		CreatedAt:  s.now(),
	}
	if err := s.dir.PutTenant(ctx, t); err != nil {
		return nil, "", err
	}
	_ = audit.LogEvent(ctx, "tenant.created", map[string]any{"tenant_id": t.ID})
	return t, secret, nil
}

// CreateApplication registers an application under tenantID. Secret-mode
// applications get a secret, returned once; origin-mode ones get none.
func (s *Service) CreateApplication(ctx context.Context, tenantID string, req NewApplication) (*principal.Application, string, error) {
	tenant, err := s.dir.Tenant(ctx, tenantID)
	if err != nil {
		return nil, "", notFoundAs(err, "tenant "+tenantID)
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, "", fmt.Errorf("%w: application name is required", ErrInvalid)
	}
	if req.AuthMode == "" {
		req.AuthMode = principal.AuthModeSecret
	}
	app := &principal.Application{
		ID:             ids.New(),
		TenantID:       tenant.ID,
		Name:           req.Name,
		AuthMode:       req.AuthMode,
		DefaultRole:    strings.ToLower(strings.TrimSpace(req.DefaultRole)),
		AllowedOrigins: req.AllowedOrigins,
		Webhook:        req.Webhook,
		Active:         true,
		CreatedAt:      s.now(),
	}
	var secret string
	switch req.AuthMode {
	case principal.AuthModeSecret:
		plain, hash, err := principal.NewSecret()
		if err != nil {
			return nil, "", err
		}
		secret, app.SecretHash = plain, hash
	case principal.AuthModeOrigin:
		if len(req.AllowedOrigins) == 0 {
			return nil, "", fmt.Errorf("%w: origin applications need at least one allowed origin", ErrInvalid)
		}
	default:
		return nil, "", fmt.Errorf("%w: unknown auth mode %q", ErrInvalid, req.AuthMode)
	}
	if err := s.dir.PutApplication(ctx, app); err != nil {
		return nil, "", err
	}
	_ = audit.LogEvent(ctx, "application.created", map[string]any{
		"tenant_id": app.TenantID, "application_id": app.ID, "auth_mode": string(app.AuthMode),
	})
	return app, secret, nil
}

// CreateUser registers an end user of applicationID, which must belong to
// tenantID. Without explicit roles the application's default role is used.
func (s *Service) CreateUser(ctx context.Context, tenantID, applicationID string, req NewUser) (*principal.User, error) {
	app, err := s.dir.Application(ctx, applicationID)
	if err != nil {
		return nil, notFoundAs(err, "application "+applicationID)
	}
	if app.TenantID != tenantID {
		return nil, fmt.Errorf("%w: application %s", ErrNotFound, applicationID)
	}
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalid)
	}
	if _, err := s.dir.UserByEmail(ctx, app.ID, email); err == nil {
		return nil, fmt.Errorf("%w: user %s", ErrConflict, email)
	} else if !errors.Is(err, principal.ErrNotFound) {
		return nil, err
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	roles := principal.NewRoleSet(req.Roles...)
	if len(roles) == 0 && app.DefaultRole != "" {
		roles.Add(app.DefaultRole)
	}
	u := &principal.User{
		ID:            ids.New(),
		TenantID:      app.TenantID,
		ApplicationID: app.ID,
		Email:         email,
		Roles:         roles,
		Active:        true,
		PasswordHash:  hash,
		CreatedAt:     s.now(),
	}
	if err := s.dir.PutUser(ctx, u); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "user.created", map[string]any{
		"tenant_id": u.TenantID, "application_id": u.ApplicationID, "user_id": u.ID,
	})
	return u, nil
}

// RequestRole records a pending role change for the calling user. A newer
// request replaces an older one.
func (s *Service) RequestRole(ctx context.Context, id *principal.Identity, role string) error {
	if id == nil || id.Kind != subject.KindUser {
		return fmt.Errorf("%w: only users request roles", ErrForbidden)
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return fmt.Errorf("%w: role is required", ErrInvalid)
	}
	u, err := s.dir.User(ctx, id.ID)
	if err != nil {
		return notFoundAs(err, "user "+id.ID)
	}
	if u.Roles.Has(role) {
		return fmt.Errorf("%w: role %s already held", ErrConflict, role)
	}
	u.PendingRole = role
	if err := s.dir.PutUser(ctx, u); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "role.requested", map[string]any{"user_id": u.ID, "role": role})
	return nil
}

// ReviewRoleRequest approves or rejects a user's pending role. The caller
// must be allowed to review roles in the user's tenant.
func (s *Service) ReviewRoleRequest(ctx context.Context, caller *principal.Identity, userID string, approve bool) (*principal.User, error) {
	u, err := s.dir.User(ctx, userID)
	if err != nil {
		return nil, notFoundAs(err, "user "+userID)
	}
	if err := Authorize(caller, PermRolesReview, u.TenantID); err != nil {
		return nil, err
	}
	if u.PendingRole == "" {
		return nil, fmt.Errorf("%w: no pending role for user %s", ErrNotFound, userID)
	}
	role := u.PendingRole
	if approve {
		if u.Roles == nil {
			u.Roles = principal.NewRoleSet()
		}
		u.Roles.Add(role)
	}
	u.PendingRole = ""
	if err := s.dir.PutUser(ctx, u); err != nil {
		return nil, err
	}
	event := "role.rejected"
	if approve {
		event = "role.approved"
	}
	_ = audit.LogEvent(ctx, event, map[string]any{"user_id": u.ID, "role": role, "reviewer_id": caller.ID})
	return u, nil
}

func (s *Service) now() time.Time {
	return time.Now().UTC()
}

func notFoundAs(err error, what string) error {
	if errors.Is(err, principal.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}
