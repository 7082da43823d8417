// Package principal resolves inbound credentials into one of the four
// principal kinds: platform admins, tenants acting as clients, tenant end
// users and application credentials.
package principal

import (
	"time"

	"warden.dev/internal/subject"
)

// Tenant is the organization that owns applications, users and signing
// keys. When it authenticates itself it is the Client principal.
type Tenant struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Plan       string    `json:"plan"`
	Active     bool      `json:"active"`
	SecretHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// Admin is a platform operator with a single flat role.
type Admin struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// User is an end user of exactly one tenant application.
type User struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	ApplicationID string    `json:"application_id"`
	Email         string    `json:"email"`
	Roles         RoleSet   `json:"roles"`
	PendingRole   string    `json:"pending_role,omitempty"`
	Active        bool      `json:"active"`
	PasswordHash  string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

// AuthMode selects how an application proves itself.
type AuthMode string

const (
	// AuthModeSecret requires the shared secret header.
	AuthModeSecret AuthMode = "secret"
	// AuthModeOrigin is for browser clients that cannot keep a secret; the
	// Origin header is checked against AllowedOrigins.
	AuthModeOrigin AuthMode = "origin"
)

type Webhook struct {
	URL    string   `json:"url,omitempty"`
	Events []string `json:"events,omitempty"`
}

type Application struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	Name           string    `json:"name"`
	AuthMode       AuthMode  `json:"auth_mode"`
	DefaultRole    string    `json:"default_role"`
	AllowedOrigins []string  `json:"allowed_origins,omitempty"`
	SecretHash     string    `json:"-"`
	Webhook        Webhook   `json:"webhook"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

// Identity is the uniform result of every authentication strategy.
type Identity struct {
	ID            string       `json:"id"`
	Kind          subject.Kind `json:"kind"`
	Roles         RoleSet      `json:"roles"`
	TenantID      string       `json:"tenant_id,omitempty"`
	ApplicationID string       `json:"application_id,omitempty"`
	SessionID     string       `json:"session_id,omitempty"`
}

func (i Identity) Ref() subject.Ref {
	return subject.Ref{ID: i.ID, Kind: i.Kind}
}
