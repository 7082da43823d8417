// Package token issues and verifies purpose-tagged JWTs over either a
// tenant's active RSA key or the platform shared secret.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"warden.dev/internal/subject"
)

// Purpose separates access tokens from refresh tokens so neither can stand in for the other.
type Purpose string

const (
	PurposeAccess  Purpose = "access"
	PurposeRefresh Purpose = "refresh"
)

func (p Purpose) Valid() bool {
	return p == PurposeAccess || p == PurposeRefresh
}

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 14 * 24 * time.Hour
)

// Claims is the signed claim set. Subject (sub) carries the principal id.
type Claims struct {
	Kind          subject.Kind `json:"kind"`
	TenantID      string       `json:"tid,omitempty"`
	ApplicationID string       `json:"aid,omitempty"`
	Purpose       Purpose      `json:"purpose"`
	Roles         []string     `json:"roles,omitempty"`
	Role          string       `json:"role,omitempty"`
	SessionID     string       `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Ref returns the principal the token speaks for.
func (c *Claims) Ref() subject.Ref {
	return subject.Ref{ID: c.Subject, Kind: c.Kind}
}

// Subject is what a caller asks to have signed.
type Subject struct {
	ID            string
	Kind          subject.Kind
	TenantID      string
	ApplicationID string
	Roles         []string
	Role          string
	SessionID     string
}

// Issued is a freshly signed token.
type Issued struct {
	Token     string    `json:"token"`
	ID        string    `json:"-"`
	Purpose   Purpose   `json:"purpose"`
	ExpiresAt time.Time `json:"expires_at"`
}
