package keys

import (
	"errors"
	"time"
)

const (
	AlgorithmRS256 = "RS256"
	DefaultKeyBits = 2048
)

// Status is the lifecycle state of a KeyMaterial record.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

var (
	ErrNotFound     = errors.New("keys: not found")
	ErrActiveExists = errors.New("keys: active key already exists")
	ErrInvalidInput = errors.New("keys: invalid input")
)

// KeyMaterial is one persisted tenant signing key. Records are append-only:
// revocation flips Status and stamps RevokedAt, nothing is deleted.
type KeyMaterial struct {
	ID                  string
	TenantID            string
	KeyID               string // storage handle, never published
	Kid                 string // published in token headers and JWKS
	PublicKeyPEM        string
	EncryptedPrivateKey string
	Algorithm           string
	KeySize             int
	Status              Status
	CreatedAt           time.Time
	RevokedAt           *time.Time
}

func (k KeyMaterial) Active() bool {
	return k.Status == StatusActive
}

// Summary is the listing view of a record. It carries no private material.
type Summary struct {
	KeyID     string     `json:"key_id"`
	Kid       string     `json:"kid"`
	Algorithm string     `json:"algorithm"`
	KeySize   int        `json:"key_size"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

func (k KeyMaterial) Summary() Summary {
	return Summary{
		KeyID:     k.KeyID,
		Kid:       k.Kid,
		Algorithm: k.Algorithm,
		KeySize:   k.KeySize,
		Status:    k.Status,
		CreatedAt: k.CreatedAt,
		RevokedAt: k.RevokedAt,
	}
}

// GeneratedKey is handed to the caller once, at generation time. PrivateKey
// is the only plaintext copy; storage holds it encrypted.
type GeneratedKey struct {
	KeyID      string `json:"key_id"`
	Kid        string `json:"kid"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
	Algorithm  string `json:"algorithm"`
}
