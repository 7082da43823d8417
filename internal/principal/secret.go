package principal

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"warden.dev/internal/ids"
)

const secretBytes = 32

// NewSecret returns a random application or client secret and its stored hash.
func NewSecret() (plain, hash string, err error) {
	plain, err = ids.Opaque(secretBytes)
	if err != nil {
		return "", "", err
	}
	return plain, HashSecret(plain), nil
}

// HashSecret digests a high-entropy secret for storage. Secrets are random,
// so a fast hash is enough; passwords go through bcrypt instead.
func HashSecret(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// VerifySecret compares plain against hash in constant time.
func VerifySecret(hash, plain string) bool {
	hash = strings.TrimSpace(hash)
	if hash == "" || plain == "" {
		return false
	}
	got := HashSecret(plain)
	return subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(hash))) == 1
}
