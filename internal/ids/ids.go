package ids

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for row ids and token ids.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// UUID returns a random v4 identifier. Used where an id must not leak creation order.
func UUID() string {
	return uuid.NewString()
}

// Opaque returns n bytes of crypto/rand entropy encoded as unpadded base64url.
func Opaque(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("ids: opaque length must be positive, got %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ids: read entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
