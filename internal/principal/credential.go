package principal

import (
	"net/http"
	"strings"
)

const (
	HeaderAuthorization     = "Authorization"
	HeaderApplicationID     = "X-Application-ID"
	HeaderApplicationSecret = "X-Application-Secret"
	HeaderOrigin            = "Origin"

	bearerPrefix = "bearer "
)

// Credential is everything a strategy may look at. Each strategy reads
// only its own fields.
type Credential struct {
	Bearer            string
	ApplicationID     string
	ApplicationSecret string
	Origin            string
}

// CredentialFromRequest extracts the credential headers. A malformed
// Authorization header yields an empty Bearer.
func CredentialFromRequest(r *http.Request) Credential {
	return Credential{
		Bearer:            BearerToken(r.Header.Get(HeaderAuthorization)),
		ApplicationID:     strings.TrimSpace(r.Header.Get(HeaderApplicationID)),
		ApplicationSecret: strings.TrimSpace(r.Header.Get(HeaderApplicationSecret)),
		Origin:            strings.TrimSpace(r.Header.Get(HeaderOrigin)),
	}
}

// BearerToken returns the token of a "Bearer <token>" header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}
