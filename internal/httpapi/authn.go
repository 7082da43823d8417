package httpapi

import (
	"net/http"

	"warden.dev/internal/principal"
	"warden.dev/internal/subject"
)

// authenticate resolves the request credential as the first of kinds that
// accepts it and attaches the identity to the request context.
func (a *API) authenticate(kinds ...subject.Kind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.deps.Resolver.ResolveAny(r.Context(), principal.CredentialFromRequest(r), kinds...)
			if err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(principal.ContextWithIdentity(r.Context(), id)))
		})
	}
}

func identityFrom(r *http.Request) *principal.Identity {
	id, _ := principal.IdentityFromContext(r.Context())
	return id
}
