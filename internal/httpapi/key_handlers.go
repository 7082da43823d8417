package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"warden.dev/internal/audit"
	"warden.dev/internal/auth"
)

func (a *API) handleListKeys(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if err := auth.Authorize(identityFrom(r), auth.PermKeysRead, tenantID); err != nil {
		writeError(w, r, err)
		return
	}
	list, err := a.deps.Keys.List(r.Context(), tenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": list})
}

// handleGenerateKey returns the private key once. It is never retrievable again.
func (a *API) handleGenerateKey(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if err := auth.Authorize(identityFrom(r), auth.PermKeysManage, tenantID); err != nil {
		writeError(w, r, err)
		return
	}
	gen, err := a.deps.Keys.Generate(r.Context(), tenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "key.generated", map[string]any{"tenant_id": tenantID, "kid": gen.Kid})
	writeJSON(w, http.StatusCreated, gen)
}

func (a *API) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if err := auth.Authorize(identityFrom(r), auth.PermKeysManage, tenantID); err != nil {
		writeError(w, r, err)
		return
	}
	gen, err := a.deps.Keys.Rotate(r.Context(), tenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "key.rotated", map[string]any{"tenant_id": tenantID, "kid": gen.Kid})
	writeJSON(w, http.StatusCreated, gen)
}

func (a *API) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	keyID := chi.URLParam(r, "keyID")
	if err := auth.Authorize(identityFrom(r), auth.PermKeysManage, tenantID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.deps.Keys.Revoke(r.Context(), tenantID, keyID); err != nil {
		writeError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "key.revoked", map[string]any{"tenant_id": tenantID, "key_id": keyID})
	w.WriteHeader(http.StatusNoContent)
}

// handleJWKS is public: relying parties fetch it without credentials.
func (a *API) handleJWKS(w http.ResponseWriter, r *http.Request) {
	doc, err := a.deps.JWKS.Document(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, doc)
}
