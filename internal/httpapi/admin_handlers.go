package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"warden.dev/internal/auth"
)

func (a *API) handleSuspendUser(w http.ResponseWriter, r *http.Request) {
	if err := auth.Authorize(identityFrom(r), auth.PermUsersSuspend, ""); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.deps.Auth.SuspendUser(r.Context(), chi.URLParam(r, "userID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleReactivateUser(w http.ResponseWriter, r *http.Request) {
	if err := auth.Authorize(identityFrom(r), auth.PermUsersSuspend, ""); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.deps.Auth.ReactivateUser(r.Context(), chi.URLParam(r, "userID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
