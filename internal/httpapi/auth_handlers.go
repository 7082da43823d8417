package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"warden.dev/internal/auth"
	"warden.dev/internal/subject"
)

type adminLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type clientLoginRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	Secret   string `json:"secret" validate:"required"`
}

type userLoginRequest struct {
	ApplicationID string `json:"application_id" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type loginResponse struct {
	auth.TokenPair
	Subject any `json:"subject"`
}

func (a *API) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	pair, id, err := a.deps.Auth.LoginAdmin(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{TokenPair: pair, Subject: id})
}

func (a *API) handleClientLogin(w http.ResponseWriter, r *http.Request) {
	var req clientLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	pair, id, err := a.deps.Auth.LoginClient(r.Context(), req.TenantID, req.Secret)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{TokenPair: pair, Subject: id})
}

func (a *API) handleUserLogin(w http.ResponseWriter, r *http.Request) {
	var req userLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	pair, id, err := a.deps.Auth.LoginUser(r.Context(), req.ApplicationID, req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{TokenPair: pair, Subject: id})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	kind, ok := subject.ParseKind(chi.URLParam(r, "kind"))
	if !ok || kind == subject.KindApplication {
		badRequest(w, r, "unknown principal kind")
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	pair, err := a.deps.Auth.Refresh(r.Context(), kind, req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// handleLogout ends the caller's session; ?all=true ends every session.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	all := false
	if raw := r.URL.Query().Get("all"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, r, "all must be a boolean")
			return
		}
		all = v
	}
	if err := a.deps.Auth.Logout(r.Context(), identityFrom(r), all); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, identityFrom(r))
}
