package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"warden.dev/internal/auth"
	"warden.dev/internal/principal"
)

type createTenantRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	Plan string `json:"plan" validate:"omitempty,max=64"`
}

type createApplicationRequest struct {
	Name           string            `json:"name" validate:"required,max=200"`
	AuthMode       string            `json:"auth_mode" validate:"omitempty,oneof=secret origin"`
	DefaultRole    string            `json:"default_role" validate:"omitempty,max=64"`
	AllowedOrigins []string          `json:"allowed_origins" validate:"omitempty,dive,required"`
	Webhook        principal.Webhook `json:"webhook"`
}

type createUserRequest struct {
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required"`
	Roles    []string `json:"roles" validate:"omitempty,dive,required"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required,max=64"`
}

// tenantCreated carries the client secret. It is only returned at creation.
type tenantCreated struct {
	*principal.Tenant
	ClientSecret string `json:"client_secret"`
}

type applicationCreated struct {
	*principal.Application
	Secret string `json:"secret,omitempty"`
}

func (a *API) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	if err := auth.Authorize(identityFrom(r), auth.PermTenantsManage, ""); err != nil {
		writeError(w, r, err)
		return
	}
	var req createTenantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tenant, secret, err := a.deps.Auth.CreateTenant(r.Context(), req.Name, req.Plan)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tenantCreated{Tenant: tenant, ClientSecret: secret})
}

func (a *API) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if err := auth.Authorize(identityFrom(r), auth.PermAppsManage, tenantID); err != nil {
		writeError(w, r, err)
		return
	}
	var req createApplicationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	app, secret, err := a.deps.Auth.CreateApplication(r.Context(), tenantID, auth.NewApplication{
		Name:           req.Name,
		AuthMode:       principal.AuthMode(req.AuthMode),
		DefaultRole:    req.DefaultRole,
		AllowedOrigins: req.AllowedOrigins,
		Webhook:        req.Webhook,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, applicationCreated{Application: app, Secret: secret})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if err := auth.Authorize(identityFrom(r), auth.PermUsersManage, tenantID); err != nil {
		writeError(w, r, err)
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := a.deps.Auth.CreateUser(r.Context(), tenantID, chi.URLParam(r, "applicationID"), auth.NewUser{
		Email:    req.Email,
		Password: req.Password,
		Roles:    req.Roles,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleRequestRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.deps.Auth.RequestRole(r.Context(), identityFrom(r), req.Role); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleReviewRole(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := a.deps.Auth.ReviewRoleRequest(r.Context(), identityFrom(r), chi.URLParam(r, "userID"), approve)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}
