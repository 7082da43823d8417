// Package httpapi exposes the credential core over HTTP: logins, tenant key
// management, per-tenant JWKS and identity introspection.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"warden.dev/internal/auth"
	"warden.dev/internal/jwks"
	"warden.dev/internal/keys"
	"warden.dev/internal/obs"
	"warden.dev/internal/principal"
	"warden.dev/internal/subject"
)

// ReadyChecker reports whether backing stores are reachable.
type ReadyChecker interface {
	Check(ctx context.Context) error
}

// PingCheck adapts anything with PingContext, such as *sql.DB.
type PingCheck struct {
	DB interface {
		PingContext(ctx context.Context) error
	}
}

func (p PingCheck) Check(ctx context.Context) error {
	if p.DB == nil {
		return nil
	}
	return p.DB.PingContext(ctx)
}

// Deps are the services the API routes to.
type Deps struct {
	Resolver *principal.Resolver
	Auth     *auth.Service
	Keys     *keys.Manager
	JWKS     *jwks.Publisher
	Ready    ReadyChecker
}

// API is the HTTP layer.
type API struct {
	router  chi.Router
	deps    Deps
	logger  zerolog.Logger
	version string
	limiter *RateLimiter
	allow   func(origin string) bool
}

// Option configures API.
type Option func(*API)

func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

func WithLogger(l zerolog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithLoginLimit throttles the login and refresh endpoints per client IP.
func WithLoginLimit(perSecond float64, burst int) Option {
	return func(a *API) {
		if perSecond > 0 {
			a.limiter = NewRateLimiter(perSecond, burst)
		}
	}
}

// WithCORSOrigins sets which browser origins get CORS headers.
func WithCORSOrigins(allow func(origin string) bool) Option {
	return func(a *API) { a.allow = allow }
}

// New builds the router.
func New(deps Deps, opts ...Option) (*API, error) {
	if deps.Resolver == nil || deps.Auth == nil || deps.Keys == nil || deps.JWKS == nil {
		return nil, errors.New("httpapi: resolver, auth, keys and jwks are required")
	}
	a := &API{
		router:  chi.NewRouter(),
		deps:    deps,
		logger:  obs.Logger(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.deps.Ready == nil {
		a.deps.Ready = PingCheck{}
	}
	a.setupMiddleware()
	a.setupRoutes()
	return a, nil
}

// Handler returns the http.Handler for the server.
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) setupMiddleware() {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.RealIP)
	a.router.Use(RequestLogger(a.logger))
	a.router.Use(middleware.Recoverer)
	a.router.Use(obs.Instrument)
	a.router.Use(SecurityHeaders)
	a.router.Use(CORS(a.allow))
}

func (a *API) setupRoutes() {
	r := a.router

	r.Handle("/metrics", obs.Handler())
	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReadyz)
	r.Get("/v1/info", a.handleInfo)

	r.Get("/v1/tenants/{tenantID}/jwks.json", a.handleJWKS)

	r.Route("/v1/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if a.limiter != nil {
				r.Use(a.limiter.Middleware)
			}
			r.Post("/admin/login", a.handleAdminLogin)
			r.Post("/client/login", a.handleClientLogin)
			r.Post("/user/login", a.handleUserLogin)
			r.Post("/{kind}/refresh", a.handleRefresh)
		})
		r.With(a.authenticate(subject.KindAdmin)).Post("/admin/logout", a.handleLogout)
		r.With(a.authenticate(subject.KindClient)).Post("/client/logout", a.handleLogout)
		r.With(a.authenticate(subject.KindUser)).Post("/user/logout", a.handleLogout)
	})

	r.With(a.authenticate(subject.KindAdmin)).Get("/v1/admin/me", a.handleMe)
	r.With(a.authenticate(subject.KindClient)).Get("/v1/tenant/me", a.handleMe)
	r.With(a.authenticate(subject.KindUser)).Get("/v1/user/me", a.handleMe)
	r.With(a.authenticate(subject.KindApplication)).Get("/v1/app/me", a.handleMe)

	r.Route("/v1/tenants/{tenantID}/keys", func(r chi.Router) {
		r.Use(a.authenticate(subject.KindAdmin, subject.KindClient))
		r.Get("/", a.handleListKeys)
		r.Post("/", a.handleGenerateKey)
		r.Post("/rotate", a.handleRotateKey)
		r.Delete("/{keyID}", a.handleRevokeKey)
	})

	r.With(a.authenticate(subject.KindAdmin)).Post("/v1/admin/tenants", a.handleCreateTenant)
	r.Route("/v1/tenants/{tenantID}/applications", func(r chi.Router) {
		r.Use(a.authenticate(subject.KindAdmin, subject.KindClient))
		r.Post("/", a.handleCreateApplication)
		r.Post("/{applicationID}/users", a.handleCreateUser)
	})
	r.With(a.authenticate(subject.KindUser)).Post("/v1/user/role-request", a.handleRequestRole)
	r.Route("/v1/users/{userID}/role-request", func(r chi.Router) {
		r.Use(a.authenticate(subject.KindAdmin, subject.KindClient))
		r.Post("/approve", a.handleReviewRole(true))
		r.Post("/reject", a.handleReviewRole(false))
	})

	r.Route("/v1/admin/users/{userID}", func(r chi.Router) {
		r.Use(a.authenticate(subject.KindAdmin))
		r.Post("/suspend", a.handleSuspendUser)
		r.Post("/reactivate", a.handleReactivateUser)
	})
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "warden",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.deps.Ready.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "warden",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
