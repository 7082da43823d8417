package principal

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"warden.dev/internal/fault"
	"warden.dev/internal/obs"
	"warden.dev/internal/subject"
	"warden.dev/internal/token"
)

// Deps are the collaborators every strategy draws from.
type Deps struct {
	Tokens     TokenVerifier
	Platform   token.SharedSecret
	TenantKeys token.TenantKeys
	Directory  Directory
	Sessions   SessionChecker
}

type resolverConfig struct {
	devMode            bool
	clientSessionCheck bool
	log                zerolog.Logger
}

type Option func(*resolverConfig)

// WithDevMode lets public applications authenticate from loopback origins.
func WithDevMode(on bool) Option {
	return func(c *resolverConfig) { c.devMode = on }
}

// WithClientSessionCheck makes the Client strategy require a live session
// like Admin and User do. Off by default.
func WithClientSessionCheck(on bool) Option {
	return func(c *resolverConfig) { c.clientSessionCheck = on }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *resolverConfig) { c.log = l }
}

// Resolver dispatches a credential to the strategy for the expected kind.
type Resolver struct {
	strategies map[subject.Kind]Authenticator
	log        zerolog.Logger
}

func NewResolver(deps Deps, opts ...Option) (*Resolver, error) {
	if deps.Tokens == nil || deps.Directory == nil || deps.Sessions == nil {
		return nil, errors.New("principal: tokens, directory and sessions are required")
	}
	if !deps.Platform.Configured() {
		return nil, errors.New("principal: platform secret is required")
	}
	if deps.TenantKeys.Source == nil {
		return nil, errors.New("principal: tenant key source is required")
	}
	cfg := resolverConfig{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	r := &Resolver{strategies: make(map[subject.Kind]Authenticator, 4), log: cfg.log}
	r.register(
		NewAdminAuthenticator(deps.Tokens, deps.Platform, deps.Directory, deps.Sessions),
		NewClientAuthenticator(deps.Tokens, deps.Platform, deps.Directory, deps.Sessions, cfg.clientSessionCheck),
		NewUserAuthenticator(deps.Tokens, deps.TenantKeys, deps.Directory, deps.Sessions),
		NewApplicationAuthenticator(deps.Directory, cfg.devMode),
	)
	return r, nil
}

func (r *Resolver) register(as ...Authenticator) {
	for _, a := range as {
		r.strategies[a.Kind()] = a
	}
}

// Authenticator returns the strategy for kind.
func (r *Resolver) Authenticator(kind subject.Kind) (Authenticator, bool) {
	a, ok := r.strategies[kind]
	return a, ok
}

// Resolve authenticates cred as a principal of kind.
func (r *Resolver) Resolve(ctx context.Context, kind subject.Kind, cred Credential) (*Identity, error) {
	a, ok := r.strategies[kind]
	if !ok {
		return nil, fmt.Errorf("principal: no strategy for kind %q", kind)
	}
	id, err := a.Authenticate(ctx, cred)
	obs.RecordAuth(string(kind), err)
	if err != nil {
		ev := r.log.Debug()
		if _, coded := fault.As(err); !coded {
			ev = r.log.Error()
		}
		ev.Err(err).Str("kind", string(kind)).Str("code", fault.CodeOf(err)).Msg("authentication failed")
		return nil, err
	}
	return id, nil
}

// ResolveAny tries kinds in order and returns the first identity that
// authenticates. A credential that is malformed or signed for another kind
// moves on to the next kind; expiry, inactivity and session failures stop
// the search, since no other kind would accept that credential either.
func (r *Resolver) ResolveAny(ctx context.Context, cred Credential, kinds ...subject.Kind) (*Identity, error) {
	var lastErr error = fault.ErrMissingCredential
	for _, kind := range kinds {
		id, err := r.Resolve(ctx, kind, cred)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if !foreignCredential(err) {
			break
		}
	}
	return nil, lastErr
}

func foreignCredential(err error) bool {
	kind, ok := fault.KindOf(err)
	return ok && (kind == fault.KindCredential || kind == fault.KindSignature)
}
