// Package grpcauth resolves the calling principal for gRPC services and
// reports readiness through the standard health service.
package grpcauth

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"warden.dev/internal/fault"
	"warden.dev/internal/principal"
	"warden.dev/internal/subject"
)

// Health methods stay reachable without credentials.
const (
	healthCheckMethod = "/grpc.health.v1.Health/Check"
	healthWatchMethod = "/grpc.health.v1.Health/Watch"
)

// Resolver is satisfied by *principal.Resolver.
type Resolver interface {
	ResolveAny(ctx context.Context, cred principal.Credential, kinds ...subject.Kind) (*principal.Identity, error)
}

// Interceptor authenticates every call against the kinds its method accepts.
type Interceptor struct {
	resolver Resolver
	methods  map[string][]subject.Kind
	public   map[string]bool
	fallback []subject.Kind
}

type Option func(*Interceptor)

// WithMethodKinds sets the principal kinds accepted by one full method name.
func WithMethodKinds(method string, kinds ...subject.Kind) Option {
	return func(i *Interceptor) { i.methods[method] = kinds }
}

// WithDefaultKinds sets the kinds accepted by methods without their own rule.
func WithDefaultKinds(kinds ...subject.Kind) Option {
	return func(i *Interceptor) { i.fallback = kinds }
}

// WithPublicMethod lets a method through without credentials.
func WithPublicMethod(method string) Option {
	return func(i *Interceptor) { i.public[method] = true }
}

func NewInterceptor(resolver Resolver, opts ...Option) (*Interceptor, error) {
	if resolver == nil {
		return nil, errors.New("grpcauth: resolver is required")
	}
	i := &Interceptor{
		resolver: resolver,
		methods:  make(map[string][]subject.Kind),
		public:   map[string]bool{healthCheckMethod: true, healthWatchMethod: true},
		fallback: []subject.Kind{subject.KindAdmin, subject.KindClient, subject.KindUser},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Unary returns the unary server interceptor.
func (i *Interceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := i.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// Stream returns the stream server interceptor.
func (i *Interceptor) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := i.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &identityStream{ServerStream: ss, ctx: ctx})
	}
}

func (i *Interceptor) authenticate(ctx context.Context, method string) (context.Context, error) {
	kinds, ok := i.methods[method]
	if !ok {
		if i.public[method] {
			return ctx, nil
		}
		kinds = i.fallback
	}
	id, err := i.resolver.ResolveAny(ctx, credentialFromMetadata(ctx), kinds...)
	if err != nil {
		return nil, toStatus(err)
	}
	return principal.ContextWithIdentity(ctx, id), nil
}

type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityStream) Context() context.Context { return s.ctx }

// credentialFromMetadata reads the same credentials the HTTP surface reads
// from headers. gRPC metadata keys are lower-case.
func credentialFromMetadata(ctx context.Context) principal.Credential {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return principal.Credential{}
	}
	get := func(key string) string {
		if v := md.Get(strings.ToLower(key)); len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}
	return principal.Credential{
		Bearer:            principal.BearerToken(get(principal.HeaderAuthorization)),
		ApplicationID:     get(principal.HeaderApplicationID),
		ApplicationSecret: get(principal.HeaderApplicationSecret),
		Origin:            get(principal.HeaderOrigin),
	}
}

// toStatus maps failures onto gRPC codes. The stable code travels in the
// status message prefix.
func toStatus(err error) error {
	fe, ok := fault.As(err)
	if !ok {
		return status.Error(codes.Internal, "internal error")
	}
	var code codes.Code
	switch {
	case fe.Code == fault.CodePrincipalInactive:
		code = codes.PermissionDenied
	case fe.Code == fault.CodeKeyNotFound, fe.Code == fault.CodeNoActiveKey:
		code = codes.NotFound
	case fe.Kind == fault.KindConflict:
		code = codes.AlreadyExists
	default:
		code = codes.Unauthenticated
	}
	return status.Error(code, fe.Code+": "+fe.Message)
}
