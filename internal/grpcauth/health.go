package grpcauth

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewServer builds a gRPC server with the interceptor installed and the
// health service registered.
func NewServer(i *Interceptor, hs *health.Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(i.Unary()),
		grpc.ChainStreamInterceptor(i.Stream()),
	)
	srv := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// WatchReadiness polls check and mirrors the result into hs until ctx ends.
func WatchReadiness(ctx context.Context, hs *health.Server, check func(context.Context) error, every time.Duration) {
	report := func() {
		pctx, cancel := context.WithTimeout(ctx, every)
		defer cancel()
		st := healthpb.HealthCheckResponse_SERVING
		if err := check(pctx); err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", st)
	}
	report()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			report()
		}
	}
}
