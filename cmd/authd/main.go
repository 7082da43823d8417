package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"

	"warden.dev/internal/auth"
	"warden.dev/internal/config"
	"warden.dev/internal/grpcauth"
	"warden.dev/internal/httpapi"
	"warden.dev/internal/ids"
	"warden.dev/internal/jwks"
	"warden.dev/internal/keys"
	"warden.dev/internal/migrate"
	"warden.dev/internal/obs"
	"warden.dev/internal/principal"
	"warden.dev/internal/session"
	"warden.dev/internal/token"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

type directory interface {
	principal.Directory
	principal.Registrar
}

type stores struct {
	db       *sql.DB
	keys     keys.Store
	sessions session.Store
	dir      directory
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("load config")
	}
	logger := obs.NewLogger(os.Stdout, "warden", cfg.LogLevel)
	obs.SetLogger(logger)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("authd stopped")
	}
	logger.Info().Msg("stopped")
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}

	cipher, err := keys.NewCipher([]byte(cfg.MasterKey))
	if err != nil {
		return err
	}
	keyMgr, err := keys.NewManager(st.keys, cipher, keys.WithKeyBits(cfg.KeyBits), keys.WithLogger(logger))
	if err != nil {
		return err
	}
	platform, err := token.NewSharedSecret([]byte(cfg.PlatformSecret))
	if err != nil {
		return err
	}
	codec := token.NewCodec(
		token.WithIssuer(cfg.Issuer),
		token.WithTTL(token.PurposeAccess, cfg.AccessTTL),
		token.WithTTL(token.PurposeRefresh, cfg.RefreshTTL),
	)
	tenantKeys := token.TenantKeys{Source: keyMgr}
	sessions := session.NewRegistry(st.sessions, session.WithTTL(cfg.SessionTTL), session.WithLogger(logger))

	resolver, err := principal.NewResolver(principal.Deps{
		Tokens:     codec,
		Platform:   platform,
		TenantKeys: tenantKeys,
		Directory:  st.dir,
		Sessions:   sessions,
	},
		principal.WithDevMode(cfg.DevMode),
		principal.WithClientSessionCheck(cfg.ClientSessionCheck),
		principal.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	authSvc, err := auth.NewService(st.dir, codec, platform, tenantKeys, sessions,
		auth.WithClientSessions(cfg.ClientSessionCheck))
	if err != nil {
		return err
	}

	if err := bootstrapAdmin(ctx, cfg, st.dir, logger); err != nil {
		return err
	}

	ready := httpapi.PingCheck{}
	if st.db != nil {
		ready.DB = st.db
	}
	apiOpts := []httpapi.Option{
		httpapi.WithVersion(version),
		httpapi.WithLogger(logger),
		httpapi.WithLoginLimit(cfg.LoginRate, cfg.LoginBurst),
	}
	if cfg.DevMode {
		apiOpts = append(apiOpts, httpapi.WithCORSOrigins(principal.IsLoopbackOrigin))
	}
	api, err := httpapi.New(httpapi.Deps{
		Resolver: resolver,
		Auth:     authSvc,
		Keys:     keyMgr,
		JWKS:     jwks.NewPublisher(keyMgr),
		Ready:    ready,
	}, apiOpts...)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	interceptor, err := grpcauth.NewInterceptor(resolver)
	if err != nil {
		return err
	}
	hs := health.NewServer()
	grpcSrv := grpcauth.NewServer(interceptor, hs)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", httpSrv.Addr).Str("version", version).Msg("http listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", lis.Addr().String()).Msg("grpc listening")
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		grpcauth.WatchReadiness(gctx, hs, ready.Check, 10*time.Second)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcSrv.GracefulStop()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	if cfg.PGDSN == "" {
		logger.Warn().Msg("AUTH_PG_DSN not set, using in-memory stores")
		return &stores{
			keys:     keys.NewMemoryStore(),
			sessions: session.NewMemoryStore(),
			dir:      principal.NewMemoryDirectory(),
		}, nil
	}
	db, err := sql.Open("pgx", cfg.PGDSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	mgr, err := migrate.NewManager(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	n, err := mgr.Up(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info().Int("applied", n).Msg("migrations up to date")

	return &stores{
		db:       db,
		keys:     keys.NewPGStore(db),
		sessions: session.NewPGStore(db),
		dir:      principal.NewPGDirectory(db),
	}, nil
}

// bootstrapAdmin creates the first owner account so a fresh deployment can log in.
func bootstrapAdmin(ctx context.Context, cfg *config.Config, dir directory, logger zerolog.Logger) error {
	if cfg.BootstrapAdminEmail == "" || cfg.BootstrapAdminPassword == "" {
		return nil
	}
	if _, err := dir.AdminByEmail(ctx, cfg.BootstrapAdminEmail); err == nil {
		return nil
	} else if !errors.Is(err, principal.ErrNotFound) {
		return err
	}
	hash, err := auth.HashPassword(cfg.BootstrapAdminPassword)
	if err != nil {
		return err
	}
	admin := &principal.Admin{
		ID:           ids.New(),
		Email:        cfg.BootstrapAdminEmail,
		Role:         auth.RoleOwner,
		Active:       true,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := dir.PutAdmin(ctx, admin); err != nil {
		return err
	}
	logger.Info().Str("admin_id", admin.ID).Str("email", admin.Email).Msg("bootstrap admin created")
	return nil
}
