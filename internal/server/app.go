// Package server wires the authkeeper components together: storage
// backend, audit sink, token issuer and the gRPC and metrics endpoints.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/clock"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/audit"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/identity"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/server/sessions"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/authkeeper/internal/server/grpc"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	metrics *metrics.Metrics
	db      *sql.DB
	grpc    *gs.GRPCServer
}

// Backend bundles the stores selected by configuration.
type Backend struct {
	DB       *sql.DB
	Identity identity.Provider
	Sessions sessions.Store
	Audit    audit.Recorder
}

// seams for tests
var (
	openPostgres = repomanager.OpenPostgres
	newS3Client  = audit.NewS3Client
)

// OpenBackend opens the storage backend and audit sink named in c. The
// postgres backend runs migrations before returning.
func OpenBackend(ctx context.Context, c *config.Config, l logging.Logger) (*Backend, error) {
	clk := clock.Real{}
	opts := sessions.Options{DefaultTTL: c.RefreshTokenValidityDuration, Clock: clk, Logger: l.With("module", "sessions")}
	b := &Backend{}

	var rm repomanager.RepositoryManager
	switch c.StorageBackend {
	case config.StoragePostgres:
		db, err := openPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrTransientStore, err)
		}
		b.DB = db
		rm = repomanager.NewPostgresRepositoryManager()
		if err := rm.RunMigrations(ctx, db); err != nil {
			b.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		provider, err := identity.NewPostgresProvider(db, rm, c.BcryptCost)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Identity = provider
		b.Sessions = sessions.NewPostgresStore(db, rm, opts)
	case config.StorageMemory:
		provider, err := identity.NewMemoryProvider(c.BcryptCost, clk)
		if err != nil {
			return nil, err
		}
		b.Identity = provider
		b.Sessions = sessions.NewMemoryStore(opts)
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", common.ErrConfiguration, c.StorageBackend)
	}

	switch c.AuditSink {
	case config.AuditDatabase:
		if b.DB == nil {
			return nil, fmt.Errorf("%w: database audit sink needs the postgres backend", common.ErrConfiguration)
		}
		b.Audit = audit.NewRepositoryRecorder(b.DB, rm, clk)
	case config.AuditS3:
		client, err := newS3Client(ctx, audit.S3Config{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			b.Close()
			return nil, err
		}
		rec, err := audit.NewS3Recorder(client, c.S3Bucket, c.S3Prefix, clk)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Audit = rec
	case config.AuditMemory:
		b.Audit = audit.NewMemoryRecorder(clk)
	default:
		b.Close()
		return nil, fmt.Errorf("%w: unknown audit sink %q", common.ErrConfiguration, c.AuditSink)
	}

	// built-in roles exist on every backend
	for _, role := range []string{common.RoleAdmin, common.RoleUser} {
		if err := b.Identity.EnsureRole(ctx, role); err != nil {
			b.Close()
			return nil, fmt.Errorf("ensure role %s: %w", role, err)
		}
	}
	return b, nil
}

func (b *Backend) Close() {
	if b.DB != nil {
		_ = b.DB.Close()
	}
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewJSON(os.Stdout, c.LogLevel)
	m := metrics.New()

	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		Secret:   []byte(c.JWTSecret),
		Issuer:   c.JWTIssuer,
		Audience: c.JWTAudience,
		TTL:      c.AccessTokenValidityDuration,
	}, clock.Real{})
	if err != nil {
		return nil, err
	}

	backend, err := OpenBackend(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("backend init error: %w", err)
	}

	svc, err := services.NewAuthService(services.AuthDeps{
		Identity:   backend.Identity,
		Issuer:     issuer,
		Sessions:   backend.Sessions,
		Audit:      backend.Audit,
		Metrics:    m,
		Logger:     logger,
		RefreshTTL: c.RefreshTokenValidityDuration,
	})
	if err != nil {
		backend.Close()
		return nil, err
	}

	s, err := gs.NewGRPCServer(c.EndpointAddrGRPC, logger, svc, issuer, m)
	if err != nil {
		backend.Close()
		return nil, err
	}

	logger.Info(ctx, "App configured", "storage", c.StorageBackend, "audit_sink", c.AuditSink)
	return &App{config: c, logger: logger, metrics: m, db: backend.DB, grpc: s}, nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			app.logger.Info(ctx, "Signal received", "signal", sig.String())
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

func (app *App) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", app.metrics.Handler())
	srv := &http.Server{Addr: app.config.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	app.logger.Info(ctx, "Starting metrics server", "address", app.config.MetricsAddr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Run serves until ctx is cancelled, a termination signal arrives or one
// of the servers fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(ctx, cancelFunc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.grpc.Run(gctx) })
	if app.config.MetricsAddr != "" {
		g.Go(func() error { return app.serveMetrics(gctx) })
	}

	err := g.Wait()
	if app.db != nil {
		_ = app.db.Close()
	}
	app.logger.Info(context.Background(), "App stopped")
	return err
}
