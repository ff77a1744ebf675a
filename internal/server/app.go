// Package server wires configuration, storage, services and the gRPC and
// HTTP front ends into one runnable application with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrijs2005/magiclink/internal/logging"
	"github.com/dmitrijs2005/magiclink/internal/server/auth"
	"github.com/dmitrijs2005/magiclink/internal/server/config"
	"github.com/dmitrijs2005/magiclink/internal/server/httpapi"
	"github.com/dmitrijs2005/magiclink/internal/server/mailer"
	"github.com/dmitrijs2005/magiclink/internal/server/metrics"
	"github.com/dmitrijs2005/magiclink/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/magiclink/internal/server/secret"
	"github.com/dmitrijs2005/magiclink/internal/server/services"

	gs "github.com/dmitrijs2005/magiclink/internal/server/grpc"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	metrics    *metrics.Metrics
	mailer     mailer.Sender
	magicLinks *services.MagicLinkService
	sessions   *services.SessionService
	refresh    *services.RefreshService
}

// NewApp validates the configuration, connects to the database, applies
// migrations and builds the services. A missing signing secret fails here,
// before anything listens.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(LogLevel(c.LogLevel))

	if err := c.Validate(); err != nil {
		return nil, err
	}

	keys, err := secret.New(c.SecretKey)
	if err != nil {
		return nil, err
	}
	codec := auth.NewCodec(keys, auth.WithIssuer(c.Issuer))

	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	opts := []services.Option{services.WithLogger(logger), services.WithRecorder(m)}
	dir := services.NewRepositoryDirectory(db, repos)

	return &App{
		config:     c,
		logger:     logger,
		db:         db,
		metrics:    m,
		mailer:     mailer.New(c.ResendAPIKey, c.MailFrom, logger),
		magicLinks: services.NewMagicLinkService(dir, codec, c, opts...),
		sessions:   services.NewSessionService(dir, codec, opts...),
		refresh:    services.NewRefreshService(db, repos, codec, c, opts...),
	}, nil
}

// LogLevel maps a level name to slog.Level, falling back to info.
func LogLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.config.GRPCServiceKey, app.logger, app.magicLinks, app.sessions, app.refresh)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewHTTPServer(app.config, app.logger, httpapi.Deps{
		Issuer:    app.magicLinks,
		Validator: app.sessions,
		Sessions:  app.refresh,
		Mailer:    app.mailer,
		Pinger:    app.db,
		Metrics:   app.metrics,
	})

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// runCleanup purges expired refresh tokens every CleanupInterval.
func (app *App) runCleanup(ctx context.Context) {
	if app.config.CleanupInterval <= 0 {
		return
	}

	ticker := time.NewTicker(app.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.cleanupOnce(ctx)
		}
	}
}

func (app *App) cleanupOnce(ctx context.Context) {
	n, err := app.refresh.CleanupExpired(ctx)
	if err != nil {
		app.logger.Error(ctx, "refresh token cleanup failed", "error", err.Error())
		return
	}
	if n > 0 {
		app.logger.Info(ctx, "expired refresh tokens removed", "count", n)
	}
}

// Run starts both servers and the cleanup loop, and blocks until a signal
// arrives or one of the servers fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.runCleanup(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "db close", "error", err.Error())
	}
	app.logger.Info(context.Background(), "App stopped")
}
