package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/salesgrid/internal/adapters/http/api"
	"github.com/okian/salesgrid/internal/adapters/http/site"
	"github.com/okian/salesgrid/internal/adapters/http/swagger"
	"github.com/okian/salesgrid/internal/adapters/repository"
	app "github.com/okian/salesgrid/internal/app"
	"github.com/okian/salesgrid/internal/config"
	"github.com/okian/salesgrid/pkg/logger"
	"github.com/okian/salesgrid/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 30 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString("salesgrid: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithLevel(cfg.LogLevel)); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	store, err := repository.Open(ctx, cfg.DBPath,
		repository.WithPoolSize(cfg.DBPoolSize),
		repository.WithLogger(log.Named("repository")),
	)
	if err != nil {
		return err
	}

	svc, err := newService(cfg, store, log)
	if err != nil {
		_ = store.Close()
		return err
	}
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return err
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

func newService(cfg *config.Config, store repository.Store, log logger.Logger) (*app.Service, error) {
	hour, minute, err := cfg.DailySummaryClock()
	if err != nil {
		return nil, err
	}
	return app.New(store,
		app.WithLogger(log.Named("service")),
		app.WithSessionTTL(cfg.SessionTTL),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithAdmin(cfg.AdminUsername, cfg.AdminPassword),
		app.WithArchiveSecret(cfg.ArchiveSecret),
		app.WithDailySummaryAt(hour, minute),
		app.WithSchedulerInterval(cfg.SchedulerInterval),
	), nil
}

func newMux(ctx context.Context, svc *app.Service, log logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	site.Register(ctx, mux, svc, log.Named("site"))
	api.NewServer(svc, api.WithLogger(log.Named("api"))).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			metrics.UpdateSystemMemoryUsage(m.Alloc)
			metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
		}
	}
}
