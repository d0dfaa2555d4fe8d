package main

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

	"github.com/desertthunder/incommon/internal/auth"
	"github.com/desertthunder/incommon/internal/metrics"
	"github.com/desertthunder/incommon/internal/repositories"
	"github.com/desertthunder/incommon/internal/services"
	"github.com/desertthunder/incommon/internal/shared"
	"github.com/desertthunder/incommon/internal/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
)

// Serve runs the web app until interrupted, then drains in-flight requests.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := r.openDatabase(ctx, config)
	if err != nil {
		return err
	}
	defer db.Close()

	app, err := r.newApp(config, db)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              config.Server.Addr(),
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Info("starting web app", "addr", httpServer.Addr, "reference", config.Reference.UserID)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	go r.pruneLoop(ctx, app, config.Server.PruneInterval.Duration)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	r.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	return nil
}

// newApp wires the web app and its stores around db.
func (r *Runner) newApp(config *shared.Config, db *sql.DB) (*web.App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	sessions, err := r.sessionManager(config, db)
	if err != nil {
		return nil, err
	}

	return web.NewApp(web.Opts{
		Config:      config,
		OAuth:       auth.NewOAuthConfig(config.Credentials.Spotify),
		Tokens:      r.tokenStore(config),
		Sessions:    sessions,
		Comparisons: repositories.NewComparisonRepository(db),
		Client:      r.clientOpts(config, collector),
		Metrics:     collector,
		Gatherer:    registry,
		Logger:      r.logger,
	})
}

// clientOpts maps the upstream config section onto API client options.
func (r *Runner) clientOpts(config *shared.Config, recorder metrics.Recorder) services.ClientOpts {
	return services.ClientOpts{
		BaseURL:    config.Upstream.APIBaseURL,
		Timeout:    config.Upstream.Timeout.Duration,
		MaxRetries: config.Upstream.MaxRetries,
		Limiter:    services.NewLimiter(config.Upstream.RequestsPerSecond),
		Logger:     r.logger,
		Metrics:    recorder,
	}
}

// pruneLoop deletes expired sessions every interval until ctx is done. A non-positive interval disables it.
func (r *Runner) pruneLoop(ctx context.Context, app *web.App, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.Prune()
			if err != nil {
				r.logger.Error("pruning sessions", "err", err)
				continue
			}
			if n > 0 {
				r.logger.Info("pruned expired sessions", "count", n)
			}
		}
	}
}
