package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/matzehuels/gangsheet/internal/api"
	"github.com/matzehuels/gangsheet/internal/config"
	"github.com/matzehuels/gangsheet/pkg/buildinfo"
	"github.com/matzehuels/gangsheet/pkg/observability/prom"
	"github.com/matzehuels/gangsheet/pkg/session"
)

const (
	// shutdownTimeout bounds graceful shutdown.
	shutdownTimeout = 15 * time.Second

	// cleanupInterval is how often expired sheets are purged.
	cleanupInterval = time.Hour
)

// serveCommand runs the HTTP API.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr      string
		noMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gang sheet HTTP API",
		Long: `Run the HTTP API used by the storefront builder.

Backends for sessions, the export cache, and artifacts come from the
config file and GANGSHEET_* environment variables. Prometheus metrics are
served at /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return c.runServe(cmd.Context(), cfg, !noMetrics)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&noMetrics, "no-metrics", false, "do not serve /metrics")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, cfg *config.Config, metrics bool) error {
	logger := c.Logger

	catalog, err := cfg.SheetCatalog()
	if err != nil {
		return err
	}
	store, err := newStore(ctx, cfg.Store, false)
	if err != nil {
		return fmt.Errorf("open sheet store: %w", err)
	}
	defer store.Close()

	runner, err := c.newRunner(ctx, false)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	artifacts, err := newArtifactStore(ctx, cfg.Artifacts)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	shop, err := newCheckoutClient(cfg.Checkout, logger)
	if err != nil {
		return err
	}

	opts := api.Options{
		Catalog:        catalog,
		Store:          store,
		Runner:         runner,
		Artifacts:      artifacts,
		Checkout:       shop,
		BoardOptions:   boardOptions(cfg),
		SessionTTL:     cfg.Server.SessionTTL.Duration,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		CORSOrigins:    cfg.Server.CORSOrigins,
		Logger:         logger,
	}
	if metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		prom.New(reg).Install()
		opts.Metrics = prom.Handler(reg)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.New(opts).Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout.Duration,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout.Duration,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go cleanupLoop(ctx, store, logger)

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "version", buildinfo.Version,
			"store", cfg.Store.Backend, "cache", cfg.Cache.Backend, "artifacts", cfg.Artifacts.Backend,
			"checkout", shop != nil, "templates", catalog.Len())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// cleanupLoop purges expired sheets until ctx is done.
func cleanupLoop(ctx context.Context, store session.Store, logger *log.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Cleanup(ctx); err != nil {
				logger.Warn("session cleanup", "err", err)
			}
		}
	}
}
