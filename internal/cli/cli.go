// Package cli implements the gangsheet command-line interface.
//
// The CLI edits sheets kept in the configured session store (a file store
// under ~/.config/gangsheet/sheets unless configured otherwise), exports
// them through the cached pipeline, hands them to the storefront, and runs
// the HTTP API with "serve".
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. The logger
// is shared through the [CLI] struct and attached to command contexts.
package cli

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/gangsheet/internal/config"
	"github.com/matzehuels/gangsheet/pkg/artifact"
	"github.com/matzehuels/gangsheet/pkg/buildinfo"
	"github.com/matzehuels/gangsheet/pkg/cache"
	"github.com/matzehuels/gangsheet/pkg/checkout"
	"github.com/matzehuels/gangsheet/pkg/design"
	"github.com/matzehuels/gangsheet/pkg/pipeline"
	"github.com/matzehuels/gangsheet/pkg/session"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "gangsheet"

	// configEnv names the config file when --config is not given.
	configEnv = config.EnvPrefix + "CONFIG"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	cfg        *config.Config
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Gangsheet lays out DTF transfer gang sheets",
		Long:         `Gangsheet arranges uploaded designs on a fixed-size print sheet, auto-nests them, prices the sheet, and exports a print-resolution raster for checkout.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", os.Getenv(configEnv), "path to a TOML config file")

	root.AddCommand(c.templatesCommand())
	root.AddCommand(c.newCommand())
	root.AddCommand(c.addCommand())
	root.AddCommand(c.showCommand())
	root.AddCommand(c.editCommand())
	root.AddCommand(c.nestCommand())
	root.AddCommand(c.priceCommand())
	root.AddCommand(c.exportCommand())
	root.AddCommand(c.checkoutCommand())
	root.AddCommand(c.removeCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// config loads the configuration once per process.
func (c *CLI) config() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	c.cfg = &cfg
	return c.cfg, nil
}

// =============================================================================
// Backend Factories
// =============================================================================

// newRunner creates a pipeline runner backed by the configured cache.
func (c *CLI) newRunner(ctx context.Context, noCache bool) (*pipeline.Runner, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	ch, err := newCache(ctx, cfg.Cache, noCache)
	if err != nil {
		return nil, err
	}
	keyer := cache.NewScopedKeyer(cache.NewDefaultKeyer(), cfg.Cache.Prefix)
	return pipeline.NewRunner(ch, keyer, c.Logger), nil
}

func newCache(ctx context.Context, cfg config.CacheConfig, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	switch cfg.Backend {
	case config.BackendNone:
		return cache.NewNullCache(), nil
	case config.BackendRedis:
		// Keys are already scoped by the runner's keyer.
		return cache.NewRedisCache(ctx, cfg.RedisURL, "")
	}
	dir := cfg.Dir
	if dir == "" {
		var err error
		if dir, err = cacheDir(); err != nil {
			return cache.NewNullCache(), nil
		}
	}
	return cache.NewFileCache(dir)
}

// newStore opens the configured session store. The memory backend only
// makes sense inside one server process, so local commands get the file
// store instead.
func newStore(ctx context.Context, cfg config.StoreConfig, local bool) (session.Store, error) {
	switch cfg.Backend {
	case config.BackendMongo:
		return session.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	case config.BackendMemory:
		if !local {
			return session.NewMemoryStore(), nil
		}
	}
	return session.NewFileStore(cfg.Dir)
}

// newArtifactStore opens the configured artifact store. It returns nil
// when artifacts are disabled.
func newArtifactStore(ctx context.Context, cfg config.ArtifactConfig) (artifact.Store, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return artifact.NewFileStore(cfg.Dir)
	case config.BackendMinio:
		return artifact.NewMinioStore(ctx, artifact.MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.UseSSL,
			Region:    cfg.Region,
		})
	}
	return nil, nil
}

// newCheckoutClient builds the storefront client. It returns nil when no
// endpoint is configured.
func newCheckoutClient(cfg config.CheckoutConfig, logger *log.Logger) (*checkout.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	return checkout.New(cfg.URL,
		checkout.WithHTTPClient(&http.Client{Timeout: cfg.Timeout.Duration}),
		checkout.WithRetry(cfg.Attempts, cfg.Delay.Duration),
		checkout.WithLogger(logger),
	)
}

// boardOptions converts the canvas settings to board options.
func boardOptions(cfg *config.Config) []design.BoardOption {
	return []design.BoardOption{
		design.WithCanvasOptions(cfg.CanvasOptions()...),
		design.WithDecodeWorkers(cfg.Canvas.DecodeWorkers),
	}
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/gangsheet/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
