// Package config loads gangsheet settings from a TOML file and the
// environment.
//
// Every field has a working default, so an empty file (or none) yields a
// single-instance setup: in-memory sessions, a file export cache, and no
// artifact store or checkout endpoint. Environment variables named
// GANGSHEET_* override the file; see [Config.ApplyEnv].
//
//	[server]
//	addr = ":8080"
//	session_ttl = "168h"
//
//	[cache]
//	backend = "redis"
//	redis_url = "redis://localhost:6379/0"
//
//	[[sheets]]
//	id = "template_22x60"
//	name = "22x60 Roll"
//	width = 22
//	height = 60
//	price = 89.99
//	max_designs = 200
package config

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/gangsheet/pkg/canvas"
	"github.com/matzehuels/gangsheet/pkg/errors"
	"github.com/matzehuels/gangsheet/pkg/sheet"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GANGSHEET_"

// Backend names.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendMinio  = "minio"
)

// Duration is a time.Duration that reads and writes as a Go duration
// string ("90s", "1h30m") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the complete configuration.
type Config struct {
	Server    ServerConfig   `toml:"server"`
	Canvas    CanvasConfig   `toml:"canvas"`
	Cache     CacheConfig    `toml:"cache"`
	Store     StoreConfig    `toml:"store"`
	Artifacts ArtifactConfig `toml:"artifacts"`
	Checkout  CheckoutConfig `toml:"checkout"`

	// Catalog is an optional TOML file of extra sheet templates.
	Catalog string `toml:"catalog"`

	// Sheets are extra templates declared inline. They are applied after
	// the catalog file and may override built-in ids.
	Sheets []sheet.Sheet `toml:"sheets"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr         string   `toml:"addr"`
	CORSOrigins  []string `toml:"cors_origins"`
	MaxUploadMB  int      `toml:"max_upload_mb"` // per request
	SessionTTL   Duration `toml:"session_ttl"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
}

// CanvasConfig tunes the coordinate model and upload decoding.
type CanvasConfig struct {
	BaseScale     float64 `toml:"base_scale"` // layout px per inch
	DPI           float64 `toml:"dpi"`
	MinZoom       int     `toml:"min_zoom"`
	MaxZoom       int     `toml:"max_zoom"`
	ZoomStep      int     `toml:"zoom_step"`
	DecodeWorkers int     `toml:"decode_workers"`
}

// CacheConfig selects the export cache.
type CacheConfig struct {
	Backend  string `toml:"backend"` // none, file, redis
	Dir      string `toml:"dir"`     // file backend; empty means the XDG cache dir
	RedisURL string `toml:"redis_url"`
	Prefix   string `toml:"prefix"` // key prefix shared by all replicas of a deployment
}

// StoreConfig selects the session store.
type StoreConfig struct {
	Backend         string `toml:"backend"` // memory, file, mongo
	Dir             string `toml:"dir"`
	MongoURI        string `toml:"mongo_uri"`
	MongoDatabase   string `toml:"mongo_database"`
	MongoCollection string `toml:"mongo_collection"`
}

// ArtifactConfig selects where final exports are kept.
type ArtifactConfig struct {
	Backend   string `toml:"backend"` // none, file, minio
	Dir       string `toml:"dir"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
	Region    string `toml:"region"`
}

// CheckoutConfig configures the storefront hand-off.
type CheckoutConfig struct {
	URL      string   `toml:"url"` // empty disables checkout
	Timeout  Duration `toml:"timeout"`
	Attempts int      `toml:"attempts"`
	Delay    Duration `toml:"delay"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			CORSOrigins:  []string{"*"},
			MaxUploadMB:  64,
			SessionTTL:   Duration{7 * 24 * time.Hour},
			ReadTimeout:  Duration{time.Minute},
			WriteTimeout: Duration{5 * time.Minute},
		},
		Canvas: CanvasConfig{
			BaseScale:     canvas.DefaultBaseScale,
			DPI:           canvas.DefaultDPI,
			MinZoom:       canvas.DefaultMinZoom,
			MaxZoom:       canvas.DefaultMaxZoom,
			ZoomStep:      canvas.DefaultZoomStep,
			DecodeWorkers: 4,
		},
		Cache: CacheConfig{
			Backend: BackendFile,
			Prefix:  "gangsheet:",
		},
		Store: StoreConfig{
			Backend:         BackendMemory,
			MongoDatabase:   "gangsheet",
			MongoCollection: "sheets",
		},
		Artifacts: ArtifactConfig{
			Backend: BackendNone,
			Bucket:  "gangsheets",
		},
		Checkout: CheckoutConfig{
			Timeout:  Duration{time.Minute},
			Attempts: 3,
			Delay:    Duration{time.Second},
		},
	}
}

// Read decodes TOML from r over the defaults.
func Read(r io.Reader) (Config, error) {
	cfg := Default()
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "decode config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, errors.New(errors.ErrCodeInvalidConfig, "unknown config keys: %s", strings.Join(keys, ", "))
	}
	return cfg, nil
}

// Load reads the file at path (if any), applies environment overrides
// from the process environment, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "open config %s", path)
		}
		defer f.Close()
		if cfg, err = Read(f); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from environment variables read with getenv.
// Unset or empty variables are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	str("ADDR", &c.Server.Addr)
	str("CATALOG", &c.Catalog)
	str("CACHE", &c.Cache.Backend)
	str("CACHE_DIR", &c.Cache.Dir)
	str("REDIS_URL", &c.Cache.RedisURL)
	str("STORE", &c.Store.Backend)
	str("STORE_DIR", &c.Store.Dir)
	str("MONGO_URI", &c.Store.MongoURI)
	str("ARTIFACTS", &c.Artifacts.Backend)
	str("ARTIFACT_DIR", &c.Artifacts.Dir)
	str("MINIO_ENDPOINT", &c.Artifacts.Endpoint)
	str("MINIO_ACCESS_KEY", &c.Artifacts.AccessKey)
	str("MINIO_SECRET_KEY", &c.Artifacts.SecretKey)
	str("MINIO_BUCKET", &c.Artifacts.Bucket)
	str("CHECKOUT_URL", &c.Checkout.URL)

	if v := getenv(EnvPrefix + "CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := getenv(EnvPrefix + "DPI"); v != "" {
		dpi, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "%sDPI", EnvPrefix)
		}
		c.Canvas.DPI = dpi
	}
	if v := getenv(EnvPrefix + "MINIO_SSL"); v != "" {
		ssl, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "%sMINIO_SSL", EnvPrefix)
		}
		c.Artifacts.UseSSL = ssl
	}
	return nil
}

// Validate checks backend names and the settings each backend requires.
func (c *Config) Validate() error {
	if err := c.canvas(); err != nil {
		return err
	}
	if c.Server.MaxUploadMB <= 0 {
		return invalid("server.max_upload_mb must be positive")
	}
	if err := oneOf("cache.backend", c.Cache.Backend, BackendNone, BackendFile, BackendRedis); err != nil {
		return err
	}
	if c.Cache.Backend == BackendRedis && c.Cache.RedisURL == "" {
		return invalid("cache.redis_url is required for the redis cache")
	}
	if err := oneOf("store.backend", c.Store.Backend, BackendMemory, BackendFile, BackendMongo); err != nil {
		return err
	}
	if c.Store.Backend == BackendMongo && (c.Store.MongoURI == "" || c.Store.MongoDatabase == "") {
		return invalid("store.mongo_uri and store.mongo_database are required for the mongo store")
	}
	if err := oneOf("artifacts.backend", c.Artifacts.Backend, BackendNone, BackendFile, BackendMinio); err != nil {
		return err
	}
	switch c.Artifacts.Backend {
	case BackendFile:
		if c.Artifacts.Dir == "" {
			return invalid("artifacts.dir is required for the file artifact store")
		}
	case BackendMinio:
		if c.Artifacts.Endpoint == "" || c.Artifacts.Bucket == "" {
			return invalid("artifacts.endpoint and artifacts.bucket are required for minio")
		}
	}
	if c.Checkout.URL != "" {
		if err := errors.ValidateURL(c.Checkout.URL); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "checkout.url")
		}
	}
	for _, s := range c.Sheets {
		if err := s.Validate(); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "sheets")
		}
	}
	return nil
}

func (c *Config) canvas() error {
	_, err := canvas.New(1, 1, c.CanvasOptions()...)
	return err
}

// CanvasOptions converts the canvas settings to canvas options.
func (c *Config) CanvasOptions() []canvas.Option {
	return []canvas.Option{
		canvas.WithBaseScale(c.Canvas.BaseScale),
		canvas.WithDPI(c.Canvas.DPI),
		canvas.WithZoomRange(c.Canvas.MinZoom, c.Canvas.MaxZoom, c.Canvas.ZoomStep),
	}
}

// SheetCatalog builds the template catalog: built-ins, then the catalog
// file, then inline sheets.
func (c *Config) SheetCatalog() (*sheet.Catalog, error) {
	cat, err := sheet.LoadCatalog(c.Catalog)
	if err != nil {
		return nil, err
	}
	for _, s := range c.Sheets {
		if err := cat.Put(s); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

func oneOf(field, v string, allowed ...string) error {
	if slices.Contains(allowed, v) {
		return nil
	}
	return invalid(fmt.Sprintf("%s: unknown backend %q (want %s)", field, v, strings.Join(allowed, ", ")))
}

func invalid(msg string) error {
	return errors.New(errors.ErrCodeInvalidConfig, "%s", msg)
}
