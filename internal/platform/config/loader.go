package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when MINDTRACKING_CONFIG is unset. A missing file is not an error.
const DefaultPath = ".config.yaml"

// Loader layers defaults, an optional yaml file and environment variables.
type Loader struct {
	useDotEnv bool
	path      string
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a loader that honours .env files and the process environment.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		lookupEnv: os.LookupEnv,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the yaml file location.
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// WithEnv overrides environment lookup (useful for tests).
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookupEnv = lookup
	}
	return l
}

// Result captures the loaded configuration and the file it came from, if any.
type Result struct {
	Config *Config
	Path   string
}

// Load builds the configuration and validates it.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			slog.Debug("no .env file found, using process environment")
		}
	}

	cfg := DefaultConfig()

	path := l.path
	if path == "" {
		if p, ok := l.lookupEnv("MINDTRACKING_CONFIG"); ok && p != "" {
			path = p
		} else {
			path = DefaultPath
		}
	}

	loadedFrom := ""
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		loadedFrom = path
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: loadedFrom}, nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	str := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v, ok := l.lookupEnv(key); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	str(&cfg.API.BaseURL, "MINDTRACKING_API_BASE_URL", "EXPO_PUBLIC_API_BASE_URL")
	str(&cfg.Store.Driver, "MINDTRACKING_STORE_DRIVER")
	str(&cfg.Store.Redis.Addr, "MINDTRACKING_REDIS_ADDR")
	str(&cfg.Store.Redis.Password, "MINDTRACKING_REDIS_PASSWORD")
	str(&cfg.Store.SQLite.DSN, "MINDTRACKING_SQLITE_DSN")
	str(&cfg.Bridge.Addr, "MINDTRACKING_BRIDGE_ADDR")
	str(&cfg.Log.Level, "MINDTRACKING_LOG_LEVEL")
	str(&cfg.Log.Format, "MINDTRACKING_LOG_FORMAT")
	str(&cfg.Upload.CloudName, "MINDTRACKING_CLOUDINARY_CLOUD_NAME", "EXPO_PUBLIC_CLOUDINARY_CLOUD_NAME")
	str(&cfg.Upload.UploadPreset, "MINDTRACKING_CLOUDINARY_UPLOAD_PRESET", "EXPO_PUBLIC_CLOUDINARY_UPLOAD_PRESET")
	str(&cfg.Upload.APIKey, "MINDTRACKING_CLOUDINARY_API_KEY")
	str(&cfg.Upload.APISecret, "MINDTRACKING_CLOUDINARY_API_SECRET")

	if v, ok := l.lookupEnv("MINDTRACKING_REDIS_DB"); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MINDTRACKING_REDIS_DB: %w", err)
		}
		cfg.Store.Redis.DB = db
	}
	if v, ok := l.lookupEnv("MINDTRACKING_BRIDGE_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MINDTRACKING_BRIDGE_ENABLED: %w", err)
		}
		cfg.Bridge.Enabled = enabled
	}
	return nil
}

// Validate rejects configurations the synchronizer cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}

	switch strings.ToLower(c.Store.Driver) {
	case "memory":
	case "sqlite":
		if c.Store.SQLite.DSN == "" {
			return fmt.Errorf("store.sqlite.dsn is required for the sqlite driver")
		}
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}

	if c.Sync.RefreshInterval < 0 {
		return fmt.Errorf("sync.refresh_interval must not be negative")
	}
	if c.Upload.MaxDimension < 0 {
		return fmt.Errorf("upload.max_dimension must not be negative")
	}
	if c.Bridge.Enabled && c.Bridge.Addr == "" {
		return fmt.Errorf("bridge.addr is required when the bridge is enabled")
	}
	return nil
}
