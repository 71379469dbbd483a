package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoader_Load(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, ".config.yaml")

	configContent := `
api:
  base_url: "http://127.0.0.1:9000"
  timeout: 5s
store:
  driver: memory
sync:
  refresh_interval: 30s
log:
  log_level: "debug"
bridge:
  enabled: false
`
	require.NoError(t, os.WriteFile(configFile, []byte(configContent), 0o644))

	res, err := NewLoader().WithDotEnv(false).WithPath(configFile).WithEnv(envMap(nil)).Load()
	require.NoError(t, err)

	cfg := res.Config
	assert.Equal(t, configFile, res.Path)
	assert.Equal(t, "http://127.0.0.1:9000", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 30*time.Second, cfg.Sync.RefreshInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Bridge.Enabled)
	// untouched sections keep their defaults
	assert.Equal(t, 512, cfg.Upload.MaxDimension)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	res, err := NewLoader().
		WithDotEnv(false).
		WithPath(filepath.Join(t.TempDir(), "absent.yaml")).
		WithEnv(envMap(nil)).
		Load()
	require.NoError(t, err)

	assert.Empty(t, res.Path)
	assert.Equal(t, DefaultConfig().API.BaseURL, res.Config.API.BaseURL)
	assert.Empty(t, res.Config.Upload.UploadPreset, "uploads are signed unless a preset is configured")
}

func TestLoader_EnvOverrides(t *testing.T) {
	res, err := NewLoader().
		WithDotEnv(false).
		WithPath(filepath.Join(t.TempDir(), "absent.yaml")).
		WithEnv(envMap(map[string]string{
			"EXPO_PUBLIC_API_BASE_URL":          "https://api.example.test/",
			"MINDTRACKING_STORE_DRIVER":         "redis",
			"MINDTRACKING_REDIS_ADDR":           "localhost:6379",
			"MINDTRACKING_REDIS_DB":             "3",
			"EXPO_PUBLIC_CLOUDINARY_CLOUD_NAME": "demo",
			"MINDTRACKING_BRIDGE_ENABLED":       "false",
		})).
		Load()
	require.NoError(t, err)

	cfg := res.Config
	assert.Equal(t, "https://api.example.test/", cfg.API.BaseURL)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "localhost:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 3, cfg.Store.Redis.DB)
	assert.Equal(t, "demo", cfg.Upload.CloudName)
	assert.False(t, cfg.Bridge.Enabled)
}

func TestLoader_InvalidEnv(t *testing.T) {
	_, err := NewLoader().
		WithDotEnv(false).
		WithPath(filepath.Join(t.TempDir(), "absent.yaml")).
		WithEnv(envMap(map[string]string{"MINDTRACKING_REDIS_DB": "three"})).
		Load()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "relative base url", mutate: func(c *Config) { c.API.BaseURL = "/api" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "etcd" }, wantErr: true},
		{name: "redis without addr", mutate: func(c *Config) { c.Store.Driver = "redis" }, wantErr: true},
		{name: "sqlite without dsn", mutate: func(c *Config) { c.Store.SQLite.DSN = "" }, wantErr: true},
		{name: "memory driver", mutate: func(c *Config) { c.Store.Driver = "memory" }},
		{name: "negative refresh", mutate: func(c *Config) { c.Sync.RefreshInterval = -time.Second }, wantErr: true},
		{name: "bridge without addr", mutate: func(c *Config) { c.Bridge.Addr = "" }, wantErr: true},
		{name: "disabled bridge without addr", mutate: func(c *Config) {
			c.Bridge.Enabled = false
			c.Bridge.Addr = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
