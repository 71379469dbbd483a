package config

import (
	"time"
)

type Config struct {
	API     APIConfig     `yaml:"api"`
	Store   StoreConfig   `yaml:"store"`
	Sync    SyncConfig    `yaml:"sync"`
	Upload  UploadConfig  `yaml:"upload"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// APIConfig points at the remote backend.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig selects the persistent key-value driver.
type StoreConfig struct {
	Driver    string      `yaml:"driver"`
	Namespace string      `yaml:"namespace"`
	Redis     RedisStore  `yaml:"redis,omitempty"`
	SQLite    SQLiteStore `yaml:"sqlite,omitempty"`
}

type RedisStore struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

type SQLiteStore struct {
	DSN string `yaml:"dsn,omitempty"`
}

// SyncConfig tunes the profile synchronizer. A zero RefreshInterval disables periodic refresh.
type SyncConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	FreshnessParam  string        `yaml:"freshness_param"`
}

type UploadConfig struct {
	CloudName    string `yaml:"cloud_name"`
	APIKey       string `yaml:"api_key,omitempty"`
	APISecret    string `yaml:"api_secret,omitempty"`
	UploadPreset string `yaml:"upload_preset,omitempty"`
	Folder       string `yaml:"folder,omitempty"`
	MaxDimension int    `yaml:"max_dimension"`
}

type BridgeConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allow_origins"`
}

type LogConfig struct {
	Level  string `yaml:"log_level"`
	Format string `yaml:"log_format"`
	Dir    string `yaml:"log_dir"`
	File   string `yaml:"log_file"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}
