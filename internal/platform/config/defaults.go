package config

import "time"

// DefaultConfig returns the configuration used when no file or environment overrides exist.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "https://mindtracking-api-1.onrender.com/",
			Timeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Driver:    "sqlite",
			Namespace: "mindtracking",
			SQLite: SQLiteStore{
				DSN: "data/mindtracking.db",
			},
			Redis: RedisStore{
				Prefix: "mindtracking:kv:",
			},
		},
		Sync: SyncConfig{
			RefreshInterval: 5 * time.Minute,
			FreshnessParam:  "t",
		},
		Upload: UploadConfig{
			CloudName:    "danydlyeq",
			MaxDimension: 512,
		},
		Bridge: BridgeConfig{
			Enabled:      true,
			Addr:         "127.0.0.1:8787",
			AllowOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
