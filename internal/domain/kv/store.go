// Package kv is the durable string key-value store the client keeps its session and
// profile cache in. Drivers: memory (tests, ephemeral runs), sqlite (on-device default)
// and redis (shared desktop/agent deployments).
package kv

import (
	"context"
)

// Store defines the behaviour required by the profile cache and the session.
// Get reports ok=false for an absent key; that is not an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver    string
	Namespace string
	Redis     *RedisConfig
	SQLite    *SQLiteConfig
}

// SQLiteConfig provides the database location when no handle is injected.
type SQLiteConfig struct {
	DSN string
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

func (c Config) namespace() string {
	if c.Namespace == "" {
		return "default"
	}
	return c.Namespace
}
