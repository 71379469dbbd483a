package profile

import (
	"context"
	"log/slog"
	"sync"

	"mindtracking-client/internal/domain/kv"
	"mindtracking-client/internal/platform/errors"
	"mindtracking-client/internal/platform/logging"
)

// Persistent keys. Other parts of the app check PhotoKey for presence, so an absent
// photo removes the key instead of storing an empty string.
const (
	PhotoKey = "profile_photo_url"
	NameKey  = "profile_name"
)

// Cache holds the in-memory snapshot and mirrors it to a kv.Store.
type Cache struct {
	store  kv.Store
	logger *slog.Logger

	mu      sync.RWMutex
	current Snapshot
}

func NewCache(store kv.Store, logger *slog.Logger) *Cache {
	return &Cache{store: store, logger: logging.OrDefault(logger)}
}

// Current returns the in-memory snapshot.
func (c *Cache) Current() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *Cache) set(s Snapshot) {
	c.mu.Lock()
	c.current = s
	c.mu.Unlock()
}

// ReadFromPersistent returns the persisted snapshot, with empty fields for absent keys
// or on any store error.
func (c *Cache) ReadFromPersistent(ctx context.Context) Snapshot {
	s, err := c.read(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "profile cache read failed", slog.Any("error", err))
	}
	return s
}

// WriteToPersistent mirrors s to the store. Failures are logged, never returned.
func (c *Cache) WriteToPersistent(ctx context.Context, s Snapshot) {
	if err := c.write(ctx, s); err != nil {
		c.logger.WarnContext(ctx, "profile cache write failed", slog.Any("error", err))
	}
}

func (c *Cache) read(ctx context.Context) (Snapshot, error) {
	photo, _, err := c.store.Get(ctx, PhotoKey)
	if err != nil {
		return Snapshot{}, errors.Wrap(errors.KindStorage, "profile.cache.read", "read photo key", err)
	}
	name, _, err := c.store.Get(ctx, NameKey)
	if err != nil {
		return Snapshot{}, errors.Wrap(errors.KindStorage, "profile.cache.read", "read name key", err)
	}
	return Snapshot{Photo: photo, Name: name}, nil
}

func (c *Cache) write(ctx context.Context, s Snapshot) error {
	if err := c.put(ctx, PhotoKey, s.Photo); err != nil {
		return errors.Wrap(errors.KindStorage, "profile.cache.write", "write photo key", err)
	}
	if err := c.put(ctx, NameKey, s.Name); err != nil {
		return errors.Wrap(errors.KindStorage, "profile.cache.write", "write name key", err)
	}
	return nil
}

func (c *Cache) put(ctx context.Context, key, value string) error {
	if value == "" {
		return c.store.Remove(ctx, key)
	}
	return c.store.Set(ctx, key, value)
}
