package profile

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"mindtracking-client/internal/domain/kv"
	"mindtracking-client/internal/platform/errors"
	"mindtracking-client/internal/platform/observability"
)

var errOffline = errors.New(errors.KindNetwork, "api.get_profile", "connection refused")

type fixture struct {
	svc        *Service
	store      kv.Store
	registry   *prometheus.Registry
	foreground *fakeForeground
	fetcher    *scriptedFetcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := kv.NewMemory(kv.Config{})
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	reg := prometheus.NewRegistry()
	f := &fixture{
		store:      store,
		registry:   reg,
		foreground: &fakeForeground{},
		fetcher:    &scriptedFetcher{err: errOffline},
	}

	fixed := time.Unix(1_700_000_000, 0)
	svc, err := NewService(Config{}, Dependencies{
		Store:      store,
		Fetcher:    f.fetcher,
		Foreground: f.foreground,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:    observability.NewMetrics(reg),
		Now:        func() time.Time { return fixed },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

// scriptedFetcher returns a fixed profile or error. When gate is set each call blocks
// until a value is sent on it.
type scriptedFetcher struct {
	mu      sync.Mutex
	profile Profile
	err     error
	calls   int
	started chan struct{}
	gate    chan struct{}
}

func (f *scriptedFetcher) respond(p Profile, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profile, f.err = p, err
}

func (f *scriptedFetcher) FetchProfile(ctx context.Context) (Profile, error) {
	f.mu.Lock()
	f.calls++
	started, gate := f.started, f.gate
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Profile{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profile, f.err
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeForeground struct {
	mu        sync.Mutex
	listeners map[int]func()
	next      int
}

func (f *fakeForeground) OnForeground(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listeners == nil {
		f.listeners = make(map[int]func())
	}
	id := f.next
	f.next++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeForeground) Resume() {
	f.mu.Lock()
	fns := make([]func(), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fakeForeground) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// recorder is a listener that keeps every snapshot it receives.
type recorder struct {
	mu   sync.Mutex
	seen []Snapshot
}

func (r *recorder) listen(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, s)
}

func (r *recorder) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.seen) == 0 {
		return Snapshot{}
	}
	return r.seen[len(r.seen)-1]
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.seen...)
}

// failingStore fails every write and, when readErr is set, every read.
type failingStore struct {
	kv.Store
	readErr bool
}

func (s failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.readErr {
		return "", false, kv.ErrClosed
	}
	return s.Store.Get(ctx, key)
}

func (s failingStore) Set(context.Context, string, string) error {
	return kv.ErrClosed
}

func (s failingStore) Remove(context.Context, string) error {
	return kv.ErrClosed
}

func waitReady(t *testing.T, h *Hook) {
	t.Helper()
	select {
	case <-h.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("hook never became ready")
	}
}
