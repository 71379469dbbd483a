package profile

import (
	"context"
	"sync"
	"sync/atomic"
)

// State is a Hook's lifecycle position.
type State int

const (
	StateInitializing State = iota
	StateRefreshing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRefreshing:
		return "refreshing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// HookOption configures a Hook.
type HookOption func(*Hook)

// WithRender is called with the hook's snapshot after every applied change.
func WithRender(fn func(Snapshot)) HookOption {
	return func(h *Hook) {
		h.render = fn
	}
}

// Hook is one consumer's view of the synchronizer. It tracks pushed snapshots, refreshes
// when the app returns to the foreground and stops touching its state once unmounted.
type Hook struct {
	svc    *Service
	ctx    context.Context
	render func(Snapshot)

	mu      sync.RWMutex
	snap     Snapshot
	state    State
	loading  bool
	inflight int

	alive     atomic.Bool
	ready     chan struct{}
	readyOnce sync.Once

	unsubscribe    func()
	stopForeground func()
	unmountOnce    sync.Once
}

// Mount registers a Hook and starts its initial load: cache first, then remote. ctx
// bounds the hook's own fetches; Unmount does not cancel them.
func (s *Service) Mount(ctx context.Context, opts ...HookOption) *Hook {
	h := &Hook{
		svc:     s,
		ctx:     ctx,
		state:   StateInitializing,
		loading: true,
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.alive.Store(true)

	h.unsubscribe = s.Subscribe(h.receive)
	h.stopForeground = func() {}
	if s.foreground != nil {
		h.stopForeground = s.foreground.OnForeground(func() {
			if h.alive.Load() {
				go h.refresh()
			}
		})
	}

	go h.init()
	return h
}

func (h *Hook) init() {
	h.svc.LoadFromCache(h.ctx)
	if !h.alive.Load() {
		return
	}
	h.refresh()
}

func (h *Hook) refresh() {
	h.LoadFromRemote(h.ctx)
	h.markReady()
}

func (h *Hook) markReady() {
	h.readyOnce.Do(func() { close(h.ready) })
}

// receive applies a published snapshot.
func (h *Hook) receive(s Snapshot) {
	if h.mutate(func() { h.snap = s }) && h.render != nil {
		h.render(s)
	}
}

// mutate runs fn under the lock if the hook is still mounted.
func (h *Hook) mutate(fn func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.alive.Load() {
		return false
	}
	fn()
	return true
}

// Ready is closed when the first remote refresh has finished, successfully or not, or
// when the hook is unmounted before that.
func (h *Hook) Ready() <-chan struct{} {
	return h.ready
}

func (h *Hook) Photo() string {
	return h.Snapshot().Photo
}

func (h *Hook) Name() string {
	return h.Snapshot().Name
}

func (h *Hook) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap
}

func (h *Hook) Loading() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.loading
}

func (h *Hook) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Mounted reports whether Unmount has not been called yet.
func (h *Hook) Mounted() bool {
	return h.alive.Load()
}

func (h *Hook) LoadFromCache(ctx context.Context) (string, Result) {
	return h.svc.LoadFromCache(ctx)
}

// LoadFromRemote refreshes through the service, moving this hook through Refreshing.
// The hook stays loading until every overlapping refresh has finished.
func (h *Hook) LoadFromRemote(ctx context.Context) (string, Result) {
	h.mutate(func() {
		h.inflight++
		h.state = StateRefreshing
		h.loading = true
	})
	photo, res := h.svc.LoadFromRemote(ctx)
	h.mutate(func() {
		h.inflight--
		if h.inflight <= 0 {
			h.inflight = 0
			h.state = StateReady
			h.loading = false
		}
	})
	return photo, res
}

func (h *Hook) Update(ctx context.Context, url string) Result {
	return h.svc.Update(ctx, url)
}

func (h *Hook) Clear(ctx context.Context) Result {
	return h.svc.Clear(ctx)
}

// Unmount detaches the hook. Safe to call more than once; a fetch still in flight
// completes against the service but never reaches this hook.
func (h *Hook) Unmount() {
	h.unmountOnce.Do(func() {
		h.mu.Lock()
		h.alive.Store(false)
		h.mu.Unlock()
		h.unsubscribe()
		h.stopForeground()
		h.markReady()
	})
}
