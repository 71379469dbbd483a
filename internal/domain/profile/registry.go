package profile

import (
	"fmt"
	"log/slog"

	"mindtracking-client/internal/domain/listeners"
	"mindtracking-client/internal/platform/logging"
	"mindtracking-client/internal/platform/observability"
)

// Registry fans published snapshots out to every subscribed listener. Each Service
// owns one; there is no package-level registry.
type Registry struct {
	set *listeners.Set[Snapshot]
}

func NewRegistry(logger *slog.Logger, metrics *observability.Metrics) *Registry {
	logger = logging.OrDefault(logger)
	return &Registry{
		set: listeners.New(
			listeners.WithPanicHandler[Snapshot](func(id string, recovered any) {
				metrics.ListenerPanic()
				logger.Error("profile listener panicked",
					slog.String("listener", id),
					slog.String("panic", fmt.Sprint(recovered)),
				)
			}),
			listeners.WithSizeObserver[Snapshot](metrics.SetListeners),
		),
	}
}

// Subscribe adds l and returns its idempotent unsubscribe function.
func (r *Registry) Subscribe(l Listener) func() {
	if l == nil {
		return func() {}
	}
	return r.set.Add(l)
}

// Publish delivers s to every listener before returning.
func (r *Registry) Publish(s Snapshot) {
	r.set.Notify(s)
}

func (r *Registry) Len() int {
	return r.set.Len()
}
