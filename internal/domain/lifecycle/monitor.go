// Package lifecycle tracks app state transitions published on the event bus and tells
// interested parties when the app comes back to the foreground.
package lifecycle

import (
	"fmt"
	"log/slog"
	"sync"

	evbus "github.com/asaskevich/EventBus"

	"mindtracking-client/internal/domain/listeners"
	"mindtracking-client/internal/platform/errors"
	"mindtracking-client/internal/platform/logging"
)

// Topic carries raw app state strings. Shells may publish on it directly.
const Topic = "app:state"

type State string

const (
	StateActive     State = "active"
	StateInactive   State = "inactive"
	StateBackground State = "background"
)

// ParseState validates a raw state string.
func ParseState(raw string) (State, error) {
	switch s := State(raw); s {
	case StateActive, StateInactive, StateBackground:
		return s, nil
	default:
		return "", errors.New(errors.KindTransport, "lifecycle.parse_state", fmt.Sprintf("unknown app state %q", raw))
	}
}

// Monitor subscribes to Topic and fires foreground callbacks on an
// inactive|background -> active transition. Use one Monitor per bus.
type Monitor struct {
	bus    evbus.Bus
	logger *slog.Logger

	mu       sync.Mutex
	current  State
	closed   bool
	handler  func(string)
	onResume *listeners.Set[State]
}

// NewMonitor starts listening on bus. initial is the state the app is in right now.
func NewMonitor(bus evbus.Bus, initial State, logger *slog.Logger) (*Monitor, error) {
	if bus == nil {
		return nil, errors.New(errors.KindConfig, "lifecycle.new_monitor", "event bus is required")
	}
	if initial == "" {
		initial = StateActive
	}
	if _, err := ParseState(string(initial)); err != nil {
		return nil, err
	}

	logger = logging.OrDefault(logger).With(slog.String("component", "lifecycle"))
	m := &Monitor{
		bus:     bus,
		logger:  logger,
		current: initial,
		onResume: listeners.New(listeners.WithPanicHandler[State](func(id string, r any) {
			logger.Error("foreground callback panicked", slog.String("listener", id), slog.String("panic", fmt.Sprint(r)))
		})),
	}
	m.handler = m.handle

	if err := bus.Subscribe(Topic, m.handler); err != nil {
		return nil, errors.Wrap(errors.KindBootstrap, "lifecycle.new_monitor", "subscribe to app state", err)
	}
	return m, nil
}

// Publish sends a state transition through the bus.
func (m *Monitor) Publish(s State) error {
	if _, err := ParseState(string(s)); err != nil {
		return err
	}
	m.bus.Publish(Topic, string(s))
	return nil
}

// OnForeground registers fn and returns its cancel function. fn runs on the publishing
// goroutine while the bus holds its lock, so it must not block or publish.
func (m *Monitor) OnForeground(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	return m.onResume.Add(func(State) { fn() })
}

// Current returns the last observed state.
func (m *Monitor) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close stops listening on the bus. Later calls are no-ops.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if err := m.bus.Unsubscribe(Topic, m.handler); err != nil {
		return errors.Wrap(errors.KindTransport, "lifecycle.close", "unsubscribe from app state", err)
	}
	return nil
}

func (m *Monitor) handle(raw string) {
	next, err := ParseState(raw)
	if err != nil {
		m.logger.Warn("ignoring app state", slog.String("state", raw))
		return
	}

	m.mu.Lock()
	prev := m.current
	m.current = next
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return
	}
	m.logger.Debug("app state changed", slog.String("from", string(prev)), slog.String("to", string(next)))
	if next == StateActive && (prev == StateInactive || prev == StateBackground) {
		m.onResume.Notify(next)
	}
}
