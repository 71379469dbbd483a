// Package listeners provides an in-process fan-out set. Each listener is keyed by a
// generated id, so two identical closures are two separate registrations.
package listeners

import (
	"sync"

	"github.com/google/uuid"
)

// PanicHandler receives a recovered listener panic. It runs on the notifying goroutine.
type PanicHandler func(id string, recovered any)

// Set holds listeners of values of type T. The zero value is not usable; call New.
type Set[T any] struct {
	mu       sync.RWMutex
	items    map[string]func(T)
	onPanic  PanicHandler
	onChange func(n int)
}

// Option configures a Set.
type Option[T any] func(*Set[T])

// WithPanicHandler installs the handler for panicking listeners.
func WithPanicHandler[T any](h PanicHandler) Option[T] {
	return func(s *Set[T]) {
		s.onPanic = h
	}
}

// WithSizeObserver is called with the listener count after every add or remove.
func WithSizeObserver[T any](fn func(n int)) Option[T] {
	return func(s *Set[T]) {
		s.onChange = fn
	}
}

func New[T any](opts ...Option[T]) *Set[T] {
	s := &Set[T]{items: make(map[string]func(T))}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers fn and returns a function that removes it. The remove function is
// idempotent. A nil fn is ignored and a no-op remover is returned.
func (s *Set[T]) Add(fn func(T)) (remove func()) {
	if fn == nil {
		return func() {}
	}
	id := uuid.NewString()

	s.mu.Lock()
	s.items[id] = fn
	n := len(s.items)
	s.mu.Unlock()
	s.sizeChanged(n)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.items, id)
			n := len(s.items)
			s.mu.Unlock()
			s.sizeChanged(n)
		})
	}
}

// Notify calls every listener registered at the time of the call, synchronously and in
// no particular order. A listener that panics is recovered and reported; the remaining
// listeners still run. Listeners may add or remove registrations while being notified.
func (s *Set[T]) Notify(v T) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.items))
	fns := make([]func(T), 0, len(s.items))
	for id, fn := range s.items {
		ids = append(ids, id)
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for i, fn := range fns {
		s.invoke(ids[i], fn, v)
	}
}

func (s *Set[T]) invoke(id string, fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			if s.onPanic != nil {
				s.onPanic(id, r)
			}
		}
	}()
	fn(v)
}

// Len returns the number of registered listeners.
func (s *Set[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Set[T]) sizeChanged(n int) {
	if s.onChange != nil {
		s.onChange(n)
	}
}
