package kv

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by operations on a closed memory store.
var ErrClosed = errors.New("kv store closed")

type memoryStore struct {
	items  map[string]string
	mutex  sync.RWMutex
	closed bool
}

// NewMemory builds an in-memory store. Values do not survive the process.
func NewMemory(Config) Store {
	return &memoryStore{items: make(map[string]string)}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return "", false, ErrClosed
	}
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *memoryStore) Set(_ context.Context, key, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.items[key] = value
	return nil
}

func (s *memoryStore) Remove(_ context.Context, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.items, key)
	return nil
}

func (s *memoryStore) Keys(_ context.Context) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *memoryStore) Stats(_ context.Context) (map[string]any, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return map[string]any{
		"type":  DriverMemory,
		"total": len(s.items),
	}, nil
}

func (s *memoryStore) Close(_ context.Context) error {
	s.mutex.Lock()
	s.closed = true
	s.mutex.Unlock()
	return nil
}
