// Package credstore persists the small set of values that survive a restart:
// the bearer token and the username of the logged in user.
package credstore

import (
	"errors"
	"sync"
)

const (
	KeyToken    = "token"
	KeyUsername = "username"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("credential store closed")

// Store is a string key-value store.
type Store interface {
	// Get returns the value of key. ok is false if the key is not set.
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error
	Close() error
}

// Memory is an in-memory Store.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
	closed bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.values[key] = value
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.values, key)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
