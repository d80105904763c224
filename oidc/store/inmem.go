// Package store provides Store implementations for pending login
// transactions: an in-memory store for single-process hosts and a
// Redis-backed store for hosts that share transactions across
// instances.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/authkit/authkit/oidc"
)

type inMemEntry struct {
	value     []byte
	expiresAt time.Time
}

// InMem is an in-process Store. Expired entries are dropped lazily on
// read.
type InMem struct {
	mu      sync.Mutex
	entries map[string]inMemEntry
}

// NewInMem creates an empty in-memory store.
func NewInMem() *InMem {
	return &InMem{
		entries: map[string]inMemEntry{},
	}
}

func (s *InMem) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	const op = "store.InMem.Set"
	if key == "" {
		return fmt.Errorf("%s: key is empty: %w", op, oidc.ErrInvalidParameter)
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = inMemEntry{value: cp, expiresAt: expiresAt}
	return nil
}

func (s *InMem) Get(_ context.Context, key string) ([]byte, error) {
	const op = "store.InMem.Get"
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, fmt.Errorf("%s: %q: %w", op, key, oidc.ErrNotFound)
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(s.entries, key)
		return nil, fmt.Errorf("%s: %q: %w", op, key, oidc.ErrNotFound)
	}
	cp := make([]byte, len(e.value))
	copy(cp, e.value)
	return cp, nil
}

func (s *InMem) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
