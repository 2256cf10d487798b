// Package session keeps per-visitor state and binds visitors to remote
// agent-runtime sessions.
package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
)

// Store is one visitor's key/value state for the lifetime of a request.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Clear(ctx context.Context, key string) error
}

// Provider binds the Store belonging to the visitor making the request.
type Provider interface {
	Bind(w http.ResponseWriter, r *http.Request) (Store, error)
}

type contextKey struct{}

// WithStore returns ctx carrying store.
func WithStore(ctx context.Context, store Store) context.Context {
	return context.WithValue(ctx, contextKey{}, store)
}

// FromContext returns the Store bound by Middleware, or nil.
func FromContext(ctx context.Context) Store {
	if s, ok := ctx.Value(contextKey{}).(Store); ok {
		return s
	}
	return nil
}

// Middleware binds the visitor's Store and injects it into the request context.
func Middleware(p Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store, err := p.Bind(w, r)
			if err != nil {
				slog.Error("Failed to bind visitor session", "error", err)
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error":"failed to load session"}`, http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithStore(r.Context(), store)))
		})
	}
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the value stored under key.
func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores value under key.
func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Clear removes key.
func (m *MemoryStore) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// MemoryProvider hands every request the same MemoryStore. Useful in tests
// standing in for a single browser.
type MemoryProvider struct {
	Store *MemoryStore
}

// Bind returns the shared store.
func (p MemoryProvider) Bind(http.ResponseWriter, *http.Request) (Store, error) {
	return p.Store, nil
}
