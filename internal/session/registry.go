// Package session keeps the per-widget engine instances that the HTTP API
// drives, keyed by random UUIDs.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seuros/mfdash/internal/logging"
)

// DefaultIdleTimeout is how long an untouched session survives.
const DefaultIdleTimeout = 2 * time.Hour

// Entry wraps one session value with its own lock. Engines are not safe for
// concurrent use, so every access goes through Do.
type Entry[T any] struct {
	ID string

	mu       sync.Mutex
	value    T
	lastUsed time.Time
	now      func() time.Time
}

// Do runs fn with exclusive access to the value and marks the entry as used.
func (e *Entry[T]) Do(fn func(v T) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastUsed = e.now()
	return fn(e.value)
}

func (e *Entry[T]) idleSince() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastUsed
}

// Registry is a concurrent map of entries.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[string]*Entry[T]
	now     func() time.Time
	onDrop  func(T)
}

// NewRegistry creates an empty registry. onDrop, when set, runs for every
// value removed by Delete or Reap.
func NewRegistry[T any](onDrop func(T)) *Registry[T] {
	return &Registry[T]{
		entries: make(map[string]*Entry[T]),
		now:     time.Now,
		onDrop:  onDrop,
	}
}

// Create stores v under a fresh id.
func (r *Registry[T]) Create(v T) *Entry[T] {
	e := &Entry[T]{ID: uuid.NewString(), value: v, now: r.now, lastUsed: r.now()}
	r.mu.Lock()
	r.entries[e.ID] = e
	r.mu.Unlock()
	return e
}

// Get looks up id. Malformed ids are simply not found.
func (r *Registry[T]) Get(id string) (*Entry[T], bool) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Delete removes id and reports whether it existed.
func (r *Registry[T]) Delete(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if ok {
		r.drop(e)
	}
	return ok
}

// Len returns the number of live sessions.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Reap removes entries idle for longer than maxIdle and returns how many
// were removed.
func (r *Registry[T]) Reap(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var stale []*Entry[T]
	for id, e := range r.entries {
		if e.idleSince().Before(cutoff) {
			stale = append(stale, e)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, e := range stale {
		r.drop(e)
	}
	return len(stale)
}

// StartReaper reaps every interval until ctx is done.
func (r *Registry[T]) StartReaper(ctx context.Context, name string, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Reap(maxIdle); n > 0 {
					logging.L().Info("reaped idle sessions", "kind", name, "count", n)
				}
			}
		}
	}()
}

func (r *Registry[T]) drop(e *Entry[T]) {
	if r.onDrop == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	r.onDrop(e.value)
}
