// Package search runs debounced, generation-tagged lookups so a slow response to
// an old query can never overwrite the result of a newer one.
package search

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seuros/mfdash/internal/logging"
)

// DefaultDelay is the debounce interval used when none is configured.
const DefaultDelay = 300 * time.Millisecond

// Generation hands out increasing tokens; only the newest token is current.
type Generation struct {
	n atomic.Uint64
}

// Next issues a new token, superseding every earlier one.
func (g *Generation) Next() uint64 { return g.n.Add(1) }

// Latest returns the newest issued token.
func (g *Generation) Latest() uint64 { return g.n.Load() }

// IsLatest reports whether token is still current.
func (g *Generation) IsLatest(token uint64) bool { return g.n.Load() == token }

// Fetcher performs the lookup for query. It must honor ctx cancellation.
type Fetcher[T any] func(ctx context.Context, query string) (T, error)

// Result is a completed lookup.
type Result[T any] struct {
	Token uint64
	Query string
	Value T
	Err   error
}

// Debouncer delays each query, cancels the previous in-flight lookup, and
// delivers only results whose token is still the latest.
type Debouncer[T any] struct {
	base    context.Context
	delay   time.Duration
	fetch   Fetcher[T]
	deliver func(Result[T])
	gen     Generation

	mu     sync.Mutex
	timer  *time.Timer
	cancel context.CancelFunc
	closed bool

	deliverMu sync.Mutex
}

// NewDebouncer builds a debouncer. Lookups inherit ctx; deliver is called from a
// background goroutine, one result at a time.
func NewDebouncer[T any](ctx context.Context, delay time.Duration, fetch Fetcher[T], deliver func(Result[T])) *Debouncer[T] {
	if delay < 0 {
		delay = 0
	}
	return &Debouncer[T]{
		base:    ctx,
		delay:   delay,
		fetch:   fetch,
		deliver: deliver,
	}
}

// Search schedules a lookup for query and returns its token.
func (d *Debouncer[T]) Search(query string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	token := d.gen.Next()
	if d.closed {
		return token
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.timer = time.AfterFunc(d.delay, func() { d.run(token, query) })
	return token
}

// Latest returns the token of the newest query.
func (d *Debouncer[T]) Latest() uint64 { return d.gen.Latest() }

// Close cancels any pending or in-flight lookup. Later results are dropped.
func (d *Debouncer[T]) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.gen.Next()
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

func (d *Debouncer[T]) run(token uint64, query string) {
	d.mu.Lock()
	if d.closed || !d.gen.IsLatest(token) {
		d.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(d.base)
	d.cancel = cancel
	d.mu.Unlock()
	defer cancel()

	value, err := d.fetch(ctx, query)

	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()
	if !d.gen.IsLatest(token) {
		logging.L().Debug("dropping superseded search result", "query", query, "token", token)
		return
	}
	d.deliver(Result[T]{Token: token, Query: query, Value: value, Err: err})
}
