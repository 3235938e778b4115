// Package callback correlates asynchronous responses with the request that
// created them.
//
// A caller registers a one-shot continuation under a fresh id before it sends
// the request, and whoever reads the response resolves the id. Entries expire
// after a TTL so a response that never arrives cannot pin memory for the life
// of a long running process.
package callback

import (
	"context"
	"sync"
	"time"
)

const defaultTTL = 30 * time.Second

type entry[T any] struct {
	fn        func(T)
	expiresAt time.Time
}

// Registry is a concurrency-safe table of pending one-shot continuations.
type Registry[T any] struct {
	mu       sync.Mutex
	entries  map[string]entry[T]
	ttl      time.Duration
	now      func() time.Time
	onExpire func(id string)
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	now      func() time.Time
	onExpire func(id string)
}

// WithClock injects the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithExpiryHook is called, outside the lock, for every entry dropped by Sweep.
func WithExpiryHook(fn func(id string)) Option {
	return func(o *options) {
		o.onExpire = fn
	}
}

// New creates a registry whose entries live for ttl. A non-positive ttl uses 30s.
func New[T any](ttl time.Duration, opts ...Option) *Registry[T] {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry[T]{
		entries:  make(map[string]entry[T]),
		ttl:      ttl,
		now:      o.now,
		onExpire: o.onExpire,
	}
}

// Register stores fn under id, replacing any previous entry with the same id.
// Call it before sending the request the id belongs to.
func (r *Registry[T]) Register(id string, fn func(T)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = entry[T]{fn: fn, expiresAt: r.now().Add(r.ttl)}
}

// Resolve removes the entry for id and invokes it with payload. Unknown,
// already resolved and expired ids are a no-op and report false.
func (r *Registry[T]) Resolve(id string, payload T) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok || r.now().After(e.expiresAt) {
		return false
	}
	e.fn(payload)
	return true
}

// Forget drops id without invoking it. Used when the request it belongs to
// can no longer be answered, such as a closed session.
func (r *Registry[T]) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len returns the number of pending entries, expired or not.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep drops expired entries and returns how many were removed.
func (r *Registry[T]) Sweep() int {
	now := r.now()
	var expired []string

	r.mu.Lock()
	for id, e := range r.entries {
		if now.After(e.expiresAt) {
			delete(r.entries, id)
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

	if r.onExpire != nil {
		for _, id := range expired {
			r.onExpire(id)
		}
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done.
func (r *Registry[T]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
