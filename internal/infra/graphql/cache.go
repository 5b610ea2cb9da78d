// File: internal/infra/graphql/cache.go
package graphql

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"graphql-chat-client/internal/domain/ports/adapter"
	"graphql-chat-client/internal/domain/ports/repository"
	"graphql-chat-client/internal/infra/metrics"
)

// Snapshot is what watchers and readers see for one (operation, variables)
// key: the last good data plus the last error, side by side. A transient
// failure never blanks data that was already rendered.
type Snapshot struct {
	Data  json.RawMessage
	Err   error
	Stale bool // true when Data predates the newest fetch attempt
}

type cacheEntry struct {
	data      json.RawMessage
	hasData   bool
	err       error
	listeners map[int]func(Snapshot)

	// Pending notifications, drained in order by a single goroutine per
	// entry so a watcher never sees an older snapshot after a newer one.
	pending  []notification
	draining bool
}

type notification struct {
	fns  []func(Snapshot)
	snap Snapshot
}

func (e *cacheEntry) snapshot(stale bool) Snapshot {
	return Snapshot{Data: e.data, Err: e.err, Stale: stale}
}

// Cache holds the last-known-good result per operation key and implements the
// cache-and-network policy: cached data is returned immediately while a fresh
// fetch runs, and every update (network, optimistic merge, streamed push)
// notifies the key's watchers. An optional SnapshotStore persists results so a
// restarted client renders before its first round-trip.
type Cache struct {
	client adapter.GraphQLClient
	store  repository.SnapshotStore // may be nil
	log    *zerolog.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
	nextID  int
}

func NewCache(client adapter.GraphQLClient, store repository.SnapshotStore, logger *zerolog.Logger) *Cache {
	l := logger.With().Str("component", "Cache").Logger()
	return &Cache{
		client:  client,
		store:   store,
		log:     &l,
		entries: make(map[string]*cacheEntry),
	}
}

func (c *Cache) entryLocked(key string) *cacheEntry {
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{listeners: make(map[int]func(Snapshot))}
		c.entries[key] = e
	}
	return e
}

// Read returns the cached snapshot for op, falling back to the persisted
// store on a cold start. The boolean reports whether any data was found.
func (c *Cache) Read(ctx context.Context, op adapter.Operation) (Snapshot, bool) {
	key := CacheKey(op)
	c.mu.Lock()
	e := c.entryLocked(key)
	if e.hasData {
		snap := e.snapshot(true)
		c.mu.Unlock()
		metrics.CacheHit(op.Name)
		return snap, true
	}
	c.mu.Unlock()

	if c.store != nil {
		if payload, err := c.store.Load(ctx, key); err == nil && len(payload) > 0 {
			c.mu.Lock()
			e := c.entryLocked(key)
			if !e.hasData {
				e.data = payload
				e.hasData = true
			}
			snap := e.snapshot(true)
			c.mu.Unlock()
			metrics.CacheHit(op.Name)
			return snap, true
		}
	}
	metrics.CacheMiss(op.Name)
	return Snapshot{}, false
}

// Query implements cache-and-network for a one-shot query: a cache hit is
// returned immediately and refreshed in the background (watchers see the
// fresh value); a miss fetches synchronously.
func (c *Cache) Query(ctx context.Context, op adapter.Operation) (Snapshot, error) {
	if snap, ok := c.Read(ctx, op); ok {
		go func() { _, _ = c.Fetch(context.WithoutCancel(ctx), op) }()
		return snap, nil
	}
	return c.Fetch(ctx, op)
}

// Fetch executes op on the network and reconciles the entry: fresh data
// replaces the cached value and clears the error; a failure is stored
// alongside the stale data instead of replacing it.
func (c *Cache) Fetch(ctx context.Context, op adapter.Operation) (Snapshot, error) {
	key := CacheKey(op)
	res, err := c.client.Execute(ctx, op)
	if err == nil {
		err = res.Err()
	}

	c.mu.Lock()
	e := c.entryLocked(key)
	if err != nil {
		e.err = err
		snap := e.snapshot(e.hasData)
		c.notifyLocked(e, snap)
		c.mu.Unlock()
		return snap, err
	}
	e.data = res.Data
	e.hasData = true
	e.err = nil
	snap := e.snapshot(false)
	c.notifyLocked(e, snap)
	c.mu.Unlock()

	c.persist(key, res.Data)
	return snap, nil
}

// Watch registers fn for every future snapshot of op's key. The returned
// func unregisters it.
func (c *Cache) Watch(op adapter.Operation, fn func(Snapshot)) func() {
	key := CacheKey(op)
	c.mu.Lock()
	e := c.entryLocked(key)
	c.nextID++
	id := c.nextID
	e.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		if e, ok := c.entries[key]; ok {
			delete(e.listeners, id)
		}
		c.mu.Unlock()
	}
}

// MutateOption reconciles a mutation's result into cached queries.
type MutateOption func(c *Cache, ctx context.Context, res *adapter.Result)

// WithRefetch re-runs the named queries after a successful mutation.
func WithRefetch(ops ...adapter.Operation) MutateOption {
	return func(c *Cache, ctx context.Context, _ *adapter.Result) {
		for _, op := range ops {
			if _, err := c.Fetch(ctx, op); err != nil {
				c.log.Warn().Err(err).Str("operation", op.Name).Msg("refetch after mutation failed")
			}
		}
	}
}

// WithMerge applies an optimistic merge: fn receives the target's cached data
// (nil when absent) and the mutation's data, and returns the new cached value.
// Returning nil leaves the entry untouched.
func WithMerge(target adapter.Operation, fn func(cached, mutation json.RawMessage) json.RawMessage) MutateOption {
	return func(c *Cache, ctx context.Context, res *adapter.Result) {
		key := CacheKey(target)
		c.mu.Lock()
		e := c.entryLocked(key)
		merged := fn(e.data, res.Data)
		if merged == nil {
			c.mu.Unlock()
			return
		}
		e.data = merged
		e.hasData = true
		e.err = nil
		snap := e.snapshot(false)
		c.notifyLocked(e, snap)
		c.mu.Unlock()

		metrics.CacheMerge(target.Name)
		c.persist(key, merged)
	}
}

// Mutate executes a mutation and, on success, applies the supplied
// reconciliation options in order.
func (c *Cache) Mutate(ctx context.Context, op adapter.Operation, opts ...MutateOption) (*adapter.Result, error) {
	res, err := c.client.Execute(ctx, op)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return res, err
	}
	for _, opt := range opts {
		opt(c, ctx, res)
	}
	return res, nil
}

// ApplyStream replaces the cached collection wholesale with a pushed
// snapshot (last-write-wins at the collection level). An errored push keeps
// the previous data and records the error beside it.
func (c *Cache) ApplyStream(op adapter.Operation, res *adapter.Result) Snapshot {
	key := CacheKey(op)
	c.mu.Lock()
	e := c.entryLocked(key)
	if err := res.Err(); err != nil {
		e.err = err
		snap := e.snapshot(e.hasData)
		c.notifyLocked(e, snap)
		c.mu.Unlock()
		return snap
	}
	e.data = res.Data
	e.hasData = true
	e.err = nil
	snap := e.snapshot(false)
	c.notifyLocked(e, snap)
	c.mu.Unlock()

	c.persist(key, res.Data)
	return snap
}

// Invalidate drops a key from memory and from the persisted store.
func (c *Cache) Invalidate(ctx context.Context, op adapter.Operation) {
	key := CacheKey(op)
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.data = nil
		e.hasData = false
		e.err = nil
	}
	c.mu.Unlock()
	if c.store != nil {
		if err := c.store.Delete(ctx, key); err != nil {
			c.log.Debug().Err(err).Str("key", key).Msg("snapshot delete failed")
		}
	}
}

// notifyLocked queues listener callbacks; they run outside the lock, in the
// order the updates were applied.
func (c *Cache) notifyLocked(e *cacheEntry, snap Snapshot) {
	if len(e.listeners) == 0 {
		return
	}
	fns := make([]func(Snapshot), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.pending = append(e.pending, notification{fns: fns, snap: snap})
	if !e.draining {
		e.draining = true
		go c.drain(e)
	}
}

// drain works the entry's notification queue until it is empty. Only one
// drainer runs per entry at a time.
func (c *Cache) drain(e *cacheEntry) {
	for {
		c.mu.Lock()
		if len(e.pending) == 0 {
			e.draining = false
			c.mu.Unlock()
			return
		}
		n := e.pending[0]
		e.pending = e.pending[1:]
		c.mu.Unlock()

		for _, fn := range n.fns {
			fn(n.snap)
		}
	}
}

// persist writes the payload to the snapshot store, best effort.
func (c *Cache) persist(key string, payload []byte) {
	if c.store == nil || payload == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.store.Store(ctx, key, payload); err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("snapshot persist failed")
	}
}
