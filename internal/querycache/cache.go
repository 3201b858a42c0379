package querycache

import (
	"context"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
	"github.com/SeaWiser/shoes-sync/pkg/metrics"
)

// Fetcher loads the authoritative value for a key from the backend.
type Fetcher func(ctx context.Context) (any, error)

// ReadOptions tune one read. A zero StaleTime means the entry is immediately
// stale and every read refetches.
type ReadOptions struct {
	StaleTime time.Duration
}

type flight struct {
	done chan struct{}
	gen  uint64

	// written before done is closed
	data any
	err  error
}

type entry struct {
	data      any
	hasData   bool
	fetchedAt time.Time
	stale     bool

	// gen increments on every mutation; an in-flight fetch carrying an older
	// gen has been logically cancelled and its result is dropped.
	gen    uint64
	flight *flight
}

// Cache is the in-memory query/mutation cache: one entry per key, request
// coalescing on reads, optimistic apply + snapshot rollback on mutations.
// Entries are evicted only by Clear (logout); staleness never evicts data.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	logg    *logger.Logger
	metrics *metrics.SyncMetrics
	now     func() time.Time
}

// NewCache builds an empty cache. logg and m may be nil.
func NewCache(logg *logger.Logger, m *metrics.SyncMetrics) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		logg:    logg,
		metrics: m,
		now:     time.Now,
	}
}

func (c *Cache) ensureLocked(ks string) *entry {
	e, ok := c.entries[ks]
	if !ok {
		e = &entry{}
		c.entries[ks] = e
	}
	return e
}

// Read returns the cached value when fresh, attaches to an in-flight fetch
// when one exists, and otherwise invokes the fetcher exactly once for all
// concurrent callers. A fetch error is surfaced to every waiter and nothing
// is cached.
func (c *Cache) Read(ctx context.Context, key Key, fetcher Fetcher, opts ReadOptions) (any, error) {
	ks := key.String()

	c.mu.Lock()
	e := c.ensureLocked(ks)

	if e.hasData && !e.stale && opts.StaleTime > 0 && c.now().Sub(e.fetchedAt) < opts.StaleTime {
		data := e.data
		c.mu.Unlock()
		c.metrics.IncCacheHit(key.label())
		return data, nil
	}

	if e.flight != nil {
		f := e.flight
		c.mu.Unlock()
		c.metrics.IncCoalescedRead(key.label())
		return c.await(ctx, f)
	}

	f := &flight{done: make(chan struct{}), gen: e.gen}
	e.flight = f
	c.mu.Unlock()
	c.metrics.IncCacheMiss(key.label())

	data, err := fetcher(ctx)
	c.settle(ks, f, data, err)
	return c.await(ctx, f)
}

func (c *Cache) await(ctx context.Context, f *flight) (any, error) {
	select {
	case <-ctx.Done():
		return nil, pkgerrors.Wrap(pkgerrors.CodeCancelled, ctx.Err(), "read abandoned by caller")
	case <-f.done:
		return f.data, f.err
	}
}

// settle records a fetch outcome. A fetch whose generation has been passed by
// a mutation is cancelled: its response is silently dropped and waiters are
// handed the current cache value instead (the optimistic one).
func (c *Cache) settle(ks string, f *flight, data any, err error) {
	c.mu.Lock()
	e := c.entries[ks]
	cancelled := e == nil || e.gen != f.gen

	if e != nil && e.flight == f {
		e.flight = nil
	}

	switch {
	case cancelled:
		if e != nil && e.hasData {
			f.data = e.data
		} else {
			f.err = pkgerrors.New(pkgerrors.CodeCancelled, "read superseded by mutation")
		}
	case err == nil:
		e.data = data
		e.hasData = true
		e.fetchedAt = c.now()
		e.stale = false
		f.data = data
	default:
		f.err = err
	}
	c.mu.Unlock()
	close(f.done)
}

// Get peeks at the cached value without triggering a fetch.
func (c *Cache) Get(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok || !e.hasData {
		return nil, false
	}
	return e.data, true
}

// Invalidate marks matching entries stale without dropping their data, so the
// UI keeps showing the old value until the next read refetches.
func (c *Cache) Invalidate(prefix Key) {
	p := prefix.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	for ks, e := range c.entries {
		if ks == p || strings.HasPrefix(ks, p+"/") {
			e.stale = true
		}
	}
}

// Clear evicts everything. Used on logout. In-flight fetches resolve as
// cancelled.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}
