package querycache

import (
	"context"

	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
)

// Mutator performs the remote side of a mutation and returns the
// server-confirmed value.
type Mutator func(ctx context.Context) (any, error)

// MutateHooks stage the optimistic transition and observe the outcome.
// OnSettled always runs last, typically to invalidate for a background
// refresh.
type MutateHooks struct {
	OnOptimistic func(current any, hasData bool) any
	OnSuccess    func(final any)
	OnError      func(err error, rolledBackTo any)
	OnSettled    func()
}

// Mutate cancels any in-flight read for the key, captures the pre-mutation
// snapshot, applies the optimistic value synchronously, then runs the mutator.
//
// On success the server-confirmed value replaces the cache entry, never the
// optimistic guess, so server-side corrections (e.g. duplicate detection)
// always win. On failure the snapshot is restored verbatim, with one
// exception: a transport failure is ambiguous (the write may have landed), so
// the optimistic value is kept and the settled invalidation reconciles drift.
//
// Concurrent mutations on the same key are not serialized: the last to apply
// wins the displayed value, the last to settle wins the final cached value.
func (c *Cache) Mutate(ctx context.Context, key Key, mutator Mutator, hooks MutateHooks) (any, error) {
	if mutator == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mutator required")
	}
	ks := key.String()

	c.mu.Lock()
	e := c.ensureLocked(ks)
	e.gen++
	snapData, snapHas := e.data, e.hasData
	if hooks.OnOptimistic != nil {
		e.data = hooks.OnOptimistic(snapData, snapHas)
		e.hasData = true
	}
	c.mu.Unlock()

	final, err := mutator(ctx)

	c.mu.Lock()
	e = c.ensureLocked(ks)
	switch {
	case err == nil:
		e.data = final
		e.hasData = true
		e.fetchedAt = c.now()
		e.stale = false
	case pkgerrors.IsTransport(err):
		// ambiguous outcome: keep the optimistic value, but stale, so the
		// next read refetches whatever actually landed
		e.stale = true
	default:
		e.data = snapData
		e.hasData = snapHas
		c.metrics.IncRollback(key.label())
	}
	c.mu.Unlock()

	if err == nil {
		if hooks.OnSuccess != nil {
			hooks.OnSuccess(final)
		}
	} else if hooks.OnError != nil {
		hooks.OnError(err, snapData)
	}
	if hooks.OnSettled != nil {
		hooks.OnSettled()
	}
	return final, err
}
