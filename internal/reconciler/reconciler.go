// Package reconciler merges remote identifier sets into the persisted local
// store. Reconciliation is one-way: remote entries the device has not seen yet
// are added locally, and local entries are never removed. Running it twice
// with the same inputs is a no-op.
package reconciler

import (
	"context"

	"github.com/SeaWiser/shoes-sync/internal/localstore"
	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
	"github.com/SeaWiser/shoes-sync/pkg/metrics"
)

type Params struct {
	Store   *localstore.Store
	Logger  *logger.Logger
	Metrics *metrics.SyncMetrics
}

type Reconciler struct {
	store   *localstore.Store
	logg    *logger.Logger
	metrics *metrics.SyncMetrics
}

func New(params Params) (*Reconciler, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler requires a local store")
	}
	return &Reconciler{
		store:   params.Store,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// Reconcile extends the stored set for domain with the remote entries the
// device is missing. The local set only ever grows here; removals happen
// through explicit user actions, never through reconciliation.
func (r *Reconciler) Reconcile(ctx context.Context, domain localstore.Domain, remote []string) error {
	r.metrics.IncReconcileRun(string(domain))

	local := r.store.StringSet(domain)
	missing := MissingFromLocal(local, remote)
	if len(missing) == 0 {
		return nil
	}

	merged := append(local, missing...)
	if err := r.store.SetStringSet(ctx, domain, merged); err != nil {
		return err
	}

	if r.logg != nil {
		logCtx := r.logg.WithDomain(ctx, string(domain))
		logCtx = r.logg.WithField(logCtx, "added", len(missing))
		r.logg.Debug(logCtx, "reconciled remote set into local store")
	}
	return nil
}

// Union returns local followed by the remote entries absent from local,
// preserving the order of both inputs. The result is a new slice.
func Union(local, remote []string) []string {
	out := make([]string, 0, len(local)+len(remote))
	out = append(out, local...)
	return append(out, MissingFromLocal(local, remote)...)
}

// MissingFromLocal returns the remote entries not present locally, in remote
// order, deduplicated.
func MissingFromLocal(local, remote []string) []string {
	seen := make(map[string]struct{}, len(local))
	for _, id := range local {
		seen[id] = struct{}{}
	}

	var missing []string
	for _, id := range remote {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		missing = append(missing, id)
	}
	return missing
}
