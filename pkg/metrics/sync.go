package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics records cache and reconciliation behavior.
type SyncMetrics struct {
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	coalescedReads *prometheus.CounterVec
	rollbacks      *prometheus.CounterVec
	reconcileRuns  *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	cacheHits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "query_cache_hits",
		Help: "Reads served from a fresh cache entry.",
	}, []string{"key"})
	cacheMisses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "query_cache_misses",
		Help: "Reads that invoked the fetcher.",
	}, []string{"key"})
	coalescedReads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "query_cache_coalesced_reads",
		Help: "Reads that attached to an in-flight fetch.",
	}, []string{"key"})
	rollbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "optimistic_rollbacks",
		Help: "Mutations rolled back to their pre-mutation snapshot.",
	}, []string{"key"})
	reconcileRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_runs",
		Help: "Local/remote set reconciliations performed.",
	}, []string{"domain"})
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "startup_stage_duration_seconds",
		Help:    "Duration of startup sync stages in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
	reg.MustRegister(cacheHits, cacheMisses, coalescedReads, rollbacks, reconcileRuns, stageDuration)
	return &SyncMetrics{
		cacheHits:      cacheHits,
		cacheMisses:    cacheMisses,
		coalescedReads: coalescedReads,
		rollbacks:      rollbacks,
		reconcileRuns:  reconcileRuns,
		stageDuration:  stageDuration,
	}
}

// IncCacheHit counts a read served from cache.
func (m *SyncMetrics) IncCacheHit(key string) {
	if m == nil || m.cacheHits == nil {
		return
	}
	m.cacheHits.WithLabelValues(key).Inc()
}

// IncCacheMiss counts a read that had to fetch.
func (m *SyncMetrics) IncCacheMiss(key string) {
	if m == nil || m.cacheMisses == nil {
		return
	}
	m.cacheMisses.WithLabelValues(key).Inc()
}

// IncCoalescedRead counts a read that attached to an in-flight fetch.
func (m *SyncMetrics) IncCoalescedRead(key string) {
	if m == nil || m.coalescedReads == nil {
		return
	}
	m.coalescedReads.WithLabelValues(key).Inc()
}

// IncRollback counts a rolled-back optimistic mutation.
func (m *SyncMetrics) IncRollback(key string) {
	if m == nil || m.rollbacks == nil {
		return
	}
	m.rollbacks.WithLabelValues(key).Inc()
}

// IncReconcileRun counts a reconciliation pass for a domain.
func (m *SyncMetrics) IncReconcileRun(domain string) {
	if m == nil || m.reconcileRuns == nil {
		return
	}
	m.reconcileRuns.WithLabelValues(domain).Inc()
}

// ObserveStageDuration records how long a startup stage took.
func (m *SyncMetrics) ObserveStageDuration(stage string, d time.Duration) {
	if m == nil || m.stageDuration == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
