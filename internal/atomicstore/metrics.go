package atomicstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal counts store mutations by operation and result.
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selfrise_store_operations_total",
		Help: "Atomic store operations by operation and result",
	}, []string{"op", "result"})

	// queuedTotal counts operations that had to wait for a key lock.
	queuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selfrise_store_queued_total",
		Help: "Atomic store operations that waited behind another writer",
	}, []string{"op"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selfrise_store_retries_total",
		Help: "Atomic store retry attempts after a storage failure",
	}, []string{"op"})

	lockWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "selfrise_store_lock_wait_seconds",
		Help:    "Time spent waiting for a per-key lock",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
	}, []string{"op"})
)
