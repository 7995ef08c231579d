package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	slerrors "stageline.dev/stageline/internal/errors"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stageline_operations_total",
		Help: "Staging operations by result.",
	}, []string{"operation", "result"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stageline_operation_duration_seconds",
		Help:    "Staging operation latency, lock waits included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	integrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stageline_integrations_total",
		Help: "Commits integrated onto a destination by mode.",
	}, []string{"mode"})

	rebuildRevertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stageline_rebuild_reverted_total",
		Help: "Staged changes reverted to NEW by staging rebuild conflicts.",
	})
)

// observe records one finished operation. Use as: defer observe("stage", time.Now(), &err)
func observe(operation string, start time.Time, errp *error) {
	result := "ok"
	if errp != nil && *errp != nil {
		result = slerrors.KindOf(*errp).String()
	}
	operationsTotal.WithLabelValues(operation, result).Inc()
	operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
