// Package metrics exposes prometheus collectors for pipeline stages.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dashlego"

// Cache lookup outcomes.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

var (
	stageCacheCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_cache_total",
			Help:      "Stage cache lookups by stage and result.",
		},
		[]string{"stage", "result"},
	)
	handlerInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_invocations_total",
			Help:      "Builder and transformer invocations by stage.",
		},
		[]string{"stage"},
	)
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of a pipeline stage including cache access.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
		[]string{"stage"},
	)
	subscriberFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_failures_total",
			Help:      "State subscriber callbacks that failed and were isolated.",
		},
		[]string{"state"},
	)
)

var registerMetrics sync.Once

// Register all metrics with reg, once per process.
func Register(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(stageCacheCounter)
		reg.MustRegister(handlerInvocations)
		reg.MustRegister(stageDuration)
		reg.MustRegister(subscriberFailures)
	})
}

// RecordCache records the outcome of one stage cache lookup.
func RecordCache(stage, result string) {
	stageCacheCounter.WithLabelValues(stage, result).Inc()
}

// RecordInvocation records one builder or transformer call.
func RecordInvocation(stage string) {
	handlerInvocations.WithLabelValues(stage).Inc()
}

// ObserveStage records how long a stage took since start.
func ObserveStage(stage string, start time.Time) {
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// RecordSubscriberFailure records an isolated subscriber failure.
func RecordSubscriberFailure(stateID string) {
	subscriberFailures.WithLabelValues(stateID).Inc()
}
