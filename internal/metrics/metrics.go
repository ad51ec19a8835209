// Package metrics holds the prometheus collectors shared by the HTTP layer and the engine.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cohort"

var histogramBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

var (
	operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "operations_total",
		Help:      "Engine operations by outcome code",
	}, []string{"operation", "result"})

	txRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "tx_retries_total",
		Help:      "Transactions re-run after a serialization failure or deadlock",
	})

	releaseDrift = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "release_drift_total",
		Help:      "Releases of a problem statement whose counter was already zero or missing",
	})

	publishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "publish_failures_total",
		Help:      "Outbound events that could not be published",
	}, []string{"type"})

	requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "Count of processed HTTP requests",
	}, []string{"method", "route", "status"})

	requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_request_duration_seconds",
		Help:      "Latency distribution of HTTP handlers",
		Buckets:   histogramBuckets,
	}, []string{"method", "route", "status"})
)

// Register adds every collector to reg. Collectors that are already
// registered are left in place.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{operations, txRetries, releaseDrift, publishFailures, requestTotal, requestLatency}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func ObserveOperation(operation, result string) {
	operations.WithLabelValues(operation, result).Inc()
}

func ObserveTxRetry() {
	txRetries.Inc()
}

func ObserveReleaseDrift() {
	releaseDrift.Inc()
}

func ObservePublishFailure(eventType string) {
	publishFailures.WithLabelValues(eventType).Inc()
}

func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	requestTotal.With(labels).Inc()
	requestLatency.With(labels).Observe(duration.Seconds())
}
