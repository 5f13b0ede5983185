// Package metrics exposes Prometheus metrics for watch mode.
package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run result labels.
const (
	ResultPassed = "passed"
	ResultFailed = "failed"
	ResultError  = "error"
)

var (
	// Namespace for all metrics.
	namespace = "conformity"

	// Run counters.
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of check runs by result",
		},
		[]string{"result"},
	)

	// Check timing.
	checkDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Time taken for one full check run (in seconds)",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
	)

	// Most-recent-run state.
	entitiesScanned = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities_scanned",
			Help:      "Entities discovered by the most recent run",
		},
	)

	violationGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "violations",
			Help:      "Violations found by the most recent run, by reason",
		},
		[]string{"reason"},
	)
)

// RecordRun records one completed check run.
func RecordRun(passed bool, duration time.Duration) {
	result := ResultFailed
	if passed {
		result = ResultPassed
	}
	runsTotal.WithLabelValues(result).Inc()
	checkDuration.Observe(duration.Seconds())
}

// RecordRunError counts a run that did not complete.
func RecordRunError() {
	runsTotal.WithLabelValues(ResultError).Inc()
}

// SetEntityCount sets the entity gauge for the most recent run.
func SetEntityCount(n int) {
	entitiesScanned.Set(float64(n))
}

// SetViolationCount sets the violation gauge for one reason code.
func SetViolationCount(reason string, n int) {
	violationGauge.WithLabelValues(reason).Set(float64(n))
}

// ResetViolations clears the per-reason gauges. Call before recording a
// new run so reasons fixed since the last run do not linger.
func ResetViolations() {
	violationGauge.Reset()
}

// SetupMetricsEndpoint starts an HTTP server to expose metrics.
// This should be called once at application startup.
func SetupMetricsEndpoint(addr string, logger *slog.Logger) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics endpoint failed", "addr", addr, "error", err)
		}
	}()

	return server
}
