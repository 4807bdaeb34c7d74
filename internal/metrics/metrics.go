// Package metrics exposes Prometheus instrumentation for the forecasting
// engine. All collectors register on the default registry; Handler serves
// them for scraping.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	forecastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "forecast",
		Name:      "computations_total",
		Help:      "Completed forecast computations.",
	})

	forecastDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "forecast",
		Name:      "computation_duration_seconds",
		Help:      "Time spent scoring and aggregating one forecast.",
		Buckets:   prometheus.DefBuckets,
	})

	dealsScored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "forecast",
		Name:      "deals_scored_total",
		Help:      "Opportunities scored across all computations.",
	})

	simulationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "forecast",
		Name:      "simulations_total",
		Help:      "Scenario simulations run.",
	})

	adjustmentsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "forecast",
		Name:      "scenario_adjustments_total",
		Help:      "Adjustments submitted across all simulations.",
	})

	importedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forecast",
		Name:      "imported_records_total",
		Help:      "CRM records ingested, labeled by source.",
	}, []string{"source"})

	snapshotsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "forecast",
		Name:      "snapshots_total",
		Help:      "Forecast snapshots persisted.",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forecast",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served, labeled by route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "forecast",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// ObserveForecast records one completed forecast computation.
func ObserveForecast(deals int, elapsed time.Duration) {
	forecastsTotal.Inc()
	dealsScored.Add(float64(deals))
	forecastDuration.Observe(elapsed.Seconds())
}

// ObserveSimulation records one scenario run and its adjustment count.
func ObserveSimulation(adjustments int) {
	simulationsTotal.Inc()
	adjustmentsApplied.Add(float64(adjustments))
}

// ObserveImport records records ingested from one import source.
func ObserveImport(source string, records int) {
	importedRecords.WithLabelValues(source).Add(float64(records))
}

// ObserveSnapshot records one persisted snapshot.
func ObserveSnapshot() {
	snapshotsTotal.Inc()
}

// Handler serves the default registry for Prometheus scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments every request with a count and latency
// observation. The route label uses the chi pattern, not the raw path,
// to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
