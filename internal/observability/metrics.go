// Package observability registers the service's Prometheus metrics.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	estimatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecotrace",
		Subsystem: "engine",
		Name:      "estimates_total",
		Help:      "Emission estimates computed, by entry point.",
	}, []string{"source"})

	estimateTotalKg = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ecotrace",
		Subsystem: "engine",
		Name:      "estimate_total_kg",
		Help:      "Distribution of estimated daily totals in kg CO2e.",
		Buckets:   []float64{5, 10, 20, 40, 60, 80, 120, 250, 500, 1000, 2500},
	})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ecotrace",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route pattern and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	liveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ecotrace",
		Subsystem: "live",
		Name:      "sessions",
		Help:      "Open websocket live sessions.",
	})

	snapshotRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecotrace",
		Subsystem: "snapshot",
		Name:      "runs_total",
		Help:      "Snapshot worker runs by outcome.",
	}, []string{"outcome"})

	snapshotLastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ecotrace",
		Subsystem: "snapshot",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed snapshot run.",
	})
)

func init() {
	prometheus.MustRegister(
		estimatesTotal,
		estimateTotalKg,
		httpDuration,
		liveSessions,
		snapshotRuns,
		snapshotLastRun,
	)
}

// RecordEstimate counts one estimate computed for source ("http", "ws",
// "grpc", "snapshot").
func RecordEstimate(source string, totalKg float64) {
	estimatesTotal.WithLabelValues(source).Inc()
	estimateTotalKg.Observe(totalKg)
}

// LiveSessionOpened increments the open live session gauge.
func LiveSessionOpened() { liveSessions.Inc() }

// LiveSessionClosed decrements the open live session gauge.
func LiveSessionClosed() { liveSessions.Dec() }

// RecordSnapshotRun records the outcome of a snapshot worker run.
func RecordSnapshotRun(ok bool, at time.Time) {
	if !ok {
		snapshotRuns.WithLabelValues("error").Inc()
		return
	}
	snapshotRuns.WithLabelValues("ok").Inc()
	snapshotLastRun.Set(float64(at.Unix()))
}

// HTTPMetrics records request latency labelled by the matched chi route.
func HTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
