package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "healthspan",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "healthspan",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "healthspan",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	analysisRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "healthspan",
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Total number of analysis runs by scope and outcome.",
		},
		[]string{"scope", "status"},
	)

	analysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "healthspan",
			Subsystem: "analysis",
			Name:      "run_duration_seconds",
			Help:      "Duration of analysis runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"scope"},
	)

	alertsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "healthspan",
			Subsystem: "alerts",
			Name:      "created_total",
			Help:      "Health alerts raised by kind and severity.",
		},
		[]string{"kind", "severity"},
	)

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "healthspan",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Events handed to the queue by type and outcome.",
		},
		[]string{"type", "success"},
	)

	wearableSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "healthspan",
			Subsystem: "wearable",
			Name:      "syncs_total",
			Help:      "Wearable sync attempts by outcome.",
		},
		[]string{"success"},
	)

	wearableRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "healthspan",
			Subsystem: "wearable",
			Name:      "records_synced_total",
			Help:      "Biometric readings stored from wearable syncs.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		analysisRuns,
		analysisDuration,
		alertsCreated,
		eventsPublished,
		wearableSyncs,
		wearableRecords,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler records request counts and latency labelled by the
// matched chi route pattern so path parameters don't explode cardinality.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordAnalysisRun records one analysis run. scope is "habit", "user" or "daily".
func RecordAnalysisRun(scope string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	analysisRuns.WithLabelValues(scope, status).Inc()
	analysisDuration.WithLabelValues(scope).Observe(duration.Seconds())
}

func RecordAlert(kind, severity string) {
	alertsCreated.WithLabelValues(kind, severity).Inc()
}

func RecordEvent(eventType string, success bool) {
	eventsPublished.WithLabelValues(eventType, strconv.FormatBool(success)).Inc()
}

func RecordWearableSync(records int, success bool) {
	wearableSyncs.WithLabelValues(strconv.FormatBool(success)).Inc()
	if records > 0 {
		wearableRecords.Add(float64(records))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}
