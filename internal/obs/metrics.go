package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"warden.dev/internal/fault"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	initOnce sync.Once

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Principal resolution attempts by kind and outcome code.",
		},
		[]string{"kind", "outcome"},
	)

	keyOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "key_operations_total",
			Help: "Tenant key lifecycle operations by operation and outcome code.",
		},
		[]string{"op", "outcome"},
	)

	tokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokens_issued_total",
			Help: "Tokens issued by purpose and signing path.",
		},
		[]string{"purpose", "path"},
	)
)

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration,
			authAttempts, keyOperations, tokensIssued)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records in-flight, count and latency per chi route pattern.
// Mount it with router.Use so the pattern is resolved by the time it is read.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := routePattern(r)
		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

// RecordAuth counts one resolution attempt for kind. err == nil counts as ok.
func RecordAuth(kind string, err error) {
	authAttempts.WithLabelValues(kind, outcome(err)).Inc()
}

// RecordKeyOp counts one key lifecycle operation.
func RecordKeyOp(op string, err error) {
	keyOperations.WithLabelValues(op, outcome(err)).Inc()
}

// RecordTokenIssued counts one issued token.
func RecordTokenIssued(purpose, path string) {
	tokensIssued.WithLabelValues(purpose, path).Inc()
}

func outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if code := fault.CodeOf(err); code != "" {
		return code
	}
	return OutcomeError
}

// routePattern keeps label cardinality bounded by using the matched chi pattern.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
