package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	salesRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sales_recorded_total",
			Help: "Total number of sales successfully recorded",
		},
	)
)

// HTTPMetrics records request counts and latency for a named service.
type HTTPMetrics struct {
	serviceName string
}

func NewHTTPMetrics(serviceName string) *HTTPMetrics {
	prometheus.MustRegister(requestCounter, requestDuration, salesRecorded)
	return &HTTPMetrics{serviceName: serviceName}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware wraps a handler and observes method, path, status, and latency.
// The path label uses the route pattern registered on the mux, not the raw
// URL, to keep cardinality bounded.
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(rec.status)
		requestCounter.WithLabelValues(m.serviceName, r.Method, path, status).Inc()
		requestDuration.WithLabelValues(m.serviceName, r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

func IncSalesRecorded() {
	salesRecorded.Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
