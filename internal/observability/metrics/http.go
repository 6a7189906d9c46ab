package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	checkResultsTotal    *prometheus.CounterVec
	rollupTotal          *prometheus.CounterVec
	searchRequestsTotal  *prometheus.CounterVec
	searchRetrievedChunk *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "closedesk",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "closedesk",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "closedesk",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	checkResultsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "closedesk",
			Subsystem: "compliance",
			Name:      "check_results_total",
			Help:      "Total appended check results by check key and status.",
		},
		[]string{"service", "check_key", "status"},
	)
	rollupTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "closedesk",
			Subsystem: "compliance",
			Name:      "rollups_total",
			Help:      "Total status rollups by resulting lifecycle status.",
		},
		[]string{"service", "status"},
	)
	searchRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "closedesk",
			Subsystem: "retrieval",
			Name:      "search_requests_total",
			Help:      "Total chunk search requests.",
		},
		[]string{"service"},
	)
	searchRetrievedChunk := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "closedesk",
			Subsystem: "retrieval",
			Name:      "retrieved_chunks",
			Help:      "Distribution of retrieved chunks per search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		checkResultsTotal,
		rollupTotal,
		searchRequestsTotal,
		searchRetrievedChunk,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		checkResultsTotal:    checkResultsTotal,
		rollupTotal:          rollupTotal,
		searchRequestsTotal:  searchRequestsTotal,
		searchRetrievedChunk: searchRetrievedChunk,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &metricsRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses resource ids so the path label stays bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/transactions/"):
		rest := strings.TrimPrefix(path, "/v1/transactions/")
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return "/v1/transactions/{transaction_id}/" + rest[i+1:]
		}
		return "/v1/transactions/{transaction_id}"
	case strings.HasPrefix(path, "/v1/documents/"):
		rest := strings.TrimPrefix(path, "/v1/documents/")
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return "/v1/documents/{document_id}/" + rest[i+1:]
		}
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordCheckResult(service, checkKey, status string) {
	if checkKey == "" {
		checkKey = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.checkResultsTotal.WithLabelValues(service, checkKey, status).Inc()
}

func (m *HTTPServerMetrics) RecordRollup(service, status string) {
	if status == "" {
		status = "unknown"
	}
	m.rollupTotal.WithLabelValues(service, status).Inc()
}

func (m *HTTPServerMetrics) RecordSearch(service string, retrieved int) {
	m.searchRequestsTotal.WithLabelValues(service).Inc()
	m.searchRetrievedChunk.WithLabelValues(service).Observe(float64(retrieved))
}

type metricsRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *metricsRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *metricsRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *metricsRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *metricsRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
