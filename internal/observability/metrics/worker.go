package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	evaluationTotal    *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	evaluationInFlight prometheus.Gauge
	queueLag           *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	evaluationTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "closedesk",
			Subsystem: "worker",
			Name:      "transaction_evaluations_total",
			Help:      "Total processed transaction evaluations by status.",
		},
		[]string{"service", "status"},
	)
	evaluationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "closedesk",
			Subsystem: "worker",
			Name:      "transaction_evaluation_duration_seconds",
			Help:      "Transaction evaluation duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	evaluationInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "closedesk",
			Subsystem: "worker",
			Name:      "transaction_evaluation_in_flight",
			Help:      "Number of in-flight transaction evaluations.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "closedesk",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between event publication and evaluation start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(evaluationTotal, evaluationDuration, evaluationInFlight, queueLag)

	return &WorkerMetrics{
		registry:           registry,
		evaluationTotal:    evaluationTotal,
		evaluationDuration: evaluationDuration,
		evaluationInFlight: evaluationInFlight,
		queueLag:           queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartEvaluation() {
	m.evaluationInFlight.Inc()
}

func (m *WorkerMetrics) FinishEvaluation(service string, duration time.Duration, err error) {
	m.evaluationInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.evaluationTotal.WithLabelValues(service, status).Inc()
	m.evaluationDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
