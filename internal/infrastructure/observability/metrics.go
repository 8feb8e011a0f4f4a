package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Saga metrics
	SagasStarted      prometheus.Counter
	SagasCompleted    *prometheus.CounterVec
	SagaStepsTotal    *prometheus.CounterVec
	SagaStepDuration  *prometheus.HistogramVec
	SagasInFlight     prometheus.Gauge
	SagaCompensations *prometheus.CounterVec
	SagaTimeouts      *prometheus.CounterVec

	// Payment metrics
	PaymentsTotal    *prometheus.CounterVec
	PaymentAmount    *prometheus.HistogramVec
	EventsAppended   *prometheus.CounterVec
	ReplayDuration   prometheus.Histogram
	ConcurrencyRetry prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState    *prometheus.GaugeVec
	CircuitBreakerRequests *prometheus.CounterVec

	// Worker metrics
	WorkerMessagesProcessed  *prometheus.CounterVec
	WorkerProcessingDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		SagasStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sagas_started_total",
				Help:      "Total number of payment workflows initiated",
			},
		),
		SagasCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sagas_completed_total",
				Help:      "Total number of finished workflows by terminal status",
			},
			[]string{"status"},
		),
		SagaStepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "saga_steps_total",
				Help:      "Total number of executed saga steps by step and outcome",
			},
			[]string{"step", "outcome"},
		),
		SagaStepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "saga_step_duration_seconds",
				Help:      "Saga step execution duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"step"},
		),
		SagasInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sagas_in_flight",
				Help:      "Number of workflows not yet terminal",
			},
		),
		SagaCompensations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "saga_compensations_total",
				Help:      "Total number of compensation runs by failed step",
			},
			[]string{"failed_step"},
		),
		SagaTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "saga_timeouts_total",
				Help:      "Total number of expired saga deadlines by step",
			},
			[]string{"step"},
		),
		PaymentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_total",
				Help:      "Total number of payments by terminal state",
			},
			[]string{"state"},
		),
		PaymentAmount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "payment_amount_minor_units",
				Help:      "Payment amount distribution in minor units",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"currency"},
		),
		EventsAppended: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_appended_total",
				Help:      "Total number of events appended to payment streams",
			},
			[]string{"event_type"},
		),
		ReplayDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "replay_duration_seconds",
				Help:      "Aggregate replay duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
		ConcurrencyRetry: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "concurrency_retries_total",
				Help:      "Total number of optimistic-concurrency retries",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		CircuitBreakerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_requests_total",
				Help:      "Total number of circuit breaker requests",
			},
			[]string{"name", "result"},
		),
		WorkerMessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_messages_processed_total",
				Help:      "Total number of worker messages processed",
			},
			[]string{"stream", "status"},
		),
		WorkerProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "worker_processing_duration_seconds",
				Help:      "Worker message processing duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stream"},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.SagasStarted,
		m.SagasCompleted,
		m.SagaStepsTotal,
		m.SagaStepDuration,
		m.SagasInFlight,
		m.SagaCompensations,
		m.SagaTimeouts,
		m.PaymentsTotal,
		m.PaymentAmount,
		m.EventsAppended,
		m.ReplayDuration,
		m.ConcurrencyRetry,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
		m.CircuitBreakerRequests,
		m.WorkerMessagesProcessed,
		m.WorkerProcessingDuration,
	)

	return m
}
