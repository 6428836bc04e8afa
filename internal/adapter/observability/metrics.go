// Package observability provides logging, metrics, and tracing.
//
// It integrates with OpenTelemetry for system monitoring.
// The package provides comprehensive observability features
// including metrics collection, distributed tracing, and logging.
package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts HTTP requests by route, method, and status label.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration records request durations by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// QueueDepth is a gauge of the most recently observed depth of a
	// contractual queue, refreshed by the queue statistics probe.
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Last observed message count for a queue",
		},
		[]string{"queue"},
	)

	// RecordsSeededTotal counts records admitted by the job seeder.
	RecordsSeededTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_seeded_total",
			Help: "Total number of person-data records admitted",
		},
		[]string{"job_type"},
	)

	// TransactionStateTransitionsTotal counts transaction-state events
	// committed by the Transaction State Processor, by the event's state.
	// Events dropped as NEW redeliveries or for unknown transactions are
	// counted too.
	TransactionStateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transaction_state_transitions_total",
			Help: "Total number of transaction-state events processed, by state",
		},
		[]string{"state"},
	)

	// TxnStateDroppedUnknownTotal counts non-NEW transaction-state events
	// dropped because the transaction had never been observed.
	TxnStateDroppedUnknownTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "txn_state_dropped_unknown_total",
			Help: "Transaction-state events dropped for a transaction whose NEW event was never observed",
		},
	)

	// SyncJobStateTransitionsTotal counts SyncJob state writes by the
	// resulting state.
	SyncJobStateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_job_state_transitions_total",
			Help: "Total number of SyncJob state transitions applied",
		},
		[]string{"state"},
	)

	// SyncJobTerminalRejectionsTotal counts attempts to move a SyncJob that
	// is already in a terminal state.
	SyncJobTerminalRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_job_terminal_rejections_total",
			Help: "Rejected attempts to transition a SyncJob already in a terminal state",
		},
	)

	// BrokerMessagesConsumedTotal counts broker deliveries handled, by
	// queue and outcome (acked/nacked).
	BrokerMessagesConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_consumed_total",
			Help: "Total number of broker deliveries handled",
		},
		[]string{"queue", "outcome"},
	)

	// BrokerPublishTotal counts publishes by exchange and outcome.
	BrokerPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_publish_total",
			Help: "Total number of broker publishes attempted",
		},
		[]string{"exchange", "outcome"},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(RecordsSeededTotal)
	prometheus.MustRegister(TransactionStateTransitionsTotal)
	prometheus.MustRegister(TxnStateDroppedUnknownTotal)
	prometheus.MustRegister(SyncJobStateTransitionsTotal)
	prometheus.MustRegister(SyncJobTerminalRejectionsTotal)
	prometheus.MustRegister(BrokerMessagesConsumedTotal)
	prometheus.MustRegister(BrokerPublishTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}
