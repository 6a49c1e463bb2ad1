// Package metrics exposes the Prometheus counters of the coordinator and the
// provider and serves them on a dedicated listener.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "sap"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var registry = prometheus.NewRegistry()

var (
	// MasksGenerated counts input-mask slots sampled by the share engine.
	MasksGenerated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "input_masks_generated_total",
		Help:      "Number of input mask slots generated.",
	})

	// MaskedInputsApplied counts blinded values turned into half-shares.
	MaskedInputsApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "masked_inputs_applied_total",
		Help:      "Number of blinded values converted into shares.",
	})

	// Executions counts finished computations by outcome.
	Executions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "executions_total",
		Help:      "Number of finished MPC executions.",
	}, []string{"outcome"})

	// ExecutionDuration observes engine invocation latency.
	ExecutionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "execution_duration_seconds",
		Help:      "Duration of MPC engine invocations.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// Notifications counts output-party deliveries by outcome.
	Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "notifications_total",
		Help:      "Number of output party notifications.",
	}, []string{"outcome"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		MasksGenerated,
		MaskedInputsApplied,
		Executions,
		ExecutionDuration,
		Notifications,
	)
}

// Registry returns the registry holding all metrics of this package.
func Registry() *prometheus.Registry {
	return registry
}

// MetricsServer serves /metrics.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on addr. The server is not started.
func New(addr string) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// ListenAndServe blocks until the server is shut down.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
