// Package metrics collects Prometheus telemetry for contract updates and the
// enclave simulator, and serves it on a dedicated listener.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage names used as label values.
const (
	StageSelect   = "select"
	StageEvaluate = "evaluate"
	StageSubmit   = "submit"
	StageLocalAck = "local_ack"
	StageGlobal   = "global_commit"
)

const (
	resultOK    = "ok"
	resultError = "error"
)

// Collector owns a private registry so that several collectors can coexist in
// one process (tests, simulator next to a client).
type Collector struct {
	registry *prometheus.Registry

	stageTotal    *prometheus.CounterVec
	stageLatency  *prometheus.HistogramVec
	invocations   *prometheus.CounterVec
	replications  *prometheus.CounterVec
	pendingCommit prometheus.Gauge
}

func NewCollector(namespace string) *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.stageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "update",
			Name:      "stage_total",
			Help:      "Contract update stages by outcome",
		},
		[]string{"stage", "result"},
	)

	c.stageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "update",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each contract update stage",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
		},
		[]string{"stage"},
	)

	c.invocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enclave",
			Name:      "invocations_total",
			Help:      "Invocations evaluated by the enclave, by method and outcome",
		},
		[]string{"method", "result"},
	)

	c.replications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commit",
			Name:      "tasks_total",
			Help:      "Replication and ledger commit tasks by outcome",
		},
		[]string{"result"},
	)

	c.pendingCommit = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "commit",
		Name:      "pending_tasks",
		Help:      "Commit tasks queued or running",
	})

	c.registry.MustRegister(
		c.stageTotal,
		c.stageLatency,
		c.invocations,
		c.replications,
		c.pendingCommit,
		collectors.NewGoCollector(),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveStage records the outcome and duration of an update stage. A nil
// collector ignores the call.
func (c *Collector) ObserveStage(stage string, start time.Time, err error) {
	if c == nil {
		return
	}
	c.stageTotal.WithLabelValues(stage, result(err)).Inc()
	c.stageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// ObserveInvocation counts an invocation evaluated by the enclave simulator.
func (c *Collector) ObserveInvocation(method string, accepted bool) {
	if c == nil {
		return
	}
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	c.invocations.WithLabelValues(method, outcome).Inc()
}

// CommitQueued and CommitDone bracket a commit task.
func (c *Collector) CommitQueued() {
	if c == nil {
		return
	}
	c.pendingCommit.Inc()
}

func (c *Collector) CommitDone(err error) {
	if c == nil {
		return
	}
	c.pendingCommit.Dec()
	c.replications.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultOK
}

// MetricsServer exposes a collector's registry on /metrics.
type MetricsServer struct {
	collector *Collector
	srv       *http.Server
}

// New creates a collector for namespace and a server for it listening on addr.
func New(namespace string, addr string) (*MetricsServer, error) {
	if namespace == "" {
		return nil, errors.New("metrics namespace is required")
	}
	collector := NewCollector(namespace)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(collector.registry, promhttp.HandlerOpts{}))

	return &MetricsServer{
		collector: collector,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (s *MetricsServer) Collector() *Collector {
	return s.collector
}

func (s *MetricsServer) Handler() http.Handler {
	return s.srv.Handler
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
