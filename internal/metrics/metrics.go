// Package metrics holds the agent's Prometheus instrumentation: membership
// gossip events, checkpoint submissions, chain RPC call durations, the
// supervised-pair gauge, and JSON-RPC server request counters. Shaped after
// the teacher's pkg/p2pnet.Metrics (isolated registry, struct of vecs,
// build-info gauge), retargeted from VPN/proxy metrics to this domain.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ipc-subnet/subnet-agent/internal/membership"
)

// Metrics holds all custom subnet-agent Prometheus metrics, registered on
// an isolated registry so they never collide with the global default
// registry. Each test gets its own Metrics instance.
type Metrics struct {
	Registry *prometheus.Registry

	// Membership Behavior metrics.
	MembershipEventsTotal  *prometheus.CounterVec
	MembershipPublishTotal *prometheus.CounterVec
	MembershipDecodeErrors prometheus.Counter

	// Checkpoint Assembler / Subnet Supervisor metrics.
	CheckpointSubmissionsTotal *prometheus.CounterVec
	SupervisedPairs            prometheus.Gauge

	// Chain RPC client metrics.
	RPCCallsTotal          *prometheus.CounterVec
	RPCCallDurationSeconds *prometheus.HistogramVec

	// JSON-RPC server metrics.
	DaemonRequestsTotal          *prometheus.CounterVec
	DaemonRequestDurationSeconds *prometheus.HistogramVec

	// Build info.
	BuildInfo *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all collectors registered
// on an isolated registry. The version and goVersion are recorded as
// labels on the subnet_agent_info gauge.
func NewMetrics(version, goVersion string) *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		MembershipEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subnet_agent_membership_events_total",
				Help: "Total membership domain events emitted by the Membership Behavior.",
			},
			[]string{"kind"},
		),
		MembershipPublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subnet_agent_membership_publish_total",
				Help: "Total heartbeat publications of the local provider record.",
			},
			[]string{"result"},
		),
		MembershipDecodeErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "subnet_agent_membership_decode_errors_total",
				Help: "Total gossip payloads discarded for malformed or unverifiable encoding.",
			},
		),

		CheckpointSubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subnet_agent_checkpoint_submissions_total",
				Help: "Total checkpoint submissions attempted by the Subnet Supervisor.",
			},
			[]string{"subnet_id", "result"},
		),
		SupervisedPairs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "subnet_agent_supervised_pairs",
				Help: "Number of (child, parent) subnet pairs currently under a live monitor.",
			},
		),

		RPCCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subnet_agent_rpc_calls_total",
				Help: "Total Chain RPC calls issued, by method and result.",
			},
			[]string{"method", "result"},
		),
		RPCCallDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "subnet_agent_rpc_call_duration_seconds",
				Help:    "Duration of Chain RPC calls in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		DaemonRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subnet_agent_jsonrpc_requests_total",
				Help: "Total JSON-RPC server requests, by method and status.",
			},
			[]string{"method", "status"},
		),
		DaemonRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "subnet_agent_jsonrpc_request_duration_seconds",
				Help:    "Duration of JSON-RPC server requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status"},
		),

		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "subnet_agent_info",
				Help: "Build information for the running subnet-agent instance.",
			},
			[]string{"version", "go_version"},
		),
	}

	reg.MustRegister(
		m.MembershipEventsTotal,
		m.MembershipPublishTotal,
		m.MembershipDecodeErrors,
		m.CheckpointSubmissionsTotal,
		m.SupervisedPairs,
		m.RPCCallsTotal,
		m.RPCCallDurationSeconds,
		m.DaemonRequestsTotal,
		m.DaemonRequestDurationSeconds,
		m.BuildInfo,
	)

	m.BuildInfo.WithLabelValues(version, goVersion).Set(1)

	return m
}

// Handler returns an http.Handler that serves the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveEvent implements membership.Metrics.
func (m *Metrics) ObserveEvent(kind membership.EventKind) {
	m.MembershipEventsTotal.WithLabelValues(kind.String()).Inc()
}

// ObservePublish implements membership.Metrics.
func (m *Metrics) ObservePublish(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.MembershipPublishTotal.WithLabelValues(result).Inc()
}

// ObserveDecodeError implements membership.Metrics.
func (m *Metrics) ObserveDecodeError() {
	m.MembershipDecodeErrors.Inc()
}

// ObserveCheckpointSubmission records the outcome of one checkpoint
// submission attempt for a subnet.
func (m *Metrics) ObserveCheckpointSubmission(subnetID string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.CheckpointSubmissionsTotal.WithLabelValues(subnetID, result).Inc()
}

// ObserveRPCCall records one Chain RPC call's duration and outcome.
func (m *Metrics) ObserveRPCCall(method string, durationSeconds float64, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.RPCCallsTotal.WithLabelValues(method, result).Inc()
	m.RPCCallDurationSeconds.WithLabelValues(method).Observe(durationSeconds)
}
