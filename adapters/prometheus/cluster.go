package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/liuck8080/OnchainQuant/core/cluster"
	"github.com/liuck8080/OnchainQuant/core/metrics"
)

// The cluster only carries token service traffic, so its families are named
// after it: the client side under quant_balance_*, the serving node under
// quant_token_service_*.
const (
	balanceSubsystem = "balance"
	serviceSubsystem = "token_service"
)

// queryBuckets cover an in-process hop up to the default 5s query ttl.
var queryBuckets = []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5}

type clusterMetrics struct {
	queryLatency *prometheus.HistogramVec
	queries      *prometheus.CounterVec
	unreachable  *prometheus.CounterVec
	serveLatency *prometheus.HistogramVec
	served       *prometheus.CounterVec
	inflight     *prometheus.GaugeVec
	ownedShards  *prometheus.GaugeVec
}

// NewClusterMetrics registers the token service cluster families on reg.
func NewClusterMetrics(reg prometheus.Registerer) cluster.ClusterMetrics {
	opts := func(subsystem, name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: "quant", Subsystem: subsystem, Name: name, Help: help}
	}
	histogram := func(subsystem, name, help string) prometheus.HistogramOpts {
		return prometheus.HistogramOpts{Namespace: "quant", Subsystem: subsystem, Name: name, Help: help, Buckets: queryBuckets}
	}

	m := &clusterMetrics{
		queryLatency: prometheus.NewHistogramVec(
			histogram(balanceSubsystem, "query_duration_seconds", "Round trip of a token service request"),
			[]string{"message_type"}),
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts(balanceSubsystem, "requests_total", "Token service requests by outcome")),
			[]string{"message_type", "success"}),
		unreachable: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts(balanceSubsystem, "transport_errors_total", "Requests that never reached a token ledger")),
			[]string{"reason"}),
		serveLatency: prometheus.NewHistogramVec(
			histogram(serviceSubsystem, "handle_duration_seconds", "Time a token ledger spent on a request"),
			[]string{"message_type"}),
		served: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts(serviceSubsystem, "handled_total", "Requests handled by token ledgers")),
			[]string{"message_type", "success"}),
		inflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts(opts(serviceSubsystem, "inflight", "Requests being handled on the node")),
			[]string{"node_id"}),
		ownedShards: prometheus.NewGaugeVec(
			prometheus.GaugeOpts(opts(serviceSubsystem, "shards_owned", "Token shards served by the node")),
			[]string{"node_id"}),
	}

	reg.MustRegister(m.queryLatency, m.queries, m.unreachable, m.serveLatency, m.served, m.inflight, m.ownedShards)
	return m
}

func (m *clusterMetrics) RequestDuration(msgType string) metrics.Timer {
	return newTimer(m.queryLatency.WithLabelValues(msgType))
}

func (m *clusterMetrics) RequestCompleted(msgType string, success bool) {
	m.queries.WithLabelValues(msgType, boolToStr(success)).Inc()
}

// TransportError counts by the labels of cluster's transport errors
// (no_subscriber, timeout, ttl_expired, closed).
func (m *clusterMetrics) TransportError(reason string) {
	m.unreachable.WithLabelValues(reason).Inc()
}

func (m *clusterMetrics) HandlerDuration(msgType string) metrics.Timer {
	return newTimer(m.serveLatency.WithLabelValues(msgType))
}

func (m *clusterMetrics) HandlerCompleted(msgType string, success bool) {
	m.served.WithLabelValues(msgType, boolToStr(success)).Inc()
}

func (m *clusterMetrics) HandlersActive(nodeID string, count int) {
	m.inflight.WithLabelValues(nodeID).Set(float64(count))
}

func (m *clusterMetrics) ShardsOwned(nodeID string, count int) {
	m.ownedShards.WithLabelValues(nodeID).Set(float64(count))
}

var _ cluster.ClusterMetrics = (*clusterMetrics)(nil)
