// Package prometheus provides Prometheus implementations of the metrics
// interfaces of the host, the controller, the actor runtime and the cluster.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/liuck8080/OnchainQuant/core/metrics"
)

// timer wraps a Prometheus histogram to implement the Timer interface.
type timer struct {
	h     prometheus.Observer
	start time.Time
}

func newTimer(h prometheus.Observer) metrics.Timer {
	return &timer{h: h, start: time.Now()}
}

func (t *timer) ObserveDuration() {
	t.h.Observe(time.Since(t.start).Seconds())
}

// Default histogram buckets for latency metrics (in seconds).
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// AllMetrics holds Prometheus implementations for every instrumented layer.
type AllMetrics struct {
	Host    *hostMetrics
	Quant   *quantMetrics
	Actor   *actorMetrics
	Cluster *clusterMetrics
}

// NewAllMetrics registers every metric family on reg.
func NewAllMetrics(reg prometheus.Registerer) *AllMetrics {
	return &AllMetrics{
		Host:    NewHostMetrics(reg).(*hostMetrics),
		Quant:   NewQuantMetrics(reg).(*quantMetrics),
		Actor:   NewActorMetrics(reg).(*actorMetrics),
		Cluster: NewClusterMetrics(reg).(*clusterMetrics),
	}
}
