package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/liuck8080/OnchainQuant/core/host"
)

// hostMetrics implements host.Metrics using Prometheus.
type hostMetrics struct {
	height         prometheus.Gauge
	deliveredTotal *prometheus.CounterVec
	droppedTotal   *prometheus.CounterVec
	reservedTotal  prometheus.Counter
	chargedTotal   prometheus.Counter
}

// NewHostMetrics creates a new Prometheus implementation of host.Metrics.
func NewHostMetrics(reg prometheus.Registerer) host.Metrics {
	m := &hostMetrics{
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quant_host_block_height",
			Help: "Current block height",
		}),

		deliveredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quant_host_messages_delivered_total",
			Help: "Total number of messages delivered to programs",
		}, []string{"message_type", "success"}),

		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quant_host_messages_dropped_total",
			Help: "Total number of delayed messages dropped before delivery",
		}, []string{"reason"}),

		reservedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quant_host_reserved_gas_total",
			Help: "Total gas set aside by reservations",
		}),

		chargedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quant_host_charged_gas_total",
			Help: "Total gas charged against reservations",
		}),
	}

	reg.MustRegister(
		m.height,
		m.deliveredTotal,
		m.droppedTotal,
		m.reservedTotal,
		m.chargedTotal,
	)

	return m
}

func (m *hostMetrics) Height(h uint32) {
	m.height.Set(float64(h))
}

func (m *hostMetrics) Delivered(msgType string, success bool) {
	m.deliveredTotal.WithLabelValues(msgType, boolToStr(success)).Inc()
}

func (m *hostMetrics) Dropped(reason string) {
	m.droppedTotal.WithLabelValues(reason).Inc()
}

func (m *hostMetrics) Reserved(amount uint64) {
	m.reservedTotal.Add(float64(amount))
}

func (m *hostMetrics) Charged(fee uint64) {
	m.chargedTotal.Add(float64(fee))
}

var _ host.Metrics = (*hostMetrics)(nil)
