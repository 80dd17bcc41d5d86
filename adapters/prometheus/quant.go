package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/liuck8080/OnchainQuant/core/metrics"
	"github.com/liuck8080/OnchainQuant/core/quant"
)

// quantMetrics implements quant.Metrics using Prometheus.
type quantMetrics struct {
	roundDuration  prometheus.Histogram
	roundsTotal    *prometheus.CounterVec
	rejectedTotal  *prometheus.CounterVec
	quoteFailed    *prometheus.CounterVec
	balanceQueries *prometheus.CounterVec
	actionCount    *prometheus.GaugeVec
	reservations   *prometheus.GaugeVec
}

// NewQuantMetrics creates a new Prometheus implementation of quant.Metrics.
func NewQuantMetrics(reg prometheus.Registerer) quant.Metrics {
	m := &quantMetrics{
		roundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quant_round_duration_seconds",
			Help:    "Round execution time in seconds",
			Buckets: defaultBuckets,
		}),

		roundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quant_rounds_total",
			Help: "Total number of rounds executed",
		}, []string{"trigger", "success"}),

		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quant_triggers_rejected_total",
			Help: "Total number of triggers ignored without a round",
		}, []string{"trigger", "reason"}),

		quoteFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quant_quote_failures_total",
			Help: "Total number of failed price quotes",
		}, []string{"symbol"}),

		balanceQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quant_balance_queries_total",
			Help: "Total number of balance queries issued",
		}, []string{"token", "success"}),

		actionCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quant_action_count",
			Help: "Rounds completed by a controller",
		}, []string{"program"}),

		reservations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quant_reservations",
			Help: "Accounts holding a gas reservation",
		}, []string{"program"}),
	}

	reg.MustRegister(
		m.roundDuration,
		m.roundsTotal,
		m.rejectedTotal,
		m.quoteFailed,
		m.balanceQueries,
		m.actionCount,
		m.reservations,
	)

	return m
}

func (m *quantMetrics) RoundDuration() metrics.Timer {
	return newTimer(m.roundDuration)
}

func (m *quantMetrics) RoundCompleted(trigger string, success bool) {
	m.roundsTotal.WithLabelValues(trigger, boolToStr(success)).Inc()
}

func (m *quantMetrics) Rejected(trigger, reason string) {
	m.rejectedTotal.WithLabelValues(trigger, reason).Inc()
}

func (m *quantMetrics) QuoteFailed(symbol string) {
	m.quoteFailed.WithLabelValues(symbol).Inc()
}

func (m *quantMetrics) BalanceQueried(token string, success bool) {
	m.balanceQueries.WithLabelValues(token, boolToStr(success)).Inc()
}

func (m *quantMetrics) ActionCount(program string, n uint64) {
	m.actionCount.WithLabelValues(program).Set(float64(n))
}

func (m *quantMetrics) Reservations(program string, n int) {
	m.reservations.WithLabelValues(program).Set(float64(n))
}

var _ quant.Metrics = (*quantMetrics)(nil)
