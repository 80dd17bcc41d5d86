package quant

import "github.com/liuck8080/OnchainQuant/core/metrics"

// Metrics instruments the controller.
type Metrics interface {
	RoundDuration() metrics.Timer
	RoundCompleted(trigger string, success bool)
	// Rejected counts triggers ignored for reason (see Reject* constants).
	Rejected(trigger, reason string)
	QuoteFailed(symbol string)
	BalanceQueried(token string, success bool)
	ActionCount(program string, n uint64)
	Reservations(program string, n int)
}

type nopMetrics struct{}

func (nopMetrics) RoundDuration() metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) RoundCompleted(string, bool)  {}
func (nopMetrics) Rejected(string, string)      {}
func (nopMetrics) QuoteFailed(string)           {}
func (nopMetrics) BalanceQueried(string, bool)  {}
func (nopMetrics) ActionCount(string, uint64)   {}
func (nopMetrics) Reservations(string, int)     {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
