package host

// Metrics is the instrumentation of the host substrate.
type Metrics interface {
	Height(h uint32)
	Delivered(msgType string, success bool)
	Dropped(reason string)
	Reserved(amount uint64)
	Charged(fee uint64)
}

type nopMetrics struct{}

func (nopMetrics) Height(uint32)          {}
func (nopMetrics) Delivered(string, bool) {}
func (nopMetrics) Dropped(string)         {}
func (nopMetrics) Reserved(uint64)        {}
func (nopMetrics) Charged(uint64)         {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
