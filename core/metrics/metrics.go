// Package metrics holds the instrument shared by the actor, cluster, host and
// quant packages. Each of them declares its own metrics interface with a no-op
// default; adapters/prometheus provides the real backend.
package metrics

// Timer measures one operation. Start it when the operation begins and call
// ObserveDuration when it ends:
//
//	defer m.RoundDuration().ObserveDuration()
type Timer interface {
	ObserveDuration()
}

type nopTimer struct{}

func (nopTimer) ObserveDuration() {}

// NopTimer returns a Timer that records nothing.
func NopTimer() Timer { return nopTimer{} }
