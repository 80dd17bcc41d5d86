package quant

import "github.com/liuck8080/OnchainQuant/core/host"

// State is the controller state. It is owned by the shell's actor goroutine
// and never shared.
type State struct {
	Ratio    uint64 `json:"ratio"`
	Interval uint32 `json:"interval"`
	// NextDue is the only block at which Act runs a round. 0 means inactive.
	NextDue uint32 `json:"next_due"`
	// ActionCount grows by one per completed round and never decreases.
	ActionCount uint64       `json:"action_count"`
	Owner       host.ActorID `json:"owner"`
}

func (s State) Active() bool { return s.NextDue != 0 }

func (s State) View() StateView {
	return StateView{
		Ratio:       s.Ratio,
		Interval:    s.Interval,
		NextDue:     s.NextDue,
		ActionCount: s.ActionCount,
	}
}
