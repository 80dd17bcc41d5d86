package quant

import "github.com/liuck8080/OnchainQuant/internal/codec"

// Message types accepted by the shell.
const (
	MsgStart         = "quant.start"
	MsgStop          = "quant.stop"
	MsgAct           = "quant.act"
	MsgGasReserve    = "quant.gas_reserve"
	MsgRegisterToken = "quant.register_token"
	MsgTerminate     = "quant.terminate"
	MsgState         = "quant.state"
	MsgTokens        = "quant.tokens"
)

type (
	// Start begins the schedule and runs one round immediately. Owner only.
	Start struct{}
	// Stop clears the schedule. Owner only.
	Stop struct{}
	// Act is the self-scheduled trigger of the next round.
	Act struct{}
	// GasReserve creates a reservation for the sender.
	GasReserve struct{}
	// RegisterToken adds or replaces a token descriptor.
	RegisterToken struct {
		Token TokenInfo `json:"token"`
	}
	// Terminate removes the program and refunds the owner. Owner only.
	Terminate struct{}

	// QueryState reads the public projection of the state.
	QueryState struct{}
	// QueryTokens reads the token registry.
	QueryTokens struct{}
)

func (Start) MsgType() string         { return MsgStart }
func (Stop) MsgType() string          { return MsgStop }
func (Act) MsgType() string           { return MsgAct }
func (GasReserve) MsgType() string    { return MsgGasReserve }
func (RegisterToken) MsgType() string { return MsgRegisterToken }
func (Terminate) MsgType() string     { return MsgTerminate }
func (QueryState) MsgType() string    { return MsgState }
func (QueryTokens) MsgType() string   { return MsgTokens }

type EventKind string

const (
	EventStart      EventKind = "start"
	EventStop       EventKind = "stop"
	EventAct        EventKind = "act"
	EventGasReserve EventKind = "gas_reserve"
	EventTerminate  EventKind = "terminate"
	EventNone       EventKind = "none"
)

type (
	// Event is the reply to every trigger.
	Event struct {
		Kind EventKind `json:"kind"`
		// Amount and Time are set for gas_reserve.
		Amount uint64 `json:"amount,omitempty"`
		Time   uint32 `json:"time,omitempty"`
	}

	// InitConfig is the deploy payload. The deployer becomes the owner.
	InitConfig struct {
		// Ratio is the investment ratio in units of 1e-6.
		Ratio    uint64 `json:"ratio"`
		Interval uint32 `json:"interval"`
	}

	// StateView is the unauthenticated read-only projection of [State].
	StateView struct {
		Ratio       uint64 `json:"ratio"`
		Interval    uint32 `json:"interval"`
		NextDue     uint32 `json:"next_due"`
		ActionCount uint64 `json:"action_count"`
	}

	TokenInfo struct {
		Name      string `json:"name"`
		ProgramID string `json:"program_id"`
	}

	TokenList struct {
		Tokens []TokenInfo `json:"tokens"`
	}
)

// EncodeInit builds the deploy payload for cfg.
func EncodeInit(cfg InitConfig) ([]byte, error) { return codec.JSON{}.Marshal(cfg) }
