package quant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/liuck8080/OnchainQuant/core/host"
	"github.com/liuck8080/OnchainQuant/core/price"
)

// DefaultSymbol is the reference asset quoted at the start of every round.
const DefaultSymbol = "ocqBTC"

// RoundReport describes one completed action round.
type RoundReport struct {
	Action   uint64          `json:"action"`
	Tick     uint32          `json:"tick"`
	Quote    uint64          `json:"quote"`
	Balances []BalanceResult `json:"balances,omitempty"`
	Rearm    host.MessageID  `json:"rearm"`
	NextDue  uint32          `json:"next_due"`
}

type ControllerOptions struct {
	Log      *slog.Logger
	Env      Env
	Ledger   *ReservationLedger
	Registry *TokenRegistry
	Fanout   *BalanceFanout
	Prices   price.Feed
	Symbol   string
	Metrics  Metrics
}

// Controller is the scheduling state machine. Every method must be called
// from the goroutine that owns it.
type Controller struct {
	state    State
	env      Env
	ledger   *ReservationLedger
	registry *TokenRegistry
	fanout   *BalanceFanout
	prices   price.Feed
	symbol   string
	program  string
	log      *slog.Logger
	metrics  Metrics
}

func NewController(state State, opts ControllerOptions) *Controller {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics()
	}
	if opts.Symbol == "" {
		opts.Symbol = DefaultSymbol
	}
	if opts.Registry == nil {
		opts.Registry = NewTokenRegistry()
	}
	if opts.Fanout == nil {
		opts.Fanout = NewBalanceFanout(nil, 0, 0, opts.Log, opts.Metrics)
	}
	return &Controller{
		state:    state,
		env:      opts.Env,
		ledger:   opts.Ledger,
		registry: opts.Registry,
		fanout:   opts.Fanout,
		prices:   opts.Prices,
		symbol:   opts.Symbol,
		program:  string(opts.Env.ID()),
		log:      opts.Log,
		metrics:  opts.Metrics,
	}
}

func (c *Controller) State() State               { return c.state }
func (c *Controller) Registry() *TokenRegistry   { return c.registry }
func (c *Controller) Ledger() *ReservationLedger { return c.ledger }

func (c *Controller) isOwner(caller host.ActorID, trigger string) bool {
	if caller == c.state.Owner {
		return true
	}
	c.log.Info("ignoring trigger from non-owner", slog.String("trigger", trigger), slog.String("caller", string(caller)))
	c.metrics.Rejected(trigger, RejectUnauthorized)
	return false
}

// Start runs a round at now and, if it succeeds, schedules the next one.
// Non-owner calls are ignored and return a nil report.
func (c *Controller) Start(ctx context.Context, caller host.ActorID, now uint32) (*RoundReport, error) {
	if !c.isOwner(caller, MsgStart) {
		return nil, nil
	}
	if c.state.Active() && c.state.NextDue >= now {
		c.log.Warn("already started, restarting", slog.Uint64("next_due", uint64(c.state.NextDue)))
	}
	return c.round(ctx, now, MsgStart)
}

// Stop deactivates the schedule. An Act already in flight is not retracted;
// it fails the due check when it arrives.
func (c *Controller) Stop(caller host.ActorID) bool {
	if !c.isOwner(caller, MsgStop) {
		return false
	}
	c.state.NextDue = 0
	c.log.Info("stopped", slog.Uint64("action_count", c.state.ActionCount))
	return true
}

// Act runs a round if now is exactly the due block. Anything else is a stale
// or duplicate trigger and is ignored.
func (c *Controller) Act(ctx context.Context, now uint32) (*RoundReport, error) {
	if !c.state.Active() || now != c.state.NextDue {
		c.log.Debug("stale act", slog.Uint64("now", uint64(now)), slog.Uint64("next_due", uint64(c.state.NextDue)))
		c.metrics.Rejected(MsgAct, RejectStale)
		return nil, nil
	}
	return c.round(ctx, now, MsgAct)
}

// Reserve creates a reservation for caller. Any identity may reserve.
func (c *Controller) Reserve(caller host.ActorID) (Event, error) {
	res, err := c.ledger.Reserve(caller)
	if err != nil {
		return Event{}, err
	}
	c.metrics.Reservations(c.program, c.ledger.Len())
	c.log.Info(
		"reserved",
		slog.String("caller", string(caller)),
		slog.String("reservation", string(res)),
		slog.Uint64("amount", c.ledger.Amount()),
		slog.Uint64("blocks", uint64(c.ledger.Duration())),
	)
	return Event{Kind: EventGasReserve, Amount: c.ledger.Amount(), Time: c.ledger.Duration()}, nil
}

// RegisterToken upserts info. Any caller may register a token.
func (c *Controller) RegisterToken(info TokenInfo) {
	replaced := c.registry.Register(info)
	c.log.Info("token registered", slog.String("name", info.Name), slog.String("program_id", info.ProgramID), slog.Bool("replaced", replaced))
}

// Terminate exits the program with the owner as beneficiary. It reports
// false for non-owner callers, which are ignored.
func (c *Controller) Terminate(caller host.ActorID) (bool, error) {
	if !c.isOwner(caller, MsgTerminate) {
		return false, nil
	}
	if err := c.env.Exit(c.state.Owner); err != nil {
		return false, fmt.Errorf("exit: %w", err)
	}
	return true, nil
}

// round performs one action round. State is only written once the next Act
// has been scheduled.
func (c *Controller) round(ctx context.Context, now uint32, trigger string) (report *RoundReport, err error) {
	defer c.metrics.RoundDuration().ObserveDuration()
	defer func() {
		c.metrics.RoundCompleted(trigger, err == nil)
		if err != nil {
			c.log.Error("round failed", slog.String("trigger", trigger), slog.Uint64("tick", uint64(now)), slog.Any("error", err))
		}
	}()

	quote := c.quote(ctx)

	owner := c.state.Owner
	balances := c.fanout.Run(ctx, c.ledger, c.ledger.Holders(owner), c.registry.List())

	if _, ok := c.ledger.Get(owner); !ok {
		return nil, ErrOwnerReservationMissing
	}
	interval := c.state.Interval
	if interval == 0 {
		return nil, ErrZeroInterval
	}
	next := now + interval
	if next < now {
		return nil, fmt.Errorf("%w: %d + %d", ErrScheduleOverflow, now, interval)
	}

	payload, err := json.Marshal(Act{})
	if err != nil {
		return nil, err
	}
	// the act is pinned to this round's tick, not to whatever height the
	// host reached while the round ran
	msgID, err := c.ledger.Spend(owner, MsgAct, payload, next)
	if err != nil {
		return nil, fmt.Errorf("re-arm: %w", err)
	}

	// commit
	c.state.ActionCount++
	c.state.NextDue = next
	c.metrics.ActionCount(c.program, c.state.ActionCount)

	report = &RoundReport{
		Action:   c.state.ActionCount,
		Tick:     now,
		Quote:    quote,
		Balances: balances,
		Rearm:    msgID,
		NextDue:  next,
	}
	c.log.Info(
		"round completed",
		slog.String("trigger", trigger),
		slog.Uint64("action", report.Action),
		slog.Uint64("tick", uint64(now)),
		slog.Uint64("quote", quote),
		slog.Int("balances", len(balances)),
		slog.Uint64("next_due", uint64(next)),
	)
	return report, nil
}

// quote returns the reference price, or 0 when the lookup fails.
func (c *Controller) quote(ctx context.Context) uint64 {
	if c.prices == nil {
		return 0
	}
	q, err := c.prices.Quote(ctx, c.symbol)
	if err != nil {
		c.log.Warn("price lookup failed", slog.String("symbol", c.symbol), slog.Any("error", err))
		c.metrics.QuoteFailed(c.symbol)
		return 0
	}
	return q
}
