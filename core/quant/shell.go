package quant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/liuck8080/OnchainQuant/core/actor"
	"github.com/liuck8080/OnchainQuant/core/host"
	"github.com/liuck8080/OnchainQuant/core/price"
	"github.com/liuck8080/OnchainQuant/internal/codec"
	"github.com/liuck8080/OnchainQuant/ports/kv"
)

type Options struct {
	Log *slog.Logger
	// Context bounds the lifetime of the shell's actor.
	Context  context.Context
	Balances BalanceService
	Prices   price.Feed
	// Symbol is the reference asset quoted every round. Defaults to ocqBTC.
	Symbol string
	// TickSeconds is the block time. Defaults to 2.
	TickSeconds uint32
	// ReservationAmount defaults to [ReservationAmount].
	ReservationAmount uint64
	// QueryFee is charged per balance query. Defaults to [DefaultQueryFee];
	// set NoQueryFee to disable charging.
	QueryFee     uint64
	NoQueryFee   bool
	QueryTimeout time.Duration
	// Tokens seeds the registry. Defaults to [DefaultTokens].
	Tokens []TokenInfo
	// Store receives a snapshot after every trigger that changes state.
	Store kv.Store
	// Restore loads the action count and token registry from Store on deploy.
	Restore      bool
	Metrics      Metrics
	ActorMetrics actor.ActorMetrics
	MailboxSize  int
}

// Snapshot is what the shell persists.
type Snapshot struct {
	State       State          `json:"state"`
	Tokens      []TokenInfo    `json:"tokens"`
	Holders     []host.ActorID `json:"holders,omitempty"`
	LastTrigger string         `json:"last_trigger"`
}

// Shell runs a [Controller] on an actor and delivers host messages to it.
type Shell struct {
	id    host.ActorID
	log   *slog.Logger
	store kv.Store
	ctrl  *Controller
	act   *actor.BaseActor
}

// Init returns the deploy function for the host.
func Init(opts Options) host.InitFunc {
	return func(ctx context.Context, env *host.Env, msg host.Message) (host.Program, error) {
		return New(ctx, env, msg, opts)
	}
}

// New builds the shell from its deploy message. The message source becomes
// the owner.
func New(ctx context.Context, env Env, msg host.Message, opts Options) (*Shell, error) {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.ReservationAmount == 0 {
		opts.ReservationAmount = ReservationAmount
	}
	if opts.QueryFee == 0 && !opts.NoQueryFee {
		opts.QueryFee = DefaultQueryFee
	}
	if opts.NoQueryFee {
		opts.QueryFee = 0
	}
	if opts.Tokens == nil {
		opts.Tokens = DefaultTokens()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics()
	}

	cfg, err := codec.Decode[InitConfig](codec.JSON{}, msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInit, err)
	}

	id := env.ID()
	log := opts.Log.With(slog.String("program", string(id)))

	state := State{
		Ratio:    cfg.Ratio,
		Interval: cfg.Interval,
		Owner:    msg.Source,
	}
	registry := NewTokenRegistry(opts.Tokens...)

	if opts.Restore && opts.Store != nil {
		snap, err := kv.Get[Snapshot](ctx, opts.Store, snapshotKey(id))
		switch {
		case errors.Is(err, kv.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("restore %s: %w", id, err)
		default:
			// Pending triggers and reservations belong to the previous host
			// and did not survive; the schedule restarts inactive.
			state.ActionCount = snap.State.ActionCount
			for _, t := range snap.Tokens {
				registry.Register(t)
			}
			log.Info("restored", slog.Uint64("action_count", state.ActionCount), slog.Int("tokens", registry.Len()))
		}
	}

	ledger := NewReservationLedger(env, opts.ReservationAmount, ReservationTime(opts.TickSeconds))
	ctrl := NewController(state, ControllerOptions{
		Log:      log,
		Env:      env,
		Ledger:   ledger,
		Registry: registry,
		Fanout:   NewBalanceFanout(opts.Balances, opts.QueryFee, opts.QueryTimeout, log, opts.Metrics),
		Prices:   opts.Prices,
		Symbol:   opts.Symbol,
		Metrics:  opts.Metrics,
	})

	s := &Shell{
		id:    id,
		log:   log,
		store: opts.Store,
		ctrl:  ctrl,
	}
	s.act = s.handlers().ToActor(actor.Options{
		ID:          string(id),
		Context:     opts.Context,
		Logger:      log,
		Metrics:     opts.ActorMetrics,
		MailboxSize: opts.MailboxSize,
	})

	log.Info(
		"deployed",
		slog.String("owner", string(state.Owner)),
		slog.Uint64("ratio", state.Ratio),
		slog.Uint64("interval", uint64(state.Interval)),
	)
	return s, nil
}

func snapshotKey(id host.ActorID) string { return kv.Key("quant", string(id)) }

func caller(hc actor.HandlerCtx) host.ActorID { return host.ActorID(hc.Meta().Source) }

func (s *Shell) handlers() *actor.TypedHandlerRegistry {
	c := s.ctrl
	return actor.TypedHandlers(
		actor.HandleRequest[Start, Event](func(hc actor.HandlerCtx, _ Start) (*Event, error) {
			report, err := c.Start(hc, caller(hc), hc.Meta().Height)
			if err != nil {
				return nil, err
			}
			if report != nil {
				s.persist(hc, MsgStart)
			}
			return &Event{Kind: EventStart}, nil
		}),
		actor.HandleRequest[Stop, Event](func(hc actor.HandlerCtx, _ Stop) (*Event, error) {
			if c.Stop(caller(hc)) {
				s.persist(hc, MsgStop)
			}
			return &Event{Kind: EventStop}, nil
		}),
		actor.HandleRequest[Act, Event](func(hc actor.HandlerCtx, _ Act) (*Event, error) {
			report, err := c.Act(hc, hc.Meta().Height)
			if err != nil {
				return nil, err
			}
			if report != nil {
				s.persist(hc, MsgAct)
			}
			return &Event{Kind: EventAct}, nil
		}),
		actor.HandleRequest[GasReserve, Event](func(hc actor.HandlerCtx, _ GasReserve) (*Event, error) {
			ev, err := c.Reserve(caller(hc))
			if err != nil {
				return nil, err
			}
			s.persist(hc, MsgGasReserve)
			return &ev, nil
		}),
		actor.HandleRequest[RegisterToken, Event](func(hc actor.HandlerCtx, r RegisterToken) (*Event, error) {
			c.RegisterToken(r.Token)
			s.persist(hc, MsgRegisterToken)
			return &Event{Kind: EventNone}, nil
		}),
		actor.HandleRequest[Terminate, Event](func(hc actor.HandlerCtx, _ Terminate) (*Event, error) {
			exited, err := c.Terminate(caller(hc))
			if err != nil {
				return nil, err
			}
			if !exited {
				return &Event{Kind: EventTerminate}, nil
			}
			s.persist(hc, MsgTerminate)
			return nil, fmt.Errorf("terminate %s: %w", s.id, actor.ErrExit)
		}),
		actor.HandleRequest[QueryState, StateView](func(hc actor.HandlerCtx, _ QueryState) (*StateView, error) {
			v := c.State().View()
			return &v, nil
		}),
		actor.HandleRequest[QueryTokens, TokenList](func(hc actor.HandlerCtx, _ QueryTokens) (*TokenList, error) {
			return &TokenList{Tokens: c.Registry().List()}, nil
		}),
	)
}

// persist writes a snapshot. Failures are logged; the in-memory state stays
// authoritative.
func (s *Shell) persist(ctx context.Context, trigger string) {
	if s.store == nil {
		return
	}
	snap := Snapshot{
		State:       s.ctrl.State(),
		Tokens:      s.ctrl.Registry().List(),
		Holders:     s.ctrl.Ledger().Holders(""),
		LastTrigger: trigger,
	}
	if err := kv.Put(ctx, s.store, snapshotKey(s.id), snap, kv.PutOptions{}); err != nil {
		s.log.Warn("snapshot failed", slog.String("trigger", trigger), slog.Any("error", err))
	}
}

// ID returns the program identity.
func (s *Shell) ID() host.ActorID { return s.id }

// Deliver hands msg to the actor and waits for its reply.
func (s *Shell) Deliver(ctx context.Context, msg host.Message) ([]byte, error) {
	meta := actor.Meta{
		Source:    string(msg.Source),
		Height:    msg.Height,
		MessageID: string(msg.ID),
	}
	res, err := actor.RawRequest(ctx, s.act, msg.Type, meta, msg.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

// State returns the public state projection.
func (s *Shell) State(ctx context.Context) (*StateView, error) {
	return actor.Request[QueryState, StateView](ctx, s.act, QueryState{})
}

// Tokens returns the registered tokens ordered by name.
func (s *Shell) Tokens(ctx context.Context) ([]TokenInfo, error) {
	res, err := actor.Request[QueryTokens, TokenList](ctx, s.act, QueryTokens{})
	if err != nil {
		return nil, err
	}
	return res.Tokens, nil
}

// Done is closed once the shell's actor has stopped.
func (s *Shell) Done() <-chan struct{} { return s.act.Done() }

// Close stops the actor.
func (s *Shell) Close() { s.act.Stop() }

var _ host.Program = (*Shell)(nil)
