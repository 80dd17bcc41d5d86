// Package token is a minimal fungible-token service. Each token program id is
// served by one actor that keeps balances per account; requests reach it over
// a [cluster.Client] keyed by the program id.
//
// The controller only ever reads balances. Minting exists so deployments and
// tests can fund accounts.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/liuck8080/OnchainQuant/core/actor"
	"github.com/liuck8080/OnchainQuant/core/cluster"
	"github.com/liuck8080/OnchainQuant/ports/kv"
)

const (
	MsgBalanceOf = "token.balance_of"
	MsgMint      = "token.mint"
)

var (
	ErrAccountRequired = errors.New("account is required")
	ErrSupplyOverflow  = errors.New("balance overflow")
)

type (
	BalanceOf struct {
		Account string `json:"account"`
	}

	Mint struct {
		Account string `json:"account"`
		Amount  uint64 `json:"amount"`
	}

	Balance struct {
		Account string `json:"account"`
		Amount  uint64 `json:"amount"`
	}
)

func (BalanceOf) MsgType() string { return MsgBalanceOf }
func (Mint) MsgType() string      { return MsgMint }

func (b BalanceOf) Validate() error {
	if b.Account == "" {
		return ErrAccountRequired
	}
	return nil
}

func (m Mint) Validate() error {
	if m.Account == "" {
		return ErrAccountRequired
	}
	return nil
}

type ServerOptions struct {
	Log *slog.Logger
	// Context bounds the lifetime of the token actors.
	Context context.Context
	// Store persists balances across restarts. Optional.
	Store   kv.Store
	Metrics actor.ActorMetrics
}

// NewHandler returns a cluster handler serving one ledger actor per token
// program id.
func NewHandler(opts ServerOptions) cluster.ServerHandlerFunc {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	return cluster.NewActorHandler(func(programID string) (actor.Actor, error) {
		return newLedger(programID, opts), nil
	})
}

// ledger is the state of one token, owned by its actor goroutine.
type ledger struct {
	program  string
	store    kv.Store
	balances map[string]uint64
}

func (l *ledger) key() string { return kv.Key("token", l.program) }

func (l *ledger) load(hc actor.HandlerCtx) error {
	if l.store == nil {
		return nil
	}
	balances, err := kv.Get[map[string]uint64](hc, l.store, l.key())
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load balances of %s: %w", l.program, err)
	}
	l.balances = balances
	return nil
}

func (l *ledger) save(hc actor.HandlerCtx) error {
	if l.store == nil {
		return nil
	}
	return kv.Put(hc, l.store, l.key(), l.balances, kv.PutOptions{})
}

func newLedger(programID string, opts ServerOptions) actor.Actor {
	l := &ledger{
		program:  programID,
		store:    opts.Store,
		balances: make(map[string]uint64),
	}

	return actor.TypedHandlers(
		actor.Init(l.load),
		actor.HandleRequest[BalanceOf, Balance](func(hc actor.HandlerCtx, q BalanceOf) (*Balance, error) {
			return &Balance{Account: q.Account, Amount: l.balances[q.Account]}, nil
		}),
		actor.HandleRequest[Mint, Balance](func(hc actor.HandlerCtx, m Mint) (*Balance, error) {
			cur := l.balances[m.Account]
			if cur+m.Amount < cur {
				return nil, fmt.Errorf("%w: %s", ErrSupplyOverflow, m.Account)
			}
			l.balances[m.Account] = cur + m.Amount
			if err := l.save(hc); err != nil {
				l.balances[m.Account] = cur
				return nil, err
			}
			hc.Log().Debug("minted", slog.String("account", m.Account), slog.Uint64("amount", m.Amount))
			return &Balance{Account: m.Account, Amount: cur + m.Amount}, nil
		}),
	).ToActor(actor.Options{
		ID:      "token:" + programID,
		Context: opts.Context,
		Logger:  opts.Log,
		Metrics: opts.Metrics,
	})
}
