package quant

import (
	"context"
	"log/slog"
	"time"

	"github.com/liuck8080/OnchainQuant/core/host"
)

const (
	// DefaultQueryFee is charged to the holder's reservation per balance query.
	DefaultQueryFee uint64 = 1_000_000_000
	// DefaultQueryTimeout bounds a single balance query.
	DefaultQueryTimeout = 5 * time.Second
)

// BalanceResult is the outcome of one (holder, token) query.
type BalanceResult struct {
	Account host.ActorID `json:"account"`
	Token   string       `json:"token"`
	Balance uint64       `json:"balance"`
	Err     error        `json:"-"`
}

// BalanceFanout queries every holder's balance in every token, one attempt
// per pair. Failures are recorded in the result and never stop the others.
type BalanceFanout struct {
	svc     BalanceService
	fee     uint64
	timeout time.Duration
	log     *slog.Logger
	metrics Metrics
}

func NewBalanceFanout(svc BalanceService, fee uint64, timeout time.Duration, log *slog.Logger, metrics Metrics) *BalanceFanout {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &BalanceFanout{svc: svc, fee: fee, timeout: timeout, log: log, metrics: metrics}
}

func (f *BalanceFanout) Run(ctx context.Context, ledger *ReservationLedger, holders []host.ActorID, tokens []TokenInfo) []BalanceResult {
	if f.svc == nil || len(holders) == 0 || len(tokens) == 0 {
		return nil
	}

	out := make([]BalanceResult, 0, len(holders)*len(tokens))
	for _, account := range holders {
		for _, tok := range tokens {
			r := f.query(ctx, ledger, account, tok)
			f.metrics.BalanceQueried(tok.Name, r.Err == nil)
			if r.Err != nil {
				f.log.Warn(
					"balance query failed",
					slog.String("account", string(account)),
					slog.String("token", tok.Name),
					slog.Any("error", r.Err),
				)
			} else {
				f.log.Debug(
					"balance",
					slog.String("account", string(account)),
					slog.String("token", tok.Name),
					slog.Uint64("balance", r.Balance),
				)
			}
			out = append(out, r)
		}
	}
	return out
}

func (f *BalanceFanout) query(ctx context.Context, ledger *ReservationLedger, account host.ActorID, tok TokenInfo) BalanceResult {
	r := BalanceResult{Account: account, Token: tok.Name}
	if f.fee > 0 {
		if err := ledger.Charge(account, f.fee); err != nil {
			r.Err = err
			return r
		}
	}

	qctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	r.Balance, r.Err = f.svc.BalanceOf(qctx, tok.ProgramID, string(account))
	return r
}
