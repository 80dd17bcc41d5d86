package quant

//go:generate mockgen -source=collab.go -destination=mock_collab_test.go -package=quant

import (
	"context"

	"github.com/liuck8080/OnchainQuant/core/host"
)

// Env is what the controller needs from the host. *host.Env implements it.
type Env interface {
	ID() host.ActorID
	Reserve(amount uint64, duration uint32) (host.ReservationID, error)
	SendAt(res host.ReservationID, msgType string, payload []byte, due uint32) (host.MessageID, error)
	Charge(res host.ReservationID, fee uint64) error
	Exit(beneficiary host.ActorID) error
}

// BalanceService answers balance queries for the token served under target.
type BalanceService interface {
	BalanceOf(ctx context.Context, target, account string) (uint64, error)
}

var _ Env = (*host.Env)(nil)
