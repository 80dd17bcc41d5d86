package quant

import (
	"fmt"
	"maps"
	"slices"

	"github.com/liuck8080/OnchainQuant/core/host"
)

const (
	// ReservationAmount is the credit each reservation is created with.
	ReservationAmount uint64 = 50_000_000_000
	// DefaultTickSeconds is the block time reservation lifetimes are derived from.
	DefaultTickSeconds uint32 = 2
)

// ReservationTime is thirty days expressed in blocks of tickSeconds.
func ReservationTime(tickSeconds uint32) uint32 {
	if tickSeconds == 0 {
		tickSeconds = DefaultTickSeconds
	}
	return 30 * 24 * 3600 / tickSeconds
}

// ReservationLedger keeps at most one reservation handle per identity.
// Reserving again replaces the handle; the old reservation is abandoned to
// expire on its own. Not safe for concurrent use.
type ReservationLedger struct {
	env      Env
	amount   uint64
	duration uint32
	handles  map[host.ActorID]host.ReservationID
}

func NewReservationLedger(env Env, amount uint64, duration uint32) *ReservationLedger {
	return &ReservationLedger{
		env:      env,
		amount:   amount,
		duration: duration,
		handles:  make(map[host.ActorID]host.ReservationID),
	}
}

// Reserve creates a reservation for id. Issuance failures are returned as is.
func (l *ReservationLedger) Reserve(id host.ActorID) (host.ReservationID, error) {
	res, err := l.env.Reserve(l.amount, l.duration)
	if err != nil {
		return "", fmt.Errorf("reserve for %s: %w", id, err)
	}
	l.handles[id] = res
	return res, nil
}

func (l *ReservationLedger) Get(id host.ActorID) (host.ReservationID, bool) {
	res, ok := l.handles[id]
	return res, ok
}

// Holders returns every identity holding a reservation except the given
// one, in a stable order.
func (l *ReservationLedger) Holders(except host.ActorID) []host.ActorID {
	out := make([]host.ActorID, 0, len(l.handles))
	for _, id := range slices.Sorted(maps.Keys(l.handles)) {
		if id != except {
			out = append(out, id)
		}
	}
	return out
}

// Spend pays for a self-delivery of msgType at height due from id's
// reservation.
func (l *ReservationLedger) Spend(id host.ActorID, msgType string, payload []byte, due uint32) (host.MessageID, error) {
	res, ok := l.handles[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoReservation, id)
	}
	return l.env.SendAt(res, msgType, payload, due)
}

// Charge deducts fee from id's reservation.
func (l *ReservationLedger) Charge(id host.ActorID, fee uint64) error {
	res, ok := l.handles[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoReservation, id)
	}
	return l.env.Charge(res, fee)
}

func (l *ReservationLedger) Amount() uint64   { return l.amount }
func (l *ReservationLedger) Duration() uint32 { return l.duration }
func (l *ReservationLedger) Len() int         { return len(l.handles) }
