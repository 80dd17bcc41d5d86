package host

// Env is the capability handle a program receives at deploy time. Every
// operation acts on behalf of the program it was issued to.
type Env struct {
	h  *Host
	id ActorID
}

// ID returns the program identity.
func (e *Env) ID() ActorID { return e.id }

// Height returns the current block height.
func (e *Env) Height() uint32 { return e.h.Height() }

// Reserve issues a reservation of amount credit valid for duration blocks.
func (e *Env) Reserve(amount uint64, duration uint32) (ReservationID, error) {
	return e.h.reserve(e.id, amount, duration)
}

// SendDelayed schedules msgType to be delivered to the program itself delay
// blocks from now, paying the delivery fee from res.
func (e *Env) SendDelayed(res ReservationID, msgType string, payload []byte, delay uint32) (MessageID, error) {
	return e.h.sendDelayed(e.id, res, msgType, payload, delay)
}

// SendAt schedules msgType to be delivered to the program itself at height
// due, paying the delivery fee from res. due must be above the current height.
func (e *Env) SendAt(res ReservationID, msgType string, payload []byte, due uint32) (MessageID, error) {
	return e.h.sendAt(e.id, res, msgType, payload, due)
}

// Charge deducts fee from res.
func (e *Env) Charge(res ReservationID, fee uint64) error {
	return e.h.charge(e.id, res, fee)
}

// Exit removes the program from the host and releases its remaining credit
// to beneficiary. Pending delayed messages are dropped when they fall due.
func (e *Env) Exit(beneficiary ActorID) error {
	return e.h.exit(e.id, beneficiary)
}
