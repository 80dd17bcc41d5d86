package host

import "errors"

var (
	ErrProgramExists   = errors.New("program already exists")
	ErrProgramNotFound = errors.New("program not found")
	ErrProgramExited   = errors.New("program exited")

	ErrReservationNotFound  = errors.New("reservation not found")
	ErrReservationExpired   = errors.New("reservation expired")
	ErrReservationExhausted = errors.New("reservation exhausted")
	ErrReservationForeign   = errors.New("reservation belongs to another program")
	ErrCapacityExceeded     = errors.New("reservation capacity exceeded")
	ErrInvalidReservation   = errors.New("reservation amount and duration must be positive")

	ErrZeroDelay  = errors.New("delay must be at least one block")
	ErrDueElapsed = errors.New("due height already reached")
)

// Drop reasons reported for delayed messages that never fire.
const (
	DropExpired = "reservation_expired"
	DropRevoked = "reservation_revoked"
	DropExited  = "program_exited"
)
