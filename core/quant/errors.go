package quant

import "errors"

var (
	// ErrOwnerReservationMissing aborts a round that cannot pay for its re-arm.
	ErrOwnerReservationMissing = errors.New("owner reservation missing")
	// ErrZeroInterval aborts a round that would re-arm at the current block.
	ErrZeroInterval = errors.New("interval must be positive to schedule")
	// ErrScheduleOverflow aborts a round whose next due block overflows.
	ErrScheduleOverflow = errors.New("next due block overflows")
	// ErrNoReservation is returned when spending for an identity without one.
	ErrNoReservation = errors.New("no reservation")
	// ErrInvalidInit is returned when the deploy payload cannot be decoded.
	ErrInvalidInit = errors.New("invalid init config")
)

// Rejection reasons for triggers that are ignored rather than failed.
const (
	RejectUnauthorized = "unauthorized"
	RejectStale        = "stale"
)
