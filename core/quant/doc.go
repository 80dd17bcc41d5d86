// Package quant implements a self-scheduling recurring-action controller.
//
// Once its owner starts it, the controller runs an action round every
// Interval blocks: it looks up a reference price, queries the balances of
// every reservation holder in every registered token, and then re-arms
// itself by spending the owner's reservation on a delayed Act message to
// itself. It keeps doing so until it is stopped, its reservation runs out, or
// it is terminated.
//
// # Components
//
//   - [TokenRegistry] maps token names to the program serving them.
//   - [ReservationLedger] keeps one reservation handle per identity.
//   - [BalanceFanout] issues the per-round balance queries.
//   - [Controller] owns [State] and decides what each trigger does.
//   - [Shell] runs the controller on an actor and is the [host.Program]
//     the host delivers to.
//
// # Scheduling
//
// NextDue is the only block at which an Act trigger is honoured; zero means
// the schedule is inactive. Stop clears it without retracting an Act that is
// already in flight, so the stale Act is rejected on arrival.
//
// A round commits last. The counter and NextDue advance only after the
// owner reservation was found and the next Act was scheduled, so a failed
// round leaves the schedule exactly as it was.
package quant
