// Package host is an in-memory execution substrate for programs that pay for
// their own future invocations.
//
// The host keeps a block height (the tick), delivers messages to deployed
// programs one at a time, issues time-bounded credit reservations and lets a
// program spend a reservation to have a message delivered to itself a number
// of blocks later. Advancing the height fires due messages in (due, schedule)
// order. A delayed message whose reservation expired before it fired, or
// whose program exited, is dropped and reported, never delivered.
package host

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// DefaultDeliveryFee is charged to a reservation for every delayed message.
const DefaultDeliveryFee uint64 = 1_000_000_000

type (
	ActorID       string
	ReservationID string
	MessageID     string

	Message struct {
		ID      MessageID `json:"id"`
		Source  ActorID   `json:"source"`
		Dest    ActorID   `json:"dest"`
		Type    string    `json:"type"`
		Payload []byte    `json:"payload,omitempty"`
		Height  uint32    `json:"height"`
	}

	// Program is a deployed actor reachable through the host. Deliver must
	// process msg to completion before returning.
	Program interface {
		Deliver(ctx context.Context, msg Message) ([]byte, error)
	}

	// InitFunc builds a program from its deploy message.
	InitFunc func(ctx context.Context, env *Env, msg Message) (Program, error)

	Reservation struct {
		ID        ReservationID `json:"id"`
		Program   ActorID       `json:"program"`
		Amount    uint64        `json:"amount"`
		Remaining uint64        `json:"remaining"`
		// Expires is the last height at which the reservation can be spent.
		Expires uint32 `json:"expires"`
	}

	// Dispatch records the outcome of one delayed message.
	Dispatch struct {
		Message Message
		Reply   []byte
		Err     error
		// Dropped is set to a Drop* reason when the message was not delivered.
		Dropped string
	}

	Options struct {
		Log         *slog.Logger
		StartHeight uint32
		DeliveryFee uint64
		// Capacity caps the credit one program may hold across live
		// reservations. Zero means unlimited.
		Capacity uint64
		Metrics  Metrics
	}
)

type Host struct {
	mu           sync.Mutex
	log          *slog.Logger
	metrics      Metrics
	deliveryFee  uint64
	capacity     uint64
	height       uint32
	seq          uint64
	programs     map[ActorID]Program
	deploying    map[ActorID]struct{}
	exited       map[ActorID]ActorID
	reservations map[ReservationID]*Reservation
	refunds      map[ActorID]uint64
	queue        delayQueue
}

func New(opts Options) *Host {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.DeliveryFee == 0 {
		opts.DeliveryFee = DefaultDeliveryFee
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics()
	}
	h := &Host{
		log:          opts.Log.With(slog.String("component", "host")),
		metrics:      opts.Metrics,
		deliveryFee:  opts.DeliveryFee,
		capacity:     opts.Capacity,
		height:       opts.StartHeight,
		programs:     make(map[ActorID]Program),
		deploying:    make(map[ActorID]struct{}),
		exited:       make(map[ActorID]ActorID),
		reservations: make(map[ReservationID]*Reservation),
		refunds:      make(map[ActorID]uint64),
	}
	heap.Init(&h.queue)
	h.metrics.Height(h.height)
	return h
}

// Height returns the current block height.
func (h *Host) Height() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.height
}

// Deploy initializes a program under id. The deploy message carries payload
// and has creator as its source.
func (h *Host) Deploy(ctx context.Context, creator, id ActorID, payload []byte, init InitFunc) error {
	h.mu.Lock()
	_, live := h.programs[id]
	_, pending := h.deploying[id]
	if live || pending {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrProgramExists, id)
	}
	if _, ok := h.exited[id]; ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrProgramExited, id)
	}
	// the id stays claimed while init runs unlocked
	h.deploying[id] = struct{}{}
	msg := h.newMessageLocked(creator, id, "init", payload)
	h.mu.Unlock()

	p, err := init(ctx, &Env{h: h, id: id}, msg)

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.deploying, id)
	if err != nil {
		return fmt.Errorf("init %s: %w", id, err)
	}
	h.programs[id] = p
	h.log.Info("program deployed", slog.String("program", string(id)), slog.String("creator", string(creator)))
	return nil
}

// Send delivers a message to dst immediately, at the current height.
func (h *Host) Send(ctx context.Context, src, dst ActorID, msgType string, payload []byte) ([]byte, error) {
	h.mu.Lock()
	p, err := h.programLocked(dst)
	if err != nil {
		h.mu.Unlock()
		return nil, err
	}
	msg := h.newMessageLocked(src, dst, msgType, payload)
	h.mu.Unlock()

	return h.deliver(ctx, p, msg)
}

// Advance moves the height forward by n blocks, delivering every delayed
// message that falls due on the way.
func (h *Host) Advance(ctx context.Context, n uint32) ([]Dispatch, error) {
	var out []Dispatch
	for range n {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		h.mu.Lock()
		h.height++
		height := h.height
		due := h.queue.popDue(height)
		h.mu.Unlock()
		h.metrics.Height(height)

		for _, d := range due {
			out = append(out, h.fire(ctx, d, height))
		}
	}
	return out, nil
}

// Produce advances one block per period until ctx is done.
func (h *Host) Produce(ctx context.Context, period time.Duration) error {
	tmr := time.NewTicker(period)
	defer tmr.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tmr.C:
			dispatches, err := h.Advance(ctx, 1)
			if err != nil {
				return err
			}
			for _, d := range dispatches {
				if d.Err != nil {
					h.log.Warn("delayed delivery failed", slog.String("msg_type", d.Message.Type), slog.Any("error", d.Err))
				}
			}
		}
	}
}

// Reservation returns a copy of the reservation with the given id.
func (h *Host) Reservation(id ReservationID) (Reservation, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.reservations[id]
	if !ok {
		return Reservation{}, false
	}
	return *r, true
}

// Pending returns the number of delayed messages not yet fired.
func (h *Host) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.queue.Len()
}

// Refunded returns the credit released to beneficiary by exiting programs.
func (h *Host) Refunded(beneficiary ActorID) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refunds[beneficiary]
}

// Exited reports whether the program id has exited.
func (h *Host) Exited(id ActorID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.exited[id]
	return ok
}

// ---- internals ----

func (h *Host) programLocked(id ActorID) (Program, error) {
	if _, ok := h.exited[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrProgramExited, id)
	}
	p, ok := h.programs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProgramNotFound, id)
	}
	return p, nil
}

func (h *Host) newMessageLocked(src, dst ActorID, msgType string, payload []byte) Message {
	h.seq++
	return Message{
		ID:      MessageID(gonanoid.Must()),
		Source:  src,
		Dest:    dst,
		Type:    msgType,
		Payload: payload,
		Height:  h.height,
	}
}

func (h *Host) deliver(ctx context.Context, p Program, msg Message) ([]byte, error) {
	reply, err := p.Deliver(ctx, msg)
	h.metrics.Delivered(msg.Type, err == nil)
	if err != nil {
		h.log.Debug(
			"delivery failed",
			slog.String("dest", string(msg.Dest)),
			slog.String("msg_type", msg.Type),
			slog.Any("error", err),
		)
	}
	return reply, err
}

func (h *Host) fire(ctx context.Context, d *delayed, height uint32) Dispatch {
	msg := d.msg
	msg.Height = height

	h.mu.Lock()
	reason := ""
	p, err := h.programLocked(msg.Dest)
	if err != nil {
		reason = DropExited
	} else if r, ok := h.reservations[d.res]; !ok {
		reason = DropRevoked
	} else if height > r.Expires {
		reason = DropExpired
	}
	h.mu.Unlock()

	if reason != "" {
		h.metrics.Dropped(reason)
		h.log.Warn(
			"delayed message dropped",
			slog.String("dest", string(msg.Dest)),
			slog.String("msg_type", msg.Type),
			slog.String("reservation", string(d.res)),
			slog.String("reason", reason),
		)
		return Dispatch{Message: msg, Dropped: reason}
	}

	reply, err := h.deliver(ctx, p, msg)
	return Dispatch{Message: msg, Reply: reply, Err: err}
}

// spendableLocked returns the reservation if program may spend fee from it.
func (h *Host) spendableLocked(program ActorID, id ReservationID, fee uint64) (*Reservation, error) {
	r, ok := h.reservations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReservationNotFound, id)
	}
	if r.Program != program {
		return nil, fmt.Errorf("%w: %s", ErrReservationForeign, id)
	}
	if h.height > r.Expires {
		return nil, fmt.Errorf("%w: %s expired at %d", ErrReservationExpired, id, r.Expires)
	}
	if r.Remaining < fee {
		return nil, fmt.Errorf("%w: %s has %d, needs %d", ErrReservationExhausted, id, r.Remaining, fee)
	}
	return r, nil
}

func (h *Host) reserve(program ActorID, amount uint64, duration uint32) (ReservationID, error) {
	if amount == 0 || duration == 0 {
		return "", ErrInvalidReservation
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.capacity > 0 {
		var held uint64
		for _, r := range h.reservations {
			if r.Program == program && h.height <= r.Expires {
				held += r.Remaining
			}
		}
		if held+amount > h.capacity {
			return "", fmt.Errorf("%w: holding %d, requested %d, capacity %d", ErrCapacityExceeded, held, amount, h.capacity)
		}
	}

	expires := h.height + duration
	if expires < h.height {
		expires = ^uint32(0)
	}
	r := &Reservation{
		ID:        ReservationID(gonanoid.Must()),
		Program:   program,
		Amount:    amount,
		Remaining: amount,
		Expires:   expires,
	}
	h.reservations[r.ID] = r
	h.metrics.Reserved(amount)
	return r.ID, nil
}

func (h *Host) charge(program ActorID, id ReservationID, fee uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.spendableLocked(program, id, fee)
	if err != nil {
		return err
	}
	r.Remaining -= fee
	h.metrics.Charged(fee)
	return nil
}

func (h *Host) sendDelayed(program ActorID, id ReservationID, msgType string, payload []byte, delay uint32) (MessageID, error) {
	if delay == 0 {
		return "", ErrZeroDelay
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	due := h.height + delay
	if due < h.height {
		return "", fmt.Errorf("delay %d overflows height %d", delay, h.height)
	}
	return h.sendAtLocked(program, id, msgType, payload, due)
}

func (h *Host) sendAt(program ActorID, id ReservationID, msgType string, payload []byte, due uint32) (MessageID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sendAtLocked(program, id, msgType, payload, due)
}

// sendAtLocked queues msgType for delivery at height due. The current height
// has already been popped, so due must lie strictly ahead of it.
func (h *Host) sendAtLocked(program ActorID, id ReservationID, msgType string, payload []byte, due uint32) (MessageID, error) {
	if due <= h.height {
		return "", fmt.Errorf("%w: due %d, height %d", ErrDueElapsed, due, h.height)
	}
	r, err := h.spendableLocked(program, id, h.deliveryFee)
	if err != nil {
		return "", err
	}
	r.Remaining -= h.deliveryFee
	h.metrics.Charged(h.deliveryFee)

	msg := h.newMessageLocked(program, program, msgType, payload)
	heap.Push(&h.queue, &delayed{due: due, seq: h.seq, res: id, msg: msg})
	return msg.ID, nil
}

func (h *Host) exit(program, beneficiary ActorID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.programLocked(program); err != nil {
		return err
	}
	delete(h.programs, program)
	h.exited[program] = beneficiary

	var released uint64
	for id, r := range h.reservations {
		if r.Program != program {
			continue
		}
		if h.height <= r.Expires {
			released += r.Remaining
		}
		delete(h.reservations, id)
	}
	h.refunds[beneficiary] += released

	h.log.Info(
		"program exited",
		slog.String("program", string(program)),
		slog.String("beneficiary", string(beneficiary)),
		slog.Uint64("released", released),
	)
	return nil
}
