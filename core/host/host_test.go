package host

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recorder is a program that remembers every delivered message.
type recorder struct {
	mu   sync.Mutex
	env  *Env
	msgs []Message
	fail error
}

func (r *recorder) Deliver(_ context.Context, msg Message) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	if r.fail != nil {
		return nil, r.fail
	}
	return []byte(msg.Type), nil
}

func (r *recorder) received() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

func deployRecorder(t *testing.T, h *Host, id ActorID) *recorder {
	t.Helper()
	rec := &recorder{}
	err := h.Deploy(t.Context(), "creator", id, nil, func(_ context.Context, env *Env, msg Message) (Program, error) {
		require.Equal(t, ActorID("creator"), msg.Source)
		require.Equal(t, "init", msg.Type)
		rec.env = env
		return rec, nil
	})
	require.NoError(t, err)
	return rec
}

func TestHost_deploy(t *testing.T) {
	h := New(Options{StartHeight: 10})
	deployRecorder(t, h, "p")

	err := h.Deploy(t.Context(), "creator", "p", nil, func(context.Context, *Env, Message) (Program, error) {
		return &recorder{}, nil
	})
	require.ErrorIs(t, err, ErrProgramExists)

	initErr := errors.New("bad config")
	err = h.Deploy(t.Context(), "creator", "q", nil, func(context.Context, *Env, Message) (Program, error) {
		return nil, initErr
	})
	require.ErrorIs(t, err, initErr)

	_, err = h.Send(t.Context(), "x", "q", "ping", nil)
	require.ErrorIs(t, err, ErrProgramNotFound)

	// a failed init releases the id
	deployRecorder(t, h, "q")
}

func TestHost_deploy_claims_id_during_init(t *testing.T) {
	h := New(Options{})
	entered := make(chan struct{})
	release := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- h.Deploy(t.Context(), "creator", "p", nil, func(context.Context, *Env, Message) (Program, error) {
			close(entered)
			<-release
			return &recorder{}, nil
		})
	}()
	<-entered

	err := h.Deploy(t.Context(), "creator", "p", nil, func(context.Context, *Env, Message) (Program, error) {
		return &recorder{}, nil
	})
	require.ErrorIs(t, err, ErrProgramExists)

	_, err = h.Send(t.Context(), "x", "p", "ping", nil)
	require.ErrorIs(t, err, ErrProgramNotFound)

	close(release)
	require.NoError(t, <-done)
	_, err = h.Send(t.Context(), "x", "p", "ping", nil)
	require.NoError(t, err)
}

func TestHost_send(t *testing.T) {
	h := New(Options{StartHeight: 10})
	rec := deployRecorder(t, h, "p")

	reply, err := h.Send(t.Context(), "alice", "p", "ping", []byte("x"))
	require.NoError(t, err)
	require.Equal(t, []byte("ping"), reply)

	msgs := rec.received()
	require.Len(t, msgs, 1)
	require.Equal(t, ActorID("alice"), msgs[0].Source)
	require.Equal(t, ActorID("p"), msgs[0].Dest)
	require.Equal(t, uint32(10), msgs[0].Height)
	require.NotEmpty(t, msgs[0].ID)
}

func TestHost_delayed_delivery(t *testing.T) {
	h := New(Options{StartHeight: 100, DeliveryFee: 10})
	rec := deployRecorder(t, h, "p")

	res, err := rec.env.Reserve(100, 50)
	require.NoError(t, err)

	_, err = rec.env.SendDelayed(res, "late", nil, 3)
	require.NoError(t, err)
	_, err = rec.env.SendDelayed(res, "early", nil, 1)
	require.NoError(t, err)
	_, err = rec.env.SendDelayed(res, "late-second", nil, 3)
	require.NoError(t, err)
	require.Equal(t, 3, h.Pending())

	r, ok := h.Reservation(res)
	require.True(t, ok)
	require.Equal(t, uint64(70), r.Remaining)
	require.Equal(t, uint32(150), r.Expires)

	ds, err := h.Advance(t.Context(), 2)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	require.Equal(t, "early", ds[0].Message.Type)
	require.Equal(t, uint32(101), ds[0].Message.Height)

	ds, err = h.Advance(t.Context(), 1)
	require.NoError(t, err)
	require.Len(t, ds, 2)
	require.Equal(t, "late", ds[0].Message.Type)
	require.Equal(t, "late-second", ds[1].Message.Type)
	require.Equal(t, uint32(103), h.Height())
	require.Equal(t, 0, h.Pending())
	require.Len(t, rec.received(), 3)
}

func TestHost_zero_delay(t *testing.T) {
	h := New(Options{})
	rec := deployRecorder(t, h, "p")
	res, err := rec.env.Reserve(DefaultDeliveryFee, 10)
	require.NoError(t, err)

	_, err = rec.env.SendDelayed(res, "now", nil, 0)
	require.ErrorIs(t, err, ErrZeroDelay)
}

func TestHost_send_at(t *testing.T) {
	h := New(Options{StartHeight: 100, DeliveryFee: 10})
	rec := deployRecorder(t, h, "p")
	res, err := rec.env.Reserve(100, 50)
	require.NoError(t, err)

	for _, due := range []uint32{99, 100} {
		_, err = rec.env.SendAt(res, "elapsed", nil, due)
		require.ErrorIs(t, err, ErrDueElapsed, "due %d", due)
	}
	r, _ := h.Reservation(res)
	require.Equal(t, uint64(100), r.Remaining)

	_, err = rec.env.SendAt(res, "tick", nil, 103)
	require.NoError(t, err)

	// the due height is absolute, however far the host moves meanwhile
	ds, err := h.Advance(t.Context(), 5)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	require.Equal(t, uint32(103), ds[0].Message.Height)
	require.Equal(t, "tick", ds[0].Message.Type)
}

func TestHost_reservation_errors(t *testing.T) {
	h := New(Options{DeliveryFee: 10})
	a := deployRecorder(t, h, "a")
	b := deployRecorder(t, h, "b")

	_, err := a.env.Reserve(0, 10)
	require.ErrorIs(t, err, ErrInvalidReservation)

	_, err = a.env.SendDelayed("missing", "x", nil, 1)
	require.ErrorIs(t, err, ErrReservationNotFound)

	res, err := a.env.Reserve(15, 2)
	require.NoError(t, err)

	_, err = b.env.SendDelayed(res, "x", nil, 1)
	require.ErrorIs(t, err, ErrReservationForeign)

	_, err = a.env.SendDelayed(res, "x", nil, 1)
	require.NoError(t, err)
	_, err = a.env.SendDelayed(res, "x", nil, 1)
	require.ErrorIs(t, err, ErrReservationExhausted)
	require.ErrorIs(t, a.env.Charge(res, 6), ErrReservationExhausted)
	require.NoError(t, a.env.Charge(res, 5))

	_, err = h.Advance(t.Context(), 3)
	require.NoError(t, err)
	require.ErrorIs(t, a.env.Charge(res, 0), ErrReservationExpired)
}

func TestHost_capacity(t *testing.T) {
	h := New(Options{Capacity: 100})
	rec := deployRecorder(t, h, "p")

	_, err := rec.env.Reserve(60, 10)
	require.NoError(t, err)
	_, err = rec.env.Reserve(60, 10)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	_, err = rec.env.Reserve(40, 10)
	require.NoError(t, err)
}

func TestHost_expired_reservation_drops_message(t *testing.T) {
	h := New(Options{DeliveryFee: 1})
	rec := deployRecorder(t, h, "p")

	res, err := rec.env.Reserve(10, 2)
	require.NoError(t, err)
	_, err = rec.env.SendDelayed(res, "too-late", nil, 5)
	require.NoError(t, err)

	ds, err := h.Advance(t.Context(), 5)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	require.Equal(t, DropExpired, ds[0].Dropped)
	require.Empty(t, rec.received())
}

func TestHost_exit(t *testing.T) {
	h := New(Options{DeliveryFee: 10})
	rec := deployRecorder(t, h, "p")

	res, err := rec.env.Reserve(100, 10)
	require.NoError(t, err)
	_, err = rec.env.SendDelayed(res, "tick", nil, 1)
	require.NoError(t, err)

	require.NoError(t, rec.env.Exit("owner"))
	require.Equal(t, uint64(90), h.Refunded("owner"))
	_, ok := h.Reservation(res)
	require.False(t, ok)

	ds, err := h.Advance(t.Context(), 1)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	require.Equal(t, DropExited, ds[0].Dropped)

	_, err = h.Send(t.Context(), "owner", "p", "ping", nil)
	require.ErrorIs(t, err, ErrProgramExited)
	require.ErrorIs(t, rec.env.Exit("owner"), ErrProgramExited)

	err = h.Deploy(t.Context(), "creator", "p", nil, func(context.Context, *Env, Message) (Program, error) {
		return &recorder{}, nil
	})
	require.ErrorIs(t, err, ErrProgramExited)
}

func TestHost_delivery_error_is_reported(t *testing.T) {
	h := New(Options{DeliveryFee: 1})
	rec := deployRecorder(t, h, "p")
	rec.fail = errors.New("boom")

	res, err := rec.env.Reserve(10, 10)
	require.NoError(t, err)
	_, err = rec.env.SendDelayed(res, "tick", nil, 1)
	require.NoError(t, err)

	ds, err := h.Advance(t.Context(), 1)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	require.Empty(t, ds[0].Dropped)
	require.ErrorContains(t, ds[0].Err, "boom")
}

func TestHost_advance_canceled(t *testing.T) {
	h := New(Options{StartHeight: 5})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := h.Advance(ctx, 3)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, uint32(5), h.Height())
}
