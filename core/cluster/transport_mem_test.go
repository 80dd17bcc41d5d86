package cluster

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func balanceQuery(shard int) Envelope {
	return Envelope{
		Shard: shard,
		Type:  "token.balance_of",
		Data:  []byte(`{"account":"alice"}`),
	}
}

func TestMemoryTransport_request(t *testing.T) {
	tr := CreateInMemoryTransport(t)

	seen := make(chan Envelope, 1)
	sub, err := tr.SubscribeShard(t.Context(), 5, func(_ context.Context, env Envelope) ([]byte, error) {
		seen <- env
		return []byte(`{"amount":7}`), nil
	})
	require.NoError(t, err)

	res, err := tr.Request(t.Context(), balanceQuery(5))
	require.NoError(t, err)
	require.JSONEq(t, `{"amount":7}`, string(res))
	require.Equal(t, "token.balance_of", (<-seen).Type)

	_, err = tr.Request(t.Context(), balanceQuery(6))
	require.ErrorIs(t, err, ErrTransportNoShardSubscriber)

	require.NoError(t, sub.Unsubscribe())
	_, err = tr.Request(t.Context(), balanceQuery(5))
	require.ErrorIs(t, err, ErrTransportNoShardSubscriber)
}

func TestMemoryTransport_handler_error_is_text(t *testing.T) {
	sentinel := errors.New("account frozen")
	tr := CreateInMemoryTransport(t)
	_, err := tr.SubscribeShard(t.Context(), 1, func(context.Context, Envelope) ([]byte, error) {
		return nil, sentinel
	})
	require.NoError(t, err)

	_, err = tr.Request(t.Context(), balanceQuery(1))
	require.EqualError(t, err, "account frozen")
	require.NotErrorIs(t, err, sentinel)
}

func TestMemoryTransport_rotates_subscribers(t *testing.T) {
	tr := CreateInMemoryTransport(t)
	var a, b atomic.Int32
	for _, n := range []*atomic.Int32{&a, &b} {
		_, err := tr.SubscribeShard(t.Context(), 3, func(context.Context, Envelope) ([]byte, error) {
			n.Add(1)
			return nil, nil
		})
		require.NoError(t, err)
	}

	for range 4 {
		_, err := tr.Request(t.Context(), balanceQuery(3))
		require.NoError(t, err)
	}
	require.Equal(t, int32(2), a.Load())
	require.Equal(t, int32(2), b.Load())
}

func TestMemoryTransport_ttl(t *testing.T) {
	tr := CreateInMemoryTransport(t)
	seen := make(chan Envelope, 1)
	_, err := tr.SubscribeShard(t.Context(), 5, func(_ context.Context, env Envelope) ([]byte, error) {
		seen <- env
		return nil, nil
	})
	require.NoError(t, err)

	t.Run("expired before send", func(t *testing.T) {
		env := balanceQuery(5)
		env.TTLMs = 100
		env.CreatedAtMs = time.Now().UnixMilli() - 200
		_, err := tr.Request(t.Context(), env)
		require.ErrorIs(t, err, ErrEnvelopeExpired)
	})

	t.Run("creation time stamped", func(t *testing.T) {
		env := balanceQuery(5)
		WithTTL(5 * time.Second)(&env)
		_, err := tr.Request(t.Context(), env)
		require.NoError(t, err)
		require.Positive(t, (<-seen).CreatedAtMs)
	})
}

func TestMemoryTransport_handler_timeout(t *testing.T) {
	tr := NewInMemoryTransport(MemoryTransportOpts{HandlerTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = tr.Close() })

	_, err := tr.SubscribeShard(t.Context(), 5, func(ctx context.Context, _ Envelope) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)

	_, err = tr.Request(t.Context(), balanceQuery(5))
	require.ErrorIs(t, err, ErrHandlerTimeout)
}

func TestMemoryTransport_concurrency_limit(t *testing.T) {
	const limit = 2
	tr := NewInMemoryTransport(MemoryTransportOpts{MaxConcurrentHandlers: limit})
	t.Cleanup(func() { _ = tr.Close() })

	var active, peak atomic.Int32
	_, err := tr.SubscribeShard(t.Context(), 5, func(context.Context, Envelope) ([]byte, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		return nil, nil
	})
	require.NoError(t, err)

	errs := make(chan error, 6)
	for range cap(errs) {
		go func() {
			_, err := tr.Request(t.Context(), balanceQuery(5))
			errs <- err
		}()
	}
	for range cap(errs) {
		require.NoError(t, <-errs)
	}
	require.LessOrEqual(t, peak.Load(), int32(limit))
}

func TestMemoryTransport_reserved_header(t *testing.T) {
	tr := CreateInMemoryTransport(t)
	env := balanceQuery(5)
	WithHeader("x-quant-internal", "1")(&env)
	_, err := tr.Request(t.Context(), env)
	require.ErrorIs(t, err, ErrReservedHeader)
}

func TestMemoryTransport_close(t *testing.T) {
	tr := NewInMemoryTransport()

	started := make(chan struct{})
	var finished atomic.Bool
	_, err := tr.SubscribeShard(t.Context(), 5, func(context.Context, Envelope) ([]byte, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return nil, nil
	})
	require.NoError(t, err)

	go func() { _, _ = tr.Request(context.Background(), balanceQuery(5)) }()
	<-started

	require.NoError(t, tr.Close())
	require.True(t, finished.Load(), "close returned before the handler")
	require.NoError(t, tr.Close())

	_, err = tr.Request(t.Context(), balanceQuery(5))
	require.ErrorIs(t, err, ErrTransportClosed)
	_, err = tr.SubscribeShard(t.Context(), 5, nil)
	require.ErrorIs(t, err, ErrTransportClosed)
}
