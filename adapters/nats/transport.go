package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/liuck8080/OnchainQuant/core/cluster"
)

type TransportConfig struct {
	Connect        Connector     // Connect opens the NATS connection. Defaults to Connect with the environment's url.
	Log            *slog.Logger  // Log for diagnostics (optional)
	SubjectPrefix  string        // SubjectPrefix for shard subjects, e.g. "quant" -> quant.shard.<id>
	HandlerTimeout time.Duration // HandlerTimeout bounds envelopes without a TTL. Defaults to 30s.
}

type Transport struct {
	nc             *natsgo.Conn
	closeNc        closeFunc
	log            *slog.Logger
	prefix         string
	handlerTimeout time.Duration

	mu   sync.Mutex
	subs map[*natsgo.Subscription]struct{}

	closed atomic.Bool
}

// responseFrame carries the reply. Handler errors travel as text.
type responseFrame struct {
	Data []byte `json:"data,omitempty"`
	Err  string `json:"err,omitempty"`
}

func NewTransport(cfg TransportConfig) (*Transport, error) {
	connFn := cfg.Connect
	if connFn == nil {
		connFn = Connect(ConnectOptions{Log: cfg.Log})
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "quant"
	}

	handlerTimeout := cfg.HandlerTimeout
	if handlerTimeout <= 0 {
		handlerTimeout = 30 * time.Second
	}

	nc, closeNc, err := connFn()
	if err != nil {
		return nil, err
	}

	return &Transport{
		nc:             nc,
		closeNc:        closeNc,
		log:            log.With(slog.String("transport", "nats")),
		prefix:         prefix,
		handlerTimeout: handlerTimeout,
		subs:           make(map[*natsgo.Subscription]struct{}),
	}, nil
}

func (t *Transport) subjectShard(shardID uint32) string {
	return t.prefix + ".shard." + strconv.FormatUint(uint64(shardID), 10)
}

func (t *Transport) Request(ctx context.Context, env cluster.Envelope) ([]byte, error) {
	if t.closed.Load() {
		return nil, cluster.ErrTransportClosed
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if env.CreatedAtMs == 0 {
		env.CreatedAtMs = time.Now().UnixMilli()
	}
	if env.Expired() {
		return nil, cluster.ErrEnvelopeExpired
	}
	if ttl := env.TTL(); ttl > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ttl)
		defer cancel()
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	msg, err := t.nc.RequestWithContext(ctx, t.subjectShard(uint32(env.Shard)), payload)
	switch {
	case errors.Is(err, natsgo.ErrNoResponders):
		return nil, fmt.Errorf("%w: %d", cluster.ErrTransportNoShardSubscriber, env.Shard)
	case errors.Is(err, natsgo.ErrConnectionClosed):
		return nil, cluster.ErrTransportClosed
	case err != nil:
		return nil, fmt.Errorf("nats: request: %w", err)
	}

	var rf responseFrame
	if err := json.Unmarshal(msg.Data, &rf); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rf.Err != "" {
		return nil, errors.New(rf.Err)
	}
	return rf.Data, nil
}

func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return cluster.ErrTransportClosed
	}
	t.mu.Lock()
	for s := range t.subs {
		_ = s.Unsubscribe()
	}
	t.subs = map[*natsgo.Subscription]struct{}{}
	t.mu.Unlock()
	if t.nc != nil {
		_ = t.nc.Drain()
		t.closeNc()
	}
	return nil
}

// SubscribeShard subscribes to messages for a specific shard.
func (t *Transport) SubscribeShard(ctx context.Context, shardID uint32, h cluster.ServerHandlerFunc) (cluster.Subscription, error) {
	if t.closed.Load() {
		return nil, cluster.ErrTransportClosed
	}
	subj := t.subjectShard(shardID)

	sub, err := t.nc.Subscribe(subj, func(msg *natsgo.Msg) {
		var env cluster.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			t.log.Error("failed to decode envelope", slog.Any("error", err))
			return
		}

		var rf responseFrame
		if env.Expired() {
			rf.Err = cluster.ErrEnvelopeExpired.Error()
		} else {
			rf.Data, err = t.handle(ctx, env, h)
			if err != nil {
				rf.Err = err.Error()
				rf.Data = nil
			}
		}
		b, _ := json.Marshal(rf)

		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(b); err != nil {
			t.log.Error("failed to publish reply", slog.Any("error", err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats: subscribe shard: %w", err)
	}

	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
		t.mu.Lock()
		delete(t.subs, sub)
		t.mu.Unlock()
	}()

	return &subscription{sub: sub, t: t}, nil
}

func (t *Transport) handle(ctx context.Context, env cluster.Envelope, h cluster.ServerHandlerFunc) ([]byte, error) {
	timeout := t.handlerTimeout
	if ttl := env.TTL(); ttl > 0 {
		timeout = ttl
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := h(hctx, env)
	if err != nil && errors.Is(hctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %w", cluster.ErrHandlerTimeout, err)
	}
	return data, err
}

type subscription struct {
	sub *natsgo.Subscription
	t   *Transport
}

func (s *subscription) Unsubscribe() error {
	if s.sub == nil {
		return nil
	}
	err := s.sub.Unsubscribe()
	s.t.mu.Lock()
	delete(s.t.subs, s.sub)
	s.t.mu.Unlock()
	return err
}

var _ cluster.Transport = &Transport{}
