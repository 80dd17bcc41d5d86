package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const defaultHandlerTimeout = 30 * time.Second

type MemoryTransportOpts struct {
	Log *slog.Logger
	// HandlerTimeout bounds a single handler invocation. Defaults to 30s.
	HandlerTimeout time.Duration
	// MaxConcurrentHandlers limits handlers running at once. 0 means unlimited.
	MaxConcurrentHandlers int
}

// MemoryTransport delivers envelopes to in-process shard subscribers. When a
// shard has several subscribers, requests rotate over them. Handler errors
// come back as plain text, the way they do over a wire transport.
type MemoryTransport struct {
	log            *slog.Logger
	handlerTimeout time.Duration
	sem            chan struct{}
	seq            atomic.Uint64

	mu       sync.RWMutex
	closed   bool
	shards   map[uint32][]*memSubscription
	inflight sync.WaitGroup
}

type memSubscription struct {
	t     *MemoryTransport
	shard uint32
	h     ServerHandlerFunc
	once  sync.Once
}

type memResult struct {
	data []byte
	err  error
}

func NewInMemoryTransport(opts ...MemoryTransportOpts) *MemoryTransport {
	var o MemoryTransportOpts
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Log == nil {
		o.Log = slog.New(slog.DiscardHandler)
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = defaultHandlerTimeout
	}
	t := &MemoryTransport{
		log:            o.Log.With(slog.String("transport", "mem")),
		handlerTimeout: o.HandlerTimeout,
		shards:         make(map[uint32][]*memSubscription),
	}
	if o.MaxConcurrentHandlers > 0 {
		t.sem = make(chan struct{}, o.MaxConcurrentHandlers)
	}
	return t
}

func (t *MemoryTransport) Request(ctx context.Context, env Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if env.TTLMs > 0 && env.CreatedAtMs == 0 {
		env.CreatedAtMs = time.Now().UnixMilli()
	}
	if env.Expired() {
		return nil, ErrEnvelopeExpired
	}

	h, err := t.pick(uint32(env.Shard))
	if err != nil {
		return nil, err
	}

	res := make(chan memResult, 1)
	go func() {
		defer t.inflight.Done()
		res <- t.invoke(ctx, h, env)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-res:
		return r.data, r.err
	}
}

// pick selects the subscriber for shard and registers the request as in
// flight. The caller must call inflight.Done once the handler returns.
func (t *MemoryTransport) pick(shard uint32) (ServerHandlerFunc, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, ErrTransportClosed
	}
	subs := t.shards[shard]
	if len(subs) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrTransportNoShardSubscriber, shard)
	}
	t.inflight.Add(1)
	return subs[t.seq.Add(1)%uint64(len(subs))].h, nil
}

func (t *MemoryTransport) invoke(ctx context.Context, h ServerHandlerFunc, env Envelope) memResult {
	if t.sem != nil {
		select {
		case t.sem <- struct{}{}:
			defer func() { <-t.sem }()
		case <-ctx.Done():
			return memResult{err: ctx.Err()}
		}
	}

	if env.Expired() {
		return memResult{err: ErrEnvelopeExpired}
	}

	timeout := t.handlerTimeout
	if ttl := env.TTL(); ttl > 0 && ttl < timeout {
		timeout = ttl
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := h(hctx, env)
	switch {
	case err == nil:
		return memResult{data: data}
	case errors.Is(hctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return memResult{err: fmt.Errorf("%w: %s", ErrHandlerTimeout, err)}
	default:
		t.log.Debug("handler failed", slog.String("type", env.Type), slog.Any("error", err))
		return memResult{err: errors.New(err.Error())}
	}
}

func (t *MemoryTransport) SubscribeShard(ctx context.Context, shardID uint32, h ServerHandlerFunc) (Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTransportClosed
	}

	s := &memSubscription{t: t, shard: shardID, h: h}
	t.shards[shardID] = append(t.shards[shardID], s)
	t.log.Debug("subscribe", slog.Int("shard", int(shardID)))

	context.AfterFunc(ctx, func() { _ = s.Unsubscribe() })
	return s, nil
}

// Close stops accepting requests and waits for running handlers to finish.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	clear(t.shards)
	t.mu.Unlock()

	t.inflight.Wait()
	t.log.Debug("closed")
	return nil
}

func (s *memSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.t.mu.Lock()
		defer s.t.mu.Unlock()
		subs := s.t.shards[s.shard]
		for i, other := range subs {
			if other == s {
				subs = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(subs) == 0 {
			delete(s.t.shards, s.shard)
		} else {
			s.t.shards[s.shard] = subs
		}
	})
	return nil
}

var _ Transport = (*MemoryTransport)(nil)
