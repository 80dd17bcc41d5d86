package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

type ClientOptions struct {
	Transport ClientTransport
	NumShards uint32
	Seed      string
	// EnvelopeOptions are applied to every envelope the client sends.
	EnvelopeOptions []EnvelopeOption
	Metrics         ClusterMetrics
}

// Client routes requests to the shard owning their key.
type Client struct {
	t         ClientTransport
	numShards uint32
	seed      string
	opts      []EnvelopeOption
	metrics   ClusterMetrics
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Transport == nil {
		return nil, errors.New("cluster: ClientOptions.Transport is required")
	}
	if opts.NumShards == 0 {
		return nil, errors.New("cluster: ClientOptions.NumShards is required")
	}
	if opts.Metrics == nil {
		opts.Metrics = NopClusterMetrics()
	}
	return &Client{
		t:         opts.Transport,
		numShards: opts.NumShards,
		seed:      opts.Seed,
		opts:      opts.EnvelopeOptions,
		metrics:   opts.Metrics,
	}, nil
}

// RequestShard sends raw data to shard and waits for the reply.
func (c *Client) RequestShard(ctx context.Context, shard uint32, msgType string, data []byte, opts ...EnvelopeOption) ([]byte, error) {
	if shard >= c.numShards {
		return nil, fmt.Errorf("cluster: shard %d out of range (numShards=%d)", shard, c.numShards)
	}

	env := Envelope{Shard: int(shard), Type: msgType, Data: data}
	for _, opt := range c.opts {
		opt(&env)
	}
	for _, opt := range opts {
		opt(&env)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}

	defer c.metrics.RequestDuration(msgType).ObserveDuration()
	res, err := c.t.Request(ctx, env)
	c.metrics.RequestCompleted(msgType, err == nil)
	if label := transportErrorLabel(err); label != "" {
		c.metrics.TransportError(label)
	}
	return res, err
}

func transportErrorLabel(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransportNoShardSubscriber):
		return "no_subscriber"
	case errors.Is(err, ErrHandlerTimeout):
		return "timeout"
	case errors.Is(err, ErrEnvelopeExpired):
		return "ttl_expired"
	case errors.Is(err, ErrTransportClosed):
		return "closed"
	}
	return ""
}

// Key scopes the client to the shard owning key. Requests carry key in the
// x-quant-key header so key handlers on the node can route them.
func (c *Client) Key(key string, opts ...EnvelopeOption) *ScopedClient {
	return &ScopedClient{
		client: c,
		shard:  ShardFromString(key, c.numShards, c.seed),
		opts:   append([]EnvelopeOption{WithHeader(envHeaderKey, key)}, opts...),
	}
}

// ScopedClient sends to a single shard.
type ScopedClient struct {
	client *Client
	shard  uint32
	opts   []EnvelopeOption
}

// Shard is the shard the scoped requests go to.
func (c *ScopedClient) Shard() uint32 { return c.shard }

// Request encodes payload as JSON and sends it under its message type.
func (c *ScopedClient) Request(ctx context.Context, payload any, opts ...EnvelopeOption) ([]byte, error) {
	if v, ok := payload.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("invalid payload: %w", err)
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	all := append(append([]EnvelopeOption(nil), c.opts...), opts...)
	return c.client.RequestShard(ctx, c.shard, getMessageType(payload), data, all...)
}

// GetNodeInfo asks the node serving the shard about itself.
func (c *ScopedClient) GetNodeInfo(ctx context.Context) (*GetNodeInfoResponse, error) {
	return Call[GetNodeInfoRequest, GetNodeInfoResponse](ctx, c, GetNodeInfoRequest{})
}

// Call sends in through c and decodes the reply into OUT.
func Call[IN any, OUT any](ctx context.Context, c *ScopedClient, in IN, opts ...EnvelopeOption) (*OUT, error) {
	data, err := c.Request(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	out := new(OUT)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("decode %T: %w", out, err)
	}
	return out, nil
}
