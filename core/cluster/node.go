package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type (
	NodeOptions struct {
		Log       *slog.Logger
		NodeID    string
		Transport ServerTransport
		Shards    []uint32
		Handler   ServerHandlerFunc
		Metrics   ClusterMetrics
	}

	Node struct {
		log     *slog.Logger
		nodeID  string
		t       ServerTransport
		h       ServerHandlerFunc
		shards  []uint32
		metrics ClusterMetrics
		active  atomic.Int64
	}
)

func NewNode(opts NodeOptions) *Node {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	nodeID := opts.NodeID
	if nodeID == "" {
		nodeID = fmt.Sprintf("node-%s", gonanoid.Must(6))
	}

	hdl := opts.Handler
	if hdl == nil {
		hdl = func(ctx context.Context, env Envelope) ([]byte, error) {
			return nil, fmt.Errorf("no handler registered")
		}
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = NopClusterMetrics()
	}

	return &Node{
		log:     log.With(slog.String("node", nodeID)),
		nodeID:  nodeID,
		t:       opts.Transport,
		shards:  opts.Shards,
		h:       hdl,
		metrics: metrics,
	}
}

// ID returns the node identifier.
func (n *Node) ID() string { return n.nodeID }

// Shards returns the shards the node subscribes to.
func (n *Node) Shards() []uint32 { return n.shards }

func (n *Node) handleMsg(ctx context.Context, env Envelope) (data []byte, err error) {
	n.log.Debug(
		"handle",
		slog.Group(
			"envelope",
			slog.Int("shard", env.Shard),
			slog.String("type", env.Type),
			slog.Any("headers", env.Headers),
		),
	)

	// === handle internal messages ===

	switch env.Type {
	case MsgClusterNodeInfo:
		return json.Marshal(GetNodeInfoResponse{
			NodeID: n.nodeID,
			Shards: n.shards,
		})
	}

	n.metrics.HandlersActive(n.nodeID, int(n.active.Add(1)))
	defer func() { n.metrics.HandlersActive(n.nodeID, int(n.active.Add(-1))) }()
	defer n.metrics.HandlerDuration(env.Type).ObserveDuration()

	// use handler
	data, err = n.h(ctx, env)
	n.metrics.HandlerCompleted(env.Type, err == nil)
	if err != nil {
		n.log.Error(
			"failed to handle message",
			slog.Group(
				"message",
				slog.String("type", env.Type),
				slog.Any("headers", env.Headers),
				slog.String("data", string(env.Data)),
			),
			slog.Any("error", err),
		)
	}
	return
}

// Run subscribes the node to its shards. Subscriptions end with ctx.
func (n *Node) Run(ctx context.Context) error {
	n.log.Info("starting node", slog.Int("num_shards", len(n.shards)))
	for _, s := range n.shards {
		_, err := n.t.SubscribeShard(ctx, s, n.handleMsg)
		if err != nil {
			return fmt.Errorf("failed to subscribe to shard %d: %w", s, err)
		}
	}
	n.metrics.ShardsOwned(n.nodeID, len(n.shards))
	return nil
}
