package cluster

// MsgClusterNodeInfo is the message type for querying node metadata.
const (
	MsgClusterNodeInfo = "quant.cluster.node_info"
)

type (
	// GetNodeInfoRequest asks a node which shards it serves. Answered by the
	// node itself, never by the handler. Send via [ScopedClient.GetNodeInfo].
	GetNodeInfoRequest struct{}

	// GetNodeInfoResponse contains node metadata returned by [GetNodeInfoRequest].
	GetNodeInfoResponse struct {
		// NodeID is the unique identifier of the responding node.
		NodeID string `json:"node_id"`
		// Shards is the list of shard IDs owned by this node.
		Shards []uint32 `json:"shards"`
	}
)

func (GetNodeInfoRequest) MsgType() string { return MsgClusterNodeInfo }
