package cluster

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// CreateInMemoryTransport returns a transport closed when the test ends.
func CreateInMemoryTransport(t *testing.T) Transport {
	tr := NewInMemoryTransport()
	t.Cleanup(func() { require.NoError(t, tr.Close()) })
	return tr
}

// CreateTestCluster runs numNodes nodes named node-0..node-N on tr, splitting
// numShards between them. Every node serves h until the test ends.
func CreateTestCluster(t *testing.T, tr ServerTransport, numNodes int, numShards uint32, shardSeed string, h ServerHandlerFunc) []*Node {
	nodeIDs := make([]string, numNodes)
	for i := range nodeIDs {
		nodeIDs[i] = fmt.Sprintf("node-%d", i)
	}

	nodes := make([]*Node, 0, numNodes)
	for _, id := range nodeIDs {
		n := NewNode(NodeOptions{
			NodeID:    id,
			Transport: tr,
			Shards:    ShardsForNode(id, nodeIDs, numShards, shardSeed),
			Handler:   h,
		})
		require.NoError(t, n.Run(t.Context()))
		nodes = append(nodes, n)
	}
	return nodes
}
