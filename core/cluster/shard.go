package cluster

import (
	"encoding/binary"
	"slices"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// ShardFromString maps key onto one of numShards shards.
func ShardFromString(key string, numShards uint32, seed string) uint32 {
	if numShards == 0 {
		return 0
	}
	return uint32(digest(seed, key) % uint64(numShards))
}

// ShardOwners assigns every shard to the node with the highest rendezvous
// score. The result is indexed by shard. Adding or removing a node only moves
// the shards that node wins or loses.
func ShardOwners(nodeIDs []string, numShards uint32, seed string) []string {
	if numShards == 0 || len(nodeIDs) == 0 {
		return nil
	}

	nodes := slices.Clone(nodeIDs)
	slices.Sort(nodes)

	owners := make([]string, numShards)
	for shard := range numShards {
		key := "shard:" + strconv.FormatUint(uint64(shard), 10)
		var best uint64
		for i, n := range nodes {
			if score := digest(seed, key, n); i == 0 || score > best {
				owners[shard], best = n, score
			}
		}
	}
	return owners
}

// ShardsForNode lists the shards nodeID owns among nodeIDs.
func ShardsForNode(nodeID string, nodeIDs []string, numShards uint32, seed string) []uint32 {
	var owned []uint32
	for shard, owner := range ShardOwners(nodeIDs, numShards, seed) {
		if owner == nodeID {
			owned = append(owned, uint32(shard))
		}
	}
	return owned
}

// digest hashes the optional seed and the zero separated parts into 64 bits.
func digest(seed string, parts ...string) uint64 {
	h, _ := blake2b.New(8, nil)
	if seed != "" {
		h.Write([]byte(seed))
		h.Write([]byte{0})
	}
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return binary.BigEndian.Uint64(h.Sum(nil))
}
