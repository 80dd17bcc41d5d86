// Package cluster routes request/reply traffic to sharded services. The quant
// controller uses it to reach token services: each token program id is a key,
// the key hashes to a shard, and the node owning that shard runs one actor per
// token.
//
// Keys map to shards with [ShardFromString] (BLAKE2b). Shards map to nodes
// with rendezvous hashing ([ShardOwners], [ShardsForNode]), so every node
// derives the same split from the same node list and seed.
//
// A [Client] sends envelopes, a [Node] subscribes to the shards it owns and
// answers them:
//
//	node := cluster.NewNode(cluster.NodeOptions{
//	    NodeID:    "node-1",
//	    Transport: tr,
//	    Shards:    cluster.ShardsForNode("node-1", nodeIDs, 256, seed),
//	    Handler:   token.NewHandler(token.ServerOptions{}),
//	})
//	_ = node.Run(ctx)
//
//	client, _ := cluster.NewClient(cluster.ClientOptions{Transport: tr, NumShards: 256, Seed: seed})
//	bal, err := cluster.Call[token.BalanceOf, token.Balance](
//	    ctx, client.Key(programID), token.BalanceOf{Account: "alice"},
//	)
//
// [MemoryTransport] serves tests and single process deployments; the
// adapters/nats package carries the same envelopes over NATS.
//
// Headers prefixed with x-quant- are reserved. Callers set the key, source and
// block height through [ScopedClient] and the [WithSource] and [WithHeight]
// options; [NewActorHandler] turns the latter two into [actor.Meta].
package cluster
