// Package app is the composition root of a quant node.
//
// An [App] owns one [host.Host], one token service [cluster.Node] with its
// [cluster.Client], and the controllers deployed onto the host. Controllers
// query balances through the cluster and quote prices through the
// configured [price.Feed].
//
// # Basic Usage
//
//	app, err := app.Run(app.Config{
//	    Prices: price.NewStatic(map[string]uint64{"ocqBTC": 27_000}),
//	    Store:  kv.NewMemStore(),
//	    Programs: []app.ProgramConfig{
//	        {ID: "q1", Owner: "owner", Ratio: 100_000, Interval: 2},
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Stop()
//
//	app.Send(ctx, "owner", "q1", quant.MsgGasReserve, nil)
//	app.Send(ctx, "owner", "q1", quant.MsgStart, nil)
//	app.Advance(ctx, 2)
//
// # Multi-Node Clusters
//
// The token service shards over the same HRW assignment as any cluster
// node. Every node must agree on NumShards, ShardSeed and the NodeIDs list:
//
//	app.NodeConfig{
//	    ID:        myNodeID,
//	    NumShards: 256,
//	    NodeIDs:   []string{"node-1", "node-2", "node-3"},
//	    ShardSeed: "production",
//	    Transport: natsTransport,
//	}
//
// Block production is driven by [App.Produce] in a daemon, or by
// [App.Advance] in simulations and tests.
package app
