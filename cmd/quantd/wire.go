package main

import (
	"context"
	"log/slog"

	promclient "github.com/prometheus/client_golang/prometheus"

	"github.com/liuck8080/OnchainQuant/adapters/nats"
	"github.com/liuck8080/OnchainQuant/adapters/prometheus"
	"github.com/liuck8080/OnchainQuant/core/app"
	"github.com/liuck8080/OnchainQuant/core/cache"
	"github.com/liuck8080/OnchainQuant/core/cluster"
	"github.com/liuck8080/OnchainQuant/core/host"
	"github.com/liuck8080/OnchainQuant/core/price"
	"github.com/liuck8080/OnchainQuant/core/quant"
	"github.com/liuck8080/OnchainQuant/internal/config"
	"github.com/liuck8080/OnchainQuant/ports/kv"
)

// appConfig translates the daemon config into an app config. With a NATS
// url the token cluster runs over NATS and snapshots go to JetStream.
func appConfig(ctx context.Context, cfg config.Config, log *slog.Logger, reg promclient.Registerer) (app.Config, error) {
	var (
		transport cluster.Transport
		store     kv.Store
	)
	if cfg.NATS.URL != "" {
		connect := nats.Shared(nats.Connect(nats.ConnectOptions{
			URL:           cfg.NATS.URL,
			Name:          cfg.NATS.Name,
			MaxReconnects: cfg.NATS.MaxReconnects,
			Log:           log,
		}))
		tr, err := nats.NewTransport(nats.TransportConfig{
			Connect:       connect,
			Log:           log,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
		})
		if err != nil {
			return app.Config{}, err
		}
		kvs, err := nats.NewKvStore(ctx, nats.KvConfig{Connect: connect, Bucket: cfg.NATS.Bucket})
		if err != nil {
			_ = tr.Close()
			return app.Config{}, err
		}
		transport, store = tr, kvs
	} else {
		transport = cluster.NewInMemoryTransport(cluster.MemoryTransportOpts{Log: log})
		store = kv.NewMemStore()
	}

	var m app.Metrics
	if reg != nil {
		all := prometheus.NewAllMetrics(reg)
		m = app.Metrics{Host: all.Host, Quant: all.Quant, Actor: all.Actor, Cluster: all.Cluster}
	}

	tokens := quant.DefaultTokens()
	for _, t := range cfg.Quant.Tokens {
		tokens = append(tokens, quant.TokenInfo{Name: t.Name, ProgramID: t.ProgramID})
	}

	programs := make([]app.ProgramConfig, 0, len(cfg.Programs))
	for _, p := range cfg.Programs {
		programs = append(programs, app.ProgramConfig{
			ID:       host.ActorID(p.ID),
			Owner:    host.ActorID(p.Owner),
			Ratio:    p.Ratio,
			Interval: p.Interval,
		})
	}

	priceCache := price.CachedOptions{Log: log, TTL: cfg.Prices.CacheTTL}
	if cfg.Prices.NoCache {
		priceCache.Cache = cache.NewNop()
	}

	return app.Config{
		Context: ctx,
		Log:     log,
		Node: app.NodeConfig{
			ID:        cfg.Node.ID,
			NumShards: cfg.Node.NumShards,
			NodeIDs:   cfg.Node.NodeIDs,
			ShardSeed: cfg.Node.ShardSeed,
			Transport: transport,
			QueryTTL:  cfg.Node.QueryTTL,
		},
		Host: host.Options{
			StartHeight: cfg.Host.StartHeight,
			DeliveryFee: cfg.Host.DeliveryFee,
			Capacity:    cfg.Host.Capacity,
		},
		Quant: quant.Options{
			Symbol:            cfg.Quant.Symbol,
			TickSeconds:       cfg.Quant.TickSeconds,
			ReservationAmount: cfg.Quant.ReservationAmount,
			QueryFee:          cfg.Quant.QueryFee,
			NoQueryFee:        cfg.Quant.NoQueryFee,
			QueryTimeout:      cfg.Quant.QueryTimeout,
			Tokens:            tokens,
			Restore:           cfg.Quant.Restore,
		},
		Prices:   price.NewCached(price.NewStatic(cfg.Prices.Quotes), priceCache),
		Store:    store,
		Programs: programs,
		Metrics:  m,
	}, nil
}
