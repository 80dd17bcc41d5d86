package integration

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/liuck8080/OnchainQuant/core/actor"
	"github.com/liuck8080/OnchainQuant/core/cluster"
	"github.com/liuck8080/OnchainQuant/core/host"
	"github.com/liuck8080/OnchainQuant/core/price"
	"github.com/liuck8080/OnchainQuant/core/quant"
	"github.com/liuck8080/OnchainQuant/core/token"
	"github.com/liuck8080/OnchainQuant/ports/kv"
)

type deployment struct {
	h     *host.Host
	store *kv.MemStore
	opts  quant.Options
	progs map[host.ActorID]*quant.Shell
}

func (d *deployment) deploy(t *testing.T, id, owner host.ActorID, interval uint32) {
	t.Helper()
	payload, err := quant.EncodeInit(quant.InitConfig{Ratio: 100_000, Interval: interval})
	require.NoError(t, err)
	init := quant.Init(d.opts)
	require.NoError(t, d.h.Deploy(t.Context(), owner, id, payload, func(ctx context.Context, env *host.Env, msg host.Message) (host.Program, error) {
		p, err := init(ctx, env, msg)
		if err == nil {
			d.progs[id] = p.(*quant.Shell)
			t.Cleanup(d.progs[id].Close)
		}
		return p, err
	}))
}

func (d *deployment) send(t *testing.T, src, dst host.ActorID, msgType string) ([]byte, error) {
	t.Helper()
	return d.h.Send(t.Context(), src, dst, msgType, []byte(`{}`))
}

func (d *deployment) state(t *testing.T, id host.ActorID) quant.StateView {
	t.Helper()
	v, err := d.progs[id].State(t.Context())
	require.NoError(t, err)
	return *v
}

func TestIntegration(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	store := kv.NewMemStore()

	tr := cluster.CreateInMemoryTransport(t)
	cluster.CreateTestCluster(t, tr, 5, 256, "foobar", token.NewHandler(token.ServerOptions{
		Log:     log,
		Context: t.Context(),
		Store:   store,
	}))

	c, err := cluster.NewClient(cluster.ClientOptions{
		Seed:      "foobar",
		Transport: tr,
		NumShards: 256,
	})
	require.NoError(t, err)
	balances := token.NewClient(c)

	for _, tok := range quant.DefaultTokens() {
		_, err := balances.Mint(t.Context(), tok.ProgramID, "alice", 100)
		require.NoError(t, err)
	}

	d := &deployment{
		h: host.New(host.Options{
			Log:         log,
			StartHeight: 1000,
			Capacity:    2 * quant.ReservationAmount,
		}),
		store: store,
		opts: quant.Options{
			Log:      log,
			Context:  t.Context(),
			Balances: balances,
			Prices:   price.NewCached(price.NewStatic(map[string]uint64{quant.DefaultSymbol: 27_000}), price.CachedOptions{Log: log}),
			Store:    store,
		},
		progs: map[host.ActorID]*quant.Shell{},
	}

	d.deploy(t, "q1", "owner", 2)
	d.deploy(t, "q2", "carol", 3)

	for _, r := range []struct{ src, dst host.ActorID }{
		{"owner", "q1"}, {"alice", "q1"}, {"carol", "q2"}, {"alice", "q2"},
	} {
		_, err := d.send(t, r.src, r.dst, quant.MsgGasReserve)
		require.NoError(t, err)
	}

	// a third reservation would exceed the per-program capacity
	_, err = d.send(t, "bob", "q1", quant.MsgGasReserve)
	require.ErrorIs(t, err, host.ErrCapacityExceeded)

	_, err = d.send(t, "owner", "q1", quant.MsgStart)
	require.NoError(t, err)
	_, err = d.send(t, "carol", "q2", quant.MsgStart)
	require.NoError(t, err)

	ds, err := d.h.Advance(t.Context(), 6)
	require.NoError(t, err)
	require.Len(t, ds, 5)
	for _, dp := range ds {
		require.NoError(t, dp.Err)
		require.Empty(t, dp.Dropped)
	}
	require.Equal(t, uint64(4), d.state(t, "q1").ActionCount)
	require.Equal(t, uint64(3), d.state(t, "q2").ActionCount)

	// only the owner can terminate
	reply, err := d.send(t, "owner", "q2", quant.MsgTerminate)
	require.NoError(t, err)
	var ev quant.Event
	require.NoError(t, json.Unmarshal(reply, &ev))
	require.Equal(t, quant.EventTerminate, ev.Kind)

	_, err = d.send(t, "carol", "q2", quant.MsgTerminate)
	require.ErrorIs(t, err, actor.ErrExited)
	require.Positive(t, d.h.Refunded("carol"))

	ds, err = d.h.Advance(t.Context(), 6)
	require.NoError(t, err)
	require.Len(t, ds, 4)
	var dropped []string
	for _, dp := range ds {
		if dp.Dropped != "" {
			require.Equal(t, host.ActorID("q2"), dp.Message.Dest)
			dropped = append(dropped, dp.Dropped)
		}
	}
	require.Equal(t, []string{host.DropExited}, dropped)

	require.Equal(t, quant.StateView{Ratio: 100_000, Interval: 2, NextDue: 1014, ActionCount: 7}, d.state(t, "q1"))
	require.Equal(t, 1, d.h.Pending())

	snap, err := kv.Get[quant.Snapshot](t.Context(), store, kv.Key("quant", "q2"))
	require.NoError(t, err)
	require.Equal(t, quant.MsgTerminate, snap.LastTrigger)
	require.Equal(t, uint64(3), snap.State.ActionCount)

	bal, err := balances.BalanceOf(t.Context(), quant.DefaultTokens()[1].ProgramID, "alice")
	require.NoError(t, err)
	require.Equal(t, uint64(100), bal)
}
