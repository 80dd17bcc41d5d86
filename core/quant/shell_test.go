package quant

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/liuck8080/OnchainQuant/core/actor"
	"github.com/liuck8080/OnchainQuant/core/cluster"
	"github.com/liuck8080/OnchainQuant/core/host"
	"github.com/liuck8080/OnchainQuant/core/metrics"
	"github.com/liuck8080/OnchainQuant/core/price"
	"github.com/liuck8080/OnchainQuant/core/token"
	"github.com/liuck8080/OnchainQuant/internal/reflector"
	"github.com/liuck8080/OnchainQuant/ports/kv"
)

const (
	quantID host.ActorID = "quant"
	startAt uint32       = 1000
)

var scenarioConfig = InitConfig{Ratio: 100_000, Interval: 2}

func testOptions(t *testing.T) Options {
	return Options{
		Log:     slog.New(slog.DiscardHandler),
		Context: t.Context(),
		Prices:  price.NewStatic(map[string]uint64{DefaultSymbol: 27_000_000_000}),
	}
}

func newHost(startHeight uint32) *host.Host {
	return host.New(host.Options{Log: slog.New(slog.DiscardHandler), StartHeight: startHeight})
}

func deployQuant(t *testing.T, h *host.Host, cfg InitConfig, opts Options) *Shell {
	t.Helper()
	payload, err := json.Marshal(cfg)
	require.NoError(t, err)

	var shell *Shell
	init := Init(opts)
	err = h.Deploy(t.Context(), owner, quantID, payload, func(ctx context.Context, env *host.Env, msg host.Message) (host.Program, error) {
		p, err := init(ctx, env, msg)
		if err != nil {
			return nil, err
		}
		shell = p.(*Shell)
		t.Cleanup(shell.Close)
		return p, nil
	})
	require.NoError(t, err)
	return shell
}

func send(t *testing.T, h *host.Host, from host.ActorID, msg any) (Event, error) {
	t.Helper()
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	reply, err := h.Send(t.Context(), from, quantID, reflector.NameOf(msg), payload)
	if err != nil {
		return Event{}, err
	}
	var ev Event
	require.NoError(t, json.Unmarshal(reply, &ev))
	return ev, nil
}

func mustSend(t *testing.T, h *host.Host, from host.ActorID, msg any) Event {
	t.Helper()
	ev, err := send(t, h, from, msg)
	require.NoError(t, err)
	return ev
}

func stateOf(t *testing.T, s *Shell) StateView {
	t.Helper()
	v, err := s.State(t.Context())
	require.NoError(t, err)
	return *v
}

func advance(t *testing.T, h *host.Host, n uint32) []host.Dispatch {
	t.Helper()
	ds, err := h.Advance(t.Context(), n)
	require.NoError(t, err)
	return ds
}

func TestShell_init(t *testing.T) {
	h := newHost(startAt)
	s := deployQuant(t, h, scenarioConfig, testOptions(t))

	require.Equal(t, StateView{Ratio: 100_000, Interval: 2}, stateOf(t, s))

	tokens, err := s.Tokens(t.Context())
	require.NoError(t, err)
	require.Equal(t, DefaultTokens(), tokens)

	err = h.Deploy(t.Context(), owner, "broken", []byte("nope"), Init(testOptions(t)))
	require.ErrorIs(t, err, ErrInvalidInit)
}

func TestShell_gas_reserve(t *testing.T) {
	h := newHost(startAt)
	deployQuant(t, h, scenarioConfig, testOptions(t))

	ev := mustSend(t, h, owner, GasReserve{})
	require.Equal(t, Event{Kind: EventGasReserve, Amount: 50_000_000_000, Time: 1_296_000}, ev)
}

func TestShell_start_and_two_ticks(t *testing.T) {
	h := newHost(startAt)
	s := deployQuant(t, h, scenarioConfig, testOptions(t))

	mustSend(t, h, owner, GasReserve{})
	require.Equal(t, Event{Kind: EventStart}, mustSend(t, h, owner, Start{}))

	v := stateOf(t, s)
	require.Equal(t, startAt+2, v.NextDue)
	require.Equal(t, uint64(1), v.ActionCount)

	ds := advance(t, h, 2)
	require.Len(t, ds, 1)
	require.NoError(t, ds[0].Err)
	require.JSONEq(t, `{"kind":"act"}`, string(ds[0].Reply))

	v = stateOf(t, s)
	require.Equal(t, startAt+4, v.NextDue)
	require.Equal(t, uint64(2), v.ActionCount)
	require.Equal(t, 1, h.Pending())
}

// blockingFeed holds the first quote until release is closed.
func blockingFeed() (feed price.Feed, entered <-chan struct{}, release chan struct{}) {
	in := make(chan struct{})
	release = make(chan struct{})
	var once sync.Once
	feed = price.FeedFunc(func(ctx context.Context, _ string) (uint64, error) {
		once.Do(func() {
			close(in)
			select {
			case <-release:
			case <-ctx.Done():
			}
		})
		return 27_000_000_000, nil
	})
	return feed, in, release
}

func TestShell_rearm_follows_round_tick(t *testing.T) {
	h := newHost(startAt)
	opts := testOptions(t)
	feed, entered, release := blockingFeed()
	opts.Prices = feed
	s := deployQuant(t, h, scenarioConfig, opts)
	mustSend(t, h, owner, GasReserve{})

	started := make(chan error, 1)
	go func() {
		_, err := h.Send(t.Context(), owner, quantID, MsgStart, []byte(`{}`))
		started <- err
	}()

	// a block is produced while the round is still running
	<-entered
	advance(t, h, 1)
	close(release)
	require.NoError(t, <-started)

	v := stateOf(t, s)
	require.Equal(t, startAt+2, v.NextDue)
	require.Equal(t, uint64(1), v.ActionCount)

	ds := advance(t, h, 1)
	require.Len(t, ds, 1)
	require.Equal(t, startAt+2, ds[0].Message.Height)
	require.JSONEq(t, `{"kind":"act"}`, string(ds[0].Reply))

	advance(t, h, 10)
	v = stateOf(t, s)
	require.Equal(t, uint64(7), v.ActionCount)
	require.Equal(t, startAt+14, v.NextDue)
	require.Equal(t, 1, h.Pending())
}

func TestShell_round_overrunning_its_due_fails(t *testing.T) {
	h := newHost(startAt)
	opts := testOptions(t)
	feed, entered, release := blockingFeed()
	opts.Prices = feed
	s := deployQuant(t, h, scenarioConfig, opts)
	mustSend(t, h, owner, GasReserve{})

	started := make(chan error, 1)
	go func() {
		_, err := h.Send(t.Context(), owner, quantID, MsgStart, []byte(`{}`))
		started <- err
	}()

	<-entered
	advance(t, h, 2)
	close(release)
	require.ErrorIs(t, <-started, host.ErrDueElapsed)

	require.Equal(t, StateView{Ratio: 100_000, Interval: 2}, stateOf(t, s))
	require.Zero(t, h.Pending())

	// a fresh start from the current height recovers
	mustSend(t, h, owner, Start{})
	require.Equal(t, startAt+4, stateOf(t, s).NextDue)
}

func TestShell_stop_and_restart(t *testing.T) {
	h := newHost(startAt)
	s := deployQuant(t, h, scenarioConfig, testOptions(t))

	mustSend(t, h, owner, GasReserve{})
	mustSend(t, h, owner, Start{})
	advance(t, h, 2)

	require.Equal(t, Event{Kind: EventStop}, mustSend(t, h, owner, Stop{}))
	advance(t, h, 11)

	v := stateOf(t, s)
	require.Zero(t, v.NextDue)
	require.Equal(t, uint64(2), v.ActionCount)
	require.Zero(t, h.Pending())

	restartAt := h.Height()
	mustSend(t, h, owner, Start{})
	advance(t, h, 2)

	v = stateOf(t, s)
	require.Equal(t, restartAt+4, v.NextDue)
	require.Equal(t, uint64(4), v.ActionCount)

	mustSend(t, h, owner, Stop{})
	advance(t, h, 15)

	v = stateOf(t, s)
	require.Zero(t, v.NextDue)
	require.Equal(t, uint64(4), v.ActionCount)
	require.Zero(t, h.Pending())
}

func TestShell_non_owner(t *testing.T) {
	h := newHost(startAt)
	s := deployQuant(t, h, scenarioConfig, testOptions(t))

	// any account may reserve, only the owner drives the schedule
	mustSend(t, h, mallory, GasReserve{})
	require.Equal(t, Event{Kind: EventStart}, mustSend(t, h, mallory, Start{}))
	require.Equal(t, Event{Kind: EventTerminate}, mustSend(t, h, mallory, Terminate{}))
	require.Equal(t, StateView{Ratio: 100_000, Interval: 2}, stateOf(t, s))

	mustSend(t, h, owner, GasReserve{})
	mustSend(t, h, owner, Start{})
	require.Equal(t, Event{Kind: EventStop}, mustSend(t, h, mallory, Stop{}))
	require.Equal(t, startAt+2, stateOf(t, s).NextDue)
}

func TestShell_missing_owner_reservation(t *testing.T) {
	h := newHost(startAt)
	s := deployQuant(t, h, scenarioConfig, testOptions(t))

	_, err := send(t, h, owner, Start{})
	require.ErrorIs(t, err, ErrOwnerReservationMissing)
	require.Equal(t, StateView{Ratio: 100_000, Interval: 2}, stateOf(t, s))
	require.Zero(t, h.Pending())
}

func TestShell_decode_failure(t *testing.T) {
	h := newHost(startAt)
	s := deployQuant(t, h, scenarioConfig, testOptions(t))

	_, err := h.Send(t.Context(), owner, quantID, MsgRegisterToken, []byte(`{"token":`))
	require.ErrorIs(t, err, actor.ErrDecode)

	tokens, err := s.Tokens(t.Context())
	require.NoError(t, err)
	require.Len(t, tokens, 2)
}

func TestShell_register_token(t *testing.T) {
	h := newHost(startAt)
	s := deployQuant(t, h, scenarioConfig, testOptions(t))

	// registration is not restricted to the owner
	eth := TokenInfo{Name: "ocqETH", ProgramID: "p-eth"}
	require.Equal(t, Event{Kind: EventNone}, mustSend(t, h, mallory, RegisterToken{Token: eth}))

	tokens, err := s.Tokens(t.Context())
	require.NoError(t, err)
	require.Contains(t, tokens, eth)
	require.Len(t, tokens, 3)

	eth.ProgramID = "p-eth-2"
	mustSend(t, h, owner, RegisterToken{Token: eth})
	tokens, err = s.Tokens(t.Context())
	require.NoError(t, err)
	require.Contains(t, tokens, eth)
	require.Len(t, tokens, 3)
}

func TestShell_terminate(t *testing.T) {
	h := newHost(startAt)
	s := deployQuant(t, h, scenarioConfig, testOptions(t))

	mustSend(t, h, owner, GasReserve{})
	mustSend(t, h, owner, Start{})

	_, err := send(t, h, owner, Terminate{})
	require.ErrorIs(t, err, actor.ErrExited)
	<-s.Done()

	require.Equal(t, ReservationAmount-host.DefaultDeliveryFee, h.Refunded(owner))

	ds := advance(t, h, 2)
	require.Len(t, ds, 1)
	require.Equal(t, host.DropExited, ds[0].Dropped)

	_, err = send(t, h, owner, Start{})
	require.ErrorIs(t, err, host.ErrProgramExited)
}

func TestShell_reservation_exhausted(t *testing.T) {
	h := newHost(startAt)
	opts := testOptions(t)
	opts.ReservationAmount = 2 * host.DefaultDeliveryFee
	s := deployQuant(t, h, scenarioConfig, opts)

	mustSend(t, h, owner, GasReserve{})
	mustSend(t, h, owner, Start{})
	advance(t, h, 2)

	ds := advance(t, h, 2)
	require.Len(t, ds, 1)
	require.ErrorIs(t, ds[0].Err, host.ErrReservationExhausted)

	v := stateOf(t, s)
	require.Equal(t, uint64(2), v.ActionCount)
	require.Equal(t, startAt+4, v.NextDue)
	require.Zero(t, h.Pending())
}

func TestShell_reservation_expired(t *testing.T) {
	h := newHost(startAt)
	opts := testOptions(t)
	opts.TickSeconds = 30 * 24 * 3600 / 3 // reservations last 3 blocks
	s := deployQuant(t, h, scenarioConfig, opts)

	ev := mustSend(t, h, owner, GasReserve{})
	require.Equal(t, uint32(3), ev.Time)
	mustSend(t, h, owner, Start{})

	ds := advance(t, h, 4)
	require.Len(t, ds, 2)
	require.Empty(t, ds[0].Dropped)
	require.Equal(t, host.DropExpired, ds[1].Dropped)

	require.Equal(t, uint64(2), stateOf(t, s).ActionCount)
}

func TestShell_snapshot_and_restore(t *testing.T) {
	store := kv.NewMemStore()
	opts := testOptions(t)
	opts.Store = store

	h := newHost(startAt)
	deployQuant(t, h, scenarioConfig, opts)
	mustSend(t, h, owner, GasReserve{})
	mustSend(t, h, owner, RegisterToken{Token: TokenInfo{Name: "ocqETH", ProgramID: "p-eth"}})
	mustSend(t, h, owner, Start{})
	advance(t, h, 2)

	snap, err := kv.Get[Snapshot](t.Context(), store, snapshotKey(quantID))
	require.NoError(t, err)
	require.Equal(t, uint64(2), snap.State.ActionCount)
	require.Equal(t, MsgAct, snap.LastTrigger)
	require.Equal(t, []host.ActorID{owner}, snap.Holders)
	require.Len(t, snap.Tokens, 3)

	opts.Restore = true
	h2 := newHost(5000)
	s2 := deployQuant(t, h2, scenarioConfig, opts)

	require.Equal(t, StateView{Ratio: 100_000, Interval: 2, ActionCount: 2}, stateOf(t, s2))
	tokens, err := s2.Tokens(t.Context())
	require.NoError(t, err)
	require.Len(t, tokens, 3)

	// reservations did not survive
	_, err = send(t, h2, owner, Start{})
	require.ErrorIs(t, err, ErrOwnerReservationMissing)
}

type recordingMetrics struct {
	mu       sync.Mutex
	queries  map[string]int
	rejected map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{queries: map[string]int{}, rejected: map[string]int{}}
}

func (m *recordingMetrics) RoundDuration() metrics.Timer { return metrics.NopTimer() }
func (m *recordingMetrics) RoundCompleted(string, bool)  {}
func (m *recordingMetrics) QuoteFailed(string)           {}
func (m *recordingMetrics) ActionCount(string, uint64)   {}
func (m *recordingMetrics) Reservations(string, int)     {}

func (m *recordingMetrics) Rejected(trigger, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[trigger+"/"+reason]++
}

func (m *recordingMetrics) BalanceQueried(tok string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.queries[tok]++
	}
}

func TestShell_balance_fanout_over_cluster(t *testing.T) {
	tr := cluster.CreateInMemoryTransport(t)
	cluster.CreateTestCluster(t, tr, 2, 16, "", token.NewHandler(token.ServerOptions{
		Log:     slog.New(slog.DiscardHandler),
		Context: t.Context(),
	}))
	cc, err := cluster.NewClient(cluster.ClientOptions{Transport: tr, NumShards: 16})
	require.NoError(t, err)
	balances := token.NewClient(cc)

	for _, tok := range DefaultTokens() {
		_, err := balances.Mint(t.Context(), tok.ProgramID, "alice", 42)
		require.NoError(t, err)
	}

	rec := newRecordingMetrics()
	opts := testOptions(t)
	opts.Balances = balances
	opts.Metrics = rec

	h := newHost(startAt)
	deployQuant(t, h, scenarioConfig, opts)
	mustSend(t, h, owner, GasReserve{})
	mustSend(t, h, "alice", GasReserve{})
	mustSend(t, h, owner, Start{})
	advance(t, h, 3)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, map[string]int{"ocqBTC": 2, "ocqUSDT": 2}, rec.queries)
	require.Zero(t, rec.rejected[MsgAct+"/"+RejectStale])
}
