package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/liuck8080/OnchainQuant/core/actor"
	"github.com/liuck8080/OnchainQuant/core/cluster"
	"github.com/liuck8080/OnchainQuant/core/host"
	"github.com/liuck8080/OnchainQuant/core/price"
	"github.com/liuck8080/OnchainQuant/core/quant"
	"github.com/liuck8080/OnchainQuant/core/token"
	"github.com/liuck8080/OnchainQuant/ports/kv"
)

var ErrUnknownProgram = errors.New("unknown program")

// NodeConfig describes the token service node this process runs.
type NodeConfig struct {
	ID        string
	NumShards uint32
	NodeIDs   []string
	ShardSeed string
	Transport cluster.Transport
	// QueryTTL is attached to every balance query envelope.
	QueryTTL time.Duration
}

// ProgramConfig is a controller deployed when the app starts.
type ProgramConfig struct {
	ID       host.ActorID
	Owner    host.ActorID
	Ratio    uint64
	Interval uint32
}

// Metrics groups the instrumentation of every layer. Nil fields fall back
// to no-ops.
type Metrics struct {
	Host    host.Metrics
	Quant   quant.Metrics
	Actor   actor.ActorMetrics
	Cluster cluster.ClusterMetrics
}

type Config struct {
	Context context.Context
	Log     *slog.Logger
	Node    NodeConfig
	Host    host.Options
	// Quant is the template for every deployed controller. Log, Context,
	// Balances, Prices, Store and the metrics are filled in by the app.
	Quant    quant.Options
	Prices   price.Feed
	Store    kv.Store
	Programs []ProgramConfig
	Metrics  Metrics
}

// App wires the host, the token service cluster, the price feed and the
// snapshot store, and deploys controllers onto the host.
type App struct {
	ctx       context.Context
	cancelCtx context.CancelFunc
	log       *slog.Logger

	host   *host.Host
	node   *cluster.Node
	client *cluster.Client
	tokens *token.Client
	quant  quant.Options

	mu       sync.RWMutex
	programs map[host.ActorID]*quant.Shell
	boot     []ProgramConfig
}

func New(config Config) (app *App, err error) {
	app = &App{programs: make(map[host.ActorID]*quant.Shell)}

	// === node config ===
	nodeConfig := config.Node
	if nodeConfig.ID == "" {
		nodeConfig.ID = fmt.Sprintf("node-%s", gonanoid.Must(6))
	}
	if len(nodeConfig.NodeIDs) == 0 {
		nodeConfig.NodeIDs = []string{nodeConfig.ID}
	}
	if nodeConfig.NumShards == 0 {
		nodeConfig.NumShards = 256
	}
	if nodeConfig.ShardSeed == "" {
		nodeConfig.ShardSeed = "default"
	}
	if nodeConfig.Transport == nil {
		nodeConfig.Transport = cluster.NewInMemoryTransport()
	}

	// === logger ===
	if config.Log == nil {
		config.Log = slog.Default()
	}
	app.log = config.Log.With(slog.String("node", nodeConfig.ID))

	// === context ===
	if config.Context == nil {
		config.Context = context.Background()
	}
	app.ctx, app.cancelCtx = context.WithCancel(config.Context)

	// === metrics ===
	m := config.Metrics
	if m.Host == nil {
		m.Host = host.NopMetrics()
	}
	if m.Quant == nil {
		m.Quant = quant.NopMetrics()
	}
	if m.Actor == nil {
		m.Actor = actor.NopActorMetrics()
	}
	if m.Cluster == nil {
		m.Cluster = cluster.NopClusterMetrics()
	}

	// === host ===
	hostOpts := config.Host
	hostOpts.Log = app.log.With(slog.String("component", "host"))
	hostOpts.Metrics = m.Host
	app.host = host.New(hostOpts)

	app.log.Debug("creating app", slog.Any("node_config", nodeConfig))

	// === token service ===
	app.node = cluster.NewNode(cluster.NodeOptions{
		NodeID:    nodeConfig.ID,
		Shards:    cluster.ShardsForNode(nodeConfig.ID, nodeConfig.NodeIDs, nodeConfig.NumShards, nodeConfig.ShardSeed),
		Log:       app.log,
		Transport: nodeConfig.Transport,
		Metrics:   m.Cluster,
		Handler: token.NewHandler(token.ServerOptions{
			Log:     app.log.With(slog.String("component", "token")),
			Context: app.ctx,
			Store:   config.Store,
			Metrics: m.Actor,
		}),
	})

	app.client, err = cluster.NewClient(cluster.ClientOptions{
		NumShards: nodeConfig.NumShards,
		Seed:      nodeConfig.ShardSeed,
		Transport: nodeConfig.Transport,
		Metrics:   m.Cluster,
	})
	if err != nil {
		return nil, err
	}
	app.tokens = token.NewClient(app.client, token.ClientOptions{TTL: nodeConfig.QueryTTL})

	// === controller template ===
	qo := config.Quant
	qo.Log = app.log
	qo.Context = app.ctx
	qo.Balances = app.tokens
	qo.Prices = config.Prices
	qo.Store = config.Store
	qo.Metrics = m.Quant
	qo.ActorMetrics = m.Actor
	if qo.Prices == nil {
		qo.Prices = price.NewStatic(nil)
	}
	app.quant = qo
	app.boot = config.Programs

	return app, nil
}

// Run subscribes the token node and deploys the configured programs.
func (a *App) Run() (err error) {
	err = a.node.Run(a.ctx)
	if err != nil {
		return err
	}

	for _, p := range a.boot {
		if err := a.Deploy(a.ctx, p); err != nil {
			return err
		}
	}

	a.log.Info("app started", slog.Int("programs", len(a.boot)))

	return nil
}

// Deploy initializes a controller on the host.
func (a *App) Deploy(ctx context.Context, p ProgramConfig) error {
	payload, err := quant.EncodeInit(quant.InitConfig{Ratio: p.Ratio, Interval: p.Interval})
	if err != nil {
		return err
	}

	init := quant.Init(a.quant)
	return a.host.Deploy(ctx, p.Owner, p.ID, payload, func(ctx context.Context, env *host.Env, msg host.Message) (host.Program, error) {
		prog, err := init(ctx, env, msg)
		if err != nil {
			return nil, err
		}
		shell := prog.(*quant.Shell)
		a.mu.Lock()
		a.programs[p.ID] = shell
		a.mu.Unlock()
		go a.forget(p.ID, shell)
		return prog, nil
	})
}

// forget drops the shell once the program has exited on the host.
func (a *App) forget(id host.ActorID, s *quant.Shell) {
	select {
	case <-s.Done():
	case <-a.ctx.Done():
		return
	}
	if !a.host.Exited(id) {
		return
	}
	a.mu.Lock()
	if a.programs[id] == s {
		delete(a.programs, id)
	}
	a.mu.Unlock()
	a.log.Debug("program forgotten", slog.String("program", string(id)))
}

func (a *App) program(id host.ActorID) (*quant.Shell, error) {
	// the host records the exit before the shell stops
	if a.host.Exited(id) {
		return nil, fmt.Errorf("%w: %s", host.ErrProgramExited, id)
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.programs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProgram, id)
	}
	return s, nil
}

// Programs returns the ids of every live controller, sorted.
func (a *App) Programs() []host.ActorID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]host.ActorID, 0, len(a.programs))
	for _, id := range slices.Sorted(maps.Keys(a.programs)) {
		if !a.host.Exited(id) {
			out = append(out, id)
		}
	}
	return out
}

func (a *App) State(ctx context.Context, id host.ActorID) (*quant.StateView, error) {
	s, err := a.program(id)
	if err != nil {
		return nil, err
	}
	return s.State(ctx)
}

func (a *App) Tokens(ctx context.Context, id host.ActorID) ([]quant.TokenInfo, error) {
	s, err := a.program(id)
	if err != nil {
		return nil, err
	}
	return s.Tokens(ctx)
}

// Send delivers a trigger to a program at the current height.
func (a *App) Send(ctx context.Context, src, dst host.ActorID, msgType string, payload []byte) ([]byte, error) {
	return a.host.Send(ctx, src, dst, msgType, payload)
}

func (a *App) Advance(ctx context.Context, n uint32) ([]host.Dispatch, error) {
	return a.host.Advance(ctx, n)
}

func (a *App) Height() uint32 { return a.host.Height() }

// Produce advances one block per period until the app stops.
func (a *App) Produce(period time.Duration) error {
	err := a.host.Produce(a.ctx, period)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Mint credits account in the token served under target.
func (a *App) Mint(ctx context.Context, target, account string, amount uint64) (uint64, error) {
	return a.tokens.Mint(ctx, target, account, amount)
}

func (a *App) Host() *host.Host { return a.host }

func (a *App) Client() *cluster.Client { return a.client }

func (a *App) Node() *cluster.Node { return a.node }

// Done is closed once the app has been stopped.
func (a *App) Done() <-chan struct{} { return a.ctx.Done() }

// Stop closes every controller and cancels the app context. Safe to call
// more than once.
func (a *App) Stop() {
	a.mu.RLock()
	for _, s := range a.programs {
		s.Close()
	}
	a.mu.RUnlock()
	a.cancelCtx()
}

// Shutdown stops the app and waits for the controllers to drain or ctx to
// end.
func (a *App) Shutdown(ctx context.Context) error {
	a.Stop()
	a.mu.RLock()
	defer a.mu.RUnlock()
	for id, s := range a.programs {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return fmt.Errorf("shutdown %s: %w", id, ctx.Err())
		}
	}
	a.log.Info("app stopped")
	return nil
}

func Run(config Config) (app *App, err error) {
	app, err = New(config)
	if err != nil {
		return nil, err
	}

	err = app.Run()
	if err != nil {
		return nil, err
	}

	return app, nil
}
