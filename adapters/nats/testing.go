package nats

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type Testing interface {
	require.TestingT
	Context() context.Context
	Logf(format string, args ...any)
	Skip(args ...any)
	Cleanup(func())
}

// NewTestContainer starts a JetStream enabled NATS server and returns a
// connector to it. Skipped under -short since it needs docker.
func NewTestContainer(t Testing) Connector {
	if testing.Short() {
		t.Skip("nats container skipped in short mode")
	}

	natsC, err := testcontainers.Run(
		t.Context(), "nats:2.11-alpine",
		testcontainers.WithCmd("-js"),
		testcontainers.WithExposedPorts("4222/tcp"),
		testcontainers.WithWaitStrategy(wait.ForLog("Server is ready")),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(natsC); err != nil {
			t.Errorf("terminate nats container: %s", err)
		}
	})

	endpoint, err := natsC.PortEndpoint(t.Context(), "4222/tcp", "nats")
	require.NoError(t, err)
	t.Logf("nats at %s", endpoint)
	return Connect(ConnectOptions{URL: endpoint, Name: "quantd-test"})
}

// TestBackend is the NATS side of a quantd node: the token cluster
// transport and the snapshot bucket on one connection.
type TestBackend struct {
	Transport *Transport
	Store     *KvStore
}

// NewTestBackend wires a backend against connect the way quantd does, using
// prefix for both the shard subjects and the bucket name.
func NewTestBackend(t Testing, connect Connector, prefix string) TestBackend {
	shared := Shared(connect)
	tr, err := NewTransport(TransportConfig{
		Connect:       shared,
		Log:           slog.New(slog.DiscardHandler),
		SubjectPrefix: prefix,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	store, err := NewKvStore(t.Context(), KvConfig{Connect: shared, Bucket: prefix + "_snapshots"})
	require.NoError(t, err)
	return TestBackend{Transport: tr, Store: store}
}
