package nats

import (
	"log/slog"
	"os"
	"sync"
	"time"

	natsgo "github.com/nats-io/nats.go"
)

type closeFunc = func()

// Connector opens a connection and returns a func releasing it.
type Connector func() (nc *natsgo.Conn, close closeFunc, err error)

// ConnectOptions configures the connection of one quantd node.
type ConnectOptions struct {
	URL string
	// Name shows up in the server's connection list. Defaults to "quantd".
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Log           *slog.Logger
}

// Connect dials opts.URL. Disconnects, reconnects and the final close are
// logged, since balance queries fail for as long as the link is down.
func Connect(opts ConnectOptions) Connector {
	if opts.URL == "" {
		opts.URL = envURL()
	}
	if opts.Name == "" {
		opts.Name = "quantd"
	}
	if opts.MaxReconnects == 0 {
		opts.MaxReconnects = 3
	}
	if opts.ReconnectWait <= 0 {
		opts.ReconnectWait = natsgo.DefaultReconnectWait
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	log := opts.Log.With(slog.String("component", "nats"), slog.String("conn", opts.Name))

	return func() (*natsgo.Conn, closeFunc, error) {
		nc, err := natsgo.Connect(
			opts.URL,
			natsgo.Name(opts.Name),
			natsgo.MaxReconnects(opts.MaxReconnects),
			natsgo.ReconnectWait(opts.ReconnectWait),
			natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
				log.Warn("nats disconnected", slog.Any("error", err))
			}),
			natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
				log.Info("nats reconnected", slog.String("url", nc.ConnectedUrlRedacted()))
			}),
			natsgo.ClosedHandler(func(*natsgo.Conn) {
				log.Debug("nats connection closed")
			}),
		)
		if err != nil {
			return nil, nil, err
		}
		log.Info("nats connected", slog.String("url", nc.ConnectedUrlRedacted()))
		return nc, func() { nc.Close() }, nil
	}
}

// ConnectURL dials url with the default options.
func ConnectURL(url string) Connector {
	return Connect(ConnectOptions{URL: url})
}

// envURL picks QUANT_NATS_URL, then NATS_URL, then the library default.
func envURL() string {
	for _, key := range []string{"QUANT_NATS_URL", "NATS_URL"} {
		if u := os.Getenv(key); u != "" {
			return u
		}
	}
	return natsgo.DefaultURL
}

// sharedConn hands one connection to the transport and the snapshot store.
// The connection is closed when the last lease is released.
type sharedConn struct {
	connect Connector

	mu     sync.Mutex
	nc     *natsgo.Conn
	close  closeFunc
	leases int
}

// Shared returns a Connector leasing a single connection from connect.
func Shared(connect Connector) Connector {
	s := &sharedConn{connect: connect}
	return s.lease
}

func (s *sharedConn) lease() (*natsgo.Conn, closeFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nc == nil {
		nc, closeNc, err := s.connect()
		if err != nil {
			return nil, nil, err
		}
		s.nc, s.close = nc, closeNc
	}
	s.leases++

	var once sync.Once
	return s.nc, func() { once.Do(s.release) }, nil
}

func (s *sharedConn) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leases--
	if s.leases == 0 && s.nc != nil {
		s.close()
		s.nc, s.close = nil, nil
	}
}
