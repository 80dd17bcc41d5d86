package price

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/liuck8080/OnchainQuant/core/cache"
)

type CachedOptions struct {
	Log *slog.Logger
	// TTL is how long a quote is served from cache. Defaults to 10s.
	TTL time.Duration
	// Size bounds the number of cached symbols. Defaults to 64.
	Size int
	// Cache overrides the backing cache, mostly for tests.
	Cache cache.Cache
}

// Cached wraps a feed, serving recent quotes from an LRU cache and collapsing
// concurrent lookups of the same symbol into one upstream call. Failed lookups
// are not cached.
type Cached struct {
	log    *slog.Logger
	feed   Feed
	ttl    time.Duration
	quotes cache.Typed[uint64]
	group  singleflight.Group
}

func NewCached(feed Feed, opts CachedOptions) *Cached {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Second
	}
	if opts.Size <= 0 {
		opts.Size = 64
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewLRU(cache.LRUOpts{Size: opts.Size})
	}
	return &Cached{
		log:    opts.Log.With(slog.String("component", "price")),
		feed:   feed,
		ttl:    opts.TTL,
		quotes: cache.NewTyped[uint64](opts.Cache),
	}
}

func (c *Cached) Quote(ctx context.Context, symbol string) (uint64, error) {
	if v, ok := c.quotes.Get(symbol); ok {
		return v, nil
	}

	v, err, shared := c.group.Do(symbol, func() (any, error) {
		q, err := c.feed.Quote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		c.quotes.Put(symbol, q, cache.WithTTL(c.ttl))
		return q, nil
	})
	if err != nil {
		c.log.Debug("quote failed", slog.String("symbol", symbol), slog.Bool("shared", shared), slog.Any("error", err))
		return 0, err
	}
	return v.(uint64), nil
}

// Invalidate drops the cached quote for symbol.
func (c *Cached) Invalidate(symbol string) {
	c.quotes.Delete(symbol)
}

var _ Feed = (*Cached)(nil)
