package cluster

import (
	"context"
	"math"
	"sync"

	"github.com/liuck8080/OnchainQuant/core/cache"
)

// DefaultHandlerCacheSize bounds the per-key handlers a scoped handler keeps.
const DefaultHandlerCacheSize = 1024

type ScopedHandlerOpts struct {
	Extract func(env Envelope) (key string, err error)
	Create  func(key string) (ServerHandlerFunc, error)
	// CacheSize bounds the number of live per-key handlers; the least
	// recently used one is dropped first. 0 means DefaultHandlerCacheSize,
	// a negative value means unbounded.
	CacheSize int
}

func NewScopedHandler(opts ScopedHandlerOpts) ServerHandlerFunc {
	size := opts.CacheSize
	switch {
	case size == 0:
		size = DefaultHandlerCacheSize
	case size < 0:
		size = math.MaxInt
	}

	var (
		mu       sync.Mutex
		handlers = cache.NewTyped[ServerHandlerFunc](cache.NewLRU(cache.LRUOpts{Size: size}))
	)

	return func(ctx context.Context, env Envelope) ([]byte, error) {
		// extract key
		k, err := opts.Extract(env)
		if err != nil {
			return nil, err
		}

		if k == "" {
			return nil, ErrKeyRequired
		}

		// create handler if not exists
		mu.Lock()
		h, ok := handlers.Get(k)
		if !ok {
			h, err = opts.Create(k)
			if err != nil {
				mu.Unlock()
				return nil, err
			}
			handlers.Put(k, h)
		}
		mu.Unlock()

		return h(ctx, env)
	}
}

// NewKeyHandler routes envelopes by their x-quant-key header, creating one
// handler per key on first use.
func NewKeyHandler(createFunc func(key string) (ServerHandlerFunc, error)) ServerHandlerFunc {
	return NewKeyHandlerWithOpts(createFunc, 0)
}

// NewKeyHandlerWithOpts is [NewKeyHandler] with an explicit handler cache size.
func NewKeyHandlerWithOpts(createFunc func(key string) (ServerHandlerFunc, error), cacheSize int) ServerHandlerFunc {
	return NewScopedHandler(ScopedHandlerOpts{
		Extract: func(env Envelope) (string, error) {
			key, ok := env.GetHeader(envHeaderKey)
			if !ok {
				return "", ErrMissingKeyHeader
			}
			return key, nil
		},
		Create:    createFunc,
		CacheSize: cacheSize,
	})
}
