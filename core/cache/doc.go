// Package cache provides a small key-value cache with LRU eviction and
// per-entry TTL.
//
//   - [Cache] stores values as any
//   - [Typed] is the type-safe wrapper returned by [NewTyped]
//   - [LRU] is the in-memory implementation; [NewNop] caches nothing
//
// The price feed uses it to hold quotes for a short time:
//
//	quotes := cache.NewTyped[uint64](cache.NewLRU(cache.LRUOpts{Size: 64}))
//	quotes.Put("ocqBTC", 27_000_000_000, cache.WithTTL(10*time.Second))
//
// Expired entries are evicted lazily on access.
package cache
