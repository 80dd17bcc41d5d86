package cache

import "time"

// Cache stores untyped values by key. Implementations are safe for
// concurrent use.
type Cache interface {
	Get(key string) (any, bool)
	Put(key string, val any, opts ...PutOption)
	Delete(key string)
}

type PutOptions struct {
	// TTL bounds the life of the entry. Zero keeps it until evicted.
	TTL time.Duration
}

type PutOption func(*PutOptions)

func WithTTL(ttl time.Duration) PutOption {
	return func(o *PutOptions) { o.TTL = ttl }
}

// Typed narrows a [Cache] to values of T. An entry holding another type
// reads as missing.
type Typed[T any] struct {
	c Cache
}

func NewTyped[T any](c Cache) Typed[T] { return Typed[T]{c: c} }

func (t Typed[T]) Get(key string) (T, bool) {
	var zero T
	v, ok := t.c.Get(key)
	if !ok {
		return zero, false
	}
	out, ok := v.(T)
	if !ok {
		return zero, false
	}
	return out, true
}

func (t Typed[T]) Put(key string, val T, opts ...PutOption) { t.c.Put(key, val, opts...) }

func (t Typed[T]) Delete(key string) { t.c.Delete(key) }
