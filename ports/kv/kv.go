// Package kv is the storage port for controller snapshots. Implementations
// live in this package (memory) and in adapters/nats (JetStream KV).
package kv

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/liuck8080/OnchainQuant/internal/codec"
)

var (
	ErrNotFound = errors.New("not found")
)

type Entry struct {
	Data []byte
	Meta map[string]any
}

type PutOptions struct {
	TTL time.Duration
}

type Store interface {
	Put(ctx context.Context, key string, entry Entry, opts PutOptions) error
	Get(ctx context.Context, key string) (entry Entry, err error)
	Delete(ctx context.Context, key string) error
}

// Key joins key segments with ".", the separator every backend accepts
// (JetStream KV keys must not contain "/" or ":").
func Key(parts ...string) string { return strings.Join(parts, ".") }

func Put[T any](ctx context.Context, store Store, key string, v T, opts PutOptions) error {
	data, err := codec.JSON{}.Marshal(v)
	if err != nil {
		return err
	}
	return store.Put(ctx, key, Entry{Data: data}, opts)
}

func Get[T any](ctx context.Context, store Store, key string) (out T, err error) {
	entry, err := store.Get(ctx, key)
	if err != nil {
		return out, err
	}
	return codec.Decode[T](codec.JSON{}, entry.Data)
}
