package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/liuck8080/OnchainQuant/ports/kv"
)

type KvConfig struct {
	Connect Connector
	Bucket  string
	// TTL is the bucket-wide history limit. Zero keeps entries forever.
	TTL time.Duration
	// Timeout bounds every operation. Defaults to 5s.
	Timeout time.Duration
}

// KvStore is a [kv.Store] backed by a JetStream key-value bucket.
type KvStore struct {
	kv      jetstream.KeyValue
	timeout time.Duration
	now     func() time.Time
}

// kvRecord is the value written to the bucket. Per-entry expiry is kept
// alongside the data since bucket TTL applies to every key.
type kvRecord struct {
	Data      []byte         `json:"data"`
	Meta      map[string]any `json:"meta,omitempty"`
	ExpiresAt int64          `json:"expires_at,omitempty"`
}

func NewKvStore(ctx context.Context, cfg KvConfig) (*KvStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = Connect(ConnectOptions{})
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	nc, _, err := doConnect()
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, err
	}

	kvb, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   cfg.Bucket,
		Storage:  jetstream.FileStorage,
		TTL:      cfg.TTL,
		MaxBytes: 64 * 1024 * 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
	}

	return &KvStore{kv: kvb, timeout: timeout, now: time.Now}, nil
}

func (k *KvStore) Put(ctx context.Context, key string, entry kv.Entry, opts kv.PutOptions) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	rec := kvRecord{Data: entry.Data, Meta: entry.Meta}
	if opts.TTL > 0 {
		rec.ExpiresAt = k.now().Add(opts.TTL).UnixMilli()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	if _, err := k.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (k *KvStore) Get(ctx context.Context, key string) (kv.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	v, err := k.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return kv.Entry{}, kv.ErrNotFound
		}
		return kv.Entry{}, fmt.Errorf("get %s: %w", key, err)
	}

	var rec kvRecord
	if err := json.Unmarshal(v.Value(), &rec); err != nil {
		return kv.Entry{}, fmt.Errorf("decode %s: %w", key, err)
	}
	if rec.ExpiresAt > 0 && k.now().UnixMilli() >= rec.ExpiresAt {
		return kv.Entry{}, kv.ErrNotFound
	}
	return kv.Entry{Data: rec.Data, Meta: rec.Meta}, nil
}

func (k *KvStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	if err := k.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

var _ kv.Store = (*KvStore)(nil)
