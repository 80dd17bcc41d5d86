package cluster

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/liuck8080/OnchainQuant/internal/reflector"
)

const (
	reservedHeaderPrefix = "x-quant-"

	envHeaderKey    = "x-quant-key"
	envHeaderSource = "x-quant-source"
	envHeaderHeight = "x-quant-height"
)

// allowedReserved are the reserved headers a caller may set through the
// exported options.
var allowedReserved = map[string]bool{
	envHeaderKey:    true,
	envHeaderSource: true,
	envHeaderHeight: true,
}

type EnvelopeOption func(*Envelope)

func WithHeader(key, value string) EnvelopeOption {
	return func(e *Envelope) {
		if e.Headers == nil {
			e.Headers = make(map[string]string)
		}
		e.Headers[key] = value
	}
}

// WithTTL bounds how long the envelope may wait before it is handled.
func WithTTL(ttl time.Duration) EnvelopeOption {
	return func(e *Envelope) {
		e.TTLMs = ttl.Milliseconds()
	}
}

// WithSource names the identity on whose behalf the request is sent.
func WithSource(source string) EnvelopeOption {
	return WithHeader(envHeaderSource, source)
}

// WithHeight stamps the block height the request was issued at.
func WithHeight(height uint32) EnvelopeOption {
	return WithHeader(envHeaderHeight, strconv.FormatUint(uint64(height), 10))
}

type Envelope struct {
	Shard       int               `json:"shard"`
	Type        string            `json:"type"`
	Data        []byte            `json:"data"`
	ReplyTo     string            `json:"reply_to,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	TTLMs       int64             `json:"ttl_ms,omitempty"`
	CreatedAtMs int64             `json:"created_at_ms,omitempty"`
}

func (e Envelope) GetHeader(key string) (string, bool) {
	if e.Headers == nil {
		return "", false
	}
	v, ok := e.Headers[key]
	return v, ok
}

// Expired reports whether both TTL and creation time are set and the TTL has
// elapsed.
func (e Envelope) Expired() bool {
	if e.TTLMs <= 0 || e.CreatedAtMs <= 0 {
		return false
	}
	return time.Now().UnixMilli() > e.CreatedAtMs+e.TTLMs
}

// TTL returns the time left before the envelope expires, or 0 when it has no
// TTL or already expired.
func (e Envelope) TTL() time.Duration {
	if e.TTLMs <= 0 || e.CreatedAtMs <= 0 {
		return 0
	}
	left := e.CreatedAtMs + e.TTLMs - time.Now().UnixMilli()
	if left <= 0 {
		return 0
	}
	return time.Duration(left) * time.Millisecond
}

// Validate rejects headers in the reserved namespace other than the ones the
// package sets itself.
func (e Envelope) Validate() error {
	for k := range e.Headers {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, reservedHeaderPrefix) && !allowedReserved[lk] {
			return fmt.Errorf("%w: %s", ErrReservedHeader, k)
		}
	}
	return nil
}

func getMessageType(v any) string {
	return reflector.NameOf(v)
}
