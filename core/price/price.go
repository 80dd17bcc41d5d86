// Package price provides the quote capability the controller consults at the
// start of every action round.
//
// Quotes are unsigned fixed-point values with an implicit 1e-6 scale, the
// same scale as the controller's investment ratio.
package price

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownSymbol is returned for symbols the feed has no quote for.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Feed looks up the current quote for a symbol.
type Feed interface {
	Quote(ctx context.Context, symbol string) (uint64, error)
}

// FeedFunc adapts a function to [Feed].
type FeedFunc func(ctx context.Context, symbol string) (uint64, error)

func (f FeedFunc) Quote(ctx context.Context, symbol string) (uint64, error) { return f(ctx, symbol) }

// Static is a feed backed by a fixed table that can be updated at runtime.
type Static struct {
	mu     sync.RWMutex
	quotes map[string]uint64
}

func NewStatic(quotes map[string]uint64) *Static {
	s := &Static{quotes: make(map[string]uint64, len(quotes))}
	for k, v := range quotes {
		s.quotes[k] = v
	}
	return s
}

func (s *Static) Quote(ctx context.Context, symbol string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.quotes[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return v, nil
}

// Set replaces the quote for symbol.
func (s *Static) Set(symbol string, quote uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[symbol] = quote
}

var (
	_ Feed = (*Static)(nil)
	_ Feed = FeedFunc(nil)
)
