package token

import (
	"context"
	"time"

	"github.com/liuck8080/OnchainQuant/core/cluster"
)

type ClientOptions struct {
	// TTL is attached to every request envelope. Zero disables it.
	TTL time.Duration
}

// Client queries token services through the cluster.
type Client struct {
	c   *cluster.Client
	ttl time.Duration
}

func NewClient(c *cluster.Client, opts ...ClientOptions) *Client {
	var o ClientOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	return &Client{c: c, ttl: o.TTL}
}

func (c *Client) envelopeOptions() []cluster.EnvelopeOption {
	if c.ttl <= 0 {
		return nil
	}
	return []cluster.EnvelopeOption{cluster.WithTTL(c.ttl)}
}

// BalanceOf returns the balance account holds in the token served under
// target.
func (c *Client) BalanceOf(ctx context.Context, target, account string) (uint64, error) {
	res, err := cluster.Call[BalanceOf, Balance](ctx, c.c.Key(target), BalanceOf{Account: account}, c.envelopeOptions()...)
	if err != nil {
		return 0, err
	}
	return res.Amount, nil
}

// Mint credits amount to account and returns the new balance.
func (c *Client) Mint(ctx context.Context, target, account string, amount uint64) (uint64, error) {
	res, err := cluster.Call[Mint, Balance](ctx, c.c.Key(target), Mint{Account: account, Amount: amount}, c.envelopeOptions()...)
	if err != nil {
		return 0, err
	}
	return res.Amount, nil
}
