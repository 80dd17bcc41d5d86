package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/liuck8080/OnchainQuant/core/actor"
)

type ActorFactory func(key string) (actor.Actor, error)

// NewActorHandler serves every key with its own actor. Actors hold state, so
// they are never evicted.
func NewActorHandler(actFactory ActorFactory) ServerHandlerFunc {
	return NewKeyHandlerWithOpts(func(key string) (ServerHandlerFunc, error) {
		// create actor
		act, err := actFactory(key)
		if err != nil {
			return nil, err
		}

		// return handler
		return func(ctx context.Context, env Envelope) (data []byte, err error) {
			meta, err := metaFromEnvelope(env)
			if err != nil {
				return nil, err
			}

			var res any
			res, err = actor.RawRequest(ctx, act, env.Type, meta, env.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to send message to actor: %w", err)
			}

			data, err = json.Marshal(res)
			return
		}, nil
	}, -1)
}

func metaFromEnvelope(env Envelope) (actor.Meta, error) {
	meta := actor.Meta{}
	meta.Source, _ = env.GetHeader(envHeaderSource)
	if h, ok := env.GetHeader(envHeaderHeight); ok {
		v, err := strconv.ParseUint(h, 10, 32)
		if err != nil {
			return actor.Meta{}, fmt.Errorf("invalid %s header %q: %w", envHeaderHeight, h, err)
		}
		meta.Height = uint32(v)
	}
	return meta, nil
}
