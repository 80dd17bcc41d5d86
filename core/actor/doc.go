// Package actor provides the mailbox actor runtime the controller runs on.
//
// Each actor owns one goroutine that takes envelopes from its mailbox and
// runs the matching handler to completion before looking at the next one.
// State touched only from handlers therefore needs no locking.
//
// # Creating Actors
//
//	a := actor.TypedHandlers(
//	    actor.HandleMsg[StopCmd](func(hc actor.HandlerCtx, cmd StopCmd) error {
//	        return nil
//	    }),
//	    actor.HandleRequest[StateQuery, StateView](func(hc actor.HandlerCtx, q StateQuery) (*StateView, error) {
//	        return &StateView{}, nil
//	    }),
//	).ToActor(actor.Options{ID: "quant-1"})
//
// Messages are routed by type name: a type's MsgType() method when present,
// otherwise its fully qualified Go name. Payloads are JSON.
//
// # Metadata
//
// Every envelope carries a [Meta]: the sending identity, the block height at
// delivery and the host message id. Handlers read it through
// [HandlerCtx.Meta]; this is how a handler learns who called it and when.
//
// # Sending Messages
//
//	view, err := actor.Request[StateQuery, StateView](ctx, a, StateQuery{})
//	err = actor.PublishMeta(ctx, a, actor.Meta{Source: "owner", Height: 12}, StopCmd{})
//
// # Exit
//
// A handler that returns an error wrapping [ErrExit] ends the actor: the
// sender receives [ErrExited] instead of a reply and the mailbox is closed.
//
// # Lifecycle
//
// An actor stops when Stop is called, when its context ends or when a handler
// exits. Envelopes still queued at that point are answered with [ErrStopped];
// Done is closed once the loop has returned.
package actor
