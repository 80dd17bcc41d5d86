package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/liuck8080/OnchainQuant/internal/reflector"
)

type (
	emptyOut struct{}

	// Reply carries the result of a message handler execution.
	Reply struct {
		Result any   // Handler return value (nil for fire-and-forget)
		Error  error // Handler error, if any
	}

	// Envelope wraps a message for delivery to an actor's mailbox.
	Envelope struct {
		Type  string     // Message type name for handler dispatch
		Data  []byte     // JSON-encoded message payload
		Meta  Meta       // Sender identity, height and message id
		Reply chan Reply // Channel for sending the response; may be nil
	}

	// RawHandler is the low-level interface for handling actor messages.
	// Most users should use [TypedHandlers] instead of implementing this directly.
	RawHandler interface {
		// InitHandler is called once when the actor starts, before processing messages.
		InitHandler(hc HandlerCtx) error
		// HandleMessage processes a message and returns a response.
		HandleMessage(hc HandlerCtx, mt string, data []byte) (any, error)
	}

	// MsgHandlerFunc is the signature for message handler functions.
	MsgHandlerFunc func(hc HandlerCtx, msg any) (any, error)

	// HandlerInitFunc is called during actor initialization.
	HandlerInitFunc func(hc HandlerCtx) error

	// HandlerRegistrar allows registering message handlers with the actor.
	HandlerRegistrar interface {
		Register(msgType string, r Route)
		OnInit(f HandlerInitFunc)
	}

	// HandlerRegistration is a function that registers handlers with a registrar.
	// Create these using [HandleMsg], [HandleRequest], [DefaultHandler], [Init].
	HandlerRegistration func(registrar HandlerRegistrar)

	// Route binds a message type to its payload factory and handler.
	Route struct {
		// New returns a pointer to a fresh payload value. Nil means the raw
		// bytes are passed to Handle unchanged.
		New    func() any
		Handle MsgHandlerFunc
	}
)

func (e Envelope) reply(r Reply) {
	if e.Reply == nil {
		return
	}
	select {
	case e.Reply <- r:
	default:
	}
}

const defaultRoute = "*"

// TypedHandlerRegistry dispatches incoming messages to typed handlers by
// message type.
type TypedHandlerRegistry struct {
	mu     sync.RWMutex
	inits  []HandlerInitFunc
	routes map[string]Route
}

// ToActor creates and starts an actor using this handler registry.
func (t *TypedHandlerRegistry) ToActor(opts Options) *BaseActor {
	return New(opts, t)
}

func (t *TypedHandlerRegistry) Register(msgType string, r Route) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[msgType] = r
}

func (t *TypedHandlerRegistry) OnInit(f HandlerInitFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inits = append(t.inits, f)
}

// InitHandler runs all registered init functions. Called by the actor on startup.
func (t *TypedHandlerRegistry) InitHandler(hc HandlerCtx) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, i := range t.inits {
		if err := i(hc); err != nil {
			return fmt.Errorf("failed to init handler: %w", err)
		}
	}
	return nil
}

// HandleMessage decodes data for the route registered under mt and calls it.
func (t *TypedHandlerRegistry) HandleMessage(hc HandlerCtx, mt string, data []byte) (any, error) {
	t.mu.RLock()
	r, ok := t.routes[mt]
	if !ok {
		r, ok = t.routes[defaultRoute]
	}
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no handler for msg: msg_type=%s", mt)
	}

	if r.New == nil {
		return r.Handle(hc, data)
	}
	msg := r.New()
	if len(data) > 0 {
		if err := json.Unmarshal(data, msg); err != nil {
			return nil, fmt.Errorf("%w: msg_type=%s: %w", ErrDecode, mt, err)
		}
	}
	return r.Handle(hc, msg)
}

// TypedHandlers creates a new handler registry with the given handlers.
func TypedHandlers(handlers ...HandlerRegistration) *TypedHandlerRegistry {
	th := &TypedHandlerRegistry{
		routes: make(map[string]Route),
	}
	for _, h := range handlers {
		h(th)
	}
	return th
}

// DefaultHandler registers a fallback for messages without a specific handler.
// The raw payload bytes are passed to the handler.
func DefaultHandler(h func(HandlerCtx, any) (any, error)) HandlerRegistration {
	return func(registrar HandlerRegistrar) {
		registrar.Register(defaultRoute, Route{Handle: h})
	}
}

// Init registers a function run once when the actor starts.
func Init(initFunc HandlerInitFunc) HandlerRegistration {
	return func(registrar HandlerRegistrar) {
		registrar.OnInit(initFunc)
	}
}

// HandleMsg registers a fire-and-forget message handler for type IN.
func HandleMsg[IN any](msgHandler func(h HandlerCtx, i IN) error) HandlerRegistration {
	return HandleRequest[IN, emptyOut](func(h HandlerCtx, i IN) (*emptyOut, error) {
		return nil, msgHandler(h, i)
	})
}

// HandleRequest registers a request-response handler. The handler receives
// a message of type IN and returns a response of type *OUT.
func HandleRequest[IN any, OUT any](h func(h HandlerCtx, i IN) (*OUT, error)) HandlerRegistration {
	msgType := reflector.NameFor[IN]()
	return func(registrar HandlerRegistrar) {
		registrar.Register(msgType, Route{
			New: func() any { return new(IN) },
			Handle: func(hc HandlerCtx, msg any) (any, error) {
				i, ok := msg.(*IN)
				if !ok {
					return nil, fmt.Errorf("invalid request message type: %T", msg)
				}
				out, err := h(hc, *i)
				if err != nil {
					return nil, err
				}
				return out, nil
			},
		})
	}
}

type requester interface {
	Send(ctx context.Context, msg Envelope) error
	Done() <-chan struct{}
}

// Request sends a request to an actor and waits for the response.
func Request[IN any, OUT any](ctx context.Context, r requester, i IN) (*OUT, error) {
	return RequestMeta[IN, OUT](ctx, r, Meta{}, i)
}

// RequestMeta is [Request] with explicit delivery metadata.
func RequestMeta[IN any, OUT any](ctx context.Context, r requester, meta Meta, i IN) (*OUT, error) {
	data, err := json.Marshal(i)
	if err != nil {
		return nil, err
	}
	res, err := RawRequest(ctx, r, reflector.NameFor[IN](), meta, data)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	out, ok := res.(*OUT)
	if !ok {
		return nil, fmt.Errorf("unexpected reply type %T", res)
	}
	return out, nil
}

// Publish sends a message whose handler returns no value.
func Publish[IN any](ctx context.Context, r requester, i IN) error {
	return PublishMeta(ctx, r, Meta{}, i)
}

// PublishMeta is [Publish] with explicit delivery metadata.
func PublishMeta[IN any](ctx context.Context, r requester, meta Meta, i IN) error {
	_, err := RequestMeta[IN, emptyOut](ctx, r, meta, i)
	return err
}

// RawRequest sends a pre-serialized message to an actor and waits for the response.
func RawRequest(ctx context.Context, r requester, msgType string, meta Meta, data []byte) (any, error) {
	replyChan := make(chan Reply, 1)

	err := r.Send(ctx, Envelope{Type: msgType, Data: data, Meta: meta, Reply: replyChan})
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case reply := <-replyChan:
		return reply.Result, reply.Error
	case <-r.Done():
		// the final reply may have been written just before shutdown
		select {
		case reply := <-replyChan:
			return reply.Result, reply.Error
		default:
			return nil, ErrStopped
		}
	}
}
