package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

var (
	// ErrStopped is returned for sends to an actor that has shut down.
	ErrStopped = errors.New("actor stopped")
	// ErrExit is returned by a handler to end the actor after the current message.
	ErrExit = errors.New("actor exit requested")
	// ErrExited is what the sender of the exiting message receives.
	ErrExited = errors.New("actor exited")
	// ErrDecode wraps payload decoding failures; the handler is never invoked.
	ErrDecode = errors.New("decode message")
	// ErrPanic wraps a recovered handler panic.
	ErrPanic = errors.New("handler panicked")
)

type (
	OnPanic func(recovered any, stack []byte, env Envelope)

	Actor interface {
		Send(ctx context.Context, msg Envelope) error
		Done() <-chan struct{}
	}
)

type Options struct {
	// ID labels logs and metrics.
	ID          string
	MailboxSize int
	Context     context.Context
	Logger      *slog.Logger
	OnPanic     OnPanic
	Metrics     ActorMetrics
}

// BaseActor processes its mailbox on a single goroutine, one envelope at a
// time. Handlers never run concurrently, so state they close over needs no
// locking.
type BaseActor struct {
	id      string
	ctx     context.Context
	log     *slog.Logger
	metrics ActorMetrics
	onPanic OnPanic

	mailbox chan Envelope
	stop    chan struct{}
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

func New(opt Options, handler RawHandler) *BaseActor {
	if opt.MailboxSize == 0 {
		opt.MailboxSize = 1024
	}
	if opt.Context == nil {
		opt.Context = context.Background()
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Metrics == nil {
		opt.Metrics = NopActorMetrics()
	}
	log := opt.Logger
	if opt.ID != "" {
		log = log.With(slog.String("actor", opt.ID))
	}
	if opt.OnPanic == nil {
		opt.OnPanic = func(recovered any, stack []byte, env Envelope) {
			log.Error("actor panicked", slog.Any("recovered", recovered), slog.String("stack", string(stack)), slog.String("msg_type", env.Type))
		}
	}

	a := &BaseActor{
		id:      opt.ID,
		ctx:     opt.Context,
		log:     log,
		metrics: opt.Metrics,
		onPanic: opt.OnPanic,
		mailbox: make(chan Envelope, opt.MailboxSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go a.loop(handler)
	return a
}

// Done is closed when the actor stops.
func (a *BaseActor) Done() <-chan struct{} { return a.done }

// Stop ends the loop after the current message and waits for it. Envelopes
// still queued are answered with [ErrStopped].
func (a *BaseActor) Stop() {
	a.shutdown()
	<-a.done
}

// Send enqueues a message (blocking until enqueued, ctx canceled, or actor stopped).
func (a *BaseActor) Send(ctx context.Context, e Envelope) error {
	if a.isClosed() {
		return ErrStopped
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("send failed: %w", ctx.Err())
	case <-a.stop:
		return ErrStopped
	case a.mailbox <- e:
		a.metrics.MailboxDepth(a.id, len(a.mailbox))
		return nil
	}
}

// ---- internals ----

func (a *BaseActor) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// markClosed flips the closed flag and reports whether this call did it.
func (a *BaseActor) markClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	a.closed = true
	return true
}

// shutdown closes the actor to new sends. Safe to call more than once.
func (a *BaseActor) shutdown() {
	if a.markClosed() {
		close(a.stop)
	}
}

// drain answers every queued envelope with ErrStopped.
func (a *BaseActor) drain() {
	for {
		select {
		case env := <-a.mailbox:
			env.reply(Reply{Error: ErrStopped})
		default:
			return
		}
	}
}

func (a *BaseActor) handle(h RawHandler, env Envelope) (res any, err error) {
	defer a.metrics.MessageDuration(env.Type).ObserveDuration()
	defer func() {
		if r := recover(); r != nil {
			a.metrics.MessagePanic(env.Type)
			a.onPanic(r, debug.Stack(), env)
			res, err = nil, fmt.Errorf("%w: %v", ErrPanic, r)
		}
		a.metrics.MessageProcessed(env.Type, err == nil)
	}()

	hc := &handlerCtx{Context: a.ctx, log: a.log, meta: env.Meta}
	return h.HandleMessage(hc, env.Type, env.Data)
}

func (a *BaseActor) loop(h RawHandler) {
	defer close(a.done)
	defer a.drain()

	hc := &handlerCtx{Context: a.ctx, log: a.log}
	if err := h.InitHandler(hc); err != nil {
		a.log.Error("actor init failed", slog.Any("error", err))
		a.shutdown()
		return
	}

	for {
		// stop wins over queued work
		select {
		case <-a.stop:
			return
		case <-a.ctx.Done():
			a.shutdown()
			return
		default:
		}

		select {
		case <-a.stop:
			return
		case <-a.ctx.Done():
			a.shutdown()
			return
		case env := <-a.mailbox:
			res, err := a.handle(h, env)
			if errors.Is(err, ErrExit) {
				a.log.Info("actor exiting", slog.String("msg_type", env.Type))
				env.reply(Reply{Error: ErrExited})
				a.shutdown()
				return
			}
			env.reply(Reply{Result: res, Error: err})
		}
	}
}
