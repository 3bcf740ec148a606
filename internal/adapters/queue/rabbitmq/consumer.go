package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang-mq-relay/internal/domain"
	"golang-mq-relay/internal/ports"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ListenerContainer subscribes one handler to one destination. Messages are
// auto-acknowledged on delivery, so a failing handler never causes redelivery.
// The handler runs on a single delivery goroutine, one message at a time.
type ListenerContainer struct {
	sessions    sessionSource
	dest        domain.Destination
	handler     ports.Handler
	consumerTag string
	log         *slog.Logger

	state atomic.Int32

	mu       sync.Mutex
	starting chan struct{} // closed when the current Start returns
	session  *Session
	cancel   context.CancelFunc
	done     chan struct{}
}

// ContainerOption configures the listener container
type ContainerOption func(*ListenerContainer)

func WithContainerLogger(log *slog.Logger) ContainerOption {
	return func(c *ListenerContainer) {
		c.log = log
	}
}

func WithConsumerTag(tag string) ContainerOption {
	return func(c *ListenerContainer) {
		c.consumerTag = tag
	}
}

func NewListenerContainer(src sessionSource, dest domain.Destination, handler ports.Handler, options ...ContainerOption) *ListenerContainer {
	c := &ListenerContainer{
		sessions:    src,
		dest:        dest,
		handler:     handler,
		consumerTag: "mq-relay-" + uuid.NewString(),
		log:         slog.Default(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// Factory adapts the container constructor to ports.ListenerFactory.
func Factory(src sessionSource, options ...ContainerOption) ports.ListenerFactory {
	return func(dest domain.Destination, handler ports.Handler) ports.Listener {
		return NewListenerContainer(src, dest, handler, options...)
	}
}

func (c *ListenerContainer) Destination() domain.Destination { return c.dest }

func (c *ListenerContainer) State() ports.ListenerState {
	return ports.ListenerState(c.state.Load())
}

// Done is closed when the delivery goroutine exits. Nil before the first Start.
func (c *ListenerContainer) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Start subscribes and begins delivering. The subscription outlives ctx;
// ctx only bounds the session acquisition.
func (c *ListenerContainer) Start(ctx context.Context) error {
	c.mu.Lock()
	if !c.state.CompareAndSwap(int32(ports.ListenerStopped), int32(ports.ListenerStarting)) {
		c.mu.Unlock()
		return domain.ErrContainerRunning
	}
	starting := make(chan struct{})
	c.starting = starting
	c.mu.Unlock()
	defer close(starting)

	s, err := c.sessions.Acquire(ctx)
	if err != nil {
		c.state.Store(int32(ports.ListenerStopped))
		return fmt.Errorf("start listener on %s: %w", c.dest, err)
	}

	queue, err := DeclareSubscription(s, c.dest)
	if err != nil {
		c.abortStart(s)
		return fmt.Errorf("start listener on %s: %w", c.dest, err)
	}

	deliveries, err := s.Consume(queue, c.consumerTag)
	if err != nil {
		c.abortStart(s)
		return fmt.Errorf("start listener on %s: consume: %w", c.dest, err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	c.mu.Lock()
	c.session = s
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.state.Store(int32(ports.ListenerListening))
	go c.loop(loopCtx, cancel, deliveries, done)

	c.log.Info("listener started",
		"destination", c.dest.String(),
		"queue", queue,
		"consumer_tag", c.consumerTag,
	)
	return nil
}

func (c *ListenerContainer) abortStart(s *Session) {
	s.MarkBroken()
	c.sessions.Release(s)
	c.state.Store(int32(ports.ListenerStopped))
}

// Stop cancels the subscription, lets already received deliveries drain and
// waits for the delivery goroutine. Stopping a stopped container is a no-op.
// A Start in progress is waited for first, so Stop never returns while the
// container is still on its way to listening.
func (c *ListenerContainer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.State() == ports.ListenerStarting {
		starting := c.starting
		c.mu.Unlock()
		select {
		case <-starting:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
	}
	s, cancel, done := c.session, c.cancel, c.done
	c.mu.Unlock()

	if !c.state.CompareAndSwap(int32(ports.ListenerListening), int32(ports.ListenerStopping)) {
		if c.State() == ports.ListenerStopping && done != nil {
			return c.wait(ctx, done, cancel)
		}
		return nil
	}

	if s == nil {
		return c.wait(ctx, done, cancel)
	}
	if err := s.Cancel(c.consumerTag); err != nil {
		c.log.Warn("cancel consumer", "destination", c.dest.String(), "err", err)
		cancel()
	}
	return c.wait(ctx, done, cancel)
}

func (c *ListenerContainer) wait(ctx context.Context, done chan struct{}, cancel context.CancelFunc) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

func (c *ListenerContainer) loop(ctx context.Context, cancel context.CancelFunc, deliveries <-chan amqp.Delivery, done chan struct{}) {
	defer func() {
		c.state.CompareAndSwap(int32(ports.ListenerListening), int32(ports.ListenerStopping))

		c.mu.Lock()
		s := c.session
		c.session = nil
		c.mu.Unlock()

		// the subscription queue of a topic dies with its consumer
		s.MarkBroken()
		c.sessions.Release(s)
		cancel()

		c.state.Store(int32(ports.ListenerStopped))
		close(done)
		c.log.Info("listener stopped", "destination", c.dest.String())
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case d, ok := <-deliveries:
			if !ok {
				if c.State() == ports.ListenerListening {
					c.log.Warn("delivery channel closed", "destination", c.dest.String())
				}
				return
			}
			c.deliver(ctx, d)
		}
	}
}

// deliver runs the handler once. Errors and panics are logged and dropped.
func (c *ListenerContainer) deliver(ctx context.Context, d amqp.Delivery) {
	msg := domain.Message{
		Payload:          string(d.Body),
		CorrelationToken: d.CorrelationId,
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("handler panicked",
				"destination", c.dest.String(),
				"message_id", d.MessageId,
				"err", &domain.HandlerError{Destination: c.dest, Err: fmt.Errorf("panic: %v", r)},
			)
		}
	}()

	if err := c.handler(ctx, msg); err != nil {
		c.log.Error("handler failed",
			"destination", c.dest.String(),
			"message_id", d.MessageId,
			"err", &domain.HandlerError{Destination: c.dest, Err: err},
		)
	}
}
