package rabbitmq

import (
	"context"
	"log/slog"
	"time"

	"golang-mq-relay/internal/domain"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Producer implements ports.MessagePublisher using RabbitMQ.
type Producer struct {
	sessions       sessionSource
	publishTimeout time.Duration
	log            *slog.Logger
}

// ProducerOption configures the producer
type ProducerOption func(*Producer)

// WithPublishTimeout bounds a publish that carries no deadline of its own.
func WithPublishTimeout(timeout time.Duration) ProducerOption {
	return func(p *Producer) {
		p.publishTimeout = timeout
	}
}

func WithProducerLogger(log *slog.Logger) ProducerOption {
	return func(p *Producer) {
		p.log = log
	}
}

// NewProducer publishes through sessions borrowed from src, usually a *Handle.
func NewProducer(src sessionSource, options ...ProducerOption) *Producer {
	p := &Producer{
		sessions:       src,
		publishTimeout: 10 * time.Second,
		log:            slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Publish sends msg as a persistent text message and waits for the broker
// confirm. Every failure is returned as *domain.SendError.
func (p *Producer) Publish(ctx context.Context, dest domain.Destination, msg domain.Message) error {
	if _, ok := ctx.Deadline(); !ok && p.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.publishTimeout)
		defer cancel()
	}

	s, err := p.sessions.Acquire(ctx)
	if err != nil {
		return &domain.SendError{Destination: dest, Err: err}
	}
	defer p.sessions.Release(s)

	exchange, routingKey := route(dest)
	err = s.Publish(ctx, exchange, routingKey, amqp.Publishing{
		ContentType:   "text/plain",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.NewString(),
		CorrelationId: msg.CorrelationToken,
		Timestamp:     time.Now().UTC(),
		Body:          []byte(msg.Payload),
	})
	if err != nil {
		s.MarkBroken()
		return &domain.SendError{Destination: dest, Err: err}
	}

	p.log.Debug("message published", "destination", dest.String(), "session", s.ID())
	return nil
}
