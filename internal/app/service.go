package app

import (
	"context"
	"log/slog"

	"golang-mq-relay/internal/domain"
	"golang-mq-relay/internal/ports"
)

// SendService publishes single messages on behalf of the HTTP layer.
type SendService struct {
	publisher ports.MessagePublisher
	topic     domain.Destination
	queue     domain.Destination
	log       *slog.Logger
}

// NewSendService wires the service with its dependencies.
func NewSendService(publisher ports.MessagePublisher, topic, queue domain.Destination, log *slog.Logger) *SendService {
	return &SendService{
		publisher: publisher,
		topic:     topic,
		queue:     queue,
		log:       log,
	}
}

// SendTopic publishes body to the topic and returns once the broker confirmed it.
func (s *SendService) SendTopic(ctx context.Context, body string) error {
	return s.send(ctx, s.topic, body)
}

// SendQueue publishes body to the queue and returns once the broker confirmed it.
func (s *SendService) SendQueue(ctx context.Context, body string) error {
	return s.send(ctx, s.queue, body)
}

func (s *SendService) send(ctx context.Context, dest domain.Destination, body string) error {
	if err := s.publisher.Publish(ctx, dest, domain.NewMessage(body)); err != nil {
		s.log.Debug("send failed", "destination", dest.String(), "err", err)
		return err
	}
	return nil
}
