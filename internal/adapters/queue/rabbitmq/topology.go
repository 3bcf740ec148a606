package rabbitmq

import (
	"context"
	"fmt"

	"golang-mq-relay/internal/domain"
)

const topicExchangeKind = "fanout"

// sessionSource is satisfied by *Handle and *SessionPool.
type sessionSource interface {
	Acquire(ctx context.Context) (*Session, error)
	Release(s *Session)
}

// route maps a destination onto an exchange and routing key. Queues sit on
// the default exchange; a topic is a fanout exchange of the same name.
func route(dest domain.Destination) (exchange, routingKey string) {
	if dest.IsTopic() {
		return dest.Name, ""
	}
	return "", dest.Name
}

// DeclareDestination idempotently declares the broker object behind dest.
func DeclareDestination(ch Channel, dest domain.Destination) error {
	if dest.IsTopic() {
		if err := ch.ExchangeDeclare(dest.Name, topicExchangeKind); err != nil {
			return fmt.Errorf("declare exchange %s: %w", dest.Name, err)
		}
		return nil
	}
	if _, err := ch.QueueDeclare(dest.Name, true, false); err != nil {
		return fmt.Errorf("declare queue %s: %w", dest.Name, err)
	}
	return nil
}

// DeclareSubscription returns the queue a listener on dest consumes from.
// Topic listeners get their own exclusive queue bound to the exchange, so
// every listener receives a copy; queue listeners share the named queue.
func DeclareSubscription(ch Channel, dest domain.Destination) (string, error) {
	if err := DeclareDestination(ch, dest); err != nil {
		return "", err
	}
	if !dest.IsTopic() {
		return dest.Name, nil
	}

	queue, err := ch.QueueDeclare("", false, true)
	if err != nil {
		return "", fmt.Errorf("declare subscription queue for %s: %w", dest, err)
	}
	if err := ch.QueueBind(queue, dest.Name); err != nil {
		return "", fmt.Errorf("bind %s to %s: %w", queue, dest, err)
	}
	return queue, nil
}

// Declare declares every destination on one pooled session.
func Declare(ctx context.Context, src sessionSource, dests ...domain.Destination) error {
	s, err := src.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("declare topology: %w", err)
	}
	defer src.Release(s)

	for _, dest := range dests {
		if err := DeclareDestination(s, dest); err != nil {
			// the broker closes a channel on a failed declare
			s.MarkBroken()
			return err
		}
	}
	return nil
}
