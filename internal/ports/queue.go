package ports

import (
	"context"

	"golang-mq-relay/internal/domain"
)

// MessagePublisher publishes messages to a broker destination.
type MessagePublisher interface {
	// Publish sends msg to dest and returns once the broker has confirmed it.
	// Failures are returned as *domain.SendError.
	Publish(ctx context.Context, dest domain.Destination, msg domain.Message) error
}

// Handler processes one delivered message. A returned error is logged by the
// caller and never causes redelivery.
type Handler func(ctx context.Context, msg domain.Message) error

// ListenerState is the lifecycle of a Listener.
type ListenerState int32

const (
	ListenerStopped ListenerState = iota
	ListenerStarting
	ListenerListening
	ListenerStopping
)

func (s ListenerState) String() string {
	switch s {
	case ListenerStarting:
		return "starting"
	case ListenerListening:
		return "listening"
	case ListenerStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// Listener delivers messages from one destination to one handler.
type Listener interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() ListenerState
	Destination() domain.Destination
}

// ListenerFactory builds the listener for a (destination, handler) route.
type ListenerFactory func(dest domain.Destination, handler Handler) Listener
