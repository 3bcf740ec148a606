package app

import (
	"context"
	"log/slog"

	"golang-mq-relay/internal/domain"
	"golang-mq-relay/internal/ports"

	"github.com/google/uuid"
)

// RelayHandler forwards queue messages to the topic, prefixed with a fresh
// correlation token. It never retries.
type RelayHandler struct {
	publisher ports.MessagePublisher
	topic     domain.Destination
	newToken  func() string
	log       *slog.Logger
}

func NewRelayHandler(publisher ports.MessagePublisher, topic domain.Destination, log *slog.Logger) *RelayHandler {
	return &RelayHandler{
		publisher: publisher,
		topic:     topic,
		newToken:  uuid.NewString,
		log:       log,
	}
}

// Handle publishes "<token> <payload>" to the topic. A failed publish is
// logged and returned; the source message stays consumed.
func (h *RelayHandler) Handle(ctx context.Context, msg domain.Message) error {
	h.log.Debug("queue message received", "payload", msg.Payload)

	out := domain.NewRelayed(h.newToken(), msg.Payload)
	if err := h.publisher.Publish(ctx, h.topic, out); err != nil {
		h.log.Error("relay to topic failed",
			"destination", h.topic.String(),
			"correlation_token", out.CorrelationToken,
			"err", err,
		)
		return err
	}

	h.log.Debug("message relayed",
		"destination", h.topic.String(),
		"correlation_token", out.CorrelationToken,
	)
	return nil
}
