package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang-mq-relay/internal/domain"
	"golang-mq-relay/internal/ports"
)

// Observer records topic messages. It logs every payload and, when a
// journal is configured, stores it there too.
type Observer struct {
	dest    domain.Destination
	journal ports.ObservationJournal
	log     *slog.Logger
}

// NewObserver accepts a nil journal.
func NewObserver(dest domain.Destination, journal ports.ObservationJournal, log *slog.Logger) *Observer {
	return &Observer{dest: dest, journal: journal, log: log}
}

func (o *Observer) Handle(ctx context.Context, msg domain.Message) error {
	obs := domain.NewObservation(o.dest, msg)
	o.log.Info("message observed",
		"destination", obs.Destination,
		"correlation_token", obs.CorrelationToken,
		"payload", msg.Payload,
	)

	if o.journal == nil {
		return nil
	}
	if err := o.journal.Record(ctx, obs); err != nil {
		return fmt.Errorf("record observation: %w", err)
	}
	return nil
}
