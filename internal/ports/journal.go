package ports

import (
	"context"

	"golang-mq-relay/internal/domain"
)

// ObservationJournal stores messages seen by the topic observer.
type ObservationJournal interface {
	// Record persists a single observation.
	Record(ctx context.Context, obs domain.Observation) error

	// Recent returns up to limit observations, newest first.
	Recent(ctx context.Context, limit int) ([]domain.Observation, error)
}
