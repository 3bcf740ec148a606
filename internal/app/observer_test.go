package app

import (
	"context"
	"errors"
	"testing"

	"golang-mq-relay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserverWithoutJournal(t *testing.T) {
	obs := NewObserver(domain.Topic("mq.topic"), nil, quietLogger())
	assert.NoError(t, obs.Handle(context.Background(), domain.NewMessage("anything")))
}

func TestObserverRecordsToJournal(t *testing.T) {
	journal := &fakeJournal{}
	obs := NewObserver(domain.Topic("mq.topic"), journal, quietLogger())
	token := "0f8fad5b-d9cb-469f-a165-70867728950e"

	require.NoError(t, obs.Handle(context.Background(), domain.Message{Payload: token + " hi"}))
	require.NoError(t, obs.Handle(context.Background(), domain.NewMessage("plain")))

	require.Len(t, journal.obs, 2)
	assert.Equal(t, "topic://mq.topic", journal.obs[0].Destination)
	assert.Equal(t, token, journal.obs[0].CorrelationToken)
	assert.Equal(t, token+" hi", journal.obs[0].Payload)
	assert.Empty(t, journal.obs[1].CorrelationToken)
}

func TestObserverSurfacesJournalFailure(t *testing.T) {
	journal := &fakeJournal{fail: errors.New("db down")}
	obs := NewObserver(domain.Topic("mq.topic"), journal, quietLogger())

	err := obs.Handle(context.Background(), domain.NewMessage("x"))
	assert.ErrorContains(t, err, "db down")
}
