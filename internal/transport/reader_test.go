package transport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"golang-mq-relay/internal/domain"
	"golang-mq-relay/internal/ports"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubListener struct {
	dest  domain.Destination
	state ports.ListenerState
}

func (l stubListener) Start(context.Context) error      { return nil }
func (l stubListener) Stop(context.Context) error       { return nil }
func (l stubListener) State() ports.ListenerState       { return l.state }
func (l stubListener) Destination() domain.Destination { return l.dest }

type stubJournal struct {
	obs   []domain.Observation
	err   error
	limit int
}

func (j *stubJournal) Record(context.Context, domain.Observation) error { return nil }

func (j *stubJournal) Recent(_ context.Context, limit int) ([]domain.Observation, error) {
	j.limit = limit
	return j.obs, j.err
}

func readerApp(listeners []ports.Listener, journal ports.ObservationJournal) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	NewReaderHandler(func() []ports.Listener { return listeners }, journal, quietLogger()).Register(app)
	return app
}

func TestReaderHealth(t *testing.T) {
	listeners := []ports.Listener{
		stubListener{dest: domain.Queue("mq.queue"), state: ports.ListenerListening},
		stubListener{dest: domain.Topic("mq.topic"), state: ports.ListenerListening},
	}
	code, body := do(t, readerApp(listeners, nil), "GET", "/health", "")

	assert.Equal(t, fiber.StatusOK, code)
	assert.JSONEq(t, `{"status":"healthy","listeners":{"queue://mq.queue":"listening","topic://mq.topic":"listening"}}`, body)
}

func TestReaderHealthStoppedListener(t *testing.T) {
	listeners := []ports.Listener{
		stubListener{dest: domain.Queue("mq.queue"), state: ports.ListenerListening},
		stubListener{dest: domain.Topic("mq.topic"), state: ports.ListenerStopped},
	}
	code, body := do(t, readerApp(listeners, nil), "GET", "/health", "")

	assert.Equal(t, fiber.StatusServiceUnavailable, code)
	assert.Contains(t, body, `"topic://mq.topic":"stopped"`)
}

func TestObservationsWithoutJournal(t *testing.T) {
	code, _ := do(t, readerApp(nil, nil), "GET", "/observations", "")
	assert.Equal(t, fiber.StatusNotFound, code)
}

func TestObservationsList(t *testing.T) {
	obs := domain.Observation{
		ID:               uuid.New(),
		Destination:      "topic://mq.topic",
		CorrelationToken: "3f1c9a52-8f59-4d2b-9a4f-6d0f0e2b7c11",
		Payload:          "3f1c9a52-8f59-4d2b-9a4f-6d0f0e2b7c11 hello",
		ReceivedAt:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	journal := &stubJournal{obs: []domain.Observation{obs}}

	code, body := do(t, readerApp(nil, journal), "GET", "/observations?limit=5", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, 5, journal.limit)

	var got []observationResponse
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	require.Len(t, got, 1)
	assert.Equal(t, obs.ID.String(), got[0].ID)
	assert.Equal(t, obs.CorrelationToken, got[0].CorrelationToken)
	assert.True(t, obs.ReceivedAt.Equal(got[0].ReceivedAt))
}

func TestObservationsDefaultLimit(t *testing.T) {
	journal := &stubJournal{}
	code, body := do(t, readerApp(nil, journal), "GET", "/observations", "")

	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "[]", body)
	assert.Equal(t, defaultObservationLimit, journal.limit)
}

func TestObservationsBadLimit(t *testing.T) {
	code, _ := do(t, readerApp(nil, &stubJournal{}), "GET", "/observations?limit=9999", "")
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestObservationsJournalFailure(t *testing.T) {
	code, _ := do(t, readerApp(nil, &stubJournal{err: errors.New("db down")}), "GET", "/observations", "")
	assert.Equal(t, fiber.StatusInternalServerError, code)
}
