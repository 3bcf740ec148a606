package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDestinationIdentity(t *testing.T) {
	assert.Equal(t, Queue("a"), Queue("a"))
	assert.NotEqual(t, Queue("a"), Topic("a"))
	assert.Equal(t, "queue://a", Queue("a").String())
	assert.Equal(t, "topic://b", Topic("b").String())
	assert.True(t, Topic("b").IsTopic())
}

func TestRelayedRoundTrip(t *testing.T) {
	const token = "3f1c9a52-8f59-4d2b-9a4f-6d0f0e2b7c11"
	msg := NewRelayed(token, "hello world")

	assert.Equal(t, token+" hello world", msg.Payload)

	gotToken, text, ok := SplitRelayed(msg.Payload)
	assert.True(t, ok)
	assert.Equal(t, token, gotToken)
	assert.Equal(t, "hello world", text)
}

func TestSplitRelayedRejectsPlainText(t *testing.T) {
	for _, payload := range []string{"", "hello", "hello world", "not-a-uuid rest"} {
		token, text, ok := SplitRelayed(payload)
		assert.False(t, ok, payload)
		assert.Empty(t, token)
		assert.Equal(t, payload, text)
	}
}

func TestNewObservationRecoversToken(t *testing.T) {
	const token = "3f1c9a52-8f59-4d2b-9a4f-6d0f0e2b7c11"
	obs := NewObservation(Topic("t"), Message{Payload: token + " hi"})

	assert.Equal(t, token, obs.CorrelationToken)
	assert.Equal(t, "topic://t", obs.Destination)
	assert.False(t, obs.ReceivedAt.IsZero())
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")
	for _, err := range []error{
		&ConnectionError{URL: "amqp://h", Attempts: 2, Err: cause},
		&SendError{Destination: Queue("q"), Err: cause},
		&ReadError{Source: "f", Err: cause},
		&HandlerError{Destination: Topic("t"), Err: cause},
	} {
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "boom")
	}
}
