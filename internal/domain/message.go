package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes point-to-point destinations from broadcast ones.
type Kind string

const (
	KindQueue Kind = "queue" // Exactly one active consumer receives each message
	KindTopic Kind = "topic" // Every active subscriber receives a copy
)

// Destination is an addressable broker target. Two destinations are the same
// destination when both Kind and Name match.
type Destination struct {
	Kind Kind
	Name string
}

// Queue returns a point-to-point destination.
func Queue(name string) Destination {
	return Destination{Kind: KindQueue, Name: name}
}

// Topic returns a broadcast destination.
func Topic(name string) Destination {
	return Destination{Kind: KindTopic, Name: name}
}

func (d Destination) IsTopic() bool { return d.Kind == KindTopic }

func (d Destination) String() string {
	return string(d.Kind) + "://" + d.Name
}

// Message is a text payload travelling through the broker.
// CorrelationToken is empty for messages that were not forwarded by the relay.
type Message struct {
	Payload          string
	CorrelationToken string
}

// NewMessage wraps a raw text payload.
func NewMessage(payload string) Message {
	return Message{Payload: payload}
}

// NewRelayed builds the forwarded form of payload: "<token> <payload>".
func NewRelayed(token, payload string) Message {
	return Message{
		Payload:          token + " " + payload,
		CorrelationToken: token,
	}
}

// SplitRelayed recovers the token and original text from a forwarded payload.
// ok is false when the payload does not start with a UUID followed by a space.
func SplitRelayed(payload string) (token, text string, ok bool) {
	head, rest, found := strings.Cut(payload, " ")
	if !found {
		return "", payload, false
	}
	if _, err := uuid.Parse(head); err != nil {
		return "", payload, false
	}
	return head, rest, true
}

// DispatchJob is one bulk-send request: an ordered batch bound for a single destination.
type DispatchJob struct {
	ID          uuid.UUID
	Batch       []string
	Destination Destination
}

// NewDispatchJob creates a job with a generated ID.
func NewDispatchJob(dest Destination, batch []string) DispatchJob {
	return DispatchJob{
		ID:          uuid.New(),
		Batch:       batch,
		Destination: dest,
	}
}

// Observation is a message seen by the topic observer.
type Observation struct {
	ID               uuid.UUID
	Destination      string
	CorrelationToken string
	Payload          string
	ReceivedAt       time.Time
}

// NewObservation records msg as received now on dest.
func NewObservation(dest Destination, msg Message) Observation {
	token := msg.CorrelationToken
	if token == "" {
		token, _, _ = SplitRelayed(msg.Payload)
	}
	return Observation{
		ID:               uuid.New(),
		Destination:      dest.String(),
		CorrelationToken: token,
		Payload:          msg.Payload,
		ReceivedAt:       time.Now().UTC(),
	}
}
