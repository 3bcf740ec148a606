package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"golang-mq-relay/internal/domain"
	"golang-mq-relay/internal/ports"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sent struct {
	Dest domain.Destination
	Msg  domain.Message
}

// fakePublisher records publishes. gate, when set, holds every publish until
// it is closed; fail decides which messages fail.
type fakePublisher struct {
	mu   sync.Mutex
	sent []sent
	gate chan struct{}
	fail func(domain.Message) bool
}

func (p *fakePublisher) Publish(ctx context.Context, dest domain.Destination, msg domain.Message) error {
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return &domain.SendError{Destination: dest, Err: ctx.Err()}
		}
	}
	if p.fail != nil && p.fail(msg) {
		return &domain.SendError{Destination: dest, Err: errors.New("broker unavailable")}
	}
	p.mu.Lock()
	p.sent = append(p.sent, sent{Dest: dest, Msg: msg})
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) all() []sent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sent(nil), p.sent...)
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

type fakeSource struct {
	name  string
	lines []string
	err   error
}

func (s fakeSource) Name() string                 { return s.name }
func (s fakeSource) ReadLines() ([]string, error) { return s.lines, s.err }

type fakeJournal struct {
	mu   sync.Mutex
	obs  []domain.Observation
	fail error
}

func (j *fakeJournal) Record(_ context.Context, obs domain.Observation) error {
	if j.fail != nil {
		return j.fail
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.obs = append(j.obs, obs)
	return nil
}

func (j *fakeJournal) Recent(_ context.Context, limit int) ([]domain.Observation, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if limit > len(j.obs) {
		limit = len(j.obs)
	}
	return append([]domain.Observation(nil), j.obs[:limit]...), nil
}

type fakeListener struct {
	dest     domain.Destination
	handler  ports.Handler
	startErr error
	state    ports.ListenerState
	log      *[]string
}

func (l *fakeListener) Start(context.Context) error {
	if l.startErr != nil {
		return l.startErr
	}
	l.state = ports.ListenerListening
	*l.log = append(*l.log, "start "+l.dest.String())
	return nil
}

func (l *fakeListener) Stop(context.Context) error {
	l.state = ports.ListenerStopped
	*l.log = append(*l.log, "stop "+l.dest.String())
	return nil
}

func (l *fakeListener) State() ports.ListenerState       { return l.state }
func (l *fakeListener) Destination() domain.Destination { return l.dest }
