package rabbitmq

import (
	"context"
	"fmt"
	"sync"

	"golang-mq-relay/internal/domain"

	"github.com/google/uuid"
)

// DefaultSessionCacheSize bounds the sessions open on one connection.
const DefaultSessionCacheSize = 10

// Session is a pooled channel, exclusively owned by one caller between
// Acquire and Release.
type Session struct {
	Channel
	id       string
	broken   bool
	released bool
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// MarkBroken makes Release close the session instead of caching it.
func (s *Session) MarkBroken() { s.broken = true }

// PoolStats is a point-in-time view of a SessionPool.
type PoolStats struct {
	Capacity int
	InUse    int
	Idle     int
}

// SessionPool caches up to size sessions. Acquire blocks once size sessions
// are held, until one is released.
type SessionPool struct {
	open  func() (Channel, error)
	slots chan struct{}
	done  chan struct{}

	mu     sync.Mutex
	idle   []*Session
	closed bool
}

// NewSessionPool builds a pool that opens sessions with open.
func NewSessionPool(size int, open func() (Channel, error)) *SessionPool {
	if size < 1 {
		size = DefaultSessionCacheSize
	}
	return &SessionPool{
		open:  open,
		slots: make(chan struct{}, size),
		done:  make(chan struct{}),
	}
}

// Acquire returns an idle session or opens a new one, waiting for a free
// slot while the pool is at capacity.
func (p *SessionPool) Acquire(ctx context.Context) (*Session, error) {
	select {
	case <-p.done:
		return nil, domain.ErrSessionPoolClosed
	default:
	}

	select {
	case p.slots <- struct{}{}:
	case <-p.done:
		return nil, domain.ErrSessionPoolClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire session: %w", ctx.Err())
	}

	if s := p.popIdle(); s != nil {
		return s, nil
	}

	ch, err := p.open()
	if err != nil {
		<-p.slots
		return nil, fmt.Errorf("open session: %w", err)
	}
	return &Session{Channel: ch, id: uuid.NewString()}, nil
}

func (p *SessionPool) popIdle() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.idle) > 0 {
		s := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if s.IsClosed() {
			continue
		}
		s.released = false
		return s
	}
	return nil
}

// Release hands a session back. Broken or closed sessions are dropped.
func (p *SessionPool) Release(s *Session) {
	if s == nil {
		return
	}

	p.mu.Lock()
	if s.released {
		p.mu.Unlock()
		return
	}
	s.released = true
	if p.closed || s.broken || s.IsClosed() {
		p.mu.Unlock()
		if !s.IsClosed() {
			s.Close()
		}
	} else {
		p.idle = append(p.idle, s)
		p.mu.Unlock()
	}

	<-p.slots
}

// Close closes the idle sessions and fails pending and future Acquire calls.
// Sessions still held are closed when released.
func (p *SessionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)

	for _, s := range p.idle {
		s.Close()
	}
	p.idle = nil
	return nil
}

func (p *SessionPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Capacity: cap(p.slots),
		InUse:    len(p.slots),
		Idle:     len(p.idle),
	}
}
