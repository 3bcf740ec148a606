// Package workerpool runs fire-and-forget jobs on a bounded set of goroutines.
//
// Jobs enter a bounded FIFO queue. A single feeder goroutine moves them into
// an ants pool whose capacity starts at CoreWorkers. When the queue is full
// and every worker is busy, the capacity is raised one step at a time up to
// MaxWorkers; it drops back to CoreWorkers once the queue has drained. Idle
// workers retire after KeepAlive. When the queue is full and MaxWorkers are
// busy, the Overflow policy decides what Submit does.
package workerpool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang-mq-relay/internal/domain"

	"github.com/panjf2000/ants/v2"
)

// Job is a unit of work. ctx is the pool's context, not the submitter's.
type Job func(ctx context.Context)

// Overflow is what Submit does when no worker and no queue slot is free.
type Overflow int

const (
	// OverflowReject fails the submission with domain.ErrPoolSaturated.
	OverflowReject Overflow = iota
	// OverflowBlock waits for a queue slot or for the submitter's context.
	OverflowBlock
)

// ParseOverflow accepts "reject" and "block".
func ParseOverflow(s string) (Overflow, error) {
	switch s {
	case "reject", "":
		return OverflowReject, nil
	case "block":
		return OverflowBlock, nil
	}
	return OverflowReject, fmt.Errorf("unknown overflow policy %q", s)
}

func (o Overflow) String() string {
	if o == OverflowBlock {
		return "block"
	}
	return "reject"
}

type Config struct {
	CoreWorkers int
	MaxWorkers  int
	QueueSize   int // at least 1
	KeepAlive   time.Duration
	Overflow    Overflow
}

// DefaultConfig is five core workers, fifteen at most and a queue of 100.
func DefaultConfig() Config {
	return Config{
		CoreWorkers: 5,
		MaxWorkers:  15,
		QueueSize:   100,
		KeepAlive:   time.Minute,
		Overflow:    OverflowReject,
	}
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers  int
	Capacity int
	Queued   int
}

type Pool struct {
	cfg     Config
	log     *slog.Logger
	ctx     context.Context
	workers *ants.Pool
	queue   chan Job
	fed     chan struct{}
	jobs    sync.WaitGroup

	tuneMu  sync.Mutex
	growing atomic.Bool

	mu      sync.RWMutex
	stopped bool
}

// antsLogger routes ants' own messages to slog.
type antsLogger struct{ log *slog.Logger }

func (l antsLogger) Printf(format string, args ...any) {
	l.log.Warn(fmt.Sprintf(format, args...), "component", "ants")
}

// New builds the pool and starts its feeder.
func New(cfg Config, log *slog.Logger) (*Pool, error) {
	def := DefaultConfig()
	if cfg.CoreWorkers <= 0 {
		cfg.CoreWorkers = def.CoreWorkers
	}
	if cfg.MaxWorkers < cfg.CoreWorkers {
		cfg.MaxWorkers = cfg.CoreWorkers
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = def.KeepAlive
	}

	p := &Pool{
		cfg:   cfg,
		log:   log,
		ctx:   context.Background(),
		queue: make(chan Job, cfg.QueueSize),
		fed:   make(chan struct{}),
	}

	workers, err := ants.NewPool(cfg.CoreWorkers,
		ants.WithExpiryDuration(cfg.KeepAlive),
		ants.WithPanicHandler(p.recovered),
		ants.WithLogger(antsLogger{log: log}),
	)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	p.workers = workers

	go p.feed()
	return p, nil
}

// Submit hands job to the pool without waiting for it to run.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	// Shutdown closes the queue under the write lock.
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return domain.ErrPoolStopped
	}

	p.jobs.Add(1)
	for {
		select {
		case p.queue <- job:
			return nil
		default:
		}
		if p.workers.Waiting() == 0 || p.growing.Load() {
			// the feeder is still taking jobs off the queue
			runtime.Gosched()
			continue
		}
		if !p.grow() {
			break
		}
	}

	if p.cfg.Overflow == OverflowReject {
		p.jobs.Done()
		return domain.ErrPoolSaturated
	}

	select {
	case p.queue <- job:
		return nil
	case <-ctx.Done():
		p.jobs.Done()
		return ctx.Err()
	}
}

// Shutdown stops intake, lets the queued jobs run and waits for them or
// for ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-p.fed
		p.jobs.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.workers.Release()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) Stats() Stats {
	return Stats{
		Workers:  p.workers.Running(),
		Capacity: p.workers.Cap(),
		Queued:   len(p.queue),
	}
}

// feed moves queued jobs to the workers in order, waiting whenever all of
// them are busy.
func (p *Pool) feed() {
	defer close(p.fed)

	for job := range p.queue {
		err := p.workers.Submit(func() {
			defer p.jobs.Done()
			job(p.ctx)
		})
		if err != nil {
			// a blocking submit only fails once the pool is released
			p.log.Error("job dropped", "err", err)
			p.jobs.Done()
		}
		p.growing.Store(false)
		p.shrink()
	}
}

// grow raises the worker capacity by one unless it is already at MaxWorkers.
func (p *Pool) grow() bool {
	p.tuneMu.Lock()
	defer p.tuneMu.Unlock()

	c := p.workers.Cap()
	if c >= p.cfg.MaxWorkers {
		return false
	}
	p.growing.Store(true)
	p.workers.Tune(c + 1)
	p.log.Debug("worker pool grown", "capacity", c+1)
	return true
}

func (p *Pool) shrink() {
	if len(p.queue) > 0 {
		return
	}
	p.tuneMu.Lock()
	defer p.tuneMu.Unlock()

	if p.workers.Cap() > p.cfg.CoreWorkers {
		p.workers.Tune(p.cfg.CoreWorkers)
	}
}

func (p *Pool) recovered(r any) {
	p.log.Error("job panicked", "panic", r, "stack", string(debug.Stack()))
}
