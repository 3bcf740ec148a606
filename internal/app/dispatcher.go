package app

import (
	"context"
	"log/slog"
	"time"

	"golang-mq-relay/internal/domain"
	"golang-mq-relay/internal/ports"
	"golang-mq-relay/internal/workerpool"

	"golang.org/x/time/rate"
)

// JobSubmitter runs jobs asynchronously; *workerpool.Pool implements it.
type JobSubmitter interface {
	Submit(ctx context.Context, job workerpool.Job) error
}

// BulkDispatcher publishes whole batches to the queue in the background.
type BulkDispatcher struct {
	publisher  ports.MessagePublisher
	queue      domain.Destination
	pool       JobSubmitter
	ratePerSec int
	log        *slog.Logger
}

// DispatcherOption configures the dispatcher
type DispatcherOption func(*BulkDispatcher)

// WithRatePerSec throttles the publishes of each job; 0 means unthrottled.
func WithRatePerSec(n int) DispatcherOption {
	return func(d *BulkDispatcher) {
		d.ratePerSec = n
	}
}

func NewBulkDispatcher(publisher ports.MessagePublisher, queue domain.Destination, pool JobSubmitter, log *slog.Logger, options ...DispatcherOption) *BulkDispatcher {
	d := &BulkDispatcher{
		publisher: publisher,
		queue:     queue,
		pool:      pool,
		log:       log,
	}

	for _, opt := range options {
		opt(d)
	}

	return d
}

// TriggerBulkSend reads src and schedules one job that publishes its lines
// in order. It returns as soon as the job is accepted; the caller learns
// nothing about how the job went. A read failure is a *domain.ReadError and
// schedules nothing.
func (d *BulkDispatcher) TriggerBulkSend(ctx context.Context, src ports.BatchSource) error {
	lines, err := src.ReadLines()
	if err != nil {
		return &domain.ReadError{Source: src.Name(), Err: err}
	}

	job := domain.NewDispatchJob(d.queue, lines)
	if err := d.pool.Submit(ctx, func(ctx context.Context) { d.run(ctx, job) }); err != nil {
		d.log.Warn("bulk job rejected", "job_id", job.ID, "lines", len(lines), "err", err)
		return err
	}

	d.log.Info("bulk job accepted", "job_id", job.ID, "source", src.Name(), "lines", len(lines))
	return nil
}

// run publishes every line sequentially. A failed line is logged and skipped.
func (d *BulkDispatcher) run(ctx context.Context, job domain.DispatchJob) {
	start := time.Now()

	var limiter *rate.Limiter
	if d.ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(d.ratePerSec), d.ratePerSec)
	}

	sent, failed := 0, 0
	for i, line := range job.Batch {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				d.log.Error("bulk job throttle", "job_id", job.ID, "err", err)
				failed += len(job.Batch) - i
				break
			}
		}

		if err := d.publisher.Publish(ctx, job.Destination, domain.NewMessage(line)); err != nil {
			failed++
			d.log.Error("bulk publish failed",
				"job_id", job.ID,
				"line", i+1,
				"destination", job.Destination.String(),
				"err", err,
			)
			continue
		}
		sent++
	}

	d.log.Info("bulk job finished",
		"job_id", job.ID,
		"sent", sent,
		"failed", failed,
		"duration", time.Since(start),
	)
}
