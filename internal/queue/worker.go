package queue

import (
	"context"
	"sync"
	"time"

	"github.com/apexbridge-tech/bugspotter/internal/logger"
)

// Handler processes one job's payload. Returning an error marks the job
// for retry (attemptsMade increments, reschedule with backoff) unless
// the error is a PermanentError, which fails the job immediately.
type Handler func(ctx context.Context, job *Job) error

// PermanentError wraps an error that should not be retried — a decode
// failure, for instance, will not succeed on a later attempt.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// NewPermanentError marks err as non-retryable.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// pollInterval is how often an idle worker re-checks its queue for
// work; reapInterval is how often the reaper scans for expired
// reservations.
const pollInterval = 500 * time.Millisecond
const reapInterval = 5 * time.Second

// WorkerPool runs a fixed number of goroutines per registered queue,
// each reserving and processing jobs in a loop — the same worker-pool
// shape as a channel-based in-process dispatcher, adapted to pull
// reservations from Redis instead of an in-memory channel so state
// survives a restart.
type WorkerPool struct {
	queues   *Queues
	handlers map[string]Handler
	workers  map[string]int

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWorkerPool creates a pool over queues. Register queue handlers
// with Register before calling Start.
func NewWorkerPool(queues *Queues) *WorkerPool {
	return &WorkerPool{
		queues:   queues,
		handlers: make(map[string]Handler),
		workers:  make(map[string]int),
		stopCh:   make(chan struct{}),
	}
}

// Register assigns handler to queue with the given worker concurrency.
func (p *WorkerPool) Register(queue string, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	p.handlers[queue] = handler
	p.workers[queue] = concurrency
}

// Start launches all registered workers plus one reaper goroutine per
// queue. It returns immediately; call Stop to shut down.
func (p *WorkerPool) Start() {
	for queue, handler := range p.handlers {
		for i := 0; i < p.workers[queue]; i++ {
			p.wg.Add(1)
			go p.runWorker(queue, handler)
		}
		p.wg.Add(1)
		go p.runReaper(queue)
	}
}

// Stop signals all workers and the reaper to exit and waits for them.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

func (p *WorkerPool) runWorker(queue string, handler Handler) {
	defer p.wg.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.processOne(queue, handler)
		}
	}
}

func (p *WorkerPool) processOne(queue string, handler Handler) {
	ctx := context.Background()
	job, err := p.queues.Reserve(ctx, queue)
	if err != nil {
		logger.Queue().Error().Err(err).Str("queue", queue).Msg("failed to reserve job")
		return
	}
	if job == nil {
		return
	}

	handlerErr := handler(ctx, job)
	if handlerErr == nil {
		if err := p.queues.Complete(ctx, job); err != nil {
			logger.Queue().Error().Err(err).Str("queue", queue).Str("jobId", job.ID).Msg("failed to mark job completed")
		}
		return
	}

	_, permanent := handlerErr.(*PermanentError)
	if err := p.queues.Fail(ctx, job, permanent); err != nil {
		logger.Queue().Error().Err(err).Str("queue", queue).Str("jobId", job.ID).Msg("failed to record job failure")
	}
	logger.Queue().Warn().Err(handlerErr).Str("queue", queue).Str("jobId", job.ID).
		Int("attempt", job.AttemptsMade).Bool("permanent", permanent).Msg("job failed")
}

func (p *WorkerPool) runReaper(queue string) {
	defer p.wg.Done()
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.queues.ReapExpiredReservations(context.Background(), queue); err != nil {
				logger.Queue().Error().Err(err).Str("queue", queue).Msg("reaper pass failed")
			}
		}
	}
}
