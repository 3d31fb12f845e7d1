// Package audit buffers administrative and ingestion action records and
// flushes them to the database in batches, keeping audit capture off the
// request's hot path.
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/logger"
	"github.com/apexbridge-tech/bugspotter/internal/models"
)

const (
	// MaxBufferSize is the buffer capacity; entries beyond it are dropped,
	// oldest first, and counted in DroppedCount.
	MaxBufferSize = 10000

	// FlushBatchSize triggers an immediate flush once reached.
	FlushBatchSize = 100

	// FlushInterval is the maximum time an entry waits before a flush.
	FlushInterval = 1 * time.Second
)

// Pipeline buffers audit entries in memory and flushes them to Postgres
// on a size-or-time trigger. Record never blocks on the database.
type Pipeline struct {
	repo *db.AuditLogRepository

	mu      sync.Mutex
	buffer  []models.AuditLog
	dropped int64

	flushCh chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a pipeline backed by the given audit log repository.
func New(repo *db.AuditLogRepository) *Pipeline {
	p := &Pipeline{
		repo:    repo,
		buffer:  make([]models.AuditLog, 0, FlushBatchSize),
		flushCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go p.run()
	return p
}

// Record enqueues an entry for asynchronous persistence. If the buffer is
// at capacity the oldest entry is dropped and DroppedCount increments;
// Record itself never blocks on I/O.
func (p *Pipeline) Record(entry models.AuditLog) {
	entry.Timestamp = entry.Timestamp.UTC()

	p.mu.Lock()
	if len(p.buffer) >= MaxBufferSize {
		p.buffer = p.buffer[1:]
		atomic.AddInt64(&p.dropped, 1)
	}
	p.buffer = append(p.buffer, entry)
	shouldFlush := len(p.buffer) >= FlushBatchSize
	p.mu.Unlock()

	if shouldFlush {
		select {
		case p.flushCh <- struct{}{}:
		default:
		}
	}
}

// DroppedCount returns the number of entries dropped so far due to buffer
// overflow, exposed via metrics.
func (p *Pipeline) DroppedCount() int64 {
	return atomic.LoadInt64(&p.dropped)
}

// BufferDepth returns the current number of buffered, unflushed entries.
func (p *Pipeline) BufferDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

func (p *Pipeline) run() {
	defer close(p.doneCh)

	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.flush()
		case <-p.flushCh:
			p.flush()
		case <-p.stopCh:
			p.flush()
			return
		}
	}
}

func (p *Pipeline) flush() {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	batch := p.buffer
	p.buffer = make([]models.AuditLog, 0, FlushBatchSize)
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.repo.AppendBatch(ctx, batch); err != nil {
		logger.Audit().Error().Err(err).Int("batch_size", len(batch)).Msg("audit batch flush failed")
	}
}

// Stop flushes any buffered entries and stops the background flusher. It
// blocks until the final flush completes.
func (p *Pipeline) Stop() {
	close(p.stopCh)
	<-p.doneCh
}
