package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_ProcessesJobSuccessfully(t *testing.T) {
	q, _ := newTestQueues(t)
	ctx := context.Background()

	var processed int32
	pool := NewWorkerPool(q)
	pool.Register(Screenshots, 1, func(ctx context.Context, job *Job) error {
		atomic.AddInt32(&processed, 1)
		return nil
	})
	pool.Start()
	defer pool.Stop()

	id, err := q.AddJob(ctx, Screenshots, map[string]string{"x": "1"}, AddJobOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&processed) == 1
	}, 2*time.Second, 10*time.Millisecond)

	status, err := q.GetJobStatus(ctx, Screenshots, id)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, status)
}

func TestWorkerPool_PermanentErrorSkipsRetry(t *testing.T) {
	q, _ := newTestQueues(t)
	ctx := context.Background()

	pool := NewWorkerPool(q)
	pool.Register(Replays, 1, func(ctx context.Context, job *Job) error {
		return NewPermanentError(errors.New("decode failed"))
	})
	pool.Start()
	defer pool.Stop()

	id, err := q.AddJob(ctx, Replays, map[string]string{"x": "1"}, AddJobOptions{MaxAttempts: 5})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := q.GetJobStatus(ctx, Replays, id)
		return err == nil && status == StateFailed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorkerPool_RetryableErrorReschedules(t *testing.T) {
	q, _ := newTestQueues(t)
	ctx := context.Background()

	var attempts int32
	pool := NewWorkerPool(q)
	pool.Register(Integrations, 1, func(ctx context.Context, job *Job) error {
		if atomic.AddInt32(&attempts, 1) < 2 {
			return errors.New("transient network error")
		}
		return nil
	})
	pool.Start()
	defer pool.Stop()

	_, err := q.AddJob(ctx, Integrations, map[string]string{"x": "1"}, AddJobOptions{MaxAttempts: 3})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&attempts) >= 2
	}, 3*time.Second, 10*time.Millisecond)
}
