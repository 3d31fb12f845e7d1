package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
)

func newTestQueues(t *testing.T) (*Queues, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client), mr
}

func TestAddJob_UnknownQueueRejected(t *testing.T) {
	q, _ := newTestQueues(t)
	_, err := q.AddJob(context.Background(), "not-a-real-queue", map[string]string{"x": "1"}, AddJobOptions{})
	require.Error(t, err)
	var unknownErr *apperrors.UnknownQueueError
	require.True(t, errors.As(err, &unknownErr))
}

func TestAddJobAndReserve(t *testing.T) {
	q, _ := newTestQueues(t)
	ctx := context.Background()

	id, err := q.AddJob(ctx, Screenshots, map[string]string{"bugReportId": "b1"}, AddJobOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := q.GetJob(ctx, Screenshots, id)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, StateWaiting, job.State)
	assert.Equal(t, defaultMaxAttempts, job.MaxAttempts)

	reserved, err := q.Reserve(ctx, Screenshots)
	require.NoError(t, err)
	require.NotNil(t, reserved)
	assert.Equal(t, id, reserved.ID)
	assert.Equal(t, StateActive, reserved.State)

	empty, err := q.Reserve(ctx, Screenshots)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestCompleteMarksJobAndMetrics(t *testing.T) {
	q, _ := newTestQueues(t)
	ctx := context.Background()

	id, err := q.AddJob(ctx, Replays, map[string]string{"x": "1"}, AddJobOptions{})
	require.NoError(t, err)
	job, err := q.Reserve(ctx, Replays)
	require.NoError(t, err)

	require.NoError(t, q.Complete(ctx, job))

	status, err := q.GetJobStatus(ctx, Replays, id)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, status)

	metrics, err := q.GetQueueMetrics(ctx, Replays)
	require.NoError(t, err)
	assert.EqualValues(t, 1, metrics.Completed)
	assert.EqualValues(t, 0, metrics.Active)
}

func TestFailReschedulesUntilMaxAttempts(t *testing.T) {
	q, _ := newTestQueues(t)
	ctx := context.Background()

	id, err := q.AddJob(ctx, Notifications, map[string]string{"x": "1"}, AddJobOptions{MaxAttempts: 2})
	require.NoError(t, err)

	job, err := q.Reserve(ctx, Notifications)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, job, false))

	job, err = q.GetJob(ctx, Notifications, id)
	require.NoError(t, err)
	assert.Equal(t, StateDelayed, job.State)
	assert.Equal(t, 1, job.AttemptsMade)

	// Second failure exhausts MaxAttempts=2.
	job.AvailableAt = time.Now().Add(-time.Second)
	require.NoError(t, q.Fail(ctx, job, false))

	job, err = q.GetJob(ctx, Notifications, id)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, job.State)

	metrics, err := q.GetQueueMetrics(ctx, Notifications)
	require.NoError(t, err)
	assert.EqualValues(t, 1, metrics.Failed)
}

func TestFailPermanentSkipsRetry(t *testing.T) {
	q, _ := newTestQueues(t)
	ctx := context.Background()

	_, err := q.AddJob(ctx, Integrations, map[string]string{"x": "1"}, AddJobOptions{MaxAttempts: 5})
	require.NoError(t, err)
	job, err := q.Reserve(ctx, Integrations)
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, job, true))
	assert.Equal(t, StateFailed, job.State)
}

func TestPauseStopsReserve(t *testing.T) {
	q, _ := newTestQueues(t)
	ctx := context.Background()

	_, err := q.AddJob(ctx, Screenshots, map[string]string{"x": "1"}, AddJobOptions{})
	require.NoError(t, err)
	require.NoError(t, q.Pause(ctx, Screenshots))

	job, err := q.Reserve(ctx, Screenshots)
	require.NoError(t, err)
	assert.Nil(t, job)

	require.NoError(t, q.Resume(ctx, Screenshots))
	job, err = q.Reserve(ctx, Screenshots)
	require.NoError(t, err)
	assert.NotNil(t, job)
}

func TestPauseRejectsUnknownQueue(t *testing.T) {
	q, _ := newTestQueues(t)
	err := q.Pause(context.Background(), "bogus")
	require.Error(t, err)
	var unknownErr *apperrors.UnknownQueueError
	require.True(t, errors.As(err, &unknownErr))
}

func TestDelayedJobPromotedWhenDue(t *testing.T) {
	q, _ := newTestQueues(t)
	ctx := context.Background()

	id, err := q.AddJob(ctx, Screenshots, map[string]string{"x": "1"}, AddJobOptions{Delay: 10 * time.Millisecond})
	require.NoError(t, err)

	job, err := q.GetJob(ctx, Screenshots, id)
	require.NoError(t, err)
	assert.Equal(t, StateDelayed, job.State)

	time.Sleep(20 * time.Millisecond)
	reserved, err := q.Reserve(ctx, Screenshots)
	require.NoError(t, err)
	require.NotNil(t, reserved)
	assert.Equal(t, id, reserved.ID)
}

func TestHealthCheck(t *testing.T) {
	q, mr := newTestQueues(t)
	assert.True(t, q.HealthCheck(context.Background()))
	mr.Close()
	assert.False(t, q.HealthCheck(context.Background()))
}

func TestBackoffIsCappedAndIncreasing(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoff(attempt)
		assert.LessOrEqual(t, d, backoffCap+backoffCap/5)
		if attempt <= 6 {
			assert.GreaterOrEqual(t, d, prev)
		}
		prev = d
	}
}
