// Package queue implements the named-queue job runtime: four fixed
// queues (screenshots, replays, integrations, notifications) backed by
// Redis, with at-least-once delivery, a reservation/visibility-timeout
// protocol so a crashed worker's job returns to waiting, and exponential
// backoff with jitter on retry.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/logger"
)

// Names of the four queues fixed at construction; addJob/pause/resume
// reject any other name with UnknownQueueError.
const (
	Screenshots   = "screenshots"
	Replays       = "replays"
	Integrations  = "integrations"
	Notifications = "notifications"
)

var knownQueues = map[string]bool{
	Screenshots:   true,
	Replays:       true,
	Integrations:  true,
	Notifications: true,
}

// State is a job's position in its lifecycle.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateDelayed   State = "delayed"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Job is one unit of work enqueued on a named queue.
type Job struct {
	ID           string          `json:"id"`
	Queue        string          `json:"queue"`
	Payload      json.RawMessage `json:"payload"`
	AttemptsMade int             `json:"attemptsMade"`
	MaxAttempts  int             `json:"maxAttempts"`
	CreatedAt    time.Time       `json:"createdAt"`
	AvailableAt  time.Time       `json:"availableAt"`
	State        State           `json:"state"`
}

// AddJobOptions configures AddJob.
type AddJobOptions struct {
	Delay       time.Duration
	MaxAttempts int
}

const defaultMaxAttempts = 3
const defaultVisibilityTimeout = 30 * time.Second
const backoffBase = 1 * time.Second
const backoffCap = 60 * time.Second

// Queues is the job runtime shared by the HTTP API (enqueue side) and
// the worker pool (dequeue side).
type Queues struct {
	client             *redis.Client
	visibilityTimeout  time.Duration
	paused             map[string]bool
	metrics            *metricsCollector
}

// New creates the queue runtime over an existing Redis client — the
// same one internal/cache dials, but queue failures must surface as
// QueueUnavailableError rather than degrade silently, so this package
// keeps its own *redis.Client rather than going through cache.Cache.
func New(client *redis.Client) *Queues {
	q := &Queues{
		client:            client,
		visibilityTimeout: defaultVisibilityTimeout,
		paused:            make(map[string]bool),
	}
	q.metrics = newMetricsCollector(q)
	return q
}

func keyWaiting(queue string) string   { return fmt.Sprintf("queue:%s:waiting", queue) }
func keyActive(queue string) string    { return fmt.Sprintf("queue:%s:active", queue) }
func keyDelayed(queue string) string   { return fmt.Sprintf("queue:%s:delayed", queue) }
func keyJobs(queue string) string      { return fmt.Sprintf("queue:%s:jobs", queue) }
func keyCompleted(queue string) string { return fmt.Sprintf("queue:%s:completed", queue) }
func keyFailed(queue string) string    { return fmt.Sprintf("queue:%s:failed", queue) }
func keyPaused(queue string) string    { return fmt.Sprintf("queue:%s:paused", queue) }

// AddJob enqueues payload on queue, returning the new job's id.
func (q *Queues) AddJob(ctx context.Context, queue string, payload interface{}, opts AddJobOptions) (string, error) {
	if !knownQueues[queue] {
		return "", apperrors.NewUnknownQueueError(queue)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("queue: marshal payload: %w", err)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	now := time.Now()
	job := &Job{
		ID:           uuid.NewString(),
		Queue:        queue,
		Payload:      raw,
		MaxAttempts:  maxAttempts,
		CreatedAt:    now,
		AvailableAt:  now.Add(opts.Delay),
		State:        StateWaiting,
	}
	if opts.Delay > 0 {
		job.State = StateDelayed
	}

	jobJSON, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("queue: marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, keyJobs(queue), job.ID, jobJSON)
	if opts.Delay > 0 {
		pipe.ZAdd(ctx, keyDelayed(queue), redis.Z{Score: float64(job.AvailableAt.Unix()), Member: job.ID})
	} else {
		pipe.LPush(ctx, keyWaiting(queue), job.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", apperrors.NewQueueUnavailableError(err)
	}
	return job.ID, nil
}

// GetJob returns a job by id, or nil if it doesn't exist.
func (q *Queues) GetJob(ctx context.Context, queue, id string) (*Job, error) {
	if !knownQueues[queue] {
		return nil, apperrors.NewUnknownQueueError(queue)
	}
	raw, err := q.client.HGet(ctx, keyJobs(queue), id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewQueueUnavailableError(err)
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("queue: unmarshal job: %w", err)
	}
	return &job, nil
}

// GetJobStatus returns just the job's current state.
func (q *Queues) GetJobStatus(ctx context.Context, queue, id string) (State, error) {
	job, err := q.GetJob(ctx, queue, id)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", apperrors.NewNotFoundError("job")
	}
	return job.State, nil
}

// QueueMetrics reports job counts per state.
type QueueMetrics struct {
	Waiting   int64
	Active    int64
	Completed int64
	Failed    int64
}

// GetQueueMetrics reads current depths and publishes them to the
// Prometheus gauge vector the admin metrics endpoint scrapes.
func (q *Queues) GetQueueMetrics(ctx context.Context, queue string) (*QueueMetrics, error) {
	if !knownQueues[queue] {
		return nil, apperrors.NewUnknownQueueError(queue)
	}
	pipe := q.client.Pipeline()
	waitingCmd := pipe.LLen(ctx, keyWaiting(queue))
	delayedCmd := pipe.ZCard(ctx, keyDelayed(queue))
	activeCmd := pipe.ZCard(ctx, keyActive(queue))
	completedCmd := pipe.Get(ctx, keyCompleted(queue))
	failedCmd := pipe.Get(ctx, keyFailed(queue))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, apperrors.NewQueueUnavailableError(err)
	}

	m := &QueueMetrics{
		Waiting:   waitingCmd.Val() + delayedCmd.Val(),
		Active:    activeCmd.Val(),
		Completed: parseCounter(completedCmd),
		Failed:    parseCounter(failedCmd),
	}
	q.metrics.observe(queue, m)
	return m, nil
}

func parseCounter(cmd *redis.StringCmd) int64 {
	v, err := cmd.Int64()
	if err != nil {
		return 0
	}
	return v
}

// HealthCheck pings the underlying Redis connection.
func (q *Queues) HealthCheck(ctx context.Context) bool {
	return q.client.Ping(ctx).Err() == nil
}

// Pause stops Reserve from returning new jobs for queue. Already-active
// jobs run to completion.
func (q *Queues) Pause(ctx context.Context, queue string) error {
	if !knownQueues[queue] {
		return apperrors.NewUnknownQueueError(queue)
	}
	return q.client.Set(ctx, keyPaused(queue), "1", 0).Err()
}

// Resume re-enables Reserve for queue.
func (q *Queues) Resume(ctx context.Context, queue string) error {
	if !knownQueues[queue] {
		return apperrors.NewUnknownQueueError(queue)
	}
	return q.client.Del(ctx, keyPaused(queue)).Err()
}

func (q *Queues) isPaused(ctx context.Context, queue string) bool {
	n, _ := q.client.Exists(ctx, keyPaused(queue)).Result()
	return n > 0
}

// Reserve atomically moves one job from waiting to active with a
// visibility-timeout reservation, returning nil if nothing is
// available. A job whose visibility window expires without Complete or
// Fail being called is rescheduled by the reaper goroutine (see
// ReapExpiredReservations).
func (q *Queues) Reserve(ctx context.Context, queue string) (*Job, error) {
	if !knownQueues[queue] {
		return nil, apperrors.NewUnknownQueueError(queue)
	}
	if q.isPaused(ctx, queue) {
		return nil, nil
	}

	q.promoteDelayed(ctx, queue)

	const reserveLua = `local id = redis.call('RPOP', KEYS[1])
if id then redis.call('ZADD', KEYS[2], ARGV[1], id) end
return id`
	deadline := time.Now().Add(q.visibilityTimeout)
	id, err := q.client.Eval(ctx, reserveLua, []string{keyWaiting(queue), keyActive(queue)}, deadline.Unix()).Text()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewQueueUnavailableError(err)
	}

	job, err := q.GetJob(ctx, queue, id)
	if err != nil || job == nil {
		return nil, err
	}
	job.State = StateActive
	q.saveJob(ctx, job)
	return job, nil
}

// promoteDelayed moves jobs whose AvailableAt has passed from the
// delayed set into the waiting list.
func (q *Queues) promoteDelayed(ctx context.Context, queue string) {
	now := float64(time.Now().Unix())
	ids, err := q.client.ZRangeByScore(ctx, keyDelayed(queue), &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil || len(ids) == 0 {
		return
	}
	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, keyDelayed(queue), id)
		pipe.LPush(ctx, keyWaiting(queue), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Queue().Warn().Err(err).Str("queue", queue).Msg("failed to promote delayed jobs")
	}
}

// Complete marks job as completed and removes its active reservation.
func (q *Queues) Complete(ctx context.Context, job *Job) error {
	job.State = StateCompleted
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, keyActive(job.Queue), job.ID)
	pipe.Incr(ctx, keyCompleted(job.Queue))
	jobJSON, _ := json.Marshal(job)
	pipe.HSet(ctx, keyJobs(job.Queue), job.ID, jobJSON)
	_, err := pipe.Exec(ctx)
	return err
}

// Fail handles a worker-reported error: increments attemptsMade and
// either reschedules with exponential backoff or moves the job to
// failed, per spec.md's retry contract.
func (q *Queues) Fail(ctx context.Context, job *Job, permanent bool) error {
	job.AttemptsMade++
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, keyActive(job.Queue), job.ID)

	if !permanent && job.AttemptsMade < job.MaxAttempts {
		job.State = StateDelayed
		job.AvailableAt = time.Now().Add(backoff(job.AttemptsMade))
		pipe.ZAdd(ctx, keyDelayed(job.Queue), redis.Z{Score: float64(job.AvailableAt.Unix()), Member: job.ID})
	} else {
		job.State = StateFailed
		pipe.Incr(ctx, keyFailed(job.Queue))
	}
	jobJSON, _ := json.Marshal(job)
	pipe.HSet(ctx, keyJobs(job.Queue), job.ID, jobJSON)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *Queues) saveJob(ctx context.Context, job *Job) {
	jobJSON, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := q.client.HSet(ctx, keyJobs(job.Queue), job.ID, jobJSON).Err(); err != nil {
		logger.Queue().Warn().Err(err).Str("queue", job.Queue).Str("jobId", job.ID).Msg("failed to persist job state")
	}
}

// backoff computes base*2^(attempts-1), capped, with up to 20% jitter.
func backoff(attempts int) time.Duration {
	d := backoffBase * time.Duration(1<<uint(attempts-1))
	if d > backoffCap {
		d = backoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 5))
	return d + jitter
}

// ReapExpiredReservations passes every active job whose visibility
// timeout has passed to Fail, as for a crashed worker: the job counts
// one more attempt and goes to delayed with backoff (Reserve later
// promotes it to waiting), or to failed once its attempts are
// exhausted. The worker pool's reaper goroutine calls it periodically.
func (q *Queues) ReapExpiredReservations(ctx context.Context, queue string) error {
	now := float64(time.Now().Unix())
	ids, err := q.client.ZRangeByScore(ctx, keyActive(queue), &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil || len(ids) == 0 {
		return err
	}
	for _, id := range ids {
		job, err := q.GetJob(ctx, queue, id)
		if err != nil || job == nil {
			q.client.ZRem(ctx, keyActive(queue), id)
			continue
		}
		if err := q.Fail(ctx, job, false); err != nil {
			logger.Queue().Warn().Err(err).Str("queue", queue).Str("jobId", id).Msg("failed to reap expired reservation")
		}
	}
	return nil
}
