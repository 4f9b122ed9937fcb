package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-pilot/internal/calendar"
	"github.com/ignite/campaign-pilot/internal/domain"
)

const (
	keyDelayed    = "cp:jobs:delayed"    // zset jobID -> fireAt unix
	keyProcessing = "cp:jobs:processing" // zset jobID -> lease deadline unix
	keyData       = "cp:jobs:data"       // hash jobID -> Job JSON
	keyDead       = "cp:jobs:dead"       // list of Job JSON
	keySchedule   = "cp:jobs:sched:"     // + scheduleID, set of jobIDs
	keyStatus     = "cp:jobs:status:"    // + scheduleID, hash stage -> StageJobStatus JSON
)

// claimScript atomically moves due jobs from the delayed set to the
// processing set under a lease deadline.
var claimScript = redis.NewScript(`
	local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
	for _, id in ipairs(due) do
		redis.call('ZREM', KEYS[1], id)
		redis.call('ZADD', KEYS[2], ARGV[3], id)
	end
	return due
`)

// reapScript returns jobs whose lease expired to the delayed set for
// immediate re-delivery.
var reapScript = redis.NewScript(`
	local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
	for _, id in ipairs(expired) do
		redis.call('ZREM', KEYS[1], id)
		redis.call('ZADD', KEYS[2], ARGV[1], id)
	end
	return expired
`)

// Queue is the durable job store. It is the single writer of job state.
type Queue struct {
	rdb     *redis.Client
	offsets calendar.Offsets
	lease   time.Duration
	now     func() time.Time
}

// NewQueue creates a Queue. lease is the visibility timeout granted to a
// worker per claimed job.
func NewQueue(rdb *redis.Client, offsets calendar.Offsets, lease time.Duration) *Queue {
	if lease <= 0 {
		lease = 3 * time.Minute
	}
	return &Queue{rdb: rdb, offsets: offsets, lease: lease, now: time.Now}
}

// SetClock overrides the queue's clock. Tests only.
func (q *Queue) SetClock(now func() time.Time) { q.now = now }

// Enqueue adds one job. Durable once this returns.
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.FireAt = job.FireAt.UTC()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, keyData, job.ID, data)
	pipe.ZAdd(ctx, keyDelayed, redis.Z{Score: float64(job.FireAt.Unix()), Member: job.ID})
	pipe.SAdd(ctx, keySchedule+job.ScheduleID, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return q.setStatus(ctx, job.ScheduleID, job.Stage, StateDelayed, job.FireAt)
}

// EnqueueStages enqueues all five stage jobs for a schedule relative to its
// launch instant.
func (q *Queue) EnqueueStages(ctx context.Context, scheduleID string, launchT time.Time) error {
	for _, stage := range domain.AllStages() {
		job := &Job{
			ScheduleID: scheduleID,
			Stage:      stage,
			FireAt:     calendar.TriggerTime(launchT, stage, q.offsets),
		}
		if err := q.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("enqueue %s: %w", stage, err)
		}
	}
	return nil
}

// CancelJobsFor removes every pending job for a schedule. Safe to call at
// any time; an actively executing job finishes but its successors are gone.
func (q *Queue) CancelJobsFor(ctx context.Context, scheduleID string) error {
	ids, err := q.rdb.SMembers(ctx, keySchedule+scheduleID).Result()
	if err != nil {
		return fmt.Errorf("list schedule jobs: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, keyDelayed, id)
		pipe.ZRem(ctx, keyProcessing, id)
		pipe.HDel(ctx, keyData, id)
	}
	pipe.Del(ctx, keySchedule+scheduleID)
	pipe.Del(ctx, keyStatus+scheduleID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cancel jobs: %w", err)
	}
	log.Printf("[JobQueue] Cancelled %d jobs for schedule %s", len(ids), scheduleID)
	return nil
}

// RescheduleJobsFor cancels the schedule's pending jobs and re-enqueues the
// five stages relative to the new launch instant.
func (q *Queue) RescheduleJobsFor(ctx context.Context, scheduleID string, newLaunchT time.Time) error {
	if err := q.CancelJobsFor(ctx, scheduleID); err != nil {
		return err
	}
	return q.EnqueueStages(ctx, scheduleID, newLaunchT)
}

// DelayWrapUp pushes the schedule's pending wrap-up job to fireAt if that is
// later than its current fire time. Called after launch so the wrap-up still
// trails the observed send by its full offset. When no pending wrap-up job
// exists (it already fired against a not-yet-launched schedule and
// dead-lettered, or the queue was flushed) a fresh one is enqueued at
// fireAt.
func (q *Queue) DelayWrapUp(ctx context.Context, scheduleID string, fireAt time.Time) error {
	ids, err := q.rdb.SMembers(ctx, keySchedule+scheduleID).Result()
	if err != nil {
		return fmt.Errorf("list schedule jobs: %w", err)
	}
	for _, id := range ids {
		job, err := q.loadJob(ctx, id)
		if err != nil || job == nil || job.Stage != domain.StageWrapUp {
			continue
		}
		if !fireAt.After(job.FireAt) {
			return nil
		}
		job.FireAt = fireAt.UTC()
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		pipe := q.rdb.TxPipeline()
		pipe.HSet(ctx, keyData, job.ID, data)
		pipe.ZAdd(ctx, keyDelayed, redis.Z{Score: float64(job.FireAt.Unix()), Member: job.ID})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("delay wrapup: %w", err)
		}
		log.Printf("[JobQueue] Wrap-up for %s pushed to %s", scheduleID, job.FireAt.Format(time.RFC3339))
		return q.setStatus(ctx, scheduleID, job.Stage, StateDelayed, job.FireAt)
	}

	log.Printf("[JobQueue] Re-enqueueing wrap-up for %s at %s", scheduleID, fireAt.UTC().Format(time.RFC3339))
	return q.Enqueue(ctx, &Job{
		ScheduleID: scheduleID,
		Stage:      domain.StageWrapUp,
		FireAt:     fireAt,
	})
}

// StatusOf returns the per-stage job view for a schedule.
func (q *Queue) StatusOf(ctx context.Context, scheduleID string) (map[domain.Stage]StageJobStatus, error) {
	raw, err := q.rdb.HGetAll(ctx, keyStatus+scheduleID).Result()
	if err != nil {
		return nil, fmt.Errorf("job status: %w", err)
	}
	out := make(map[domain.Stage]StageJobStatus, len(raw))
	now := q.now().UTC()
	for stage, data := range raw {
		var st StageJobStatus
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			return nil, fmt.Errorf("parse job status: %w", err)
		}
		// A delayed job that has come due is pending until claimed.
		if st.State == StateDelayed && !st.FireAt.After(now) {
			st.State = StatePending
		}
		out[domain.Stage(stage)] = st
	}
	return out, nil
}

// DeadLetters returns the dead-letter view, newest first.
func (q *Queue) DeadLetters(ctx context.Context, limit int64) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	raw, err := q.rdb.LRange(ctx, keyDead, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("dead letters: %w", err)
	}
	jobs := make([]Job, 0, len(raw))
	for _, data := range raw {
		var j Job
		if err := json.Unmarshal([]byte(data), &j); err != nil {
			return nil, fmt.Errorf("parse dead letter: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// claimDue leases up to n due jobs to the caller.
func (q *Queue) claimDue(ctx context.Context, n int) ([]*Job, error) {
	now := q.now().UTC()
	ids, err := claimScript.Run(ctx, q.rdb,
		[]string{keyDelayed, keyProcessing},
		now.Unix(), n, now.Add(q.lease).Unix()).StringSlice()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}

	var jobs []*Job
	for _, id := range ids {
		job, err := q.loadJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job == nil {
			// Data vanished (cancelled mid-claim); drop the orphan lease.
			q.rdb.ZRem(ctx, keyProcessing, id)
			continue
		}
		if err := q.setStatus(ctx, job.ScheduleID, job.Stage, StateActive, job.FireAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// reapExpired returns lease-expired jobs to the delayed set.
func (q *Queue) reapExpired(ctx context.Context, n int) (int, error) {
	ids, err := reapScript.Run(ctx, q.rdb,
		[]string{keyProcessing, keyDelayed},
		q.now().UTC().Unix(), n).StringSlice()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("reap expired leases: %w", err)
	}
	if len(ids) > 0 {
		log.Printf("[JobQueue] Returned %d lease-expired jobs to the queue", len(ids))
	}
	return len(ids), nil
}

// complete removes a finished job.
func (q *Queue) complete(ctx context.Context, job *Job) error {
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, keyProcessing, job.ID)
	pipe.HDel(ctx, keyData, job.ID)
	pipe.SRem(ctx, keySchedule+job.ScheduleID, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return q.setStatus(ctx, job.ScheduleID, job.Stage, StateCompleted, job.FireAt)
}

// fail records a failed execution: re-delay with backoff while the retry
// budget lasts, dead-letter after.
func (q *Queue) fail(ctx context.Context, job *Job, cause error, permanent bool) error {
	job.LastError = cause.Error()

	if !permanent && job.Retries < len(retryBackoff) {
		delay := retryBackoff[job.Retries]
		job.Retries++
		job.FireAt = q.now().UTC().Add(delay)

		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		pipe := q.rdb.TxPipeline()
		pipe.HSet(ctx, keyData, job.ID, data)
		pipe.ZRem(ctx, keyProcessing, job.ID)
		pipe.ZAdd(ctx, keyDelayed, redis.Z{Score: float64(job.FireAt.Unix()), Member: job.ID})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("requeue job: %w", err)
		}
		log.Printf("[JobQueue] %s/%s retry %d in %s: %v",
			job.ScheduleID, job.Stage, job.Retries, delay, cause)
		return q.setStatus(ctx, job.ScheduleID, job.Stage, StateDelayed, job.FireAt)
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	pipe := q.rdb.TxPipeline()
	pipe.LPush(ctx, keyDead, data)
	pipe.ZRem(ctx, keyProcessing, job.ID)
	pipe.HDel(ctx, keyData, job.ID)
	pipe.SRem(ctx, keySchedule+job.ScheduleID, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dead-letter job: %w", err)
	}
	// Operator alert: dead letters do not retry on their own.
	log.Printf("[JobQueue] ALERT: %s/%s dead-lettered after %d retries: %v",
		job.ScheduleID, job.Stage, job.Retries, cause)
	return q.setStatus(ctx, job.ScheduleID, job.Stage, StateFailed, job.FireAt)
}

func (q *Queue) loadJob(ctx context.Context, id string) (*Job, error) {
	data, err := q.rdb.HGet(ctx, keyData, id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("parse job %s: %w", id, err)
	}
	return &job, nil
}

func (q *Queue) setStatus(ctx context.Context, scheduleID string, stage domain.Stage, state JobState, fireAt time.Time) error {
	data, err := json.Marshal(StageJobStatus{State: state, FireAt: fireAt.UTC()})
	if err != nil {
		return fmt.Errorf("marshal job status: %w", err)
	}
	if err := q.rdb.HSet(ctx, keyStatus+scheduleID, string(stage), data).Err(); err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	return nil
}
