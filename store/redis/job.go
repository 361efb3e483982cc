package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/quarrylabs/quarry"
	"github.com/quarrylabs/quarry/id"
	"github.com/quarrylabs/quarry/job"
)

// claimScript atomically pops the best queued job of a type and marks it
// active with an owner. ZPOPMIN returns the lowest score, which is the
// highest priority and earliest enqueue.
var claimScript = goredis.NewScript(`
local popped = redis.call('ZPOPMIN', KEYS[1])
if #popped == 0 then return false end
local jid = popped[1]
local key = ARGV[1] .. 'job:' .. jid
redis.call('HSET', key, 'state', 'active', 'owner', ARGV[2], 'started_at', ARGV[3])
redis.call('ZADD', KEYS[2], ARGV[4], jid)
return jid
`)

// finalizeScript records a terminal state, but only if the job is still
// active and owned by the caller. Publishes the terminal state on the
// job's done channel in the same atomic step.
//
// Returns 1 on success, -1 if the job does not exist, -2 on an ownership
// or state mismatch.
var finalizeScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
local state = redis.call('HGET', KEYS[1], 'state')
local owner = redis.call('HGET', KEYS[1], 'owner')
if state ~= 'active' or owner ~= ARGV[1] then return -2 end
redis.call('HSET', KEYS[1], 'state', ARGV[2], 'finished_at', ARGV[3])
if ARGV[2] == 'completed' then
  redis.call('HSET', KEYS[1], 'result', ARGV[5])
else
  redis.call('HSET', KEYS[1], 'failure_kind', ARGV[5], 'failure_message', ARGV[6])
end
redis.call('HDEL', KEYS[1], 'owner')
redis.call('ZREM', KEYS[2], ARGV[4])
redis.call('PUBLISH', ARGV[7], ARGV[2])
return 1
`)

// sweepScript reclaims active jobs claimed before the cutoff. Jobs that
// finalized since their active-set entry was written are skipped, which
// makes the sweep idempotent. Returns a flat [jid, owner, ...] list; the
// owner is captured before the hash clears it so callers can report who
// abandoned each job.
var sweepScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
local swept = {}
for _, jid in ipairs(ids) do
  local key = ARGV[1] .. 'job:' .. jid
  if redis.call('HGET', key, 'state') == 'active' then
    local owner = redis.call('HGET', key, 'owner') or ''
    redis.call('HSET', key, 'state', 'timed_out', 'finished_at', ARGV[3])
    redis.call('HDEL', key, 'owner')
    redis.call('PUBLISH', ARGV[1] .. 'done:' .. jid, 'timed_out')
    table.insert(swept, jid)
    table.insert(swept, owner)
  end
  redis.call('ZREM', KEYS[1], jid)
end
return swept
`)

// EnqueueJob stores the job as a Hash and adds it to its type's Sorted
// Set in a single transaction.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("quarry/redis: enqueue check exists: %w", err)
	}
	if exists > 0 {
		return quarry.ErrJobAlreadyExists
	}

	j.State = job.StateQueued
	fields := jobToMap(j)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, jobIDsKey, jID)
	pipe.ZAdd(ctx, queueKey(j.Type), goredis.Z{
		Score:  jobScore(j.Priority, j.CreatedAt),
		Member: jID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("quarry/redis: enqueue job: %w", err)
	}
	return nil
}

// ClaimJob atomically claims the best queued job of the given type.
func (s *Store) ClaimJob(ctx context.Context, jobType string, workerID id.WorkerID) (*job.Job, error) {
	now := time.Now().UTC()

	res, err := claimScript.Run(ctx, s.client,
		[]string{queueKey(jobType), activeKey},
		keyPrefix,
		workerID.String(),
		now.Format(time.RFC3339Nano),
		now.Unix(),
	).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("quarry/redis: claim job: %w", err)
	}

	jID, ok := res.(string)
	if !ok {
		return nil, nil
	}
	return s.getJobByKey(ctx, jobKey(jID))
}

// CompleteJob records a result if workerID still owns the job.
func (s *Store) CompleteJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, result []byte) error {
	return s.finalize(ctx, jobID, workerID, job.StateCompleted, string(result), "")
}

// FailJob records a failure if workerID still owns the job.
func (s *Store) FailJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, failure *job.Failure) error {
	return s.finalize(ctx, jobID, workerID, job.StateFailed, failure.Kind, failure.Message)
}

func (s *Store) finalize(ctx context.Context, jobID id.JobID, workerID id.WorkerID, state job.State, arg5, arg6 string) error {
	jID := jobID.String()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := finalizeScript.Run(ctx, s.client,
		[]string{jobKey(jID), activeKey},
		workerID.String(),
		string(state),
		now,
		jID,
		arg5,
		arg6,
		doneChannel(jID),
	).Int()
	if err != nil {
		return fmt.Errorf("quarry/redis: finalize job: %w", err)
	}

	switch res {
	case 1:
		return nil
	case -1:
		return quarry.ErrJobNotFound
	default:
		return quarry.ErrOwnershipMismatch
	}
}

// SweepExpired reclaims active jobs claimed before the cutoff, marking
// them timed out.
func (s *Store) SweepExpired(ctx context.Context, olderThan time.Duration) ([]*job.Job, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-olderThan).Unix()

	res, err := sweepScript.Run(ctx, s.client,
		[]string{activeKey},
		keyPrefix,
		cutoff,
		now.Format(time.RFC3339Nano),
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("quarry/redis: sweep expired: %w", err)
	}

	reclaimed := make([]*job.Job, 0, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		jID, owner := res[i], res[i+1]
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if owner != "" {
			j.Owner, _ = id.ParseWorkerID(owner) //nolint:errcheck // best-effort parse from trusted Redis data
		}
		reclaimed = append(reclaimed, j)
	}
	return reclaimed, nil
}

// AwaitJob blocks until the job's done channel announces a terminal
// transition or until timeout elapses. The subscription is established
// before the state re-check so a transition between the two is never
// missed.
func (s *Store) AwaitJob(ctx context.Context, jobID id.JobID, timeout time.Duration) (*job.Job, error) {
	jID := jobID.String()

	sub := s.client.Subscribe(ctx, doneChannel(jID))
	defer sub.Close() //nolint:errcheck // best-effort unsubscribe

	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.State.Terminal() {
		return j, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-sub.Channel():
		return s.GetJob(ctx, jobID)
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJobByKey(ctx, jobKey(jobID.String()))
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()
	key := jobKey(jID)

	// Get the type before deleting to remove the queue index entry.
	jobType, err := s.client.HGet(ctx, key, "type").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return quarry.ErrJobNotFound
		}
		return fmt.Errorf("quarry/redis: delete job get type: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, jobIDsKey, jID)
	pipe.ZRem(ctx, queueKey(jobType), jID)
	pipe.ZRem(ctx, activeKey, jID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("quarry/redis: delete job: %w", err)
	}
	return nil
}

// ListJobsByState returns jobs matching the given state.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("quarry/redis: list jobs smembers: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // skip missing
		}
		if j.State != state {
			continue
		}
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		jobs = append(jobs, j)
	}

	if opts.Offset > 0 && opts.Offset < len(jobs) {
		jobs = jobs[opts.Offset:]
	} else if opts.Offset >= len(jobs) && opts.Offset > 0 {
		return nil, nil
	}
	if opts.Limit > 0 && opts.Limit < len(jobs) {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("quarry/redis: count smembers: %w", err)
	}

	var count int64
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		count++
	}
	return count, nil
}

// PurgeTerminalJobs deletes auto-cleanup jobs that finished more than
// olderThan ago.
func (s *Store) PurgeTerminalJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("quarry/redis: purge smembers: %w", err)
	}

	var count int64
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if !j.State.Terminal() || !j.AutoCleanup {
			continue
		}
		if j.FinishedAt == nil || !j.FinishedAt.Before(cutoff) {
			continue
		}

		pipe := s.client.TxPipeline()
		pipe.Del(ctx, jobKey(jID))
		pipe.SRem(ctx, jobIDsKey, jID)
		if _, pErr := pipe.Exec(ctx); pErr != nil {
			return count, fmt.Errorf("quarry/redis: purge job: %w", pErr)
		}
		count++
	}
	return count, nil
}

// jobScore computes a sorted-set score from priority and enqueue time.
// Lower score = claimed first. Priority is negated so higher priority
// sorts first; the fractional time component keeps FIFO within a
// priority.
func jobScore(priority int, createdAt time.Time) float64 {
	return float64(-priority) + float64(createdAt.UnixMilli())/1e15
}

func jobToMap(j *job.Job) map[string]interface{} {
	m := map[string]interface{}{
		"id":           j.ID.String(),
		"type":         j.Type,
		"payload":      string(j.Payload),
		"state":        string(j.State),
		"priority":     strconv.Itoa(j.Priority),
		"auto_cleanup": boolToStr(j.AutoCleanup),
		"created_at":   j.CreatedAt.Format(time.RFC3339Nano),
	}
	if !j.Owner.IsNil() {
		m["owner"] = j.Owner.String()
	}
	if j.Result != nil {
		m["result"] = string(j.Result)
	}
	if j.Failure != nil {
		m["failure_kind"] = j.Failure.Kind
		m["failure_message"] = j.Failure.Message
	}
	if j.StartedAt != nil {
		m["started_at"] = j.StartedAt.Format(time.RFC3339Nano)
	}
	if j.FinishedAt != nil {
		m["finished_at"] = j.FinishedAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("quarry/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, quarry.ErrJobNotFound
	}
	return mapToJob(vals)
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("quarry/redis: parse job id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])                    //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		ID:          jID,
		Type:        m["type"],
		Payload:     []byte(m["payload"]),
		State:       job.State(m["state"]),
		Priority:    priority,
		AutoCleanup: m["auto_cleanup"] == "1",
		CreatedAt:   createdAt,
	}

	if v, ok := m["result"]; ok {
		j.Result = []byte(v)
	}
	if msg, ok := m["failure_message"]; ok {
		j.Failure = &job.Failure{Kind: m["failure_kind"], Message: msg}
	}
	if owner := m["owner"]; owner != "" {
		j.Owner, _ = id.ParseWorkerID(owner) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["started_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.StartedAt = &t
	}
	if v := m["finished_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.FinishedAt = &t
	}

	return j, nil
}
