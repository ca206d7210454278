package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key written by RedisStorage.
const DefaultRedisPrefix = "notifykit:queue:"

// claimScript pops the earliest due member of the waiting set into the active
// set scored by its lock deadline.
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
	return false
end
redis.call('ZREM', KEYS[1], ids[1])
redis.call('ZADD', KEYS[2], ARGV[2], ids[1])
return ids[1]
`)

// moveScript moves a member between sorted sets only if it is in the source set.
var moveScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 1 then
	redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
	return 1
end
return 0
`)

// RedisStorage keeps jobs in Redis. Job documents live in one hash; each queue
// has sorted sets for waiting (scored by schedule time), active (scored by
// lock deadline), completed and failed (scored by finish time) jobs.
type RedisStorage struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// RedisOption configures a RedisStorage.
type RedisOption func(*RedisStorage)

func WithRedisPrefix(prefix string) RedisOption {
	return func(rs *RedisStorage) {
		if prefix != "" {
			rs.prefix = prefix
		}
	}
}

func WithRedisClock(now func() time.Time) RedisOption {
	return func(rs *RedisStorage) {
		if now != nil {
			rs.now = now
		}
	}
}

func NewRedisStorage(client redis.UniversalClient, opts ...RedisOption) (*RedisStorage, error) {
	if client == nil {
		return nil, ErrStorageNil
	}
	rs := &RedisStorage{
		client: client,
		prefix: DefaultRedisPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(rs)
	}
	return rs, nil
}

func (rs *RedisStorage) jobsKey() string { return rs.prefix + "jobs" }

func (rs *RedisStorage) setKey(queue string, status Status) string {
	if status == StatusDelayed {
		status = StatusWaiting
	}
	return rs.prefix + queue + ":" + string(status)
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func scoreArg(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func (rs *RedisStorage) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return ErrPayloadNil
	}

	c := job.clone()
	if !c.Status.Terminal() {
		c.Status = pendingStatus(c.ScheduledAt, rs.now())
	}
	data, err := json.Marshal(c)
	if err != nil {
		return errors.Join(ErrPayloadMarshal, err)
	}

	ok, err := rs.client.HSetNX(ctx, rs.jobsKey(), c.ID.String(), data).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobExists, c.ID)
	}

	at := c.ScheduledAt
	if c.Status.Terminal() && c.ProcessedAt != nil {
		at = *c.ProcessedAt
	}
	return rs.client.ZAdd(ctx, rs.setKey(c.Queue, c.Status), redis.Z{Score: score(at), Member: c.ID.String()}).Err()
}

func (rs *RedisStorage) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := rs.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status == StatusWaiting || job.Status == StatusDelayed {
		job.Status = pendingStatus(job.ScheduledAt, rs.now())
	}
	return job, nil
}

func (rs *RedisStorage) Claim(ctx context.Context, queue string, lock time.Duration) (*Job, error) {
	now := rs.now()
	until := now.Add(lock)

	raw, err := claimScript.Run(ctx, rs.client,
		[]string{rs.setKey(queue, StatusWaiting), rs.setKey(queue, StatusActive)},
		scoreArg(now), scoreArg(until),
	).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoJob
		}
		return nil, err
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("queue: malformed job id %q: %w", raw, err)
	}
	job, err := rs.load(ctx, id)
	if err != nil {
		return nil, err
	}

	job.Status = StatusActive
	job.LockedUntil = &until
	job.Attempts++
	if err := rs.save(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (rs *RedisStorage) Complete(ctx context.Context, id uuid.UUID) error {
	now := rs.now()
	job, err := rs.transition(ctx, id, StatusCompleted, now)
	if err != nil {
		return err
	}
	job.Status = StatusCompleted
	job.ProcessedAt = &now
	job.LockedUntil = nil
	return rs.save(ctx, job)
}

func (rs *RedisStorage) Fail(ctx context.Context, id uuid.UUID, reason string, retryIn time.Duration) (*Job, error) {
	job, err := rs.loadActive(ctx, id)
	if err != nil {
		return nil, err
	}

	now := rs.now()
	target, at := StatusFailed, now
	if retryIn >= 0 && job.Attempts < job.MaxAttempts {
		at = now.Add(retryIn)
		target = pendingStatus(at, now)
	}

	if _, err := rs.transition(ctx, id, target, at); err != nil {
		return nil, err
	}

	job.Error = reason
	job.LockedUntil = nil
	job.Status = target
	if target == StatusFailed {
		job.ProcessedAt = &now
	} else {
		job.ScheduledAt = at
	}
	if err := rs.save(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (rs *RedisStorage) ExtendLock(ctx context.Context, id uuid.UUID, d time.Duration) error {
	job, err := rs.loadActive(ctx, id)
	if err != nil {
		return err
	}
	until := rs.now().Add(d)
	if err := rs.client.ZAddXX(ctx, rs.setKey(job.Queue, StatusActive), redis.Z{Score: score(until), Member: id.String()}).Err(); err != nil {
		return err
	}
	job.LockedUntil = &until
	return rs.save(ctx, job)
}

func (rs *RedisStorage) RecoverExpired(ctx context.Context, queue string) (int, error) {
	now := rs.now()
	active := rs.setKey(queue, StatusActive)

	ids, err := rs.client.ZRangeByScore(ctx, active, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + scoreArg(now),
	}).Result()
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, raw := range ids {
		moved, err := moveScript.Run(ctx, rs.client,
			[]string{active, rs.setKey(queue, StatusWaiting)},
			raw, scoreArg(now),
		).Int()
		if err != nil {
			return recovered, err
		}
		if moved == 0 {
			continue
		}

		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		job, err := rs.load(ctx, id)
		if err != nil {
			return recovered, err
		}
		job.Status = StatusWaiting
		job.LockedUntil = nil
		job.ScheduledAt = now
		if err := rs.save(ctx, job); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

func (rs *RedisStorage) Stats(ctx context.Context, queue string) (Stats, error) {
	now := scoreArg(rs.now())
	waitingKey := rs.setKey(queue, StatusWaiting)

	var waiting, delayed, active, completed, failed *redis.IntCmd
	_, err := rs.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		waiting = p.ZCount(ctx, waitingKey, "-inf", now)
		delayed = p.ZCount(ctx, waitingKey, "("+now, "+inf")
		active = p.ZCard(ctx, rs.setKey(queue, StatusActive))
		completed = p.ZCard(ctx, rs.setKey(queue, StatusCompleted))
		failed = p.ZCard(ctx, rs.setKey(queue, StatusFailed))
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		Waiting:   int(waiting.Val()),
		Delayed:   int(delayed.Val()),
		Active:    int(active.Val()),
		Completed: int(completed.Val()),
		Failed:    int(failed.Val()),
	}, nil
}

func (rs *RedisStorage) Cleanup(ctx context.Context, queue string, olderThan time.Duration) (int, error) {
	cutoff := "(" + scoreArg(rs.now().Add(-olderThan))

	removed := 0
	for _, status := range []Status{StatusCompleted, StatusFailed} {
		key := rs.setKey(queue, status)
		ids, err := rs.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
		if err != nil {
			return removed, err
		}
		if len(ids) == 0 {
			continue
		}

		members := make([]any, len(ids))
		for i, id := range ids {
			members[i] = id
		}
		_, err = rs.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.ZRem(ctx, key, members...)
			p.HDel(ctx, rs.jobsKey(), ids...)
			return nil
		})
		if err != nil {
			return removed, err
		}
		removed += len(ids)
	}
	return removed, nil
}

// transition moves an active job into the set for target, scored by at.
func (rs *RedisStorage) transition(ctx context.Context, id uuid.UUID, target Status, at time.Time) (*Job, error) {
	job, err := rs.loadActive(ctx, id)
	if err != nil {
		return nil, err
	}
	moved, err := moveScript.Run(ctx, rs.client,
		[]string{rs.setKey(job.Queue, StatusActive), rs.setKey(job.Queue, target)},
		id.String(), scoreArg(at),
	).Int()
	if err != nil {
		return nil, err
	}
	if moved == 0 {
		return nil, fmt.Errorf("%w: %s", ErrJobNotActive, id)
	}
	return job, nil
}

func (rs *RedisStorage) loadActive(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := rs.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrJobNotActive, id, job.Status)
	}
	return job, nil
}

func (rs *RedisStorage) load(ctx context.Context, id uuid.UUID) (*Job, error) {
	data, err := rs.client.HGet(ctx, rs.jobsKey(), id.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("queue: decode job %s: %w", id, err)
	}
	return &job, nil
}

func (rs *RedisStorage) save(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.Join(ErrPayloadMarshal, err)
	}
	return rs.client.HSet(ctx, rs.jobsKey(), job.ID.String(), data).Err()
}
