package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrJobBackend  = errors.New("job queue backend unavailable")
	ErrJobNotFound = errors.New("job not found")
)

// claimLua reclaims expired leases, then leases up to ARGV[3] due jobs.
// KEYS[1] = pending zset
// KEYS[2] = in-flight zset
// KEYS[3] = job body hash
// ARGV[1] = now (ms)
// ARGV[2] = lease duration (ms)
// ARGV[3] = max jobs to claim
//
// Returns the claimed job bodies in due order.
var claimLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local lease = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', now)
for _, id in ipairs(expired) do
  redis.call('ZREM', KEYS[2], id)
  redis.call('ZADD', KEYS[1], now, id)
end

local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', now, 'LIMIT', 0, limit)
local out = {}
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  local body = redis.call('HGET', KEYS[3], id)
  if body then
    redis.call('ZADD', KEYS[2], now + lease, id)
    table.insert(out, body)
  end
end
return out
`)

// SchedulerConfig names the Redis keys and the claim lease.
type SchedulerConfig struct {
	Prefix   string
	LeaseTTL time.Duration
}

// Scheduler is the producer and claim side of the queue.
type Scheduler struct {
	redis    redis.UniversalClient
	prefix   string
	leaseTTL time.Duration
}

// Stats counts ids per state.
type Stats struct {
	Pending  int64
	InFlight int64
	Dead     int64
}

func NewScheduler(redisClient redis.UniversalClient, cfg SchedulerConfig) *Scheduler {
	if cfg.Prefix == "" {
		cfg.Prefix = "jobs"
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = time.Minute
	}
	return &Scheduler{
		redis:    redisClient,
		prefix:   cfg.Prefix,
		leaseTTL: cfg.LeaseTTL,
	}
}

func (s *Scheduler) pendingKey() string  { return s.prefix + ":pending" }
func (s *Scheduler) inFlightKey() string { return s.prefix + ":inflight" }
func (s *Scheduler) deadKey() string     { return s.prefix + ":dead" }
func (s *Scheduler) bodyKey() string     { return s.prefix + ":body" }

// Schedule stores the job and queues it at its due time. Re-scheduling an
// existing id replaces its body and due time.
func (s *Scheduler) Schedule(ctx context.Context, job *Job) error {
	if job == nil || job.ID == "" || job.Type == "" {
		return errors.New("job id and type required")
	}
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.bodyKey(), job.ID, body)
		pipe.ZRem(ctx, s.inFlightKey(), job.ID)
		pipe.ZRem(ctx, s.deadKey(), job.ID)
		pipe.ZAdd(ctx, s.pendingKey(), redis.Z{Score: float64(job.DueAt), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJobBackend, err)
	}
	return nil
}

// DueJobs lists pending jobs due at or before now without claiming them.
func (s *Scheduler) DueJobs(ctx context.Context, now time.Time) ([]Job, error) {
	ids, err := s.redis.ZRangeByScore(ctx, s.pendingKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJobBackend, err)
	}
	return s.load(ctx, ids)
}

// Claim leases up to limit due jobs for the configured lease duration.
func (s *Scheduler) Claim(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	res, err := claimLua.Run(ctx, s.redis,
		[]string{s.pendingKey(), s.inFlightKey(), s.bodyKey()},
		now.UnixMilli(), s.leaseTTL.Milliseconds(), limit,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJobBackend, err)
	}
	jobs := make([]Job, 0, len(res))
	for _, body := range res {
		var job Job
		if err := json.Unmarshal([]byte(body), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Ack marks a claimed job done and forgets it.
func (s *Scheduler) Ack(ctx context.Context, id string) error {
	_, err := s.Remove(ctx, id)
	return err
}

// Remove deletes the job from every state by id. It reports whether a body
// was present.
func (s *Scheduler) Remove(ctx context.Context, id string) (bool, error) {
	var hdel *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, s.pendingKey(), id)
		pipe.ZRem(ctx, s.inFlightKey(), id)
		pipe.ZRem(ctx, s.deadKey(), id)
		hdel = pipe.HDel(ctx, s.bodyKey(), id)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrJobBackend, err)
	}
	return hdel.Val() > 0, nil
}

// Reschedule returns a claimed job to pending at dueAt with its updated
// attempt count and last error.
func (s *Scheduler) Reschedule(ctx context.Context, job Job, dueAt time.Time) error {
	job.DueAt = dueAt.UnixMilli()
	return s.Schedule(ctx, &job)
}

// DeadLetter parks a job in the dead set. It is kept for inspection and never
// claimed again unless re-scheduled.
func (s *Scheduler) DeadLetter(ctx context.Context, job Job, at time.Time) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.bodyKey(), job.ID, body)
		pipe.ZRem(ctx, s.pendingKey(), job.ID)
		pipe.ZRem(ctx, s.inFlightKey(), job.ID)
		pipe.ZAdd(ctx, s.deadKey(), redis.Z{Score: float64(at.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJobBackend, err)
	}
	return nil
}

// DeadLetters lists dead jobs, oldest first.
func (s *Scheduler) DeadLetters(ctx context.Context) ([]Job, error) {
	ids, err := s.redis.ZRange(ctx, s.deadKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJobBackend, err)
	}
	return s.load(ctx, ids)
}

// Get loads one job body by id.
func (s *Scheduler) Get(ctx context.Context, id string) (*Job, error) {
	jobs, err := s.load(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, ErrJobNotFound
	}
	return &jobs[0], nil
}

func (s *Scheduler) Stats(ctx context.Context) (Stats, error) {
	var pending, inFlight, dead *redis.IntCmd
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pending = pipe.ZCard(ctx, s.pendingKey())
		inFlight = pipe.ZCard(ctx, s.inFlightKey())
		dead = pipe.ZCard(ctx, s.deadKey())
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrJobBackend, err)
	}
	return Stats{Pending: pending.Val(), InFlight: inFlight.Val(), Dead: dead.Val()}, nil
}

func (s *Scheduler) load(ctx context.Context, ids []string) ([]Job, error) {
	if len(ids) == 0 {
		return []Job{}, nil
	}
	values, err := s.redis.HMGet(ctx, s.bodyKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJobBackend, err)
	}
	jobs := make([]Job, 0, len(values))
	for _, v := range values {
		body, ok := v.(string)
		if !ok {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(body), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
