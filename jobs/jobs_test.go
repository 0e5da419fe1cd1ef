package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func mustJob(t *testing.T, jobType string, due time.Time) *Job {
	t.Helper()
	job, err := NewJob(jobType, map[string]int{"n": 1}, due)
	require.NoError(t, err)
	return job
}

func TestDueJobsRespectsDueTime(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	s := NewScheduler(rdb, SchedulerConfig{})
	ctx := context.Background()

	due := time.UnixMilli(1_700_000_000_000)
	job := mustJob(t, "send_verification_email", due)
	require.NoError(t, s.Schedule(ctx, job))

	before, err := s.DueJobs(ctx, due.Add(-time.Millisecond))
	require.NoError(t, err)
	require.Empty(t, before)

	at, err := s.DueJobs(ctx, due)
	require.NoError(t, err)
	require.Len(t, at, 1)
	require.Equal(t, job.ID, at[0].ID)

	after, err := s.DueJobs(ctx, due.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, after, 1, "DueJobs must not claim")
}

func TestClaimLeasesAndReclaimsExpired(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	s := NewScheduler(rdb, SchedulerConfig{LeaseTTL: time.Minute})
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	a := mustJob(t, "a", now.Add(-time.Second))
	b := mustJob(t, "b", now.Add(time.Hour))
	require.NoError(t, s.Schedule(ctx, a))
	require.NoError(t, s.Schedule(ctx, b))

	claimed, err := s.Claim(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, a.ID, claimed[0].ID)

	again, err := s.Claim(ctx, now.Add(time.Second), 10)
	require.NoError(t, err)
	require.Empty(t, again, "leased job must not be claimed twice")

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, Stats{Pending: 1, InFlight: 1}, stats)

	reclaimed, err := s.Claim(ctx, now.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	require.Equal(t, a.ID, reclaimed[0].ID)
}

func TestRemoveByIdentifier(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	s := NewScheduler(rdb, SchedulerConfig{})
	ctx := context.Background()

	job := mustJob(t, "a", time.Now())
	require.NoError(t, s.Schedule(ctx, job))

	removed, err := s.Remove(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = s.Remove(ctx, job.ID)
	require.NoError(t, err)
	require.False(t, removed)

	_, err = s.Get(ctx, job.ID)
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestProcessorAcksSuccessfulJobs(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	s := NewScheduler(rdb, SchedulerConfig{})
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	var calls int32
	p := NewProcessor(s, ProcessorConfig{}, WithMetrics(metrics))
	p.Handle("greet", HandlerFunc(func(ctx context.Context, job Job) error {
		var payload map[string]int
		require.NoError(t, job.Decode(&payload))
		require.Equal(t, 1, payload["n"])
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	require.NoError(t, s.Schedule(ctx, mustJob(t, "greet", time.Now().Add(-time.Second))))
	require.NoError(t, s.Schedule(ctx, mustJob(t, "greet", time.Now().Add(time.Hour))))

	n, err := p.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	stats, _ := s.Stats(ctx)
	require.Equal(t, Stats{Pending: 1}, stats)
	require.NotNil(t, metrics)
	require.Equal(t, float64(1), counterValue(t, reg, "jobs_processed_total"))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		total := 0.0
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	return 0
}

func TestProcessorRetriesWithBackoffThenDeadLetters(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	s := NewScheduler(rdb, SchedulerConfig{})
	ctx := context.Background()

	now := time.UnixMilli(1_700_000_000_000)
	clock := func() time.Time { return now }
	p := NewProcessor(s, ProcessorConfig{MaxAttempts: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute}, WithClock(clock))
	p.Handle("flaky", HandlerFunc(func(context.Context, Job) error { return errors.New("smtp down") }))

	job := mustJob(t, "flaky", now)
	require.NoError(t, s.Schedule(ctx, job))

	_, err := p.Tick(ctx)
	require.NoError(t, err)
	stored, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.Attempts)
	require.Equal(t, "smtp down", stored.LastError)
	require.Equal(t, now.Add(time.Second).UnixMilli(), stored.DueAt)

	now = now.Add(time.Second)
	_, _ = p.Tick(ctx)
	stored, _ = s.Get(ctx, job.ID)
	require.Equal(t, 2, stored.Attempts)
	require.Equal(t, now.Add(2*time.Second).UnixMilli(), stored.DueAt)

	now = now.Add(2 * time.Second)
	_, _ = p.Tick(ctx)

	dead, err := s.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	require.Equal(t, 3, dead[0].Attempts)

	stats, _ := s.Stats(ctx)
	require.Equal(t, Stats{Dead: 1}, stats)
}

func TestProcessorDeadLettersUnknownTypeAndRecoversPanics(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	s := NewScheduler(rdb, SchedulerConfig{})
	ctx := context.Background()

	p := NewProcessor(s, ProcessorConfig{MaxAttempts: 1})
	p.Handle("boom", HandlerFunc(func(context.Context, Job) error { panic("nil map") }))

	require.NoError(t, s.Schedule(ctx, mustJob(t, "mystery", time.Now().Add(-time.Second))))
	require.NoError(t, s.Schedule(ctx, mustJob(t, "boom", time.Now().Add(-time.Second))))

	n, err := p.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	dead, err := s.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 2)
}

func TestProcessorIdleWithoutLease(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	s := NewScheduler(rdb, SchedulerConfig{})
	ctx := context.Background()

	leader := NewLease(rdb, "jobs:leader", 10*time.Second)
	ok, err := leader.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	follower := NewProcessor(s, ProcessorConfig{}, WithLease(NewLease(rdb, "jobs:leader", 10*time.Second)))
	follower.Handle("a", HandlerFunc(func(context.Context, Job) error { return nil }))
	require.NoError(t, s.Schedule(ctx, mustJob(t, "a", time.Now().Add(-time.Second))))

	n, err := follower.Tick(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, leader.Release(ctx))
	n, err = follower.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestLeaseExpiresAndRefreshes(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	ctx := context.Background()

	a := NewLease(rdb, "l", 5*time.Second)
	b := NewLease(rdb, "l", 5*time.Second)

	ok, _ := a.Acquire(ctx)
	require.True(t, ok)
	ok, _ = a.Acquire(ctx)
	require.True(t, ok, "owner re-acquire refreshes")
	ok, _ = b.Acquire(ctx)
	require.False(t, ok)

	require.NoError(t, b.Release(ctx))
	require.True(t, mr.Exists("l"), "non-owner release must not delete")

	mr.FastForward(6 * time.Second)
	ok, _ = b.Acquire(ctx)
	require.True(t, ok)
}

func TestRunStopsOnCancel(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	s := NewScheduler(rdb, SchedulerConfig{})

	var calls int32
	p := NewProcessor(s, ProcessorConfig{Interval: 10 * time.Millisecond}, WithLease(NewLease(rdb, "", 0)))
	p.Handle("a", HandlerFunc(func(context.Context, Job) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))
	require.NoError(t, s.Schedule(context.Background(), mustJob(t, "a", time.Now())))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	require.False(t, mr.Exists("jobs:leader"), "lease released on stop")
}

func TestBackoffCapped(t *testing.T) {
	p := NewProcessor(nil, ProcessorConfig{BaseBackoff: time.Second, MaxBackoff: 5 * time.Second})
	require.Equal(t, time.Second, p.backoff(1))
	require.Equal(t, 2*time.Second, p.backoff(2))
	require.Equal(t, 4*time.Second, p.backoff(3))
	require.Equal(t, 5*time.Second, p.backoff(4))
}
