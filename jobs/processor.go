package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrUnknownJobType is recorded on jobs whose type has no handler.
var ErrUnknownJobType = errors.New("no handler registered for job type")

// Handler processes one job. Handlers must be idempotent: a job may be
// delivered again after a crash or an expired lease.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error { return f(ctx, job) }

// ProcessorConfig controls polling and retry.
type ProcessorConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (c *ProcessorConfig) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = 5000 * time.Millisecond
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 5 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Minute
	}
}

// Processor polls the scheduler on a fixed interval and dispatches due jobs
// sequentially by type.
type Processor struct {
	scheduler *Scheduler
	lease     *Lease
	config    ProcessorConfig
	logger    *zap.Logger
	metrics   *Metrics
	now       func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler
}

// ProcessorOption customizes a Processor.
type ProcessorOption func(*Processor)

// WithLease makes the processor claim work only while it holds lease.
func WithLease(lease *Lease) ProcessorOption {
	return func(p *Processor) { p.lease = lease }
}

func WithLogger(logger *zap.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

func NewProcessor(scheduler *Scheduler, cfg ProcessorConfig, opts ...ProcessorOption) *Processor {
	cfg.setDefaults()
	p := &Processor{
		scheduler: scheduler,
		config:    cfg,
		logger:    zap.NewNop(),
		now:       time.Now,
		handlers:  make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle registers h for jobType, replacing any previous handler.
func (p *Processor) Handle(jobType string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[jobType] = h
}

func (p *Processor) handler(jobType string) (Handler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handlers[jobType]
	return h, ok
}

// Run ticks until ctx is cancelled, then releases the leader lease.
func (p *Processor) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.logger.Info("job processor started", zap.Duration("interval", p.config.Interval))
	defer func() {
		if p.lease != nil {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := p.lease.Release(releaseCtx); err != nil {
				p.logger.Warn("release leader lease failed", zap.Error(err))
			}
		}
		p.logger.Info("job processor stopped")
	}()

	for {
		if _, err := p.Tick(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("job tick failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Tick claims the currently due jobs and processes them one by one. It
// returns the number of jobs handed to a handler. A non-leader returns 0.
func (p *Processor) Tick(ctx context.Context) (int, error) {
	if p.lease != nil {
		leader, err := p.lease.Acquire(ctx)
		if err != nil {
			return 0, err
		}
		if !leader {
			return 0, nil
		}
	}

	claimed, err := p.scheduler.Claim(ctx, p.now(), p.config.BatchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, job := range claimed {
		if ctx.Err() != nil {
			// Unprocessed claims go back to pending when their lease expires.
			break
		}
		if err := p.process(ctx, job); err != nil {
			p.logger.Error("job bookkeeping failed", zap.String("job_id", job.ID), zap.Error(err))
		}
		processed++
	}
	return processed, nil
}

func (p *Processor) process(ctx context.Context, job Job) error {
	h, ok := p.handler(job.Type)
	if !ok {
		job.Attempts++
		job.LastError = ErrUnknownJobType.Error()
		p.metrics.deadLetter(job.Type)
		p.logger.Warn("dead-lettering job with unknown type", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return p.scheduler.DeadLetter(ctx, job, p.now())
	}

	start := time.Now()
	herr := safeHandle(ctx, h, job)
	p.metrics.observe(job.Type, time.Since(start).Seconds(), herr)

	if herr == nil {
		p.logger.Debug("job processed", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return p.scheduler.Ack(ctx, job.ID)
	}

	job.Attempts++
	job.LastError = herr.Error()
	if job.Attempts >= p.config.MaxAttempts {
		p.metrics.deadLetter(job.Type)
		p.logger.Error("job dead-lettered",
			zap.String("job_id", job.ID),
			zap.String("type", job.Type),
			zap.Int("attempts", job.Attempts),
			zap.Error(herr))
		return p.scheduler.DeadLetter(ctx, job, p.now())
	}

	delay := p.backoff(job.Attempts)
	p.logger.Warn("job failed, retrying",
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempts", job.Attempts),
		zap.Duration("retry_in", delay),
		zap.Error(herr))
	return p.scheduler.Reschedule(ctx, job, p.now().Add(delay))
}

// backoff doubles BaseBackoff per failed attempt, capped at MaxBackoff.
func (p *Processor) backoff(attempts int) time.Duration {
	d := p.config.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= p.config.MaxBackoff {
			return p.config.MaxBackoff
		}
	}
	return d
}

func safeHandle(ctx context.Context, h Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, job)
}
