package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Attempts is a fixed-window failure counter for short one-time codes
// (email verification, TOTP). Each subject gets Max failures per Window.
// Max <= 0 disables it.
type Attempts struct {
	redis  redis.UniversalClient
	prefix string
	max    int64
	window time.Duration
}

func NewAttempts(redisClient redis.UniversalClient, prefix string, max int, window time.Duration) *Attempts {
	return &Attempts{redis: redisClient, prefix: prefix, max: int64(max), window: window}
}

func (a *Attempts) enabled() bool {
	return a != nil && a.max > 0
}

func (a *Attempts) key(subject string) string {
	return a.prefix + ":" + subject
}

// Check returns ErrRateLimited once subject has used its budget.
func (a *Attempts) Check(ctx context.Context, subject string) error {
	if !a.enabled() {
		return nil
	}
	count, err := a.redis.Get(ctx, a.key(subject)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= a.max {
		return ErrRateLimited
	}
	return nil
}

// RecordFailure counts one failure. The window starts at the first one.
func (a *Attempts) RecordFailure(ctx context.Context, subject string) error {
	if !a.enabled() {
		return nil
	}
	count, err := a.redis.Incr(ctx, a.key(subject)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := a.redis.Expire(ctx, a.key(subject), a.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil
}

func (a *Attempts) Reset(ctx context.Context, subject string) error {
	if !a.enabled() {
		return nil
	}
	if err := a.redis.Del(ctx, a.key(subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
