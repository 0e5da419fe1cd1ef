package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLeaseBackend = errors.New("leader lease backend unavailable")

// refreshLeaseLua extends the lease only while the caller still owns it.
var refreshLeaseLua = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// releaseLeaseLua deletes the lease only while the caller still owns it.
var releaseLeaseLua = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Lease is a single-writer lock with an expiry, owned by one process at a
// time. A crashed owner loses it after TTL.
type Lease struct {
	redis redis.UniversalClient
	key   string
	owner string
	ttl   time.Duration
}

func NewLease(redisClient redis.UniversalClient, key string, ttl time.Duration) *Lease {
	if key == "" {
		key = "jobs:leader"
	}
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &Lease{
		redis: redisClient,
		key:   key,
		owner: uuid.NewString(),
		ttl:   ttl,
	}
}

func (l *Lease) Owner() string { return l.owner }

// Acquire takes the lease or extends it when already held. It reports
// whether the caller is the leader.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.redis.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLeaseBackend, err)
	}
	if ok {
		return true, nil
	}
	n, err := refreshLeaseLua.Run(ctx, l.redis, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLeaseBackend, err)
	}
	return n == 1, nil
}

// Release gives the lease up if still owned.
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseLeaseLua.Run(ctx, l.redis, []string{l.key}, l.owner).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLeaseBackend, err)
	}
	return nil
}
