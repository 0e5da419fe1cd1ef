package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/challengeAuth/permission"
)

var (
	ErrPermissionCacheMiss    = errors.New("permission cache miss")
	ErrPermissionCacheBackend = errors.New("permission cache backend unavailable")
)

// genTTL bounds how long an invalidation generation outlives its last bump.
const genTTL = 24 * time.Hour

// setPermissionCacheLua writes the entry only if no invalidation happened
// since the caller read the generation.
// KEYS[1] = entry key
// KEYS[2] = generation key
// ARGV[1] = encoded entry
// ARGV[2] = ttl in milliseconds
// ARGV[3] = generation observed before loading
//
// Returns 1 when written, 0 when the generation moved.
var setPermissionCacheLua = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[3] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

// PermissionCacheStore caches permission.Resolved per identity as JSON.
type PermissionCacheStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPermissionCacheStore(redisClient redis.UniversalClient, prefix string) *PermissionCacheStore {
	if prefix == "" {
		prefix = "apc"
	}
	return &PermissionCacheStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *PermissionCacheStore) key(identityID int64) string {
	return s.prefix + ":" + strconv.FormatInt(identityID, 10)
}

func (s *PermissionCacheStore) genKey(identityID int64) string {
	return s.key(identityID) + ":gen"
}

// Generation returns the invalidation generation of identityID, "0" when
// its grants never changed.
func (s *PermissionCacheStore) Generation(ctx context.Context, identityID int64) (string, error) {
	gen, err := s.redis.Get(ctx, s.genKey(identityID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "0", nil
		}
		return "", fmt.Errorf("%w: %v", ErrPermissionCacheBackend, err)
	}
	return gen, nil
}

func (s *PermissionCacheStore) Get(ctx context.Context, identityID int64) (*permission.Resolved, error) {
	data, err := s.redis.Get(ctx, s.key(identityID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPermissionCacheMiss
		}
		return nil, fmt.Errorf("%w: %v", ErrPermissionCacheBackend, err)
	}
	var resolved permission.Resolved
	if err := json.Unmarshal(data, &resolved); err != nil {
		// Unreadable entries are treated as absent and dropped.
		_ = s.redis.Del(ctx, s.key(identityID)).Err()
		return nil, ErrPermissionCacheMiss
	}
	return &resolved, nil
}

// SetIfGeneration stores resolved only while the generation still equals
// gen. A false result means grants changed during the load and the entry
// was not written.
func (s *PermissionCacheStore) SetIfGeneration(ctx context.Context, identityID int64, resolved permission.Resolved, ttl time.Duration, gen string) (bool, error) {
	data, err := json.Marshal(resolved)
	if err != nil {
		return false, err
	}
	keys := []string{s.key(identityID), s.genKey(identityID)}
	written, err := setPermissionCacheLua.Run(ctx, s.redis, keys, data, ttl.Milliseconds(), gen).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPermissionCacheBackend, err)
	}
	return written == 1, nil
}

// Invalidate deletes the cached entries of every listed identity and bumps
// their generations so in-flight loads do not write stale sets back.
func (s *PermissionCacheStore) Invalidate(ctx context.Context, identityIDs ...int64) error {
	if len(identityIDs) == 0 {
		return nil
	}
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range identityIDs {
			pipe.Del(ctx, s.key(id))
			pipe.Incr(ctx, s.genKey(id))
			pipe.Expire(ctx, s.genKey(id), genTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionCacheBackend, err)
	}
	return nil
}
