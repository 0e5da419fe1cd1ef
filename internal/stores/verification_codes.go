package stores

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrVerificationSlotsExhausted = errors.New("verification slots exhausted")
	ErrVerificationCodeNotFound   = errors.New("verification code not found")
	ErrVerificationBackend        = errors.New("verification backend unavailable")
)

// issueVerificationLua claims the first free slot unless the last slot is live.
// KEYS[1..n] = slot keys in slot order
// ARGV[1] = code
// ARGV[2] = ttl in milliseconds
//
// Returns the claimed slot index (0-based) or -1 when no slot may be claimed.
var issueVerificationLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[#KEYS]) == 1 then
  return -1
end
for i = 1, #KEYS do
  if redis.call('EXISTS', KEYS[i]) == 0 then
    redis.call('SET', KEYS[i], ARGV[1], 'PX', ARGV[2])
    return i - 1
  end
end
return -1
`)

// VerificationCodeStore keeps up to Slots concurrently live codes per
// identity, one key per slot.
type VerificationCodeStore struct {
	redis  redis.UniversalClient
	prefix string
	slots  int
}

func NewVerificationCodeStore(redisClient redis.UniversalClient, prefix string, slots int) *VerificationCodeStore {
	if prefix == "" {
		prefix = "aev"
	}
	if slots <= 0 {
		slots = 3
	}
	return &VerificationCodeStore{
		redis:  redisClient,
		prefix: prefix,
		slots:  slots,
	}
}

func (s *VerificationCodeStore) Slots() int { return s.slots }

func (s *VerificationCodeStore) key(identityID int64, slot int) string {
	return s.prefix + ":" + strconv.FormatInt(identityID, 10) + ":" + strconv.Itoa(slot)
}

func (s *VerificationCodeStore) keys(identityID int64) []string {
	keys := make([]string, s.slots)
	for i := range keys {
		keys[i] = s.key(identityID, i)
	}
	return keys
}

// Issue stores code in the first free slot and returns its index. While the
// highest slot is live it refuses with ErrVerificationSlotsExhausted.
func (s *VerificationCodeStore) Issue(ctx context.Context, identityID int64, code string, ttl time.Duration) (int, error) {
	slot, err := issueVerificationLua.Run(ctx, s.redis, s.keys(identityID), code, ttl.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrVerificationBackend, err)
	}
	if slot < 0 {
		return 0, ErrVerificationSlotsExhausted
	}
	return slot, nil
}

// Peek returns the code in slot without consuming it.
func (s *VerificationCodeStore) Peek(ctx context.Context, identityID int64, slot int) (string, error) {
	if slot < 0 || slot >= s.slots {
		return "", ErrVerificationCodeNotFound
	}
	code, err := s.redis.Get(ctx, s.key(identityID, slot)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrVerificationCodeNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrVerificationBackend, err)
	}
	return code, nil
}

// Consume compares code against every live slot. The matching slot is
// claimed by DEL; only the caller whose DEL removed the key succeeds. With
// invalidateSiblings the remaining slots are cleared as well.
func (s *VerificationCodeStore) Consume(ctx context.Context, identityID int64, code string, invalidateSiblings bool) (bool, error) {
	if code == "" {
		return false, nil
	}
	keys := s.keys(identityID)
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrVerificationBackend, err)
	}

	matched := -1
	for i, v := range values {
		stored, ok := v.(string)
		if !ok {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) == 1 && matched < 0 {
			matched = i
		}
	}
	if matched < 0 {
		return false, nil
	}

	n, err := s.redis.Del(ctx, keys[matched]).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrVerificationBackend, err)
	}
	if n == 0 {
		return false, nil
	}
	if invalidateSiblings {
		if err := s.redis.Del(ctx, keys...).Err(); err != nil {
			return true, fmt.Errorf("%w: %v", ErrVerificationBackend, err)
		}
	}
	return true, nil
}

// Clear drops every slot of the identity.
func (s *VerificationCodeStore) Clear(ctx context.Context, identityID int64) error {
	if err := s.redis.Del(ctx, s.keys(identityID)...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationBackend, err)
	}
	return nil
}
