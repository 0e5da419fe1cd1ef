package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrMFAEnrollmentNotFound = errors.New("mfa enrollment not found")
	ErrMFAEnrollmentBackend  = errors.New("mfa enrollment backend unavailable")
)

// MFAEnrollmentStore holds a pending TOTP secret until the identity proves
// possession of it. A failed confirmation leaves the secret in place until
// its TTL runs out.
type MFAEnrollmentStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewMFAEnrollmentStore(redisClient redis.UniversalClient, prefix string) *MFAEnrollmentStore {
	if prefix == "" {
		prefix = "ame"
	}
	return &MFAEnrollmentStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *MFAEnrollmentStore) key(identityID int64) string {
	return s.prefix + ":" + strconv.FormatInt(identityID, 10)
}

func (s *MFAEnrollmentStore) Save(ctx context.Context, identityID int64, secretBase32 string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(identityID), secretBase32, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMFAEnrollmentBackend, err)
	}
	return nil
}

func (s *MFAEnrollmentStore) Get(ctx context.Context, identityID int64) (string, error) {
	secret, err := s.redis.Get(ctx, s.key(identityID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMFAEnrollmentNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrMFAEnrollmentBackend, err)
	}
	return secret, nil
}

func (s *MFAEnrollmentStore) Delete(ctx context.Context, identityID int64) error {
	if err := s.redis.Del(ctx, s.key(identityID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMFAEnrollmentBackend, err)
	}
	return nil
}
