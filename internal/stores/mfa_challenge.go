package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	mfaChallengeRecordVersion1 = 1
)

var (
	ErrMFAChallengeNotFound = errors.New("mfa challenge not found")
	ErrMFAChallengeBackend  = errors.New("mfa challenge backend unavailable")
)

// MFAChallenge binds a one-time key to the identity that passed the password
// step. RememberMe is carried so the token issued after the TOTP step honours
// the original request.
type MFAChallenge struct {
	IdentityID int64
	RememberMe bool
}

type MFAChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewMFAChallengeStore(redisClient redis.UniversalClient, prefix string) *MFAChallengeStore {
	if prefix == "" {
		prefix = "amc"
	}
	return &MFAChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *MFAChallengeStore) key(challengeKey string) string {
	return s.prefix + ":" + challengeKey
}

func (s *MFAChallengeStore) Save(ctx context.Context, challengeKey string, record *MFAChallenge, ttl time.Duration) error {
	var buf bytes.Buffer
	buf.WriteByte(mfaChallengeRecordVersion1)
	if err := binary.Write(&buf, binary.BigEndian, record.IdentityID); err != nil {
		return err
	}
	if record.RememberMe {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	if err := s.redis.Set(ctx, s.key(challengeKey), buf.Bytes(), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMFAChallengeBackend, err)
	}
	return nil
}

// Consume atomically reads and deletes the challenge.
func (s *MFAChallengeStore) Consume(ctx context.Context, challengeKey string) (*MFAChallenge, error) {
	if challengeKey == "" {
		return nil, ErrMFAChallengeNotFound
	}
	data, err := s.redis.GetDel(ctx, s.key(challengeKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMFAChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrMFAChallengeBackend, err)
	}

	reader := bytes.NewReader(data)
	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != mfaChallengeRecordVersion1 {
		return nil, errors.New("invalid mfa challenge version")
	}
	record := &MFAChallenge{}
	if err := binary.Read(reader, binary.BigEndian, &record.IdentityID); err != nil {
		return nil, err
	}
	remember, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record.RememberMe = remember == 1
	return record, nil
}
