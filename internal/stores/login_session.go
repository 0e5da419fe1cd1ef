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
	loginSessionRecordVersion1 = 1

	loginSessionFlagDecoy = 1 << 0
)

var (
	ErrLoginSessionNotFound = errors.New("login session not found")
	ErrLoginSessionBackend  = errors.New("login session backend unavailable")
)

// LoginSession is the state issued by initLogin. A decoy session is stored
// for identifiers that matched no identity so that both paths consume a
// session and fail the same way.
type LoginSession struct {
	IdentityID   int64
	Email        string
	PasswordHash string
	Salt         string
	IV           string
	Challenge    string
	Decoy        bool
}

type LoginSessionStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewLoginSessionStore(redisClient redis.UniversalClient, prefix string) *LoginSessionStore {
	if prefix == "" {
		prefix = "als"
	}
	return &LoginSessionStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *LoginSessionStore) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *LoginSessionStore) Save(ctx context.Context, sessionID string, record *LoginSession, ttl time.Duration) error {
	encoded, err := encodeLoginSession(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(sessionID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginSessionBackend, err)
	}
	return nil
}

// Consume atomically reads and deletes the session. A session id validates
// at most once.
func (s *LoginSessionStore) Consume(ctx context.Context, sessionID string) (*LoginSession, error) {
	if sessionID == "" {
		return nil, ErrLoginSessionNotFound
	}
	data, err := s.redis.GetDel(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrLoginSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrLoginSessionBackend, err)
	}
	return decodeLoginSession(data)
}

func encodeLoginSession(record *LoginSession) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(loginSessionRecordVersion1)

	var flags byte
	if record.Decoy {
		flags |= loginSessionFlagDecoy
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, record.IdentityID); err != nil {
		return nil, err
	}
	for _, field := range []string{record.Email, record.PasswordHash, record.Salt, record.IV, record.Challenge} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeLoginSession(data []byte) (*LoginSession, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != loginSessionRecordVersion1 {
		return nil, errors.New("invalid login session version")
	}
	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &LoginSession{Decoy: flags&loginSessionFlagDecoy != 0}
	if err := binary.Read(reader, binary.BigEndian, &record.IdentityID); err != nil {
		return nil, err
	}
	for _, field := range []*string{&record.Email, &record.PasswordHash, &record.Salt, &record.IV, &record.Challenge} {
		if *field, err = readString(reader); err != nil {
			return nil, err
		}
	}
	return record, nil
}
