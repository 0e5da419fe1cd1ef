package password

import (
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
)

// Argon2 is Argon2id with fixed parameters.
type Argon2 struct {
	memory      uint32
	time        uint32
	parallelism uint8
	keyLength   uint32
}

func NewArgon2(cfg Config) (*Argon2, error) {
	if cfg.KeyLength == 0 {
		cfg.KeyLength = 32
	}
	if cfg.Memory < minMemoryKB {
		return nil, errors.New("password memory must be >= 8192 KB")
	}
	if cfg.Time < minTimeCost {
		return nil, errors.New("password time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return nil, errors.New("password parallelism must be >= 1")
	}
	if cfg.KeyLength < minKeyLength {
		return nil, errors.New("password key length must be >= 32")
	}
	return &Argon2{
		memory:      cfg.Memory,
		time:        cfg.Time,
		parallelism: cfg.Parallelism,
		keyLength:   cfg.KeyLength,
	}, nil
}

func (a *Argon2) Derive(password, salt string) (string, error) {
	// Password processing uses raw string bytes exactly as provided (no Unicode normalization).
	if salt == "" {
		return "", errors.New("empty salt")
	}
	key := argon2.IDKey([]byte(password), []byte(salt), a.time, a.memory, a.parallelism, a.keyLength)
	return hex.EncodeToString(key), nil
}

func (a *Argon2) Algorithm() string { return AlgorithmArgon2ID }
