package password

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

const minPBKDF2Iterations = 10000

// PBKDF2 is PBKDF2-HMAC-SHA512.
type PBKDF2 struct {
	iterations int
	keyLength  int
}

func NewPBKDF2(cfg Config) (*PBKDF2, error) {
	if cfg.Iterations == 0 {
		cfg.Iterations = minPBKDF2Iterations
	}
	if cfg.KeyLength == 0 {
		cfg.KeyLength = 64
	}
	if cfg.Iterations < minPBKDF2Iterations {
		return nil, errors.New("pbkdf2 iterations must be >= 10000")
	}
	if cfg.KeyLength < minKeyLength {
		return nil, errors.New("pbkdf2 key length must be >= 32")
	}
	return &PBKDF2{iterations: int(cfg.Iterations), keyLength: int(cfg.KeyLength)}, nil
}

func (p *PBKDF2) Derive(password, salt string) (string, error) {
	if salt == "" {
		return "", errors.New("empty salt")
	}
	key := pbkdf2.Key([]byte(password), []byte(salt), p.iterations, p.keyLength, sha512.New)
	return hex.EncodeToString(key), nil
}

func (p *PBKDF2) Algorithm() string { return AlgorithmPBKDF2 }
