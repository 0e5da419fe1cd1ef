package password

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	AlgorithmPBKDF2   = "pbkdf2-sha512"
	AlgorithmArgon2ID = "argon2id"

	minSaltLength = 16
	minKeyLength  = 32
)

// KDF turns a password and salt into the stored hash string. Derive is
// deterministic for a fixed configuration.
type KDF interface {
	Derive(password, salt string) (string, error)
	Algorithm() string
}

// Config selects and parameterizes the derivation.
type Config struct {
	Algorithm  string
	Iterations uint32
	KeyLength  uint32
	SaltLength uint32

	// Argon2id only.
	Memory      uint32
	Time        uint32
	Parallelism uint8
}

// New builds the KDF named by cfg.Algorithm.
func New(cfg Config) (KDF, error) {
	switch strings.ToLower(cfg.Algorithm) {
	case "", AlgorithmPBKDF2:
		return NewPBKDF2(cfg)
	case AlgorithmArgon2ID:
		return NewArgon2(cfg)
	default:
		return nil, errors.New("unsupported password algorithm")
	}
}

// NewSalt returns n random bytes, hex encoded.
func NewSalt(n uint32) (string, error) {
	if n < minSaltLength {
		n = minSaltLength
	}
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
