package internal

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

const (
	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// Verification codes are typed by hand: no 0/O, 1/I/l.
	readable = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// NewChallenge returns n random alphanumeric characters.
func NewChallenge(n int) (string, error) {
	return randomString(alphanumeric, n)
}

// NewVerificationCode returns an n-character code from an unambiguous alphabet.
func NewVerificationCode(n int) (string, error) {
	if n < 4 || n > 16 {
		return "", errors.New("invalid verification code length")
	}
	return randomString(readable, n)
}

// NewHex returns n random bytes, hex encoded.
func NewHex(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// DecoySalt derives a stable salt-shaped value for an identifier that matched
// nothing, so repeated lookups of the same name look like a real account.
// The result is exactly hexLen hex characters (64 when hexLen <= 0); longer
// outputs chain HMAC blocks keyed by a big-endian block counter.
func DecoySalt(secret []byte, identifier string, hexLen int) string {
	if hexLen <= 0 {
		hexLen = 2 * sha256.Size
	}
	subject := []byte(strings.ToLower(strings.TrimSpace(identifier)))

	need := (hexLen + 1) / 2
	out := make([]byte, 0, need+sha256.Size)
	var counter [4]byte
	for block := uint32(0); len(out) < need; block++ {
		binary.BigEndian.PutUint32(counter[:], block)
		mac := hmac.New(sha256.New, secret)
		_, _ = mac.Write(counter[:])
		_, _ = mac.Write(subject)
		out = mac.Sum(out)
	}
	return hex.EncodeToString(out)[:hexLen]
}

func randomString(alphabet string, n int) (string, error) {
	if n <= 0 {
		return "", errors.New("invalid random string length")
	}

	var b strings.Builder
	b.Grow(n)

	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[idx.Int64()])
	}
	return b.String(), nil
}
