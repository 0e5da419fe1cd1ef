package challengeAuth

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var errInvalidIV = errors.New("iv must be 16 bytes, hex encoded")

// ChallengeCipher computes the ciphertext a client is expected to submit for
// a challenge. keyMaterial is the stored password hash string; both sides
// must run the same routine.
type ChallengeCipher interface {
	Encrypt(keyMaterial, ivHex, plaintext string) (string, error)
}

// AESCBCCipher is the default wire contract: AES-256-CBC with PKCS#7
// padding, key = SHA-256(keyMaterial), hex ciphertext.
type AESCBCCipher struct{}

func (AESCBCCipher) Encrypt(keyMaterial, ivHex, plaintext string) (string, error) {
	key := sha256.Sum256([]byte(keyMaterial))
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", errInvalidIV
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", err
	}
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return hex.EncodeToString(out), nil
}

// EncryptChallenge is the client half of the handshake with the default
// cipher: passwordHash is the KDF output for (password, salt).
func EncryptChallenge(passwordHash, ivHex, challenge string) (string, error) {
	return AESCBCCipher{}.Encrypt(passwordHash, ivHex, challenge)
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}
