// Package secure implements the per-user message envelope: a PBKDF2-derived
// key and AES-256-GCM sealing of message payloads.
//
// Envelope layout (before base64): salt(16) || nonce(12) || ciphertext||tag.
// Salt and nonce are generated fresh for every Encrypt call and travel with
// the ciphertext, so only the user's secret is needed to decrypt later.
package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the length of the random KDF salt.
	SaltSize = 16
	// NonceSize is the length of the random GCM nonce.
	NonceSize = 12
	// KeySize is the derived AES-256 key length.
	KeySize = 32
	// Iterations is the PBKDF2 iteration count.
	Iterations = 100_000

	headerSize = SaltSize + NonceSize
	tagSize    = 16
)

var (
	// ErrInvalidArgument is returned for empty plaintext, envelope or secret,
	// and for plaintext that is not valid UTF-8.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDecryptionFailed is returned for malformed or truncated envelopes and
	// for authentication failures (wrong key or tampered data).
	ErrDecryptionFailed = errors.New("decryption failed")
)

// DeriveKey derives a 256-bit key from secret and salt using PBKDF2-HMAC-SHA256.
func DeriveKey(secret string, salt []byte) []byte {
	return pbkdf2.Key([]byte(secret), salt, Iterations, KeySize, sha256.New)
}

// Encrypt seals plaintext under a key derived from secret and returns the
// base64 envelope.
func Encrypt(plaintext, secret string) (string, error) {
	return encryptWithReader(rand.Reader, plaintext, secret)
}

func encryptWithReader(r io.Reader, plaintext, secret string) (string, error) {
	if plaintext == "" || secret == "" {
		return "", fmt.Errorf("%w: plaintext and secret are required", ErrInvalidArgument)
	}
	if !utf8.ValidString(plaintext) {
		return "", fmt.Errorf("%w: plaintext is not valid UTF-8", ErrInvalidArgument)
	}

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return "", fmt.Errorf("generate salt and nonce: %w", err)
	}
	salt, nonce := header[:SaltSize], header[SaltSize:]

	gcm, err := newGCM(DeriveKey(secret, salt))
	if err != nil {
		return "", err
	}

	out := make([]byte, 0, headerSize+len(plaintext)+gcm.Overhead())
	out = append(out, header...)
	out = gcm.Seal(out, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a base64 envelope produced by Encrypt. No plaintext is
// returned unless the authentication tag verifies.
func Decrypt(envelope, secret string) (string, error) {
	if envelope == "" || secret == "" {
		return "", fmt.Errorf("%w: envelope and secret are required", ErrInvalidArgument)
	}

	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return "", fmt.Errorf("%w: decode envelope: %v", ErrDecryptionFailed, err)
	}
	if len(raw) < headerSize+tagSize {
		return "", fmt.Errorf("%w: envelope too short (%d bytes)", ErrDecryptionFailed, len(raw))
	}

	salt := raw[:SaltSize]
	nonce := raw[SaltSize:headerSize]
	sealed := raw[headerSize:]

	gcm, err := newGCM(DeriveKey(secret, salt))
	if err != nil {
		return "", err
	}

	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%w: plaintext is not valid UTF-8", ErrDecryptionFailed)
	}

	return string(plain), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}
