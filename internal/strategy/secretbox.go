package strategy

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hengadev/fieldcrypt/internal/fcerr"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

// AlgorithmSecretBox is XSalsa20-Poly1305 (NaCl secretbox) over an optionally
// zstd-compressed payload. Randomized, so POJO mode only.
const AlgorithmSecretBox = "SECRETBOX"

const (
	secretBoxKeySize   = 32
	secretBoxNonceSize = 24
	secretBoxInfo      = "fieldcrypt-secretbox"
)

// SecretBox seals values as base64(flag | nonce | box).
type SecretBox struct {
	compressionThreshold int
}

// NewSecretBox returns a SecretBox compressing payloads of at least threshold
// bytes. A threshold <= 0 disables compression.
func NewSecretBox(threshold int) *SecretBox {
	return &SecretBox{compressionThreshold: threshold}
}

func (s *SecretBox) Algorithm() string { return AlgorithmSecretBox }

func (s *SecretBox) Supports(name string) bool { return strings.EqualFold(name, AlgorithmSecretBox) }

func (s *SecretBox) Encrypt(plaintext, key string) (string, error) {
	if plaintext == "" {
		return plaintext, nil
	}
	boxKey, err := deriveBoxKey(key)
	if err != nil {
		return plaintext, fcerr.NewCryptoError(fcerr.Encrypt, AlgorithmSecretBox, err)
	}

	var nonce [secretBoxNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return plaintext, fcerr.NewCryptoError(fcerr.Encrypt, AlgorithmSecretBox, fmt.Errorf("failed to generate nonce: %w", err))
	}

	payload, flag := maybeCompress([]byte(plaintext), s.compressionThreshold)
	out := make([]byte, 0, 1+secretBoxNonceSize+len(payload)+secretbox.Overhead)
	out = append(out, flag)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, payload, &nonce, boxKey)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *SecretBox) Decrypt(ciphertext, key string) (string, error) {
	if ciphertext == "" {
		return ciphertext, nil
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return ciphertext, fcerr.NewCryptoError(fcerr.Decrypt, AlgorithmSecretBox, err)
	}
	if len(raw) < 1+secretBoxNonceSize+secretbox.Overhead {
		return ciphertext, fcerr.NewCryptoError(fcerr.Decrypt, AlgorithmSecretBox, errors.New("ciphertext too short"))
	}
	boxKey, err := deriveBoxKey(key)
	if err != nil {
		return ciphertext, fcerr.NewCryptoError(fcerr.Decrypt, AlgorithmSecretBox, err)
	}

	flag := raw[0]
	var nonce [secretBoxNonceSize]byte
	copy(nonce[:], raw[1:1+secretBoxNonceSize])
	payload, ok := secretbox.Open(nil, raw[1+secretBoxNonceSize:], &nonce, boxKey)
	if !ok {
		return ciphertext, fcerr.NewCryptoError(fcerr.Decrypt, AlgorithmSecretBox, errors.New("authentication failed"))
	}
	plaintext, err := decompress(payload, flag)
	if err != nil {
		return ciphertext, fcerr.NewCryptoError(fcerr.Decrypt, AlgorithmSecretBox, err)
	}
	return string(plaintext), nil
}

// deriveBoxKey stretches the normalized 32-byte key through HKDF-SHA256 so the
// secretbox key is never the raw configured string.
func deriveBoxKey(key string) (*[secretBoxKeySize]byte, error) {
	var out [secretBoxKeySize]byte
	reader := hkdf.New(sha256.New, NormalizeKey(key, secretBoxKeySize), nil, []byte(secretBoxInfo))
	if _, err := io.ReadFull(reader, out[:]); err != nil {
		return nil, err
	}
	return &out, nil
}
