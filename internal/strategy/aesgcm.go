package strategy

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hengadev/fieldcrypt/internal/fcerr"
)

// AlgorithmAESGCM is authenticated AES-GCM with a random 96-bit nonce
// prepended to the ciphertext. Output differs on every call, so columns using
// it cannot be matched with database-side equality predicates.
const AlgorithmAESGCM = "AESGCM"

type AESGCM struct{}

func NewAESGCM() *AESGCM { return &AESGCM{} }

func (s *AESGCM) Algorithm() string { return AlgorithmAESGCM }

func (s *AESGCM) Supports(name string) bool {
	return strings.EqualFold(name, AlgorithmAESGCM) || strings.EqualFold(name, "AES-GCM")
}

func (s *AESGCM) Encrypt(plaintext, key string) (string, error) {
	if plaintext == "" {
		return plaintext, nil
	}
	aesGCM, err := newGCM(key)
	if err != nil {
		return plaintext, fcerr.NewCryptoError(fcerr.Encrypt, AlgorithmAESGCM, err)
	}
	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return plaintext, fcerr.NewCryptoError(fcerr.Encrypt, AlgorithmAESGCM, fmt.Errorf("failed to generate nonce: %w", err))
	}
	sealed := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *AESGCM) Decrypt(ciphertext, key string) (string, error) {
	if ciphertext == "" {
		return ciphertext, nil
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return ciphertext, fcerr.NewCryptoError(fcerr.Decrypt, AlgorithmAESGCM, err)
	}
	aesGCM, err := newGCM(key)
	if err != nil {
		return ciphertext, fcerr.NewCryptoError(fcerr.Decrypt, AlgorithmAESGCM, err)
	}
	nonceSize := aesGCM.NonceSize()
	if len(raw) < nonceSize {
		return ciphertext, fcerr.NewCryptoError(fcerr.Decrypt, AlgorithmAESGCM, errors.New("invalid ciphertext size"))
	}
	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, sealed, nil)
	if err != nil {
		return ciphertext, fcerr.NewCryptoError(fcerr.Decrypt, AlgorithmAESGCM, err)
	}
	return string(plaintext), nil
}

func newGCM(key string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(NormalizeKey(key, AESKeySizes...))
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
