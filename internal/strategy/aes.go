package strategy

import (
	"crypto/aes"
	"encoding/base64"
	"strings"

	"github.com/hengadev/fieldcrypt/internal/fcerr"
)

// AlgorithmAES is AES in ECB mode with PKCS#7 padding, the layout produced by
// MySQL's AES_ENCRYPT.
const AlgorithmAES = "AES"

// AESKeySizes are the legal AES key lengths in bytes.
var AESKeySizes = []int{16, 24, 32}

// DefaultAESKeySize matches MySQL's default block_encryption_mode,
// aes-128-ecb.
const DefaultAESKeySize = 16

// AES is the default deterministic strategy. Keys are derived with FoldKey so
// ciphertext is byte-identical to AES_ENCRYPT on a server using the same key
// size, which keeps DB mode and POJO mode interchangeable.
type AES struct {
	keySize int
}

// NewAES returns the strategy for MySQL's default aes-128-ecb mode.
func NewAES() *AES { return &AES{keySize: DefaultAESKeySize} }

// NewAESKeySize returns the strategy for aes-192-ecb (24) or aes-256-ecb (32).
// Other sizes fall back to DefaultAESKeySize.
func NewAESKeySize(size int) *AES {
	for _, n := range AESKeySizes {
		if size == n {
			return &AES{keySize: size}
		}
	}
	return NewAES()
}

// KeySize is the number of key bytes the key string is folded into.
func (s *AES) KeySize() int { return s.keySize }

func (s *AES) Algorithm() string { return AlgorithmAES }

func (s *AES) Supports(name string) bool { return strings.EqualFold(name, AlgorithmAES) }

func (s *AES) Encrypt(plaintext, key string) (string, error) {
	if plaintext == "" {
		return plaintext, nil
	}
	ciphertext, err := s.Seal([]byte(plaintext), key)
	if err != nil {
		return plaintext, fcerr.NewCryptoError(fcerr.Encrypt, AlgorithmAES, err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s *AES) Decrypt(ciphertext, key string) (string, error) {
	if ciphertext == "" {
		return ciphertext, nil
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return ciphertext, fcerr.NewCryptoError(fcerr.Decrypt, AlgorithmAES, err)
	}
	plaintext, err := s.Open(raw, key)
	if err != nil {
		return ciphertext, fcerr.NewCryptoError(fcerr.Decrypt, AlgorithmAES, err)
	}
	return string(plaintext), nil
}

// Seal returns the raw AES-ECB ciphertext of plaintext, the bytes
// AES_ENCRYPT(plaintext, key) returns. Database-side function emulations use
// it to produce identical output.
func (s *AES) Seal(plaintext []byte, key string) ([]byte, error) {
	block, err := aes.NewCipher(FoldKey(key, s.size()))
	if err != nil {
		return nil, err
	}
	return sealECB(block, plaintext), nil
}

// Open reverses Seal.
func (s *AES) Open(ciphertext []byte, key string) ([]byte, error) {
	block, err := aes.NewCipher(FoldKey(key, s.size()))
	if err != nil {
		return nil, err
	}
	return openECB(block, ciphertext)
}

func (s *AES) size() int {
	if s.keySize == 0 {
		return DefaultAESKeySize
	}
	return s.keySize
}
