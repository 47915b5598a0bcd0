package strategy

import (
	"crypto/des"
	"encoding/base64"
	"strings"

	"github.com/hengadev/fieldcrypt/internal/fcerr"
)

// AlgorithmDES is single DES in ECB mode with PKCS#7 padding. It exists for
// data written by legacy systems; new fields should use AES.
const AlgorithmDES = "DES"

// DESKeySize is the only legal DES key length in bytes.
const DESKeySize = 8

type DES struct{}

func NewDES() *DES { return &DES{} }

func (s *DES) Algorithm() string { return AlgorithmDES }

func (s *DES) Supports(name string) bool { return strings.EqualFold(name, AlgorithmDES) }

func (s *DES) Encrypt(plaintext, key string) (string, error) {
	if plaintext == "" {
		return plaintext, nil
	}
	block, err := des.NewCipher(NormalizeKey(key, DESKeySize))
	if err != nil {
		return plaintext, fcerr.NewCryptoError(fcerr.Encrypt, AlgorithmDES, err)
	}
	return base64.StdEncoding.EncodeToString(sealECB(block, []byte(plaintext))), nil
}

func (s *DES) Decrypt(ciphertext, key string) (string, error) {
	if ciphertext == "" {
		return ciphertext, nil
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return ciphertext, fcerr.NewCryptoError(fcerr.Decrypt, AlgorithmDES, err)
	}
	block, err := des.NewCipher(NormalizeKey(key, DESKeySize))
	if err != nil {
		return ciphertext, fcerr.NewCryptoError(fcerr.Decrypt, AlgorithmDES, err)
	}
	plaintext, err := openECB(block, raw)
	if err != nil {
		return ciphertext, fcerr.NewCryptoError(fcerr.Decrypt, AlgorithmDES, err)
	}
	return string(plaintext), nil
}
