package keys

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/hengadev/fieldcrypt/internal/fcerr"
	"github.com/hengadev/fieldcrypt/internal/strategy"
)

const (
	MinKeyLength = 16
	MaxKeyLength = 64
)

var keyCharset = regexp.MustCompile(`^[a-zA-Z0-9!@#$%^&*()_+\-=\[\]{};':"\\|,.<>/?]+$`)

// IsValid reports whether key may be stored: 16 to 64 characters, all from
// the printable set above.
func IsValid(key string) bool {
	if len(key) < MinKeyLength || len(key) > MaxKeyLength {
		return false
	}
	return keyCharset.MatchString(key)
}

// KeyLength is the generated key length for algorithm: 8 for DES, 32 for
// everything else.
func KeyLength(algorithm string) int {
	if strings.EqualFold(algorithm, strategy.AlgorithmDES) {
		return strategy.DESKeySize
	}
	return 32
}

// GenerateKey returns a random key sized for algorithm.
func GenerateKey(algorithm string) (string, error) {
	return GenerateKeyLength(KeyLength(algorithm))
}

// GenerateKeyLength returns n characters of base64 over n random bytes.
func GenerateKeyLength(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("%w: key length must be positive", fcerr.ErrInvalidKey)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf)[:n], nil
}

func isBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}
