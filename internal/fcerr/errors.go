package fcerr

import (
	"errors"
	"fmt"
)

var (
	// Crypto errors
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrUnknownAlgorithm = errors.New("unknown algorithm")

	// Key errors
	ErrInvalidKey          = errors.New("invalid key")
	ErrKeyNotFound         = errors.New("key not found")
	ErrKeyStoreUnavailable = errors.New("key store unavailable")

	// Field errors
	ErrUnsupportedType = errors.New("unsupported type")
	ErrNilPointer      = errors.New("nil pointer encountered")
	ErrInvalidFormat   = errors.New("invalid format")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// NewCryptoError wraps err with the sentinel matching the action.
func NewCryptoError(action Action, algorithm string, err error) error {
	sentinel := ErrEncryptionFailed
	if action == Decrypt {
		sentinel = ErrDecryptionFailed
	}
	return fmt.Errorf("%w: %s: %w", sentinel, algorithm, err)
}

func NewUnknownAlgorithmError(algorithm string) error {
	return fmt.Errorf("%w: no strategy supports '%s'", ErrUnknownAlgorithm, algorithm)
}

func NewInvalidKeyError(table, field, reason string) error {
	return fmt.Errorf("%w: key for '%s.%s' rejected: %s", ErrInvalidKey, table, field, reason)
}

func NewUnsupportedTypeError(fieldName string, typeName string, action Action) error {
	return fmt.Errorf("%w: field '%s' has unsupported type %s for %s operation",
		ErrUnsupportedType, fieldName, typeName, action)
}

func NewNilPointerError(fieldName string, action Action) error {
	return fmt.Errorf("%w: field %s is a nil pointer and cannot be processed for %s operation", ErrNilPointer, fieldName, action)
}

func NewFieldError(fieldName string, action Action, err error) error {
	return fmt.Errorf("%s operation failed for field '%s': %w", action, fieldName, err)
}

func NewInvalidFormatError(what string, expected string) error {
	return fmt.Errorf("%w: %s must be %s", ErrInvalidFormat, what, expected)
}
