package fieldcrypt

import "github.com/hengadev/fieldcrypt/internal/fcerr"

// Sentinel errors. Every error returned by the package wraps one of them and
// can be tested with errors.Is.
var (
	ErrInvalidKey           = fcerr.ErrInvalidKey
	ErrUnknownAlgorithm     = fcerr.ErrUnknownAlgorithm
	ErrEncryptionFailed     = fcerr.ErrEncryptionFailed
	ErrDecryptionFailed     = fcerr.ErrDecryptionFailed
	ErrInvalidConfiguration = fcerr.ErrInvalidConfiguration
	ErrKeyStoreUnavailable  = fcerr.ErrKeyStoreUnavailable
	ErrKeyNotFound          = fcerr.ErrKeyNotFound
	ErrUnsupportedType      = fcerr.ErrUnsupportedType
	ErrNilPointer           = fcerr.ErrNilPointer
	ErrInvalidFormat        = fcerr.ErrInvalidFormat
)

// Action is the direction of an operation, reported in errors and hooks.
type Action = fcerr.Action

const (
	ActionEncrypt = fcerr.Encrypt
	ActionDecrypt = fcerr.Decrypt
)
