package fieldcrypt

import (
	"github.com/hengadev/fieldcrypt/internal/keys"
	"github.com/hengadev/fieldcrypt/internal/monitoring"
	"github.com/hengadev/fieldcrypt/internal/processor"
	"github.com/hengadev/fieldcrypt/internal/strategy"
)

// Strategy is one named, reversible transformation of text values.
//
// Implementations must return empty input unchanged in both directions and
// produce standard base64 ciphertext so values survive text columns. Matching
// of algorithm names through Supports is case-insensitive.
//
// Built-in strategies:
//   - AES: AES-ECB with PKCS#7 padding. Deterministic, usable in DB mode.
//   - DES: DES-ECB with PKCS#7 padding. Deterministic, legacy data only.
//   - AESGCM: AES-GCM with a random nonce. POJO mode only.
//   - SECRETBOX: XSalsa20-Poly1305 with zstd compression of large values. POJO mode only.
//
// Custom strategies are registered with WithStrategy and take precedence over
// the built-in ones.
type Strategy = strategy.Strategy

// KeyStore persists per-column keys outside the process.
//
// Get must return an error wrapping ErrKeyNotFound when nothing is stored for
// the column; any other error is treated as the store being unavailable and
// the default key is used instead.
//
// Implementations:
//   - SQL databases: github.com/hengadev/fieldcrypt/providers/sqlstore
//   - HashiCorp Vault KV v2: github.com/hengadev/fieldcrypt/providers/hashicorp
type KeyStore = keys.Store

// KeyWrapper encrypts keys before they are written to a KeyStore and decrypts
// them when they are read back.
//
// Implementations:
//   - AWS KMS: github.com/hengadev/fieldcrypt/providers/awskms
//   - HashiCorp Vault Transit: github.com/hengadev/fieldcrypt/providers/hashicorp
type KeyWrapper = keys.Wrapper

// KeyRecord is one persisted key as returned by KeyStore.List.
type KeyRecord = keys.Record

// Logger receives slog-style key/value pairs.
type Logger = monitoring.Logger

// ObservabilityHook is notified of rewrites, crypto failures, key operations
// and errors.
type ObservabilityHook = monitoring.ObservabilityHook

// MetricsCollector records counters and timings.
type MetricsCollector = monitoring.MetricsCollector

// FieldRef exposes one text value to the engine without reflection.
type FieldRef = processor.FieldRef

// FieldProvider is implemented by types that list their encrypted fields
// themselves instead of using struct tags:
//
//	func (u *User) EncryptableFields() []fieldcrypt.FieldRef {
//	    return []fieldcrypt.FieldRef{{Column: "phone", Value: &u.Phone}}
//	}
type FieldProvider = processor.FieldProvider

// Tabler lets a type name the table it is stored in.
type Tabler = processor.Tabler
