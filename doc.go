// Package fieldcrypt provides transparent field-level encryption for values
// stored through database/sql.
//
// Designated columns, such as phone numbers, emails or national IDs, are
// encrypted at rest and decrypted when read. Two enforcement paths share one
// field registry and one key manager, so data written through one path is
// readable through the other:
//
//   - DB mode rewrites SQL text. Encrypted columns in a SELECT projection are
//     wrapped in the database's AES_DECRYPT function and `col = ?`
//     predicates in WHERE clauses are wrapped in AES_ENCRYPT. Application
//     code only ever sees plaintext.
//   - POJO mode rewrites objects. Marked string fields of parameter structs
//     are encrypted in place before INSERT and UPDATE, and result structs are
//     decrypted in place after reading.
//
// # Failure semantics: fail open
//
// Crypto failures never abort an operation by default. A value that cannot be
// encrypted or decrypted is left unchanged and the error is logged, reported
// to the ObservabilityHook and returned in an error map keyed by field. A
// statement the SQL rewriter cannot understand is passed through unmodified.
// Callers that ignore returned errors can only detect a failure by comparing
// input and output.
//
// Consequences to keep in mind:
//   - a failed encryption writes plaintext to the database
//   - a failed decryption returns ciphertext to the application
//   - without a configured key the built-in FallbackKey is used, which only
//     obfuscates data; a warning is logged
//
// Set failure_policy to fail_closed to make the Dispatcher, the DB wrapper and
// column codecs return errors instead.
//
// # Quick Start
//
// Mark fields with struct tags:
//
//	type User struct {
//	    ID      int64
//	    Phone   string  `fieldcrypt:"encrypt"`
//	    Email   *string `fieldcrypt:"encrypt,algorithm=AES" db:"email_address"`
//	    Address string
//	}
//
// Create the engine once and register the type:
//
//	engine, err := fieldcrypt.New(fieldcrypt.WithKey(os.Getenv("FIELDCRYPT_KEY")))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := engine.Register(&User{}); err != nil {
//	    log.Fatal(err)
//	}
//
// DB mode, with the MySQL functions or those of providers/sqlitefunc:
//
//	db := engine.WrapDB(sqlDB)
//	rows, err := db.QueryContext(ctx, "SELECT id, phone FROM user WHERE phone = ?", "13800138000")
//
// POJO mode:
//
//	err := engine.Encrypt(ctx, &user)   // before writing
//	err = engine.Decrypt(ctx, &user)    // after reading
//
// # Struct Tags
//
//   - fieldcrypt:"encrypt": encrypt with the default algorithm
//   - fieldcrypt:"encrypt,algorithm=DES": encrypt with a named algorithm
//   - fieldcrypt:"encrypt,enabled=false": declared but not processed
//   - fieldcrypt:"encrypt,strategy=name": use a custom strategy
//
// Only fields of a string kind, such as string or `type Phone string`, and
// pointers to them can be encrypted. The column name is taken from the db
// tag, else the snake_case field name. The table is the one registered for
// the type, else the TableName method, else the type name without an Entity,
// Model or DTO suffix, lowercased.
//
// # Algorithms
//
// AES and DES use ECB mode and are deterministic, which is what makes
// equality predicates over encrypted columns work in DB mode. ECB leaks equal
// plaintexts as equal ciphertexts. AESGCM and SECRETBOX are randomized and
// only usable in POJO mode.
//
// Encryption is not idempotent: encrypting a value twice needs two
// decryptions.
//
// # Keys
//
// Each (table, field) pair has its own key. Until one is stored with
// StoreKey or RotateKey the global key is used. Keys can be persisted with a
// KeyStore and wrapped with a KeyWrapper; see the providers directory for SQL,
// HashiCorp Vault and AWS KMS implementations. Rotation keeps no history:
// values encrypted with a previous key cannot be decrypted afterwards.
//
// Key store calls are retried and guarded by a circuit breaker. While the
// store is unreachable lookups fall back to the global key without calling
// it; see WithKeyStoreRetry, WithKeyStoreCircuitBreaker and Health.
//
// # What is not supported
//
// The SQL rewriter recognizes statement shapes with regular expressions and
// is not a SQL parser. INSERT statements and UPDATE SET clauses are never
// rewritten, and range, LIKE, IN, BETWEEN and aggregate queries over encrypted
// columns cannot work.
package fieldcrypt
