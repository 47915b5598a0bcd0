package fieldcrypt

// This file provides test utilities for use in examples and external testing.

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hengadev/fieldcrypt/internal/monitoring"
)

// TestKey is a valid 32-character key for tests and examples. Never use it
// for real data.
const TestKey = "test-key-0123456789abcdefghijklm"

// MemoryKeyStore implements KeyStore in memory.
type MemoryKeyStore struct {
	mu      sync.RWMutex
	records map[string]KeyRecord
}

// NewMemoryKeyStore creates an empty in-memory key store.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{records: make(map[string]KeyRecord)}
}

func (s *MemoryKeyStore) Get(ctx context.Context, table, field string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[table+"."+field]
	if !ok {
		return "", fmt.Errorf("%w: %s.%s", ErrKeyNotFound, table, field)
	}
	return r.Key, nil
}

func (s *MemoryKeyStore) Put(ctx context.Context, table, field, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[table+"."+field] = KeyRecord{Table: table, Field: field, Key: key, UpdatedAt: time.Now()}
	return nil
}

// List returns the records sorted by table and field.
func (s *MemoryKeyStore) List(ctx context.Context) ([]KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]KeyRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		return out[i].Field < out[j].Field
	})
	return out, nil
}

// TestKeyWrapper implements KeyWrapper with AES-GCM under a random in-memory
// key, standing in for a KMS.
type TestKeyWrapper struct {
	aead cipher.AEAD
}

// NewTestKeyWrapper creates a wrapper with a fresh random key.
func NewTestKeyWrapper() (*TestKeyWrapper, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate wrapping key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &TestKeyWrapper{aead: aead}, nil
}

func (w *TestKeyWrapper) Wrap(ctx context.Context, key []byte) (string, error) {
	nonce := make([]byte, w.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(w.aead.Seal(nonce, nonce, key, nil)), nil
}

func (w *TestKeyWrapper) Unwrap(ctx context.Context, wrapped string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: wrapped key is not base64: %w", ErrDecryptionFailed, err)
	}
	if len(raw) < w.aead.NonceSize() {
		return nil, fmt.Errorf("%w: wrapped key too short", ErrDecryptionFailed)
	}
	nonce, sealed := raw[:w.aead.NonceSize()], raw[w.aead.NonceSize():]
	key, err := w.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	return key, nil
}

// NewTestEngine creates an Engine for tests and examples: TestKey, a silent
// logger, and any additional options. It panics on configuration errors so
// it can be used in examples; tests should prefer passing valid options.
func NewTestEngine(opts ...Option) *Engine {
	base := []Option{
		WithKey(TestKey),
		WithLogger(monitoring.NewNopLogger()),
	}
	engine, err := New(append(base, opts...)...)
	if err != nil {
		panic(fmt.Sprintf("fieldcrypt: failed to create test engine: %v", err))
	}
	return engine
}
