// Package keys resolves, validates, generates and persists the per-column
// encryption keys.
package keys

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hengadev/fieldcrypt/internal/fcerr"
	"github.com/hengadev/fieldcrypt/internal/monitoring"
	"github.com/hengadev/fieldcrypt/internal/reliability"
)

// FallbackKey is used when no global key is configured. Data encrypted with it
// is only obfuscated.
const FallbackKey = "default-secret-key-32-chars-long"

// Key operations reported to the observability hook.
const (
	OpResolve  = "resolve"
	OpStore    = "store"
	OpRotate   = "rotate"
	OpLoad     = "load"
	OpFallback = "fallback"
	OpReject   = "reject"
)

// Record is one persisted key.
type Record struct {
	Table     string
	Field     string
	Key       string
	UpdatedAt time.Time
}

// Store persists keys outside the process. Get returns an error wrapping
// fcerr.ErrKeyNotFound when nothing is stored for the column.
type Store interface {
	Get(ctx context.Context, table, field string) (string, error)
	Put(ctx context.Context, table, field, key string) error
	List(ctx context.Context) ([]Record, error)
}

// Wrapper encrypts keys before they reach a Store, typically with a KMS key.
type Wrapper interface {
	Wrap(ctx context.Context, key []byte) (string, error)
	Unwrap(ctx context.Context, wrapped string) ([]byte, error)
}

// Options configures a Manager.
type Options struct {
	// DefaultKey is the global key. Blank selects FallbackKey.
	DefaultKey string
	// CacheEnabled remembers keys resolved from the store or the default.
	// Keys passed to StoreKey or preloaded by Load are always kept.
	CacheEnabled bool
	Store        Store
	Wrapper      Wrapper
	// Guard wraps store calls with retries and a circuit breaker. Nil calls
	// the store directly.
	Guard  *reliability.Guard
	Logger monitoring.Logger
	Hook   monitoring.ObservabilityHook
}

// Manager is safe for concurrent use.
type Manager struct {
	mu    sync.RWMutex
	cache map[string]string

	defaultKey    string
	usingFallback bool
	fallbackOnce  sync.Once

	cacheEnabled bool
	store        Store
	wrapper      Wrapper
	guard        *reliability.Guard
	algorithmFor func(table, field string) string

	logger monitoring.Logger
	hook   monitoring.ObservabilityHook
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		cache:        make(map[string]string),
		defaultKey:   opts.DefaultKey,
		cacheEnabled: opts.CacheEnabled,
		store:        opts.Store,
		wrapper:      opts.Wrapper,
		guard:        opts.Guard,
		logger:       opts.Logger,
		hook:         opts.Hook,
	}
	if isBlank(m.defaultKey) {
		m.defaultKey = FallbackKey
		m.usingFallback = true
	}
	if m.logger == nil {
		m.logger = monitoring.NewNopLogger()
	}
	if m.hook == nil {
		m.hook = &monitoring.NoOpObservabilityHook{}
	}
	return m
}

// SetAlgorithmResolver installs the lookup RotateKey uses to size new keys.
func (m *Manager) SetAlgorithmResolver(fn func(table, field string) string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.algorithmFor = fn
}

// DefaultKey returns the global key. When the fallback key is in use a warning
// is logged once and a hook event is emitted on every call.
func (m *Manager) DefaultKey() string {
	if m.usingFallback {
		m.fallbackOnce.Do(func() {
			m.logger.Warn("no encryption key configured, using the built-in fallback key; data is NOT protected")
		})
		m.hook.OnKeyOperation(context.Background(), OpFallback, "", "", nil)
	}
	return m.defaultKey
}

// UsingFallbackKey reports whether the built-in fallback key is the default.
func (m *Manager) UsingFallbackKey() bool {
	return m.usingFallback
}

// KeyFor returns the key of table.field. It never fails: anything that cannot
// be resolved degrades to the default key.
func (m *Manager) KeyFor(table, field string) string {
	return m.Resolve(context.Background(), table, field)
}

// Resolve looks up the cache, then the store, then falls back to the default
// key. The default key is cached for the column unless the store errored.
func (m *Manager) Resolve(ctx context.Context, table, field string) string {
	if table == "" || field == "" {
		return m.DefaultKey()
	}
	id := cacheKey(table, field)

	m.mu.RLock()
	key, ok := m.cache[id]
	m.mu.RUnlock()
	if ok {
		return key
	}

	key, err := m.fetch(ctx, table, field)
	switch {
	case err == nil:
	case errors.Is(err, fcerr.ErrKeyNotFound):
		key = m.DefaultKey()
	default:
		m.logger.Warn("key lookup failed, using default key", "table", table, "field", field, "error", err)
		m.hook.OnError(ctx, OpResolve, err, map[string]any{"table": table, "field": field})
		return m.DefaultKey()
	}

	if m.cacheEnabled {
		m.mu.Lock()
		if cached, ok := m.cache[id]; ok {
			key = cached
		} else {
			m.cache[id] = key
		}
		m.mu.Unlock()
	}
	return key
}

// fetch reads one key from the store, unwrapping it when a wrapper is set.
func (m *Manager) fetch(ctx context.Context, table, field string) (string, error) {
	if m.store == nil {
		return "", fcerr.ErrKeyNotFound
	}
	var stored string
	err := m.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		stored, err = m.store.Get(ctx, table, field)
		return err
	})
	if err != nil {
		return "", err
	}
	key, err := m.unwrap(ctx, stored)
	if err != nil {
		return "", err
	}
	if !IsValid(key) {
		return "", fcerr.NewInvalidKeyError(table, field, "stored key fails validation")
	}
	return key, nil
}

// StoreKey validates key, persists it when a store is configured and caches
// it. An invalid key is logged and rejected; the previous key stays in use.
func (m *Manager) StoreKey(ctx context.Context, table, field, key string) error {
	if table == "" || field == "" {
		return fcerr.NewInvalidKeyError(table, field, "table and field are required")
	}
	if !IsValid(key) {
		err := fcerr.NewInvalidKeyError(table, field, fmt.Sprintf("must be %d-%d characters from the allowed set", MinKeyLength, MaxKeyLength))
		m.logger.Error("invalid key rejected", "table", table, "field", field)
		m.hook.OnKeyOperation(ctx, OpReject, table, field, nil)
		return err
	}

	if m.store != nil {
		value, err := m.wrap(ctx, key)
		if err != nil {
			return fmt.Errorf("%w: wrap key for '%s.%s': %w", fcerr.ErrKeyStoreUnavailable, table, field, err)
		}
		err = m.guard.Do(ctx, func(ctx context.Context) error {
			return m.store.Put(ctx, table, field, value)
		})
		if err != nil {
			m.hook.OnError(ctx, OpStore, err, map[string]any{"table": table, "field": field})
			return fmt.Errorf("%w: %w", fcerr.ErrKeyStoreUnavailable, err)
		}
	}

	m.mu.Lock()
	m.cache[cacheKey(table, field)] = key
	m.mu.Unlock()

	m.logger.Info("key stored", "table", table, "field", field)
	m.hook.OnKeyOperation(ctx, OpStore, table, field, nil)
	return nil
}

// RotateKey generates a key for the column's algorithm, stores and returns it.
// Previously encrypted data is not re-encrypted.
func (m *Manager) RotateKey(ctx context.Context, table, field string) (string, error) {
	m.mu.RLock()
	resolve := m.algorithmFor
	m.mu.RUnlock()

	algorithm := ""
	if resolve != nil {
		algorithm = resolve(table, field)
	}

	// DES keys are 8 bytes but a stored key must reach MinKeyLength; the DES
	// strategy truncates it back to 8.
	key, err := GenerateKeyLength(max(KeyLength(algorithm), MinKeyLength))
	if err != nil {
		return "", err
	}
	if err := m.StoreKey(ctx, table, field, key); err != nil {
		return "", err
	}
	m.hook.OnKeyOperation(ctx, OpRotate, table, field, map[string]any{"algorithm": algorithm})
	return key, nil
}

// Load caches every valid record from the store and returns how many were
// loaded. Invalid records are skipped.
func (m *Manager) Load(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	var records []Record
	err := m.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		records, err = m.store.List(ctx)
		return err
	})
	if err != nil {
		m.hook.OnError(ctx, OpLoad, err, nil)
		return 0, fmt.Errorf("%w: %w", fcerr.ErrKeyStoreUnavailable, err)
	}

	loaded := make(map[string]string, len(records))
	for _, r := range records {
		key, err := m.unwrap(ctx, r.Key)
		if err != nil || !IsValid(key) {
			m.logger.Warn("skipping unusable stored key", "table", r.Table, "field", r.Field)
			continue
		}
		loaded[cacheKey(r.Table, r.Field)] = key
	}

	m.mu.Lock()
	for id, key := range loaded {
		m.cache[id] = key
	}
	m.mu.Unlock()

	m.hook.OnKeyOperation(ctx, OpLoad, "", "", map[string]any{"count": len(loaded)})
	return len(loaded), nil
}

// HasStore reports whether keys are persisted in a key store.
func (m *Manager) HasStore() bool { return m.store != nil }

// StoreState reports the circuit state of the key store.
func (m *Manager) StoreState() reliability.CircuitState {
	return m.guard.State()
}

func (m *Manager) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]string)
}

func (m *Manager) CacheSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache)
}

func (m *Manager) wrap(ctx context.Context, key string) (string, error) {
	if m.wrapper == nil {
		return key, nil
	}
	return m.wrapper.Wrap(ctx, []byte(key))
}

func (m *Manager) unwrap(ctx context.Context, stored string) (string, error) {
	if m.wrapper == nil {
		return stored, nil
	}
	raw, err := m.wrapper.Unwrap(ctx, stored)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func cacheKey(table, field string) string {
	return table + "\x00" + field
}
