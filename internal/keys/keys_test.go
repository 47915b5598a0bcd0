package keys

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hengadev/fieldcrypt/internal/fcerr"
	"github.com/hengadev/fieldcrypt/internal/monitoring"
	"github.com/hengadev/fieldcrypt/internal/reliability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const validKey = "0123456789abcdef0123456789abcdef"

type memStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func newMemStore() *memStore { return &memStore{records: make(map[string]Record)} }

func (s *memStore) Get(ctx context.Context, table, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[table+"."+field]
	if !ok {
		return "", fmt.Errorf("%w: %s.%s", fcerr.ErrKeyNotFound, table, field)
	}
	return r.Key, nil
}

func (s *memStore) Put(ctx context.Context, table, field, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[table+"."+field] = Record{Table: table, Field: field, Key: key}
	return nil
}

func (s *memStore) List(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, nil
}

type mockStore struct{ mock.Mock }

func (m *mockStore) Get(ctx context.Context, table, field string) (string, error) {
	args := m.Called(ctx, table, field)
	return args.String(0), args.Error(1)
}

func (m *mockStore) Put(ctx context.Context, table, field, key string) error {
	return m.Called(ctx, table, field, key).Error(0)
}

func (m *mockStore) List(ctx context.Context) ([]Record, error) {
	args := m.Called(ctx)
	records, _ := args.Get(0).([]Record)
	return records, args.Error(1)
}

// reverseWrapper "wraps" by base64 of the reversed key.
type reverseWrapper struct{}

func (reverseWrapper) Wrap(_ context.Context, key []byte) (string, error) {
	return base64.StdEncoding.EncodeToString(reverse(key)), nil
}

func (reverseWrapper) Unwrap(_ context.Context, wrapped string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, err
	}
	return reverse(raw), nil
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}

func TestDefaultKey(t *testing.T) {
	m := NewManager(Options{DefaultKey: validKey})
	assert.Equal(t, validKey, m.DefaultKey())
	assert.False(t, m.UsingFallbackKey())
}

func TestFallbackKey(t *testing.T) {
	var buf bytes.Buffer
	logger := monitoring.NewStructuredLogger(monitoring.LoggerConfig{Output: &buf, Level: monitoring.LevelWarn})
	metrics := monitoring.NewInMemoryMetricsCollector()

	m := NewManager(Options{
		DefaultKey: "   ",
		Logger:     logger,
		Hook:       monitoring.NewMetricsObservabilityHook(metrics),
	})

	assert.True(t, m.UsingFallbackKey())
	assert.Equal(t, FallbackKey, m.DefaultKey())
	assert.Equal(t, FallbackKey, m.DefaultKey())

	// warned once, reported every time
	assert.Equal(t, 1, strings.Count(buf.String(), "fallback key"))
	assert.Equal(t, int64(2), metrics.GetCounter(monitoring.MetricKeyOperations, map[string]string{"operation": OpFallback}))
}

func TestKeyFor(t *testing.T) {
	m := NewManager(Options{DefaultKey: validKey, CacheEnabled: true})

	assert.Equal(t, validKey, m.KeyFor("user", "phone"))
	assert.Equal(t, 1, m.CacheSize())

	// empty coordinates are not cached
	assert.Equal(t, validKey, m.KeyFor("", "phone"))
	assert.Equal(t, validKey, m.KeyFor("user", ""))
	assert.Equal(t, 1, m.CacheSize())
}

func TestKeyFor_CacheDisabled(t *testing.T) {
	m := NewManager(Options{DefaultKey: validKey})
	assert.Equal(t, validKey, m.KeyFor("user", "phone"))
	assert.Equal(t, 0, m.CacheSize())

	require.NoError(t, m.StoreKey(context.Background(), "user", "phone", "phone-key-0123456789"))
	assert.Equal(t, "phone-key-0123456789", m.KeyFor("user", "phone"))
}

func TestStoreKey(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		table   string
		field   string
		key     string
		wantErr bool
	}{
		{name: "valid", table: "user", field: "phone", key: "phone-key-0123456789"},
		{name: "minimum length", table: "user", field: "phone", key: strings.Repeat("a", 16)},
		{name: "maximum length", table: "user", field: "phone", key: strings.Repeat("a", 64)},
		{name: "too short", table: "user", field: "phone", key: "short", wantErr: true},
		{name: "too long", table: "user", field: "phone", key: strings.Repeat("a", 65), wantErr: true},
		{name: "space not allowed", table: "user", field: "phone", key: "has a space in the key", wantErr: true},
		{name: "missing table", table: "", field: "phone", key: validKey, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(Options{DefaultKey: validKey, CacheEnabled: true})
			err := m.StoreKey(ctx, tt.table, tt.field, tt.key)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, fcerr.ErrInvalidKey)
				assert.Equal(t, validKey, m.KeyFor("user", "phone"), "previous key stays authoritative")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.key, m.KeyFor(tt.table, tt.field))
		})
	}
}

func TestStoreKey_Persists(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	m := NewManager(Options{DefaultKey: validKey, CacheEnabled: true, Store: store, Wrapper: reverseWrapper{}})
	require.NoError(t, m.StoreKey(ctx, "user", "phone", "phone-key-0123456789"))

	stored, err := store.Get(ctx, "user", "phone")
	require.NoError(t, err)
	assert.NotEqual(t, "phone-key-0123456789", stored, "stored value is wrapped")

	// a fresh manager resolves it through the store
	fresh := NewManager(Options{DefaultKey: validKey, CacheEnabled: true, Store: store, Wrapper: reverseWrapper{}})
	assert.Equal(t, "phone-key-0123456789", fresh.KeyFor("user", "phone"))
	assert.Equal(t, validKey, fresh.KeyFor("user", "email"))
}

func TestStoreKey_StoreFailure(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	store.On("Put", ctx, "user", "phone", "phone-key-0123456789").Return(errors.New("connection refused"))

	m := NewManager(Options{DefaultKey: validKey, Store: store})
	err := m.StoreKey(ctx, "user", "phone", "phone-key-0123456789")
	require.Error(t, err)
	assert.ErrorIs(t, err, fcerr.ErrKeyStoreUnavailable)
	assert.Equal(t, 0, m.CacheSize())
	store.AssertExpectations(t)
}

func TestResolve_StoreErrorDegrades(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	store.On("Get", ctx, "user", "phone").Return("", errors.New("timeout"))

	m := NewManager(Options{DefaultKey: validKey, CacheEnabled: true, Store: store})
	assert.Equal(t, validKey, m.Resolve(ctx, "user", "phone"))
	assert.Equal(t, 0, m.CacheSize(), "transient failures are not cached")
	store.AssertExpectations(t)
}

func TestResolve_GuardedStore(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	store.On("Get", ctx, "user", "phone").Return("", errors.New("timeout")).Times(2)

	guard := reliability.NewGuard("keystore",
		reliability.CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Hour},
		reliability.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	)
	m := NewManager(Options{DefaultKey: validKey, CacheEnabled: true, Store: store, Guard: guard})

	assert.Equal(t, validKey, m.Resolve(ctx, "user", "phone"))
	assert.Equal(t, reliability.StateOpen, m.StoreState())

	assert.Equal(t, validKey, m.Resolve(ctx, "user", "phone"))
	store.AssertNumberOfCalls(t, "Get", 2)

	err := m.StoreKey(ctx, "user", "phone", "phone-key-0123456789")
	assert.ErrorIs(t, err, fcerr.ErrKeyStoreUnavailable)
	store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolve_InvalidStoredKeyDegrades(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	require.NoError(t, store.Put(ctx, "user", "phone", "bad"))

	m := NewManager(Options{DefaultKey: validKey, CacheEnabled: true, Store: store})
	assert.Equal(t, validKey, m.Resolve(ctx, "user", "phone"))
}

func TestRotateKey(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		algorithm string
		wantLen   int
	}{
		{name: "aes", algorithm: "AES", wantLen: 32},
		{name: "default", algorithm: "", wantLen: 32},
		{name: "des extended to minimum", algorithm: "DES", wantLen: MinKeyLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(Options{DefaultKey: validKey, CacheEnabled: true})
			m.SetAlgorithmResolver(func(table, field string) string { return tt.algorithm })

			key, err := m.RotateKey(ctx, "user", "phone")
			require.NoError(t, err)
			assert.Len(t, key, tt.wantLen)
			assert.True(t, IsValid(key))
			assert.Equal(t, key, m.KeyFor("user", "phone"))

			next, err := m.RotateKey(ctx, "user", "phone")
			require.NoError(t, err)
			assert.NotEqual(t, key, next)
			assert.Equal(t, next, m.KeyFor("user", "phone"))
		})
	}
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	w := reverseWrapper{}
	for _, f := range []string{"phone", "email"} {
		wrapped, err := w.Wrap(ctx, []byte(f+"-key-0123456789abc"))
		require.NoError(t, err)
		require.NoError(t, store.Put(ctx, "user", f, wrapped))
	}
	require.NoError(t, store.Put(ctx, "user", "broken", "!!not base64!!"))

	m := NewManager(Options{DefaultKey: validKey, Store: store, Wrapper: w})
	n, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, m.CacheSize())
	assert.Equal(t, "email-key-0123456789abc", m.KeyFor("user", "email"))

	m.ClearCache()
	assert.Equal(t, 0, m.CacheSize())
}

func TestLoad_NoStore(t *testing.T) {
	n, err := NewManager(Options{}).Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoad_StoreError(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	store.On("List", ctx).Return(nil, errors.New("down"))

	_, err := NewManager(Options{Store: store}).Load(ctx)
	assert.ErrorIs(t, err, fcerr.ErrKeyStoreUnavailable)
}

func TestConcurrentKeyFor(t *testing.T) {
	m := NewManager(Options{DefaultKey: validKey, CacheEnabled: true})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = m.KeyFor("t", fmt.Sprintf("f%d", i%5))
		}(i)
		go func(i int) {
			defer wg.Done()
			_ = m.StoreKey(context.Background(), "t", fmt.Sprintf("f%d", i%5), validKey)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, m.CacheSize())
}
