package sqlstore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/hengadev/fieldcrypt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "keys", "fieldcrypt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(newTestDB(t), opts...)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		db        bool
		opts      []Option
		wantTable string
		wantErr   bool
	}{
		{name: "nil database", db: false, wantErr: true},
		{name: "default table", db: true, wantTable: DefaultTable},
		{name: "custom table", db: true, opts: []Option{WithTable("crm_keys")}, wantTable: "crm_keys"},
		{name: "injection in table name", db: true, opts: []Option{WithTable("keys; DROP TABLE users")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var db *sql.DB
			if tt.db {
				db = newTestDB(t)
			}
			s, err := New(db, tt.opts...)
			if tt.wantErr {
				assert.ErrorIs(t, err, fieldcrypt.ErrInvalidConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTable, s.Table())
		})
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestGetPut(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Get(ctx, "user", "phone")
	assert.ErrorIs(t, err, fieldcrypt.ErrKeyNotFound)

	require.NoError(t, s.Put(ctx, "user", "phone", "phone-key-0123456789"))
	key, err := s.Get(ctx, "user", "phone")
	require.NoError(t, err)
	assert.Equal(t, "phone-key-0123456789", key)

	// Put replaces in place.
	require.NoError(t, s.Put(ctx, "user", "phone", "rotated-key-0123456789"))
	key, err = s.Get(ctx, "user", "phone")
	require.NoError(t, err)
	assert.Equal(t, "rotated-key-0123456789", key)

	records, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	assert.ErrorIs(t, s.Put(ctx, "user", "", "k"), fieldcrypt.ErrInvalidConfiguration)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Put(ctx, "user", "phone", "phone-key-0123456789"))
	require.NoError(t, s.Delete(ctx, "user", "phone"))
	_, err := s.Get(ctx, "user", "phone")
	assert.ErrorIs(t, err, fieldcrypt.ErrKeyNotFound)

	assert.NoError(t, s.Delete(ctx, "user", "phone"))
}

func TestList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithTable("crm_keys"))
	before := time.Now().Add(-time.Minute)

	require.NoError(t, s.Put(ctx, "user", "phone", "key-user-phone-0123"))
	require.NoError(t, s.Put(ctx, "order", "address", "key-order-address-01"))
	require.NoError(t, s.Put(ctx, "user", "email", "key-user-email-0123"))

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "order", records[0].Table)
	assert.Equal(t, "address", records[0].Field)
	assert.Equal(t, "user", records[1].Table)
	assert.Equal(t, "email", records[1].Field)
	assert.Equal(t, "phone", records[2].Field)
	for _, r := range records {
		assert.True(t, r.UpdatedAt.After(before), "updated_at round-trips as a time")
	}
}

func TestMissingTableIsUnavailable(t *testing.T) {
	ctx := context.Background()
	s, err := New(newTestDB(t))
	require.NoError(t, err)

	_, err = s.Get(ctx, "user", "phone")
	assert.ErrorIs(t, err, fieldcrypt.ErrKeyStoreUnavailable)
	_, err = s.List(ctx)
	assert.ErrorIs(t, err, fieldcrypt.ErrKeyStoreUnavailable)
}

func TestEngineWithSQLStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	wrapper, err := fieldcrypt.NewTestKeyWrapper()
	require.NoError(t, err)

	engine := fieldcrypt.NewTestEngine(
		fieldcrypt.WithKeyStore(s),
		fieldcrypt.WithKeyWrapper(wrapper),
		fieldcrypt.WithFields("user", "phone"),
	)

	rotated, err := engine.RotateKey(ctx, "user", "phone")
	require.NoError(t, err)
	assert.True(t, fieldcrypt.IsValidKey(rotated))

	stored, err := s.Get(ctx, "user", "phone")
	require.NoError(t, err)
	assert.NotEqual(t, rotated, stored, "keys are wrapped at rest")

	// A second engine on the same database sees the rotated key.
	other := fieldcrypt.NewTestEngine(
		fieldcrypt.WithKeyStore(s),
		fieldcrypt.WithKeyWrapper(wrapper),
	)
	assert.Equal(t, rotated, other.KeyFor("user", "phone"))
}
