package fieldcrypt

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUnit(t *testing.T) {
	u := NewUnit("  insert INTO member (phone) VALUES (?)", nil)
	assert.NotEqual(t, uuid.Nil, u.ID)
	assert.Equal(t, KindInsert, u.Kind)
	assert.False(t, u.Rewritten)
}

func TestDispatcher_DBMode(t *testing.T) {
	ctx := context.Background()
	engine := NewTestEngine(WithFields("member", "phone"))
	d := engine.Dispatcher()

	u := NewUnit("SELECT phone FROM member WHERE phone = ?", nil)
	require.NoError(t, d.Before(ctx, u))
	assert.True(t, u.Rewritten)
	assert.Contains(t, u.SQL, "AES_DECRYPT(FROM_BASE64(phone)")
	assert.Contains(t, u.SQL, "phone = TO_BASE64(AES_ENCRYPT(?")

	// Parameters are never touched in DB mode.
	m := &Member{Phone: "13800138000"}
	ins := NewUnit("INSERT INTO member (phone) VALUES (?)", m)
	require.NoError(t, d.Before(ctx, ins))
	assert.False(t, ins.Rewritten)
	assert.Equal(t, "13800138000", m.Phone)

	result := &Member{Phone: "13800138000"}
	require.NoError(t, d.After(ctx, u, result))
	assert.Equal(t, "13800138000", result.Phone)
}

func TestDispatcher_POJOMode(t *testing.T) {
	ctx := context.Background()
	engine := NewTestEngine(WithMode(ModePOJO))
	_, err := engine.Register(&Member{})
	require.NoError(t, err)
	d := engine.Dispatcher()

	tests := []struct {
		name        string
		sql         string
		wantChanged bool
	}{
		{name: "insert", sql: "INSERT INTO member (phone) VALUES (?)", wantChanged: true},
		{name: "update", sql: "UPDATE member SET phone = ? WHERE id = ?", wantChanged: true},
		{name: "select", sql: "SELECT phone FROM member WHERE id = ?"},
		{name: "delete", sql: "DELETE FROM member WHERE id = ?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Member{Phone: "13800138000"}
			u := NewUnit(tt.sql, m)
			require.NoError(t, d.Before(ctx, u))
			assert.Equal(t, tt.sql, u.SQL, "SQL is never rewritten in POJO mode")
			assert.Equal(t, tt.wantChanged, m.Phone != "13800138000")
		})
	}

	m := &Member{Phone: "13800138000"}
	u := NewUnit("INSERT INTO member (phone) VALUES (?)", m)
	require.NoError(t, d.Before(ctx, u))
	require.NoError(t, d.After(ctx, u, m))
	assert.Equal(t, "13800138000", m.Phone)
}

func TestDispatcher_MapParamUsesStatementTable(t *testing.T) {
	ctx := context.Background()
	engine := NewTestEngine(WithMode(ModePOJO), WithFields("member", "phone"))
	d := engine.Dispatcher()

	param := map[string]any{"phone": "13800138000", "name": "Alice"}
	u := NewUnit("INSERT INTO `member` (phone, name) VALUES (?, ?)", param)
	require.NoError(t, d.Before(ctx, u))
	assert.NotEqual(t, "13800138000", param["phone"])
	assert.Equal(t, "Alice", param["name"])

	rows := []map[string]any{{"phone": param["phone"]}}
	require.NoError(t, d.After(ctx, NewUnit("SELECT phone FROM member", nil), rows))
	assert.Equal(t, "13800138000", rows[0]["phone"])

	// An explicit table wins over the statement.
	other := map[string]any{"phone": "13800138000"}
	explicit := NewUnit("INSERT INTO member (phone) VALUES (?)", other)
	explicit.Table = "archive"
	require.NoError(t, d.Before(ctx, explicit))
	assert.Equal(t, "13800138000", other["phone"], "archive has no encrypted fields")
}

func TestDispatcher_FailurePolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("fail open", func(t *testing.T) {
		hook := &recordingHook{}
		engine := NewTestEngine(WithMode(ModePOJO), WithObservabilityHook(hook))
		m := &Member{Phone: "not base64!"}

		err := engine.Dispatcher().After(ctx, NewUnit("SELECT phone FROM member", nil), m)
		assert.NoError(t, err)
		assert.Equal(t, "not base64!", m.Phone)

		failures, errs := hook.snapshot()
		assert.Len(t, failures, 1)
		assert.Equal(t, []string{"dispatch.after"}, errs)
	})

	t.Run("fail closed", func(t *testing.T) {
		hook := &recordingHook{}
		engine := NewTestEngine(WithMode(ModePOJO), WithFailurePolicy(FailClosed), WithObservabilityHook(hook))
		m := &Member{Phone: "not base64!"}

		err := engine.Dispatcher().After(ctx, NewUnit("SELECT phone FROM member", nil), m)
		assert.Error(t, err)
		assert.Equal(t, "not base64!", m.Phone)

		_, errs := hook.snapshot()
		assert.Equal(t, []string{"dispatch.after"}, errs)
	})
}

func TestDispatcher_Disabled(t *testing.T) {
	ctx := context.Background()
	engine := NewTestEngine(WithEnabled(false), WithMode(ModePOJO), WithFields("member", "phone"))

	m := &Member{Phone: "13800138000"}
	u := NewUnit("INSERT INTO member (phone) VALUES (?)", m)
	require.NoError(t, engine.Dispatcher().Before(ctx, u))
	assert.Equal(t, "13800138000", m.Phone)

	assert.NoError(t, engine.Dispatcher().Before(ctx, nil))
}
