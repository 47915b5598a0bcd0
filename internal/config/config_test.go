package config

import (
	"testing"

	"github.com/hengadev/fieldcrypt/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "AES", cfg.Algorithm)
	assert.Equal(t, ModeDB, cfg.Mode)
	assert.Equal(t, FailOpen, cfg.FailurePolicy)
	assert.Equal(t, DialectMySQL, cfg.Dialect)
	assert.True(t, cfg.Cache.Enabled)
	assert.Empty(t, cfg.Key)
	require.NoError(t, NewValidator().ValidateConfig(cfg))
}

func TestNormalize(t *testing.T) {
	cfg := &Config{
		Algorithm:     " des ",
		Key:           "  0123456789abcdef ",
		Mode:          "pojo",
		FailurePolicy: "FAIL_CLOSED",
		Dialect:       "SQLite",
		Fields: map[string][]string{
			" user ": {" phone", "", "email "},
			"empty":  {" "},
			"":       {"x"},
		},
		ExcludeTables: []string{" audit ", ""},
		Log:           LogConfig{Level: "WARNING"},
	}
	cfg.Normalize()

	assert.Equal(t, "DES", cfg.Algorithm)
	assert.Equal(t, "0123456789abcdef", cfg.Key)
	assert.Equal(t, ModePOJO, cfg.Mode)
	assert.Equal(t, FailClosed, cfg.FailurePolicy)
	assert.Equal(t, DialectSQLite, cfg.Dialect)
	assert.Equal(t, map[string][]string{"user": {"phone", "email"}}, cfg.Fields)
	assert.Equal(t, []string{"audit"}, cfg.ExcludeTables)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	before := *cfg
	cfg.Normalize()
	assert.Equal(t, before, *cfg)
}

func TestLoggerConfig(t *testing.T) {
	cfg := Default()
	cfg.Log = LogConfig{Level: "debug", Format: "json"}
	lc := cfg.LoggerConfig()
	assert.Equal(t, monitoring.LevelDebug, lc.Level)
	assert.Equal(t, monitoring.FormatJSON, lc.Format)
}

func TestClone(t *testing.T) {
	cfg := Default()
	cfg.Fields = map[string][]string{"user": {"phone"}}
	cfg.ExcludeTables = []string{"audit"}

	copied := cfg.Clone()
	copied.Fields["user"][0] = "email"
	copied.Fields["order"] = []string{"card"}
	copied.ExcludeTables[0] = "logs"

	assert.Equal(t, map[string][]string{"user": {"phone"}}, cfg.Fields)
	assert.Equal(t, []string{"audit"}, cfg.ExcludeTables)
}
