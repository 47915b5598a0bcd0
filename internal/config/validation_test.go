package config

import (
	"testing"

	"github.com/hengadev/errsx"
	"github.com/hengadev/fieldcrypt/internal/fcerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_ValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		errKeys []string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{
			name: "valid full config",
			mutate: func(c *Config) {
				c.Key = "0123456789abcdef0123456789abcdef"
				c.Fields = map[string][]string{"user": {"phone", "email"}}
				c.ExcludeTables = []string{"audit"}
				c.Mode = ModePOJO
				c.FailurePolicy = FailClosed
			},
		},
		{name: "missing algorithm", mutate: func(c *Config) { c.Algorithm = "" }, errKeys: []string{"algorithm"}},
		{name: "short key", mutate: func(c *Config) { c.Key = "short" }, errKeys: []string{"key"}},
		{name: "key with space", mutate: func(c *Config) { c.Key = "0123456789 abcdef" }, errKeys: []string{"key"}},
		{name: "bad mode", mutate: func(c *Config) { c.Mode = "MIXED" }, errKeys: []string{"mode"}},
		{name: "bad policy", mutate: func(c *Config) { c.FailurePolicy = "retry" }, errKeys: []string{"failure_policy"}},
		{name: "bad dialect", mutate: func(c *Config) { c.Dialect = "oracle" }, errKeys: []string{"dialect"}},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "trace" }, errKeys: []string{"log.level"}},
		{name: "empty field list", mutate: func(c *Config) { c.Fields = map[string][]string{"user": {}} }, errKeys: []string{"fields[user]"}},
		{
			name: "excluded table with fields",
			mutate: func(c *Config) {
				c.Fields = map[string][]string{"user": {"phone"}}
				c.ExcludeTables = []string{"user"}
			},
			errKeys: []string{"exclude_tables"},
		},
		{
			name: "several problems",
			mutate: func(c *Config) {
				c.Mode = "x"
				c.Dialect = "y"
			},
			errKeys: []string{"mode", "dialect"},
		},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := v.ValidateConfig(cfg)
			if len(tt.errKeys) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			errs, ok := err.(errsx.Map)
			require.True(t, ok, "expected errsx.Map, got %T", err)
			assert.Len(t, errs, len(tt.errKeys))
			for _, key := range tt.errKeys {
				assert.Contains(t, errs, key)
			}
		})
	}
}

func TestValidator_NilConfig(t *testing.T) {
	err := NewValidator().ValidateConfig(nil)
	assert.ErrorIs(t, err, fcerr.ErrInvalidConfiguration)
}
