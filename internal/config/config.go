// Package config holds the settings of a fieldcrypt engine and the logic that
// fills, normalizes and validates them.
package config

import (
	"strings"

	"github.com/hengadev/fieldcrypt/internal/monitoring"
)

const (
	ModeDB   = "DB"
	ModePOJO = "POJO"

	FailOpen   = "fail_open"
	FailClosed = "fail_closed"

	DialectMySQL       = "mysql"
	DialectMySQLAES256 = "mysql-aes256"
	DialectSQLite      = "sqlite"

	DefaultAlgorithm = "AES"

	// DefaultFileName is looked up in the project root when no path is given.
	DefaultFileName = "fieldcrypt.yaml"
)

// Config is the complete engine configuration. It holds only data and can be
// filled from YAML, the environment or code.
type Config struct {
	Enabled       bool                `yaml:"enabled"`
	Algorithm     string              `yaml:"algorithm" validate:"required"`
	Key           string              `yaml:"key" validate:"omitempty,fieldcrypt_key"`
	Mode          string              `yaml:"mode" validate:"oneof=DB POJO"`
	Fields        map[string][]string `yaml:"fields" validate:"dive,keys,required,endkeys,min=1,dive,required"`
	ExcludeTables []string            `yaml:"exclude_tables" validate:"dive,required"`
	FailurePolicy string              `yaml:"failure_policy" validate:"oneof=fail_open fail_closed"`
	Dialect       string              `yaml:"dialect" validate:"oneof=mysql mysql-aes256 sqlite"`
	Cache         CacheConfig         `yaml:"cache"`
	Log           LogConfig           `yaml:"log"`
}

type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// Default returns a configuration with every optional setting filled in:
// enabled, AES, DB mode, fail open, MySQL functions, key cache on.
func Default() *Config {
	return &Config{
		Enabled:       true,
		Algorithm:     DefaultAlgorithm,
		Mode:          ModeDB,
		Fields:        make(map[string][]string),
		FailurePolicy: FailOpen,
		Dialect:       DialectMySQL,
		Cache:         CacheConfig{Enabled: true},
		Log:           LogConfig{Level: "info", Format: "text"},
	}
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	copied := *c
	if c.Fields != nil {
		copied.Fields = make(map[string][]string, len(c.Fields))
		for table, fields := range c.Fields {
			copied.Fields[table] = append([]string(nil), fields...)
		}
	}
	copied.ExcludeTables = append([]string(nil), c.ExcludeTables...)
	return &copied
}

// Normalize canonicalizes case and whitespace and fills blank settings with
// their defaults. It is idempotent.
func (c *Config) Normalize() {
	def := Default()

	c.Algorithm = strings.ToUpper(strings.TrimSpace(c.Algorithm))
	if c.Algorithm == "" {
		c.Algorithm = def.Algorithm
	}
	c.Key = strings.TrimSpace(c.Key)
	c.Mode = strings.ToUpper(strings.TrimSpace(c.Mode))
	if c.Mode == "" {
		c.Mode = def.Mode
	}
	c.FailurePolicy = strings.ToLower(strings.TrimSpace(c.FailurePolicy))
	if c.FailurePolicy == "" {
		c.FailurePolicy = def.FailurePolicy
	}
	c.Dialect = strings.ToLower(strings.TrimSpace(c.Dialect))
	if c.Dialect == "" {
		c.Dialect = def.Dialect
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "warning" {
		c.Log.Level = "warn"
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}

	if c.Fields == nil {
		c.Fields = make(map[string][]string)
	}
	for table, fields := range c.Fields {
		cleaned := trimAll(fields)
		name := strings.TrimSpace(table)
		if name != table {
			delete(c.Fields, table)
		}
		if name == "" || len(cleaned) == 0 {
			delete(c.Fields, table)
			continue
		}
		c.Fields[name] = cleaned
	}
	c.ExcludeTables = trimAll(c.ExcludeTables)
}

// LoggerConfig converts the log settings for monitoring.NewStructuredLogger.
// Unknown values fall back to info and JSON.
func (c *Config) LoggerConfig() monitoring.LoggerConfig {
	level, _ := monitoring.ParseLevel(c.Log.Level)
	format, _ := monitoring.ParseFormat(c.Log.Format)
	return monitoring.LoggerConfig{
		Level:     level,
		Format:    format,
		Component: "engine",
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
