package config

import (
	"fmt"
	"strings"

	"github.com/hengadev/fieldcrypt/internal/fcerr"
)

// Option changes one setting of a Config.
type Option func(*Config) error

func WithEnabled(enabled bool) Option {
	return func(c *Config) error {
		c.Enabled = enabled
		return nil
	}
}

// WithAlgorithm sets the default algorithm used by fields that do not name one.
func WithAlgorithm(algorithm string) Option {
	return func(c *Config) error {
		if strings.TrimSpace(algorithm) == "" {
			return fmt.Errorf("%w: algorithm cannot be empty", fcerr.ErrInvalidConfiguration)
		}
		c.Algorithm = strings.ToUpper(strings.TrimSpace(algorithm))
		return nil
	}
}

// WithKey sets the global default key. A blank key is rejected here; leave
// the option out to run on the built-in fallback key.
func WithKey(key string) Option {
	return func(c *Config) error {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("%w: key cannot be empty or whitespace only", fcerr.ErrInvalidKey)
		}
		c.Key = key
		return nil
	}
}

func WithMode(mode string) Option {
	return func(c *Config) error {
		m := strings.ToUpper(strings.TrimSpace(mode))
		if m != ModeDB && m != ModePOJO {
			return fmt.Errorf("%w: mode must be %s or %s, got '%s'", fcerr.ErrInvalidConfiguration, ModeDB, ModePOJO, mode)
		}
		c.Mode = m
		return nil
	}
}

// WithFields adds encrypted fields to table, keeping those already listed.
func WithFields(table string, fields ...string) Option {
	return func(c *Config) error {
		table = strings.TrimSpace(table)
		if table == "" {
			return fmt.Errorf("%w: table cannot be empty", fcerr.ErrInvalidConfiguration)
		}
		fields = trimAll(fields)
		if len(fields) == 0 {
			return fmt.Errorf("%w: table '%s' needs at least one field", fcerr.ErrInvalidConfiguration, table)
		}
		if c.Fields == nil {
			c.Fields = make(map[string][]string)
		}
		c.Fields[table] = appendUnique(c.Fields[table], fields...)
		return nil
	}
}

func WithExcludeTables(tables ...string) Option {
	return func(c *Config) error {
		c.ExcludeTables = appendUnique(c.ExcludeTables, trimAll(tables)...)
		return nil
	}
}

func WithFailurePolicy(policy string) Option {
	return func(c *Config) error {
		p := strings.ToLower(strings.TrimSpace(policy))
		if p != FailOpen && p != FailClosed {
			return fmt.Errorf("%w: failure policy must be %s or %s, got '%s'", fcerr.ErrInvalidConfiguration, FailOpen, FailClosed, policy)
		}
		c.FailurePolicy = p
		return nil
	}
}

func WithDialect(dialect string) Option {
	return func(c *Config) error {
		d := strings.ToLower(strings.TrimSpace(dialect))
		switch d {
		case DialectMySQL, DialectMySQLAES256, DialectSQLite:
		default:
			return fmt.Errorf("%w: dialect must be %s, %s or %s, got '%s'", fcerr.ErrInvalidConfiguration,
				DialectMySQL, DialectMySQLAES256, DialectSQLite, dialect)
		}
		c.Dialect = d
		return nil
	}
}

func WithCache(enabled bool) Option {
	return func(c *Config) error {
		c.Cache.Enabled = enabled
		return nil
	}
}

func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Log.Level = level
		return nil
	}
}

func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Log.Format = format
		return nil
	}
}

// ApplyOptions applies all configuration options to a config
func ApplyOptions(config *Config, options []Option) error {
	for i, opt := range options {
		if opt == nil {
			continue
		}
		if err := opt(config); err != nil {
			return fmt.Errorf("option %d failed: %w", i, err)
		}
	}
	return nil
}

func appendUnique(dst []string, values ...string) []string {
	seen := make(map[string]bool, len(dst)+len(values))
	for _, v := range dst {
		seen[v] = true
	}
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			dst = append(dst, v)
		}
	}
	return dst
}
