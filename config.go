package fieldcrypt

import (
	"github.com/hengadev/fieldcrypt/internal/config"
)

// Config holds the configuration of an Engine.
//
// This struct contains only data, no behavior. It can be loaded from YAML,
// the environment or built in code, and is passed to New with WithConfig.
//
// YAML layout:
//
//	enabled: true
//	algorithm: AES            # default algorithm for fields that name none
//	key: "change-me-16-chars" # global key, 16 to 64 printable characters
//	mode: DB                  # DB rewrites SQL, POJO rewrites objects
//	fields:
//	  user: [phone, email]
//	exclude_tables: [audit_log]
//	failure_policy: fail_open # or fail_closed
//	dialect: mysql            # or sqlite
//	cache:
//	  enabled: true
//	log:
//	  level: info
//	  format: text
//
// A blank key selects FallbackKey and logs a warning: the data is then only
// obfuscated.
type Config = config.Config

// DefaultConfig returns the configuration used when nothing is set:
// enabled, AES, DB mode, fail open, MySQL functions, key cache on, no fields.
func DefaultConfig() *Config {
	return config.Default()
}

// ValidateConfig normalizes cfg in place and checks it. The returned error
// is keyed by setting, e.g. "log.level", and wraps ErrInvalidConfiguration or
// ErrInvalidKey.
func ValidateConfig(cfg *Config) error {
	if cfg != nil {
		cfg.Normalize()
	}
	return config.NewValidator().ValidateConfig(cfg)
}
