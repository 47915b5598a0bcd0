package fieldcrypt

import (
	"fmt"

	"github.com/hengadev/fieldcrypt/internal/config"
)

// LoadConfig loads configuration the way a service starts up.
//
// Sources, later ones winning:
//   - built-in defaults (see DefaultConfig)
//   - variables from a .env file in the working directory, which never
//     override variables already set
//   - the YAML file at path, or at FIELDCRYPT_CONFIG when path is empty, or
//     fieldcrypt.yaml in the Go project root when both are empty
//   - FIELDCRYPT_* environment variables
//
// Environment variables:
//   - FIELDCRYPT_ENABLED: true or false
//   - FIELDCRYPT_ALGORITHM: default algorithm (AES, DES, AESGCM, SECRETBOX)
//   - FIELDCRYPT_KEY: global key
//   - FIELDCRYPT_MODE: DB or POJO
//   - FIELDCRYPT_FIELDS: encrypted fields, "user=phone|email;order=card"
//   - FIELDCRYPT_EXCLUDE_TABLES: comma separated table names
//   - FIELDCRYPT_FAILURE_POLICY: fail_open or fail_closed
//   - FIELDCRYPT_DIALECT: mysql or sqlite
//   - FIELDCRYPT_CACHE_ENABLED, FIELDCRYPT_LOG_LEVEL, FIELDCRYPT_LOG_FORMAT
//
// The result is normalized and validated.
//
// Example usage (12-factor app):
//
//	// export FIELDCRYPT_KEY="a-32-character-key-from-secrets"
//	// export FIELDCRYPT_FIELDS="user=phone|email"
//	cfg, err := fieldcrypt.LoadConfig("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engine, err := fieldcrypt.New(fieldcrypt.WithConfig(cfg))
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("configuration loading failed: %w", err)
	}
	return cfg, nil
}

// ParseConfig decodes YAML over the defaults, then normalizes and validates
// the result. The environment is not consulted.
func ParseConfig(data []byte) (*Config, error) {
	cfg, err := config.Parse(data)
	if err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseFields parses the FIELDCRYPT_FIELDS format, "user=phone|email;order=card".
func ParseFields(s string) (map[string][]string, error) {
	return config.ParseFields(s)
}
