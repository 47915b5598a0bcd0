package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hengadev/fieldcrypt/internal/fcerr"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvEnabled       = "FIELDCRYPT_ENABLED"
	EnvAlgorithm     = "FIELDCRYPT_ALGORITHM"
	EnvKey           = "FIELDCRYPT_KEY"
	EnvMode          = "FIELDCRYPT_MODE"
	EnvFields        = "FIELDCRYPT_FIELDS"
	EnvExcludeTables = "FIELDCRYPT_EXCLUDE_TABLES"
	EnvFailurePolicy = "FIELDCRYPT_FAILURE_POLICY"
	EnvDialect       = "FIELDCRYPT_DIALECT"
	EnvCacheEnabled  = "FIELDCRYPT_CACHE_ENABLED"
	EnvLogLevel      = "FIELDCRYPT_LOG_LEVEL"
	EnvLogFormat     = "FIELDCRYPT_LOG_FORMAT"
	EnvConfigPath    = "FIELDCRYPT_CONFIG"
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadFile reads a YAML file over the defaults. Settings missing from the
// file keep their default values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config file: %w", fcerr.ErrInvalidConfiguration, err)
	}
	return cfg, nil
}

// LoadDotEnv loads the given .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with every FIELDCRYPT_* variable lookup finds.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if v, ok := lookup(EnvEnabled); ok {
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s must be a boolean, got '%s'", fcerr.ErrInvalidConfiguration, EnvEnabled, v)
		}
		cfg.Enabled = enabled
	}
	if v, ok := lookup(EnvCacheEnabled); ok {
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s must be a boolean, got '%s'", fcerr.ErrInvalidConfiguration, EnvCacheEnabled, v)
		}
		cfg.Cache.Enabled = enabled
	}

	overrides := map[string]*string{
		EnvAlgorithm:     &cfg.Algorithm,
		EnvKey:           &cfg.Key,
		EnvMode:          &cfg.Mode,
		EnvFailurePolicy: &cfg.FailurePolicy,
		EnvDialect:       &cfg.Dialect,
		EnvLogLevel:      &cfg.Log.Level,
		EnvLogFormat:     &cfg.Log.Format,
	}
	for name, dst := range overrides {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup(EnvFields); ok && v != "" {
		fields, err := ParseFields(v)
		if err != nil {
			return err
		}
		cfg.Fields = fields
	}
	if v, ok := lookup(EnvExcludeTables); ok && v != "" {
		cfg.ExcludeTables = trimAll(splitList(v))
	}
	return nil
}

// ParseFields parses "user=phone|email;order=card". Tables are separated by
// ';', fields by '|' or ','.
func ParseFields(s string) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		table, list, ok := strings.Cut(entry, "=")
		table = strings.TrimSpace(table)
		if !ok || table == "" {
			return nil, fcerr.NewInvalidFormatError(fmt.Sprintf("%s entry %q", EnvFields, entry), "table=field|field")
		}
		fields := trimAll(strings.FieldsFunc(list, func(r rune) bool { return r == '|' || r == ',' }))
		if len(fields) == 0 {
			return nil, fcerr.NewInvalidFormatError(fmt.Sprintf("%s entry %q", EnvFields, entry), "table=field|field")
		}
		out[table] = appendUnique(out[table], fields...)
	}
	return out, nil
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '|' })
}

// Load builds the configuration the way a service starts: .env files, then
// the YAML file named by path, FIELDCRYPT_CONFIG or fieldcrypt.yaml in the
// project root, then environment overrides. The result is normalized and
// validated.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = discoverFile()
	}

	cfg := Default()
	if path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := NewValidator().ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// discoverFile returns the default config file in the project root, or "".
func discoverFile() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	root, err := FindProjectRoot(cwd)
	if err != nil {
		return ""
	}
	candidate := filepath.Join(root, DefaultFileName)
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}
