package main

import (
	"flag"
	"io"

	"github.com/hengadev/fieldcrypt"
	"github.com/hengadev/fieldcrypt/internal/monitoring"
)

// engineFlags are the settings shared by every command that builds an engine.
// Flags override the configuration file, which overrides the defaults.
type engineFlags struct {
	configPath string
	key        string
	algorithm  string
	fields     string
	dialect    string
	logLevel   string
}

func registerEngineFlags(fs *flag.FlagSet) *engineFlags {
	ef := &engineFlags{}
	fs.StringVar(&ef.configPath, "config", "", "Path to a fieldcrypt YAML file (environment variables apply as well)")
	fs.StringVar(&ef.key, "key", "", "Global key, 16 to 64 characters")
	fs.StringVar(&ef.algorithm, "algorithm", "", "Default algorithm: AES, DES, AESGCM or SECRETBOX")
	fs.StringVar(&ef.fields, "fields", "", "Encrypted fields, e.g. \"user=phone|email;order=card\"")
	fs.StringVar(&ef.dialect, "dialect", "", "SQL dialect for rewrite: mysql, mysql-aes256 or sqlite")
	fs.StringVar(&ef.logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
	return ef
}

func (ef *engineFlags) options(stderr io.Writer) ([]fieldcrypt.Option, error) {
	cfg := fieldcrypt.DefaultConfig()
	if ef.configPath != "" {
		loaded, err := fieldcrypt.LoadConfig(ef.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if ef.logLevel != "" {
		cfg.Log.Level = ef.logLevel
	}
	if err := fieldcrypt.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	loggerConfig := cfg.LoggerConfig()
	loggerConfig.Output = stderr
	loggerConfig.Component = "cli"

	opts := []fieldcrypt.Option{
		fieldcrypt.WithConfig(cfg),
		fieldcrypt.WithLogger(monitoring.NewStructuredLogger(loggerConfig)),
	}
	if ef.key != "" {
		opts = append(opts, fieldcrypt.WithKey(ef.key))
	}
	if ef.algorithm != "" {
		opts = append(opts, fieldcrypt.WithAlgorithm(ef.algorithm))
	}
	if ef.dialect != "" {
		opts = append(opts, fieldcrypt.WithDialect(ef.dialect))
	}
	if ef.fields != "" {
		fields, err := fieldcrypt.ParseFields(ef.fields)
		if err != nil {
			return nil, err
		}
		for table, names := range fields {
			opts = append(opts, fieldcrypt.WithFields(table, names...))
		}
	}
	return opts, nil
}

func (ef *engineFlags) engine(stderr io.Writer, extra ...fieldcrypt.Option) (*fieldcrypt.Engine, error) {
	opts, err := ef.options(stderr)
	if err != nil {
		return nil, err
	}
	return fieldcrypt.New(append(opts, extra...)...)
}
