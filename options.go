package fieldcrypt

import (
	"fmt"
	"time"

	"github.com/hengadev/fieldcrypt/internal/config"
	"github.com/hengadev/fieldcrypt/internal/reliability"
)

// Option configures an Engine.
type Option func(*engineOptions) error

type engineOptions struct {
	cfg        *config.Config
	cfgOptions []config.Option
	logger     Logger
	hook       ObservabilityHook
	metrics    MetricsCollector
	store      KeyStore
	wrapper    KeyWrapper
	strategies []Strategy

	breaker reliability.CircuitBreakerConfig
	retry   reliability.RetryConfig
}

// WithConfig sets the base configuration. Options that change single
// settings apply on top of it regardless of their order.
func WithConfig(cfg *Config) Option {
	return func(o *engineOptions) error {
		if cfg == nil {
			return fmt.Errorf("%w: config cannot be nil", ErrInvalidConfiguration)
		}
		o.cfg = cfg.Clone()
		return nil
	}
}

func WithEnabled(enabled bool) Option { return setting(config.WithEnabled(enabled)) }

// WithAlgorithm sets the default algorithm of fields that do not name one.
func WithAlgorithm(algorithm string) Option { return setting(config.WithAlgorithm(algorithm)) }

// WithKey sets the global default key.
func WithKey(key string) Option { return setting(config.WithKey(key)) }

// WithMode selects ModeDB or ModePOJO dispatch.
func WithMode(mode Mode) Option { return setting(config.WithMode(string(mode))) }

// WithFields registers encrypted fields of table at startup.
func WithFields(table string, fields ...string) Option {
	return setting(config.WithFields(table, fields...))
}

// WithExcludeTables lists tables that are never registered.
func WithExcludeTables(tables ...string) Option {
	return setting(config.WithExcludeTables(tables...))
}

// WithFailurePolicy selects FailOpen or FailClosed.
func WithFailurePolicy(policy FailurePolicy) Option {
	return setting(config.WithFailurePolicy(string(policy)))
}

// WithDialect selects the database the SQL rewriter targets: "mysql",
// "mysql-aes256" (block_encryption_mode=aes-256-ecb) or "sqlite". It also
// sets how the AES strategy derives its key so both modes produce the same
// ciphertext.
func WithDialect(dialect string) Option { return setting(config.WithDialect(dialect)) }

// WithKeyCache turns caching of resolved keys on or off.
func WithKeyCache(enabled bool) Option { return setting(config.WithCache(enabled)) }

func setting(opt config.Option) Option {
	return func(o *engineOptions) error {
		o.cfgOptions = append(o.cfgOptions, opt)
		return nil
	}
}

// WithLogger replaces the structured logger built from the log settings.
func WithLogger(logger Logger) Option {
	return func(o *engineOptions) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfiguration)
		}
		o.logger = logger
		return nil
	}
}

// WithObservabilityHook adds a hook. It is combined with the metrics hook
// when a collector is also set.
func WithObservabilityHook(hook ObservabilityHook) Option {
	return func(o *engineOptions) error {
		o.hook = hook
		return nil
	}
}

// WithMetricsCollector records engine metrics, e.g. with
// monitoring.NewPrometheusCollector.
func WithMetricsCollector(collector MetricsCollector) Option {
	return func(o *engineOptions) error {
		o.metrics = collector
		return nil
	}
}

// WithKeyStore persists keys written by StoreKey and RotateKey and reads keys
// that are not cached.
func WithKeyStore(store KeyStore) Option {
	return func(o *engineOptions) error {
		if store == nil {
			return fmt.Errorf("%w: key store cannot be nil", ErrInvalidConfiguration)
		}
		o.store = store
		return nil
	}
}

// WithKeyWrapper encrypts keys before they reach the key store.
func WithKeyWrapper(wrapper KeyWrapper) Option {
	return func(o *engineOptions) error {
		if wrapper == nil {
			return fmt.Errorf("%w: key wrapper cannot be nil", ErrInvalidConfiguration)
		}
		o.wrapper = wrapper
		return nil
	}
}

// WithStrategy adds a custom strategy. Strategies added later are consulted
// first, before the built-in ones.
func WithStrategy(s Strategy) Option {
	return func(o *engineOptions) error {
		if s == nil {
			return fmt.Errorf("%w: strategy cannot be nil", ErrInvalidConfiguration)
		}
		o.strategies = append(o.strategies, s)
		return nil
	}
}

// WithKeyStoreRetry retries key store calls that failed for reasons other
// than a missing key. attempts counts the first call.
func WithKeyStoreRetry(attempts int, initialDelay time.Duration) Option {
	return func(o *engineOptions) error {
		if attempts < 1 || initialDelay < 0 {
			return fmt.Errorf("%w: retry attempts must be at least 1", ErrInvalidConfiguration)
		}
		o.retry.MaxAttempts = attempts
		o.retry.InitialDelay = initialDelay
		return nil
	}
}

// WithKeyStoreCircuitBreaker stops calling the key store for cooldown after
// threshold consecutive failures. Keys then resolve to the default key.
func WithKeyStoreCircuitBreaker(threshold int, cooldown time.Duration) Option {
	return func(o *engineOptions) error {
		if threshold < 1 || cooldown <= 0 {
			return fmt.Errorf("%w: circuit breaker needs a positive threshold and cooldown", ErrInvalidConfiguration)
		}
		o.breaker.FailureThreshold = threshold
		o.breaker.Timeout = cooldown
		return nil
	}
}
