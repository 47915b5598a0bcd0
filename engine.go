package fieldcrypt

import (
	"context"
	"fmt"
	"strings"

	"github.com/hengadev/fieldcrypt/internal/config"
	"github.com/hengadev/fieldcrypt/internal/fcerr"
	"github.com/hengadev/fieldcrypt/internal/keys"
	"github.com/hengadev/fieldcrypt/internal/monitoring"
	"github.com/hengadev/fieldcrypt/internal/processor"
	"github.com/hengadev/fieldcrypt/internal/registry"
	"github.com/hengadev/fieldcrypt/internal/reliability"
	"github.com/hengadev/fieldcrypt/internal/sqlrewrite"
	"github.com/hengadev/fieldcrypt/internal/strategy"
)

// RegistryStats counts registered tables, fields and type mappings.
type RegistryStats = registry.Stats

// Engine is the shared encryption engine. The SQL rewriter and the object
// rewriter of one Engine read the same registry and key manager, so data
// written through one path is readable through the other.
//
// An Engine is safe for concurrent use. Create it once at startup with New.
type Engine struct {
	cfg    config.Config
	mode   Mode
	policy FailurePolicy

	logger Logger
	hook   ObservabilityHook

	registry   *registry.Registry
	strategies *strategy.Set
	keys       *keys.Manager
	processor  *processor.Processor
	rewriter   *sqlrewrite.Rewriter
	dispatcher *Dispatcher
}

// New creates an Engine from DefaultConfig, or the configuration given with
// WithConfig, plus the other options.
//
// Example:
//
//	engine, err := fieldcrypt.New(
//	    fieldcrypt.WithKey(os.Getenv("FIELDCRYPT_KEY")),
//	    fieldcrypt.WithFields("user", "phone", "email"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
func New(opts ...Option) (*Engine, error) {
	o := &engineOptions{}
	for i, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("option %d failed: %w", i, err)
		}
	}

	cfg := o.cfg
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.ApplyOptions(cfg, o.cfgOptions); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := config.NewValidator().ValidateConfig(cfg); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger = monitoring.NewStructuredLogger(cfg.LoggerConfig())
	}
	hook := buildHook(o.hook, o.metrics)

	dialect, _ := sqlrewrite.DialectByName(cfg.Dialect)
	strategies := strategy.Default(cfg.Algorithm, dialect.AESKeySize)
	for _, s := range o.strategies {
		strategies.Register(s)
	}
	if _, err := strategies.Find(cfg.Algorithm); err != nil {
		return nil, fmt.Errorf("%w: default algorithm: %w", ErrInvalidConfiguration, err)
	}

	reg := registry.New(cfg.ExcludeTables...)
	for table, fields := range cfg.Fields {
		reg.RegisterFields(table, fields)
	}

	keyLogger := component(logger, "keys")
	var guard *reliability.Guard
	if o.store != nil {
		breaker := o.breaker
		breaker.OnStateChange = func(name string, from, to reliability.CircuitState) {
			keyLogger.Warn("key store circuit changed state", "circuit", name, "from", from.String(), "to", to.String())
		}
		guard = reliability.NewGuard("keystore", breaker, o.retry)
	}

	km := keys.NewManager(keys.Options{
		DefaultKey:   cfg.Key,
		CacheEnabled: cfg.Cache.Enabled,
		Store:        o.store,
		Wrapper:      o.wrapper,
		Guard:        guard,
		Logger:       keyLogger,
		Hook:         hook,
	})
	km.SetAlgorithmResolver(func(table, field string) string {
		if spec, ok := reg.Spec(table, field); ok && spec.Algorithm != "" {
			return spec.Algorithm
		}
		return strategies.DefaultAlgorithm()
	})

	e := &Engine{
		cfg:        *cfg,
		mode:       Mode(cfg.Mode),
		policy:     FailurePolicy(cfg.FailurePolicy),
		logger:     logger,
		hook:       hook,
		registry:   reg,
		strategies: strategies,
		keys:       km,
	}
	e.processor = processor.New(strategies, km, reg, component(logger, "processor"), hook)
	e.rewriter = sqlrewrite.New(reg, km.KeyFor,
		sqlrewrite.WithDialect(dialect),
		sqlrewrite.WithLogger(component(logger, "sqlrewrite")),
		sqlrewrite.WithHook(hook),
	)
	e.dispatcher = &Dispatcher{engine: e, logger: component(logger, "dispatch")}

	if e.mode == ModeDB && !strings.EqualFold(cfg.Algorithm, AlgorithmAES) {
		logger.Warn("DB mode always encrypts with the database AES functions; the configured algorithm only applies to POJO mode",
			"algorithm", cfg.Algorithm)
	}
	if km.UsingFallbackKey() {
		// logs the fallback warning at startup instead of on first use
		km.DefaultKey()
	}
	logger.Info("engine initialized",
		"enabled", cfg.Enabled,
		"mode", cfg.Mode,
		"algorithm", cfg.Algorithm,
		"dialect", dialect.Name,
		"failure_policy", cfg.FailurePolicy,
		"tables", len(reg.AllEncryptedTables()),
	)
	return e, nil
}

func buildHook(hook ObservabilityHook, metrics MetricsCollector) ObservabilityHook {
	switch {
	case hook != nil && metrics != nil:
		return monitoring.NewCompositeObservabilityHook(hook, monitoring.NewMetricsObservabilityHook(metrics))
	case metrics != nil:
		return monitoring.NewMetricsObservabilityHook(metrics)
	case hook != nil:
		return hook
	default:
		return &monitoring.NoOpObservabilityHook{}
	}
}

// component scopes structured loggers; other loggers are used as is.
func component(logger Logger, name string) Logger {
	if sl, ok := logger.(*monitoring.StructuredLogger); ok {
		return sl.Component(name)
	}
	return logger
}

// Enabled reports the global switch. A disabled engine leaves SQL and values
// untouched.
func (e *Engine) Enabled() bool { return e.cfg.Enabled }

func (e *Engine) Mode() Mode { return e.mode }

func (e *Engine) FailurePolicy() FailurePolicy { return e.policy }

// Config returns a copy of the effective configuration.
func (e *Engine) Config() Config {
	return *e.cfg.Clone()
}

// Algorithms lists the names of every available strategy, custom ones first.
func (e *Engine) Algorithms() []string { return e.strategies.Algorithms() }

// Register scans the fieldcrypt tags, or the FieldProvider list, of obj's
// type and registers its fields under the table resolved from the type. It
// also maps the type name to that table. obj must be a pointer to a struct.
//
// Fields with invalid tags, non-text types or unknown algorithms are skipped
// and reported in the returned error; the others are registered.
func (e *Engine) Register(obj any) (string, error) {
	return e.processor.Register(obj, "")
}

// RegisterTable is Register with an explicit table name.
func (e *Engine) RegisterTable(table string, obj any) error {
	if strings.TrimSpace(table) == "" {
		return fmt.Errorf("%w: table cannot be empty", ErrInvalidConfiguration)
	}
	_, err := e.processor.Register(obj, table)
	return err
}

// RegisterFields marks fields of table as encrypted with the default
// algorithm. Empty input and excluded tables are ignored.
func (e *Engine) RegisterFields(table string, fields ...string) {
	e.registry.RegisterFields(table, fields)
}

// RegisterTypeMapping binds a Go type name to a table for table resolution.
func (e *Engine) RegisterTypeMapping(typeName, table string) {
	e.registry.RegisterTypeMapping(typeName, table)
}

// ValidateStruct reports every problem with the fieldcrypt tags of obj's type
// without registering anything.
func (e *Engine) ValidateStruct(obj any) error {
	return e.processor.ValidateStruct(obj)
}

func (e *Engine) IsEncrypted(table, field string) bool {
	return e.registry.IsEncrypted(table, field)
}

// EncryptedFields returns the sorted encrypted fields of table.
func (e *Engine) EncryptedFields(table string) []string {
	return e.registry.FieldsOf(table)
}

// EncryptedTables returns a sorted snapshot of the tables with encrypted fields.
func (e *Engine) EncryptedTables() []string {
	return e.registry.AllEncryptedTables()
}

// ClearRegistry forgets every registered field and type mapping.
func (e *Engine) ClearRegistry() { e.registry.Clear() }

// ClearTable forgets the fields and type mappings of one table.
func (e *Engine) ClearTable(table string) { e.registry.ClearTable(table) }

func (e *Engine) RegistryStats() RegistryStats { return e.registry.Stats() }

// Encrypt encrypts the marked fields of obj in place. obj may be a pointer to
// a struct, a FieldProvider, or a slice of them; the table is resolved from
// the type. See EncryptTable for maps.
//
// Encrypt is not idempotent: encrypting twice needs two decryptions. Fields
// that fail keep their value and are reported in the returned error.
func (e *Engine) Encrypt(ctx context.Context, obj any) error {
	return e.EncryptTable(ctx, "", obj)
}

// Decrypt reverses Encrypt.
func (e *Engine) Decrypt(ctx context.Context, obj any) error {
	return e.DecryptTable(ctx, "", obj)
}

// EncryptTable is Encrypt with an explicit table. It is required for
// map[string]any and map[string]string values, whose keys are column names.
func (e *Engine) EncryptTable(ctx context.Context, table string, obj any) error {
	if !e.cfg.Enabled {
		return nil
	}
	return e.processor.Apply(ctx, obj, table, fcerr.Encrypt)
}

func (e *Engine) DecryptTable(ctx context.Context, table string, obj any) error {
	if !e.cfg.Enabled {
		return nil
	}
	return e.processor.Apply(ctx, obj, table, fcerr.Decrypt)
}

// EncryptValue encrypts one value of table.field with its configured
// algorithm and key.
func (e *Engine) EncryptValue(table, field, plaintext string) (string, error) {
	return e.Context(table, field).Encrypt(plaintext)
}

func (e *Engine) DecryptValue(table, field, ciphertext string) (string, error) {
	return e.Context(table, field).Decrypt(ciphertext)
}

// Rewrite returns sql with encrypted columns of registered tables wrapped in
// the dialect's encrypt and decrypt functions. It never fails: anything it
// cannot handle is returned unchanged.
func (e *Engine) Rewrite(sql string) RewriteResult {
	return e.RewriteContext(context.Background(), sql)
}

func (e *Engine) RewriteContext(ctx context.Context, sql string) RewriteResult {
	if !e.cfg.Enabled {
		return RewriteResult{SQL: sql, Kind: sqlrewrite.Classify(sql)}
	}
	return e.rewriter.ProcessContext(ctx, sql)
}

// KeyFor returns the key of table.field, falling back to the default key.
func (e *Engine) KeyFor(table, field string) string {
	return e.keys.KeyFor(table, field)
}

// StoreKey sets the key of table.field. Invalid keys are rejected with
// ErrInvalidKey and the previous key stays in use.
func (e *Engine) StoreKey(ctx context.Context, table, field, key string) error {
	return e.keys.StoreKey(ctx, table, field, key)
}

// RotateKey generates and stores a new key for table.field and returns it.
// Values encrypted with the previous key can no longer be decrypted.
func (e *Engine) RotateKey(ctx context.Context, table, field string) (string, error) {
	return e.keys.RotateKey(ctx, table, field)
}

// LoadKeys preloads every key from the key store and returns how many were
// loaded.
func (e *Engine) LoadKeys(ctx context.Context) (int, error) {
	return e.keys.Load(ctx)
}

func (e *Engine) ClearKeyCache() { e.keys.ClearCache() }

// KeyStoreState reports the circuit state guarding the key store: CLOSED,
// OPEN or HALF_OPEN. Without a key store it is always CLOSED.
func (e *Engine) KeyStoreState() string { return e.keys.StoreState().String() }

// UsingFallbackKey reports whether no key was configured.
func (e *Engine) UsingFallbackKey() bool { return e.keys.UsingFallbackKey() }

// Dispatcher returns the statement dispatcher bound to this engine.
func (e *Engine) Dispatcher() *Dispatcher { return e.dispatcher }

// GenerateKey returns a random key sized for algorithm: 8 characters for
// DES, 32 otherwise.
func GenerateKey(algorithm string) (string, error) {
	return keys.GenerateKey(algorithm)
}

// IsValidKey reports whether key is 16 to 64 characters from the accepted
// printable set.
func IsValidKey(key string) bool {
	return keys.IsValid(key)
}
