package monitoring

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// ObservabilityHook receives the events the engine emits. Implementations
// must be safe for concurrent use and must not block.
type ObservabilityHook interface {
	// Called after the SQL rewriter inspected a statement
	OnRewrite(ctx context.Context, kind string, changed bool, duration time.Duration)

	// Called when an encrypt or decrypt call failed and the value was kept as is
	OnCryptoFailure(ctx context.Context, direction, algorithm string, err error, metadata map[string]any)

	// Called after struct or map fields were transformed
	OnFieldsProcessed(ctx context.Context, direction string, count int, duration time.Duration)

	// Called for key operations: resolve, store, rotate, load, fallback
	OnKeyOperation(ctx context.Context, operation, table, field string, metadata map[string]any)

	// Called when errors occur outside the crypto path
	OnError(ctx context.Context, operation string, err error, metadata map[string]any)
}

// NoOpObservabilityHook is a no-op implementation of ObservabilityHook
type NoOpObservabilityHook struct{}

func (n *NoOpObservabilityHook) OnRewrite(ctx context.Context, kind string, changed bool, duration time.Duration) {
}
func (n *NoOpObservabilityHook) OnCryptoFailure(ctx context.Context, direction, algorithm string, err error, metadata map[string]any) {
}
func (n *NoOpObservabilityHook) OnFieldsProcessed(ctx context.Context, direction string, count int, duration time.Duration) {
}
func (n *NoOpObservabilityHook) OnKeyOperation(ctx context.Context, operation, table, field string, metadata map[string]any) {
}
func (n *NoOpObservabilityHook) OnError(ctx context.Context, operation string, err error, metadata map[string]any) {
}

// Logger is the leveled, key-value logger the hooks and the engine write to.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LoggingObservabilityHook logs all events
type LoggingObservabilityHook struct {
	logger Logger
}

func NewLoggingObservabilityHook(logger Logger) *LoggingObservabilityHook {
	if logger == nil {
		logger = NewStructuredLogger(LoggerConfig{Level: LevelInfo, Component: "hooks"})
	}
	return &LoggingObservabilityHook{logger: logger}
}

func (l *LoggingObservabilityHook) OnRewrite(ctx context.Context, kind string, changed bool, duration time.Duration) {
	l.logger.Debug("statement inspected", "kind", kind, "changed", changed, "duration", duration)
}

func (l *LoggingObservabilityHook) OnCryptoFailure(ctx context.Context, direction, algorithm string, err error, metadata map[string]any) {
	l.logger.Warn("crypto failed, value left unchanged",
		append([]any{"direction", direction, "algorithm", algorithm, "error", err}, flatten(metadata)...)...)
}

func (l *LoggingObservabilityHook) OnFieldsProcessed(ctx context.Context, direction string, count int, duration time.Duration) {
	l.logger.Debug("fields processed", "direction", direction, "count", count, "duration", duration)
}

func (l *LoggingObservabilityHook) OnKeyOperation(ctx context.Context, operation, table, field string, metadata map[string]any) {
	l.logger.Info("key operation",
		append([]any{"operation", operation, "table", table, "field", field}, flatten(metadata)...)...)
}

func (l *LoggingObservabilityHook) OnError(ctx context.Context, operation string, err error, metadata map[string]any) {
	l.logger.Error("operation error",
		append([]any{"operation", operation, "error", err}, flatten(metadata)...)...)
}

// MetricsObservabilityHook turns events into counters.
type MetricsObservabilityHook struct {
	collector MetricsCollector
}

func NewMetricsObservabilityHook(collector MetricsCollector) *MetricsObservabilityHook {
	if collector == nil {
		collector = &NoOpMetricsCollector{}
	}
	return &MetricsObservabilityHook{collector: collector}
}

func (m *MetricsObservabilityHook) OnRewrite(ctx context.Context, kind string, changed bool, duration time.Duration) {
	m.collector.IncrementCounter(MetricSQLRewrites, map[string]string{
		"kind":    kind,
		"changed": strconv.FormatBool(changed),
	})
	m.collector.RecordTiming(MetricOperationDuration, duration, map[string]string{"operation": "rewrite"})
}

func (m *MetricsObservabilityHook) OnCryptoFailure(ctx context.Context, direction, algorithm string, err error, metadata map[string]any) {
	m.collector.IncrementCounter(MetricCryptoFailures, map[string]string{
		"direction": direction,
		"algorithm": algorithm,
	})
}

func (m *MetricsObservabilityHook) OnFieldsProcessed(ctx context.Context, direction string, count int, duration time.Duration) {
	m.collector.IncrementCounterBy(MetricFieldsProcessed, int64(count), map[string]string{"direction": direction})
	m.collector.RecordTiming(MetricOperationDuration, duration, map[string]string{"operation": direction})
}

func (m *MetricsObservabilityHook) OnKeyOperation(ctx context.Context, operation, table, field string, metadata map[string]any) {
	m.collector.IncrementCounter(MetricKeyOperations, map[string]string{"operation": operation})
}

func (m *MetricsObservabilityHook) OnError(ctx context.Context, operation string, err error, metadata map[string]any) {
	m.collector.IncrementCounter("fieldcrypt_errors_total", map[string]string{
		"operation": operation,
		"error":     fmt.Sprintf("%T", err),
	})
}

// CompositeObservabilityHook fans every event out to several hooks.
type CompositeObservabilityHook struct {
	hooks []ObservabilityHook
}

func NewCompositeObservabilityHook(hooks ...ObservabilityHook) *CompositeObservabilityHook {
	kept := make([]ObservabilityHook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			kept = append(kept, h)
		}
	}
	return &CompositeObservabilityHook{hooks: kept}
}

func (c *CompositeObservabilityHook) OnRewrite(ctx context.Context, kind string, changed bool, duration time.Duration) {
	for _, hook := range c.hooks {
		hook.OnRewrite(ctx, kind, changed, duration)
	}
}

func (c *CompositeObservabilityHook) OnCryptoFailure(ctx context.Context, direction, algorithm string, err error, metadata map[string]any) {
	for _, hook := range c.hooks {
		hook.OnCryptoFailure(ctx, direction, algorithm, err, metadata)
	}
}

func (c *CompositeObservabilityHook) OnFieldsProcessed(ctx context.Context, direction string, count int, duration time.Duration) {
	for _, hook := range c.hooks {
		hook.OnFieldsProcessed(ctx, direction, count, duration)
	}
}

func (c *CompositeObservabilityHook) OnKeyOperation(ctx context.Context, operation, table, field string, metadata map[string]any) {
	for _, hook := range c.hooks {
		hook.OnKeyOperation(ctx, operation, table, field, metadata)
	}
}

func (c *CompositeObservabilityHook) OnError(ctx context.Context, operation string, err error, metadata map[string]any) {
	for _, hook := range c.hooks {
		hook.OnError(ctx, operation, err, metadata)
	}
}

func flatten(metadata map[string]any) []any {
	if len(metadata) == 0 {
		return nil
	}
	args := make([]any, 0, len(metadata)*2)
	for k, v := range metadata {
		args = append(args, k, v)
	}
	return args
}
