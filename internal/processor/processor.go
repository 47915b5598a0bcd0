// Package processor encrypts and decrypts the marked text fields of
// application values in place.
package processor

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/hengadev/errsx"
	"github.com/hengadev/fieldcrypt/internal/fcerr"
	"github.com/hengadev/fieldcrypt/internal/monitoring"
	"github.com/hengadev/fieldcrypt/internal/registry"
	"github.com/hengadev/fieldcrypt/internal/strategy"
)

// KeyResolver returns the key of table.field.
type KeyResolver interface {
	KeyFor(table, field string) string
}

// Tabler lets a type name its table.
type Tabler interface {
	TableName() string
}

// Processor walks values and applies the configured strategies to their
// encrypted fields. It keeps no per-call state and is safe for concurrent use.
type Processor struct {
	strategies *strategy.Set
	keys       KeyResolver
	registry   *registry.Registry
	logger     monitoring.Logger
	hook       monitoring.ObservabilityHook
}

func New(strategies *strategy.Set, keys KeyResolver, reg *registry.Registry, logger monitoring.Logger, hook monitoring.ObservabilityHook) *Processor {
	if logger == nil {
		logger = monitoring.NewNopLogger()
	}
	if hook == nil {
		hook = &monitoring.NoOpObservabilityHook{}
	}
	return &Processor{
		strategies: strategies,
		keys:       keys,
		registry:   reg,
		logger:     logger,
		hook:       hook,
	}
}

// Apply transforms obj in the given direction. obj may be a pointer to a
// struct, a FieldProvider, a map[string]any or map[string]string of column
// values, or a slice, array or pointer to slice of any of these. An empty
// table is resolved from the value's type.
//
// Failures never abort the walk: the failing field keeps its value and the
// error is returned alongside the others.
func (p *Processor) Apply(ctx context.Context, obj any, table string, direction fcerr.Action) error {
	if direction != fcerr.Encrypt && direction != fcerr.Decrypt {
		return fmt.Errorf("%w: direction must be encrypt or decrypt, got %s", fcerr.ErrInvalidConfiguration, direction)
	}
	if obj == nil {
		return nil
	}

	start := time.Now()
	var errs errsx.Map
	count := p.apply(ctx, reflect.ValueOf(obj), obj, table, direction, "", &errs)
	if count > 0 {
		p.hook.OnFieldsProcessed(ctx, direction.String(), count, time.Since(start))
	}
	return errs.AsError()
}

func (p *Processor) apply(ctx context.Context, v reflect.Value, obj any, table string, direction fcerr.Action, path string, errs *errsx.Map) int {
	if provider, ok := obj.(FieldProvider); ok && v.Kind() == reflect.Ptr && !v.IsNil() {
		table = p.resolveTable(v.Type(), obj, table)
		return p.transform(ctx, providerTargets(provider), table, direction, path, errs)
	}

	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return 0
		}
		elem := v.Elem()
		if elem.Kind() == reflect.Struct {
			table = p.resolveTable(elem.Type(), obj, table)
			return p.transform(ctx, structTargets(elem), table, direction, path, errs)
		}
		return p.apply(ctx, elem, elem.Interface(), table, direction, path, errs)

	case reflect.Slice, reflect.Array:
		total := 0
		for i := 0; i < v.Len(); i++ {
			elem := v.Index(i)
			item := elem
			if elem.Kind() == reflect.Struct && elem.CanAddr() {
				item = elem.Addr()
			}
			if !item.CanInterface() {
				continue
			}
			total += p.apply(ctx, item, item.Interface(), table, direction, fmt.Sprintf("%s[%d]", path, i), errs)
		}
		return total

	case reflect.Map:
		return p.applyMap(ctx, v, table, direction, path, errs)

	case reflect.Struct:
		if hasTags(v.Type()) {
			errs.Set(pathOr(path, v.Type().String()), fcerr.NewUnsupportedTypeError(v.Type().String(), "non-pointer struct", direction))
		}
		return 0

	default:
		return 0
	}
}

// applyMap transforms string values whose key is an enabled encrypted field
// of table.
func (p *Processor) applyMap(ctx context.Context, v reflect.Value, table string, direction fcerr.Action, path string, errs *errsx.Map) int {
	if v.IsNil() || v.Type().Key().Kind() != reflect.String {
		return 0
	}
	if table == "" {
		errs.Set(pathOr(path, "map"), fmt.Errorf("%w: a table is required for map parameters", fcerr.ErrInvalidConfiguration))
		return 0
	}
	elemType := v.Type().Elem()
	if elemType.Kind() != reflect.String && elemType.Kind() != reflect.Interface {
		return 0
	}

	var targets []target
	iter := v.MapRange()
	for iter.Next() {
		key := iter.Key()
		column := key.String()
		if p.registry == nil || !p.registry.IsEncrypted(table, column) {
			continue
		}
		val := iter.Value()
		if val.Kind() == reflect.Interface {
			val = val.Elem()
		}
		if !val.IsValid() {
			continue
		}

		var (
			get func() (string, bool)
			set func(string)
		)
		switch {
		case val.Kind() == reflect.String:
			current := val.String()
			get = func() (string, bool) { return current, true }
			set = func(s string) { v.SetMapIndex(key, reflect.ValueOf(s).Convert(elemTypeFor(elemType))) }
		case val.Kind() == reflect.Ptr && val.Type().Elem() == stringType && !val.IsNil():
			ptr := val.Interface().(*string)
			get = func() (string, bool) { return *ptr, true }
			set = func(s string) { *ptr = s }
		default:
			continue
		}

		spec, _ := p.registry.Spec(table, column)
		targets = append(targets, target{
			column:    column,
			goName:    column,
			algorithm: spec.Algorithm,
			get:       get,
			set:       set,
		})
	}
	return p.transform(ctx, targets, table, direction, path, errs)
}

func elemTypeFor(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Interface {
		return stringType
	}
	return t
}

// transform applies the strategy of every target and returns how many were
// processed.
func (p *Processor) transform(ctx context.Context, targets []target, table string, direction fcerr.Action, path string, errs *errsx.Map) int {
	count := 0
	for _, t := range targets {
		value, ok := t.get()
		if !ok || value == "" {
			continue
		}
		name := t.strategy
		if name == "" {
			name = t.algorithm
		}
		if name == "" && p.registry != nil {
			if spec, found := p.registry.Spec(table, t.column); found {
				name = spec.Algorithm
			}
		}
		st, err := p.strategies.Find(name)
		if err != nil {
			errs.Set(fieldPath(path, t.goName), fcerr.NewFieldError(t.goName, direction, err))
			continue
		}

		key := p.keys.KeyFor(table, t.column)
		out := strategy.Apply(st, direction, value, key, func(err error) {
			errs.Set(fieldPath(path, t.goName), fcerr.NewFieldError(t.goName, direction, err))
			p.hook.OnCryptoFailure(ctx, direction.String(), st.Algorithm(), err, map[string]any{
				"table": table,
				"field": t.column,
			})
		})
		t.set(out)
		count++
	}
	return count
}

// resolveTable picks the explicit table, else the registered type mapping,
// else TableName(), else a name inferred from the type.
func (p *Processor) resolveTable(t reflect.Type, obj any, table string) string {
	if table != "" {
		return table
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if p.registry != nil {
		if mapped, ok := p.registry.TableForType(t.Name()); ok {
			return mapped
		}
	}
	if tabler, ok := obj.(Tabler); ok {
		if name := tabler.TableName(); name != "" {
			return name
		}
	}
	return InferTable(t.Name())
}

func fieldPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func pathOr(path, fallback string) string {
	if path == "" {
		return fallback
	}
	return path
}
