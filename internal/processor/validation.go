package processor

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/hengadev/errsx"
	"github.com/hengadev/fieldcrypt/internal/fcerr"
	"github.com/hengadev/fieldcrypt/internal/registry"
)

// validateObjectForRegistration checks that object is a non-nil pointer to a
// struct and returns the struct value.
func validateObjectForRegistration(object any) (reflect.Value, error) {
	if object == nil {
		return reflect.Value{}, fmt.Errorf("%w: Register requires a non-nil object. "+
			"Usage: engine.Register(&User{})", fcerr.ErrInvalidConfiguration)
	}
	v := reflect.ValueOf(object)
	if v.Kind() != reflect.Ptr {
		return reflect.Value{}, fmt.Errorf("%w: Register requires a pointer to a struct, got %T. "+
			"Usage: engine.Register(&User{}) not engine.Register(User{})", fcerr.ErrInvalidConfiguration, object)
	}
	if v.IsNil() {
		return reflect.Value{}, fcerr.NewNilPointerError(v.Type().String(), fcerr.Unknown)
	}
	elem := v.Elem()
	if elem.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: Register requires a pointer to a struct, got pointer to %s",
			fcerr.ErrInvalidConfiguration, elem.Type())
	}
	return elem, nil
}

// ValidateStruct reports every problem with the fieldcrypt tags of object's
// type: malformed tags, tags on non-text fields and unknown algorithms.
func (p *Processor) ValidateStruct(object any) error {
	elem, err := validateObjectForRegistration(object)
	if err != nil {
		return err
	}
	_, errs := p.specsOf(object, elem, "")
	return errs.AsError()
}

// Register records the enabled and disabled fields of object's type under
// table, and maps the type name to table. An empty table is resolved the way
// Apply resolves it. Fields with problems are skipped and reported.
func (p *Processor) Register(object any, table string) (string, error) {
	elem, err := validateObjectForRegistration(object)
	if err != nil {
		return "", err
	}
	table = p.resolveTable(elem.Type(), object, table)
	specs, errs := p.specsOf(object, elem, table)

	p.registry.RegisterSpecs(specs...)
	p.registry.RegisterTypeMapping(elem.Type().Name(), table)
	p.logger.Debug("type registered", "type", elem.Type().String(), "table", table, "fields", len(specs))
	return table, errs.AsError()
}

func (p *Processor) specsOf(object any, elem reflect.Value, table string) ([]registry.FieldSpec, errsx.Map) {
	var errs errsx.Map

	if provider, ok := object.(FieldProvider); ok {
		var specs []registry.FieldSpec
		for _, ref := range provider.EncryptableFields() {
			if ref.Column == "" {
				errs.Set("field ref", fcerr.NewInvalidFormatError("FieldRef.Column", "non-empty"))
				continue
			}
			if err := p.checkAlgorithm(ref.Strategy, ref.Algorithm); err != nil {
				errs.Set(ref.Column, err)
				continue
			}
			specs = append(specs, registry.FieldSpec{
				Table:     table,
				Field:     ref.Column,
				Algorithm: firstNonEmpty(ref.Strategy, ref.Algorithm),
				Enabled:   !ref.Disabled,
			})
		}
		return specs, errs
	}

	info := inspectType(elem.Type())
	for name, err := range info.errs {
		errs.Set(name, err)
	}
	specs := make([]registry.FieldSpec, 0, len(info.fields))
	for _, fi := range info.fields {
		if !fi.text {
			f, _ := elem.Type().FieldByName(fi.goName)
			errs.Set(fi.goName, fcerr.NewUnsupportedTypeError(fi.goName, f.Type.String(), fcerr.Encrypt))
			continue
		}
		if err := p.checkAlgorithm(fi.opts.Strategy, fi.opts.Algorithm); err != nil {
			errs.Set(fi.goName, err)
			continue
		}
		specs = append(specs, registry.FieldSpec{
			Table:     table,
			Field:     fi.column,
			Algorithm: firstNonEmpty(fi.opts.Strategy, fi.opts.Algorithm),
			Enabled:   fi.opts.Enabled,
		})
	}
	return specs, errs
}

func (p *Processor) checkAlgorithm(names ...string) error {
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		if _, err := p.strategies.Find(name); err != nil {
			return err
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
