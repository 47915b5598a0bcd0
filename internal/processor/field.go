package processor

import (
	"reflect"
	"sync"
)

// FieldRef exposes one text value to the processor without reflection.
// The zero Disabled value means the field is processed.
type FieldRef struct {
	Column    string
	Value     *string
	Algorithm string
	Strategy  string
	Disabled  bool
}

// FieldProvider is implemented by types that list their encrypted fields
// themselves. When present it replaces struct tag discovery.
type FieldProvider interface {
	EncryptableFields() []FieldRef
}

// fieldInfo is the cached metadata of one tagged struct field.
type fieldInfo struct {
	index  []int
	goName string
	column string
	opts   TagOptions
	text   bool // string kind, or a pointer to one
	ptr    bool
}

type typeInfo struct {
	fields []fieldInfo
	// tag errors keyed by Go field name
	errs map[string]error
}

var typeCache sync.Map // reflect.Type -> *typeInfo
var stringType = reflect.TypeOf("")

// inspectType returns the tagged fields of struct type t, including those
// promoted from embedded structs. Results are cached per type.
func inspectType(t reflect.Type) *typeInfo {
	if cached, ok := typeCache.Load(t); ok {
		return cached.(*typeInfo)
	}
	info := &typeInfo{errs: make(map[string]error)}
	collectFields(t, nil, info, map[reflect.Type]bool{})
	actual, _ := typeCache.LoadOrStore(t, info)
	return actual.(*typeInfo)
}

func collectFields(t reflect.Type, prefix []int, info *typeInfo, visiting map[reflect.Type]bool) {
	if visiting[t] {
		return
	}
	visiting[t] = true
	defer delete(visiting, t)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		index := append(append([]int(nil), prefix...), i)

		tag, tagged := field.Tag.Lookup(StructTag)
		if !tagged {
			if field.Anonymous {
				collectEmbedded(field, index, info, visiting)
			}
			continue
		}
		if !field.IsExported() {
			continue
		}

		opts, err := ParseTag(tag)
		if err != nil {
			info.errs[field.Name] = err
			continue
		}
		fi := fieldInfo{
			index:  index,
			goName: field.Name,
			column: columnName(field.Tag.Get(ColumnTag), field.Name),
			opts:   opts,
		}
		switch {
		case field.Type.Kind() == reflect.String:
			fi.text = true
		case field.Type.Kind() == reflect.Ptr && field.Type.Elem().Kind() == reflect.String:
			fi.text, fi.ptr = true, true
		}
		info.fields = append(info.fields, fi)
	}
}

// target is a resolved, settable text field of a concrete value.
type target struct {
	column    string
	goName    string
	algorithm string
	strategy  string
	get       func() (string, bool)
	set       func(string)
}

// structTargets returns the enabled text fields of the struct v. Embedded
// pointers that are nil are skipped.
func structTargets(v reflect.Value) []target {
	info := inspectType(v.Type())
	out := make([]target, 0, len(info.fields))
	for _, fi := range info.fields {
		if !fi.text || !fi.opts.Enabled {
			continue
		}
		fv, err := v.FieldByIndexErr(fi.index)
		if err != nil || !fv.CanSet() {
			continue
		}
		out = append(out, target{
			column:    fi.column,
			goName:    fi.goName,
			algorithm: fi.opts.Algorithm,
			strategy:  fi.opts.Strategy,
			get:       stringGetter(fv, fi.ptr),
			set:       stringSetter(fv, fi.ptr),
		})
	}
	return out
}

func providerTargets(p FieldProvider) []target {
	refs := p.EncryptableFields()
	out := make([]target, 0, len(refs))
	for _, ref := range refs {
		if ref.Disabled || ref.Value == nil || ref.Column == "" {
			continue
		}
		ptr := ref.Value
		out = append(out, target{
			column:    ref.Column,
			goName:    ref.Column,
			algorithm: ref.Algorithm,
			strategy:  ref.Strategy,
			get:       func() (string, bool) { return *ptr, true },
			set:       func(s string) { *ptr = s },
		})
	}
	return out
}

func stringGetter(fv reflect.Value, ptr bool) func() (string, bool) {
	if !ptr {
		return func() (string, bool) { return fv.String(), true }
	}
	return func() (string, bool) {
		if fv.IsNil() {
			return "", false
		}
		return fv.Elem().String(), true
	}
}

// stringSetter writes through pointer fields in place, so the caller's
// pointer keeps pointing at the same variable. SetString accepts named
// string types such as `type Phone string`.
func stringSetter(fv reflect.Value, ptr bool) func(string) {
	if !ptr {
		return fv.SetString
	}
	return func(s string) { fv.Elem().SetString(s) }
}
