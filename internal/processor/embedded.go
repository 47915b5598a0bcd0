package processor

import "reflect"

// collectEmbedded walks an untagged anonymous field so tags declared on an
// embedded struct, or a pointer to one, are promoted to the outer type.
func collectEmbedded(field reflect.StructField, index []int, info *typeInfo, visiting map[reflect.Type]bool) {
	t := field.Type
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}
	collectFields(t, index, info, visiting)
}

// hasTags reports whether t, or any struct embedded in it, carries a
// fieldcrypt tag.
func hasTags(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	info := inspectType(t)
	return len(info.fields) > 0 || len(info.errs) > 0
}
