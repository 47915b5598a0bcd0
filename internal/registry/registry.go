// Package registry records which table columns hold encrypted values.
package registry

import (
	"sort"
	"strings"
	"sync"
)

// FieldSpec describes one encrypted column.
type FieldSpec struct {
	Table     string
	Field     string
	Algorithm string // empty means the engine default
	Enabled   bool
}

// Stats is a point-in-time summary of the registry.
type Stats struct {
	Tables       int
	Fields       int
	TypeMappings int
}

// Registry is safe for concurrent use. A single lock guards every map so a
// reader never sees a table in the flag map without its field set. A table is
// flagged iff it has at least one enabled field; disabled specs are kept for
// Spec lookups only.
type Registry struct {
	mu       sync.RWMutex
	fields   map[string]map[string]FieldSpec
	types    map[string]string
	flagged  map[string]bool
	excluded map[string]struct{}
}

// New returns an empty registry. Tables in exclude are never registered.
func New(exclude ...string) *Registry {
	r := &Registry{
		fields:   make(map[string]map[string]FieldSpec),
		types:    make(map[string]string),
		flagged:  make(map[string]bool),
		excluded: make(map[string]struct{}, len(exclude)),
	}
	for _, table := range exclude {
		if table = strings.TrimSpace(table); table != "" {
			r.excluded[table] = struct{}{}
		}
	}
	return r
}

// RegisterFields marks fields of table as encrypted with the default
// algorithm. Empty table names, empty field names and empty sets are ignored.
func (r *Registry) RegisterFields(table string, fields []string) {
	specs := make([]FieldSpec, 0, len(fields))
	for _, f := range fields {
		specs = append(specs, FieldSpec{Table: table, Field: f, Enabled: true})
	}
	r.RegisterSpecs(specs...)
}

// RegisterSpecs stores specs, grouped by table. Each table is updated under
// one lock acquisition; an existing spec for the same column is replaced.
func (r *Registry) RegisterSpecs(specs ...FieldSpec) {
	byTable := make(map[string][]FieldSpec)
	for _, s := range specs {
		s.Table = strings.TrimSpace(s.Table)
		s.Field = strings.TrimSpace(s.Field)
		if s.Table == "" || s.Field == "" {
			continue
		}
		byTable[s.Table] = append(byTable[s.Table], s)
	}
	if len(byTable) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for table, tableSpecs := range byTable {
		if _, skip := r.excluded[table]; skip {
			continue
		}
		set, ok := r.fields[table]
		if !ok {
			set = make(map[string]FieldSpec, len(tableSpecs))
			r.fields[table] = set
		}
		for _, s := range tableSpecs {
			set[s.Field] = s
		}
		r.reflag(table)
	}
}

// reflag flags table iff it has at least one enabled spec. Callers hold mu.
func (r *Registry) reflag(table string) {
	for _, s := range r.fields[table] {
		if s.Enabled {
			r.flagged[table] = true
			return
		}
	}
	delete(r.flagged, table)
}

// RegisterTypeMapping binds a Go type name to a table.
func (r *Registry) RegisterTypeMapping(typeName, table string) {
	if typeName == "" || table == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[typeName] = table
}

func (r *Registry) TableForType(typeName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	table, ok := r.types[typeName]
	return table, ok
}

// FieldsOf returns the sorted enabled field names of table, never nil.
func (r *Registry) FieldsOf(table string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.fields[table]
	out := make([]string, 0, len(set))
	for f, s := range set {
		if s.Enabled {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Spec(table, field string) (FieldSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.fields[table][field]
	return s, ok
}

// Specs returns every spec of table sorted by field name.
func (r *Registry) Specs(table string) []FieldSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.fields[table]
	out := make([]FieldSpec, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// IsEncrypted reports whether table.field is registered and enabled.
func (r *Registry) IsEncrypted(table, field string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.fields[table][field]
	return ok && s.Enabled
}

func (r *Registry) HasEncryptedFields(table string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flagged[table]
}

// AllEncryptedTables returns a sorted snapshot of the flagged tables.
func (r *Registry) AllEncryptedTables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.flagged))
	for table := range r.flagged {
		out = append(out, table)
	}
	sort.Strings(out)
	return out
}

// IsExcluded reports whether table was excluded at construction.
func (r *Registry) IsExcluded(table string) bool {
	_, ok := r.excluded[table]
	return ok
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields = make(map[string]map[string]FieldSpec)
	r.types = make(map[string]string)
	r.flagged = make(map[string]bool)
}

// ClearTable forgets table and every type mapping that points at it.
func (r *Registry) ClearTable(table string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.fields, table)
	delete(r.flagged, table)
	for typeName, t := range r.types {
		if t == table {
			delete(r.types, typeName)
		}
	}
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := Stats{Tables: len(r.flagged), TypeMappings: len(r.types)}
	for _, set := range r.fields {
		st.Fields += len(set)
	}
	return st
}
