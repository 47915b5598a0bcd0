// Package sqlrewrite rewrites SQL text so encrypted columns are decrypted in
// projections and encrypted in equality filters by the database itself.
//
// It recognises statement shape with regular expressions; it is not a parser.
// Only plain column references in the primary table's projection and
// `column = ?` predicates in the WHERE clause are rewritten. INSERT statements
// and UPDATE SET clauses are never touched: their values must be encrypted by
// the caller.
package sqlrewrite

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hengadev/fieldcrypt/internal/monitoring"
)

// Kind is the statement kind taken from the leading keyword.
type Kind int

const (
	KindOther Kind = iota
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "SELECT"
	case KindInsert:
		return "INSERT"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	default:
		return "OTHER"
	}
}

// Result of one Process call. Changed is authoritative; SQL is the input
// string when nothing changed.
type Result struct {
	SQL     string
	Changed bool
	Kind    Kind
}

// Registry is the subset of the field registry the rewriter reads.
type Registry interface {
	AllEncryptedTables() []string
	FieldsOf(table string) []string
	IsEncrypted(table, field string) bool
}

// KeyFunc returns the key of table.field.
type KeyFunc func(table, field string) string

// Rewriter holds no per-statement state and is safe for concurrent use.
type Rewriter struct {
	registry Registry
	keyFor   KeyFunc
	dialect  Dialect
	logger   monitoring.Logger
	hook     monitoring.ObservabilityHook

	patterns sync.Map // field name -> compiled predicate
}

// Option configures a Rewriter.
type Option func(*Rewriter)

func WithDialect(d Dialect) Option {
	return func(r *Rewriter) { r.dialect = d }
}

func WithLogger(l monitoring.Logger) Option {
	return func(r *Rewriter) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithHook(h monitoring.ObservabilityHook) Option {
	return func(r *Rewriter) {
		if h != nil {
			r.hook = h
		}
	}
}

func New(registry Registry, keyFor KeyFunc, opts ...Option) *Rewriter {
	r := &Rewriter{
		registry: registry,
		keyFor:   keyFor,
		dialect:  MySQL,
		logger:   monitoring.NewNopLogger(),
		hook:     &monitoring.NoOpObservabilityHook{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Rewriter) Dialect() Dialect { return r.dialect }

// Process rewrites sql. It never fails: a statement it cannot handle, or a
// panic while matching, yields the original text with Changed false.
func (r *Rewriter) Process(sql string) Result {
	return r.ProcessContext(context.Background(), sql)
}

func (r *Rewriter) ProcessContext(ctx context.Context, sql string) (res Result) {
	start := time.Now()
	res = Result{SQL: sql, Kind: Classify(sql)}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("statement rewrite panicked, using original SQL", "panic", fmt.Sprint(rec))
			r.hook.OnError(ctx, "rewrite", fmt.Errorf("rewrite panic: %v", rec), map[string]any{"kind": res.Kind.String()})
			res = Result{SQL: sql, Kind: res.Kind}
		}
		r.hook.OnRewrite(ctx, res.Kind.String(), res.Changed, time.Since(start))
	}()

	if strings.TrimSpace(sql) == "" {
		return res
	}
	tables := r.mentionedTables(sql)
	if len(tables) == 0 {
		return res
	}

	st := &statement{sql: sql, tables: tables}
	switch res.Kind {
	case KindSelect:
		r.rewriteSelect(st)
		r.rewriteWhere(st)
	case KindUpdate, KindDelete:
		st.primary = r.primaryTable(st, res.Kind)
		r.rewriteWhere(st)
	default:
		return res
	}

	if st.changed {
		res.SQL = st.sql
		res.Changed = true
		r.logger.Debug("statement rewritten", "kind", res.Kind.String())
	}
	return res
}

// statement is the per-call state of Process.
type statement struct {
	sql     string
	tables  []string // registered tables mentioned in sql, sorted
	primary string   // registered name of the primary table, if any
	alias   string
	from    int // offset after the primary table reference
	changed bool
}

// mentionedTables is the cheap pre-filter: registered tables whose name
// appears anywhere in sql, case-insensitively.
func (r *Rewriter) mentionedTables(sql string) []string {
	lower := strings.ToLower(sql)
	var out []string
	for _, table := range r.registry.AllEncryptedTables() {
		if strings.Contains(lower, strings.ToLower(table)) {
			out = append(out, table)
		}
	}
	sort.Strings(out)
	return out
}

// Classify returns the kind of sql from its leading keyword.
func Classify(sql string) Kind {
	trimmed := strings.TrimLeft(sql, " \t\r\n(")
	end := strings.IndexFunc(trimmed, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\r' || r == '\n' || r == '('
	})
	if end < 0 {
		end = len(trimmed)
	}
	switch strings.ToUpper(trimmed[:end]) {
	case "SELECT":
		return KindSelect
	case "INSERT":
		return KindInsert
	case "UPDATE":
		return KindUpdate
	case "DELETE":
		return KindDelete
	default:
		return KindOther
	}
}

// registeredName maps an identifier from the statement to the registered
// table name, ignoring case, quoting and schema qualification.
func registeredName(tables []string, ident string) string {
	ident = unquote(ident)
	if i := strings.LastIndexByte(ident, '.'); i >= 0 {
		ident = unquote(ident[i+1:])
	}
	for _, t := range tables {
		if strings.EqualFold(t, ident) {
			return t
		}
	}
	return ""
}

func unquote(ident string) string {
	return strings.Trim(ident, "`\"[]")
}

// encryptedField returns the registered spelling of field in table.
func (r *Rewriter) encryptedField(table, field string) (string, bool) {
	for _, f := range r.registry.FieldsOf(table) {
		if strings.EqualFold(f, field) && r.registry.IsEncrypted(table, f) {
			return f, true
		}
	}
	return "", false
}
