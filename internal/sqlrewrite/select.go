package sqlrewrite

import (
	"regexp"
	"strings"
)

const ident = "[\\w`\"\\[\\]]+"

var (
	selectRe   = regexp.MustCompile(`(?is)^\s*SELECT\s+(.*?)\s+FROM\s+(` + ident + `(?:\.` + ident + `)?)(?:\s+(?:AS\s+)?(\w+))?`)
	updateRe   = regexp.MustCompile(`(?is)^\s*UPDATE\s+(` + ident + `(?:\.` + ident + `)?)(?:\s+(?:AS\s+)?(\w+))?`)
	deleteRe   = regexp.MustCompile(`(?is)^\s*DELETE\s+FROM\s+(` + ident + `(?:\.` + ident + `)?)(?:\s+(?:AS\s+)?(\w+))?`)
	insertRe   = regexp.MustCompile(`(?is)^\s*INSERT\s+(?:IGNORE\s+)?INTO\s+(` + ident + `(?:\.` + ident + `)?)`)
	modifierRe = regexp.MustCompile(`(?i)^\s*(?:DISTINCT|ALL)\s+`)
	columnRe   = regexp.MustCompile(`(?is)^(?:(` + ident + `)\.)?(` + ident + `)(?:\s+(?:AS\s+)?(` + ident + `))?$`)
)

// words that can follow a table name but are never its alias
var reserved = map[string]struct{}{
	"WHERE": {}, "JOIN": {}, "INNER": {}, "LEFT": {}, "RIGHT": {}, "FULL": {}, "CROSS": {},
	"OUTER": {}, "NATURAL": {}, "ON": {}, "USING": {}, "ORDER": {}, "GROUP": {}, "HAVING": {},
	"LIMIT": {}, "OFFSET": {}, "UNION": {}, "SET": {}, "FOR": {}, "WINDOW": {},
}

func aliasOf(sql string, loc []int, group int) string {
	if loc[2*group] < 0 {
		return ""
	}
	alias := sql[loc[2*group]:loc[2*group+1]]
	if _, ok := reserved[strings.ToUpper(alias)]; ok {
		return ""
	}
	return alias
}

// rewriteSelect wraps encrypted columns of the primary table in the
// projection with the decrypt expression, keeping the output column name.
func (r *Rewriter) rewriteSelect(st *statement) {
	loc := selectRe.FindStringSubmatchIndex(st.sql)
	if loc == nil {
		return
	}
	st.primary = registeredName(st.tables, st.sql[loc[4]:loc[5]])
	st.alias = aliasOf(st.sql, loc, 3)
	st.from = loc[5]
	if st.primary == "" {
		return
	}

	list := st.sql[loc[2]:loc[3]]
	rewritten, changed := r.rewriteProjection(list, st.primary, st.alias)
	if !changed {
		return
	}
	st.sql = st.sql[:loc[2]] + rewritten + st.sql[loc[3]:]
	st.from += len(rewritten) - len(list)
	st.changed = true
}

func (r *Rewriter) rewriteProjection(list, table, alias string) (string, bool) {
	prefix := ""
	if m := modifierRe.FindString(list); m != "" {
		prefix, list = m, list[len(m):]
	}

	items := splitTopLevel(list)
	changed := false
	for i, item := range items {
		core := strings.TrimSpace(item)
		m := columnRe.FindStringSubmatch(core)
		if m == nil {
			continue
		}
		qualifier, column, as := m[1], m[2], m[3]
		if qualifier != "" && !strings.EqualFold(unquote(qualifier), table) && !strings.EqualFold(unquote(qualifier), alias) {
			continue
		}
		field, ok := r.encryptedField(table, unquote(column))
		if !ok {
			continue
		}

		ref := column
		if qualifier != "" {
			ref = qualifier + "." + column
		}
		if as == "" {
			as = column
		}
		lead := item[:strings.Index(item, core)]
		trail := item[len(lead)+len(core):]
		items[i] = lead + r.dialect.decryptExpr(ref, r.keyFor(table, field), as) + trail
		changed = true
	}
	if !changed {
		return "", false
	}
	return prefix + strings.Join(items, ","), true
}

// primaryTable resolves the target table of UPDATE and DELETE statements.
func (r *Rewriter) primaryTable(st *statement, kind Kind) string {
	re := updateRe
	if kind == KindDelete {
		re = deleteRe
	}
	loc := re.FindStringSubmatchIndex(st.sql)
	if loc == nil {
		return ""
	}
	st.alias = aliasOf(st.sql, loc, 2)
	st.from = loc[3]
	return registeredName(st.tables, st.sql[loc[2]:loc[3]])
}

// TargetTable returns the unquoted name of the table a statement reads or
// writes first, or "" when the shape is not recognized. Schema qualifiers are
// dropped.
func TargetTable(sql string) string {
	var m []string
	switch Classify(sql) {
	case KindSelect:
		m = selectRe.FindStringSubmatch(sql)
		if m != nil {
			m = m[1:]
		}
	case KindInsert:
		m = insertRe.FindStringSubmatch(sql)
	case KindUpdate:
		m = updateRe.FindStringSubmatch(sql)
	case KindDelete:
		m = deleteRe.FindStringSubmatch(sql)
	}
	if len(m) < 2 {
		return ""
	}
	name := m[1]
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return unquote(name)
}

// splitTopLevel splits s on commas outside parentheses and quotes.
func splitTopLevel(s string) []string {
	var (
		parts []string
		depth int
		quote rune
		start int
	)
	for i, c := range s {
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case c == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
