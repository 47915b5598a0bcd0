package sqlrewrite

import (
	"regexp"
	"sort"
	"strings"
)

var (
	whereRe    = regexp.MustCompile(`(?i)\bWHERE\b`)
	whereEndRe = regexp.MustCompile(`(?i)\b(?:ORDER\s+BY|GROUP\s+BY|LIMIT)\b`)
)

// whereRegion returns the bounds of the first WHERE clause body at or after
// from, ending at ORDER BY, GROUP BY, LIMIT or the end of the statement.
func whereRegion(sql string, from int) (int, int, bool) {
	loc := whereRe.FindStringIndex(sql[from:])
	if loc == nil {
		return 0, 0, false
	}
	start, end := from+loc[1], len(sql)
	if e := whereEndRe.FindStringIndex(sql[start:]); e != nil {
		end = start + e[0]
	}
	return start, end, true
}

type edit struct {
	start, end int
	text       string
}

// rewriteWhere turns `field = ?` into `field = ENCODE(ENCRYPT(?, 'key'))` for
// every enabled encrypted field of the mentioned tables. When two tables
// share a column name the primary table's key wins. Matches are taken from
// the original clause so inserted key literals are never rescanned.
func (r *Rewriter) rewriteWhere(st *statement) {
	start, end, ok := whereRegion(st.sql, st.from)
	if !ok {
		return
	}
	region := st.sql[start:end]

	var edits []edit
	seen := make(map[string]struct{})
	for _, table := range orderTables(st.tables, st.primary) {
		for _, field := range r.registry.FieldsOf(table) {
			lower := strings.ToLower(field)
			if _, dup := seen[lower]; dup || !r.registry.IsEncrypted(table, field) {
				continue
			}
			re := r.predicate(field)
			matches := re.FindAllStringSubmatchIndex(region, -1)
			if len(matches) == 0 {
				continue
			}
			seen[lower] = struct{}{}

			expr := r.dialect.encryptExpr(r.keyFor(table, field))
			for _, m := range matches {
				edits = append(edits, edit{
					start: m[0],
					end:   m[1],
					text:  region[m[2]:m[3]] + " = " + expr,
				})
			}
		}
	}
	if len(edits) == 0 {
		return
	}

	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })
	var b strings.Builder
	last := 0
	for _, e := range edits {
		if e.start < last {
			continue
		}
		b.WriteString(region[last:e.start])
		b.WriteString(e.text)
		last = e.end
	}
	b.WriteString(region[last:])

	st.sql = st.sql[:start] + b.String() + st.sql[end:]
	st.changed = true
}

// predicate matches `[qualifier.]field = ?` with field as a whole word.
func (r *Rewriter) predicate(field string) *regexp.Regexp {
	if re, ok := r.patterns.Load(field); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile("(?i)((?:" + ident + `\.)?[` + "`" + `"]?\b` + regexp.QuoteMeta(field) + `\b[` + "`" + `"]?)\s*=\s*\?`)
	r.patterns.Store(field, re)
	return re
}

func orderTables(tables []string, primary string) []string {
	if primary == "" {
		return tables
	}
	out := make([]string, 0, len(tables))
	out = append(out, primary)
	for _, t := range tables {
		if t != primary {
			out = append(out, t)
		}
	}
	return out
}
