package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/query"
)

// maxExpansions caps the vocabulary terms a fuzzy or wildcard term expands to.
const maxExpansions = 50

// tokenize splits s the way the unicode61 tokenizer does: lowercase runs of
// letters and digits.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func autoFuzziness(term string) int {
	switch n := utf8.RuneCountInString(term); {
	case n <= 2:
		return 0
	case n <= 5:
		return 1
	default:
		return 2
	}
}

func fuzzinessFor(setting, term string) int {
	switch setting {
	case "":
		return 0
	case query.FuzzinessAuto:
		return autoFuzziness(term)
	}
	n, err := strconv.Atoi(setting)
	if err != nil {
		return autoFuzziness(term)
	}
	return min(max(n, 0), 2)
}

// quotePhrase renders s as an FTS5 string.
func quotePhrase(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func colspec(cols []string) string {
	return "{" + strings.Join(cols, " ") + "} : "
}

// vocab expands terms against the partition's full-text vocabulary.
type vocab struct {
	ctx context.Context
	db  *sql.DB
}

// fuzzy returns term plus the indexed terms within dist edits of it, most
// frequent first.
func (v vocab) fuzzy(term string, dist int) ([]string, error) {
	n := utf8.RuneCountInString(term)
	rows, err := v.db.QueryContext(v.ctx,
		`SELECT term FROM documents_vocab WHERE length(term) BETWEEN ? AND ? ORDER BY doc DESC`,
		n-dist, n+dist,
	)
	if err != nil {
		return nil, fmt.Errorf("expand fuzzy term: %w", err)
	}
	defer rows.Close()

	out := []string{term}
	for rows.Next() && len(out) < maxExpansions {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan vocabulary: %w", err)
		}
		if t != term && levenshtein.ComputeDistance(term, t) <= dist {
			out = append(out, t)
		}
	}
	return out, rows.Err()
}

// glob returns the indexed terms matching a wildcard pattern.
func (v vocab) glob(pattern string) ([]string, error) {
	rows, err := v.db.QueryContext(v.ctx,
		`SELECT term FROM documents_vocab WHERE term GLOB ? ORDER BY doc DESC LIMIT ?`,
		pattern, maxExpansions,
	)
	if err != nil {
		return nil, fmt.Errorf("expand wildcard term: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan vocabulary: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// termExpr is the FTS5 expression matching one query term in cols. An empty
// result matches nothing.
func (v vocab) termExpr(cols []string, term string, fuzz int) (string, error) {
	if len(cols) == 0 || term == "" {
		return "", nil
	}
	spec := colspec(cols)
	if strings.ContainsAny(term, "*?") {
		if base, ok := strings.CutSuffix(term, "*"); ok && base != "" && !strings.ContainsAny(base, "*?") {
			return spec + quotePhrase(base) + " *", nil
		}
		terms, err := v.glob(term)
		if err != nil {
			return "", err
		}
		return anyOf(spec, terms), nil
	}
	if fuzz == 0 {
		return spec + quotePhrase(term), nil
	}
	terms, err := v.fuzzy(term, fuzz)
	if err != nil {
		return "", err
	}
	return anyOf(spec, terms), nil
}

func anyOf(spec string, terms []string) string {
	switch len(terms) {
	case 0:
		return ""
	case 1:
		return spec + quotePhrase(terms[0])
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = spec + quotePhrase(t)
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// matchExpr is the FTS5 expression for analyzed text searched in cols.
func (v vocab) matchExpr(cols []string, text string, op query.Operator, fuzziness string) (string, error) {
	var parts []string
	for _, tok := range tokenize(text) {
		e, err := v.termExpr(cols, tok, fuzzinessFor(fuzziness, tok))
		if err != nil {
			return "", err
		}
		if e == "" {
			if op == query.OperatorAnd {
				return "", nil
			}
			continue
		}
		parts = append(parts, e)
	}
	if len(parts) == 0 {
		return "", nil
	}
	sep := " OR "
	if op == query.OperatorAnd {
		sep = " AND "
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

// highlights fills the highlight map of hits using FTS5 highlight(). Each
// value of a multi-valued field is one fragment; only fragments holding a
// match are kept.
func highlights(ctx context.Context, p *partition, hits []searchRow, h query.Highlight, matches []string) error {
	if len(hits) == 0 || len(matches) == 0 {
		return nil
	}
	pre, post := h.Tags()
	type col struct {
		field string
		index int
	}
	var cols []col
	seen := map[int]bool{}
	for _, f := range h.Fields {
		i := p.column(baseField(f))
		if i < 0 || seen[i] {
			continue
		}
		seen[i] = true
		cols = append(cols, col{field: f, index: i})
	}
	if len(cols) == 0 {
		return nil
	}

	var sel []string
	var args []any
	for _, c := range cols {
		sel = append(sel, fmt.Sprintf("highlight(documents_fts, %d, ?, ?)", c.index))
		args = append(args, pre, post)
	}
	args = append(args, "("+strings.Join(matches, ") OR (")+")")
	byRid := make(map[int64]*searchRow, len(hits))
	marks := make([]string, 0, len(hits))
	for i := range hits {
		byRid[hits[i].rid] = &hits[i]
		marks = append(marks, "?")
		args = append(args, hits[i].rid)
	}
	q := fmt.Sprintf(`SELECT rowid, %s FROM documents_fts WHERE documents_fts MATCH ? AND rowid IN (%s)`,
		strings.Join(sel, ", "), strings.Join(marks, ", "))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("highlight: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rid int64
		vals := make([]sql.NullString, len(cols))
		dest := []any{&rid}
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scan highlight: %w", err)
		}
		hit := byRid[rid]
		if hit == nil {
			continue
		}
		for i, v := range vals {
			if !v.Valid {
				continue
			}
			for _, frag := range strings.Split(v.String, valueSeparator) {
				if strings.Contains(frag, pre) {
					if hit.highlight == nil {
						hit.highlight = map[string][]string{}
					}
					hit.highlight[cols[i].field] = append(hit.highlight[cols[i].field], frag)
				}
			}
		}
	}
	return rows.Err()
}
