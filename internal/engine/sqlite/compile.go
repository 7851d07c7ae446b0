package sqlite

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/engine"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/query"
)

// baseField strips the exact-match sub-field suffix.
func baseField(field string) string {
	return strings.TrimSuffix(field, ".keyword")
}

// scored is a full-text clause whose bm25 score feeds the hit score.
type scored struct {
	match   string
	weights []float64
}

// compiler translates a query tree into a WHERE clause over documents d.
// Scoring full-text clauses become CTEs joined to d; everything else is a
// plain predicate.
type compiler struct {
	p     *partition
	vocab vocab
	qs    *queryStringCache

	scored []scored
	args   []any
}

func newCompiler(ctx context.Context, p *partition, qs *queryStringCache) *compiler {
	return &compiler{p: p, vocab: vocab{ctx: ctx, db: p.db}, qs: qs}
}

func (c *compiler) bind(v any) string {
	c.args = append(c.args, v)
	return "?"
}

// field resolves a query field to its document path and whether the exact
// sub-field was addressed.
func (c *compiler) field(name string) (string, engine.FieldType, bool, error) {
	base := baseField(name)
	if !fieldPath.MatchString(base) {
		return "", "", false, fmt.Errorf("invalid field %q", name)
	}
	return base, c.p.mapping[base], base != name, nil
}

// compile returns the predicate for q. Full-text clauses contribute to the
// score only when scoring is set.
func (c *compiler) compile(q query.Query, scoring bool) (string, error) {
	switch q := q.(type) {
	case nil, query.MatchAll:
		return "1", nil
	case query.Term:
		return c.term(q.Field, q.Value, q.CaseInsensitive)
	case query.Terms:
		return c.terms(q.Field, q.Values)
	case query.Match:
		return c.match(q, scoring)
	case query.MultiMatch:
		return c.multiMatch(q, scoring)
	case query.QueryString:
		return c.queryString(q, scoring)
	case query.Bool:
		return c.boolean(q, scoring)
	}
	return "", fmt.Errorf("unsupported query %T", q)
}

func sqlValue(v any) any {
	switch v := v.(type) {
	case string, bool, int, int64, float64:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}

func (c *compiler) term(field string, value any, fold bool) (string, error) {
	base, ft, exact, err := c.field(field)
	if err != nil {
		return "", err
	}
	switch {
	case exact || indexed(ft):
		expr := jsonValue("d.", base) + " = " + c.bind(sqlValue(value))
		if fold {
			expr += " COLLATE NOCASE"
		}
		return expr, nil
	case ft == engine.FieldText && c.p.column(base) >= 0:
		return c.fullText(colspec([]string{base})+quotePhrase(fmt.Sprint(value)), nil, false), nil
	}
	collate := ""
	if fold {
		collate = " COLLATE NOCASE"
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(d.body, '$.%s') WHERE value = %s%s)",
		base, c.bind(sqlValue(value)), collate), nil
}

func (c *compiler) terms(field string, values []string) (string, error) {
	if len(values) == 0 {
		return "0", nil
	}
	if len(values) == 1 {
		return c.term(field, values[0], false)
	}
	base, ft, exact, err := c.field(field)
	if err != nil {
		return "", err
	}
	if exact || indexed(ft) {
		marks := make([]string, len(values))
		for i, v := range values {
			marks[i] = c.bind(v)
		}
		return jsonValue("d.", base) + " IN (" + strings.Join(marks, ", ") + ")", nil
	}
	parts := make([]string, len(values))
	for i, v := range values {
		if parts[i], err = c.term(field, v, false); err != nil {
			return "", err
		}
	}
	return "(" + strings.Join(parts, " OR ") + ")", nil
}

// fullText returns the predicate for an FTS5 match expression. An empty
// expression matches nothing.
func (c *compiler) fullText(expr string, weights []float64, scoring bool) string {
	if expr == "" {
		return "0"
	}
	if scoring {
		c.scored = append(c.scored, scored{match: expr, weights: weights})
		return fmt.Sprintf("m%d.rid IS NOT NULL", len(c.scored)-1)
	}
	return "d.rid IN (SELECT rowid FROM documents_fts WHERE documents_fts MATCH " + c.bind(expr) + ")"
}

// weights is the bm25 weight vector for fields, in column order.
func (c *compiler) weights(fields []query.Field) []float64 {
	w := make([]float64, len(c.p.columns))
	for i := range w {
		w[i] = 1
	}
	for _, f := range fields {
		if i := c.p.column(baseField(f.Name)); i >= 0 {
			w[i] = f.Weight()
		}
	}
	return w
}

// columns keeps the searchable columns among fields.
func (c *compiler) columns(fields []query.Field) []string {
	var cols []string
	seen := map[string]bool{}
	for _, f := range fields {
		base := baseField(f.Name)
		if base != f.Name || seen[base] || c.p.column(base) < 0 {
			continue
		}
		seen[base] = true
		cols = append(cols, base)
	}
	return cols
}

func (c *compiler) match(q query.Match, scoring bool) (string, error) {
	base, _, exact, err := c.field(q.Field)
	if err != nil {
		return "", err
	}
	if exact || c.p.column(base) < 0 {
		return c.term(q.Field, q.Query, false)
	}
	expr, err := c.vocab.matchExpr([]string{base}, q.Query, q.Operator, q.Fuzziness)
	if err != nil {
		return "", err
	}
	return c.fullText(expr, nil, scoring), nil
}

func (c *compiler) multiMatch(q query.MultiMatch, scoring bool) (string, error) {
	expr, err := c.vocab.matchExpr(c.columns(q.Fields), q.Query, q.Operator, q.Fuzziness)
	if err != nil {
		return "", err
	}
	return c.fullText(expr, c.weights(q.Fields), scoring), nil
}

func (c *compiler) boolean(q query.Bool, scoring bool) (string, error) {
	var parts []string
	for _, f := range q.Filter {
		s, err := c.compile(f, false)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+s+")")
	}
	for _, m := range q.Must {
		s, err := c.compile(m, scoring)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+s+")")
	}
	for _, n := range q.MustNot {
		s, err := c.compile(n, false)
		if err != nil {
			return "", err
		}
		parts = append(parts, "NOT IFNULL(("+s+"), 0)")
	}

	need := q.MinimumShouldMatch
	if need == 0 && len(q.Should) > 0 && len(q.Must) == 0 && len(q.Filter) == 0 {
		need = 1
	}
	if len(q.Should) > 0 {
		// Optional should clauses only add to the score; their predicate
		// and its arguments are dropped.
		mark := len(c.args)
		should := make([]string, len(q.Should))
		for i, sh := range q.Should {
			s, err := c.compile(sh, scoring)
			if err != nil {
				return "", err
			}
			should[i] = "IFNULL((" + s + "), 0)"
		}
		switch {
		case need == 0:
			c.args = c.args[:mark]
		case need > len(should):
			c.args = c.args[:mark]
			parts = append(parts, "0")
		case need == 1:
			parts = append(parts, "("+strings.Join(should, " OR ")+")")
		case need > 1:
			parts = append(parts, "("+strings.Join(should, " + ")+") >= "+strconv.Itoa(need))
		}
	} else if need > 0 {
		parts = append(parts, "0")
	}
	if len(parts) == 0 {
		return "1", nil
	}
	return strings.Join(parts, " AND "), nil
}

func (c *compiler) queryString(q query.QueryString, scoring bool) (string, error) {
	fields := q.Fields
	if len(fields) == 0 {
		fields = query.WeightedFields
	}
	return c.qsNode(c.qs.parse(q.Query, q.DefaultOperator), fields, scoring)
}

// qsNode compiles a parsed query string. Subtrees FTS5 can express become a
// single match; unary negations and non-text fields fall back to SQL.
func (c *compiler) qsNode(n *qsNode, fields []query.Field, scoring bool) (string, error) {
	expr, ok, err := c.qsExpr(n, fields)
	if err != nil {
		return "", err
	}
	if ok {
		return c.fullText(expr, c.weights(fields), scoring), nil
	}
	switch n.kind {
	case qsAll:
		return "1", nil
	case qsNot:
		s, err := c.qsNode(n.children[0], fields, false)
		if err != nil {
			return "", err
		}
		return "NOT IFNULL((" + s + "), 0)", nil
	case qsAnd, qsOr:
		parts := make([]string, len(n.children))
		for i, child := range n.children {
			if parts[i], err = c.qsNode(child, fields, scoring); err != nil {
				return "", err
			}
			parts[i] = "(" + parts[i] + ")"
		}
		sep := " AND "
		if n.kind == qsOr {
			sep = " OR "
		}
		return strings.Join(parts, sep), nil
	}
	// A term or phrase on a field without a full-text column.
	if !fieldPath.MatchString(baseField(n.field)) {
		return "0", nil
	}
	value := strings.Join(n.terms, " ")
	if _, ft, _, err := c.field(n.field); err == nil && (ft == "" || ft == engine.FieldFloat || ft == engine.FieldLong) {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return c.term(n.field, f, false)
		}
	}
	return c.term(n.field, value, true)
}

// qsColumns is the set of columns a term node searches, or false when its
// explicit field has no full-text column.
func (c *compiler) qsColumns(n *qsNode, fields []query.Field) ([]string, bool) {
	if n.field == "" {
		return c.columns(fields), true
	}
	base := baseField(n.field)
	if base != n.field || c.p.column(base) < 0 {
		return nil, false
	}
	return []string{base}, true
}

// qsExpr renders n as one FTS5 expression. ok is false when FTS5 cannot
// express it; an empty expression with ok set matches nothing.
func (c *compiler) qsExpr(n *qsNode, fields []query.Field) (string, bool, error) {
	switch n.kind {
	case qsTerm:
		cols, ok := c.qsColumns(n, fields)
		if !ok {
			return "", false, nil
		}
		e, err := c.vocab.termExpr(cols, n.terms[0], n.fuzz)
		return e, err == nil, err
	case qsPhrase:
		cols, ok := c.qsColumns(n, fields)
		if !ok {
			return "", false, nil
		}
		if len(cols) == 0 {
			return "", true, nil
		}
		return colspec(cols) + quotePhrase(strings.Join(n.terms, " ")), true, nil
	case qsAnd:
		var pos, neg []string
		empty := false
		for _, child := range n.children {
			target := &pos
			if child.kind == qsNot {
				target, child = &neg, child.children[0]
			}
			e, ok, err := c.qsExpr(child, fields)
			if err != nil || !ok {
				return "", false, err
			}
			if e == "" {
				if target == &pos {
					empty = true
				}
				continue
			}
			*target = append(*target, "("+e+")")
		}
		if len(pos) == 0 && !empty {
			return "", false, nil
		}
		if empty {
			return "", true, nil
		}
		expr := strings.Join(pos, " AND ")
		for _, e := range neg {
			expr += " NOT " + e
		}
		return "(" + expr + ")", true, nil
	case qsOr:
		var parts []string
		for _, child := range n.children {
			if child.kind == qsNot {
				return "", false, nil
			}
			e, ok, err := c.qsExpr(child, fields)
			if err != nil || !ok {
				return "", false, err
			}
			if e != "" {
				parts = append(parts, "("+e+")")
			}
		}
		if len(parts) == 0 {
			return "", true, nil
		}
		return "(" + strings.Join(parts, " OR ") + ")", true, nil
	}
	return "", false, nil
}

// sources renders the CTEs and FROM clause for the scored clauses collected
// so far, with their match arguments in order. The CTEs precede SELECT.
func (c *compiler) sources() (with, from string, args []any) {
	if len(c.scored) == 0 {
		return "", "FROM documents d", nil
	}
	var ctes, joins []string
	for i, s := range c.scored {
		w := s.weights
		if w == nil {
			w = c.weights(nil)
		}
		ws := make([]string, len(w))
		for j, x := range w {
			ws[j] = strconv.FormatFloat(x, 'f', -1, 64)
		}
		ctes = append(ctes, fmt.Sprintf(
			"m%d(rid, score) AS MATERIALIZED (SELECT rowid, -bm25(documents_fts, %s) FROM documents_fts WHERE documents_fts MATCH ?)",
			i, strings.Join(ws, ", ")))
		joins = append(joins, fmt.Sprintf("LEFT JOIN m%[1]d ON m%[1]d.rid = d.rid", i))
		args = append(args, s.match)
	}
	return "WITH " + strings.Join(ctes, ", ") + " ", "FROM documents d " + strings.Join(joins, " "), args
}

// score is the hit score: the sum of the scored clauses' bm25, or 1.
func (c *compiler) score() string {
	if len(c.scored) == 0 {
		return "1.0"
	}
	parts := make([]string, len(c.scored))
	for i := range c.scored {
		parts[i] = fmt.Sprintf("COALESCE(m%d.score, 0)", i)
	}
	return "(" + strings.Join(parts, " + ") + ")"
}

// matches lists the positive full-text expressions for highlighting.
func (c *compiler) matches() []string {
	out := make([]string, len(c.scored))
	for i, s := range c.scored {
		out[i] = s.match
	}
	return out
}

// sortExpr is the value a sort clause orders by.
func (c *compiler) sortExpr(s query.Sort) (string, error) {
	if s.Field == query.ScoreField {
		return c.score(), nil
	}
	base, ft, _, err := c.field(s.Field)
	if err != nil {
		return "", err
	}
	if ft == engine.FieldDate {
		return "julianday(" + jsonValue("d.", base) + ")", nil
	}
	return jsonValue("d.", base), nil
}
