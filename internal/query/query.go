// Package query holds the typed query expressions sent to the backing
// engine. Every expression renders itself to the engine's JSON wire format
// through Source; in-process backends evaluate the typed tree directly.
package query

import (
	"strconv"
	"strings"
)

// Query is a closed set of query expressions.
type Query interface {
	// Source renders the expression to its wire representation.
	Source() map[string]any
	isQuery()
}

// Operator joins the terms of an analyzed query.
type Operator string

const (
	OperatorOr  Operator = "or"
	OperatorAnd Operator = "and"
)

// FuzzinessAuto lets the engine pick the edit distance from the term length.
const FuzzinessAuto = "AUTO"

// Field is a document field with an optional boost.
type Field struct {
	Name  string
	Boost float64
}

// String renders the field in "name^boost" form.
func (f Field) String() string {
	if f.Boost == 0 || f.Boost == 1 {
		return f.Name
	}
	return f.Name + "^" + strconv.FormatFloat(f.Boost, 'f', -1, 64)
}

// Weight returns the effective boost.
func (f Field) Weight() float64 {
	if f.Boost <= 0 {
		return 1
	}
	return f.Boost
}

// ParseField parses "name^boost".
func ParseField(s string) Field {
	name, boost, ok := strings.Cut(s, "^")
	if !ok {
		return Field{Name: s, Boost: 1}
	}
	b, err := strconv.ParseFloat(boost, 64)
	if err != nil {
		return Field{Name: name, Boost: 1}
	}
	return Field{Name: name, Boost: b}
}

// MatchAll matches every document.
type MatchAll struct{}

// Term matches documents whose field equals Value exactly.
type Term struct {
	Field           string
	Value           any
	CaseInsensitive bool
}

// Terms matches documents whose field equals any of Values.
type Terms struct {
	Field  string
	Values []string
}

// Match is an analyzed full-text query against one field.
type Match struct {
	Field     string
	Query     string
	Operator  Operator
	Fuzziness string
}

// MultiMatch is an analyzed full-text query across weighted fields.
type MultiMatch struct {
	Query     string
	Fields    []Field
	Operator  Operator
	Fuzziness string
}

// QueryString is a query in the engine's boolean mini-language
// (AND/OR/NOT, parentheses, quoted phrases, term~N, prefix*).
type QueryString struct {
	Query           string
	Fields          []Field
	DefaultOperator Operator
}

// Bool composes other queries.
type Bool struct {
	Must               []Query
	Should             []Query
	Filter             []Query
	MustNot            []Query
	MinimumShouldMatch int
}

func (MatchAll) isQuery()    {}
func (Term) isQuery()        {}
func (Terms) isQuery()       {}
func (Match) isQuery()       {}
func (MultiMatch) isQuery()  {}
func (QueryString) isQuery() {}
func (Bool) isQuery()        {}

func (MatchAll) Source() map[string]any {
	return map[string]any{"match_all": map[string]any{}}
}

func (q Term) Source() map[string]any {
	body := map[string]any{"value": q.Value}
	if q.CaseInsensitive {
		body["case_insensitive"] = true
	}
	return map[string]any{"term": map[string]any{q.Field: body}}
}

func (q Terms) Source() map[string]any {
	return map[string]any{"terms": map[string]any{q.Field: q.Values}}
}

func (q Match) Source() map[string]any {
	body := map[string]any{"query": q.Query}
	if q.Operator != "" {
		body["operator"] = string(q.Operator)
	}
	if q.Fuzziness != "" {
		body["fuzziness"] = q.Fuzziness
	}
	return map[string]any{"match": map[string]any{q.Field: body}}
}

func (q MultiMatch) Source() map[string]any {
	body := map[string]any{
		"query":  q.Query,
		"fields": fieldStrings(q.Fields),
	}
	if q.Operator != "" {
		body["operator"] = string(q.Operator)
	}
	if q.Fuzziness != "" {
		body["fuzziness"] = q.Fuzziness
	}
	return map[string]any{"multi_match": body}
}

func (q QueryString) Source() map[string]any {
	body := map[string]any{
		"query":  q.Query,
		"fields": fieldStrings(q.Fields),
	}
	if q.DefaultOperator != "" {
		body["default_operator"] = strings.ToUpper(string(q.DefaultOperator))
	}
	return map[string]any{"query_string": body}
}

func (q Bool) Source() map[string]any {
	body := map[string]any{}
	add := func(key string, qs []Query) {
		if len(qs) == 0 {
			return
		}
		out := make([]map[string]any, len(qs))
		for i, sub := range qs {
			out[i] = sub.Source()
		}
		body[key] = out
	}
	add("must", q.Must)
	add("should", q.Should)
	add("filter", q.Filter)
	add("must_not", q.MustNot)
	if q.MinimumShouldMatch > 0 {
		body["minimum_should_match"] = q.MinimumShouldMatch
	}
	return map[string]any{"bool": body}
}

func fieldStrings(fields []Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.String()
	}
	return out
}

// And returns a Bool requiring every filter, with no effect on scoring.
func And(filters ...Query) Bool {
	return Bool{Filter: filters}
}

// Or returns a Bool requiring at least one clause.
func Or(clauses ...Query) Bool {
	return Bool{Should: clauses, MinimumShouldMatch: 1}
}
