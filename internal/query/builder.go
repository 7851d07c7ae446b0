package query

import (
	"strings"
	"unicode"
)

// SortBy names a ranking policy.
type SortBy string

const (
	SortRelevance  SortBy = "relevance"
	SortRecent     SortBy = "recent"
	SortImportance SortBy = "importance"
)

// ParseSortBy maps user input to a policy; unknown values rank by relevance.
func ParseSortBy(s string) SortBy {
	switch SortBy(strings.ToLower(strings.TrimSpace(s))) {
	case SortRecent:
		return SortRecent
	case SortImportance:
		return SortImportance
	default:
		return SortRelevance
	}
}

// Strategy is the query shape chosen for a search string.
type Strategy int

const (
	StrategyMatchAll Strategy = iota
	StrategyExactName
	StrategyAdvanced
	StrategyMultiField
)

func (s Strategy) String() string {
	switch s {
	case StrategyMatchAll:
		return "match_all"
	case StrategyExactName:
		return "exact_name"
	case StrategyAdvanced:
		return "advanced"
	default:
		return "multi_field"
	}
}

// Document fields referenced by the builder.
const (
	FieldType           = "type"
	FieldZone           = "zone"
	FieldName           = "name"
	FieldNameKeyword    = "name.keyword"
	FieldEntityType     = "entityType"
	FieldObservations   = "observations"
	FieldRelationType   = "relationType"
	FieldLastRead       = "lastRead"
	FieldRelevanceScore = "relevanceScore"
)

// WeightedFields are searched by free-text queries, name boosted highest.
var WeightedFields = []Field{
	{Name: FieldName, Boost: 3},
	{Name: FieldEntityType, Boost: 2},
	{Name: FieldObservations, Boost: 1},
	{Name: FieldRelationType, Boost: 1},
}

// HighlightFields are returned as snippets with every search.
var HighlightFields = []string{FieldName, FieldEntityType, FieldObservations}

// DefaultLimit applies when a search does not set one.
const DefaultLimit = 10

// SearchRequest is a zone-scoped search as callers phrase it.
type SearchRequest struct {
	Query       string
	EntityTypes []string
	Limit       int
	Offset      int
	SortBy      SortBy
	Zone        string
}

// Choose picks the query strategy for a search string.
func Choose(q string) Strategy {
	q = strings.TrimSpace(q)
	switch {
	case q == "" || q == "*":
		return StrategyMatchAll
	case !strings.ContainsFunc(q, unicode.IsSpace):
		return StrategyExactName
	case isAdvanced(q):
		return StrategyAdvanced
	default:
		return StrategyMultiField
	}
}

func isAdvanced(q string) bool {
	if strings.Contains(q, "~") {
		return true
	}
	for _, tok := range strings.Fields(q) {
		switch strings.Trim(tok, "()") {
		case "AND", "OR", "NOT":
			return true
		}
	}
	return false
}

// Build translates a search request into an engine request. The result is
// always filtered to req.Zone.
func Build(req SearchRequest) Request {
	text := strings.TrimSpace(req.Query)

	var main Query
	switch Choose(text) {
	case StrategyMatchAll:
		main = MatchAll{}
	case StrategyExactName:
		main = Match{Field: FieldName, Query: text}
	case StrategyAdvanced:
		main = QueryString{Query: text, Fields: WeightedFields, DefaultOperator: OperatorOr}
	default:
		main = MultiMatch{Query: text, Fields: WeightedFields, Fuzziness: FuzzinessAuto}
	}

	filters := []Query{Term{Field: FieldZone, Value: req.Zone}}
	if types := nonEmpty(req.EntityTypes); len(types) > 0 {
		filters = append(filters, Terms{Field: FieldEntityType, Values: types})
	}

	size := req.Limit
	if size <= 0 {
		size = DefaultLimit
	}
	from := req.Offset
	if from < 0 {
		from = 0
	}

	return Request{
		Query:     Bool{Must: []Query{main}, Filter: filters},
		Sort:      SortClauses(req.SortBy),
		From:      from,
		Size:      size,
		Highlight: &Highlight{Fields: HighlightFields},
	}
}

// SortClauses returns the sort for a ranking policy.
func SortClauses(by SortBy) []Sort {
	switch by {
	case SortRecent:
		return []Sort{{Field: FieldLastRead, Order: Desc}}
	case SortImportance:
		return []Sort{{Field: FieldRelevanceScore, Order: Desc}, {Field: ScoreField, Order: Desc}}
	default:
		return []Sort{{Field: ScoreField, Order: Desc}}
	}
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
