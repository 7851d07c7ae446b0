package query

// ScoreField sorts by the engine's text-relevance score.
const ScoreField = "_score"

// Order is a sort direction.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// Sort is a single sort clause.
type Sort struct {
	Field string
	Order Order
}

// Source renders the sort clause.
func (s Sort) Source() map[string]any {
	order := s.Order
	if order == "" {
		order = Asc
	}
	return map[string]any{s.Field: map[string]any{"order": string(order)}}
}

// Highlight requests fragments of matched text for the listed fields.
type Highlight struct {
	Fields  []string
	PreTag  string
	PostTag string
}

// Tags returns the configured tags, defaulting to <em></em>.
func (h Highlight) Tags() (string, string) {
	pre, post := h.PreTag, h.PostTag
	if pre == "" {
		pre = "<em>"
	}
	if post == "" {
		post = "</em>"
	}
	return pre, post
}

// Source renders the highlight clause.
func (h Highlight) Source() map[string]any {
	fields := make(map[string]any, len(h.Fields))
	for _, f := range h.Fields {
		fields[f] = map[string]any{}
	}
	pre, post := h.Tags()
	return map[string]any{
		"pre_tags":  []string{pre},
		"post_tags": []string{post},
		"fields":    fields,
	}
}

// Request is a complete search request against one partition.
type Request struct {
	Query Query
	Sort  []Sort
	From  int
	Size  int
	// SearchAfter resumes after the hit whose sort values are given. It
	// needs Sort to name a unique key and is used instead of From.
	SearchAfter []any
	Highlight   *Highlight
}

// Body renders the request as the engine's search body.
func (r Request) Body() map[string]any {
	q := r.Query
	if q == nil {
		q = MatchAll{}
	}
	body := map[string]any{"query": q.Source()}
	if len(r.Sort) > 0 {
		sorts := make([]map[string]any, len(r.Sort))
		for i, s := range r.Sort {
			sorts[i] = s.Source()
		}
		body["sort"] = sorts
	}
	if len(r.SearchAfter) > 0 {
		body["search_after"] = r.SearchAfter
	} else if r.From > 0 {
		body["from"] = r.From
	}
	if r.Size > 0 {
		body["size"] = r.Size
	}
	if r.Highlight != nil {
		body["highlight"] = r.Highlight.Source()
	}
	return body
}
