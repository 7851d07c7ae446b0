package models

// SearchHit is one record returned by a search. Exactly one of Entity or
// Relation is set, matching Type.
type SearchHit struct {
	ID         string              `json:"id"`
	Type       string              `json:"type"`
	Score      float64             `json:"score"`
	Entity     *Entity             `json:"entity,omitempty"`
	Relation   *Relation           `json:"relation,omitempty"`
	Highlights map[string][]string `json:"highlights,omitempty"`
}

// SearchResult is the outcome of a zone-scoped search.
type SearchResult struct {
	Zone  string      `json:"zone"`
	Total int         `json:"total"`
	Hits  []SearchHit `json:"hits"`
}

// UserSearchResult extends SearchResult with information about the
// second-pass relevance filter.
type UserSearchResult struct {
	SearchResult
	Filtered bool   `json:"filtered"`
	Fallback string `json:"fallback,omitempty"`
}

// Skipped names an item that was not processed and why.
type Skipped struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// TransferResult reports a copy or move between two zones.
type TransferResult struct {
	Source    string     `json:"source"`
	Target    string     `json:"target"`
	Entities  []string   `json:"entities"`
	Relations []Relation `json:"relations"`
	Skipped   []Skipped  `json:"skipped"`
}

// ZoneMergeResult reports the merge of a single source zone.
type ZoneMergeResult struct {
	Source        string            `json:"source"`
	Entities      []string          `json:"entities"`
	Renamed       map[string]string `json:"renamed,omitempty"`
	Relations     []Relation        `json:"relations"`
	Skipped       []Skipped         `json:"skipped"`
	Error         string            `json:"error,omitempty"`
	SourceDeleted bool              `json:"sourceDeleted"`
}

// MergeResult reports a merge of several zones into one target.
type MergeResult struct {
	Target  string            `json:"target"`
	Sources []ZoneMergeResult `json:"sources"`
	Failed  []Skipped         `json:"failed"`
}

// StepFailure records a failed step of a multi-step operation.
type StepFailure struct {
	Step   string `json:"step"`
	Reason string `json:"reason"`
}

// Outcome is the structured result of a best-effort multi-step operation.
type Outcome struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []StepFailure `json:"failed"`
}

// OK reports whether every step succeeded.
func (o *Outcome) OK() bool {
	return len(o.Failed) == 0
}

// Record appends the result of a named step.
func (o *Outcome) Record(step string, err error) {
	if err != nil {
		o.Failed = append(o.Failed, StepFailure{Step: step, Reason: err.Error()})
		return
	}
	o.Succeeded = append(o.Succeeded, step)
}

// ImportFailure describes one record that could not be imported.
type ImportFailure struct {
	Line   int    `json:"line"`
	Type   string `json:"type,omitempty"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// ImportResult reports a record-stream import.
type ImportResult struct {
	Zones     int             `json:"zones"`
	Entities  int             `json:"entities"`
	Relations int             `json:"relations"`
	Failures  []ImportFailure `json:"failures"`
}

// ExportResult reports a record-stream export.
type ExportResult struct {
	Zones     int `json:"zones"`
	Entities  int `json:"entities"`
	Relations int `json:"relations"`
}
