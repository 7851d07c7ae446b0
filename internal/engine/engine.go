// Package engine defines the boundary to the backing document search engine.
// The knowledge graph only builds requests and interprets responses; the
// engine owns indexing, analysis and storage.
package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/query"
)

var (
	// ErrIndexNotFound is returned when a partition does not exist.
	ErrIndexNotFound = errors.New("index not found")
	// ErrDocumentNotFound is returned by Get and Update for unknown ids.
	ErrDocumentNotFound = errors.New("document not found")
)

// FieldType is the mapping type of a document field.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldKeyword FieldType = "keyword"
	FieldDate    FieldType = "date"
	FieldFloat   FieldType = "float"
	FieldLong    FieldType = "long"
	FieldObject  FieldType = "object"
	// FieldTextKeyword is analyzed text with an exact ".keyword" sub-field.
	FieldTextKeyword FieldType = "text+keyword"
)

// Mapping describes the fields of a partition.
type Mapping map[string]FieldType

// Hit is one search result.
type Hit struct {
	Index     string              `json:"index"`
	ID        string              `json:"id"`
	Score     float64             `json:"score"`
	Source    json.RawMessage     `json:"source"`
	Highlight map[string][]string `json:"highlight,omitempty"`
	// Sort holds the hit's sort values, fed back as Request.SearchAfter.
	Sort []any `json:"sort,omitempty"`
}

// SearchResponse is the engine's answer to a search.
type SearchResponse struct {
	Total int   `json:"total"`
	Hits  []Hit `json:"hits"`
}

// Bucket is one terms-aggregation bucket.
type Bucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// BulkItem is one document of a bulk index request.
type BulkItem struct {
	ID     string
	Source any
}

// BulkFailure is a bulk item the engine rejected.
type BulkFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BulkResult summarises a bulk request.
type BulkResult struct {
	Indexed  int           `json:"indexed"`
	Failures []BulkFailure `json:"failures"`
}

// Engine is the backing document search engine. Sources passed to Index and
// Bulk are marshalled to JSON.
type Engine interface {
	IndexExists(ctx context.Context, index string) (bool, error)
	// CreateIndex is idempotent.
	CreateIndex(ctx context.Context, index string, mapping Mapping) error
	DeleteIndex(ctx context.Context, index string) error
	ListIndices(ctx context.Context, prefix string) ([]string, error)

	Index(ctx context.Context, index, id string, source any) error
	Get(ctx context.Context, index, id string) (json.RawMessage, error)
	Update(ctx context.Context, index, id string, fields map[string]any) error
	// Delete reports whether the document existed.
	Delete(ctx context.Context, index, id string) (bool, error)
	DeleteByQuery(ctx context.Context, index string, q query.Query) (int, error)

	Search(ctx context.Context, index string, req query.Request) (*SearchResponse, error)
	Count(ctx context.Context, index string, q query.Query) (int, error)
	TermsAggregation(ctx context.Context, index, field string, q query.Query, size int) ([]Bucket, error)
	Bulk(ctx context.Context, index string, items []BulkItem) (*BulkResult, error)
	Refresh(ctx context.Context, index string) error

	Close() error
}

// IsMissing reports whether err means the partition or document is absent.
func IsMissing(err error) bool {
	return errors.Is(err, ErrIndexNotFound) || errors.Is(err, ErrDocumentNotFound)
}
