// Package elastic implements the backing engine on the official
// Elasticsearch client.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/engine"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/query"
)

// maxResultWindow is the page size used when a request does not set one.
const maxResultWindow = 10000

// Options configures a Client.
type Options struct {
	URL      string
	Username string
	Password string
	// Refresh is passed as the refresh parameter of writes: "true",
	// "wait_for" or "false". Empty means "wait_for".
	Refresh string
	// Transport overrides the HTTP transport. Nil uses a clone of
	// http.DefaultTransport.
	Transport http.RoundTripper
}

// Client is an engine.Engine backed by an Elasticsearch cluster.
type Client struct {
	es        *elasticsearch.Client
	refresh   string
	transport http.RoundTripper
}

var _ engine.Engine = (*Client)(nil)

// New creates a client for the cluster at opts.URL.
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("elasticsearch url is required")
	}
	transport := opts.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.ResponseHeaderTimeout = 30 * time.Second
		transport = t
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{strings.TrimRight(opts.URL, "/")},
		Username:  opts.Username,
		Password:  opts.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	refresh := opts.Refresh
	if refresh == "" {
		refresh = "wait_for"
	}
	return &Client{es: es, refresh: refresh, transport: transport}, nil
}

// apiError is a non-2xx response.
type apiError struct {
	Status int
	Type   string
	Reason string
}

func (e *apiError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("elasticsearch %d: %s: %s", e.Status, e.Type, e.Reason)
	}
	return fmt.Sprintf("elasticsearch status %d", e.Status)
}

func (e *apiError) Unwrap() error {
	if e.Status != http.StatusNotFound {
		return nil
	}
	if e.Type == "index_not_found_exception" {
		return engine.ErrIndexNotFound
	}
	return engine.ErrDocumentNotFound
}

// decode consumes res, turning error statuses into *apiError and decoding a
// JSON body into out when non-nil.
func decode(res *esapi.Response, err error, out any) error {
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return decodeError(res)
	}
	if out == nil {
		io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(res *esapi.Response) error {
	apiErr := &apiError{Status: res.StatusCode}
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if json.Unmarshal(data, &payload) == nil && len(payload.Error) > 0 {
		var detail struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		}
		if json.Unmarshal(payload.Error, &detail) == nil {
			apiErr.Type, apiErr.Reason = detail.Type, detail.Reason
		} else {
			apiErr.Reason = strings.Trim(string(payload.Error), `"`)
		}
	}
	return apiErr
}

func encode(payload any) (io.Reader, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return bytes.NewReader(data), nil
}

// IndexExists reports whether the index exists.
func (c *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	res, err := c.es.Indices.Exists([]string{index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", index, err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	switch {
	case res.StatusCode == http.StatusNotFound:
		return false, nil
	case res.IsError():
		return false, &apiError{Status: res.StatusCode}
	}
	return true, nil
}

// CreateIndex creates the index with its mapping. An existing index is left
// as is.
func (c *Client) CreateIndex(ctx context.Context, index string, mapping engine.Mapping) error {
	ok, err := c.IndexExists(ctx, index)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	body, err := encode(map[string]any{
		"mappings": map[string]any{"properties": properties(mapping)},
	})
	if err != nil {
		return err
	}
	res, err := c.es.Indices.Create(index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(body),
	)
	err = decode(res, err, nil)
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Type == "resource_already_exists_exception" {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	return nil
}

func properties(mapping engine.Mapping) map[string]any {
	props := make(map[string]any, len(mapping))
	for field, ft := range mapping {
		switch ft {
		case engine.FieldTextKeyword:
			props[field] = map[string]any{
				"type":   "text",
				"fields": map[string]any{"keyword": map[string]any{"type": "keyword"}},
			}
		case engine.FieldObject:
			props[field] = map[string]any{"type": "object", "enabled": false}
		default:
			props[field] = map[string]any{"type": string(ft)}
		}
	}
	return props
}

// DeleteIndex deletes the index.
func (c *Client) DeleteIndex(ctx context.Context, index string) error {
	res, err := c.es.Indices.Delete([]string{index}, c.es.Indices.Delete.WithContext(ctx))
	err = decode(res, err, nil)
	if err != nil {
		return fmt.Errorf("delete index %s: %w", index, err)
	}
	return nil
}

// ListIndices lists index names starting with prefix.
func (c *Client) ListIndices(ctx context.Context, prefix string) ([]string, error) {
	var rows []struct {
		Index string `json:"index"`
	}
	res, err := c.es.Cat.Indices(
		c.es.Cat.Indices.WithContext(ctx),
		c.es.Cat.Indices.WithIndex(prefix+"*"),
		c.es.Cat.Indices.WithFormat("json"),
		c.es.Cat.Indices.WithH("index"),
	)
	err = decode(res, err, &rows)
	if err != nil {
		if errors.Is(err, engine.ErrIndexNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list indices: %w", err)
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if strings.HasPrefix(r.Index, prefix) {
			names = append(names, r.Index)
		}
	}
	return names, nil
}

// Index stores source under id.
func (c *Client) Index(ctx context.Context, index, id string, source any) error {
	body, err := encode(source)
	if err != nil {
		return err
	}
	res, err := c.es.Index(index, body,
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(id),
		c.es.Index.WithRefresh(c.refresh),
	)
	err = decode(res, err, nil)
	if err != nil {
		return fmt.Errorf("index document %s: %w", id, err)
	}
	return nil
}

// Get returns the _source of a document.
func (c *Client) Get(ctx context.Context, index, id string) (json.RawMessage, error) {
	var resp struct {
		Found  bool            `json:"found"`
		Source json.RawMessage `json:"_source"`
	}
	res, err := c.es.Get(index, id, c.es.Get.WithContext(ctx))
	if err := decode(res, err, &resp); err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	if !resp.Found {
		return nil, fmt.Errorf("%s/%s: %w", index, id, engine.ErrDocumentNotFound)
	}
	return resp.Source, nil
}

// Update applies a partial document update.
func (c *Client) Update(ctx context.Context, index, id string, fields map[string]any) error {
	body, err := encode(map[string]any{"doc": fields})
	if err != nil {
		return err
	}
	res, err := c.es.Update(index, id, body,
		c.es.Update.WithContext(ctx),
		c.es.Update.WithRefresh(c.refresh),
	)
	err = decode(res, err, nil)
	if err != nil {
		return fmt.Errorf("update document %s: %w", id, err)
	}
	return nil
}

// Delete removes a document, reporting whether it existed.
func (c *Client) Delete(ctx context.Context, index, id string) (bool, error) {
	res, err := c.es.Delete(index, id,
		c.es.Delete.WithContext(ctx),
		c.es.Delete.WithRefresh(c.refresh),
	)
	err = decode(res, err, nil)
	if errors.Is(err, engine.ErrDocumentNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete document %s: %w", id, err)
	}
	return true, nil
}

// DeleteByQuery removes every document matching q.
func (c *Client) DeleteByQuery(ctx context.Context, index string, q query.Query) (int, error) {
	body, err := encode(map[string]any{"query": source(q)})
	if err != nil {
		return 0, err
	}
	var resp struct {
		Deleted int `json:"deleted"`
	}
	res, err := c.es.DeleteByQuery([]string{index}, body,
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithRefresh(true),
		c.es.DeleteByQuery.WithConflicts("proceed"),
	)
	err = decode(res, err, &resp)
	if err != nil {
		return 0, fmt.Errorf("delete by query: %w", err)
	}
	return resp.Deleted, nil
}

func source(q query.Query) map[string]any {
	if q == nil {
		return query.MatchAll{}.Source()
	}
	return q.Source()
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Index     string              `json:"_index"`
			ID        string              `json:"_id"`
			Score     *float64            `json:"_score"`
			Source    json.RawMessage     `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
			Sort      []any               `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Buckets []struct {
			Key   any   `json:"key"`
			Count int64 `json:"doc_count"`
		} `json:"buckets"`
	} `json:"aggregations"`
}

func (c *Client) search(ctx context.Context, index string, body map[string]any) (*searchResponse, error) {
	r, err := encode(body)
	if err != nil {
		return nil, err
	}
	var raw searchResponse
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(r),
	)
	err = decode(res, err, &raw)
	if err != nil {
		return nil, err
	}
	return &raw, nil
}

// Search runs req against the index.
func (c *Client) Search(ctx context.Context, index string, req query.Request) (*engine.SearchResponse, error) {
	body := req.Body()
	if req.Size <= 0 {
		body["size"] = maxResultWindow
	}
	body["track_total_hits"] = true

	raw, err := c.search(ctx, index, body)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	resp := &engine.SearchResponse{Total: raw.Hits.Total.Value}
	for _, h := range raw.Hits.Hits {
		hit := engine.Hit{Index: h.Index, ID: h.ID, Source: h.Source, Highlight: h.Highlight, Sort: h.Sort}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		resp.Hits = append(resp.Hits, hit)
	}
	return resp, nil
}

// Count returns the number of documents matching q.
func (c *Client) Count(ctx context.Context, index string, q query.Query) (int, error) {
	body, err := encode(map[string]any{"query": source(q)})
	if err != nil {
		return 0, err
	}
	var resp struct {
		Count int `json:"count"`
	}
	res, err := c.es.Count(
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(index),
		c.es.Count.WithBody(body),
	)
	err = decode(res, err, &resp)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", index, err)
	}
	return resp.Count, nil
}

// TermsAggregation returns the top values of field among documents matching q.
func (c *Client) TermsAggregation(ctx context.Context, index, field string, q query.Query, size int) ([]engine.Bucket, error) {
	if size <= 0 {
		size = 100
	}
	raw, err := c.search(ctx, index, map[string]any{
		"size":  0,
		"query": source(q),
		"aggs": map[string]any{
			"values": map[string]any{"terms": map[string]any{"field": field, "size": size}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", field, err)
	}
	agg := raw.Aggregations["values"]
	buckets := make([]engine.Bucket, 0, len(agg.Buckets))
	for _, b := range agg.Buckets {
		buckets = append(buckets, engine.Bucket{Key: fmt.Sprint(b.Key), Count: b.Count})
	}
	return buckets, nil
}

// Bulk indexes items with a single _bulk request.
func (c *Client) Bulk(ctx context.Context, index string, items []engine.BulkItem) (*engine.BulkResult, error) {
	result := &engine.BulkResult{}
	var buf bytes.Buffer
	sent := 0
	for _, item := range items {
		doc, err := json.Marshal(item.Source)
		if err != nil {
			result.Failures = append(result.Failures, engine.BulkFailure{ID: item.ID, Reason: err.Error()})
			continue
		}
		action, _ := json.Marshal(map[string]any{"index": map[string]any{"_index": index, "_id": item.ID}})
		buf.Write(action)
		buf.WriteByte('\n')
		buf.Write(doc)
		buf.WriteByte('\n')
		sent++
	}
	if sent == 0 {
		return result, nil
	}

	var resp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	res, err := c.es.Bulk(&buf,
		c.es.Bulk.WithContext(ctx),
		c.es.Bulk.WithRefresh(c.refresh),
	)
	err = decode(res, err, &resp)
	if err != nil {
		return nil, fmt.Errorf("bulk index: %w", err)
	}
	for _, entry := range resp.Items {
		for _, item := range entry {
			if item.Error != nil {
				result.Failures = append(result.Failures, engine.BulkFailure{
					ID:     item.ID,
					Reason: item.Error.Type + ": " + item.Error.Reason,
				})
				continue
			}
			result.Indexed++
		}
	}
	return result, nil
}

// Refresh makes recent writes visible to search.
func (c *Client) Refresh(ctx context.Context, index string) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithContext(ctx),
		c.es.Indices.Refresh.WithIndex(index),
	)
	err = decode(res, err, nil)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", index, err)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	if t, ok := c.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
	return nil
}
