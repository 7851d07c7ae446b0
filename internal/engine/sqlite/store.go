// Package sqlite is an embedded implementation of the backing engine. Each
// partition is its own SQLite database file holding JSON documents. Mapped
// exact fields are served by expression indexes and text fields by an FTS5
// table kept in sync by triggers.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/engine"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/query"
)

var indexName = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

type partition struct {
	db      *sql.DB
	mapping engine.Mapping
	// columns are the documents_fts columns in order.
	columns []string
	colIdx  map[string]int
}

func newPartition(db *sql.DB, mapping engine.Mapping) *partition {
	cols := ftsColumns(mapping)
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[c] = i
	}
	return &partition{db: db, mapping: mapping, columns: cols, colIdx: idx}
}

// column is the documents_fts column index of field, or -1.
func (p *partition) column(field string) int {
	if i, ok := p.colIdx[field]; ok {
		return i
	}
	return -1
}

// Store manages the partition database files under a data directory.
type Store struct {
	dir string

	mu         sync.Mutex
	partitions map[string]*partition
	qs         *queryStringCache
}

var _ engine.Engine = (*Store)(nil)

// Open opens (or creates) the data directory holding the partitions.
func Open(dataDir string) (*Store, error) {
	dir := filepath.Join(dataDir, "indices")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create indices dir: %w", err)
	}
	return &Store{
		dir:        dir,
		partitions: make(map[string]*partition),
		qs:         newQueryStringCache(),
	}, nil
}

// Close closes every open partition.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for name, p := range s.partitions {
		if err := p.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(s.partitions, name)
	}
	return errors.Join(errs...)
}

func (s *Store) path(index string) string {
	return filepath.Join(s.dir, index+".db")
}

func checkName(index string) error {
	if !indexName.MatchString(index) {
		return fmt.Errorf("invalid index name %q", index)
	}
	return nil
}

// IndexExists reports whether the partition file exists.
func (s *Store) IndexExists(_ context.Context, index string) (bool, error) {
	if err := checkName(index); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(index))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat index %s: %w", index, err)
	}
	return true, nil
}

// CreateIndex creates the partition database with its schema and mapping.
// The mapping of an existing partition is kept.
func (s *Store) CreateIndex(ctx context.Context, index string, mapping engine.Mapping) error {
	if err := checkName(index); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.partitions[index]; ok {
		return nil
	}
	db, err := openDB(s.path(index))
	if err != nil {
		return err
	}
	p, err := initPartition(ctx, db, mapping)
	if err != nil {
		db.Close()
		return err
	}
	s.partitions[index] = p
	return nil
}

// DeleteIndex closes and removes the partition file.
func (s *Store) DeleteIndex(_ context.Context, index string) error {
	if err := checkName(index); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.partitions[index]; ok {
		p.db.Close()
		delete(s.partitions, index)
	}
	path := s.path(index)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", index, engine.ErrIndexNotFound)
		}
		return fmt.Errorf("delete index %s: %w", index, err)
	}
	// WAL/SHM files may or may not exist.
	os.Remove(path + "-wal")
	os.Remove(path + "-shm")
	return nil
}

// ListIndices returns partition names starting with prefix, sorted.
func (s *Store) ListIndices(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list indices: %w", err)
	}
	var names []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".db")
		if !ok || e.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// partition returns the open handle for index, opening the file if needed.
func (s *Store) partition(ctx context.Context, index string) (*partition, error) {
	if err := checkName(index); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.partitions[index]; ok {
		return p, nil
	}
	path := s.path(index)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", index, engine.ErrIndexNotFound)
		}
		return nil, fmt.Errorf("stat index %s: %w", index, err)
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	mapping, err := loadMapping(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	p := newPartition(db, mapping)
	s.partitions[index] = p
	return p, nil
}

// Index stores source under id, replacing any previous version.
func (s *Store) Index(ctx context.Context, index, id string, source any) error {
	p, err := s.partition(ctx, index)
	if err != nil {
		return err
	}
	body, err := json.Marshal(source)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", id, err)
	}
	if err := upsert(ctx, p.db, id, body); err != nil {
		return fmt.Errorf("index document %s: %w", id, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, db execer, id string, body []byte) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO documents (id, body) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET body = excluded.body,
		     updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		id, string(body),
	)
	return err
}

// Get returns the stored source of a document.
func (s *Store) Get(ctx context.Context, index, id string) (json.RawMessage, error) {
	p, err := s.partition(ctx, index)
	if err != nil {
		return nil, err
	}
	var body string
	err = p.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", index, id, engine.ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return json.RawMessage(body), nil
}

// Update merges fields into an existing document.
func (s *Store) Update(ctx context.Context, index, id string, fields map[string]any) error {
	p, err := s.partition(ctx, index)
	if err != nil {
		return err
	}
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal update %s: %w", id, err)
	}
	result, err := p.db.ExecContext(ctx,
		`UPDATE documents SET body = json_patch(body, ?),
		     updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		 WHERE id = ?`,
		string(patch), id,
	)
	if err != nil {
		return fmt.Errorf("update document %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%s/%s: %w", index, id, engine.ErrDocumentNotFound)
	}
	return nil
}

// Delete removes a document by id.
func (s *Store) Delete(ctx context.Context, index, id string) (bool, error) {
	p, err := s.partition(ctx, index)
	if err != nil {
		return false, err
	}
	result, err := p.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete document %s: %w", id, err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// DeleteByQuery removes every document matching q.
func (s *Store) DeleteByQuery(ctx context.Context, index string, q query.Query) (int, error) {
	p, err := s.partition(ctx, index)
	if err != nil {
		return 0, err
	}
	c := newCompiler(ctx, p, s.qs)
	where, err := c.compile(q, false)
	if err != nil {
		return 0, err
	}
	result, err := p.db.ExecContext(ctx,
		`DELETE FROM documents WHERE rid IN (SELECT d.rid FROM documents d WHERE `+where+`)`, c.args...)
	if err != nil {
		return 0, fmt.Errorf("delete by query: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// searchRow is one matching document as read from the partition.
type searchRow struct {
	id        string
	body      string
	score     float64
	rid       int64
	sort      []any
	highlight map[string][]string
}

// Search runs req as one SQL query: filters hit the expression indexes,
// full-text clauses hit documents_fts and are scored with bm25.
func (s *Store) Search(ctx context.Context, index string, req query.Request) (*engine.SearchResponse, error) {
	p, err := s.partition(ctx, index)
	if err != nil {
		return nil, err
	}
	c := newCompiler(ctx, p, s.qs)
	where, err := c.compile(req.Query, true)
	if err != nil {
		return nil, err
	}
	whereArgs := c.args

	sorts := req.Sort
	if len(sorts) == 0 {
		sorts = []query.Sort{{Field: query.ScoreField, Order: query.Desc}}
	}
	cols := []string{"d.id AS id", "d.body AS body", c.score() + " AS score", "d.rid AS rid"}
	var keys, order []string
	for i, so := range sorts {
		expr, err := c.sortExpr(so)
		if err != nil {
			return nil, err
		}
		key := fmt.Sprintf("s%d", i)
		cols = append(cols, expr+" AS "+key)
		keys = append(keys, key)
		dir := "ASC"
		if so.Order == query.Desc {
			dir = "DESC"
		}
		order = append(order, key+" IS NULL, "+key+" "+dir)
	}
	order = append(order, "rid")

	with, from, withArgs := c.sources()
	var total int
	if err := p.db.QueryRowContext(ctx, with+"SELECT count(*) "+from+" WHERE "+where,
		append(append([]any{}, withArgs...), whereArgs...)...,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("count hits: %w", err)
	}

	after, afterArgs, err := searchAfter(keys, sorts, req.SearchAfter)
	if err != nil {
		return nil, err
	}
	args := append(append(append([]any{}, withArgs...), whereArgs...), afterArgs...)
	limit := ""
	switch offset := max(req.From, 0); {
	case len(req.SearchAfter) > 0 && req.Size > 0:
		limit = " LIMIT ?"
		args = append(args, req.Size)
	case req.Size > 0:
		limit = " LIMIT ? OFFSET ?"
		args = append(args, req.Size, offset)
	case offset > 0 && len(req.SearchAfter) == 0:
		limit = " LIMIT -1 OFFSET ?"
		args = append(args, offset)
	}
	sqlText := with + "SELECT id, body, score, rid, " + strings.Join(keys, ", ") +
		" FROM (SELECT " + strings.Join(cols, ", ") + " " + from + " WHERE " + where + ")" +
		after + " ORDER BY " + strings.Join(order, ", ") + limit

	rows, err := p.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	defer rows.Close()
	var hits []searchRow
	for rows.Next() {
		h := searchRow{sort: make([]any, len(keys))}
		dest := []any{&h.id, &h.body, &h.score, &h.rid}
		for i := range h.sort {
			dest = append(dest, &h.sort[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		for i, v := range h.sort {
			if b, ok := v.([]byte); ok {
				h.sort[i] = string(b)
			}
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	rows.Close()

	if req.Highlight != nil {
		if err := highlights(ctx, p, hits, *req.Highlight, c.matches()); err != nil {
			return nil, err
		}
	}
	resp := &engine.SearchResponse{Total: total, Hits: make([]engine.Hit, 0, len(hits))}
	for _, h := range hits {
		resp.Hits = append(resp.Hits, engine.Hit{
			Index:     index,
			ID:        h.id,
			Score:     h.score,
			Source:    json.RawMessage(h.body),
			Highlight: h.highlight,
			Sort:      h.sort,
		})
	}
	return resp, nil
}

// searchAfter is the keyset predicate selecting rows that sort strictly
// after the cursor. Missing values sort last in either direction.
func searchAfter(keys []string, sorts []query.Sort, cursor []any) (string, []any, error) {
	if len(cursor) == 0 {
		return "", nil, nil
	}
	if len(cursor) != len(keys) {
		return "", nil, fmt.Errorf("search_after has %d values for %d sort keys", len(cursor), len(keys))
	}
	var branches []string
	var args []any
	for i, key := range keys {
		if cursor[i] == nil {
			continue
		}
		var conds []string
		var bargs []any
		for j := 0; j < i; j++ {
			if cursor[j] == nil {
				conds = append(conds, keys[j]+" IS NULL")
				continue
			}
			conds = append(conds, keys[j]+" = ?")
			bargs = append(bargs, sqlValue(cursor[j]))
		}
		op := ">"
		if sorts[i].Order == query.Desc {
			op = "<"
		}
		conds = append(conds, fmt.Sprintf("(%s %s ? OR %s IS NULL)", key, op, key))
		bargs = append(bargs, sqlValue(cursor[i]))
		branches = append(branches, "("+strings.Join(conds, " AND ")+")")
		args = append(args, bargs...)
	}
	if len(branches) == 0 {
		return " WHERE 0", nil, nil
	}
	return " WHERE " + strings.Join(branches, " OR "), args, nil
}

// Count returns the number of documents matching q.
func (s *Store) Count(ctx context.Context, index string, q query.Query) (int, error) {
	p, err := s.partition(ctx, index)
	if err != nil {
		return 0, err
	}
	c := newCompiler(ctx, p, s.qs)
	where, err := c.compile(q, false)
	if err != nil {
		return 0, err
	}
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM documents d WHERE `+where, c.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", index, err)
	}
	return n, nil
}

// TermsAggregation counts the documents matching q per value of field, most
// frequent first.
func (s *Store) TermsAggregation(ctx context.Context, index, field string, q query.Query, size int) ([]engine.Bucket, error) {
	p, err := s.partition(ctx, index)
	if err != nil {
		return nil, err
	}
	c := newCompiler(ctx, p, s.qs)
	base, _, _, err := c.field(field)
	if err != nil {
		return nil, err
	}
	where, err := c.compile(q, false)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = -1
	}
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT CAST(j.value AS TEXT) AS k, count(DISTINCT d.rid) AS n
		 FROM documents d, json_each(d.body, '$.%s') j
		 WHERE (%s) AND j.value IS NOT NULL
		 GROUP BY k ORDER BY n DESC, k LIMIT ?`, base, where),
		append(c.args, size)...,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", field, err)
	}
	defer rows.Close()
	buckets := []engine.Bucket{}
	for rows.Next() {
		var b engine.Bucket
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// Bulk indexes items in one transaction; items that cannot be encoded are
// reported as failures without aborting the rest.
func (s *Store) Bulk(ctx context.Context, index string, items []engine.BulkItem) (*engine.BulkResult, error) {
	p, err := s.partition(ctx, index)
	if err != nil {
		return nil, err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result := &engine.BulkResult{}
	for _, item := range items {
		body, err := json.Marshal(item.Source)
		if err == nil {
			err = upsert(ctx, tx, item.ID, body)
		}
		if err != nil {
			result.Failures = append(result.Failures, engine.BulkFailure{ID: item.ID, Reason: err.Error()})
			continue
		}
		result.Indexed++
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return result, nil
}

// Refresh is a no-op: writes are visible as soon as they commit.
func (s *Store) Refresh(ctx context.Context, index string) error {
	_, err := s.partition(ctx, index)
	return err
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open partition db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping partition db: %w", err)
	}
	return db, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadMapping(ctx context.Context, db querier) (engine.Mapping, error) {
	rows, err := db.QueryContext(ctx, `SELECT field, field_type FROM mapping`)
	if err != nil {
		return nil, fmt.Errorf("load mapping: %w", err)
	}
	defer rows.Close()

	mapping := engine.Mapping{}
	for rows.Next() {
		var field, ft string
		if err := rows.Scan(&field, &ft); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		mapping[field] = engine.FieldType(ft)
	}
	return mapping, rows.Err()
}

// initPartition creates the schema of a partition. A stored mapping wins
// over the requested one; the first mapping stored also builds the indexes
// and the full-text table.
func initPartition(ctx context.Context, db *sql.DB, mapping engine.Mapping) (*partition, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, PartitionSchema); err != nil {
		return nil, fmt.Errorf("create partition schema: %w", err)
	}
	stored, err := loadMapping(ctx, tx)
	if err != nil {
		return nil, err
	}
	fresh := len(stored) == 0 && len(mapping) > 0
	if fresh {
		for field, ft := range mapping {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO mapping (field, field_type) VALUES (?, ?)`, field, string(ft),
			); err != nil {
				return nil, fmt.Errorf("store mapping: %w", err)
			}
			stored[field] = ft
		}
	}
	if ddl := mappingDDL(stored); ddl != "" {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return nil, fmt.Errorf("create mapping indexes: %w", err)
		}
	}
	if cols := ftsColumns(stored); fresh && len(cols) > 0 {
		if _, err := tx.ExecContext(ctx, reindexFTS(cols)); err != nil {
			return nil, fmt.Errorf("index existing documents: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return newPartition(db, stored), nil
}
