package sqlite

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/engine"
)

// PartitionSchema is the SQL schema shared by every partition database file.
const PartitionSchema = `
CREATE TABLE IF NOT EXISTS documents (
    rid         INTEGER PRIMARY KEY,
    id          TEXT NOT NULL UNIQUE,
    body        TEXT NOT NULL,
    created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    updated_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE TABLE IF NOT EXISTS mapping (
    field       TEXT PRIMARY KEY,
    field_type  TEXT NOT NULL
);
`

// dsnParams configures SQLite for a single-writer, many-reader workload.
const dsnParams = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=cache_size(-16000)"

// valueSeparator joins the values of a multi-valued field in its full-text
// column. The tokenizer treats it as whitespace.
const valueSeparator = "\x1f"

var fieldPath = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// jsonValue is the SQL expression reading field from a document body. The
// same text is used in index definitions so the planner can match them.
func jsonValue(alias, field string) string {
	return fmt.Sprintf("json_extract(%sbody, '$.%s')", alias, field)
}

func indexed(ft engine.FieldType) bool {
	switch ft {
	case engine.FieldKeyword, engine.FieldTextKeyword, engine.FieldFloat, engine.FieldLong, engine.FieldDate:
		return true
	}
	return false
}

// ftsColumns lists the fields of mapping that are full-text searchable, in
// documents_fts column order.
func ftsColumns(mapping engine.Mapping) []string {
	var cols []string
	for field, ft := range mapping {
		if strings.Contains(field, ".") || !fieldPath.MatchString(field) {
			continue
		}
		switch ft {
		case engine.FieldText, engine.FieldTextKeyword, engine.FieldKeyword:
			cols = append(cols, field)
		}
	}
	sort.Strings(cols)
	return cols
}

// ftsValues is the list of column values fed to documents_fts for row.
func ftsValues(row string, cols []string) string {
	vals := make([]string, len(cols))
	for i, col := range cols {
		vals[i] = fmt.Sprintf("(SELECT group_concat(value, char(31)) FROM json_each(%s.body, '$.%s'))", row, col)
	}
	return strings.Join(vals, ", ")
}

// mappingDDL builds the expression indexes, full-text table and the
// triggers keeping it in sync for a partition's mapping.
func mappingDDL(mapping engine.Mapping) string {
	var b strings.Builder
	fields := make([]string, 0, len(mapping))
	for f := range mapping {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		if !indexed(mapping[f]) || !fieldPath.MatchString(f) {
			continue
		}
		fmt.Fprintf(&b, "CREATE INDEX IF NOT EXISTS idx_%s ON documents(%s);\n",
			strings.ReplaceAll(f, ".", "_"), jsonValue("", f))
	}

	cols := ftsColumns(mapping)
	if len(cols) == 0 {
		return b.String()
	}
	names := quotedList(cols)
	fmt.Fprintf(&b, `
CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
    %[1]s,
    tokenize = 'unicode61 remove_diacritics 2'
);

CREATE VIRTUAL TABLE IF NOT EXISTS documents_vocab USING fts5vocab(documents_fts, row);

CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
    INSERT INTO documents_fts(rowid, %[1]s) VALUES (new.rid, %[2]s);
END;
CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
    DELETE FROM documents_fts WHERE rowid = old.rid;
END;
CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE OF body ON documents BEGIN
    DELETE FROM documents_fts WHERE rowid = old.rid;
    INSERT INTO documents_fts(rowid, %[1]s) VALUES (new.rid, %[2]s);
END;
`, names, ftsValues("new", cols))
	return b.String()
}

// reindexFTS rebuilds documents_fts from the stored documents.
func reindexFTS(cols []string) string {
	return fmt.Sprintf(`DELETE FROM documents_fts;
INSERT INTO documents_fts(rowid, %s) SELECT d.rid, %s FROM documents d;`,
		quotedList(cols), ftsValues("d", cols))
}

// quotedList renders column names as quoted SQL identifiers.
func quotedList(cols []string) string {
	q := make([]string, len(cols))
	for i, c := range cols {
		q[i] = `"` + c + `"`
	}
	return strings.Join(q, ", ")
}
