package memory

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/gastown-labs/orchkernel/internal/util"
	_ "modernc.org/sqlite"
)

// SQLStore is the embedded-SQL backend (spec §4.D): an FTS5 virtual table
// kept in sync with the backing table via triggers, ranked with bm25() and
// falling back to a LIKE scan when the FTS query itself fails to parse.
// Grounded on nevindra-oasis/memory/sqlite's sql.Open("sqlite", path)
// wiring and on kdlbs-kandev's internal/db/sqlite.go schema-bootstrap style.
type SQLStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore opens (creating if needed) a SQLite-backed memory store.
func NewSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: serialize writers through one connection

	s := &SQLStore{db: db, path: path}
	if err := s.bootstrap(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) bootstrap() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			metadata TEXT,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (namespace, key)
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			namespace, key, value_text, metadata_text,
			content='memories', content_rowid='rowid'
		)`,
		`CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, namespace, key, value_text, metadata_text)
			VALUES (new.rowid, new.namespace, new.key, new.value, new.metadata);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, namespace, key, value_text, metadata_text)
			VALUES ('delete', old.rowid, old.namespace, old.key, old.value, old.metadata);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, namespace, key, value_text, metadata_text)
			VALUES ('delete', old.rowid, old.namespace, old.key, old.value, old.metadata);
			INSERT INTO memories_fts(rowid, namespace, key, value_text, metadata_text)
			VALUES (new.rowid, new.namespace, new.key, new.value, new.metadata);
		END`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("bootstrapping memory schema: %w", err)
		}
	}
	return nil
}

// Store upserts (namespace,key) via INSERT ... ON CONFLICT; the AFTER
// triggers keep memories_fts in sync automatically.
func (s *SQLStore) Store(namespace, key string, value, metadata any) error {
	ns := normalizeNamespace(namespace)
	valueRaw, err := marshalOrNull(value)
	if err != nil {
		return fmt.Errorf("marshaling value: %w", err)
	}
	metaRaw, err := marshalOrNull(metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	_, err = util.RetryWithContext(context.Background(), func() (sql.Result, error) {
		return s.db.Exec(
			`INSERT INTO memories (namespace, key, value, metadata, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(namespace, key) DO UPDATE SET value=excluded.value, metadata=excluded.metadata, updated_at=excluded.updated_at`,
			ns, key, string(valueRaw), string(metaRaw), time.Now().UTC().Unix(),
		)
	})
	if err != nil {
		return fmt.Errorf("storing %s/%s: %w", ns, key, err)
	}
	return nil
}

// Retrieve returns the record at (namespace,key), or nil if absent.
func (s *SQLStore) Retrieve(namespace, key string) (*Record, error) {
	ns := normalizeNamespace(namespace)
	row := s.db.QueryRow(`SELECT namespace, key, value, metadata, updated_at FROM memories WHERE namespace = ? AND key = ?`, ns, key)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retrieving %s/%s: %w", ns, key, err)
	}
	return rec, nil
}

// Delete removes (namespace,key); reports whether anything was deleted.
func (s *SQLStore) Delete(namespace, key string) (bool, error) {
	ns := normalizeNamespace(namespace)
	res, err := s.db.Exec(`DELETE FROM memories WHERE namespace = ? AND key = ?`, ns, key)
	if err != nil {
		return false, fmt.Errorf("deleting %s/%s: %w", ns, key, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListKeys returns every key in namespace, sorted ascending.
func (s *SQLStore) ListKeys(namespace string) ([]string, error) {
	ns := normalizeNamespace(namespace)
	rows, err := s.db.Query(`SELECT key FROM memories WHERE namespace = ? ORDER BY key ASC`, ns)
	if err != nil {
		return nil, fmt.Errorf("listing keys in %s: %w", ns, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ListNamespaces returns every distinct namespace with the given prefix,
// sorted ascending. The prefix is applied on the namespace column, never on
// an FTS query, to avoid escaping path separators (spec §4.D).
func (s *SQLStore) ListNamespaces(prefix string) ([]string, error) {
	prefix = strings.Trim(prefix, "/")
	rows, err := s.db.Query(`SELECT DISTINCT namespace FROM memories ORDER BY namespace ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing namespaces: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, err
		}
		if isDescendant(ns, prefix) {
			out = append(out, ns)
		}
	}
	return out, rows.Err()
}

// Search runs an FTS5 MATCH query scoped to namespace and its descendants,
// normalizing bm25() to (0,1] via 1/(1+|bm25|). If the FTS query itself
// fails (e.g. unescaped special characters in query), falls back to a LIKE
// scan at a flat 0.5 score (spec §4.D indexed-backend search semantics).
func (s *SQLStore) Search(namespace, query string, limit int) ([]SearchResult, error) {
	results, err := s.searchFTS(namespace, query, limit)
	if err == nil {
		return results, nil
	}
	return s.searchLike(namespace, query, limit)
}

func (s *SQLStore) searchFTS(namespace, query string, limit int) ([]SearchResult, error) {
	rows, err := s.db.Query(
		`SELECT m.namespace, m.key, m.value, m.metadata, m.updated_at, bm25(memories_fts) AS rank
		 FROM memories_fts
		 JOIN memories m ON m.rowid = memories_fts.rowid
		 WHERE memories_fts MATCH ?
		 ORDER BY rank`,
		query,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var ns, key, value, metadata string
		var updatedUnix int64
		var rank float64
		if err := rows.Scan(&ns, &key, &value, &metadata, &updatedUnix, &rank); err != nil {
			return nil, err
		}
		if !isDescendant(ns, namespace) {
			continue
		}
		rec := Record{
			Namespace: ns,
			Key:       key,
			Value:     []byte(value),
			Metadata:  []byte(metadata),
			UpdatedAt: time.Unix(updatedUnix, 0).UTC(),
		}
		score := 1.0 / (1.0 + math.Abs(rank))
		out = append(out, SearchResult{Record: rec, Score: score, MatchContext: matchContext(value, query, key)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SQLStore) searchLike(namespace, query string, limit int) ([]SearchResult, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.Query(
		`SELECT namespace, key, value, metadata, updated_at FROM memories
		 WHERE (value LIKE ? OR key LIKE ? OR metadata LIKE ?)
		 ORDER BY updated_at DESC`,
		pattern, pattern, pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("fallback LIKE search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var ns, key, value, metadata string
		var updatedUnix int64
		if err := rows.Scan(&ns, &key, &value, &metadata, &updatedUnix); err != nil {
			return nil, err
		}
		if !isDescendant(ns, namespace) {
			continue
		}
		rec := Record{
			Namespace: ns,
			Key:       key,
			Value:     []byte(value),
			Metadata:  []byte(metadata),
			UpdatedAt: time.Unix(updatedUnix, 0).UTC(),
		}
		out = append(out, SearchResult{Record: rec, Score: 0.5, MatchContext: matchContext(value, query, key)})
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, rows.Err()
}

// ClearNamespace deletes every record under namespace and its descendants,
// returning the count deleted.
func (s *SQLStore) ClearNamespace(namespace string) (int, error) {
	namespaces, err := s.ListNamespaces(namespace)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, ns := range namespaces {
		res, err := s.db.Exec(`DELETE FROM memories WHERE namespace = ?`, ns)
		if err != nil {
			return total, fmt.Errorf("clearing namespace %s: %w", ns, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	return total, nil
}

// Stats summarizes the store (spec §4.D get_stats).
func (s *SQLStore) Stats() (Stats, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM memories`).Scan(&total); err != nil {
		return Stats{}, fmt.Errorf("counting memories: %w", err)
	}

	rows, err := s.db.Query(`SELECT namespace, COUNT(*) AS c FROM memories GROUP BY namespace ORDER BY c DESC LIMIT 10`)
	if err != nil {
		return Stats{}, fmt.Errorf("counting namespaces: %w", err)
	}
	defer rows.Close()

	var top []NamespaceCount
	distinct := 0
	for rows.Next() {
		var nc NamespaceCount
		if err := rows.Scan(&nc.Namespace, &nc.Count); err != nil {
			return Stats{}, err
		}
		top = append(top, nc)
		distinct++
	}

	var total2 int
	if err := s.db.QueryRow(`SELECT COUNT(DISTINCT namespace) FROM memories`).Scan(&total2); err != nil {
		return Stats{}, fmt.Errorf("counting distinct namespaces: %w", err)
	}

	return Stats{
		TotalMemories:   total,
		TotalNamespaces: total2,
		TopNamespaces:   top,
		BackendPath:     s.path,
	}, nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func scanRecord(row *sql.Row) (*Record, error) {
	var ns, key, value, metadata string
	var updatedUnix int64
	if err := row.Scan(&ns, &key, &value, &metadata, &updatedUnix); err != nil {
		return nil, err
	}
	return &Record{
		Namespace: ns,
		Key:       key,
		Value:     []byte(value),
		Metadata:  []byte(metadata),
		UpdatedAt: time.Unix(updatedUnix, 0).UTC(),
	}, nil
}
