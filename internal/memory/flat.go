package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// FlatStore is the flat-file backend (spec §4.D): every mutation rewrites
// the whole document to disk, grounded on the teacher's atomic
// write-tmp-then-rename pattern used throughout internal/registry.
type FlatStore struct {
	mu   sync.RWMutex
	path string
	// namespace -> key -> record
	data map[string]map[string]Record
}

var _ Store = (*FlatStore)(nil)

type flatDoc struct {
	Namespaces map[string]map[string]Record `json:"namespaces"`
}

// NewFlatStore opens (or creates) a flat-file store at path. An empty path
// keeps everything in memory only, which is useful for tests.
func NewFlatStore(path string) (*FlatStore, error) {
	s := &FlatStore{path: path, data: make(map[string]map[string]Record)}
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return s, nil
	}
	var doc flatDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if doc.Namespaces != nil {
		s.data = doc.Namespaces
	}
	return s, nil
}

func (s *FlatStore) persistLocked() error {
	if s.path == "" {
		return nil
	}
	doc := flatDoc{Namespaces: s.data}
	tmp := s.path + ".tmp"
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling memory store: %w", err)
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}

// Store upserts (namespace,key), bumping UpdatedAt (spec §4.D).
func (s *FlatStore) Store(namespace, key string, value, metadata any) error {
	ns := normalizeNamespace(namespace)
	valueRaw, err := marshalOrNull(value)
	if err != nil {
		return fmt.Errorf("marshaling value: %w", err)
	}
	metaRaw, err := marshalOrNull(metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.data[ns]
	if !ok {
		bucket = make(map[string]Record)
		s.data[ns] = bucket
	}
	bucket[key] = Record{
		Namespace: ns,
		Key:       key,
		Value:     valueRaw,
		Metadata:  metaRaw,
		UpdatedAt: time.Now().UTC(),
	}
	return s.persistLocked()
}

// Retrieve returns the record at (namespace,key), or nil if absent.
func (s *FlatStore) Retrieve(namespace, key string) (*Record, error) {
	ns := normalizeNamespace(namespace)
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.data[ns]
	if !ok {
		return nil, nil
	}
	rec, ok := bucket[key]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

// Delete removes (namespace,key); reports whether anything was deleted.
func (s *FlatStore) Delete(namespace, key string) (bool, error) {
	ns := normalizeNamespace(namespace)
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.data[ns]
	if !ok {
		return false, nil
	}
	if _, ok := bucket[key]; !ok {
		return false, nil
	}
	delete(bucket, key)
	if len(bucket) == 0 {
		delete(s.data, ns)
	}
	return true, s.persistLocked()
}

// ListKeys returns every key in namespace, sorted ascending.
func (s *FlatStore) ListKeys(namespace string) ([]string, error) {
	ns := normalizeNamespace(namespace)
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.data[ns]
	keys := make([]string, 0, len(bucket))
	for k := range bucket {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// ListNamespaces returns every namespace with the given prefix, sorted.
func (s *FlatStore) ListNamespaces(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for ns := range s.data {
		if isDescendant(ns, prefix) {
			out = append(out, ns)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Search performs a case-insensitive substring search across key,
// JSON-stringified value, and JSON-stringified metadata, under namespace
// and every descendant namespace (spec §4.D flat-backend search semantics).
func (s *FlatStore) Search(namespace, query string, limit int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	var results []SearchResult
	for ns, bucket := range s.data {
		if !isDescendant(ns, namespace) {
			continue
		}
		for _, rec := range bucket {
			valueText := string(rec.Value)
			metaText := string(rec.Metadata)

			var score float64
			var context string
			switch {
			case strings.Contains(strings.ToLower(valueText), q):
				score = 1.0
				context = matchContext(valueText, query, rec.Key)
			case strings.Contains(strings.ToLower(rec.Key), q):
				score = 0.8
				context = rec.Key
			case strings.Contains(strings.ToLower(metaText), q):
				score = 0.6
				context = matchContext(metaText, query, rec.Key)
			default:
				continue
			}
			results = append(results, SearchResult{Record: rec, Score: score, MatchContext: context})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.UpdatedAt.After(results[j].Record.UpdatedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ClearNamespace deletes every record under namespace and its descendants,
// returning the count deleted.
func (s *FlatStore) ClearNamespace(namespace string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for ns, bucket := range s.data {
		if isDescendant(ns, namespace) {
			count += len(bucket)
			delete(s.data, ns)
		}
	}
	return count, s.persistLocked()
}

// Stats summarizes the store (spec §4.D get_stats).
func (s *FlatStore) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make([]NamespaceCount, 0, len(s.data))
	total := 0
	for ns, bucket := range s.data {
		counts = append(counts, NamespaceCount{Namespace: ns, Count: len(bucket)})
		total += len(bucket)
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })
	if len(counts) > 10 {
		counts = counts[:10]
	}
	return Stats{
		TotalMemories:   total,
		TotalNamespaces: len(s.data),
		TopNamespaces:   counts,
		BackendPath:     s.path,
	}, nil
}

// Close is a no-op: every write already flushes to disk.
func (s *FlatStore) Close() error { return nil }
