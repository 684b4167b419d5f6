// Package memory implements the Cross-agent Memory Store (spec §4.D): a
// namespaced key-value store with substring and full-text search, with two
// interchangeable backends. Grounded on core/memory.py from the
// pre-distillation original and on nevindra-oasis/memory/sqlite's
// modernc.org/sqlite wiring pattern.
package memory

import (
	"encoding/json"
	"strings"
	"time"
)

// Record is one stored memory entry.
type Record struct {
	Namespace string          `json:"namespace"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SearchResult pairs a Record with a ranked score and a snippet of context
// showing where the match occurred.
type SearchResult struct {
	Record       Record  `json:"record"`
	Score        float64 `json:"score"`
	MatchContext string  `json:"match_context"`
}

// NamespaceCount is one entry of Stats.TopNamespaces.
type NamespaceCount struct {
	Namespace string `json:"namespace"`
	Count     int    `json:"count"`
}

// Stats summarizes store-wide counts (spec §4.D get_stats).
type Stats struct {
	TotalMemories   int              `json:"total_memories"`
	TotalNamespaces int              `json:"total_namespaces"`
	TopNamespaces   []NamespaceCount `json:"top_namespaces"`
	BackendPath     string           `json:"backend_path"`
}

// Store is the contract both backends satisfy (spec §4.D).
type Store interface {
	Store(namespace, key string, value, metadata any) error
	Retrieve(namespace, key string) (*Record, error)
	Delete(namespace, key string) (bool, error)
	ListKeys(namespace string) ([]string, error)
	ListNamespaces(prefix string) ([]string, error)
	Search(namespace, query string, limit int) ([]SearchResult, error)
	ClearNamespace(namespace string) (int, error)
	Stats() (Stats, error)
	Close() error
}

// normalizeNamespace trims surrounding slashes and collapses an empty
// namespace to root ("/"), per spec §4.D's "/"-joined path encoding.
func normalizeNamespace(ns string) string {
	ns = strings.Trim(ns, "/")
	if ns == "" {
		return "/"
	}
	return ns
}

// isDescendant reports whether ns is prefix or a descendant of prefix under
// "/" path semantics (prefix "" or "/" matches everything).
func isDescendant(ns, prefix string) bool {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return true
	}
	ns = strings.Trim(ns, "/")
	if ns == prefix {
		return true
	}
	return strings.HasPrefix(ns, prefix+"/")
}

func marshalOrNull(v any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("null"), nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// matchContext returns a +-30-char window around the first case-insensitive
// occurrence of query in text, or fallback if no occurrence is found (spec
// §4.D flat-backend search semantics).
func matchContext(text, query, fallback string) string {
	idx := strings.Index(strings.ToLower(text), strings.ToLower(query))
	if idx < 0 {
		return fallback
	}
	const window = 30
	start := idx - window
	if start < 0 {
		start = 0
	}
	end := idx + len(query) + window
	if end > len(text) {
		end = len(text)
	}
	snippet := text[start:end]
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(text) {
		snippet = snippet + "..."
	}
	return snippet
}
