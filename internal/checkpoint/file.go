package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileCheckpointer is the file backend (spec §4.E): one JSON blob per
// checkpoint under dir, plus an index.json summarizing id/created_at/
// trigger/session_ids/has_registry for fast listing without reading every
// blob. Grounded on core/checkpointing.py's FileCheckpointer.
type FileCheckpointer struct {
	mu  sync.Mutex
	dir string
}

var _ Checkpointer = (*FileCheckpointer)(nil)

type indexEntry struct {
	CheckpointID string   `json:"checkpoint_id"`
	CreatedAt    string   `json:"created_at"`
	Trigger      string   `json:"trigger"`
	SessionIDs   []string `json:"session_ids"`
	HasRegistry  bool     `json:"has_registry"`
}

// NewFileCheckpointer creates a file-backed checkpoint store rooted at dir,
// creating the directory if needed.
func NewFileCheckpointer(dir string) (*FileCheckpointer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating checkpoint dir %s: %w", dir, err)
	}
	return &FileCheckpointer{dir: dir}, nil
}

func (f *FileCheckpointer) indexPath() string {
	return filepath.Join(f.dir, "index.json")
}

func (f *FileCheckpointer) checkpointPath(id string) string {
	return filepath.Join(f.dir, id+".json")
}

func (f *FileCheckpointer) loadIndex() ([]indexEntry, error) {
	raw, err := os.ReadFile(f.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []indexEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		// Corrupt index: rebuild from scratch rather than fail the caller.
		return nil, nil
	}
	return entries, nil
}

func (f *FileCheckpointer) saveIndex(entries []indexEntry) error {
	tmp := f.indexPath() + ".tmp"
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint index: %w", err)
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	return os.Rename(tmp, f.indexPath())
}

// Save writes checkpoint.json and updates the index (spec §4.E).
func (f *FileCheckpointer) Save(cp Checkpoint) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling checkpoint: %w", err)
	}
	tmp := f.checkpointPath(cp.CheckpointID) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return "", fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := os.Rename(tmp, f.checkpointPath(cp.CheckpointID)); err != nil {
		return "", fmt.Errorf("renaming checkpoint: %w", err)
	}

	entries, err := f.loadIndex()
	if err != nil {
		return "", err
	}
	entries = removeIndexEntry(entries, cp.CheckpointID)
	entries = append(entries, indexEntry{
		CheckpointID: cp.CheckpointID,
		CreatedAt:    cp.CreatedAt.Format(rfc3339),
		Trigger:      cp.Trigger,
		SessionIDs:   cp.SessionIDs(),
		HasRegistry:  cp.Registry != nil,
	})
	if err := f.saveIndex(entries); err != nil {
		return "", err
	}
	return cp.CheckpointID, nil
}

const rfc3339 = "2006-01-02T15:04:05.000000Z07:00"

func removeIndexEntry(entries []indexEntry, id string) []indexEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.CheckpointID != id {
			out = append(out, e)
		}
	}
	return out
}

// Load reads a checkpoint by id; a missing or corrupt blob returns
// (nil, nil), never an error, per spec §4.E's cache-miss failure policy.
func (f *FileCheckpointer) Load(id string) (*Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.checkpointPath(id))
	if err != nil {
		return nil, nil
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, nil
	}
	return &cp, nil
}

// List returns checkpoint metadata, newest first, optionally filtered by
// session membership.
func (f *FileCheckpointer) List(sessionID string, limit int) ([]Metadata, error) {
	f.mu.Lock()
	entries, err := f.loadIndex()
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt > entries[j].CreatedAt })

	var out []Metadata
	for _, e := range entries {
		if sessionID != "" && !containsStr(e.SessionIDs, sessionID) {
			continue
		}
		createdAt, _ := parseTime(e.CreatedAt)
		out = append(out, Metadata{
			CheckpointID: e.CheckpointID,
			CreatedAt:    createdAt,
			Trigger:      e.Trigger,
			SessionIDs:   e.SessionIDs,
			HasRegistry:  e.HasRegistry,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Delete removes a checkpoint's blob and index entry.
func (f *FileCheckpointer) Delete(id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.loadIndex()
	if err != nil {
		return false, err
	}
	before := len(entries)
	entries = removeIndexEntry(entries, id)
	if len(entries) == before {
		return false, nil
	}
	if err := f.saveIndex(entries); err != nil {
		return false, err
	}
	_ = os.Remove(f.checkpointPath(id))
	return true, nil
}

// Latest returns the most recent checkpoint, optionally filtered by
// session, or nil if none exist.
func (f *FileCheckpointer) Latest(sessionID string) (*Checkpoint, error) {
	entries, err := f.List(sessionID, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return f.Load(entries[0].CheckpointID)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(rfc3339, s)
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
