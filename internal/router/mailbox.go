package router

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gastown-labs/orchkernel/internal/terminal"
)

// Mailbox is a per-pane, directory-backed FIFO inbox for messages a
// transport couldn't deliver synchronously (e.g. a pane that was busy when
// a BroadcastNotification fired). Each queued message is one JSON file
// named by nanosecond timestamp, so directory listing order is delivery
// order. Grounded on internal/nudge's queue-directory pattern, generalized
// from a gastown-session nudge queue to an arbitrary pane's router inbox.
type Mailbox struct {
	dir string
}

// NewMailbox opens (creating if needed) the mailbox directory rooted at
// dataDir/inbox.
func NewMailbox(dataDir string) *Mailbox {
	return &Mailbox{dir: filepath.Join(dataDir, "inbox")}
}

func (m *Mailbox) paneDir(pane terminal.PaneHandle) string {
	safe := strings.ReplaceAll(string(pane), "/", "_")
	return filepath.Join(m.dir, safe)
}

// queuedEnvelope is the on-disk shape: the message's type tag plus its raw,
// self-describing JSON body (carrying its own "_type" discriminator), so
// Drain can reconstruct the original typed Message via Message().
type queuedEnvelope struct {
	Type     string          `json:"type"`
	Body     json.RawMessage `json:"body"`
	QueuedAt time.Time       `json:"queued_at"`
}

// Message reconstructs the typed Message this entry queued, via the
// router's _type-discriminated codec.
func (qe queuedEnvelope) Message() (Message, error) {
	return Unmarshal(qe.Body)
}

// Enqueue writes msg to pane's inbox directory.
func (m *Mailbox) Enqueue(pane terminal.PaneHandle, msg Message) error {
	dir := m.paneDir(pane)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating mailbox dir: %w", err)
	}

	body, err := Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}
	entry := queuedEnvelope{Type: msg.Type(), Body: body, QueuedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling mailbox entry: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%d.json", time.Now().UnixNano()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing mailbox entry: %w", err)
	}
	return nil
}

// Pending returns the raw queued entries for pane, in FIFO order, without
// removing them.
func (m *Mailbox) Pending(pane terminal.PaneHandle) ([]queuedEnvelope, error) {
	dir := m.paneDir(pane)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading mailbox dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []queuedEnvelope
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var qe queuedEnvelope
		if err := json.Unmarshal(data, &qe); err != nil {
			continue
		}
		out = append(out, qe)
	}
	return out, nil
}

// Drain reads and removes every queued entry for pane, returning them in
// FIFO order. Malformed entries are skipped and their files removed rather
// than aborting the drain.
func (m *Mailbox) Drain(pane terminal.PaneHandle) ([]queuedEnvelope, error) {
	dir := m.paneDir(pane)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading mailbox dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []queuedEnvelope
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var qe queuedEnvelope
		if err := json.Unmarshal(data, &qe); err != nil {
			_ = os.Remove(path)
			continue
		}
		out = append(out, qe)
		_ = os.Remove(path)
	}
	return out, nil
}
