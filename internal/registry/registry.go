// Package registry implements the Agent & Team Registry (spec §4.B): CRUD
// over agents and teams, message deduplication, and cascading message
// resolution, persisted to JSON-lines journals: the agents and teams
// journals are rewritten whole on each mutation, the messages journal is
// append-only.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gastown-labs/orchkernel/internal/constants"
	"github.com/gastown-labs/orchkernel/internal/exitcode"
	"github.com/gastown-labs/orchkernel/internal/terminal"
	"github.com/gofrs/flock"
)

// Agent is a logical actor bound to exactly one pane (spec §3).
type Agent struct {
	Name      string              `json:"name"`
	PaneID    terminal.PaneHandle `json:"pane_id"`
	Teams     []string            `json:"teams"`
	CreatedAt time.Time           `json:"created_at"`
	Metadata  map[string]string   `json:"metadata"`
	// Seq is the registration sequence number, assigned monotonically by
	// Register and persisted alongside the agent so team insertion order
	// survives a reload (spec §4.A: team targets resolve to the first
	// member in insertion order).
	Seq uint64 `json:"seq"`
}

// Team is a named group of agents, optionally nested under a parent team.
type Team struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ParentTeam  string    `json:"parent_team,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// MessageRecord is a dedup entry: a content hash paired with the recipients
// it has already been delivered to (spec §3).
type MessageRecord struct {
	ContentHash string    `json:"content_hash"`
	Recipients  []string  `json:"recipients"`
	Timestamp   time.Time `json:"timestamp"`
}

// CascadingMessage is the three-layer broadcast/team/agent message spec
// (spec §3); most-specific wins.
type CascadingMessage struct {
	Broadcast string
	Teams     map[string]string
	Agents    map[string]string
}

// LockNotifier is the pluggable hook the registry calls when an agent is
// removed, so an attached lock manager can drop that agent's locks
// (spec §4.B: "pluggable; absent in stand-alone mode").
type LockNotifier interface {
	ReleaseByAgent(agent string)
}

// State is the full snapshot save_state/load_state and the Checkpoint
// Manager operate on (spec §4.B, §4.E).
type State struct {
	Agents     []Agent         `json:"agents"`
	Teams      []Team          `json:"teams"`
	Messages   []MessageRecord `json:"messages"`
	ActivePane string          `json:"active_pane"`
}

// Registry is the Agent & Team Registry.
type Registry struct {
	mu sync.RWMutex

	agents map[string]*Agent
	teams  map[string]*Team

	messages     []MessageRecord
	historyCap   int
	activePane   terminal.PaneHandle
	lockNotifier LockNotifier
	nextSeq      uint64

	dataDir string
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithLockNotifier attaches a lock manager to be notified on agent removal.
func WithLockNotifier(n LockNotifier) Option {
	return func(r *Registry) { r.lockNotifier = n }
}

// WithHistoryCapacity overrides the default message-history FIFO capacity.
func WithHistoryCapacity(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.historyCap = n
		}
	}
}

// New creates an empty, in-memory Registry rooted at dataDir for
// persistence. dataDir may be empty for a stand-alone, non-persistent
// registry (tests, dry runs).
func New(dataDir string, opts ...Option) *Registry {
	r := &Registry{
		agents:     make(map[string]*Agent),
		teams:      make(map[string]*Team),
		historyCap: constants.DefaultMessageHistoryCapacity,
		dataDir:    dataDir,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ==================== Agents ====================

// Register upserts an agent: the newest registration wins (spec §4.B).
func (r *Registry) Register(name string, pane terminal.PaneHandle, teams []string, metadata map[string]string) (Agent, error) {
	if strings.TrimSpace(name) == "" {
		return Agent{}, exitcode.InvalidArgs("agent name must not be empty")
	}

	r.mu.Lock()
	r.nextSeq++
	a := &Agent{
		Name:      name,
		PaneID:    pane,
		Teams:     append([]string(nil), teams...),
		CreatedAt: time.Now().UTC(),
		Metadata:  cloneMetadata(metadata),
		Seq:       r.nextSeq,
	}
	r.agents[name] = a
	r.mu.Unlock()

	if err := r.saveAgents(); err != nil {
		return *a, exitcode.PersistFailed("agents", err)
	}
	return *a, nil
}

// GetAgent looks up an agent by name.
func (r *Registry) GetAgent(name string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	if !ok {
		return Agent{}, false
	}
	return *a, true
}

// GetAgentByPane looks up an agent by its bound pane.
func (r *Registry) GetAgentByPane(pane terminal.PaneHandle) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.PaneID == pane {
			return *a, true
		}
	}
	return Agent{}, false
}

// RemoveAgent deletes an agent, releasing any locks it holds via the
// attached LockNotifier (spec §3: "removing an agent releases all locks
// it holds").
func (r *Registry) RemoveAgent(name string) (bool, error) {
	r.mu.Lock()
	_, existed := r.agents[name]
	if existed {
		delete(r.agents, name)
	}
	notifier := r.lockNotifier
	r.mu.Unlock()

	if !existed {
		return false, nil
	}
	if notifier != nil {
		notifier.ReleaseByAgent(name)
	}
	if err := r.saveAgents(); err != nil {
		return true, exitcode.PersistFailed("agents", err)
	}
	return true, nil
}

// ListAgents returns agents, optionally filtered to one team's members,
// sorted by name for deterministic iteration.
func (r *Registry) ListAgents(team string) []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		if team != "" && !containsString(a.Teams, team) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MembersInOrder returns a team's agents sorted by registration order
// rather than name (spec §4.A: team targets resolve to the first member
// in insertion order). team == "" returns every agent in insertion order.
func (r *Registry) MembersInOrder(team string) []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		if team != "" && !containsString(a.Teams, team) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// AssignToTeam adds an agent to a team's membership.
func (r *Registry) AssignToTeam(agent, team string) (bool, error) {
	r.mu.Lock()
	a, ok := r.agents[agent]
	if !ok {
		r.mu.Unlock()
		return false, exitcode.AgentNotFound(agent)
	}
	if !containsString(a.Teams, team) {
		a.Teams = append(a.Teams, team)
	}
	r.mu.Unlock()

	if err := r.saveAgents(); err != nil {
		return true, exitcode.PersistFailed("agents", err)
	}
	return true, nil
}

// RemoveFromTeam removes an agent from a team's membership.
func (r *Registry) RemoveFromTeam(agent, team string) (bool, error) {
	r.mu.Lock()
	a, ok := r.agents[agent]
	if !ok {
		r.mu.Unlock()
		return false, exitcode.AgentNotFound(agent)
	}
	a.Teams = removeString(a.Teams, team)
	r.mu.Unlock()

	if err := r.saveAgents(); err != nil {
		return true, exitcode.PersistFailed("agents", err)
	}
	return true, nil
}

// ==================== Teams ====================

// CreateTeam creates a team. parent must already exist if non-empty, and
// inserting it must not introduce a cycle (spec §3).
func (r *Registry) CreateTeam(name, description, parent string) (Team, error) {
	if strings.TrimSpace(name) == "" {
		return Team{}, exitcode.InvalidArgs("team name must not be empty")
	}

	r.mu.Lock()
	if parent != "" {
		if _, ok := r.teams[parent]; !ok {
			r.mu.Unlock()
			return Team{}, exitcode.TeamNotFound(parent)
		}
		if r.wouldCycle(name, parent) {
			r.mu.Unlock()
			return Team{}, exitcode.InvalidArgsf("team %q as child of %q would create a cycle", name, parent)
		}
	}

	t := &Team{Name: name, Description: description, ParentTeam: parent, CreatedAt: time.Now().UTC()}
	r.teams[name] = t
	r.mu.Unlock()

	if err := r.saveTeams(); err != nil {
		return *t, exitcode.PersistFailed("teams", err)
	}
	return *t, nil
}

// wouldCycle reports whether setting name's parent to parent would create a
// cycle, walking the existing parent chain with revisit protection (spec
// §4.B: "traversal stops on revisit"). Caller holds r.mu.
func (r *Registry) wouldCycle(name, parent string) bool {
	seen := map[string]bool{name: true}
	cur := parent
	for cur != "" {
		if seen[cur] {
			return true
		}
		seen[cur] = true
		t, ok := r.teams[cur]
		if !ok {
			return false
		}
		cur = t.ParentTeam
	}
	return false
}

// GetTeam looks up a team by name.
func (r *Registry) GetTeam(name string) (Team, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.teams[name]
	if !ok {
		return Team{}, false
	}
	return *t, true
}

// RemoveTeam deletes a team and scrubs it from every agent's membership
// list (spec §3, testable property 2).
func (r *Registry) RemoveTeam(name string) (bool, error) {
	r.mu.Lock()
	_, existed := r.teams[name]
	if existed {
		delete(r.teams, name)
		for _, a := range r.agents {
			a.Teams = removeString(a.Teams, name)
		}
	}
	r.mu.Unlock()

	if !existed {
		return false, nil
	}
	if err := r.saveTeams(); err != nil {
		return true, exitcode.PersistFailed("teams", err)
	}
	if err := r.saveAgents(); err != nil {
		return true, exitcode.PersistFailed("agents", err)
	}
	return true, nil
}

// ListTeams returns every team, sorted by name.
func (r *Registry) ListTeams() []Team {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Team, 0, len(r.teams))
	for _, t := range r.teams {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ChildTeams returns every team whose parent is the given team.
func (r *Registry) ChildTeams(parent string) []Team {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Team
	for _, t := range r.teams {
		if t.ParentTeam == parent {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Hierarchy returns the chain from the top-most parent down to team,
// inclusive, protecting against a corrupt load introducing a cycle by
// stopping on revisit (spec §4.B invariant).
func (r *Registry) Hierarchy(team string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var chain []string
	seen := map[string]bool{}
	cur := team
	for cur != "" && !seen[cur] {
		seen[cur] = true
		chain = append([]string{cur}, chain...)
		t, ok := r.teams[cur]
		if !ok {
			break
		}
		cur = t.ParentTeam
	}
	return chain
}

// ==================== Active pane ====================

// ActivePane returns the registry's current active pane.
func (r *Registry) ActivePane() terminal.PaneHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activePane
}

// SetActivePane sets the registry's active pane.
func (r *Registry) SetActivePane(pane terminal.PaneHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activePane = pane
}

// ActiveAgent derives the agent bound to the active pane, if any.
func (r *Registry) ActiveAgent() (Agent, bool) {
	active := r.ActivePane()
	if active == "" {
		return Agent{}, false
	}
	return r.GetAgentByPane(active)
}

// ==================== Message deduplication ====================

func hashMessage(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// WasSent reports whether content was already recorded as sent to recipient.
func (r *Registry) WasSent(content, recipient string) bool {
	hash := hashMessage(content)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.messages {
		if rec.ContentHash == hash && containsString(rec.Recipients, recipient) {
			return true
		}
	}
	return false
}

// RecordSent appends a dedup entry, evicting the oldest entry once the
// history cap is exceeded (spec §3: "bounded FIFO... eviction oldest-first").
func (r *Registry) RecordSent(content string, recipients []string) error {
	rec := MessageRecord{
		ContentHash: hashMessage(content),
		Recipients:  append([]string(nil), recipients...),
		Timestamp:   time.Now().UTC(),
	}

	r.mu.Lock()
	r.messages = append(r.messages, rec)
	if len(r.messages) > r.historyCap {
		r.messages = r.messages[len(r.messages)-r.historyCap:]
	}
	r.mu.Unlock()

	if err := r.appendMessage(rec); err != nil {
		return exitcode.PersistFailed("messages", err)
	}
	return nil
}

// FilterUnsent returns the subset of recipients that have never received
// content (matched by content hash).
func (r *Registry) FilterUnsent(content string, recipients []string) []string {
	hash := hashMessage(content)
	r.mu.RLock()
	already := map[string]bool{}
	for _, rec := range r.messages {
		if rec.ContentHash == hash {
			for _, recip := range rec.Recipients {
				already[recip] = true
			}
		}
	}
	r.mu.RUnlock()

	var out []string
	for _, recip := range recipients {
		if !already[recip] {
			out = append(out, recip)
		}
	}
	return out
}

// RecentMessages returns up to limit of the most recently recorded dedup
// entries.
func (r *Registry) RecentMessages(limit int) []MessageRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.messages) {
		limit = len(r.messages)
	}
	start := len(r.messages) - limit
	out := make([]MessageRecord, limit)
	copy(out, r.messages[start:])
	return out
}

// ==================== Cascading messages ====================

// ResolveCascade implements the deterministic cascade-resolution algorithm
// (spec §4.B): broadcast, then team overlays, then per-agent overrides,
// inverted into text -> sorted agent names.
func (r *Registry) ResolveCascade(cascade CascadingMessage) map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chosen := make(map[string]string)

	if cascade.Broadcast != "" {
		for name := range r.agents {
			chosen[name] = cascade.Broadcast
		}
	}

	for teamName, text := range cascade.Teams {
		for _, a := range r.agents {
			if containsString(a.Teams, teamName) {
				chosen[a.Name] = text
			}
		}
	}

	for agentName, text := range cascade.Agents {
		if _, ok := r.agents[agentName]; ok {
			chosen[agentName] = text
		}
	}

	result := make(map[string][]string)
	for agent, text := range chosen {
		result[text] = append(result[text], agent)
	}
	for text := range result {
		sort.Strings(result[text])
	}
	return result
}

// ==================== Lifecycle (checkpoint support) ====================

// SaveState snapshots the registry's in-memory state.
func (r *Registry) SaveState() State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := State{ActivePane: string(r.activePane)}
	for _, a := range r.agents {
		s.Agents = append(s.Agents, *a)
	}
	for _, t := range r.teams {
		s.Teams = append(s.Teams, *t)
	}
	s.Messages = append(s.Messages, r.messages...)
	sort.Slice(s.Agents, func(i, j int) bool { return s.Agents[i].Name < s.Agents[j].Name })
	sort.Slice(s.Teams, func(i, j int) bool { return s.Teams[i].Name < s.Teams[j].Name })
	return s
}

// LoadState atomically replaces the in-memory state and rewrites the
// journals (spec §4.B).
func (r *Registry) LoadState(s State) error {
	r.mu.Lock()
	r.agents = make(map[string]*Agent, len(s.Agents))
	for i := range s.Agents {
		a := s.Agents[i]
		r.agents[a.Name] = &a
		if a.Seq > r.nextSeq {
			r.nextSeq = a.Seq
		}
	}
	r.teams = make(map[string]*Team, len(s.Teams))
	for i := range s.Teams {
		t := s.Teams[i]
		r.teams[t.Name] = &t
	}
	r.messages = append([]MessageRecord(nil), s.Messages...)
	r.activePane = terminal.PaneHandle(s.ActivePane)
	r.mu.Unlock()

	if err := r.saveAgents(); err != nil {
		return exitcode.PersistFailed("agents", err)
	}
	if err := r.saveTeams(); err != nil {
		return exitcode.PersistFailed("teams", err)
	}
	if err := r.rewriteMessages(); err != nil {
		return exitcode.PersistFailed("messages", err)
	}
	return nil
}

// ==================== Persistence ====================

func (r *Registry) journalPath(name string) string {
	if r.dataDir == "" {
		return ""
	}
	return filepath.Join(r.dataDir, name)
}

// withJournalLock serializes cross-process access to a journal file using a
// sibling ".lock" file (gofrs/flock), the way the registry journal writer
// is specified to in SPEC_FULL.md's ambient-stack section.
func withJournalLock(path string, fn func() error) error {
	if path == "" {
		return fn()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	fl := flock.New(path + ".lock")
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquiring journal lock: %w", err)
	}
	defer fl.Unlock()
	return fn()
}

func (r *Registry) saveAgents() error {
	path := r.journalPath(constants.AgentsJournalFile)
	if path == "" {
		return nil
	}
	agents := r.ListAgents("")
	return withJournalLock(path, func() error {
		return rewriteJSONL(path, agents)
	})
}

func (r *Registry) saveTeams() error {
	path := r.journalPath(constants.TeamsJournalFile)
	if path == "" {
		return nil
	}
	teams := r.ListTeams()
	return withJournalLock(path, func() error {
		return rewriteJSONL(path, teams)
	})
}

func (r *Registry) appendMessage(rec MessageRecord) error {
	path := r.journalPath(constants.MessagesJournalFile)
	if path == "" {
		return nil
	}
	return withJournalLock(path, func() error {
		return appendJSONL(path, rec)
	})
}

func (r *Registry) rewriteMessages() error {
	path := r.journalPath(constants.MessagesJournalFile)
	if path == "" {
		return nil
	}
	msgs := r.RecentMessages(0)
	return withJournalLock(path, func() error {
		return rewriteJSONL(path, msgs)
	})
}

// Load replays the agents/teams/messages journals at startup. A malformed
// line is skipped with a logged warning rather than aborting the load
// (spec §4.B corruption policy).
func (r *Registry) Load() error {
	agents, err := loadJSONL[Agent](r.journalPath(constants.AgentsJournalFile))
	if err != nil {
		return fmt.Errorf("loading agents journal: %w", err)
	}
	teams, err := loadJSONL[Team](r.journalPath(constants.TeamsJournalFile))
	if err != nil {
		return fmt.Errorf("loading teams journal: %w", err)
	}
	messages, err := loadJSONL[MessageRecord](r.journalPath(constants.MessagesJournalFile))
	if err != nil {
		return fmt.Errorf("loading messages journal: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = make(map[string]*Agent, len(agents))
	for i := range agents {
		a := agents[i]
		r.agents[a.Name] = &a
		if a.Seq > r.nextSeq {
			r.nextSeq = a.Seq
		}
	}
	r.teams = make(map[string]*Team, len(teams))
	for i := range teams {
		t := teams[i]
		r.teams[t.Name] = &t
	}
	r.messages = messages
	if len(r.messages) > r.historyCap {
		r.messages = r.messages[len(r.messages)-r.historyCap:]
	}
	return nil
}

// --- JSONL helpers ---

func rewriteJSONL[T any](path string, items []T) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", tmp, err)
	}
	enc := json.NewEncoder(f)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			f.Close()
			return fmt.Errorf("encoding entry: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}

func appendJSONL[T any](path string, item T) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	return enc.Encode(item)
}

func loadJSONL[T any](path string) ([]T, error) {
	var out []T
	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var item T
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			// Corruption policy: skip the malformed line and keep loading.
			fmt.Fprintf(os.Stderr, "registry: skipping malformed journal line in %s: %v\n", path, err)
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
