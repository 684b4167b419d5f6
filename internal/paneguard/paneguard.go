// Package paneguard implements the Tag / Lock / Focus-cooldown manager
// (spec §4.C): three orthogonal, O(1), non-blocking facilities keyed by
// pane id. Grounded directly on core/tags.py's FocusCooldownManager and
// SessionTagLockManager from the pre-distillation original.
package paneguard

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gastown-labs/orchkernel/internal/constants"
	"github.com/gastown-labs/orchkernel/internal/terminal"
)

// Guard bundles tag, lock, and focus-cooldown state for the same pane-id
// key space, mirroring SessionTagLockManager + FocusCooldownManager being
// constructed and used together throughout the original.
type Guard struct {
	tagsMu sync.Mutex
	tags   map[terminal.PaneHandle]map[string]struct{}

	locksMu sync.Mutex
	locks   map[terminal.PaneHandle]string

	cooldownMu      sync.Mutex
	cooldown        time.Duration
	lastFocusTime   time.Time
	hasLastFocus    bool
	lastFocusPane   terminal.PaneHandle
	lastFocusAgent  string

	now func() time.Time
}

// New creates a Guard with the given focus cooldown. A zero duration uses
// the package default (spec: 5s).
func New(cooldown time.Duration) *Guard {
	if cooldown <= 0 {
		cooldown = constants.DefaultFocusCooldown
	}
	return &Guard{
		tags:     make(map[terminal.PaneHandle]map[string]struct{}),
		locks:    make(map[terminal.PaneHandle]string),
		cooldown: cooldown,
		now:      time.Now,
	}
}

// ==================== Tags ====================

func normalizeTags(tags []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			out[t] = struct{}{}
		}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SetTags sets or appends tags for a pane. append=false with an empty or
// all-blank tags list clears the pane's tags entirely (spec §4.C:
// "replace-with-empty means clear").
func (g *Guard) SetTags(pane terminal.PaneHandle, tags []string, appendTags bool) []string {
	normalized := normalizeTags(tags)

	g.tagsMu.Lock()
	defer g.tagsMu.Unlock()

	if len(normalized) == 0 && !appendTags {
		delete(g.tags, pane)
		return nil
	}

	if appendTags {
		existing := g.tags[pane]
		if existing == nil {
			existing = make(map[string]struct{})
		}
		for t := range normalized {
			existing[t] = struct{}{}
		}
		g.tags[pane] = existing
	} else {
		g.tags[pane] = normalized
	}

	return sortedKeys(g.tags[pane])
}

// RemoveTags removes specific tags from a pane.
func (g *Guard) RemoveTags(pane terminal.PaneHandle, tags []string) []string {
	g.tagsMu.Lock()
	defer g.tagsMu.Unlock()

	existing, ok := g.tags[pane]
	if !ok {
		return nil
	}
	toRemove := normalizeTags(tags)
	for t := range toRemove {
		delete(existing, t)
	}
	if len(existing) == 0 {
		delete(g.tags, pane)
		return nil
	}
	g.tags[pane] = existing
	return sortedKeys(existing)
}

// GetTags returns a pane's current tags, sorted.
func (g *Guard) GetTags(pane terminal.PaneHandle) []string {
	g.tagsMu.Lock()
	defer g.tagsMu.Unlock()
	return sortedKeys(g.tags[pane])
}

// ==================== Locks ====================

// Lock acquires an exclusive write lock on pane for agent. Returns
// (true, agent) if the pane was unlocked or already owned by agent;
// otherwise (false, currentOwner) (spec §4.C, testable property 5).
func (g *Guard) Lock(pane terminal.PaneHandle, agent string) (acquired bool, owner string) {
	g.locksMu.Lock()
	defer g.locksMu.Unlock()

	current, locked := g.locks[pane]
	if !locked || current == agent {
		g.locks[pane] = agent
		return true, agent
	}
	return false, current
}

// Unlock releases a pane's lock. Succeeds if the pane is unlocked, if
// agent matches the current owner, or if agent is empty (admin override).
func (g *Guard) Unlock(pane terminal.PaneHandle, agent string) bool {
	g.locksMu.Lock()
	defer g.locksMu.Unlock()

	owner, locked := g.locks[pane]
	if !locked {
		return true
	}
	if agent == "" || agent == owner {
		delete(g.locks, pane)
		return true
	}
	return false
}

// IsLocked reports whether a pane currently has a lock owner.
func (g *Guard) IsLocked(pane terminal.PaneHandle) bool {
	g.locksMu.Lock()
	defer g.locksMu.Unlock()
	_, ok := g.locks[pane]
	return ok
}

// LockOwner returns the current lock owner for a pane, or "" if unlocked.
func (g *Guard) LockOwner(pane terminal.PaneHandle) string {
	g.locksMu.Lock()
	defer g.locksMu.Unlock()
	return g.locks[pane]
}

// ReleaseByAgent releases every lock held by agent. Satisfies
// registry.LockNotifier so the registry can call this on agent removal.
func (g *Guard) ReleaseByAgent(agent string) {
	g.locksMu.Lock()
	defer g.locksMu.Unlock()
	for pane, owner := range g.locks {
		if owner == agent {
			delete(g.locks, pane)
		}
	}
}

// CheckWrite reports whether requester may write to pane: allowed iff
// unlocked or requester is the current owner.
func (g *Guard) CheckWrite(pane terminal.PaneHandle, requester string) (allowed bool, owner string) {
	g.locksMu.Lock()
	defer g.locksMu.Unlock()
	current, locked := g.locks[pane]
	if !locked {
		return true, ""
	}
	if requester != "" && requester == current {
		return true, current
	}
	return false, current
}

// ==================== Focus cooldown ====================

// CheckFocus implements check(pane, agent) (spec §4.C, testable property 6):
// allowed if there's no prior focus, if the cooldown has elapsed, if the
// request is from the same agent, or if it's refocusing the same pane.
func (g *Guard) CheckFocus(pane terminal.PaneHandle, agent string) (allowed bool, blocker string, remaining time.Duration) {
	g.cooldownMu.Lock()
	defer g.cooldownMu.Unlock()

	if !g.hasLastFocus {
		return true, "", 0
	}

	elapsed := g.now().Sub(g.lastFocusTime)
	remaining = g.cooldown - elapsed
	if remaining <= 0 {
		return true, "", 0
	}

	if pane == g.lastFocusPane {
		return true, "", 0
	}
	if agent != "" && agent == g.lastFocusAgent {
		return true, "", 0
	}

	return false, g.lastFocusAgent, remaining
}

// RecordFocus stamps the cooldown state after a successful focus.
func (g *Guard) RecordFocus(pane terminal.PaneHandle, agent string) {
	g.cooldownMu.Lock()
	defer g.cooldownMu.Unlock()
	g.hasLastFocus = true
	g.lastFocusTime = g.now()
	g.lastFocusPane = pane
	g.lastFocusAgent = agent
}

// ResetFocusCooldown clears cooldown state (tests, admin override).
func (g *Guard) ResetFocusCooldown() {
	g.cooldownMu.Lock()
	defer g.cooldownMu.Unlock()
	g.hasLastFocus = false
	g.lastFocusTime = time.Time{}
	g.lastFocusPane = ""
	g.lastFocusAgent = ""
}

// FocusStatus is the debugging/visibility shape get_status returns in the
// original.
type FocusStatus struct {
	InCooldown       bool
	LastPane         terminal.PaneHandle
	LastAgent        string
	RemainingSeconds float64
}

// FocusStatus reports the current cooldown status for debugging/visibility.
func (g *Guard) FocusStatus() FocusStatus {
	g.cooldownMu.Lock()
	defer g.cooldownMu.Unlock()

	if !g.hasLastFocus {
		return FocusStatus{}
	}
	remaining := g.cooldown - g.now().Sub(g.lastFocusTime)
	if remaining < 0 {
		remaining = 0
	}
	return FocusStatus{
		InCooldown:       remaining > 0,
		LastPane:         g.lastFocusPane,
		LastAgent:        g.lastFocusAgent,
		RemainingSeconds: remaining.Seconds(),
	}
}

// Describe returns tags and lock owner for a pane in one call.
func (g *Guard) Describe(pane terminal.PaneHandle) (tags []string, lockedBy string) {
	return g.GetTags(pane), g.LockOwner(pane)
}
