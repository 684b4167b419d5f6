// Package target implements Identity & Targeting (spec §4.A): resolving a
// Target — any legal way to name a pane — down to a concrete pane handle.
package target

import (
	"fmt"

	"github.com/gastown-labs/orchkernel/internal/exitcode"
	"github.com/gastown-labs/orchkernel/internal/registry"
	"github.com/gastown-labs/orchkernel/internal/terminal"
)

// Target carries any subset of the four legal identifiers (spec §3). An
// all-empty Target means "the registry's active pane".
type Target struct {
	PaneID    terminal.PaneHandle
	PaneName  string
	AgentName string
	TeamName  string
}

// Empty reports whether no identifier is set.
func (t Target) Empty() bool {
	return t.PaneID == "" && t.PaneName == "" && t.AgentName == "" && t.TeamName == ""
}

// NameIndex is the name-lookup surface Resolve needs from the terminal
// backend (grounded on Backend.GetByName, kept narrow per the constructor
// pattern spec §9 calls for at component boundaries).
type NameIndex interface {
	GetByName(name string) (terminal.PaneHandle, bool, error)
}

// Resolver resolves Targets against a Registry and a backend's name index.
// It performs no I/O beyond in-memory lookups (spec §4.A).
type Resolver struct {
	registry *registry.Registry
	names    NameIndex
}

// New creates a Resolver.
func New(reg *registry.Registry, names NameIndex) *Resolver {
	return &Resolver{registry: reg, names: names}
}

// Resolve implements resolve(target) -> pane_id | nil (spec §4.A).
// Resolution order is fixed: pane_id -> pane_name -> agent_name -> team_name.
// An empty target resolves to the registry's active pane.
func (r *Resolver) Resolve(t Target) (terminal.PaneHandle, error) {
	if t.Empty() {
		active := r.registry.ActivePane()
		if active == "" {
			return "", exitcode.PaneNotFound("active pane")
		}
		return active, nil
	}

	if t.PaneID != "" {
		return t.PaneID, nil
	}

	if t.PaneName != "" {
		pane, ok, err := r.names.GetByName(t.PaneName)
		if err != nil {
			return "", fmt.Errorf("resolving pane name %q: %w", t.PaneName, err)
		}
		if !ok {
			return "", exitcode.PaneNotFound(t.PaneName)
		}
		return pane, nil
	}

	if t.AgentName != "" {
		agent, ok := r.registry.GetAgent(t.AgentName)
		if !ok {
			return "", exitcode.AgentNotFound(t.AgentName)
		}
		return agent.PaneID, nil
	}

	if t.TeamName != "" {
		members := r.registry.MembersInOrder(t.TeamName)
		if len(members) == 0 {
			return "", exitcode.TeamNotFound(t.TeamName)
		}
		return members[0].PaneID, nil
	}

	return "", exitcode.PaneNotFound("target")
}

// ResolveAll implements resolve_all(target) -> [pane_id] (spec §4.A). For
// team targets it fans out to every member, in registry insertion order;
// for all other target kinds it behaves like Resolve wrapped in a
// single-element slice.
func (r *Resolver) ResolveAll(t Target) ([]terminal.PaneHandle, error) {
	if t.TeamName != "" && t.PaneID == "" && t.PaneName == "" && t.AgentName == "" {
		members := r.registry.MembersInOrder(t.TeamName)
		if len(members) == 0 {
			return nil, exitcode.TeamNotFound(t.TeamName)
		}
		panes := make([]terminal.PaneHandle, len(members))
		for i, m := range members {
			panes[i] = m.PaneID
		}
		return panes, nil
	}

	pane, err := r.Resolve(t)
	if err != nil {
		return nil, err
	}
	return []terminal.PaneHandle{pane}, nil
}
