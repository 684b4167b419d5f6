package target

import (
	"testing"

	"github.com/gastown-labs/orchkernel/internal/registry"
	"github.com/gastown-labs/orchkernel/internal/terminal"
	"github.com/stretchr/testify/require"
)

func TestResolveTeamTargetPicksFirstMemberByInsertionOrder(t *testing.T) {
	reg := registry.New("")
	backend := terminal.NewFakeBackend()
	resolver := New(reg, backend)

	// Registered alphabetically last but first in insertion order; a
	// name-sorted lookup would wrongly prefer "alice".
	_, err := reg.Register("zed", terminal.PaneHandle("pane-zed"), []string{"crew"}, nil)
	require.NoError(t, err)
	_, err = reg.Register("alice", terminal.PaneHandle("pane-alice"), []string{"crew"}, nil)
	require.NoError(t, err)

	pane, err := resolver.Resolve(Target{TeamName: "crew"})
	require.NoError(t, err)
	require.Equal(t, terminal.PaneHandle("pane-zed"), pane)
}

func TestResolveAllTeamTargetReturnsEveryMemberInInsertionOrder(t *testing.T) {
	reg := registry.New("")
	backend := terminal.NewFakeBackend()
	resolver := New(reg, backend)

	_, err := reg.Register("zed", terminal.PaneHandle("pane-zed"), []string{"crew"}, nil)
	require.NoError(t, err)
	_, err = reg.Register("alice", terminal.PaneHandle("pane-alice"), []string{"crew"}, nil)
	require.NoError(t, err)
	_, err = reg.Register("mallory", terminal.PaneHandle("pane-mallory"), []string{"other"}, nil)
	require.NoError(t, err)

	panes, err := resolver.ResolveAll(Target{TeamName: "crew"})
	require.NoError(t, err)
	require.Equal(t, []terminal.PaneHandle{"pane-zed", "pane-alice"}, panes)
}

func TestResolveUnknownTeamReturnsNotFound(t *testing.T) {
	reg := registry.New("")
	backend := terminal.NewFakeBackend()
	resolver := New(reg, backend)

	_, err := resolver.Resolve(Target{TeamName: "ghosts"})
	require.Error(t, err)
}
