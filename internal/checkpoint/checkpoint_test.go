package checkpoint

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gastown-labs/orchkernel/internal/registry"
	"github.com/stretchr/testify/require"
)

func runCheckpointerContract(t *testing.T, newBackend func(t *testing.T) Checkpointer) {
	t.Run("SaveThenLoadRoundTrips", func(t *testing.T) {
		backend := newBackend(t)
		cp := newCheckpoint(map[string]SessionState{"s1": {SessionID: "s1", Name: "build"}}, nil, "manual", nil)

		id, err := backend.Save(cp)
		require.NoError(t, err)
		require.Equal(t, cp.CheckpointID, id)

		loaded, err := backend.Load(id)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		require.Equal(t, "build", loaded.Sessions["s1"].Name)
	})

	t.Run("LoadMissingReturnsNilNotError", func(t *testing.T) {
		backend := newBackend(t)
		cp, err := backend.Load("does-not-exist")
		require.NoError(t, err)
		require.Nil(t, cp)
	})

	t.Run("ListOrdersNewestFirst", func(t *testing.T) {
		backend := newBackend(t)
		cp1 := newCheckpoint(nil, nil, "manual", nil)
		cp2 := newCheckpoint(nil, nil, "manual", nil)
		cp2.CreatedAt = cp1.CreatedAt.Add(2 * time.Second)

		_, err := backend.Save(cp1)
		require.NoError(t, err)
		_, err = backend.Save(cp2)
		require.NoError(t, err)

		entries, err := backend.List("", 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.Equal(t, cp2.CheckpointID, entries[0].CheckpointID)
	})

	t.Run("ListFiltersBySession", func(t *testing.T) {
		backend := newBackend(t)
		cp1 := newCheckpoint(map[string]SessionState{"alpha": {}}, nil, "manual", nil)
		cp2 := newCheckpoint(map[string]SessionState{"beta": {}}, nil, "manual", nil)
		_, err := backend.Save(cp1)
		require.NoError(t, err)
		_, err = backend.Save(cp2)
		require.NoError(t, err)

		entries, err := backend.List("alpha", 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, cp1.CheckpointID, entries[0].CheckpointID)
	})

	t.Run("DeleteReportsExistence", func(t *testing.T) {
		backend := newBackend(t)
		ok, err := backend.Delete("nope")
		require.NoError(t, err)
		require.False(t, ok)

		cp := newCheckpoint(nil, nil, "manual", nil)
		_, err = backend.Save(cp)
		require.NoError(t, err)

		ok, err = backend.Delete(cp.CheckpointID)
		require.NoError(t, err)
		require.True(t, ok)

		loaded, err := backend.Load(cp.CheckpointID)
		require.NoError(t, err)
		require.Nil(t, loaded)
	})

	t.Run("LatestReturnsMostRecent", func(t *testing.T) {
		backend := newBackend(t)
		cp1 := newCheckpoint(nil, nil, "manual", nil)
		cp2 := newCheckpoint(nil, nil, "manual", nil)
		cp2.CreatedAt = cp1.CreatedAt.Add(2 * time.Second)
		_, err := backend.Save(cp1)
		require.NoError(t, err)
		_, err = backend.Save(cp2)
		require.NoError(t, err)

		latest, err := backend.Latest("")
		require.NoError(t, err)
		require.NotNil(t, latest)
		require.Equal(t, cp2.CheckpointID, latest.CheckpointID)
	})
}

func TestFileCheckpointerContract(t *testing.T) {
	runCheckpointerContract(t, func(t *testing.T) Checkpointer {
		c, err := NewFileCheckpointer(t.TempDir())
		require.NoError(t, err)
		return c
	})
}

func TestSQLCheckpointerContract(t *testing.T) {
	runCheckpointerContract(t, func(t *testing.T) Checkpointer {
		c, err := NewSQLCheckpointer(filepath.Join(t.TempDir(), "checkpoints.db"))
		require.NoError(t, err)
		return c
	})
}

func TestManagerAutoCheckpointFiresAtInterval(t *testing.T) {
	backend, err := NewFileCheckpointer(t.TempDir())
	require.NoError(t, err)
	m := NewManager(backend, WithCheckpointInterval(3))

	require.False(t, m.ShouldAutoCheckpoint())
	require.False(t, m.ShouldAutoCheckpoint())
	require.True(t, m.ShouldAutoCheckpoint())
}

func TestManagerAutoCheckpointDisabled(t *testing.T) {
	backend, err := NewFileCheckpointer(t.TempDir())
	require.NoError(t, err)
	m := NewManager(backend, WithAutoCheckpoint(false), WithCheckpointInterval(1))

	require.False(t, m.ShouldAutoCheckpoint())
	require.False(t, m.ShouldAutoCheckpoint())
}

func TestManagerCreateResetsCounterAndRecordsLastID(t *testing.T) {
	backend, err := NewFileCheckpointer(t.TempDir())
	require.NoError(t, err)
	m := NewManager(backend, WithCheckpointInterval(2))

	require.False(t, m.ShouldAutoCheckpoint())

	cp, err := m.Create(nil, &registry.State{}, "manual", nil)
	require.NoError(t, err)
	require.Equal(t, cp.CheckpointID, m.LastCheckpointID())

	require.False(t, m.ShouldAutoCheckpoint(), "counter should have reset on Create")
}

func TestManagerRestoreLatestWhenIDEmpty(t *testing.T) {
	backend, err := NewFileCheckpointer(t.TempDir())
	require.NoError(t, err)
	m := NewManager(backend)

	cp, err := m.Create(nil, nil, "manual", nil)
	require.NoError(t, err)

	restored, err := m.Restore("")
	require.NoError(t, err)
	require.NotNil(t, restored)
	require.Equal(t, cp.CheckpointID, restored.CheckpointID)
}
