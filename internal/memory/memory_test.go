package memory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("UpsertBumpsValue", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.Store("team/frontend", "status", "red", nil))
		require.NoError(t, s.Store("team/frontend", "status", "green", map[string]string{"by": "alice"}))

		rec, err := s.Retrieve("team/frontend", "status")
		require.NoError(t, err)
		require.NotNil(t, rec)
		require.Contains(t, string(rec.Value), "green")
	})

	t.Run("RetrieveMissingReturnsNil", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		rec, err := s.Retrieve("ns", "nope")
		require.NoError(t, err)
		require.Nil(t, rec)
	})

	t.Run("DeleteReportsExistence", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ok, err := s.Delete("ns", "nope")
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, s.Store("ns", "k", "v", nil))
		ok, err = s.Delete("ns", "k")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("ListKeysSortedAscending", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		require.NoError(t, s.Store("ns", "zebra", "1", nil))
		require.NoError(t, s.Store("ns", "apple", "2", nil))
		keys, err := s.ListKeys("ns")
		require.NoError(t, err)
		require.Equal(t, []string{"apple", "zebra"}, keys)
	})

	t.Run("ListNamespacesByPrefix", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		require.NoError(t, s.Store("team/frontend", "k", "v", nil))
		require.NoError(t, s.Store("team/backend", "k", "v", nil))
		require.NoError(t, s.Store("global", "k", "v", nil))

		namespaces, err := s.ListNamespaces("team")
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"team/frontend", "team/backend"}, namespaces)
	})

	t.Run("SearchByValueKeyAndMetadata", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		require.NoError(t, s.Store("team/frontend", "deploy-notes", "ship the release candidate", nil))
		require.NoError(t, s.Store("team/frontend", "release-owner", "bob", map[string]string{"tag": "release"}))

		results, err := s.Search("team", "release", 10)
		require.NoError(t, err)
		require.NotEmpty(t, results)
	})

	t.Run("SearchIsScopedToNamespaceAndDescendants", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		require.NoError(t, s.Store("team/frontend", "k1", "apple pie", nil))
		require.NoError(t, s.Store("other", "k2", "apple pie", nil))

		results, err := s.Search("team", "apple", 10)
		require.NoError(t, err)
		for _, r := range results {
			require.True(t, r.Record.Namespace == "team/frontend" || r.Record.Namespace == "team")
		}
	})

	t.Run("ClearNamespaceDeletesDescendants", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		require.NoError(t, s.Store("team/frontend", "k1", "v", nil))
		require.NoError(t, s.Store("team/backend", "k2", "v", nil))
		require.NoError(t, s.Store("other", "k3", "v", nil))

		count, err := s.ClearNamespace("team")
		require.NoError(t, err)
		require.Equal(t, 2, count)

		namespaces, err := s.ListNamespaces("")
		require.NoError(t, err)
		require.Equal(t, []string{"other"}, namespaces)
	})

	t.Run("StatsReportsTotals", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		require.NoError(t, s.Store("ns1", "a", "v", nil))
		require.NoError(t, s.Store("ns2", "b", "v", nil))

		stats, err := s.Stats()
		require.NoError(t, err)
		require.Equal(t, 2, stats.TotalMemories)
		require.Equal(t, 2, stats.TotalNamespaces)
	})
}

func TestFlatStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		s, err := NewFlatStore(filepath.Join(t.TempDir(), "memories.json"))
		require.NoError(t, err)
		return s
	})
}

func TestFlatStoreInMemoryWhenPathEmpty(t *testing.T) {
	s, err := NewFlatStore("")
	require.NoError(t, err)
	require.NoError(t, s.Store("ns", "k", "v", nil))
	rec, err := s.Retrieve("ns", "k")
	require.NoError(t, err)
	require.NotNil(t, rec)
}

func TestSQLStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		s, err := NewSQLStore(filepath.Join(t.TempDir(), "memories.db"))
		require.NoError(t, err)
		return s
	})
}

func TestSQLStoreFallsBackToLikeOnBadFTSQuery(t *testing.T) {
	s, err := NewSQLStore(filepath.Join(t.TempDir(), "memories.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Store("ns", "k", "contains a \"quote", nil))

	results, err := s.Search("ns", `"unterminated`, 10)
	require.NoError(t, err)
	for _, r := range results {
		require.Equal(t, 0.5, r.Score)
	}
}
