package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gastown-labs/orchkernel/internal/constants"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, dir, cfg.DataDir)
	require.Equal(t, BackendFlat, cfg.Memory.Backend)
	require.Equal(t, 1024, cfg.Capacities.RouterDedup)
	require.Positive(t, cfg.Timeouts.ExpectSeconds)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cfg := Defaults(dir)
	cfg.Memory.Backend = BackendIndexed
	cfg.Checkpoint.Interval = 7

	require.NoError(t, Save(cfg))
	require.FileExists(t, filepath.Join(dir, FileName))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, BackendIndexed, loaded.Memory.Backend)
	require.Equal(t, 7, loaded.Checkpoint.Interval)
}

func TestLoadPartialFilePreservesDefaultsForOmittedFields(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`
[memory]
backend = "sqlite"
`), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, BackendIndexed, cfg.Memory.Backend)
	require.Equal(t, constants.DefaultCheckpointInterval, cfg.Checkpoint.Interval)
}

func TestDurationHelpersConvertSecondsToDuration(t *testing.T) {
	cfg := Defaults(t.TempDir())
	require.Equal(t, cfg.Timeouts.FocusCooldownSeconds, cfg.FocusCooldown().Seconds())
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("not = [valid"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}
