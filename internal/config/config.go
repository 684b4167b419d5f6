// Package config loads the orchestration kernel's configuration file: data
// directory, default timeouts/capacities, focus cooldown, and the backend
// selection for the memory store and checkpoint manager. Grounded on
// internal/rig/manifest.go's toml.Decode-into-tagged-struct style, adapted
// from a per-repo rig manifest to a per-user/per-deployment kernel config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/gastown-labs/orchkernel/internal/constants"
)

// FileName is the config file's name inside the data directory.
const FileName = "kernel.toml"

// Backend selects which concrete implementation a component uses.
type Backend string

const (
	BackendFlat    Backend = "flat"
	BackendIndexed Backend = "sqlite"
)

// Config is the kernel's full configuration (spec's ambient configuration
// concern). Zero-value fields are filled in by Defaults/applyDefaults.
type Config struct {
	DataDir string `toml:"data_dir"`

	Timeouts struct {
		ExpectSeconds      float64 `toml:"expect_seconds"`
		ExpectPollSeconds  float64 `toml:"expect_poll_seconds"`
		WaitPollSeconds    float64 `toml:"wait_poll_seconds"`
		FocusCooldownSeconds float64 `toml:"focus_cooldown_seconds"`
	} `toml:"timeouts"`

	Capacities struct {
		MessageHistory    int `toml:"message_history"`
		RouterDedup       int `toml:"router_dedup"`
		SearchWindowLines int `toml:"search_window_lines"`
	} `toml:"capacities"`

	Memory struct {
		Backend Backend `toml:"backend"`
		Path    string  `toml:"path"`
	} `toml:"memory"`

	Checkpoint struct {
		Backend        Backend `toml:"backend"`
		Path           string  `toml:"path"`
		AutoCheckpoint bool    `toml:"auto_checkpoint"`
		Interval       int     `toml:"interval"`
		MaxAgeDays     int     `toml:"max_age_days"`
		MaxCount       int     `toml:"max_count"`
	} `toml:"checkpoint"`
}

// Defaults returns a Config populated with every package default, rooted at
// dataDir.
func Defaults(dataDir string) *Config {
	cfg := &Config{DataDir: dataDir}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.DataDir = filepath.Join(home, constants.DefaultDataDirName)
	}
	if c.Timeouts.ExpectSeconds == 0 {
		c.Timeouts.ExpectSeconds = constants.DefaultExpectTimeout.Seconds()
	}
	if c.Timeouts.ExpectPollSeconds == 0 {
		c.Timeouts.ExpectPollSeconds = constants.DefaultExpectPollInterval.Seconds()
	}
	if c.Timeouts.WaitPollSeconds == 0 {
		c.Timeouts.WaitPollSeconds = constants.DefaultWaitPollInterval.Seconds()
	}
	if c.Timeouts.FocusCooldownSeconds == 0 {
		c.Timeouts.FocusCooldownSeconds = constants.DefaultFocusCooldown.Seconds()
	}
	if c.Capacities.MessageHistory == 0 {
		c.Capacities.MessageHistory = constants.DefaultMessageHistoryCapacity
	}
	if c.Capacities.RouterDedup == 0 {
		c.Capacities.RouterDedup = constants.DefaultRouterDedupCapacity
	}
	if c.Capacities.SearchWindowLines == 0 {
		c.Capacities.SearchWindowLines = constants.DefaultSearchWindowLines
	}
	if c.Memory.Backend == "" {
		c.Memory.Backend = BackendFlat
	}
	if c.Memory.Path == "" {
		c.Memory.Path = c.backendPath(c.Memory.Backend, constants.MemoryFlatFile, constants.MemoryIndexedFile)
	}
	if c.Checkpoint.Backend == "" {
		c.Checkpoint.Backend = BackendFlat
	}
	if c.Checkpoint.Path == "" {
		c.Checkpoint.Path = c.backendPath(c.Checkpoint.Backend, constants.CheckpointsDir, constants.CheckpointsIndexFile)
	}
	if c.Checkpoint.Interval == 0 {
		c.Checkpoint.Interval = constants.DefaultCheckpointInterval
	}
	if c.Checkpoint.MaxAgeDays == 0 {
		c.Checkpoint.MaxAgeDays = 30
	}
	if c.Checkpoint.MaxCount == 0 {
		c.Checkpoint.MaxCount = 100
	}
}

func (c *Config) backendPath(backend Backend, flatName, indexedName string) string {
	if backend == BackendIndexed {
		return filepath.Join(c.DataDir, indexedName)
	}
	return filepath.Join(c.DataDir, flatName)
}

// ExpectTimeout, ExpectPollInterval, WaitPollInterval, and FocusCooldown
// convert the TOML-friendly float-seconds fields to time.Duration for
// callers wiring up paneguard/expect/wait.
func (c *Config) ExpectTimeout() time.Duration {
	return time.Duration(c.Timeouts.ExpectSeconds * float64(time.Second))
}

func (c *Config) ExpectPollInterval() time.Duration {
	return time.Duration(c.Timeouts.ExpectPollSeconds * float64(time.Second))
}

func (c *Config) WaitPollInterval() time.Duration {
	return time.Duration(c.Timeouts.WaitPollSeconds * float64(time.Second))
}

func (c *Config) FocusCooldown() time.Duration {
	return time.Duration(c.Timeouts.FocusCooldownSeconds * float64(time.Second))
}

// Load reads and parses the kernel config file at dataDir/kernel.toml. A
// missing file is not an error: Load returns Defaults(dataDir) (spec
// ambient-configuration concern: sane defaults with an optional override
// file), mirroring rig.LoadManifest's "absent manifest is not an error"
// contract.
func Load(dataDir string) (*Config, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataDir = filepath.Join(home, constants.DefaultDataDirName)
	}

	path := filepath.Join(dataDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(dataDir), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{DataDir: dataDir}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes cfg to dataDir/kernel.toml, creating the data directory if
// needed.
func Save(cfg *Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	path := filepath.Join(cfg.DataDir, FileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}
