// Package constants centralizes the fixed names, file layout, and default
// knobs shared across the orchestration kernel's packages.
package constants

import "time"

// DefaultDataDirName is the default base directory name under the user's
// home directory when no explicit data directory is configured.
const DefaultDataDirName = ".iterm-mcp"

// Journal and store file names, relative to the configured data directory.
const (
	AgentsJournalFile       = "agents.jsonl"
	TeamsJournalFile        = "teams.jsonl"
	MessagesJournalFile     = "messages.jsonl"
	RolesJournalFile        = "roles.jsonl"
	RoleConfigsJournalFile  = "role_configs.jsonl"
	MemoryFlatFile          = "memories.json"
	MemoryIndexedFile       = "memories.db"
	CheckpointsDir          = "checkpoints"
	CheckpointsIndexFile    = "checkpoints.db"
	PersistentSessionsFile  = "persistent_sessions.json"
)

// EnvMemoryDBPath overrides the memory store path for the indexed backend.
const EnvMemoryDBPath = "ITERM_MCP_MEMORY_DB_PATH"

// Default capacities and timeouts, all overridable via Config.
const (
	DefaultMessageHistoryCapacity = 1000
	DefaultRouterDedupCapacity    = 1024
	DefaultFocusCooldown          = 5 * time.Second
	DefaultExpectTimeout          = 30 * time.Second
	DefaultExpectPollInterval     = 250 * time.Millisecond
	DefaultWaitPollInterval       = 500 * time.Millisecond
	MinWaitSeconds                = 1
	MaxWaitSeconds                = 600
	DefaultCheckpointInterval     = 20
	DefaultSearchWindowLines      = 200
)
