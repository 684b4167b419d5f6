// Package checkpoint implements the Checkpoint Manager (spec §4.E):
// point-in-time snapshots of session and registry state for crash recovery
// and replay, behind a swappable Checkpointer backend. Grounded on
// core/checkpointing.py from the pre-distillation original.
package checkpoint

import (
	"time"

	"github.com/gastown-labs/orchkernel/internal/registry"
	"github.com/google/uuid"
)

// SessionState is the serializable snapshot of one pane-backed session
// (spec §4.E; mirrors core/checkpointing.py's SessionState).
type SessionState struct {
	SessionID        string            `json:"session_id"`
	PersistentID     string            `json:"persistent_id"`
	Name             string            `json:"name"`
	MaxLines         int               `json:"max_lines"`
	IsMonitoring     bool              `json:"is_monitoring"`
	LastScreenUpdate time.Time         `json:"last_screen_update"`
	CreatedAt        time.Time         `json:"created_at"`
	LastCommand      string            `json:"last_command,omitempty"`
	LastOutput       string            `json:"last_output,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Checkpoint is a complete snapshot of session and registry state.
type Checkpoint struct {
	CheckpointID string                  `json:"checkpoint_id"`
	CreatedAt    time.Time               `json:"created_at"`
	Version      string                  `json:"version"`
	Sessions     map[string]SessionState `json:"sessions"`
	Registry     *registry.State         `json:"registry,omitempty"`
	Trigger      string                  `json:"trigger"`
	Metadata     map[string]any          `json:"metadata,omitempty"`
}

// SessionIDs returns the checkpoint's session keys, used to populate the
// checkpoint_sessions association in both backends.
func (c Checkpoint) SessionIDs() []string {
	ids := make([]string, 0, len(c.Sessions))
	for id := range c.Sessions {
		ids = append(ids, id)
	}
	return ids
}

// Metadata is the lightweight listing shape list() returns, without the
// full checkpoint body (spec §4.E).
type Metadata struct {
	CheckpointID string    `json:"checkpoint_id"`
	CreatedAt    time.Time `json:"created_at"`
	Trigger      string    `json:"trigger"`
	SessionIDs   []string  `json:"session_ids"`
	HasRegistry  bool      `json:"has_registry"`
}

// Checkpointer is the storage-backend contract (spec §4.E): five methods,
// satisfied by both FileCheckpointer and SQLCheckpointer.
type Checkpointer interface {
	Save(cp Checkpoint) (string, error)
	Load(id string) (*Checkpoint, error)
	List(sessionID string, limit int) ([]Metadata, error)
	Delete(id string) (bool, error)
	Latest(sessionID string) (*Checkpoint, error)
}

const checkpointVersion = "1.0"

// newCheckpoint mints a fresh checkpoint with a new UUID id, matching the
// original's uuid4-at-creation-time policy.
func newCheckpoint(sessions map[string]SessionState, regState *registry.State, trigger string, metadata map[string]any) Checkpoint {
	if sessions == nil {
		sessions = map[string]SessionState{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Checkpoint{
		CheckpointID: uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
		Version:      checkpointVersion,
		Sessions:     sessions,
		Registry:     regState,
		Trigger:      trigger,
		Metadata:     metadata,
	}
}
