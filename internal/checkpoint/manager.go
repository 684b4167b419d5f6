package checkpoint

import (
	"sync"

	"github.com/gastown-labs/orchkernel/internal/registry"
)

// Manager wraps any Checkpointer with auto-checkpoint bookkeeping (spec
// §4.E), grounded on core/checkpointing.py's CheckpointManager.
type Manager struct {
	mu sync.Mutex

	checkpointer     Checkpointer
	autoCheckpoint   bool
	interval         int
	operationCount   int
	lastCheckpointID string
}

// ManagerOption configures a Manager at construction time.
type ManagerOption func(*Manager)

// WithAutoCheckpoint toggles auto-checkpoint firing.
func WithAutoCheckpoint(enabled bool) ManagerOption {
	return func(m *Manager) { m.autoCheckpoint = enabled }
}

// WithCheckpointInterval sets the operation count between auto-checkpoints.
func WithCheckpointInterval(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.interval = n
		}
	}
}

// NewManager creates a Manager over the given Checkpointer. Auto-checkpoint
// defaults to enabled with a 5-operation interval, matching the original.
func NewManager(backend Checkpointer, opts ...ManagerOption) *Manager {
	m := &Manager{
		checkpointer:   backend,
		autoCheckpoint: true,
		interval:       5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create saves a new checkpoint and resets the auto-checkpoint counter
// (spec §4.E create()).
func (m *Manager) Create(sessions map[string]SessionState, regState *registry.State, trigger string, metadata map[string]any) (Checkpoint, error) {
	cp := newCheckpoint(sessions, regState, trigger, metadata)
	if _, err := m.checkpointer.Save(cp); err != nil {
		return Checkpoint{}, err
	}

	m.mu.Lock()
	m.lastCheckpointID = cp.CheckpointID
	m.operationCount = 0
	m.mu.Unlock()

	return cp, nil
}

// Restore loads a checkpoint by id, or the latest if id is empty (spec
// §4.E restore()).
func (m *Manager) Restore(id string) (*Checkpoint, error) {
	if id != "" {
		return m.checkpointer.Load(id)
	}
	return m.checkpointer.Latest("")
}

// ShouldAutoCheckpoint increments the operation counter and reports
// whether the auto-checkpoint threshold has been reached (spec §4.E
// should_auto_checkpoint()).
func (m *Manager) ShouldAutoCheckpoint() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.autoCheckpoint {
		return false
	}
	m.operationCount++
	return m.operationCount >= m.interval
}

// List returns checkpoint metadata via the backend.
func (m *Manager) List(sessionID string, limit int) ([]Metadata, error) {
	return m.checkpointer.List(sessionID, limit)
}

// Delete removes a checkpoint via the backend.
func (m *Manager) Delete(id string) (bool, error) {
	return m.checkpointer.Delete(id)
}

// LastCheckpointID returns the id of the most recently created checkpoint,
// or "" if none has been created yet.
func (m *Manager) LastCheckpointID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCheckpointID
}
