package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gastown-labs/orchkernel/internal/util"
	_ "modernc.org/sqlite"
)

// SQLCheckpointer is the indexed backend (spec §4.E): a checkpoints table
// holding the full JSON blob plus a checkpoint_sessions association table
// for efficient session-scoped listing, with cascading delete on
// checkpoint_id. Grounded on core/checkpointing.py's SQLiteCheckpointer.
type SQLCheckpointer struct {
	db *sql.DB
}

var _ Checkpointer = (*SQLCheckpointer)(nil)

// NewSQLCheckpointer opens (creating if needed) a SQLite-backed checkpoint
// store at path.
func NewSQLCheckpointer(path string) (*SQLCheckpointer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	c := &SQLCheckpointer{db: db}
	if err := c.bootstrap(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLCheckpointer) bootstrap() error {
	stmts := []string{
		`PRAGMA foreign_keys = ON`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			checkpoint_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			version TEXT NOT NULL,
			trigger_name TEXT NOT NULL,
			blob TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoint_sessions (
			checkpoint_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			PRIMARY KEY (checkpoint_id, session_id),
			FOREIGN KEY (checkpoint_id) REFERENCES checkpoints(checkpoint_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_created_at ON checkpoints(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoint_sessions_session_id ON checkpoint_sessions(session_id)`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("bootstrapping checkpoint schema: %w", err)
		}
	}
	return nil
}

// Save upserts the checkpoint row and rebuilds its session associations.
func (c *SQLCheckpointer) Save(cp Checkpoint) (string, error) {
	blob, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("marshaling checkpoint: %w", err)
	}

	// modernc.org/sqlite serializes writers through a single connection;
	// under contention a transaction can see "database is locked" and
	// succeed on retry, so the whole save runs through util.Retry.
	return util.RetryWithContext(context.Background(), func() (string, error) {
		tx, err := c.db.Begin()
		if err != nil {
			return "", fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback()

		_, err = tx.Exec(
			`INSERT INTO checkpoints (checkpoint_id, created_at, version, trigger_name, blob) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(checkpoint_id) DO UPDATE SET created_at=excluded.created_at, version=excluded.version, trigger_name=excluded.trigger_name, blob=excluded.blob`,
			cp.CheckpointID, cp.CreatedAt.Format(rfc3339), cp.Version, cp.Trigger, string(blob),
		)
		if err != nil {
			return "", fmt.Errorf("saving checkpoint: %w", err)
		}

		if _, err := tx.Exec(`DELETE FROM checkpoint_sessions WHERE checkpoint_id = ?`, cp.CheckpointID); err != nil {
			return "", fmt.Errorf("clearing session associations: %w", err)
		}
		for sessionID := range cp.Sessions {
			if _, err := tx.Exec(`INSERT INTO checkpoint_sessions (checkpoint_id, session_id) VALUES (?, ?)`, cp.CheckpointID, sessionID); err != nil {
				return "", fmt.Errorf("recording session association: %w", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("committing checkpoint: %w", err)
		}
		return cp.CheckpointID, nil
	})
}

// Load returns the checkpoint by id; a missing or corrupt row returns
// (nil, nil), never an error (spec §4.E cache-miss failure policy).
func (c *SQLCheckpointer) Load(id string) (*Checkpoint, error) {
	var blob string
	err := c.db.QueryRow(`SELECT blob FROM checkpoints WHERE checkpoint_id = ?`, id).Scan(&blob)
	if err != nil {
		return nil, nil
	}
	var cp Checkpoint
	if err := json.Unmarshal([]byte(blob), &cp); err != nil {
		return nil, nil
	}
	return &cp, nil
}

// List returns checkpoint metadata, newest first, optionally scoped to a
// session via checkpoint_sessions.
func (c *SQLCheckpointer) List(sessionID string, limit int) ([]Metadata, error) {
	var rows *sql.Rows
	var err error
	if sessionID != "" {
		rows, err = c.db.Query(
			`SELECT c.checkpoint_id, c.created_at, c.trigger_name
			 FROM checkpoints c
			 INNER JOIN checkpoint_sessions cs ON c.checkpoint_id = cs.checkpoint_id
			 WHERE cs.session_id = ?
			 ORDER BY c.created_at DESC
			 LIMIT ?`,
			sessionID, nonNegativeLimit(limit),
		)
	} else {
		rows, err = c.db.Query(
			`SELECT checkpoint_id, created_at, trigger_name FROM checkpoints ORDER BY created_at DESC LIMIT ?`,
			nonNegativeLimit(limit),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		var id, createdAtStr, trigger string
		if err := rows.Scan(&id, &createdAtStr, &trigger); err != nil {
			return nil, err
		}
		createdAt, _ := parseTime(createdAtStr)

		sessionIDs, err := c.sessionIDsFor(id)
		if err != nil {
			return nil, err
		}

		out = append(out, Metadata{
			CheckpointID: id,
			CreatedAt:    createdAt,
			Trigger:      trigger,
			SessionIDs:   sessionIDs,
			HasRegistry:  true,
		})
	}
	return out, rows.Err()
}

func (c *SQLCheckpointer) sessionIDsFor(checkpointID string) ([]string, error) {
	rows, err := c.db.Query(`SELECT session_id FROM checkpoint_sessions WHERE checkpoint_id = ?`, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("listing session associations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nonNegativeLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// Delete removes a checkpoint; its checkpoint_sessions rows cascade.
func (c *SQLCheckpointer) Delete(id string) (bool, error) {
	res, err := c.db.Exec(`DELETE FROM checkpoints WHERE checkpoint_id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting checkpoint: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Latest returns the most recent checkpoint, optionally scoped to session.
func (c *SQLCheckpointer) Latest(sessionID string) (*Checkpoint, error) {
	entries, err := c.List(sessionID, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return c.Load(entries[0].CheckpointID)
}

// Cleanup deletes checkpoints older than maxAgeDays, then trims the tail
// beyond maxCount, returning the total number deleted (spec §4.E
// Indexed-backend cleanup(max_age_days, max_count)).
func (c *SQLCheckpointer) Cleanup(maxAgeDays, maxCount int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays).Format(rfc3339)

	res, err := c.db.Exec(`DELETE FROM checkpoints WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning up by age: %w", err)
	}
	byAge, _ := res.RowsAffected()

	res, err = c.db.Exec(`
		DELETE FROM checkpoints WHERE checkpoint_id IN (
			SELECT checkpoint_id FROM checkpoints ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, maxCount)
	if err != nil {
		return int(byAge), fmt.Errorf("trimming to max count: %w", err)
	}
	byCount, _ := res.RowsAffected()

	return int(byAge) + int(byCount), nil
}

// Close releases the underlying database handle.
func (c *SQLCheckpointer) Close() error {
	return c.db.Close()
}
