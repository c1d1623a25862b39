package statedb

import (
	"database/sql"
	"fmt"
	"strconv"
)

// SchemaVersion tracks the current database schema version.
// Bump this when appending to migrations.
const SchemaVersion = 2

// migrations[i] upgrades a database from version i to i+1.
var migrations = []func(tx *sql.Tx) error{
	func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			CREATE TABLE IF NOT EXISTS hook_events (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				kind        TEXT NOT NULL,
				worktree_id TEXT NOT NULL,
				sent_at     INTEGER NOT NULL,
				received_at INTEGER NOT NULL,
				matched     INTEGER NOT NULL DEFAULT 0,
				pane_id     TEXT NOT NULL DEFAULT '',
				payload     TEXT NOT NULL DEFAULT 'null'
			)`)
		return err
	},
	func(tx *sql.Tx) error {
		if _, err := tx.Exec(`ALTER TABLE hook_events ADD COLUMN outcome TEXT NOT NULL DEFAULT 'applied'`); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE hook_events SET outcome = 'unmatched' WHERE matched = 0`); err != nil {
			return err
		}
		_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_hook_events_worktree ON hook_events (worktree_id, id)`)
		return err
	},
}

// Migrate creates the metadata table and runs every pending migration in
// one transaction.
func (s *StateDB) Migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create metadata: %w", err)
	}

	current, err := schemaVersion(tx)
	if err != nil {
		return err
	}
	if current > len(migrations) {
		return fmt.Errorf("statedb: schema version %d is newer than supported %d", current, SchemaVersion)
	}
	for v := current; v < len(migrations); v++ {
		if err := migrations[v](tx); err != nil {
			return fmt.Errorf("statedb: migrate to v%d: %w", v+1, err)
		}
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, strconv.Itoa(len(migrations))); err != nil {
		return fmt.Errorf("statedb: set schema version: %w", err)
	}

	return tx.Commit()
}

func schemaVersion(tx *sql.Tx) (int, error) {
	var raw string
	err := tx.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("statedb: read schema version: %w", err)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("statedb: bad schema version %q: %w", raw, err)
	}
	return v, nil
}
