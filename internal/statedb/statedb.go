package statedb

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// StateDB wraps the SQLite hook event journal.
// Safe for concurrent use; WAL mode lets `panedeck events` read while the
// dashboard writes.
type StateDB struct {
	db *sql.DB
}

// HookEventRow is one received hook event and what the dashboard did with it.
type HookEventRow struct {
	ID         int64
	Kind       string
	WorktreeID string
	SentAt     time.Time // timestamp claimed by the sender
	ReceivedAt time.Time
	Outcome    string // "applied", "unknown" or "unmatched"
	PaneID     string
	Payload    json.RawMessage
}

// Matched reports whether a pane owned the event's worktree.
func (r HookEventRow) Matched() bool { return r.Outcome != "unmatched" }

// Open creates or opens a SQLite database at dbPath with WAL mode and busy timeout.
func Open(dbPath string) (*StateDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("statedb: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}

	// WAL mode: allows concurrent readers while writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: wal mode: %w", err)
	}

	// Busy timeout: wait up to 5s if another process holds a lock
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: busy timeout: %w", err)
	}

	return &StateDB{db: db}, nil
}

// Close checkpoints WAL and closes the database.
func (s *StateDB) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// DB returns the underlying sql.DB for tests.
func (s *StateDB) DB() *sql.DB {
	return s.db
}

// --- Hook events ---

const insertHookEvent = `
	INSERT INTO hook_events (kind, worktree_id, sent_at, received_at, outcome, matched, pane_id, payload)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// InsertHookEvents writes rows in one transaction.
func (s *StateDB) InsertHookEvents(rows []HookEventRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(insertHookEvent)
	if err != nil {
		return fmt.Errorf("statedb: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		payload := string(r.Payload)
		if payload == "" {
			payload = "null"
		}
		if _, err := stmt.Exec(
			r.Kind, r.WorktreeID,
			r.SentAt.UnixMilli(), r.ReceivedAt.UnixMilli(),
			r.Outcome, boolToInt(r.Matched()), r.PaneID, payload,
		); err != nil {
			return fmt.Errorf("statedb: insert hook event: %w", err)
		}
	}
	return tx.Commit()
}

// RecentHookEvents returns up to limit rows, newest first.
func (s *StateDB) RecentHookEvents(limit int) ([]HookEventRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, kind, worktree_id, sent_at, received_at, outcome, pane_id, payload
		FROM hook_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("statedb: query hook events: %w", err)
	}
	defer rows.Close()

	var out []HookEventRow
	for rows.Next() {
		var r HookEventRow
		var sent, received int64
		var payload string
		if err := rows.Scan(&r.ID, &r.Kind, &r.WorktreeID, &sent, &received, &r.Outcome, &r.PaneID, &payload); err != nil {
			return nil, fmt.Errorf("statedb: scan hook event: %w", err)
		}
		r.SentAt = time.UnixMilli(sent)
		r.ReceivedAt = time.UnixMilli(received)
		r.Payload = json.RawMessage(payload)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountHookEvents returns the row count, optionally only unmatched rows.
func (s *StateDB) CountHookEvents(unmatchedOnly bool) (int, error) {
	q := "SELECT COUNT(*) FROM hook_events"
	if unmatchedOnly {
		q += " WHERE matched = 0"
	}
	var n int
	err := s.db.QueryRow(q).Scan(&n)
	return n, err
}

// PruneHookEvents keeps only the newest keep rows.
func (s *StateDB) PruneHookEvents(keep int) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM hook_events WHERE id NOT IN (
			SELECT id FROM hook_events ORDER BY id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("statedb: prune: %w", err)
	}
	return res.RowsAffected()
}

// --- Metadata ---

// SetMeta sets a key-value pair in the metadata table.
func (s *StateDB) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta gets a value from the metadata table. Returns "" if not found.
func (s *StateDB) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// Touch records the time of the last journal write for other processes.
func (s *StateDB) Touch() error {
	return s.SetMeta("last_modified", strconv.FormatInt(time.Now().UnixNano(), 10))
}

// LastModified returns the last_modified timestamp from metadata.
func (s *StateDB) LastModified() (int64, error) {
	val, err := s.GetMeta("last_modified")
	if err != nil || val == "" {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
