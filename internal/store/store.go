// Package store provides the SQLite-backed record store for decksync
// collections.
//
// A collection file holds templates, notes, cards, a deletion log
// (graveyard), media bookkeeping rows, and a store-wide update
// sequence number (USN). The database runs in embedded mode with WAL
// for concurrent reads.
//
// Every mutation stamps the written rows with the next USN, which is
// how the sync protocol computes "changed since the last sync point"
// without scanning full content. Deleted records leave a graveyard
// entry so a summary can report deletions without record history.
//
// The store supports an explicit transaction scope (Begin / Commit /
// Rollback). While a transaction is open, all operations route through
// it. The import driver uses this two ways: the foreign store is held
// in a transaction that is always rolled back (ephemeral replica), and
// the local apply runs in a transaction that commits only if the whole
// merge succeeds.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps a collection database connection.
type Store struct {
	conn *sql.DB
	path string
	tx   *sql.Tx
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// db returns the active transaction if one is open, otherwise the
// connection.
func (s *Store) db() execer {
	if s.tx != nil {
		return s.tx
	}
	return s.conn
}

// Open creates a new collection database connection at the specified
// path.
//
// The database is opened in embedded mode with WAL for concurrent
// reads. If the database doesn't exist, it is created; call
// InitSchema before first use.
//
// The caller MUST call Close() when done to ensure proper cleanup.
//
// Example:
//
//	st, err := store.Open("collection.deck")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create collection directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping collection: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	st := &Store{
		conn: conn,
		path: path,
	}

	if _, err := st.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := st.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return st, nil
}

// Path returns the filesystem path of the collection file.
func (s *Store) Path() string {
	return s.path
}

// MediaDir returns the sibling directory holding media asset bytes
// (<path>.media). The directory is created on demand.
func (s *Store) MediaDir() (string, error) {
	dir := s.path + ".media"
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create media directory: %w", err)
	}
	return dir, nil
}

// Close closes the database connection.
// Any open transaction is rolled back first, then the WAL is
// checkpointed so all committed changes are persisted.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close collection: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the collection schema if it doesn't exist.
// This is idempotent - safe to call multiple times.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS templates (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		fields TEXT NOT NULL,  -- JSON array of field names
		render TEXT NOT NULL DEFAULT '',
		modified INTEGER NOT NULL,
		usn INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS notes (
		id INTEGER PRIMARY KEY,
		template_id INTEGER NOT NULL,
		fields TEXT NOT NULL,  -- JSON array of field values
		tags TEXT NOT NULL DEFAULT '[]',  -- JSON array
		modified INTEGER NOT NULL,
		usn INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cards (
		id INTEGER PRIMARY KEY,
		note_id INTEGER NOT NULL,
		ordinal INTEGER NOT NULL,
		due INTEGER NOT NULL DEFAULT 0,
		interval INTEGER NOT NULL DEFAULT 0,
		modified INTEGER NOT NULL,
		usn INTEGER NOT NULL
	);

	-- Deletion log. Entries are retained so an incremental summary can
	-- report deletions without needing full record history.
	CREATE TABLE IF NOT EXISTS graveyard (
		kind TEXT NOT NULL,
		id INTEGER NOT NULL,
		usn INTEGER NOT NULL,
		PRIMARY KEY (kind, id)
	);

	-- Media bookkeeping. Bytes live in the sibling .media directory;
	-- reconciliation is content-hash driven, not timestamp driven.
	CREATE TABLE IF NOT EXISTS media (
		filename TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		deleted INTEGER NOT NULL DEFAULT 0,
		usn INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO meta (key, value) VALUES ('usn', '0');

	CREATE INDEX IF NOT EXISTS idx_notes_template ON notes(template_id);
	CREATE INDEX IF NOT EXISTS idx_notes_usn ON notes(usn);
	CREATE INDEX IF NOT EXISTS idx_cards_note ON cards(note_id);
	CREATE INDEX IF NOT EXISTS idx_cards_usn ON cards(usn);
	CREATE INDEX IF NOT EXISTS idx_templates_usn ON templates(usn);
	CREATE INDEX IF NOT EXISTS idx_graveyard_usn ON graveyard(usn);
	`

	if _, err := s.db().ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Begin opens an explicit transaction scope. All subsequent operations
// on the store route through the transaction until Commit or Rollback
// is called. Nested transactions are not supported.
func (s *Store) Begin(ctx context.Context) error {
	if s.tx != nil {
		return fmt.Errorf("transaction already open")
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = tx
	return nil
}

// Commit commits the open transaction scope.
func (s *Store) Commit() error {
	if s.tx == nil {
		return fmt.Errorf("no transaction open")
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback discards the open transaction scope.
// Returns nil if no transaction is open, so it is safe to defer.
func (s *Store) Rollback() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

// USN returns the store's current update sequence number.
func (s *Store) USN(ctx context.Context) (int64, error) {
	var v string
	err := s.db().QueryRowContext(ctx, "SELECT value FROM meta WHERE key = 'usn'").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to read usn: %w", err)
	}
	usn, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid usn value %q: %w", v, err)
	}
	return usn, nil
}

// NextUSN increments the store's update sequence number and returns
// the new value. Every mutation stamps written rows with the value it
// obtained here.
func (s *Store) NextUSN(ctx context.Context) (int64, error) {
	usn, err := s.USN(ctx)
	if err != nil {
		return 0, err
	}
	usn++
	_, err = s.db().ExecContext(ctx,
		"UPDATE meta SET value = ? WHERE key = 'usn'", strconv.FormatInt(usn, 10))
	if err != nil {
		return 0, fmt.Errorf("failed to advance usn: %w", err)
	}
	return usn, nil
}

// Clock returns the current modification stamp (unix milliseconds).
func Clock() int64 {
	return time.Now().UnixMilli()
}
