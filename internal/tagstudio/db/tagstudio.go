// Package db provides access to a TagStudio library database.
//
// A TagStudio library is a SQLite file holding tags, the files (entries) they
// are attached to, and the tag_parents graph. tagsync reads and extends it:
// it creates tags, attaches them to entries, and adds parent edges found from
// category membership and Danbooru implications.
//
// Tables used:
//   - tags(id, name, color_namespace, color_slug, is_category)
//   - entries(id, filename)
//   - tag_entries(tag_id, entry_id)
//   - tag_parents(parent_id, child_id)
//
// Edge rows are stored as given: InsertEdge(p, c) writes parent_id=p,
// child_id=c. TagStudio reads a row as "the tag in parent_id has the tag in
// child_id as one of its parent tags", so callers pass the subject tag first.
//
// Writes are grouped in a transaction that starts with the first write and
// ends with Commit. Reads issued while that transaction is open go through it
// so they observe uncommitted rows.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

var (
	// ErrLibraryNotFound is returned by Open when the database file is missing.
	ErrLibraryNotFound = errors.New("tagstudio library not found")

	// ErrTagNotFound is returned when no tag has the requested name.
	ErrTagNotFound = errors.New("tag not found")

	// ErrFileNotFound is returned when no entry has the requested file name.
	ErrFileNotFound = errors.New("file not found in library")

	// ErrAmbiguousFile is returned when several entries share a file name.
	ErrAmbiguousFile = errors.New("multiple files with the same name")
)

// openRetryTimeout bounds how long Open waits for a library locked by a
// running TagStudio instance.
const openRetryTimeout = 15 * time.Second

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a TagStudio library connection.
type DB struct {
	conn   *sql.DB
	path   string
	logger *slog.Logger

	mu sync.Mutex
	tx *sql.Tx
}

// Open connects to an existing TagStudio library.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	lib, err := db.Open("/photos/.TagStudio/ts_library.sqlite")
//	if err != nil {
//	    return err
//	}
//	defer lib.Close()
func Open(path string) (*DB, error) {
	return OpenContext(context.Background(), path, nil)
}

// OpenContext connects to an existing TagStudio library with context support.
// If logger is nil, slog.Default() is used.
func OpenContext(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrLibraryNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat library: %w", err)
	}
	return open(ctx, path, logger)
}

// Create opens the library at path, creating the file and the tables tagsync
// uses when they are missing.
func Create(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := open(context.Background(), path, nil)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func open(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Format for embedded mode: file:path
	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn:   conn,
		path:   path,
		logger: logger.With("component", "tagstudio-db"),
	}

	// Switching to WAL needs an exclusive lock; TagStudio may be holding the
	// library, so retry while it reports busy.
	err = retryBusy(ctx, func() error {
		if err := conn.PingContext(ctx); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}
		if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			return fmt.Errorf("failed to enable WAL mode: %w", err)
		}
		return nil
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// retryBusy runs fn with exponential backoff while it fails with SQLITE_BUSY
// or SQLITE_LOCKED. Any other error stops the retries.
func retryBusy(ctx context.Context, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = openRetryTimeout

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if IsBusy(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}

// IsBusy reports whether err is a SQLite busy or locked error.
func IsBusy(err error) bool {
	return errors.Is(err, sqlite3.BUSY) || errors.Is(err, sqlite3.LOCKED)
}

// Path returns the library file location.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close rolls back any open transaction and closes the connection.
// Performs a WAL checkpoint so TagStudio sees a compact file.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn == nil {
		return nil
	}

	if db.tx != nil {
		db.logger.Warn("closing library with uncommitted changes; rolling back")
		_ = db.tx.Rollback()
		db.tx = nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.logger.Warn("failed to checkpoint WAL", "error", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the tables tagsync uses if they don't exist.
//
// A real TagStudio library already has these tables (with more columns);
// this is for empty libraries and tests. Safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the tables with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY,
		name VARCHAR NOT NULL,
		color_namespace VARCHAR,
		color_slug VARCHAR,
		is_category BOOLEAN NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY,
		filename VARCHAR NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tag_entries (
		tag_id INTEGER NOT NULL,
		entry_id INTEGER NOT NULL,
		PRIMARY KEY (tag_id, entry_id),
		FOREIGN KEY (tag_id) REFERENCES tags(id),
		FOREIGN KEY (entry_id) REFERENCES entries(id)
	);

	CREATE TABLE IF NOT EXISTS tag_parents (
		parent_id INTEGER NOT NULL,
		child_id INTEGER NOT NULL,
		PRIMARY KEY (parent_id, child_id),
		FOREIGN KEY (parent_id) REFERENCES tags(id),
		FOREIGN KEY (child_id) REFERENCES tags(id)
	);

	CREATE INDEX IF NOT EXISTS idx_tags_name ON tags(name);
	CREATE INDEX IF NOT EXISTS idx_entries_filename ON entries(filename);
	`

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// readerLocked returns the open transaction if there is one, else the pool.
func (db *DB) readerLocked() querier {
	if db.tx != nil {
		return db.tx
	}
	return db.conn
}

// writerLocked returns the open transaction, starting one if needed.
func (db *DB) writerLocked(ctx context.Context) (querier, error) {
	if db.tx != nil {
		return db.tx, nil
	}

	// The transaction outlives the statement that opened it, so it must not
	// be rolled back when that statement's context is cancelled.
	tx, err := db.conn.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	db.tx = tx
	return tx, nil
}

// Commit makes every write since the previous Commit durable. It is a no-op
// when nothing was written.
func (db *DB) Commit() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.tx == nil {
		return nil
	}

	tx := db.tx
	db.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback discards every write since the previous Commit.
func (db *DB) Rollback() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.tx == nil {
		return nil
	}

	tx := db.tx
	db.tx = nil
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}
