// Package store is codewitness's embedded relational + vector database.
//
// It owns the on-disk state: chunk rows, file-state bookkeeping, lessons,
// checkpoints, agent status, and watched directories, plus three sqlite-vec
// vector tables (chunks, lessons, checkpoints) keyed by the owning record's
// rowid. Relational rows and their matching vector rows always commit
// together — WithWrite is the only way to mutate either.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	cwerrors "github.com/codewitness/codewitness/internal/errors"
)

func init() {
	// Registers the vec0 virtual table module globally via
	// sqlite3_auto_extension, so every *sql.DB opened with the mattn/go-sqlite3
	// driver in this process gets it automatically.
	sqlite_vec.Auto()
}

// VectorStatus reports whether similarity search is available.
type VectorStatus int

const (
	// VectorOK means the sqlite-vec extension loaded and vector tables exist.
	VectorOK VectorStatus = iota
	// VectorDisabled means the extension could not be loaded; the store is
	// downgraded to search-disabled — writes drop embeddings,
	// similarity search fails with ErrVectorDisabled.
	VectorDisabled
)

// ErrVectorDisabled is returned by similarity search methods when the
// vector extension could not be loaded at Open.
var ErrVectorDisabled = cwerrors.New(cwerrors.ErrCodeStorageVector, "vector search is disabled: sqlite-vec extension unavailable", nil)

// Store is the single-writer embedded database handle. One Store is shared
// by every component in the process; reads go through WithRead, writes
// through WithWrite.
type Store struct {
	mu           sync.Mutex // serializes writers; WAL lets readers proceed concurrently
	db           *sql.DB
	path         string
	vectorStatus VectorStatus
}

// Open opens (creating if absent) the database at path, applying pending
// migrations and reconciling the vector tables against the relational rows.
// path == ":memory:" opens a private in-memory database, used by tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, fmt.Sprintf("creating data directory %s", dir), err)
		}
	}

	// _txlock=immediate makes every BeginTx acquire SQLite's RESERVED lock
	// up front (BEGIN IMMEDIATE) instead of the driver's default deferred
	// locking, so WithWrite fails fast rather than at commit.
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_txlock=immediate"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "opening database", err)
	}
	// vec0 tables are not safe under multiple concurrent *sql.DB connections
	// writing the same rowid; the Store's own mu.Mutex already serializes all
	// writers, so one pooled connection is sufficient and avoids surprises.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA cache_size = -65536", // 64 MiB page cache, negative = KiB
		"PRAGMA mmap_size = 268435456",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "applying pragma "+p, err)
		}
	}

	s := &Store{db: db, path: path}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	s.vectorStatus = s.loadVectorExtension()

	if s.vectorStatus == VectorOK {
		if err := s.reconcileVectors(); err != nil {
			db.Close()
			return nil, err
		}
	}

	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path ("" for in-memory stores).
func (s *Store) Path() string {
	return s.path
}

// VectorStatus reports whether similarity search is available.
func (s *Store) VectorStatus() VectorStatus {
	return s.vectorStatus
}

// loadVectorExtension verifies sqlite-vec is callable and creates the three
// vector tables. Any failure downgrades the store to search-disabled rather
// than failing Open; writes then drop embeddings with a warning and
// similarity search returns ErrVectorDisabled.
func (s *Store) loadVectorExtension() VectorStatus {
	if _, err := s.db.Exec("SELECT vec_version()"); err != nil {
		return VectorDisabled
	}
	tables := []string{"chunk_vectors", "lesson_vectors", "checkpoint_vectors"}
	for _, name := range tables {
		sqlStmt := fmt.Sprintf(
			"CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(id INTEGER PRIMARY KEY, embedding FLOAT[%d])",
			name, EmbeddingDim,
		)
		if _, err := s.db.Exec(sqlStmt); err != nil {
			return VectorDisabled
		}
	}
	return VectorOK
}

// WithRead runs f against a connection that may observe but not mutate
// state. Multiple readers may proceed concurrently under WAL.
func (s *Store) WithRead(ctx context.Context, f func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "beginning read transaction", err)
	}
	defer tx.Rollback()
	if err := f(tx); err != nil {
		return err
	}
	return nil
}

// WithWrite runs f inside an IMMEDIATE transaction serialized by the
// store's writer lock (the DSN's _txlock=immediate makes BeginTx issue
// BEGIN IMMEDIATE). On f returning an error the transaction rolls back and
// the error is surfaced verbatim; on success it commits before returning.
func (s *Store) WithWrite(ctx context.Context, f func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "beginning write transaction", err)
	}
	if err := f(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "committing write transaction", err)
	}
	return nil
}
