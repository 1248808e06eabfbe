package store

import (
	"fmt"

	cwerrors "github.com/codewitness/codewitness/internal/errors"
)

// schemaVersion is the highest migration this binary knows how to apply.
const schemaVersion = 1

// migrate reads the highest applied version (0 if none) and applies every
// migration above it, in order, each inside its own transaction that also
// appends the migrations row.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return cwerrors.StorageError(cwerrors.ErrCodeStorageMigration, "creating migrations table", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return cwerrors.StorageError(cwerrors.ErrCodeStorageMigration, "reading current schema version", err)
	}

	migrations := []struct {
		version int
		ddl     string
	}{
		{1, migrationV1},
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageMigration, fmt.Sprintf("beginning migration v%d", m.version), err)
		}
		if _, err := tx.Exec(m.ddl); err != nil {
			tx.Rollback()
			return cwerrors.StorageError(cwerrors.ErrCodeStorageMigration, fmt.Sprintf("applying migration v%d", m.version), err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", m.version, nowUnix()); err != nil {
			tx.Rollback()
			return cwerrors.StorageError(cwerrors.ErrCodeStorageMigration, fmt.Sprintf("recording migration v%d", m.version), err)
		}
		if err := tx.Commit(); err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageMigration, fmt.Sprintf("committing migration v%d", m.version), err)
		}
	}
	return nil
}

// migrationV1 creates the relational tables (chunks, file_state, lessons,
// checkpoints, agent_status, watch_dirs, model_state) and their secondary
// indexes.
const migrationV1 = `
CREATE TABLE chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	content TEXT NOT NULL,
	language TEXT,
	file_hash TEXT NOT NULL,
	indexed_at INTEGER NOT NULL,
	has_embedding INTEGER NOT NULL DEFAULT 0,
	UNIQUE(file_path, chunk_index)
);
CREATE INDEX idx_chunks_file_path ON chunks(file_path);
CREATE INDEX idx_chunks_file_hash ON chunks(file_hash);
CREATE INDEX idx_chunks_language ON chunks(language);

CREATE TABLE file_state (
	path TEXT PRIMARY KEY,
	mtime INTEGER NOT NULL,
	size INTEGER NOT NULL,
	content_hash TEXT NOT NULL,
	last_indexed INTEGER NOT NULL
);
CREATE INDEX idx_file_state_mtime ON file_state(mtime);

CREATE TABLE lessons (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	tags TEXT NOT NULL,
	severity TEXT NOT NULL DEFAULT 'info',
	agent TEXT,
	repo TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	has_embedding INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX idx_lessons_severity ON lessons(severity);
CREATE INDEX idx_lessons_agent ON lessons(agent);
CREATE INDEX idx_lessons_created_at ON lessons(created_at);

CREATE TABLE checkpoints (
	id TEXT PRIMARY KEY,
	agent TEXT NOT NULL,
	repo TEXT,
	session_id TEXT,
	working_on TEXT NOT NULL,
	state TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	has_embedding INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX idx_checkpoints_agent ON checkpoints(agent);
CREATE INDEX idx_checkpoints_repo ON checkpoints(repo);
CREATE INDEX idx_checkpoints_created_at ON checkpoints(created_at);

CREATE TABLE agent_status (
	agent TEXT PRIMARY KEY,
	status TEXT NOT NULL DEFAULT 'idle',
	current_task TEXT,
	last_updated INTEGER NOT NULL
);

CREATE TABLE watch_dirs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL UNIQUE,
	enabled INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL
);

CREATE TABLE model_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	digest TEXT NOT NULL
);
`
