package store

import (
	"context"
	"database/sql"

	cwerrors "github.com/codewitness/codewitness/internal/errors"
)

// GetFileState looks up the file-state row for path. Returns (nil, nil) if
// absent.
func (s *Store) GetFileState(ctx context.Context, path string) (*FileState, error) {
	var fs FileState
	var err error
	readErr := s.WithRead(ctx, func(tx *sql.Tx) error {
		err = tx.QueryRow(
			"SELECT path, mtime, size, content_hash, last_indexed FROM file_state WHERE path = ?", path,
		).Scan(&fs.Path, &fs.MTime, &fs.Size, &fs.ContentHash, &fs.LastIndexed)
		return nil
	})
	if readErr != nil {
		return nil, readErr
	}
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "reading file state for "+path, err)
	}
	return &fs, nil
}

// DeleteChunksForPath removes all chunk rows (and their matching vector
// rows) for path in one transaction — the only deletion path chunks have.
func (s *Store) DeleteChunksForPath(ctx context.Context, path string) error {
	return s.WithWrite(ctx, func(tx *sql.Tx) error {
		return s.deleteChunksForPathTx(tx, path)
	})
}

func (s *Store) deleteChunksForPathTx(tx *sql.Tx, path string) error {
	rows, err := tx.Query("SELECT id FROM chunks WHERE file_path = ?", path)
	if err != nil {
		return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "listing chunk ids for "+path, err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "scanning chunk id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "iterating chunk ids", err)
	}

	for _, id := range ids {
		if err := s.deleteVector(tx, "chunk_vectors", id); err != nil {
			return err
		}
	}
	if _, err := tx.Exec("DELETE FROM chunks WHERE file_path = ?", path); err != nil {
		return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "deleting chunks for "+path, err)
	}
	return nil
}

// DeleteFileState removes the file-state row for path, or does nothing if
// none exists.
func (s *Store) DeleteFileState(ctx context.Context, path string) error {
	return s.WithWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec("DELETE FROM file_state WHERE path = ?", path)
		if err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "deleting file state for "+path, err)
		}
		return nil
	})
}

// DeletePath removes all chunk rows, vector rows, and the file-state row for
// path in a single transaction.
func (s *Store) DeletePath(ctx context.Context, path string) error {
	return s.WithWrite(ctx, func(tx *sql.Tx) error {
		if err := s.deleteChunksForPathTx(tx, path); err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM file_state WHERE path = ?", path); err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "deleting file state for "+path, err)
		}
		return nil
	})
}

// InsertChunksBatch is the only production insertion path for reindexing:
// it deletes all prior chunks for path, inserts the new batch (with vector
// rows iff the chunk carries an embedding), and upserts the file-state row,
// atomically.
func (s *Store) InsertChunksBatch(ctx context.Context, path string, fs FileState, chunks []Chunk) error {
	return s.WithWrite(ctx, func(tx *sql.Tx) error {
		if err := s.deleteChunksForPathTx(tx, path); err != nil {
			return err
		}
		for _, c := range chunks {
			hasEmbedding := 0
			if c.Embedding != nil {
				hasEmbedding = 1
			}
			res, err := tx.Exec(
				`INSERT INTO chunks (file_path, chunk_index, start_line, end_line, content, language, file_hash, indexed_at, has_embedding)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				c.FilePath, c.ChunkIndex, c.StartLine, c.EndLine, c.Content, nullableString(c.Language), c.FileHash, c.IndexedAt, hasEmbedding,
			)
			if err != nil {
				// A UNIQUE(file_path, chunk_index) violation here signals a
				// logic error in the indexer, not user input; surfaced
				// verbatim rather than retried.
				return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "inserting chunk", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "reading inserted chunk id", err)
			}
			if c.Embedding != nil {
				if err := s.insertVector(tx, "chunk_vectors", id, c.Embedding); err != nil {
					return err
				}
			}
		}

		if _, err := tx.Exec(
			`INSERT INTO file_state (path, mtime, size, content_hash, last_indexed)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(path) DO UPDATE SET mtime = excluded.mtime, size = excluded.size,
				content_hash = excluded.content_hash, last_indexed = excluded.last_indexed`,
			fs.Path, fs.MTime, fs.Size, fs.ContentHash, fs.LastIndexed,
		); err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "upserting file state for "+path, err)
		}
		return nil
	})
}

// CountChunks returns the total number of chunk rows.
func (s *Store) CountChunks(ctx context.Context) (int, error) {
	var n int
	err := s.WithRead(ctx, func(tx *sql.Tx) error {
		return tx.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&n)
	})
	if err != nil {
		return 0, cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "counting chunks", err)
	}
	return n, nil
}

// CountTrackedFiles returns the number of rows in file_state.
func (s *Store) CountTrackedFiles(ctx context.Context) (int, error) {
	var n int
	err := s.WithRead(ctx, func(tx *sql.Tx) error {
		return tx.QueryRow("SELECT COUNT(*) FROM file_state").Scan(&n)
	})
	if err != nil {
		return 0, cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "counting tracked files", err)
	}
	return n, nil
}

// ChunksForPath returns every chunk currently stored for path, ordered by
// chunk_index. Used by tests and by the reindex-all trigger's sanity checks.
func (s *Store) ChunksForPath(ctx context.Context, path string) ([]Chunk, error) {
	var out []Chunk
	err := s.WithRead(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(
			`SELECT id, file_path, chunk_index, start_line, end_line, content, language, file_hash, indexed_at
			 FROM chunks WHERE file_path = ? ORDER BY chunk_index`, path,
		)
		if err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "listing chunks for "+path, err)
		}
		defer rows.Close()
		for rows.Next() {
			var c Chunk
			var language sql.NullString
			if err := rows.Scan(&c.ID, &c.FilePath, &c.ChunkIndex, &c.StartLine, &c.EndLine, &c.Content, &language, &c.FileHash, &c.IndexedAt); err != nil {
				return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "scanning chunk", err)
			}
			c.Language = language.String
			out = append(out, c)
		}
		return rows.Err()
	})
	return out, err
}

// ChunkByID looks up a single chunk by its row id, used to resolve chunk
// similarity matches back to full records. Returns (nil, nil) if absent
// (the row may have been deleted between the vector match and the join).
func (s *Store) ChunkByID(ctx context.Context, id int64) (*Chunk, error) {
	var c Chunk
	var language sql.NullString
	var scanErr error
	err := s.WithRead(ctx, func(tx *sql.Tx) error {
		scanErr = tx.QueryRow(
			`SELECT id, file_path, chunk_index, start_line, end_line, content, language, file_hash, indexed_at
			 FROM chunks WHERE id = ?`, id,
		).Scan(&c.ID, &c.FilePath, &c.ChunkIndex, &c.StartLine, &c.EndLine, &c.Content, &language, &c.FileHash, &c.IndexedAt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if scanErr == sql.ErrNoRows {
		return nil, nil
	}
	if scanErr != nil {
		return nil, cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "reading chunk by id", scanErr)
	}
	c.Language = language.String
	return &c, nil
}

// AllTrackedPaths returns every path with a file_state row, used by the
// reindex-all trigger.
func (s *Store) AllTrackedPaths(ctx context.Context) ([]string, error) {
	var out []string
	err := s.WithRead(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query("SELECT path FROM file_state")
		if err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "listing tracked paths", err)
		}
		defer rows.Close()
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "scanning tracked path", err)
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
