package store

import (
	"context"
	"database/sql"

	cwerrors "github.com/codewitness/codewitness/internal/errors"
)

// AddWatchDir persists path as a watched root, enabled by default. Adding a
// path that is already present is a no-op.
func (s *Store) AddWatchDir(ctx context.Context, path string) error {
	return s.WithWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			"INSERT INTO watch_dirs (path, enabled, created_at) VALUES (?, 1, ?) ON CONFLICT(path) DO NOTHING",
			path, nowUnix(),
		)
		if err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "adding watch dir "+path, err)
		}
		return nil
	})
}

// ListWatchDirs returns every watched root, enabled or not.
func (s *Store) ListWatchDirs(ctx context.Context) ([]WatchDir, error) {
	var out []WatchDir
	err := s.WithRead(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query("SELECT id, path, enabled, created_at FROM watch_dirs ORDER BY created_at")
		if err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "listing watch dirs", err)
		}
		defer rows.Close()
		for rows.Next() {
			var wd WatchDir
			var enabled int
			if err := rows.Scan(&wd.ID, &wd.Path, &enabled, &wd.CreatedAt); err != nil {
				return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "scanning watch dir", err)
			}
			wd.Enabled = enabled != 0
			out = append(out, wd)
		}
		return rows.Err()
	})
	return out, err
}

// RemoveWatchDir deletes path from the watched-roots table.
func (s *Store) RemoveWatchDir(ctx context.Context, path string) error {
	return s.WithWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec("DELETE FROM watch_dirs WHERE path = ?", path)
		if err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "removing watch dir "+path, err)
		}
		return nil
	})
}
