package store

import (
	"context"
	"database/sql"
	"strings"

	cwerrors "github.com/codewitness/codewitness/internal/errors"
)

// AddCheckpoint inserts a new checkpoint (without an embedding; attached
// later via UpdateCheckpointEmbedding) and returns the minted id.
func (s *Store) AddCheckpoint(ctx context.Context, c Checkpoint) (string, error) {
	id := newID()
	now := nowUnix()
	err := s.WithWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO checkpoints (id, agent, repo, session_id, working_on, state, created_at, has_embedding)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
			id, c.Agent, nullableString(c.Repo), nullableString(c.SessionID), c.WorkingOn, c.State, now,
		)
		if err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "inserting checkpoint", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetRecentCheckpoints returns the most recent checkpoints matching filter,
// newest first.
func (s *Store) GetRecentCheckpoints(ctx context.Context, filter CheckpointFilter) ([]Checkpoint, error) {
	var out []Checkpoint
	err := s.WithRead(ctx, func(tx *sql.Tx) error {
		var conds []string
		var args []any
		if filter.Agent != "" {
			conds = append(conds, "agent = ?")
			args = append(args, filter.Agent)
		}
		if filter.Repo != "" {
			conds = append(conds, "repo = ?")
			args = append(args, filter.Repo)
		}
		if filter.SessionID != "" {
			conds = append(conds, "session_id = ?")
			args = append(args, filter.SessionID)
		}
		query := "SELECT id, agent, repo, session_id, working_on, state, created_at FROM checkpoints"
		if len(conds) > 0 {
			query += " WHERE " + strings.Join(conds, " AND ")
		}
		limit := filter.Limit
		if limit <= 0 {
			limit = 20
		}
		query += " ORDER BY created_at DESC LIMIT ?"
		args = append(args, limit)

		rows, err := tx.Query(query, args...)
		if err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "listing checkpoints", err)
		}
		defer rows.Close()
		for rows.Next() {
			var c Checkpoint
			var repo, session sql.NullString
			if err := rows.Scan(&c.ID, &c.Agent, &repo, &session, &c.WorkingOn, &c.State, &c.CreatedAt); err != nil {
				return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "scanning checkpoint", err)
			}
			c.Repo = repo.String
			c.SessionID = session.String
			out = append(out, c)
		}
		return rows.Err()
	})
	return out, err
}

// SearchCheckpointsText performs a substring search over working_on/state,
// the text fallback used when vector search is disabled.
func (s *Store) SearchCheckpointsText(ctx context.Context, query string, filter CheckpointFilter) ([]Checkpoint, error) {
	var out []Checkpoint
	err := s.WithRead(ctx, func(tx *sql.Tx) error {
		conds := []string{"(working_on LIKE ? OR state LIKE ?)"}
		args := []any{"%" + query + "%", "%" + query + "%"}
		if filter.Agent != "" {
			conds = append(conds, "agent = ?")
			args = append(args, filter.Agent)
		}
		if filter.Repo != "" {
			conds = append(conds, "repo = ?")
			args = append(args, filter.Repo)
		}
		if filter.SessionID != "" {
			conds = append(conds, "session_id = ?")
			args = append(args, filter.SessionID)
		}
		limit := filter.Limit
		if limit <= 0 {
			limit = 20
		}
		sqlQuery := "SELECT id, agent, repo, session_id, working_on, state, created_at FROM checkpoints WHERE " +
			strings.Join(conds, " AND ") + " ORDER BY created_at DESC LIMIT ?"
		args = append(args, limit)

		rows, err := tx.Query(sqlQuery, args...)
		if err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "searching checkpoints by text", err)
		}
		defer rows.Close()
		for rows.Next() {
			var c Checkpoint
			var repo, session sql.NullString
			if err := rows.Scan(&c.ID, &c.Agent, &repo, &session, &c.WorkingOn, &c.State, &c.CreatedAt); err != nil {
				return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "scanning checkpoint", err)
			}
			c.Repo = repo.String
			c.SessionID = session.String
			out = append(out, c)
		}
		return rows.Err()
	})
	return out, err
}

// UpdateCheckpointEmbedding attaches embedding to an existing checkpoint.
func (s *Store) UpdateCheckpointEmbedding(ctx context.Context, id string, embedding []float32) error {
	return s.WithWrite(ctx, func(tx *sql.Tx) error {
		var rowid int64
		if err := tx.QueryRow("SELECT rowid FROM checkpoints WHERE id = ?", id).Scan(&rowid); err != nil {
			if err == sql.ErrNoRows {
				return cwerrors.NotFoundError("checkpoint " + id + " not found")
			}
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "locating checkpoint "+id, err)
		}
		if err := s.deleteVector(tx, "checkpoint_vectors", rowid); err != nil {
			return err
		}
		if err := s.insertVector(tx, "checkpoint_vectors", rowid, embedding); err != nil {
			return err
		}
		if _, err := tx.Exec("UPDATE checkpoints SET has_embedding = 1 WHERE id = ?", id); err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "flagging checkpoint embedded", err)
		}
		return nil
	})
}

// CheckpointByRowID resolves a vec0 rowid back to its owning checkpoint.
func (s *Store) CheckpointByRowID(ctx context.Context, rowid int64) (*Checkpoint, error) {
	var c Checkpoint
	var repo, session sql.NullString
	var scanErr error
	err := s.WithRead(ctx, func(tx *sql.Tx) error {
		scanErr = tx.QueryRow(
			`SELECT id, agent, repo, session_id, working_on, state, created_at FROM checkpoints WHERE rowid = ?`, rowid,
		).Scan(&c.ID, &c.Agent, &repo, &session, &c.WorkingOn, &c.State, &c.CreatedAt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if scanErr == sql.ErrNoRows {
		return nil, nil
	}
	if scanErr != nil {
		return nil, cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "reading checkpoint by rowid", scanErr)
	}
	c.Repo = repo.String
	c.SessionID = session.String
	return &c, nil
}

// CountCheckpoints returns the number of checkpoints recorded for agent.
func (s *Store) CountCheckpoints(ctx context.Context, agent string) (int, error) {
	var n int
	err := s.WithRead(ctx, func(tx *sql.Tx) error {
		return tx.QueryRow("SELECT COUNT(*) FROM checkpoints WHERE agent = ?", agent).Scan(&n)
	})
	if err != nil {
		return 0, cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "counting checkpoints for "+agent, err)
	}
	return n, nil
}

// CleanupOldCheckpoints retains only the keep most recent checkpoints for
// agent, deleting the rest (and their vector rows).
func (s *Store) CleanupOldCheckpoints(ctx context.Context, agent string, keep int) (int, error) {
	var deleted int
	err := s.WithWrite(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(
			`SELECT rowid FROM checkpoints WHERE agent = ? ORDER BY created_at DESC LIMIT -1 OFFSET ?`,
			agent, keep,
		)
		if err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "listing stale checkpoints for "+agent, err)
		}
		var rowids []int64
		for rows.Next() {
			var rowid int64
			if err := rows.Scan(&rowid); err != nil {
				rows.Close()
				return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "scanning stale checkpoint rowid", err)
			}
			rowids = append(rowids, rowid)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "iterating stale checkpoints", err)
		}

		for _, rowid := range rowids {
			if err := s.deleteVector(tx, "checkpoint_vectors", rowid); err != nil {
				return err
			}
			if _, err := tx.Exec("DELETE FROM checkpoints WHERE rowid = ?", rowid); err != nil {
				return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "deleting stale checkpoint", err)
			}
		}
		deleted = len(rowids)
		return nil
	})
	return deleted, err
}
