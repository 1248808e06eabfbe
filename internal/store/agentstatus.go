package store

import (
	"context"
	"database/sql"

	cwerrors "github.com/codewitness/codewitness/internal/errors"
)

// GetOrCreateAgentStatus returns the current status row for agent, creating
// an idle default row if none exists yet. Callers cannot distinguish an
// unknown agent from an idle one.
func (s *Store) GetOrCreateAgentStatus(ctx context.Context, agent string) (AgentStatus, error) {
	var st AgentStatus
	err := s.WithWrite(ctx, func(tx *sql.Tx) error {
		var status string
		var task sql.NullString
		err := tx.QueryRow(
			"SELECT status, current_task, last_updated FROM agent_status WHERE agent = ?", agent,
		).Scan(&status, &task, &st.LastUpdated)
		if err == sql.ErrNoRows {
			now := nowUnix()
			if _, err := tx.Exec(
				"INSERT INTO agent_status (agent, status, current_task, last_updated) VALUES (?, 'idle', NULL, ?)",
				agent, now,
			); err != nil {
				return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "creating agent status for "+agent, err)
			}
			st = AgentStatus{Agent: agent, Status: AgentIdle, LastUpdated: now}
			return nil
		}
		if err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "reading agent status for "+agent, err)
		}
		st.Agent = agent
		st.Status = AgentState(status)
		st.CurrentTask = task.String
		return nil
	})
	return st, err
}

// SetAgentStatus upserts agent's status.
func (s *Store) SetAgentStatus(ctx context.Context, agent string, status AgentState, currentTask string) error {
	return s.WithWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO agent_status (agent, status, current_task, last_updated)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(agent) DO UPDATE SET status = excluded.status, current_task = excluded.current_task, last_updated = excluded.last_updated`,
			agent, string(status), nullableString(currentTask), nowUnix(),
		)
		if err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "setting agent status for "+agent, err)
		}
		return nil
	})
}

// ListAgentStatuses returns every known agent's status.
func (s *Store) ListAgentStatuses(ctx context.Context) ([]AgentStatus, error) {
	var out []AgentStatus
	err := s.WithRead(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query("SELECT agent, status, current_task, last_updated FROM agent_status ORDER BY last_updated DESC")
		if err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "listing agent statuses", err)
		}
		defer rows.Close()
		for rows.Next() {
			var st AgentStatus
			var status string
			var task sql.NullString
			if err := rows.Scan(&st.Agent, &status, &task, &st.LastUpdated); err != nil {
				return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "scanning agent status", err)
			}
			st.Status = AgentState(status)
			st.CurrentTask = task.String
			out = append(out, st)
		}
		return rows.Err()
	})
	return out, err
}

// CleanupStaleAgents removes agent_status rows not updated within maxAgeSecs,
// returning the number removed.
func (s *Store) CleanupStaleAgents(ctx context.Context, maxAgeSecs int64) (int, error) {
	var n int64
	err := s.WithWrite(ctx, func(tx *sql.Tx) error {
		cutoff := nowUnix() - maxAgeSecs
		res, err := tx.Exec("DELETE FROM agent_status WHERE last_updated < ?", cutoff)
		if err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "cleaning up stale agents", err)
		}
		n, err = res.RowsAffected()
		if err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "reading stale-agent cleanup count", err)
		}
		return nil
	})
	return int(n), err
}
