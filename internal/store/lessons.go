package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	cwerrors "github.com/codewitness/codewitness/internal/errors"
)

// AddLesson inserts a new lesson (without an embedding; the caller attaches
// one afterward via UpdateLessonEmbedding) and returns the minted id.
func (s *Store) AddLesson(ctx context.Context, l Lesson) (string, error) {
	id := newID()
	now := nowUnix()
	tags, err := json.Marshal(l.Tags)
	if err != nil {
		return "", cwerrors.InternalError("marshaling lesson tags", err)
	}
	if l.Severity == "" {
		l.Severity = SeverityInfo
	}
	err = s.WithWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO lessons (id, title, content, tags, severity, agent, repo, created_at, updated_at, has_embedding)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
			id, l.Title, l.Content, string(tags), string(l.Severity), nullableString(l.Agent), nullableString(l.Repo), now, now,
		)
		if err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "inserting lesson", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetLesson returns the lesson with the given id, or nil if absent.
func (s *Store) GetLesson(ctx context.Context, id string) (*Lesson, error) {
	var l Lesson
	var tags, agent, repo sql.NullString
	var sev string
	var scanErr error
	err := s.WithRead(ctx, func(tx *sql.Tx) error {
		scanErr = tx.QueryRow(
			`SELECT id, title, content, tags, severity, agent, repo, created_at, updated_at FROM lessons WHERE id = ?`, id,
		).Scan(&l.ID, &l.Title, &l.Content, &tags, &sev, &agent, &repo, &l.CreatedAt, &l.UpdatedAt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if scanErr == sql.ErrNoRows {
		return nil, nil
	}
	if scanErr != nil {
		return nil, cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "reading lesson "+id, scanErr)
	}
	l.Severity = Severity(sev)
	l.Agent = agent.String
	l.Repo = repo.String
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &l.Tags); err != nil {
			return nil, cwerrors.InternalError("unmarshaling lesson tags for "+id, err)
		}
	}
	return &l, nil
}

// DeleteLesson removes a lesson and its vector row. Deleting a lesson that
// does not exist returns a NotFound error.
func (s *Store) DeleteLesson(ctx context.Context, id string) error {
	return s.WithWrite(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRow("SELECT 1 FROM lessons WHERE id = ?", id).Scan(&exists); err != nil {
			if err == sql.ErrNoRows {
				return cwerrors.NotFoundError("lesson " + id + " not found")
			}
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "checking lesson existence", err)
		}
		if err := s.deleteLessonVectorTx(tx, id); err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM lessons WHERE id = ?", id); err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "deleting lesson "+id, err)
		}
		return nil
	})
}

// tagPattern returns a LIKE pattern matching tag as a whole element of the
// serialized tags JSON array. Tags are wrapped in their JSON-quoted form
// (e.g. `"rust"`) before the wildcard is added, so a tag "go" never
// substring-matches a stored tag "golang".
func tagPattern(tag string) (string, error) {
	quoted, err := json.Marshal(tag)
	if err != nil {
		return "", err
	}
	return "%" + string(quoted) + "%", nil
}

func tagConds(conds []string, args []any, tagsAll, tagsAny []string) ([]string, []any, error) {
	for _, t := range tagsAll {
		p, err := tagPattern(t)
		if err != nil {
			return nil, nil, err
		}
		conds = append(conds, "tags LIKE ?")
		args = append(args, p)
	}
	if len(tagsAny) > 0 {
		var ors []string
		for _, t := range tagsAny {
			p, err := tagPattern(t)
			if err != nil {
				return nil, nil, err
			}
			ors = append(ors, "tags LIKE ?")
			args = append(args, p)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	return conds, args, nil
}

// ListLessons returns lessons matching filter, newest first.
func (s *Store) ListLessons(ctx context.Context, filter LessonFilter) ([]Lesson, error) {
	var out []Lesson
	err := s.WithRead(ctx, func(tx *sql.Tx) error {
		var conds []string
		var args []any
		if filter.Severity != "" {
			conds = append(conds, "severity = ?")
			args = append(args, string(filter.Severity))
		}
		if filter.Repo != "" {
			conds = append(conds, "repo = ?")
			args = append(args, filter.Repo)
		}
		if filter.Agent != "" {
			conds = append(conds, "agent = ?")
			args = append(args, filter.Agent)
		}
		var err error
		conds, args, err = tagConds(conds, args, filter.TagsAll, filter.TagsAny)
		if err != nil {
			return cwerrors.InternalError("building tag filter patterns", err)
		}
		query := "SELECT id, title, content, tags, severity, agent, repo, created_at, updated_at FROM lessons"
		if len(conds) > 0 {
			query += " WHERE " + strings.Join(conds, " AND ")
		}
		query += " ORDER BY created_at DESC"
		limit := filter.Limit
		if limit <= 0 {
			limit = 50
		}
		query += " LIMIT ?"
		args = append(args, limit)

		rows, err := tx.Query(query, args...)
		if err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "listing lessons", err)
		}
		defer rows.Close()
		for rows.Next() {
			var l Lesson
			var tags, agent, repo sql.NullString
			var sev string
			if err := rows.Scan(&l.ID, &l.Title, &l.Content, &tags, &sev, &agent, &repo, &l.CreatedAt, &l.UpdatedAt); err != nil {
				return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "scanning lesson", err)
			}
			l.Severity = Severity(sev)
			l.Agent = agent.String
			l.Repo = repo.String
			if tags.Valid && tags.String != "" {
				if err := json.Unmarshal([]byte(tags.String), &l.Tags); err != nil {
					return cwerrors.InternalError("unmarshaling lesson tags", err)
				}
			}
			out = append(out, l)
		}
		return rows.Err()
	})
	return out, err
}

// UpdateLessonEmbedding attaches embedding to an existing lesson, writing its
// vector row and flipping has_embedding — the completion of the async-embed
// path AddLesson starts.
func (s *Store) UpdateLessonEmbedding(ctx context.Context, id string, embedding []float32) error {
	return s.WithWrite(ctx, func(tx *sql.Tx) error {
		var rowid int64
		if err := tx.QueryRow("SELECT rowid FROM lessons WHERE id = ?", id).Scan(&rowid); err != nil {
			if err == sql.ErrNoRows {
				return cwerrors.NotFoundError("lesson " + id + " not found")
			}
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "locating lesson "+id, err)
		}
		if err := s.deleteVector(tx, "lesson_vectors", rowid); err != nil {
			return err
		}
		if err := s.insertVector(tx, "lesson_vectors", rowid, embedding); err != nil {
			return err
		}
		if _, err := tx.Exec("UPDATE lessons SET has_embedding = 1 WHERE id = ?", id); err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "flagging lesson embedded", err)
		}
		return nil
	})
}

func (s *Store) deleteLessonVectorTx(tx *sql.Tx, id string) error {
	var rowid int64
	err := tx.QueryRow("SELECT rowid FROM lessons WHERE id = ?", id).Scan(&rowid)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "locating lesson "+id, err)
	}
	return s.deleteVector(tx, "lesson_vectors", rowid)
}

// SearchLessonsText performs a substring search over title/content, the
// fallback when vector search is disabled.
func (s *Store) SearchLessonsText(ctx context.Context, query string, filter LessonFilter) ([]Lesson, error) {
	var out []Lesson
	err := s.WithRead(ctx, func(tx *sql.Tx) error {
		var conds []string
		args := []any{"%" + query + "%", "%" + query + "%"}
		conds = append(conds, "(title LIKE ? OR content LIKE ?)")
		if filter.Severity != "" {
			conds = append(conds, "severity = ?")
			args = append(args, string(filter.Severity))
		}
		if filter.Repo != "" {
			conds = append(conds, "repo = ?")
			args = append(args, filter.Repo)
		}
		if filter.Agent != "" {
			conds = append(conds, "agent = ?")
			args = append(args, filter.Agent)
		}
		var tagErr error
		conds, args, tagErr = tagConds(conds, args, filter.TagsAll, filter.TagsAny)
		if tagErr != nil {
			return cwerrors.InternalError("building tag filter patterns", tagErr)
		}
		limit := filter.Limit
		if limit <= 0 {
			limit = 50
		}
		sqlQuery := "SELECT id, title, content, tags, severity, agent, repo, created_at, updated_at FROM lessons WHERE " +
			strings.Join(conds, " AND ") + " ORDER BY created_at DESC LIMIT ?"
		args = append(args, limit)

		rows, err := tx.Query(sqlQuery, args...)
		if err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "searching lessons by text", err)
		}
		defer rows.Close()
		for rows.Next() {
			var l Lesson
			var tags, agent, repo sql.NullString
			var sev string
			if err := rows.Scan(&l.ID, &l.Title, &l.Content, &tags, &sev, &agent, &repo, &l.CreatedAt, &l.UpdatedAt); err != nil {
				return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "scanning lesson", err)
			}
			l.Severity = Severity(sev)
			l.Agent = agent.String
			l.Repo = repo.String
			if tags.Valid && tags.String != "" {
				if err := json.Unmarshal([]byte(tags.String), &l.Tags); err != nil {
					return cwerrors.InternalError("unmarshaling lesson tags", err)
				}
			}
			out = append(out, l)
		}
		return rows.Err()
	})
	return out, err
}

// CountLessons returns the total number of lesson rows.
func (s *Store) CountLessons(ctx context.Context) (int, error) {
	var n int
	err := s.WithRead(ctx, func(tx *sql.Tx) error {
		return tx.QueryRow("SELECT COUNT(*) FROM lessons").Scan(&n)
	})
	if err != nil {
		return 0, cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "counting lessons", err)
	}
	return n, nil
}

// LessonByRowID resolves a vec0 rowid back to its owning lesson, used by
// the search package when turning vector matches into records.
func (s *Store) LessonByRowID(ctx context.Context, rowid int64) (*Lesson, error) {
	var l Lesson
	var tags, agent, repo sql.NullString
	var sev string
	var scanErr error
	err := s.WithRead(ctx, func(tx *sql.Tx) error {
		scanErr = tx.QueryRow(
			`SELECT id, title, content, tags, severity, agent, repo, created_at, updated_at FROM lessons WHERE rowid = ?`, rowid,
		).Scan(&l.ID, &l.Title, &l.Content, &tags, &sev, &agent, &repo, &l.CreatedAt, &l.UpdatedAt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if scanErr == sql.ErrNoRows {
		return nil, nil
	}
	if scanErr != nil {
		return nil, cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "reading lesson by rowid", scanErr)
	}
	l.Severity = Severity(sev)
	l.Agent = agent.String
	l.Repo = repo.String
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &l.Tags); err != nil {
			return nil, cwerrors.InternalError("unmarshaling lesson tags", err)
		}
	}
	return &l, nil
}
