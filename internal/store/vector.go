package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	cwerrors "github.com/codewitness/codewitness/internal/errors"
)

// vectorToBlob encodes a float32 vector as a little-endian byte blob, the
// storage format sqlite-vec's vec0 tables expect.
func vectorToBlob(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func blobToVector(blob []byte) []float32 {
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v
}

// l2Norm returns the Euclidean norm of v.
func l2Norm(v []float32) float32 {
	var sum float32
	for _, f := range v {
		sum += f * f
	}
	return float32(math.Sqrt(float64(sum)))
}

// insertVector writes embedding into the named vec0 table keyed by id. It is
// a no-op (and returns nil) when the store is search-disabled; the caller
// already logged that the embedding is being dropped.
func (s *Store) insertVector(tx *sql.Tx, table string, id int64, embedding []float32) error {
	if s.vectorStatus != VectorOK {
		return nil
	}
	_, err := tx.Exec(fmt.Sprintf("INSERT INTO %s (id, embedding) VALUES (?, ?)", table), id, vectorToBlob(embedding))
	if err != nil {
		return cwerrors.StorageError(cwerrors.ErrCodeStorageVector, "inserting vector row", err)
	}
	return nil
}

func (s *Store) deleteVector(tx *sql.Tx, table string, id int64) error {
	if s.vectorStatus != VectorOK {
		return nil
	}
	_, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
	if err != nil {
		return cwerrors.StorageError(cwerrors.ErrCodeStorageVector, "deleting vector row", err)
	}
	return nil
}

// vectorMatch is a candidate (id, distance) pair from a vec0 KNN query.
type vectorMatch struct {
	ID       int64
	Distance float32
}

// searchVectors runs the top-K vec0 query (embedding MATCH ? ORDER BY
// distance LIMIT ?) against table, returning candidates ascending by
// distance. Callers apply the 3x overfetch factor themselves.
func (s *Store) searchVectors(ctx context.Context, table string, query []float32, limit int) ([]vectorMatch, error) {
	if s.vectorStatus != VectorOK {
		return nil, ErrVectorDisabled
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, distance FROM %s WHERE embedding MATCH ? AND k = ? ORDER BY distance", table,
	), vectorToBlob(query), limit)
	if err != nil {
		return nil, cwerrors.StorageError(cwerrors.ErrCodeStorageVector, "searching vectors", err)
	}
	defer rows.Close()

	var out []vectorMatch
	for rows.Next() {
		var m vectorMatch
		if err := rows.Scan(&m.ID, &m.Distance); err != nil {
			return nil, cwerrors.StorageError(cwerrors.ErrCodeStorageVector, "scanning vector match", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SearchChunkVectors runs a top-K vec0 query against chunk_vectors.
func (s *Store) SearchChunkVectors(ctx context.Context, query []float32, limit int) ([]vectorMatch, error) {
	return s.searchVectors(ctx, "chunk_vectors", query, limit)
}

// SearchLessonVectors runs a top-K vec0 query against lesson_vectors.
func (s *Store) SearchLessonVectors(ctx context.Context, query []float32, limit int) ([]vectorMatch, error) {
	return s.searchVectors(ctx, "lesson_vectors", query, limit)
}

// SearchCheckpointVectors runs a top-K vec0 query against checkpoint_vectors.
func (s *Store) SearchCheckpointVectors(ctx context.Context, query []float32, limit int) ([]vectorMatch, error) {
	return s.searchVectors(ctx, "checkpoint_vectors", query, limit)
}

// reconcileVectors runs once at Open: any chunk
// row whose embedding is expected (has_embedding=1) but whose vector row is
// missing is flagged for re-embedding on next touch (has_embedding reset to
// 0 so the indexer's cheap-path skip doesn't apply); any vector row whose
// owning row is gone is deleted. Applied to all three (chunk, lesson,
// checkpoint) vector tables.
func (s *Store) reconcileVectors() error {
	// Vector tables are keyed by the owning row's integer key: chunks use
	// their id column (a rowid alias), lessons and checkpoints have TEXT
	// ids and are keyed by rowid instead.
	reconciliations := []struct {
		relTable, keyCol, vecTable string
	}{
		{"chunks", "id", "chunk_vectors"},
		{"lessons", "rowid", "lesson_vectors"},
		{"checkpoints", "rowid", "checkpoint_vectors"},
	}

	for _, r := range reconciliations {
		if _, err := s.db.Exec(fmt.Sprintf(
			"UPDATE %s SET has_embedding = 0 WHERE has_embedding = 1 AND %s NOT IN (SELECT id FROM %s)",
			r.relTable, r.keyCol, r.vecTable,
		)); err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageVector, "flagging rows missing vectors for "+r.relTable, err)
		}
		if _, err := s.db.Exec(fmt.Sprintf(
			"DELETE FROM %s WHERE id NOT IN (SELECT %s FROM %s)",
			r.vecTable, r.keyCol, r.relTable,
		)); err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageVector, "deleting orphaned vectors for "+r.vecTable, err)
		}
	}
	return nil
}

// ModelDigest returns the embedding model digest recorded at last write, or
// "" if none has been recorded yet.
func (s *Store) ModelDigest() (string, error) {
	var digest string
	err := s.db.QueryRow("SELECT digest FROM model_state WHERE id = 1").Scan(&digest)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "reading model digest", err)
	}
	return digest, nil
}

// SetModelDigest records digest as the current embedding model's digest. If
// digest differs from the previously recorded one, every chunk/lesson/
// checkpoint embedding is flagged stale via the same has_embedding=0 path
// reconcileVectors uses, and the vector tables are cleared, forcing a full
// re-embed against the new model.
func (s *Store) SetModelDigest(ctx context.Context, digest string) error {
	return s.WithWrite(ctx, func(tx *sql.Tx) error {
		var prev string
		err := tx.QueryRow("SELECT digest FROM model_state WHERE id = 1").Scan(&prev)
		if err != nil && err != sql.ErrNoRows {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "reading previous model digest", err)
		}
		changed := err == sql.ErrNoRows || prev != digest
		if _, err := tx.Exec("INSERT INTO model_state (id, digest) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET digest = excluded.digest", digest); err != nil {
			return cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase, "recording model digest", err)
		}
		if !changed {
			return nil
		}
		for _, t := range []struct{ rel, vec string }{
			{"chunks", "chunk_vectors"},
			{"lessons", "lesson_vectors"},
			{"checkpoints", "checkpoint_vectors"},
		} {
			if _, err := tx.Exec(fmt.Sprintf("UPDATE %s SET has_embedding = 0", t.rel)); err != nil {
				return cwerrors.StorageError(cwerrors.ErrCodeStorageVector, "invalidating embeddings for "+t.rel, err)
			}
			if s.vectorStatus == VectorOK {
				if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", t.vec)); err != nil {
					return cwerrors.StorageError(cwerrors.ErrCodeStorageVector, "clearing vectors for "+t.vec, err)
				}
			}
		}
		return nil
	})
}
