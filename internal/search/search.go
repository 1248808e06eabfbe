// Package search implements top-K similarity search with post-filters over
// chunks, lessons, and checkpoints, plus their structured text queries.
package search

import (
	"context"
	"sort"
	"strings"

	"github.com/codewitness/codewitness/internal/store"
)

// overfetchFactor: fetch 3x the requested limit before post-filtering,
// trading a little I/O for tolerance against filter-induced dropouts.
const overfetchFactor = 3

// Engine runs similarity and structured queries against a Store.
type Engine struct {
	store *store.Store
}

// New returns an Engine over st.
func New(st *store.Store) *Engine {
	return &Engine{store: st}
}

// SearchChunks performs top-K similarity search over chunk embeddings,
// applying language/path/min-score post-filters.
func (e *Engine) SearchChunks(ctx context.Context, query []float32, k int, filter store.ChunkFilter) ([]store.SearchResult[store.Chunk], error) {
	overfetch := k * overfetchFactor
	matches, err := e.store.SearchChunkVectors(ctx, query, overfetch)
	if err != nil {
		return nil, err
	}

	out := make([]store.SearchResult[store.Chunk], 0, k)
	for _, m := range matches {
		c, err := e.store.ChunkByID(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		if filter.Language != "" && c.Language != filter.Language {
			continue
		}
		if filter.PathLike != "" && !containsSubstring(c.FilePath, filter.PathLike) {
			continue
		}
		score := store.ScoreFromDistance(m.Distance)
		if score < filter.MinScore {
			continue
		}
		out = append(out, store.SearchResult[store.Chunk]{Record: *c, Distance: m.Distance, Score: score})
	}

	sortByDistanceThenID(out, func(r store.SearchResult[store.Chunk]) int64 { return r.Record.ID })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// SearchLessons performs top-K similarity search over lesson embeddings.
func (e *Engine) SearchLessons(ctx context.Context, query []float32, k int, filter store.LessonFilter) ([]store.SearchResult[store.Lesson], error) {
	overfetch := k * overfetchFactor
	matches, err := e.store.SearchLessonVectors(ctx, query, overfetch)
	if err != nil {
		return nil, err
	}

	out := make([]store.SearchResult[store.Lesson], 0, k)
	for _, m := range matches {
		l, err := e.store.LessonByRowID(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		if l == nil {
			continue
		}
		if filter.Severity != "" && l.Severity != filter.Severity {
			continue
		}
		if filter.Repo != "" && l.Repo != filter.Repo {
			continue
		}
		if filter.Agent != "" && l.Agent != filter.Agent {
			continue
		}
		score := store.ScoreFromDistance(m.Distance)
		out = append(out, store.SearchResult[store.Lesson]{Record: *l, Distance: m.Distance, Score: score})
	}

	sortByDistanceThenString(out, func(r store.SearchResult[store.Lesson]) string { return r.Record.ID })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// SearchCheckpoints performs top-K similarity search over checkpoint
// embeddings.
func (e *Engine) SearchCheckpoints(ctx context.Context, query []float32, k int, filter store.CheckpointFilter) ([]store.SearchResult[store.Checkpoint], error) {
	overfetch := k * overfetchFactor
	matches, err := e.store.SearchCheckpointVectors(ctx, query, overfetch)
	if err != nil {
		return nil, err
	}

	out := make([]store.SearchResult[store.Checkpoint], 0, k)
	for _, m := range matches {
		c, err := e.store.CheckpointByRowID(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		if filter.Agent != "" && c.Agent != filter.Agent {
			continue
		}
		if filter.Repo != "" && c.Repo != filter.Repo {
			continue
		}
		if filter.SessionID != "" && c.SessionID != filter.SessionID {
			continue
		}
		score := store.ScoreFromDistance(m.Distance)
		out = append(out, store.SearchResult[store.Checkpoint]{Record: *c, Distance: m.Distance, Score: score})
	}

	sortByDistanceThenString(out, func(r store.SearchResult[store.Checkpoint]) string { return r.Record.ID })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func containsSubstring(haystack, needle string) bool {
	return needle == "" || strings.Contains(haystack, needle)
}

func sortByDistanceThenID[T any](results []store.SearchResult[T], id func(store.SearchResult[T]) int64) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return id(results[i]) < id(results[j])
	})
}

func sortByDistanceThenString[T any](results []store.SearchResult[T], id func(store.SearchResult[T]) string) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return id(results[i]) < id(results[j])
	})
}
