package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewitness/codewitness/internal/chunk"
	"github.com/codewitness/codewitness/internal/store"
)

// noopEmbedder is an Embedder that is never initialized, exercising the
// path where chunks are written without vectors.
type noopEmbedder struct{}

func (noopEmbedder) Initialized() bool { return false }
func (noopEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	panic("should not be called when uninitialized")
}

func newTestIndexer(t *testing.T) (*Indexer, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	ix := New(st, chunk.DefaultConfig(), noopEmbedder{}, nil)
	return ix, st
}

func TestIndex_InitialScanIndexesFile(t *testing.T) {
	// Given: a 3-line Rust file
	dir := t.TempDir()
	path := filepath.Join(dir, "main.rs")
	require.NoError(t, os.WriteFile(path, []byte("fn main() {\n    println!(\"hi\");\n}\n"), 0o644))
	ix, st := newTestIndexer(t)
	ctx := context.Background()

	// When: I index it
	count, err := ix.Index(ctx, path, "rust")
	require.NoError(t, err)

	// Then: exactly one chunk was written spanning the whole file
	assert.Equal(t, 1, count)
	chunks, err := st.ChunksForPath(ctx, path)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 3, chunks[0].EndLine)

	files, err := st.CountTrackedFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, files)
}

func TestIndex_UnchangedContentIsIdempotent(t *testing.T) {
	// Given: a file indexed once
	dir := t.TempDir()
	path := filepath.Join(dir, "a.rs")
	require.NoError(t, os.WriteFile(path, []byte("fn a() {}\n"), 0o644))
	ix, st := newTestIndexer(t)
	ctx := context.Background()

	first, err := ix.Index(ctx, path, "rust")
	require.NoError(t, err)
	assert.Greater(t, first, 0)

	before, err := st.ChunksForPath(ctx, path)
	require.NoError(t, err)
	var maxID int64
	for _, c := range before {
		if c.ID > maxID {
			maxID = c.ID
		}
	}

	// When: I index it again with the mtime touched but content unchanged
	touched := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, touched, touched))
	second, err := ix.Index(ctx, path, "rust")
	require.NoError(t, err)

	// Then: the second call reports zero new chunks and assigns no new ids
	assert.Equal(t, 0, second)
	after, err := st.ChunksForPath(ctx, path)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for _, c := range after {
		assert.LessOrEqual(t, c.ID, maxID)
	}
}

func TestIndex_ContentChangeTriggersReindex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.rs")
	require.NoError(t, os.WriteFile(path, []byte("fn a() {}\n"), 0o644))
	ix, st := newTestIndexer(t)
	ctx := context.Background()

	_, err := ix.Index(ctx, path, "rust")
	require.NoError(t, err)

	// When: the file content changes
	require.NoError(t, os.WriteFile(path, []byte("fn a() {}\nfn b() {}\n"), 0o644))
	count, err := ix.Index(ctx, path, "rust")
	require.NoError(t, err)

	// Then: it is reindexed (non-zero count) and the stored hash reflects
	// the new content
	assert.Greater(t, count, 0)
	state, err := st.GetFileState(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, state)
}

func TestIndex_MissingFileFallsThroughToDelete(t *testing.T) {
	// Given: a path that is tracked but no longer exists on disk
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.rs")
	require.NoError(t, os.WriteFile(path, []byte("fn a() {}\n"), 0o644))
	ix, st := newTestIndexer(t)
	ctx := context.Background()
	_, err := ix.Index(ctx, path, "rust")
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	// When: Index is called again
	count, err := ix.Index(ctx, path, "rust")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Then: the file's rows are purged
	state, err := st.GetFileState(ctx, path)
	require.NoError(t, err)
	assert.Nil(t, state)
	chunks, err := st.ChunksForPath(ctx, path)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestDelete_PurgesAllRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.rs")
	require.NoError(t, os.WriteFile(path, []byte("fn a() {}\n"), 0o644))
	ix, st := newTestIndexer(t)
	ctx := context.Background()
	_, err := ix.Index(ctx, path, "rust")
	require.NoError(t, err)

	require.NoError(t, ix.Delete(ctx, path))

	state, err := st.GetFileState(ctx, path)
	require.NoError(t, err)
	assert.Nil(t, state)
	chunks, err := st.ChunksForPath(ctx, path)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
