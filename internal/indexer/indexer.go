// Package indexer orchestrates the read → hash → chunk → embed → write
// pipeline that turns a file on disk into chunk and vector-index rows.
package indexer

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"lukechampine.com/blake3"

	"github.com/codewitness/codewitness/internal/chunk"
	cwerrors "github.com/codewitness/codewitness/internal/errors"
	"github.com/codewitness/codewitness/internal/store"
)

// Embedder is the subset of internal/embed.Pool the indexer depends on.
type Embedder interface {
	Initialized() bool
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Indexer runs the per-path indexing pipeline under a per-path lock,
// ensuring at most one reindex is in flight per file at a time.
type Indexer struct {
	store    *store.Store
	chunker  *chunk.Chunker
	embedder Embedder
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs an Indexer. embedder may be nil or uninitialized; chunks
// are then written without embeddings and similarity search skips them.
func New(st *store.Store, chunkerCfg chunk.Config, embedder Embedder, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		store:    st,
		chunker:  chunk.New(chunkerCfg),
		embedder: embedder,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockFor returns (creating if absent) the serialization lock for path.
func (ix *Indexer) lockFor(path string) *sync.Mutex {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	l, ok := ix.locks[path]
	if !ok {
		l = &sync.Mutex{}
		ix.locks[path] = l
	}
	return l
}

// Index runs the full pipeline for path: stat → hash → cheap-path skip →
// chunk → embed → single write transaction. Returns the number of chunks
// written; 0 on a hash-match skip, so a repeat call with unchanged content
// is a no-op.
func (ix *Indexer) Index(ctx context.Context, path, language string) (int, error) {
	lock := ix.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			// The file no longer exists: fall through to delete.
			return 0, ix.store.DeletePath(ctx, path)
		}
		return 0, cwerrors.WatcherError(cwerrors.ErrCodeWatcherProcessFailed, "stating "+path, err)
	}
	if info.IsDir() {
		return 0, cwerrors.WatcherError(cwerrors.ErrCodeWatcherProcessFailed, path+" is a directory", nil)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return 0, cwerrors.WatcherError(cwerrors.ErrCodeWatcherProcessFailed, "reading "+path, err)
	}
	hash := contentHash(content)

	existing, err := ix.store.GetFileState(ctx, path)
	if err != nil {
		return 0, err
	}
	if existing != nil && existing.ContentHash == hash {
		return 0, nil
	}

	chunks := ix.chunker.Chunk(string(content))
	if len(chunks) == 0 {
		// Empty chunk result (e.g. an empty file): fall through to delete
		// rather than writing a file-state row with zero chunks.
		return 0, ix.store.DeletePath(ctx, path)
	}
	now := nowUnix()
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	var vectors [][]float32
	if ix.embedder != nil && ix.embedder.Initialized() && len(texts) > 0 {
		vectors, err = ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			// Tokenization/runtime errors are not fatal to the indexer:
			// log at warn, store chunks without embeddings.
			ix.logger.Warn("embedding failed, storing chunks without vectors",
				slog.String("path", path), slog.String("error", err.Error()))
			vectors = nil
		}
	}

	storeChunks := make([]store.Chunk, len(chunks))
	for i, c := range chunks {
		sc := store.Chunk{
			FilePath:   path,
			ChunkIndex: c.Index,
			StartLine:  c.StartLine,
			EndLine:    c.EndLine,
			Content:    c.Content,
			Language:   language,
			FileHash:   hash,
			IndexedAt:  now,
		}
		if vectors != nil && i < len(vectors) {
			sc.Embedding = vectors[i]
		}
		storeChunks[i] = sc
	}

	fs := store.FileState{
		Path:        path,
		MTime:       info.ModTime().Unix(),
		Size:        info.Size(),
		ContentHash: hash,
		LastIndexed: now,
	}

	if err := ix.store.InsertChunksBatch(ctx, path, fs, storeChunks); err != nil {
		return 0, err
	}
	return len(storeChunks), nil
}

// Delete removes all chunk, vector, and file-state rows for path in one
// transaction.
func (ix *Indexer) Delete(ctx context.Context, path string) error {
	lock := ix.lockFor(path)
	lock.Lock()
	defer lock.Unlock()
	return ix.store.DeletePath(ctx, path)
}

// contentHash returns a BLAKE3 digest of content as lowercase hex, the
// cheap-path skip key.
func contentHash(content []byte) string {
	sum := blake3.Sum256(content)
	return hexEncode(sum[:])
}

func hexEncode(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0x0f]
	}
	return string(out)
}
