package indexer

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/codewitness/codewitness/internal/chunk"
	"github.com/codewitness/codewitness/internal/scanner"
)

// Walk recursively indexes every file under root that the chunk filter
// considers indexable, returning the number of files indexed. The walk is
// best-effort: per-entry errors are logged and counted, never fatal.
func (ix *Indexer) Walk(ctx context.Context, root string) (int, error) {
	sc, err := scanner.New()
	if err != nil {
		return 0, err
	}
	filter := chunk.NewFilter(root)

	results, err := sc.Scan(ctx, &scanner.ScanOptions{RootDir: root, RespectGitignore: true})
	if err != nil {
		return 0, err
	}

	var found, indexed, skipped, errs int
	for res := range results {
		if res.Error != nil {
			errs++
			ix.logger.Warn("scan error", slog.String("error", res.Error.Error()))
			continue
		}
		if res.File == nil {
			continue
		}
		found++
		rel, err := filepath.Rel(root, res.File.AbsPath)
		if err != nil {
			rel = res.File.Path
		}
		if !filter.ShouldIndex(rel, false) {
			skipped++
			continue
		}
		ext := filepath.Ext(res.File.AbsPath)
		lang, _ := chunk.LanguageForExtension(trimDot(ext))

		if _, err := ix.Index(ctx, res.File.AbsPath, lang); err != nil {
			errs++
			ix.logger.Warn("indexing failed",
				slog.String("path", res.File.AbsPath), slog.String("error", err.Error()))
			continue
		}
		indexed++
	}
	ix.logger.Info("scan complete",
		slog.String("root", root),
		slog.Int("found", found),
		slog.Int("indexed", indexed),
		slog.Int("skipped", skipped),
		slog.Int("errors", errs))
	return indexed, nil
}

// ReindexAll clears the file-state rows for every tracked path, then walks
// root again. Chunks are not preemptively deleted, so readers keep serving
// the previous content until each file is revisited.
func (ix *Indexer) ReindexAll(ctx context.Context, root string) (int, error) {
	tracked, err := ix.store.AllTrackedPaths(ctx)
	if err != nil {
		return 0, err
	}
	for _, path := range tracked {
		if err := ix.store.DeleteFileState(ctx, path); err != nil {
			return 0, err
		}
	}
	return ix.Walk(ctx, root)
}

func trimDot(ext string) string {
	if len(ext) > 0 && ext[0] == '.' {
		return ext[1:]
	}
	return ext
}
