package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/codewitness/codewitness/internal/async"
	"github.com/codewitness/codewitness/internal/chunk"
	"github.com/codewitness/codewitness/internal/config"
	"github.com/codewitness/codewitness/internal/embed"
	"github.com/codewitness/codewitness/internal/indexer"
	"github.com/codewitness/codewitness/internal/logging"
	"github.com/codewitness/codewitness/internal/mcp"
	"github.com/codewitness/codewitness/internal/search"
	"github.com/codewitness/codewitness/internal/store"
	"github.com/codewitness/codewitness/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var transport string
	var session string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `serve watches the project, keeps the index up to date, and exposes
the codewitness tool set over the Model Context Protocol.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), transport, session)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "MCP transport (stdio is the only one supported)")
	cmd.Flags().StringVar(&session, "session", "", "Session identifier, included in log lines")

	return cmd
}

// runServe wires store, embedder, indexer, watcher, search, and the async
// runner together and runs the MCP server until ctx is canceled.
//
// Stdout is reserved exclusively for JSON-RPC once the MCP transport starts.
// Every status and error message below must go through slog to the file
// logger, never to stdout.
func runServe(ctx context.Context, transport string, session string) error {
	if transport != "stdio" {
		return fmt.Errorf("unsupported transport %q (only stdio is wired)", transport)
	}

	cleanup, err := logging.SetupMCPMode()
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer cleanup()

	logger := slog.Default()
	if session != "" {
		logger = logger.With(slog.String("session", session))
	}

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	roots := cfg.WatchDirs
	if len(roots) == 0 {
		roots = []string{root}
	}

	lock, err := store.LockDataDir(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("acquiring data directory lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	dbPath := filepath.Join(cfg.DataDir, "codewitness.db")
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() { _ = st.Close() }()

	if st.VectorStatus() != store.VectorOK {
		logger.Warn("vector extension unavailable, similarity search disabled")
	}

	// Persist this run's roots and restore roots watched by earlier runs,
	// so a restart keeps watching directories added before it.
	for _, r := range roots {
		if err := st.AddWatchDir(ctx, r); err != nil {
			logger.Warn("persisting watch dir failed", slog.String("path", r), slog.String("error", err.Error()))
		}
	}
	if saved, err := st.ListWatchDirs(ctx); err != nil {
		logger.Warn("restoring watch dirs failed", slog.String("error", err.Error()))
	} else {
		for _, wd := range saved {
			if wd.Enabled && !slices.Contains(roots, wd.Path) {
				roots = append(roots, wd.Path)
			}
		}
	}

	embedder, err := embed.New(embed.Options{
		ModelPath:     cfg.Embeddings.ModelPath,
		TokenizerPath: cfg.Embeddings.TokenizerPath,
		NumWorkers:    cfg.Embeddings.EmbeddingThreads,
		CacheSize:     cfg.Embeddings.CacheSize,
	})
	if err != nil {
		return fmt.Errorf("initializing embedding pool: %w", err)
	}
	defer embedder.Close()
	if !embedder.Initialized() {
		logger.Warn("embedding pool not initialized, semantic search will return empty results")
	} else if err := st.SetModelDigest(ctx, embedder.ModelDigest()); err != nil {
		// A changed model invalidates every stored embedding; failing to
		// record the digest only delays that invalidation, so log and go on.
		logger.Warn("recording model digest failed", slog.String("error", err.Error()))
	}

	chunkerCfg := chunk.Config{
		TargetLines:  cfg.Indexing.TargetLines,
		MinLines:     cfg.Indexing.MinLines,
		MaxLines:     cfg.Indexing.MaxLines,
		OverlapLines: cfg.Indexing.OverlapLines,
	}
	ix := indexer.New(st, chunkerCfg, embedder, logger)
	eng := search.New(st)
	runner := async.New(4, logger)
	defer runner.Wait()

	watchOpts := watcher.DefaultOptions()
	if cfg.Indexing.DebounceMs > 0 {
		watchOpts.DebounceWindow = time.Duration(cfg.Indexing.DebounceMs) * time.Millisecond
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()

	w, err := watcher.New(roots, watchOpts, logger)
	if err != nil {
		logger.Warn("starting file watcher failed, serving without live updates", slog.String("error", err.Error()))
	} else {
		defer func() { _ = w.Close() }()
		go w.Run(watchCtx)
		go runIndexLoop(watchCtx, w, ix, roots, logger)

		for _, r := range roots {
			root := r
			runner.Go("initial-scan:"+root, func(taskCtx context.Context) error {
				n, err := ix.Walk(taskCtx, root)
				if err != nil {
					return err
				}
				logger.Info("initial scan complete", slog.String("root", root), slog.Int("files", n))
				return nil
			})
		}
	}

	if cfg.Server.Port > 0 {
		startStatusServer(watchCtx, cfg, st, logger)
	}

	srv := mcp.New(st, eng, embedder, ix, runner, roots, logger)
	logger.Info("mcp server starting", slog.String("transport", transport))
	return srv.Serve(ctx)
}

// runIndexLoop applies debounced watcher batches to the indexer until ctx
// is canceled. Modified paths that fail the file filter are dropped and
// counted; deletes always go through so removed files are purged.
func runIndexLoop(ctx context.Context, w *watcher.Watcher, ix *indexer.Indexer, roots []string, logger *slog.Logger) {
	filters := make(map[string]*chunk.Filter, len(roots))
	for _, root := range roots {
		filters[root] = chunk.NewFilter(root)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-w.Events():
			if !ok {
				return
			}
			filtered := 0
			for _, path := range batch.Modified {
				if !shouldIndexPath(path, roots, filters) {
					filtered++
					continue
				}
				ext := filepath.Ext(path)
				lang, _ := chunk.LanguageForExtension(trimExtDot(ext))
				if _, err := ix.Index(ctx, path, lang); err != nil {
					logger.Warn("indexing failed", slog.String("path", path), slog.String("error", err.Error()))
				}
			}
			for _, path := range batch.Deleted {
				if err := ix.Delete(ctx, path); err != nil {
					logger.Warn("delete failed", slog.String("path", path), slog.String("error", err.Error()))
				}
			}
			if filtered > 0 {
				logger.Debug("filtered watcher paths", slog.Int("count", filtered))
			}
		case err, ok := <-w.Errors():
			if !ok {
				continue
			}
			logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// shouldIndexPath locates the watched root containing path and applies its
// file filter to the root-relative path.
func shouldIndexPath(path string, roots []string, filters map[string]*chunk.Filter) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		return filters[root].ShouldIndex(rel, false)
	}
	return false
}

func trimExtDot(ext string) string {
	if len(ext) > 0 && ext[0] == '.' {
		return ext[1:]
	}
	return ext
}
