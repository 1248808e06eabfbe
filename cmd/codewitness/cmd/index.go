package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/codewitness/codewitness/internal/chunk"
	"github.com/codewitness/codewitness/internal/config"
	"github.com/codewitness/codewitness/internal/embed"
	"github.com/codewitness/codewitness/internal/indexer"
	"github.com/codewitness/codewitness/internal/output"
	"github.com/codewitness/codewitness/internal/store"
)

func newIndexCmd() *cobra.Command {
	var forceReindex bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a project once, without starting the server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			return runIndex(cmd, path, forceReindex)
		},
	}

	cmd.Flags().BoolVar(&forceReindex, "force", false, "Reindex files even if their content hash is unchanged")

	return cmd
}

func runIndex(cmd *cobra.Command, path string, force bool) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())

	root, err := config.FindProjectRoot(path)
	if err != nil {
		if root, err = filepath.Abs(path); err != nil {
			return fmt.Errorf("resolving %s: %w", path, err)
		}
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	lock, err := store.LockDataDir(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("acquiring data directory lock (is the server running?): %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	dbPath := filepath.Join(cfg.DataDir, "codewitness.db")
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() { _ = st.Close() }()

	embedder, err := embed.New(embed.Options{
		ModelPath:     cfg.Embeddings.ModelPath,
		TokenizerPath: cfg.Embeddings.TokenizerPath,
		NumWorkers:    cfg.Embeddings.EmbeddingThreads,
	})
	if err != nil {
		return fmt.Errorf("initializing embedding pool: %w", err)
	}
	defer embedder.Close()
	if !embedder.Initialized() {
		out.Warning("embedding model not configured, chunks will be stored without vectors")
	}

	chunkerCfg := chunk.Config{
		TargetLines:  cfg.Indexing.TargetLines,
		MinLines:     cfg.Indexing.MinLines,
		MaxLines:     cfg.Indexing.MaxLines,
		OverlapLines: cfg.Indexing.OverlapLines,
	}
	ix := indexer.New(st, chunkerCfg, embedder, slog.New(slog.NewTextHandler(os.Stderr, nil)))

	var n int
	if force {
		n, err = ix.ReindexAll(ctx, root)
	} else {
		n, err = ix.Walk(ctx, root)
	}
	if err != nil {
		return fmt.Errorf("indexing %s: %w", root, err)
	}

	out.Successf("indexed %d file(s) under %s", n, root)
	return nil
}
