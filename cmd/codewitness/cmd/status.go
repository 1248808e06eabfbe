package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/codewitness/codewitness/internal/config"
	"github.com/codewitness/codewitness/internal/store"
	"github.com/codewitness/codewitness/pkg/version"
)

// statusInfo mirrors the `get_status` MCP tool's output shape
// so the CLI and the MCP surface report the same numbers.
type statusInfo struct {
	Version      string `json:"version"`
	DataDir      string `json:"data_dir"`
	VectorStatus string `json:"vector_status"`
	Chunks       int    `json:"chunks"`
	Lessons      int    `json:"lessons"`
	Files        int    `json:"files"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, jsonOutput bool) error {
	ctx := cmd.Context()

	root, err := config.FindProjectRoot(".")
	if err != nil {
		return fmt.Errorf("resolving project root: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "codewitness.db")
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() { _ = st.Close() }()

	info := statusInfo{Version: version.Version, DataDir: cfg.DataDir}

	if st.VectorStatus() == store.VectorOK {
		info.VectorStatus = "ok"
	} else {
		info.VectorStatus = "disabled"
	}

	if info.Chunks, err = st.CountChunks(ctx); err != nil {
		return fmt.Errorf("counting chunks: %w", err)
	}
	if info.Files, err = st.CountTrackedFiles(ctx); err != nil {
		return fmt.Errorf("counting files: %w", err)
	}
	if info.Lessons, err = st.CountLessons(ctx); err != nil {
		return fmt.Errorf("counting lessons: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	cmd.Printf("codewitness %s\n", info.Version)
	cmd.Printf("data dir:      %s\n", info.DataDir)
	cmd.Printf("vector status: %s\n", info.VectorStatus)
	cmd.Printf("files:         %d\n", info.Files)
	cmd.Printf("chunks:        %d\n", info.Chunks)
	cmd.Printf("lessons:       %d\n", info.Lessons)
	return nil
}
