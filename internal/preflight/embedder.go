package preflight

import (
	"fmt"
	"os"
	"syscall"

	"github.com/codewitness/codewitness/internal/config"
)

// MinDatabaseDiskSpaceBytes is the free space kept available for the
// SQLite database, its WAL file, and vector index growth.
const MinDatabaseDiskSpaceBytes = 256 * 1024 * 1024 // 256 MB

// CheckEmbedderModel checks that the configured ONNX model and tokenizer
// files exist on disk. Missing files are a warning, not a failure: the
// embedding pool degrades to ErrNotInitialized and the indexer keeps
// writing chunks without embeddings.
func (c *Checker) CheckEmbedderModel() CheckResult {
	cfg, err := config.Load(".")
	if err != nil {
		cfg = config.NewConfig()
	}
	return c.checkEmbedderModelWithPaths(cfg.Embeddings.ModelPath, cfg.Embeddings.TokenizerPath)
}

// checkEmbedderModelWithPaths is split out from CheckEmbedderModel so tests
// can exercise it without touching the working directory's config file.
func (c *Checker) checkEmbedderModelWithPaths(modelPath, tokenizerPath string) CheckResult {
	result := CheckResult{
		Name:     "embedder_model",
		Required: false,
	}

	if modelPath == "" || tokenizerPath == "" {
		result.Status = StatusWarn
		result.Message = "embeddings.model_path or embeddings.tokenizer_path not configured"
		result.Details = "search_code and search_lessons will run but always return empty results"
		return result
	}

	if _, err := os.Stat(modelPath); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("model file not found: %s", modelPath)
		return result
	}

	if _, err := os.Stat(tokenizerPath); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("tokenizer file not found: %s", tokenizerPath)
		return result
	}

	result.Status = StatusPass
	result.Message = "ONNX model and tokenizer files present"
	result.Details = fmt.Sprintf("model=%s tokenizer=%s", modelPath, tokenizerPath)
	return result
}

// CheckEmbedderDiskSpace checks that the current directory's filesystem has
// enough free space for the SQLite database to grow.
func (c *Checker) CheckEmbedderDiskSpace() CheckResult {
	result := CheckResult{
		Name:     "embedder_disk_space",
		Required: false,
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(".", &stat); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot check disk space: %v", err)
		return result
	}

	availableBytes := stat.Bavail * uint64(stat.Bsize)

	if availableBytes < uint64(MinDatabaseDiskSpaceBytes) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s available (recommend 256 MB for database growth)", formatBytes(availableBytes))
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s available", formatBytes(availableBytes))
	return result
}
