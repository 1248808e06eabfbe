package preflight

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_CheckEmbedderModel_FilesExist(t *testing.T) {
	checker := New()

	tmpDir := t.TempDir()
	modelPath := filepath.Join(tmpDir, "model.onnx")
	tokenizerPath := filepath.Join(tmpDir, "tokenizer.json")
	require.NoError(t, os.WriteFile(modelPath, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(tokenizerPath, []byte("x"), 0644))

	result := checker.checkEmbedderModelWithPaths(modelPath, tokenizerPath)

	assert.Equal(t, StatusPass, result.Status)
	assert.Equal(t, "embedder_model", result.Name)
	assert.False(t, result.Required)
}

func TestChecker_CheckEmbedderModel_Unconfigured(t *testing.T) {
	checker := New()

	result := checker.checkEmbedderModelWithPaths("", "")

	assert.Equal(t, StatusWarn, result.Status)
	assert.Contains(t, result.Message, "not configured")
}

func TestChecker_CheckEmbedderModel_FileMissing(t *testing.T) {
	checker := New()

	tmpDir := t.TempDir()
	result := checker.checkEmbedderModelWithPaths(filepath.Join(tmpDir, "missing.onnx"), filepath.Join(tmpDir, "missing.json"))

	assert.Equal(t, StatusWarn, result.Status)
	assert.Contains(t, result.Message, "not found")
}

func TestChecker_CheckEmbedderDiskSpace_ResultFormat(t *testing.T) {
	checker := New()

	result := checker.CheckEmbedderDiskSpace()

	assert.Equal(t, "embedder_disk_space", result.Name)
	assert.False(t, result.Required)
	assert.NotEmpty(t, result.Message)
}
