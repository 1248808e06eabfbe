package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree materializes a map of relative path -> content under dir.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// collectPaths drains a scan channel into a set of relative paths.
func collectPaths(t *testing.T, results <-chan ScanResult) map[string]*FileInfo {
	t.Helper()
	found := make(map[string]*FileInfo)
	for res := range results {
		require.NoError(t, res.Error)
		require.NotNil(t, res.File)
		found[filepath.ToSlash(res.File.Path)] = res.File
	}
	return found
}

func scanAll(t *testing.T, dir string, opts *ScanOptions) map[string]*FileInfo {
	t.Helper()
	s, err := New()
	require.NoError(t, err)
	if opts == nil {
		opts = &ScanOptions{}
	}
	opts.RootDir = dir
	results, err := s.Scan(context.Background(), opts)
	require.NoError(t, err)
	return collectPaths(t, results)
}

func TestScanner_Scan_FindsFiles(t *testing.T) {
	// Given: a tree with code files in nested directories
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"main.go":          "package main\n",
		"internal/util.go": "package internal\n",
		"docs/notes.md":    "# notes\n",
	})

	// When: scanning the root
	found := scanAll(t, dir, nil)

	// Then: all three files stream out with metadata
	require.Len(t, found, 3)
	fi := found["main.go"]
	require.NotNil(t, fi)
	assert.Equal(t, filepath.Join(dir, "main.go"), fi.AbsPath)
	assert.Equal(t, int64(len("package main\n")), fi.Size)
	assert.False(t, fi.ModTime.IsZero())
}

func TestScanner_Scan_SkipsExcludedDirs(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"main.go":                     "package main\n",
		"node_modules/lib/index.js":   "module.exports = {}\n",
		"vendor/dep/dep.go":           "package dep\n",
		"target/debug/out.rs":         "fn main() {}\n",
		"__pycache__/mod.cpython.pyc": "x\n",
		".git/objects/ab/cdef":        "x\n",
	})

	found := scanAll(t, dir, nil)

	assert.Len(t, found, 1)
	assert.Contains(t, found, "main.go")
}

func TestScanner_Scan_SkipsSensitiveAndLockFiles(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"main.go":           "package main\n",
		".env":              "SECRET=x\n",
		".env.local":        "SECRET=y\n",
		"server.pem":        "----\n",
		"id_rsa":            "----\n",
		"package-lock.json": "{}\n",
		"go.sum":            "x\n",
		"app.min.js":        "var a=1;\n",
	})

	found := scanAll(t, dir, nil)

	assert.Len(t, found, 1)
	assert.Contains(t, found, "main.go")
}

func TestScanner_Scan_RespectsRootGitignore(t *testing.T) {
	// Given: a root .gitignore excluding *.log
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		".gitignore": "*.log\n",
		"main.go":    "package main\n",
		"debug.log":  "line\n",
	})

	// When: scanning with gitignore enabled
	found := scanAll(t, dir, &ScanOptions{RespectGitignore: true})

	// Then: the log file is dropped, the gitignore itself is still listed
	assert.NotContains(t, found, "debug.log")
	assert.Contains(t, found, "main.go")
}

func TestScanner_Scan_RespectsNestedGitignore(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"sub/.gitignore":   "generated.go\n",
		"sub/real.go":      "package sub\n",
		"sub/generated.go": "package sub\n",
	})

	found := scanAll(t, dir, &ScanOptions{RespectGitignore: true})

	assert.Contains(t, found, "sub/real.go")
	assert.NotContains(t, found, "sub/generated.go")
}

func TestScanner_Scan_GitignoreDisabled(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		".gitignore": "*.log\n",
		"debug.log":  "line\n",
	})

	found := scanAll(t, dir, &ScanOptions{RespectGitignore: false})

	assert.Contains(t, found, "debug.log")
}

func TestScanner_Scan_SkipsBinaryFiles(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"main.go": "package main\n"})
	bin := append([]byte("ELF"), 0x00, 0x01, 0x02)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tool.exe"), bin, 0o644))

	found := scanAll(t, dir, nil)

	assert.Len(t, found, 1)
	assert.Contains(t, found, "main.go")
}

func TestScanner_Scan_FlagsGeneratedFiles(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"hand.go": "package gen\n",
		"gen.go":  "// Code generated by protoc. DO NOT EDIT.\npackage gen\n",
	})

	found := scanAll(t, dir, nil)

	require.Contains(t, found, "gen.go")
	assert.True(t, found["gen.go"].IsGenerated)
	assert.False(t, found["hand.go"].IsGenerated)
}

func TestScanner_Scan_SkipsOversizedFiles(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"small.go": "package a\n",
		"big.go":   "package a\n// padding padding padding padding\n",
	})

	found := scanAll(t, dir, &ScanOptions{MaxFileSize: 15})

	assert.Contains(t, found, "small.go")
	assert.NotContains(t, found, "big.go")
}

func TestScanner_Scan_ConfigExcludePatterns(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"main.go":            "package main\n",
		"archive/old.go":     "package old\n",
		"deep/cache/blob.go": "package cache\n",
	})

	found := scanAll(t, dir, &ScanOptions{
		ExcludePatterns: []string{"archive/**", "**/cache"},
	})

	assert.Len(t, found, 1)
	assert.Contains(t, found, "main.go")
}

func TestScanner_Scan_ErrorsOnFileRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(file, []byte("package main\n"), 0o644))

	s, err := New()
	require.NoError(t, err)
	_, err = s.Scan(context.Background(), &ScanOptions{RootDir: file})
	assert.Error(t, err)
}

func TestScanner_Scan_CancelClosesChannel(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"main.go": "package main\n"})

	s, err := New()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := s.Scan(ctx, &ScanOptions{RootDir: dir})
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-results:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("scan channel not closed after cancellation")
		}
	}
}

func TestScanner_InvalidateGitignoreCache(t *testing.T) {
	// Given: a scan that cached an empty rule set
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		".gitignore": "\n",
		"debug.log":  "line\n",
	})
	s, err := New()
	require.NoError(t, err)
	results, err := s.Scan(context.Background(), &ScanOptions{RootDir: dir, RespectGitignore: true})
	require.NoError(t, err)
	assert.Contains(t, collectPaths(t, results), "debug.log")

	// When: the gitignore changes and the cache is invalidated
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*.log\n"), 0o644))
	s.InvalidateGitignoreCache()

	// Then: the next scan applies the new rules
	results, err = s.Scan(context.Background(), &ScanOptions{RootDir: dir, RespectGitignore: true})
	require.NoError(t, err)
	assert.NotContains(t, collectPaths(t, results), "debug.log")
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		name    string
		relPath string
		pattern string
		want    bool
	}{
		{"dir/** matches the dir itself", "archive", "archive/**", true},
		{"dir/** matches nested", "archive/sub/f.go", "archive/**", true},
		{"dir/** rejects siblings", "archives/f.go", "archive/**", false},
		{"**/name matches any depth", "a/b/cache/f.go", "**/cache", true},
		{"**/name rejects partial component", "a/cached/f.go", "**/cache", false},
		{"exact relative path", "a/b", "a/b", true},
		{"prefix path", "a/b/c", "a/b", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchPattern(filepath.FromSlash(tt.relPath), tt.pattern)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchName(t *testing.T) {
	tests := []struct {
		name     string
		baseName string
		pattern  string
		want     bool
	}{
		{"star suffix", "app.min.js", "*.min.js", true},
		{"star suffix rejects", "app.js", "*.min.js", false},
		{"prefix star", ".env.production", ".env*", true},
		{"contains", "aws_credentials.json", "*credentials*", true},
		{"contains is case-insensitive", "My-Secrets.txt", "*secrets*", true},
		{"exact", "id_rsa", "id_rsa", true},
		{"exact rejects near-miss", "id_rsa.pub", "id_rsa", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchName(tt.baseName, tt.pattern))
		})
	}
}
