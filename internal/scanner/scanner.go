package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codewitness/codewitness/internal/gitignore"
)

// gitignoreCacheSize bounds the number of parsed gitignore matchers kept in
// memory across repeated scans of large trees.
const gitignoreCacheSize = 1000

// Scanner walks a root and streams files that survive the exclusion rules.
// A Scanner is safe for concurrent use; the gitignore matcher cache is
// shared across scans.
type Scanner struct {
	gitignoreCache *lru.Cache[string, *gitignore.Matcher]
	cacheMu        sync.RWMutex
}

// New creates a Scanner.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating gitignore cache: %w", err)
	}
	return &Scanner{gitignoreCache: cache}, nil
}

// Scan walks opts.RootDir and streams discovered files. The returned channel
// is closed when the walk finishes or ctx is canceled. Per-entry failures
// are skipped; a walk-level failure arrives as a final ScanResult.Error.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions) (<-chan ScanResult, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}

	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = "."
	}
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", absRoot)
	}

	maxFileSize := opts.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	results := make(chan ScanResult, 64)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, opts, maxFileSize, results)
	}()
	return results, nil
}

func (s *Scanner) walk(ctx context.Context, absRoot string, opts *ScanOptions, maxFileSize int64, results chan<- ScanResult) {
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // unreadable entry, keep walking
		}
		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}

		if d.IsDir() {
			if s.excludeDir(relPath, opts) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !opts.FollowSymlinks {
			return nil
		}
		if s.excludeFile(relPath, absRoot, opts) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxFileSize {
			return nil
		}
		if isBinary(path) {
			return nil
		}

		fi := &FileInfo{
			Path:        relPath,
			AbsPath:     path,
			Size:        info.Size(),
			ModTime:     info.ModTime(),
			IsGenerated: isGenerated(path),
		}
		select {
		case results <- ScanResult{File: fi}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && err != context.Canceled {
		select {
		case results <- ScanResult{Error: err}:
		case <-ctx.Done():
		}
	}
}

// excludeDir reports whether a directory subtree is skipped outright.
func (s *Scanner) excludeDir(relPath string, opts *ScanOptions) bool {
	base := filepath.Base(relPath)
	for _, name := range excludedDirNames {
		if base == name {
			return true
		}
	}
	for _, pattern := range opts.ExcludePatterns {
		if matchPattern(relPath, pattern) {
			return true
		}
	}
	return false
}

// excludeFile reports whether a file is dropped by name, configured
// patterns, sensitive-file rules, or gitignore.
func (s *Scanner) excludeFile(relPath, absRoot string, opts *ScanOptions) bool {
	base := filepath.Base(relPath)

	for _, pattern := range sensitiveFilePatterns {
		if matchName(base, pattern) {
			return true
		}
	}
	for _, name := range excludedFileNames {
		if base == name {
			return true
		}
	}
	for _, pattern := range excludedFilePatterns {
		if matchName(base, pattern) {
			return true
		}
	}
	for _, pattern := range opts.ExcludePatterns {
		if matchPattern(relPath, pattern) || matchName(base, pattern) {
			return true
		}
	}
	if opts.RespectGitignore && s.gitignored(relPath, absRoot) {
		return true
	}
	return false
}

// matchPattern matches a root-relative path against a configured pattern.
// Supported forms: "dir/**" (the directory and everything under it),
// "**/name" (a path component anywhere in the tree), and an exact relative
// path.
func matchPattern(relPath, pattern string) bool {
	sep := string(filepath.Separator)

	if suffix, ok := strings.CutPrefix(pattern, "**/"); ok {
		suffix = strings.TrimSuffix(suffix, "/**")
		for _, part := range strings.Split(relPath, sep) {
			if part == suffix {
				return true
			}
		}
		return false
	}
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		return relPath == prefix || strings.HasPrefix(relPath, prefix+sep)
	}
	return relPath == pattern || strings.HasPrefix(relPath, pattern+sep)
}

// matchName matches a bare filename against a glob-ish pattern: "*suffix",
// "prefix*", "*middle*", or an exact name.
func matchName(baseName, pattern string) bool {
	switch {
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") && len(pattern) > 1:
		middle := strings.Trim(pattern, "*")
		return strings.Contains(strings.ToLower(baseName), strings.ToLower(middle))
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(baseName, strings.TrimPrefix(pattern, "*"))
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(baseName, strings.TrimSuffix(pattern, "*"))
	default:
		return baseName == pattern
	}
}

// isBinary sniffs the first 512 bytes for a null byte.
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil {
		return false
	}
	return bytes.Contains(buf[:n], []byte{0})
}

// isGenerated checks the first 1KB for a generated-code marker.
func isGenerated(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 1024)
	n, err := f.Read(buf)
	if err != nil {
		return false
	}
	head := string(buf[:n])
	for _, marker := range generatedMarkers {
		if strings.Contains(head, marker) {
			return true
		}
	}
	return false
}

var generatedMarkers = []string{
	"// Code generated",
	"// DO NOT EDIT",
	"/* DO NOT EDIT",
	"# Generated by",
	"<!-- AUTO-GENERATED -->",
	"// Generated by",
	"/* Generated by",
}

// gitignored walks from the root down to the file's directory, consulting
// the .gitignore at each level. Last match wins within a file; deeper files
// see their ancestors' rules first.
func (s *Scanner) gitignored(relPath, absRoot string) bool {
	if m := s.matcherFor(absRoot, ""); m != nil && m.Match(relPath, false) {
		return true
	}

	currentDir := absRoot
	currentBase := ""
	for _, part := range strings.Split(filepath.Dir(relPath), string(filepath.Separator)) {
		if part == "." {
			continue
		}
		currentDir = filepath.Join(currentDir, part)
		currentBase = filepath.Join(currentBase, part)
		if m := s.matcherFor(currentDir, currentBase); m != nil && m.Match(relPath, false) {
			return true
		}
	}
	return false
}

// matcherFor returns the cached gitignore matcher for a directory, parsing
// and caching it on first use. Returns nil when the directory has no
// .gitignore.
func (s *Scanner) matcherFor(dir, base string) *gitignore.Matcher {
	s.cacheMu.RLock()
	matcher, ok := s.gitignoreCache.Get(dir)
	s.cacheMu.RUnlock()
	if ok {
		return matcher
	}

	gitignorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitignorePath); os.IsNotExist(err) {
		return nil
	}
	matcher = gitignore.New()
	if err := matcher.AddFromFile(gitignorePath, base); err != nil {
		return nil
	}

	s.cacheMu.Lock()
	s.gitignoreCache.Add(dir, matcher)
	s.cacheMu.Unlock()
	return matcher
}

// InvalidateGitignoreCache drops all cached matchers. Called when a
// .gitignore file changes so the next scan re-reads fresh rules.
func (s *Scanner) InvalidateGitignoreCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.gitignoreCache.Purge()
}

// excludedDirNames are directory names skipped at any depth.
var excludedDirNames = []string{
	"node_modules",
	".git",
	"vendor",
	"__pycache__",
	"dist",
	"build",
	"target",
	".venv",
	"venv",
	".idea",
	".vscode",
	".ssh",
	".aws",
	".gcp",
	".azure",
}

// excludedFileNames are exact filenames never worth reading.
var excludedFileNames = []string{
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"go.sum",
	"Cargo.lock",
}

// excludedFilePatterns are minified or machine-produced artifacts that
// would pass the extension allow-list downstream.
var excludedFilePatterns = []string{
	"*.min.js",
	"*.min.css",
}

// sensitiveFilePatterns are files that must never be indexed regardless of
// extension.
var sensitiveFilePatterns = []string{
	".env",
	".env*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	"*credentials*",
	"*secrets*",
	"*password*",
	".netrc",
	".npmrc",
	".pypirc",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
}
