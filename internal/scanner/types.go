// Package scanner discovers candidate files under a watched root. It walks
// the tree, applies directory and filename exclusions, .gitignore rules, and
// sensitive-file patterns, and streams survivors to the caller. Language and
// extension filtering happens downstream in the chunk filter; the scanner
// only rules out what should never be read at all.
package scanner

import (
	"time"
)

// FileInfo describes a discovered file.
type FileInfo struct {
	Path        string    // relative to the scanned root
	AbsPath     string    // absolute path
	Size        int64     // size in bytes
	ModTime     time.Time // last modification time
	IsGenerated bool      // file carries a generated-code marker
}

// ScanOptions configures a walk.
type ScanOptions struct {
	// RootDir is the directory to scan. Defaults to the working directory.
	RootDir string

	// ExcludePatterns are extra exclusion patterns from configuration,
	// matched against root-relative paths.
	ExcludePatterns []string

	// RespectGitignore enables .gitignore parsing at every tree level.
	RespectGitignore bool

	// MaxFileSize caps file size in bytes (0 = DefaultMaxFileSize).
	MaxFileSize int64

	// FollowSymlinks enables following symbolic links (default: false).
	FollowSymlinks bool
}

// ScanResult is one item from the scan channel: a discovered file, or a
// per-entry error. Errors do not stop the walk.
type ScanResult struct {
	File  *FileInfo
	Error error
}

// DefaultMaxFileSize is the default maximum file size (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024
