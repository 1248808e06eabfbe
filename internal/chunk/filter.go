package chunk

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/codewitness/codewitness/internal/gitignore"
)

// denyDirs is the built-in directory deny-list; any path
// component matching one of these makes the path non-indexable regardless
// of ignore-file rules.
var denyDirs = map[string]bool{
	"node_modules": true,
	"target":       true,
	"build":        true,
	"dist":         true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"vendor":       true,
	".git":         true,
	".idea":        true,
	".vscode":      true,
}

// lockFileNames is the known-lock-file deny-list.
var lockFileSuffixes = []string{
	".lock", "-lock.json", "-lock.yaml", "-lock.yml",
}

var lockFileNames = map[string]bool{
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"Cargo.lock":        true,
	"Gemfile.lock":      true,
	"composer.lock":     true,
	"poetry.lock":       true,
}

// Filter decides, for a path relative to a watched root, whether it should
// be indexed.
type Filter struct {
	root      string
	gitignore *gitignore.Matcher
}

// NewFilter builds a Filter for root, loading the tree of ignore files
// rooted there (root's own ignore file plus any in parent directories, via
// internal/gitignore's last-match-wins composition).
func NewFilter(root string) *Filter {
	m := gitignore.New()
	loadIgnoreChain(m, root)
	return &Filter{root: root, gitignore: m}
}

// loadIgnoreChain walks from root's filesystem root down to root, adding
// each .gitignore found along the way — ignore files closer to the target
// path are added last so last-match-wins favors the more specific rule.
func loadIgnoreChain(m *gitignore.Matcher, root string) {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	var dirs []string
	for d := abs; ; {
		dirs = append(dirs, d)
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		ignorePath := filepath.Join(dirs[i], ".gitignore")
		if _, err := os.Stat(ignorePath); err == nil {
			_ = m.AddFromFile(ignorePath, dirs[i])
		}
	}
}

// ShouldIndex reports whether path (a regular file) is worth indexing:
// allow-listed extension, not gitignored, no deny-listed path component,
// and not a lock file.
func (f *Filter) ShouldIndex(path string, isDir bool) bool {
	if isDir {
		return false
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if _, ok := LanguageForExtension(ext); !ok {
		return false
	}
	if f.gitignore.Match(path, false) {
		return false
	}
	if matchesDenyDir(path) {
		return false
	}
	if isLockFile(filepath.Base(path)) {
		return false
	}
	return true
}

// matchesDenyDir reports whether any directory component of path (the
// filename itself is excluded) is in the built-in deny-list, or is a
// dot-directory other than .github.
func matchesDenyDir(path string) bool {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) > 0 {
		parts = parts[:len(parts)-1]
	}
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		if denyDirs[part] {
			return true
		}
		if strings.HasPrefix(part, ".") && part != ".github" {
			return true
		}
	}
	return false
}

func isLockFile(name string) bool {
	if lockFileNames[name] {
		return true
	}
	lower := strings.ToLower(name)
	for _, suffix := range lockFileSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
