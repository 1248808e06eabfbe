// Package chunk splits source files into overlapping line-range chunks and
// decides which files are worth indexing at all.
package chunk

import "strings"

// extensionLanguages is the fixed allow-list mapping a lowercase extension
// to its canonical language name.
var extensionLanguages = map[string]string{
	"rs":      "rust",
	"py":      "python",
	"js":      "javascript",
	"ts":      "typescript",
	"jsx":     "javascript",
	"tsx":     "typescript",
	"go":      "go",
	"java":    "java",
	"c":       "c",
	"cpp":     "cpp",
	"cc":      "cpp",
	"h":       "c",
	"hpp":     "cpp",
	"cs":      "csharp",
	"rb":      "ruby",
	"php":     "php",
	"swift":   "swift",
	"kt":      "kotlin",
	"scala":   "scala",
	"sh":      "shell",
	"bash":    "shell",
	"zsh":     "shell",
	"sql":     "sql",
	"md":      "markdown",
	"yaml":    "yaml",
	"yml":     "yaml",
	"json":    "json",
	"toml":    "toml",
	"xml":     "xml",
	"html":    "html",
	"css":     "css",
	"scss":    "scss",
	"vue":     "vue",
	"svelte":  "svelte",
}

// LanguageForExtension returns the canonical language for a lowercase
// extension (without leading dot) and whether it is indexable at all.
func LanguageForExtension(ext string) (string, bool) {
	lang, ok := extensionLanguages[strings.ToLower(ext)]
	return lang, ok
}
