package chunk

import "strings"

// goodBreakPrefixes is the language-neutral list of line-start tokens that
// make a good chunk boundary, checked against the trimmed line.
var goodBreakPrefixes = []string{
	"fn", "def", "class", "struct", "enum", "trait", "impl", "mod",
	"function", "const", "let", "export", "public", "private",
	"#", "//", "/*", "///",
}

// Config tunes the line-oriented chunker.
type Config struct {
	TargetLines  int
	MinLines     int
	MaxLines     int
	OverlapLines int
}

// DefaultConfig returns the default chunking parameters.
func DefaultConfig() Config {
	return Config{TargetLines: 50, MinLines: 10, MaxLines: 100, OverlapLines: 5}
}

// Result is one chunk of file content, 1-based inclusive line bounds.
type Result struct {
	Index     int
	StartLine int
	EndLine   int
	Content   string
}

// Chunker splits file content into overlapping line-range chunks.
type Chunker struct {
	cfg Config
}

// New returns a Chunker using cfg.
func New(cfg Config) *Chunker {
	return &Chunker{cfg: cfg}
}

// Chunk splits content into Results. Invariant: adjacent chunks overlap by
// at most OverlapLines; chunks cover [1, len(lines)] with no gap;
// chunk_index is 0-based and dense.
func (c *Chunker) Chunk(content string) []Result {
	if content == "" {
		return nil
	}
	lines := splitLines(content)
	if len(lines) == 0 {
		return nil
	}

	if len(lines) <= c.cfg.MaxLines {
		return []Result{{
			Index:     0,
			StartLine: 1,
			EndLine:   len(lines),
			Content:   content,
		}}
	}

	var out []Result
	start := 0 // 0-based
	index := 0
	for start < len(lines) {
		end := c.findChunkEnd(lines, start)
		out = append(out, Result{
			Index:     index,
			StartLine: start + 1,
			EndLine:   end,
			Content:   strings.Join(lines[start:end], "\n"),
		})
		index++

		var nextStart int
		if end >= len(lines) {
			nextStart = len(lines)
		} else {
			nextStart = end - c.cfg.OverlapLines
			if nextStart < start+1 {
				nextStart = start + 1
			}
		}
		if nextStart <= start {
			break
		}
		start = nextStart
	}
	return out
}

// splitLines splits content into lines without producing a phantom empty
// line for newline-terminated input: a single trailing newline is consumed
// by the last line, and a trailing \r is stripped from each line. A file of
// N real lines yields exactly N entries whether or not it ends in \n.
func splitLines(content string) []string {
	content = strings.TrimSuffix(content, "\n")
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// findChunkEnd searches from the target end backward to the max end for the
// latest good break point, falling back to the target end if none is found.
func (c *Chunker) findChunkEnd(lines []string, start int) int {
	idealEnd := start + c.cfg.TargetLines
	if idealEnd > len(lines) {
		idealEnd = len(lines)
	}
	maxEnd := start + c.cfg.MaxLines
	if maxEnd > len(lines) {
		maxEnd = len(lines)
	}

	for i := maxEnd; i >= idealEnd; i-- {
		if isGoodBreakPoint(lines, i) {
			return i
		}
	}
	return idealEnd
}

// isGoodBreakPoint reports whether pos (an end-exclusive line count) is a
// good chunk boundary: past the end, an empty line, or the start of a
// definition-like statement.
func isGoodBreakPoint(lines []string, pos int) bool {
	if pos >= len(lines) {
		return true
	}
	line := strings.TrimSpace(lines[pos])
	if line == "" {
		return true
	}
	for _, prefix := range goodBreakPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
