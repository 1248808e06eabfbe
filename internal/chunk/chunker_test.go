package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_SmallFileIsOneChunk(t *testing.T) {
	// Given: a 3-line file and default chunking parameters
	c := New(DefaultConfig())
	content := "fn main() {\n    println!(\"hi\");\n}"

	// When: I chunk it
	results := c.Chunk(content)

	// Then: it produces exactly one chunk spanning the whole file
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, 1, results[0].StartLine)
	assert.Equal(t, 3, results[0].EndLine)
	assert.Equal(t, content, results[0].Content)
}

func TestChunker_EmptyFileProducesNoChunks(t *testing.T) {
	c := New(DefaultConfig())
	assert.Empty(t, c.Chunk(""))
}

func TestChunker_TrailingNewlineDoesNotAddPhantomLine(t *testing.T) {
	// Given: the same 3-line file, newline-terminated as source files are
	c := New(DefaultConfig())
	content := "fn main() {\n    println!(\"hi\");\n}\n"

	// When: I chunk it
	results := c.Chunk(content)

	// Then: end_line is the real last line, not one past it
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].StartLine)
	assert.Equal(t, 3, results[0].EndLine)
}

func TestChunker_TrailingNewlineAtMaxLinesStaysOneChunk(t *testing.T) {
	// Given: exactly MaxLines real lines plus a terminating newline
	cfg := DefaultConfig()
	lines := make([]string, cfg.MaxLines)
	for i := range lines {
		lines[i] = "x = 1"
	}
	content := strings.Join(lines, "\n") + "\n"
	c := New(cfg)

	// When: I chunk it
	results := c.Chunk(content)

	// Then: the file still fits in a single chunk
	require.Len(t, results, 1)
	assert.Equal(t, cfg.MaxLines, results[0].EndLine)
}

func TestChunker_CRLFLinesAreCountedNotSplit(t *testing.T) {
	c := New(DefaultConfig())
	results := c.Chunk("a\r\nb\r\nc\r\n")

	require.Len(t, results, 1)
	assert.Equal(t, 3, results[0].EndLine)
}

func TestChunker_LargeFileCoversAllLinesWithNoGap(t *testing.T) {
	// Given: a 350-line file, well past the default max of 100
	lines := make([]string, 350)
	for i := range lines {
		lines[i] = "x"
	}
	content := strings.Join(lines, "\n")
	c := New(DefaultConfig())

	// When: I chunk it
	results := c.Chunk(content)

	// Then: chunk_index is 0-based and dense, and the ranges cover [1, 350]
	// with no gap
	require.NotEmpty(t, results)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
	assert.Equal(t, 1, results[0].StartLine)
	assert.Equal(t, 350, results[len(results)-1].EndLine)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].StartLine, results[i-1].EndLine+1,
			"chunk %d must not leave a gap after chunk %d", i, i-1)
	}
}

func TestChunker_AdjacentChunksOverlapWithinBound(t *testing.T) {
	// Given: a large file with no good-break lines anywhere, forcing the
	// chunker to fall back to target-length chunks
	lines := make([]string, 500)
	for i := range lines {
		lines[i] = "x = 1"
	}
	content := strings.Join(lines, "\n")
	cfg := DefaultConfig()
	c := New(cfg)

	// When: I chunk it
	results := c.Chunk(content)

	// Then: adjacent chunks overlap by at most OverlapLines
	require.Greater(t, len(results), 1)
	for i := 1; i < len(results); i++ {
		overlap := results[i-1].EndLine - results[i].StartLine + 1
		assert.LessOrEqual(t, overlap, cfg.OverlapLines)
	}
}

func TestChunker_PrefersGoodBreakPoint(t *testing.T) {
	// Given: a file with a blank line inside the [target, max] search window
	lines := make([]string, 90)
	for i := range lines {
		lines[i] = "x = 1"
	}
	lines[59] = "" // blank line at 0-based index 59, within [50, 70)
	content := strings.Join(lines, "\n")
	cfg := DefaultConfig()
	cfg.MaxLines = 70
	c := New(cfg)

	// When: I chunk it
	results := c.Chunk(content)

	// Then: the first chunk ends at the blank line rather than the target
	// length or MaxLines
	require.Greater(t, len(results), 1)
	assert.Equal(t, 59, results[0].EndLine)
}
