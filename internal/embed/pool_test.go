package embed

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MissingModelFilesStaysUninitialized(t *testing.T) {
	// Given: a model/tokenizer path that does not exist
	dir := t.TempDir()
	p, err := New(Options{
		ModelPath:     filepath.Join(dir, "missing.onnx"),
		TokenizerPath: filepath.Join(dir, "missing.json"),
	})

	// Then: construction succeeds but the pool reports uninitialized
	require.NoError(t, err)
	assert.False(t, p.Initialized())
}

func TestEmbedBatch_UninitializedPoolReturnsNotInitialized(t *testing.T) {
	p := &Pool{}
	_, err := p.EmbedBatch(context.Background(), []string{"hello"})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestEmbed_UninitializedPoolReturnsNotInitialized(t *testing.T) {
	p := &Pool{}
	_, err := p.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestModelDigest_NilPoolReturnsEmptyString(t *testing.T) {
	var p *Pool
	assert.Equal(t, "", p.ModelDigest())
}

func TestMeanPoolAndNormalize_AllMaskBitsZeroReturnsZeroVector(t *testing.T) {
	// Given: hidden states for 2 positions, both masked out
	seqLen := 2
	hidden := make([]float32, seqLen*EmbeddingDim)
	for i := range hidden {
		hidden[i] = 1
	}
	mask := []int64{0, 0}

	// When: I pool and normalize
	vec := meanPoolAndNormalize(hidden, mask, seqLen)

	// Then: the result is the zero vector of dimension D
	require.Len(t, vec, EmbeddingDim)
	for _, v := range vec {
		assert.Equal(t, float32(0), v)
	}
}

func TestMeanPoolAndNormalize_ProducesUnitNormVector(t *testing.T) {
	// Given: 2 unmasked positions with distinct hidden states
	seqLen := 2
	hidden := make([]float32, seqLen*EmbeddingDim)
	hidden[0] = 1
	hidden[EmbeddingDim] = 3
	mask := []int64{1, 1}

	// When: I pool and normalize
	vec := meanPoolAndNormalize(hidden, mask, seqLen)

	// Then: the result has dimension D and L2-norm in [0.99, 1.01]
	require.Len(t, vec, EmbeddingDim)
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = sqrtFloat(norm)
	assert.InDelta(t, 1.0, norm, 0.01)
}

func sqrtFloat(x float64) float64 {
	return float64(sqrt32(float32(x)))
}
