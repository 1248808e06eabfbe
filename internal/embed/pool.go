package embed

import (
	"context"
	"math"
	"os"
	"runtime"
	"sync"

	"github.com/daulet/tokenizers"
	lru "github.com/hashicorp/golang-lru/v2"
	ort "github.com/yalue/onnxruntime_go"

	cwerrors "github.com/codewitness/codewitness/internal/errors"
)

// ErrNotInitialized is returned by every Embed/EmbedBatch call when the pool
// failed to load its model or tokenizer at construction. The indexer treats
// this as the signal to store chunks without embeddings.
var ErrNotInitialized = cwerrors.EmbeddingError(cwerrors.ErrCodeEmbeddingModelLoad, "embedding pool not initialized", nil)

// Pool is a bounded-queue worker pool bridging a synchronous ONNX session
// and tokenizer to asynchronous callers. Workers are goroutines that block
// inside CGO calls; the Go runtime parks the underlying OS thread for the
// duration, so inference never stalls the cooperative scheduler.
type Pool struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizers.Tokenizer
	requests  chan request
	digest    string
	cache     *lru.Cache[string, []float32]

	closeOnce sync.Once
	workers   sync.WaitGroup
}

// Options configures pool construction.
type Options struct {
	ModelPath     string
	TokenizerPath string
	NumWorkers    int // clamped to [1, 32]
	CacheSize     int // embedding LRU entries; 0 disables the cache
	OrtLibPath    string
}

// New loads the ONNX model and tokenizer and starts NumWorkers goroutines
// draining the request queue. If either file is missing or fails to load,
// it returns a *Pool whose methods all return ErrNotInitialized rather than
// a hard error — callers (the indexer) are expected to keep running with
// embeddings disabled.
func New(opts Options) (*Pool, error) {
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return &Pool{}, nil
	}
	if _, err := os.Stat(opts.TokenizerPath); err != nil {
		return &Pool{}, nil
	}

	if opts.OrtLibPath != "" {
		ort.SetSharedLibraryPath(opts.OrtLibPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, cwerrors.EmbeddingError(cwerrors.ErrCodeEmbeddingModelLoad, "initializing ONNX runtime environment", err)
	}

	numWorkers := opts.NumWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
		if numWorkers > 4 {
			numWorkers = 4
		}
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > 32 {
		numWorkers = 32
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, cwerrors.EmbeddingError(cwerrors.ErrCodeEmbeddingModelLoad, "creating session options", err)
	}
	defer sessOpts.Destroy()
	if err := sessOpts.SetIntraOpNumThreads(numWorkers); err != nil {
		return nil, cwerrors.EmbeddingError(cwerrors.ErrCodeEmbeddingModelLoad, "setting intra-op threads", err)
	}
	if err := sessOpts.SetInterOpNumThreads(1); err != nil {
		return nil, cwerrors.EmbeddingError(cwerrors.ErrCodeEmbeddingModelLoad, "setting inter-op threads", err)
	}

	inputNames := []string{"input_ids", "attention_mask", "token_type_ids"}
	outputNames := []string{"last_hidden_state"}
	session, err := ort.NewDynamicAdvancedSession(opts.ModelPath, inputNames, outputNames, sessOpts)
	if err != nil {
		return nil, cwerrors.EmbeddingError(cwerrors.ErrCodeEmbeddingModelLoad, "creating ONNX session", err)
	}

	tk, err := tokenizers.FromFile(opts.TokenizerPath)
	if err != nil {
		session.Destroy()
		return nil, cwerrors.EmbeddingError(cwerrors.ErrCodeEmbeddingModelLoad, "loading tokenizer", err)
	}

	digest, err := digestFiles(opts.ModelPath, opts.TokenizerPath)
	if err != nil {
		session.Destroy()
		tk.Close()
		return nil, err
	}

	p := &Pool{
		session:   session,
		tokenizer: tk,
		requests:  make(chan request, maxQueueDepth),
		digest:    digest,
	}
	if opts.CacheSize > 0 {
		// Repeated texts (identical chunks across files, repeated queries)
		// skip inference entirely. Misses fall through to the workers.
		p.cache, _ = lru.New[string, []float32](opts.CacheSize)
	}

	p.workers.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go p.workerLoop()
	}

	return p, nil
}

// Initialized reports whether the pool has a live session.
func (p *Pool) Initialized() bool {
	return p != nil && p.session != nil
}

// ModelDigest returns a content digest of the loaded model + tokenizer
// files. The store compares it against the digest recorded at last open and
// flags every stored embedding for re-embedding when it changes.
func (p *Pool) ModelDigest() string {
	if p == nil {
		return ""
	}
	return p.digest
}

// Close shuts the queue, waits for every worker to drain its in-flight
// batch, then releases the session and tokenizer.
func (p *Pool) Close() {
	if p == nil || p.session == nil {
		return
	}
	p.closeOnce.Do(func() {
		close(p.requests)
		p.workers.Wait()
		p.session.Destroy()
		p.tokenizer.Close()
	})
}

// Embed embeds a single text and returns its vector.
func (p *Pool) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch dispatches texts to the worker pool and blocks until the
// reply arrives or ctx is canceled. Cancellation drops the reply (the
// worker still finishes the in-flight batch; no mid-inference abort).
func (p *Pool) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !p.Initialized() {
		return nil, ErrNotInitialized
	}
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	var misses []string
	var missIdx []int
	if p.cache != nil {
		for i, text := range texts {
			if vec, ok := p.cache.Get(text); ok {
				out[i] = vec
				continue
			}
			misses = append(misses, text)
			missIdx = append(missIdx, i)
		}
		if len(misses) == 0 {
			return out, nil
		}
	} else {
		misses = texts
	}

	req := request{texts: misses, reply: make(chan reply, 1)}
	select {
	case p.requests <- req:
	case <-ctx.Done():
		return nil, cwerrors.EmbeddingError(cwerrors.ErrCodeEmbeddingWorkerPool, "embedding request canceled before dispatch", ctx.Err())
	}

	select {
	case r := <-req.reply:
		if r.err != nil {
			return nil, r.err
		}
		if p.cache == nil {
			return r.vectors, nil
		}
		for j, vec := range r.vectors {
			out[missIdx[j]] = vec
			p.cache.Add(misses[j], vec)
		}
		return out, nil
	case <-ctx.Done():
		return nil, cwerrors.EmbeddingError(cwerrors.ErrCodeEmbeddingWorkerPool, "embedding request canceled awaiting reply", ctx.Err())
	}
}

func (p *Pool) workerLoop() {
	defer p.workers.Done()
	for req := range p.requests {
		vecs, err := p.processBatch(req.texts)
		req.reply <- reply{vectors: vecs, err: err}
	}
}

func (p *Pool) processBatch(texts []string) ([][]float32, error) {
	batchSize := len(texts)

	type encoded struct {
		ids  []int64
		mask []int64
	}
	all := make([]encoded, batchSize)
	maxLen := 0
	for i, text := range texts {
		enc := p.tokenizer.EncodeWithOptions(text, true, tokenizers.WithReturnAttentionMask())
		ids := enc.IDs
		if len(ids) > MaxSeqLength {
			ids = ids[:MaxSeqLength]
		}
		ids64 := make([]int64, len(ids))
		mask64 := make([]int64, len(ids))
		for j, v := range ids {
			ids64[j] = int64(v)
			mask64[j] = 1
		}
		if len(enc.AttentionMask) >= len(ids) {
			for j := range ids64 {
				mask64[j] = int64(enc.AttentionMask[j])
			}
		}
		all[i] = encoded{ids: ids64, mask: mask64}
		if len(ids64) > maxLen {
			maxLen = len(ids64)
		}
	}
	if maxLen == 0 {
		return nil, cwerrors.EmbeddingError(cwerrors.ErrCodeEmbeddingTokenize, "all texts tokenized to zero length", nil)
	}

	flatIDs := make([]int64, batchSize*maxLen)
	flatMask := make([]int64, batchSize*maxLen)
	flatType := make([]int64, batchSize*maxLen)
	for i, enc := range all {
		copy(flatIDs[i*maxLen:], enc.ids)
		copy(flatMask[i*maxLen:], enc.mask)
	}
	shape := ort.NewShape(int64(batchSize), int64(maxLen))

	inputIDs, err := ort.NewTensor(shape, flatIDs)
	if err != nil {
		return nil, cwerrors.EmbeddingError(cwerrors.ErrCodeEmbeddingRuntime, "building input_ids tensor", err)
	}
	defer inputIDs.Destroy()
	attnMask, err := ort.NewTensor(shape, flatMask)
	if err != nil {
		return nil, cwerrors.EmbeddingError(cwerrors.ErrCodeEmbeddingRuntime, "building attention_mask tensor", err)
	}
	defer attnMask.Destroy()
	typeIDs, err := ort.NewTensor(shape, flatType)
	if err != nil {
		return nil, cwerrors.EmbeddingError(cwerrors.ErrCodeEmbeddingRuntime, "building token_type_ids tensor", err)
	}
	defer typeIDs.Destroy()

	inputs := []ort.Value{inputIDs, attnMask, typeIDs}
	outputs := []ort.Value{nil}
	if err := p.session.Run(inputs, outputs); err != nil {
		return nil, cwerrors.EmbeddingError(cwerrors.ErrCodeEmbeddingRuntime, "running ONNX session", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	hiddenTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, cwerrors.EmbeddingError(cwerrors.ErrCodeEmbeddingRuntime, "unexpected session output type", nil)
	}
	hidden := hiddenTensor.GetData()
	seqLen := int(hiddenTensor.GetShape()[1])

	vecs := make([][]float32, batchSize)
	for i := 0; i < batchSize; i++ {
		base := i * seqLen * EmbeddingDim
		vecs[i] = meanPoolAndNormalize(hidden[base:base+seqLen*EmbeddingDim], all[i].mask, seqLen)
	}
	return vecs, nil
}

// meanPoolAndNormalize mean-pools hidden states over positions where mask
// is 1, then L2-normalizes. Returns the zero vector if no mask bits are set.
func meanPoolAndNormalize(hidden []float32, mask []int64, seqLen int) []float32 {
	sum := make([]float32, EmbeddingDim)
	var count float32
	for t := 0; t < seqLen && t < len(mask); t++ {
		if mask[t] != 1 {
			continue
		}
		base := t * EmbeddingDim
		for d := 0; d < EmbeddingDim; d++ {
			sum[d] += hidden[base+d]
		}
		count++
	}
	if count == 0 {
		return sum
	}
	for d := range sum {
		sum[d] /= count
	}

	var norm float32
	for _, v := range sum {
		norm += v * v
	}
	if norm <= 0 {
		return sum
	}
	norm = sqrt32(norm)
	for d := range sum {
		sum[d] /= norm
	}
	return sum
}

func sqrt32(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}
