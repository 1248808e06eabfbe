// Package embed bridges a synchronous, CPU-bound ONNX embedding session to
// an asynchronous request flow via a bounded worker pool.
package embed

// EmbeddingDim is the fixed output dimension every embedding vector has.
const EmbeddingDim = 384

// MaxSeqLength is the model-fixed maximum token length per input; longer
// inputs are truncated at the tokenizer.
const MaxSeqLength = 256

// maxQueueDepth bounds the number of pending batch requests.
const maxQueueDepth = 100

// request carries one embed_batch call through the worker pool.
type request struct {
	texts []string
	reply chan reply
}

type reply struct {
	vectors [][]float32
	err     error
}
