package embed

import (
	"encoding/hex"
	"io"
	"os"

	"lukechampine.com/blake3"

	cwerrors "github.com/codewitness/codewitness/internal/errors"
)

// digestFiles returns a single BLAKE3 digest covering the model and
// tokenizer file contents, used to detect a swapped embedding model so the
// store can invalidate stale embeddings.
func digestFiles(paths ...string) (string, error) {
	h := blake3.New(32, nil)
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return "", cwerrors.EmbeddingError(cwerrors.ErrCodeEmbeddingModelLoad, "hashing "+path, err)
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", cwerrors.EmbeddingError(cwerrors.ErrCodeEmbeddingModelLoad, "hashing "+path, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
