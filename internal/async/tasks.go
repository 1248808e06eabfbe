package async

import (
	"context"

	"github.com/codewitness/codewitness/internal/store"
)

// Embedder is the subset of internal/embed.Pool the async tasks depend on.
type Embedder interface {
	Initialized() bool
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ScheduleLessonEmbedding computes and attaches the embedding for a
// just-inserted lesson in the background. Called right after AddLesson
// returns; a slow or failed embed never blocks the tool response.
func (r *Runner) ScheduleLessonEmbedding(st *store.Store, embedder Embedder, id, title, content string) {
	if embedder == nil || !embedder.Initialized() {
		return
	}
	r.Go("embed_lesson", func(ctx context.Context) error {
		vec, err := embedder.Embed(ctx, title+"\n"+content)
		if err != nil {
			return err
		}
		return st.UpdateLessonEmbedding(ctx, id, vec)
	})
}

// ScheduleCheckpointEmbedding computes and attaches the embedding for a
// just-inserted checkpoint in the background. The embedding covers
// working_on only; state is an opaque, caller-owned JSON blob, not prose
// worth embedding.
func (r *Runner) ScheduleCheckpointEmbedding(st *store.Store, embedder Embedder, id, workingOn string) {
	if embedder == nil || !embedder.Initialized() {
		return
	}
	r.Go("embed_checkpoint", func(ctx context.Context) error {
		vec, err := embedder.Embed(ctx, workingOn)
		if err != nil {
			return err
		}
		return st.UpdateCheckpointEmbedding(ctx, id, vec)
	})
}
