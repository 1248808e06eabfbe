// Package async runs fire-and-forget background work with bounded
// concurrency, used for the embedding step that trails add_lesson and
// add_checkpoint.
package async

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner submits bounded-concurrency background tasks. Go blocks the caller
// only long enough to acquire a slot, never waiting for the task itself —
// errors are logged, never surfaced to the caller that scheduled the task.
type Runner struct {
	group  *errgroup.Group
	logger *slog.Logger
}

// New returns a Runner that allows at most maxConcurrent tasks in flight.
func New(maxConcurrent int, logger *slog.Logger) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	var g errgroup.Group
	g.SetLimit(maxConcurrent)
	return &Runner{group: &g, logger: logger}
}

// Go schedules fn to run in the background under name (used in log lines on
// failure). It blocks only until a concurrency slot is available.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.group.Go(func() error {
		if err := fn(context.Background()); err != nil {
			r.logger.Warn("async task failed", slog.String("task", name), slog.String("error", err.Error()))
		}
		return nil
	})
}

// Wait blocks until every scheduled task has completed. Used at shutdown.
func (r *Runner) Wait() {
	r.group.Wait()
}
