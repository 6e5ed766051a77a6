package crawler

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawldir/internal/metrics"
)

// work consumes the upload queue until it takes a poison pill or ctx ends.
func (r *run) work(ctx context.Context, id int) {
	logger := r.logger.With(zap.Int("worker", id))
	for {
		item, err := r.uploadQ.Get(ctx)
		if err != nil {
			logger.Debug("worker stopped", zap.Error(err))
			return
		}
		if item.poison() {
			r.uploadQ.TaskDone()
			logger.Debug("worker released")
			return
		}
		r.upload(ctx, item.Node)
		r.uploadQ.TaskDone()
		metrics.SetQueueDepth("upload", r.uploadQ.Len())
	}
}

func (r *run) upload(ctx context.Context, node *Node) {
	if ctx.Err() != nil {
		return
	}
	res := r.exec.Upload(ctx, r.collectionID, node)
	if res.Kind == ResultRetry {
		// Re-queued before TaskDone so the upload queue's join cannot fire
		// while a retry is pending.
		r.uploadQ.Put(WorkItem{Node: r.nextAttempt(node)})
		return
	}
	r.finish(ctx, node, res)
}
