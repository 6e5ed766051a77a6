package crawler

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawldir/internal/aleph"
	"github.com/JakeFAU/crawldir/internal/logging"
	"github.com/JakeFAU/crawldir/internal/metrics"
)

// ExecutorConfig controls retry behavior for single uploads.
type ExecutorConfig struct {
	// Retries is the maximum number of attempts per node.
	Retries int
	// Index asks the server to index documents after ingest.
	Index   bool
	Backoff Backoff
	// Transient classifies errors; defaults to aleph.IsTransient.
	Transient func(error) bool
	// Sleep waits between attempts; defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Limiter, when set, is waited on before every ingest call.
	Limiter Limiter
}

// Executor performs one upload attempt for a node.
type Executor struct {
	ingester Ingester
	cfg      ExecutorConfig
	logger   *zap.Logger
}

// NewExecutor constructs an Executor.
func NewExecutor(ingester Ingester, cfg ExecutorConfig, logger *zap.Logger) *Executor {
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if cfg.Backoff == nil {
		cfg.Backoff = NewExponentialBackoff(0, 0)
	}
	if cfg.Transient == nil {
		cfg.Transient = aleph.IsTransient
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	logger = logging.OrNop(logger)
	metrics.Init()
	return &Executor{ingester: ingester, cfg: cfg, logger: logger}
}

// Upload sends node to the collection. Folders are created from metadata
// alone. A transient failure with attempts left sleeps for the back-off and
// returns ResultRetry; the caller re-queues the node with Attempt+1.
func (e *Executor) Upload(ctx context.Context, collectionID string, node *Node) Result {
	kind := nodeKind(node)
	meta := aleph.Metadata{
		ForeignID: node.ForeignID,
		FileName:  filepath.Base(node.Path),
		ParentID:  node.ParentID,
	}
	path := node.Path
	if node.IsDir {
		path = ""
	}
	fields := []zap.Field{
		zap.String("collection_id", collectionID),
		zap.String("foreign_id", node.ForeignID),
		zap.String("parent_id", node.ParentID),
		zap.Int("attempt", node.Attempt),
	}
	e.logger.Info("upload", append(fields, zap.String("kind", kind))...)

	if e.cfg.Limiter != nil {
		if err := e.cfg.Limiter.Wait(ctx, collectionID); err != nil {
			return e.fail(node, err, fields)
		}
	}

	start := time.Now()
	res, err := e.ingester.IngestUpload(ctx, collectionID, path, meta, e.cfg.Index)
	metrics.ObserveUploadDuration(kind, time.Since(start))
	if err == nil && res.ID == "" {
		err = ErrUploadFailed
	}
	if err == nil {
		return Result{Kind: ResultOK, RemoteID: res.ID.String()}
	}

	if ctx.Err() == nil && e.cfg.Transient(err) && node.Attempt < e.cfg.Retries {
		delay := e.cfg.Backoff.Backoff(node.Attempt)
		e.logger.Warn("upload failed, backing off",
			append(fields, zap.Error(err), zap.Duration("backoff", delay))...)
		metrics.ObserveRetry(kind)
		if serr := e.cfg.Sleep(ctx, delay); serr != nil {
			return e.fail(node, fmt.Errorf("%w (retry abandoned: %w)", err, serr), fields)
		}
		return Result{Kind: ResultRetry, Err: err}
	}
	return e.fail(node, err, fields)
}

func (e *Executor) fail(node *Node, err error, fields []zap.Field) Result {
	e.logger.Error("upload failed",
		append(fields, zap.String("path", node.Path), zap.Error(err))...)
	return Result{Kind: ResultFail, Err: err}
}

func nodeKind(node *Node) string {
	if node.IsDir {
		return metrics.KindFolder
	}
	return metrics.KindFile
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

