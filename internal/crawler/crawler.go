package crawler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawldir/internal/aleph"
	"github.com/JakeFAU/crawldir/internal/clock/system"
	"github.com/JakeFAU/crawldir/internal/logging"
	"github.com/JakeFAU/crawldir/internal/metrics"
	"github.com/JakeFAU/crawldir/internal/queue/memory"
)

// Options holds the settings for a crawl session.
type Options struct {
	// Parallelism is the number of upload workers; values below 1 mean 1.
	Parallelism int
	// SkipJunk enables the hidden/system file filter.
	SkipJunk bool
	Executor ExecutorConfig
	Recorder Recorder
	Clock    Clock
}

// Crawler mirrors directory trees into collections. It holds no per-crawl
// state and may run several crawls in sequence.
type Crawler struct {
	ingester    Ingester
	exec        *Executor
	filter      *Filter
	parallelism int
	recorder    Recorder
	clock       Clock
	logger      *zap.Logger
}

// New constructs a Crawler.
func New(ingester Ingester, opts Options, logger *zap.Logger) *Crawler {
	logger = logging.OrNop(logger)
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	metrics.Init()
	return &Crawler{
		ingester:    ingester,
		exec:        NewExecutor(ingester, opts.Executor, logger.Named("executor")),
		filter:      NewFilter(opts.SkipJunk),
		parallelism: opts.Parallelism,
		recorder:    opts.Recorder,
		clock:       opts.Clock,
		logger:      logger,
	}
}

// Crawl uploads the file or directory tree at path into the collection with
// the given foreign id, creating the collection from cfg when needed.
//
// Node failures are logged, recorded and counted in the Summary; they never
// stop the crawl. An error is returned only when the root is unusable, the
// collection cannot be resolved, or ctx ends before the uploads drain.
func (c *Crawler) Crawl(ctx context.Context, path, foreignID string, cfg aleph.CollectionConfig) (Summary, error) {
	start := c.clock.Now()
	root, isDir, err := resolveRoot(path)
	if err != nil {
		return Summary{}, err
	}

	coll, err := c.ingester.LoadCollection(ctx, foreignID, cfg)
	if err != nil {
		return Summary{}, fmt.Errorf("%w %q: %w", ErrCollectionResolution, foreignID, err)
	}
	if coll.ID == "" {
		return Summary{}, fmt.Errorf("%w %q: response carried no id", ErrCollectionResolution, foreignID)
	}

	r := c.newRun(root, coll.ID.String())
	r.logger.Info("crawl started",
		zap.String("root", root),
		zap.String("foreign_id", foreignID),
		zap.Int("parallelism", c.parallelism),
	)
	if isDir {
		r.scanQ.Put(WorkItem{Node: &Node{Path: root, IsDir: true, Attempt: 1}})
	} else {
		fid, _ := ForeignID(root, root, false)
		r.uploadQ.Put(WorkItem{Node: &Node{Path: root, ForeignID: fid, Attempt: 1}})
	}

	var workers sync.WaitGroup
	for i := 0; i < c.parallelism; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			r.work(ctx, id)
		}(i)
	}

	scanned := make(chan struct{})
	go func() {
		defer close(scanned)
		r.scan(ctx)
	}()

	// Enumeration must finish before the upload queue is joined, otherwise
	// the join could observe an empty queue the scanner is about to refill.
	<-scanned
	err = r.scanQ.Join(ctx)
	if err == nil {
		err = r.uploadQ.Join(ctx)
	}
	if err == nil && ctx.Err() != nil {
		// Items skipped after cancellation are acknowledged without being
		// uploaded, so the joins alone cannot tell a complete crawl apart.
		err = ctx.Err()
	}
	for i := 0; i < c.parallelism; i++ {
		r.uploadQ.Put(WorkItem{})
	}
	workers.Wait()

	summary := r.summary()
	summary.Duration = c.clock.Now().Sub(start)
	r.logger.Info("crawl finished",
		zap.Int("uploaded", summary.Uploaded),
		zap.Int("failed", summary.Failed),
		zap.Int("retries", summary.Retries),
		zap.Duration("duration", summary.Duration),
	)
	if err != nil {
		return summary, fmt.Errorf("crawl %s: %w", root, err)
	}
	return summary, nil
}

func resolveRoot(path string) (string, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	if !info.IsDir() && !info.Mode().IsRegular() {
		return "", false, fmt.Errorf("%w: %s is neither a directory nor a regular file", ErrInvalidRoot, resolved)
	}
	return resolved, info.IsDir(), nil
}

// run is the state of one Crawl call. The queues are the only structures
// mutated concurrently.
type run struct {
	exec         *Executor
	filter       *Filter
	recorder     Recorder
	clock        Clock
	logger       *zap.Logger
	root         string
	collectionID string
	scanQ        *memory.Queue[WorkItem]
	uploadQ      *memory.Queue[WorkItem]

	uploaded atomic.Int64
	failed   atomic.Int64
	retries  atomic.Int64
}

func (c *Crawler) newRun(root, collectionID string) *run {
	return &run{
		exec:         c.exec,
		filter:       c.filter,
		recorder:     c.recorder,
		clock:        c.clock,
		logger:       c.logger.With(zap.String("collection_id", collectionID)),
		root:         root,
		collectionID: collectionID,
		scanQ:        memory.NewQueue[WorkItem](),
		uploadQ:      memory.NewQueue[WorkItem](),
	}
}

func (r *run) nextAttempt(node *Node) *Node {
	r.retries.Add(1)
	next := *node
	next.Attempt++
	return &next
}

// finish accounts for a node whose processing has ended.
func (r *run) finish(ctx context.Context, node *Node, res Result) {
	outcome := Outcome{
		CollectionID: r.collectionID,
		ForeignID:    node.ForeignID,
		Path:         node.Path,
		IsDir:        node.IsDir,
		Attempts:     node.Attempt,
		At:           r.clock.Now(),
	}
	kind := nodeKind(node)
	if res.Kind == ResultOK {
		r.uploaded.Add(1)
		outcome.Status = StatusUploaded
		outcome.RemoteID = res.RemoteID
	} else {
		r.failed.Add(1)
		outcome.Status = StatusFailed
		if res.Err != nil {
			outcome.Error = res.Err.Error()
		}
	}
	metrics.ObserveUpload(kind, string(outcome.Status))
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Record(ctx, outcome); err != nil {
		r.logger.Warn("record outcome failed", zap.String("foreign_id", node.ForeignID), zap.Error(err))
	}
}

func (r *run) summary() Summary {
	return Summary{
		CollectionID: r.collectionID,
		Uploaded:     int(r.uploaded.Load()),
		Failed:       int(r.failed.Load()),
		Retries:      int(r.retries.Load()),
	}
}
