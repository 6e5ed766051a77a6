package crawler

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawldir/internal/metrics"
)

// scan drains the scan queue on the calling goroutine. It is the only
// producer for both queues, which is what guarantees a folder's remote id
// exists before any of its children are queued.
func (r *run) scan(ctx context.Context) {
	for {
		metrics.SetQueueDepth("scan", r.scanQ.Len())
		item, ok := r.scanQ.TryGet()
		if !ok {
			return
		}
		if ctx.Err() == nil {
			r.visit(ctx, item.Node)
		}
		r.scanQ.TaskDone()
	}
}

// visit creates the folder remotely (unless it is the crawl root) and queues
// its children. A folder that cannot be created is not listed.
func (r *run) visit(ctx context.Context, dir *Node) {
	parentID := ""
	if dir.ForeignID != "" {
		res := r.exec.Upload(ctx, r.collectionID, dir)
		switch res.Kind {
		case ResultRetry:
			r.scanQ.Put(WorkItem{Node: r.nextAttempt(dir)})
			return
		case ResultFail:
			r.finish(ctx, dir, res)
			return
		}
		r.finish(ctx, dir, res)
		parentID = res.RemoteID
	}

	entries, err := os.ReadDir(dir.Path)
	if err != nil {
		r.logger.Error("list directory failed", zap.String("path", dir.Path), zap.Error(err))
	}
	for _, entry := range entries {
		child, ok := r.child(dir.Path, entry, parentID)
		if !ok {
			continue
		}
		if child.IsDir {
			r.scanQ.Put(WorkItem{Node: child})
		} else {
			r.uploadQ.Put(WorkItem{Node: child})
		}
	}
	metrics.SetQueueDepth("upload", r.uploadQ.Len())
}

func (r *run) child(dir string, entry fs.DirEntry, parentID string) (*Node, bool) {
	path := filepath.Join(dir, entry.Name())
	isDir := entry.IsDir()
	mode := entry.Type()
	if mode&fs.ModeSymlink != 0 {
		info, err := os.Stat(path)
		if err != nil {
			r.logger.Warn("skipping broken symlink", zap.String("path", path), zap.Error(err))
			return nil, false
		}
		if info.IsDir() {
			r.logger.Warn("skipping symlinked directory", zap.String("path", path))
			return nil, false
		}
		mode = info.Mode().Type()
	}
	if !isDir && mode&fs.ModeType != 0 {
		r.logger.Debug("skipping special file", zap.String("path", path))
		return nil, false
	}
	if r.filter.Excluded(entry.Name(), isDir) {
		r.logger.Debug("skipping junk", zap.String("path", path), zap.Bool("dir", isDir))
		return nil, false
	}
	fid, ok := ForeignID(r.root, path, isDir)
	if !ok {
		return nil, false
	}
	return &Node{
		Path:      path,
		IsDir:     isDir,
		ForeignID: fid,
		ParentID:  parentID,
		Attempt:   1,
	}, true
}
