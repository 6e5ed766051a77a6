package crawler

import (
	"context"
	"time"

	"github.com/JakeFAU/crawldir/internal/aleph"
)

// Ingester is the remote side of the crawl; *aleph.Client satisfies it.
type Ingester interface {
	LoadCollection(ctx context.Context, foreignID string, cfg aleph.CollectionConfig) (aleph.Collection, error)
	IngestUpload(
		ctx context.Context,
		collectionID string,
		path string,
		meta aleph.Metadata,
		index bool,
	) (aleph.IngestResult, error)
}

// Recorder receives the terminal outcome of every node.
type Recorder interface {
	Record(ctx context.Context, outcome Outcome) error
}

// Backoff computes the wait before retry number attempt+1.
type Backoff interface {
	Backoff(attempt int) time.Duration
}

// Limiter paces uploads; *ratelimit.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
