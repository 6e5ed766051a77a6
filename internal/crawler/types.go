package crawler

import (
	"errors"
	"time"
)

var (
	// ErrUploadFailed is returned when the server accepted an upload but
	// did not answer with a document id.
	ErrUploadFailed = errors.New("upload failed: response carried no id")
	// ErrCollectionResolution wraps failures to look up or create the
	// target collection. It is fatal to the whole crawl.
	ErrCollectionResolution = errors.New("resolve collection")
	// ErrInvalidRoot is returned when the crawl root cannot be used.
	ErrInvalidRoot = errors.New("invalid crawl root")
)

// Node is one file or directory met during the walk.
type Node struct {
	Path      string
	IsDir     bool
	ForeignID string
	// ParentID is the remote id of the parent folder, empty when the node
	// sits directly under the crawl root.
	ParentID string
	Attempt  int
}

// WorkItem is a queue entry. A nil Node is the poison pill that stops an
// upload worker.
type WorkItem struct {
	Node *Node
}

func (w WorkItem) poison() bool {
	return w.Node == nil
}

// ResultKind tags the outcome of one upload attempt.
type ResultKind int

// Upload attempt outcomes.
const (
	ResultOK ResultKind = iota
	ResultRetry
	ResultFail
)

func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultRetry:
		return "retry"
	case ResultFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Result is returned by Executor.Upload.
type Result struct {
	Kind     ResultKind
	RemoteID string
	Err      error
}

// Status is the terminal state of a node.
type Status string

// Terminal node states.
const (
	StatusUploaded Status = "uploaded"
	StatusFailed   Status = "failed"
)

// Outcome is handed to the Recorder once per node when its processing ends.
type Outcome struct {
	CollectionID string
	ForeignID    string
	Path         string
	IsDir        bool
	RemoteID     string
	Status       Status
	Attempts     int
	Error        string
	At           time.Time
}

// Summary aggregates the outcomes of one crawl.
type Summary struct {
	CollectionID string
	Uploaded     int
	Failed       int
	Retries      int
	Duration     time.Duration
}
