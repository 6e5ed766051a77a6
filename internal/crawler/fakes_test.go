package crawler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawldir/internal/aleph"
)

type ingestCall struct {
	CollectionID string
	Path         string
	Meta         aleph.Metadata
	Index        bool
}

type fakeIngester struct {
	mu         sync.Mutex
	collection aleph.Collection
	loadErr    error
	loads      int
	calls      []ingestCall
	queued     map[string][]error
	always     map[string]error
	noID       map[string]bool
}

func newFakeIngester() *fakeIngester {
	return &fakeIngester{
		collection: aleph.Collection{ID: "col-1", ForeignID: "archive"},
		queued:     make(map[string][]error),
		always:     make(map[string]error),
		noID:       make(map[string]bool),
	}
}

func (f *fakeIngester) LoadCollection(_ context.Context, _ string, _ aleph.CollectionConfig) (aleph.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadErr != nil {
		return aleph.Collection{}, f.loadErr
	}
	return f.collection, nil
}

func (f *fakeIngester) IngestUpload(
	_ context.Context,
	collectionID string,
	path string,
	meta aleph.Metadata,
	index bool,
) (aleph.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ingestCall{CollectionID: collectionID, Path: path, Meta: meta, Index: index})
	if err, ok := f.always[meta.ForeignID]; ok {
		return aleph.IngestResult{}, err
	}
	if errs := f.queued[meta.ForeignID]; len(errs) > 0 {
		f.queued[meta.ForeignID] = errs[1:]
		return aleph.IngestResult{}, errs[0]
	}
	if f.noID[meta.ForeignID] {
		return aleph.IngestResult{Status: "ok"}, nil
	}
	return aleph.IngestResult{ID: aleph.ID("id:" + meta.ForeignID), Status: "ok"}, nil
}

func (f *fakeIngester) failNext(foreignID string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[foreignID] = append(f.queued[foreignID], errs...)
}

func (f *fakeIngester) failAlways(foreignID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.always[foreignID] = err
}

func (f *fakeIngester) snapshot() []ingestCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ingestCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeIngester) foreignIDs() []string {
	calls := f.snapshot()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Meta.ForeignID)
	}
	return out
}

// firstCall returns the position of the first call for foreignID, or -1.
func (f *fakeIngester) firstCall(foreignID string) int {
	for i, id := range f.foreignIDs() {
		if id == foreignID {
			return i
		}
	}
	return -1
}

func (f *fakeIngester) callFor(t *testing.T, foreignID string) ingestCall {
	t.Helper()
	for _, c := range f.snapshot() {
		if c.Meta.ForeignID == foreignID {
			return c
		}
	}
	t.Fatalf("no ingest call for %q", foreignID)
	return ingestCall{}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return s.err
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type outcomeLog struct {
	mu       sync.Mutex
	outcomes []Outcome
	err      error
}

func (o *outcomeLog) Record(_ context.Context, outcome Outcome) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
	return o.err
}

func (o *outcomeLog) byForeignID() map[string]Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]Outcome, len(o.outcomes))
	for _, oc := range o.outcomes {
		out[oc.ForeignID] = oc
	}
	return out
}

// makeTree creates entries under a fresh temp dir and returns its resolved
// path. Entries ending in "/" are directories; parents are created as needed.
func makeTree(t *testing.T, entries ...string) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	for _, entry := range entries {
		full := filepath.Join(root, filepath.FromSlash(strings.TrimSuffix(entry, "/")))
		if strings.HasSuffix(entry, "/") {
			require.NoError(t, os.MkdirAll(full, 0o755))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(entry), 0o600))
	}
	return root
}
