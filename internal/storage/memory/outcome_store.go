// Package memory keeps crawl outcomes in process memory.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/crawldir/internal/crawler"
)

// OutcomeStore is a crawler.Recorder that keeps the latest outcome per
// (collection, foreign id) and the order in which they arrived.
type OutcomeStore struct {
	mu     sync.RWMutex
	order  []key
	latest map[key]crawler.Outcome
}

type key struct {
	collectionID string
	foreignID    string
}

// NewOutcomeStore constructs an empty store.
func NewOutcomeStore() *OutcomeStore {
	return &OutcomeStore{latest: make(map[key]crawler.Outcome)}
}

// Record stores outcome, replacing any earlier outcome for the same node.
func (s *OutcomeStore) Record(_ context.Context, outcome crawler.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{collectionID: outcome.CollectionID, foreignID: outcome.ForeignID}
	if _, ok := s.latest[k]; !ok {
		s.order = append(s.order, k)
	}
	s.latest[k] = outcome
	return nil
}

// Outcomes returns the stored outcomes in first-seen order.
func (s *OutcomeStore) Outcomes() []crawler.Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Outcome, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.latest[k])
	}
	return out
}

// Failed returns the outcomes whose status is failed.
func (s *OutcomeStore) Failed() []crawler.Outcome {
	var out []crawler.Outcome
	for _, o := range s.Outcomes() {
		if o.Status == crawler.StatusFailed {
			out = append(out, o)
		}
	}
	return out
}

// Counts returns the number of uploaded and failed nodes.
func (s *OutcomeStore) Counts() (uploaded, failed int) {
	for _, o := range s.Outcomes() {
		switch o.Status {
		case crawler.StatusUploaded:
			uploaded++
		case crawler.StatusFailed:
			failed++
		}
	}
	return uploaded, failed
}
