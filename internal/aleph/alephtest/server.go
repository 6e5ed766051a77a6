// Package alephtest provides an in-process fake of the Aleph ingest API for
// tests. Ingested documents get the id "doc:<foreign_id>", so repeated
// uploads of the same foreign id resolve to the same document.
package alephtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/crawldir/internal/aleph"
)

// Call records one ingest request that reached the server.
type Call struct {
	CollectionID string
	Meta         aleph.Metadata
	HasFile      bool
	Body         []byte
	Index        string
	Status       int
}

// Server is a scripted fake Aleph instance.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	collections map[string]string
	created     []string
	calls       []Call
	failures    map[string][]int
	always      map[string]int
	noID        map[string]bool
	apiKeys     []string
	lookupFail  int
}

// NewServer starts a fake server. Close it with Server.Close.
func NewServer() *Server {
	s := &Server{
		collections: make(map[string]string),
		failures:    make(map[string][]int),
		always:      make(map[string]int),
		noID:        make(map[string]bool),
	}
	r := chi.NewRouter()
	r.Route("/api/2", func(r chi.Router) {
		r.Get("/collections", s.handleFilterCollections)
		r.Post("/collections", s.handleCreateCollection)
		r.Post("/collections/{collection_id}/ingest", s.handleIngest)
	})
	s.Server = httptest.NewServer(r)
	return s
}

// AddCollection registers an existing collection.
func (s *Server) AddCollection(foreignID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[foreignID] = id
}

// FailLookup makes collection lookups answer with status.
func (s *Server) FailLookup(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookupFail = status
}

// FailIngest makes the next len(statuses) ingests of foreignID fail with the
// given status codes, in order.
func (s *Server) FailIngest(foreignID string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[foreignID] = append(s.failures[foreignID], statuses...)
}

// FailAlways makes every ingest of foreignID fail with status.
func (s *Server) FailAlways(foreignID string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.always[foreignID] = status
}

// OmitID makes ingests of foreignID succeed without returning an id.
func (s *Server) OmitID(foreignID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noID[foreignID] = true
}

// Calls returns every ingest request in arrival order, failed ones included.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Succeeded returns the ingest requests that were answered with 200.
func (s *Server) Succeeded() []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Status == http.StatusOK {
			out = append(out, c)
		}
	}
	return out
}

// Created returns the foreign ids of collections created through the API.
func (s *Server) Created() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.created...)
}

// APIKeys returns the Authorization headers seen so far.
func (s *Server) APIKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.apiKeys...)
}

func (s *Server) handleFilterCollections(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.apiKeys = append(s.apiKeys, r.Header.Get("Authorization"))
	fail := s.lookupFail
	id, ok := s.collections[r.URL.Query().Get("filter:foreign_id")]
	s.mu.Unlock()

	if fail != 0 {
		writeJSON(w, fail, map[string]any{"status": "error", "message": "lookup failed"})
		return
	}
	results := []map[string]any{}
	if ok {
		results = append(results, map[string]any{
			"id":         id,
			"foreign_id": r.URL.Query().Get("filter:foreign_id"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "total": len(results)})
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ForeignID string `json:"foreign_id"`
		Label     string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ForeignID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "invalid collection"})
		return
	}
	s.mu.Lock()
	id := fmt.Sprintf("%d", len(s.collections)+1)
	s.collections[body.ForeignID] = id
	s.created = append(s.created, body.ForeignID)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "foreign_id": body.ForeignID, "label": body.Label})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	call := Call{
		CollectionID: chi.URLParam(r, "collection_id"),
		Index:        r.URL.Query().Get("index"),
	}
	if err := json.Unmarshal([]byte(r.FormValue("meta")), &call.Meta); err != nil {
		call.Status = http.StatusBadRequest
		s.record(call)
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "invalid meta"})
		return
	}
	if file, _, err := r.FormFile("file"); err == nil {
		call.HasFile = true
		call.Body, _ = io.ReadAll(file)
		_ = file.Close()
	}

	s.mu.Lock()
	status := http.StatusOK
	if code, ok := s.always[call.Meta.ForeignID]; ok {
		status = code
	} else if queued := s.failures[call.Meta.ForeignID]; len(queued) > 0 {
		status = queued[0]
		s.failures[call.Meta.ForeignID] = queued[1:]
	}
	omit := s.noID[call.Meta.ForeignID]
	call.Status = status
	s.calls = append(s.calls, call)
	s.mu.Unlock()

	switch {
	case status != http.StatusOK:
		writeJSON(w, status, map[string]any{"status": "error", "message": http.StatusText(status)})
	case omit:
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "id": "doc:" + call.Meta.ForeignID})
	}
}

func (s *Server) record(call Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
