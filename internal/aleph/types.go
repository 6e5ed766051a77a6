package aleph

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is a server-assigned identifier. Aleph serialises ids as strings in some
// responses and as numbers in others, so both are accepted.
type ID string

// UnmarshalJSON accepts a JSON string, number or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the id as a plain string.
func (id ID) String() string {
	return string(id)
}

// Collection is the subset of a collection document the crawler needs.
type Collection struct {
	ID        ID     `json:"id"`
	ForeignID string `json:"foreign_id"`
	Label     string `json:"label"`
}

// CollectionConfig carries the user-supplied attributes used when a
// collection has to be created.
type CollectionConfig struct {
	Label     string
	Languages []string
	CaseFile  bool
	Category  string
	Summary   string
}

type createCollectionRequest struct {
	ForeignID string   `json:"foreign_id"`
	Label     string   `json:"label"`
	CaseFile  bool     `json:"casefile"`
	Category  string   `json:"category"`
	Languages []string `json:"languages"`
	Summary   string   `json:"summary"`
}

func newCreateCollectionRequest(foreignID string, cfg CollectionConfig) createCollectionRequest {
	req := createCollectionRequest{
		ForeignID: foreignID,
		Label:     cfg.Label,
		CaseFile:  cfg.CaseFile,
		Category:  cfg.Category,
		Languages: cfg.Languages,
		Summary:   cfg.Summary,
	}
	if req.Label == "" {
		req.Label = foreignID
	}
	if req.Category == "" {
		req.Category = "other"
	}
	if req.Languages == nil {
		req.Languages = []string{}
	}
	return req
}

// Metadata is the JSON document sent in the "meta" field of an ingest call.
type Metadata struct {
	ForeignID string `json:"foreign_id"`
	FileName  string `json:"file_name"`
	ParentID  string `json:"parent_id,omitempty"`
}

// IngestResult is the response to an ingest call.
type IngestResult struct {
	ID     ID     `json:"id"`
	Status string `json:"status,omitempty"`
}

type collectionResultSet struct {
	Results []Collection `json:"results"`
	Total   int          `json:"total"`
}
