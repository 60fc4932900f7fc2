package server

import (
	"github.com/becomeliminal/nim-memory/memory"
)

// Operation names accepted on the WebSocket.
const (
	OpSave        = "save"
	OpGet         = "get"
	OpRelevant    = "relevant"
	OpSearch      = "search"
	OpRemove      = "remove"
	OpCreate      = "create"
	OpDrop        = "drop"
	OpExists      = "exists"
	OpCollections = "collections"
	OpInfo        = "info"
	OpCount       = "count"
	OpBatchSave   = "batch_save"
)

// Request is one JSON message from a client. Fields not used by Op are
// ignored.
type Request struct {
	// ID is echoed back so clients can match responses.
	ID string `json:"id,omitempty"`
	Op string `json:"op"`

	Collection string         `json:"collection,omitempty"`
	RecordID   string         `json:"record_id,omitempty"`
	Text       string         `json:"text,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Embedding  []float32      `json:"embedding,omitempty"`

	Query    string  `json:"query,omitempty"`
	Limit    int     `json:"limit,omitempty"`
	MinScore float64 `json:"min_score,omitempty"`

	Items []memory.BatchItem `json:"items,omitempty"`
}

// Response answers one Request.
//
// OK carries the boolean outcome of the store call (saved, found,
// removed, created, exists). Error is set only when the request itself
// could not be served.
type Response struct {
	ID    string `json:"id,omitempty"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`

	Record      *memory.Record         `json:"record,omitempty"`
	Results     []memory.ResultItem    `json:"results,omitempty"`
	Collections []string               `json:"collections,omitempty"`
	Count       *int                   `json:"count,omitempty"`
	Info        *memory.CollectionInfo `json:"info,omitempty"`
	Batch       []memory.BatchResult   `json:"batch,omitempty"`
}

func failure(id string, err error) Response {
	return Response{ID: id, Error: err.Error()}
}
