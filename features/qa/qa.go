package qa

import (
	"errors"
	"io"
)

// FallbackAnswer replaces the answer of any question the model failed on.
const FallbackAnswer = "Model failed. Try again."

const (
	IndexStatusReady    = "ready"
	IndexStatusBuilt    = "built"
	IndexStatusBuilding = "building"
	IndexStatusEmpty    = "empty"
)

var (
	ErrInvalidQuestions = errors.New("questions must be a non-empty JSON list of strings")
	ErrMissingDocument  = errors.New("a document URL or file upload is required")
)

// Request is one question-answering run against a single document. Exactly
// one of DocumentURL or File is used; File wins when both are set.
type Request struct {
	DocumentURL string
	Filename    string
	File        io.Reader
	Questions   []string
}

type Response struct {
	Answers []string `json:"answers"`
	Meta    Meta     `json:"meta"`
}

type Meta struct {
	DocHash     string `json:"doc_hash"`
	CacheHit    bool   `json:"cache_hit"`
	IndexStatus string `json:"index_status"`
	ChunkCount  int    `json:"chunk_count"`
	DurationMs  int64  `json:"duration_ms"`
}
