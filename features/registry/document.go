package registry

import (
	"errors"
	"time"
)

const (
	StatusPending = "pending"
	StatusIndexed = "indexed"
	StatusFailed  = "failed"
)

var ErrNotFound = errors.New("document not found")

// Document is the registry row for one distinct document hash.
type Document struct {
	Hash       string     `json:"hash"`
	Source     string     `json:"source"`
	Filename   string     `json:"filename"`
	FileType   string     `json:"file_type"`
	ChunkCount int        `json:"chunk_count"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	HitCount   int        `json:"hit_count"`
	CreatedAt  time.Time  `json:"created_at"`
	IndexedAt  *time.Time `json:"indexed_at,omitempty"`
}
