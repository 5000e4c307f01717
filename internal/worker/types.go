package worker

import (
	"context"

	"hackrx/backend/internal/index"
)

// IndexTask asks for the embedding index of one document to be built.
type IndexTask struct {
	DocHash       string   `json:"doc_hash"`
	Source        string   `json:"source"`
	Chunks        []string `json:"chunks"`
	CorrelationID string   `json:"correlation_id"`
}

type StatusUpdater interface {
	MarkIndexed(ctx context.Context, hash string, chunkCount int) error
	MarkFailed(ctx context.Context, hash, reason string) error
}

type Builder interface {
	Build(ctx context.Context, task IndexTask) error
}

// Scheduler hands index builds off the request path.
type Scheduler interface {
	Schedule(ctx context.Context, task IndexTask) error
}

type Publisher interface {
	Publish(topic string, body []byte) error
}

// IndexStore is the subset of index.Store the indexer writes to.
type IndexStore interface {
	Exists(ctx context.Context, docHash string) (bool, error)
	Save(ctx context.Context, docHash string, entries []index.Entry) error
}
