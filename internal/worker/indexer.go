package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hackrx/backend/internal/index"
)

const buildTimeout = 10 * time.Minute

// Indexer embeds a task's chunks and persists the resulting index.
type Indexer struct {
	embedder  index.Embedder
	store     IndexStore
	status    StatusUpdater
	batchSize int
}

// NewIndexer builds an Indexer. status may be nil.
func NewIndexer(e index.Embedder, s IndexStore, status StatusUpdater, batchSize int) *Indexer {
	return &Indexer{embedder: e, store: s, status: status, batchSize: batchSize}
}

func (i *Indexer) Build(ctx context.Context, task IndexTask) error {
	ctx, cancel := context.WithTimeout(ctx, buildTimeout)
	defer cancel()

	start := time.Now()
	log := slog.With("doc_hash", task.DocHash, "chunks", len(task.Chunks))

	exists, err := i.store.Exists(ctx, task.DocHash)
	if err != nil {
		log.WarnContext(ctx, "index existence check failed", "error", err)
	}
	if exists {
		log.InfoContext(ctx, "index already built, skipping")
		return nil
	}

	entries, err := index.Build(ctx, i.embedder, task.Chunks, i.batchSize)
	if err != nil {
		i.markFailed(ctx, task.DocHash, err)
		return fmt.Errorf("build index %s: %w", task.DocHash, err)
	}

	if err := i.store.Save(ctx, task.DocHash, entries); err != nil {
		i.markFailed(ctx, task.DocHash, err)
		return fmt.Errorf("save index %s: %w", task.DocHash, err)
	}

	if i.status != nil {
		if err := i.status.MarkIndexed(ctx, task.DocHash, len(entries)); err != nil {
			log.WarnContext(ctx, "failed to mark document indexed", "error", err)
		}
	}

	log.InfoContext(ctx, "index built", "duration", time.Since(start))
	return nil
}

func (i *Indexer) markFailed(ctx context.Context, hash string, cause error) {
	slog.ErrorContext(ctx, "index build failed", "doc_hash", hash, "error", cause)
	if i.status == nil {
		return
	}
	if err := i.status.MarkFailed(ctx, hash, cause.Error()); err != nil {
		slog.WarnContext(ctx, "failed to mark document failed", "doc_hash", hash, "error", err)
	}
}
