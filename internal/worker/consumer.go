package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"hackrx/backend/internal/middleware"
)

// IndexConsumer builds indexes from tasks published on the index topic.
type IndexConsumer struct {
	builder Builder
}

func NewIndexConsumer(b Builder) *IndexConsumer {
	return &IndexConsumer{builder: b}
}

func (h *IndexConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task IndexTask
	if err := json.Unmarshal(m.Body, &task); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if task.DocHash == "" {
		slog.Error("poison pill: index task without doc hash")
		return nil
	}

	ctx := context.Background()
	if task.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, task.CorrelationID)
	}

	if err := h.builder.Build(ctx, task); err != nil {
		return err // Retry
	}
	return nil
}
