package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	DefaultModel = "gemini-embedding-001"

	// maxBatch is the BatchEmbedContents request limit.
	maxBatch = 100
)

type Embedder struct {
	client *genai.Client
	model  string
}

func NewEmbedder(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Embedder, error) {
	if model == "" {
		model = DefaultModel
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Embedder{client: client, model: model}, nil
}

func (e *Embedder) Close() error {
	return e.client.Close()
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	slog.DebugContext(ctx, "embedding content", "model", e.model, "length", len(text))
	em := e.client.EmbeddingModel(e.model)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, err
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("gemini returned no embedding")
	}
	return res.Embedding.Values, nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	em := e.client.EmbeddingModel(e.model)
	out := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))

		b := em.NewBatch()
		for _, t := range texts[start:end] {
			b.AddContent(genai.Text(t))
		}

		slog.DebugContext(ctx, "embedding batch", "model", e.model, "size", end-start)
		res, err := em.BatchEmbedContents(ctx, b)
		if err != nil {
			slog.ErrorContext(ctx, "batch embedding failed", "error", err)
			return nil, err
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(res.Embeddings), end-start)
		}
		for _, emb := range res.Embeddings {
			out = append(out, emb.Values)
		}
	}
	return out, nil
}
