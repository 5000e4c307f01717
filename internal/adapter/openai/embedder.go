package openai

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	gopenai "github.com/sashabaranov/go-openai"
)

const (
	DefaultEmbeddingBaseURL = "https://api.openai.com/v1"
	DefaultEmbeddingModel   = "text-embedding-3-small"
)

// Embedder calls an OpenAI-compatible /embeddings endpoint.
type Embedder struct {
	client *gopenai.Client
	model  gopenai.EmbeddingModel
}

func NewEmbedder(apiKey, baseURL, model string, httpClient *http.Client) *Embedder {
	cfg := gopenai.DefaultConfig(apiKey)
	cfg.BaseURL = DefaultEmbeddingBaseURL
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Embedder{client: gopenai.NewClientWithConfig(cfg), model: gopenai.EmbeddingModel(model)}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, gopenai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("create embeddings: got %d vectors for %d texts", len(resp.Data), len(texts))
	}

	// Results carry their input position; the API does not promise order
	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}
