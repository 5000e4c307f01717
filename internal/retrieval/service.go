package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hackrx/backend/internal/index"
	"hackrx/backend/internal/middleware"
)

// rerankPool is how many candidates per requested result are fetched when a
// reranker reorders them.
const rerankPool = 3

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string) ([]int, error)
}

type Service struct {
	embedder Embedder
	store    index.Store
	reranker Reranker
	logger   *QueryLogger
}

// NewService wires a retrieval service. Reranker and logger may be nil.
func NewService(e Embedder, s index.Store, r Reranker, l *QueryLogger) *Service {
	return &Service{embedder: e, store: s, reranker: r, logger: l}
}

// Search returns at most k chunks of the document docHash most relevant to
// question, best first.
func (s *Service) Search(ctx context.Context, docHash, question string, k int) ([]index.Result, error) {
	start := time.Now()
	var results []index.Result
	var err error

	defer func() {
		if s.logger != nil && err == nil {
			entry := QueryLogEntry{
				Query:         question,
				DocHash:       docHash,
				NumResults:    len(results),
				Duration:      time.Since(start),
				CorrelationID: middleware.GetCorrelationID(ctx),
			}
			if len(results) > 0 {
				entry.TopScore = results[0].Score
			}
			s.logger.Log(entry)
		}
	}()

	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	limit := k
	if s.reranker != nil {
		limit = k * rerankPool
	}

	results, err = s.store.Search(ctx, docHash, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	if s.reranker != nil && len(results) > 0 {
		contents := make([]string, len(results))
		for i, r := range results {
			contents[i] = r.Content
		}

		var indices []int
		indices, err = s.reranker.Rerank(ctx, question, contents)
		if err != nil {
			return nil, fmt.Errorf("rerank: %w", err)
		}

		reranked := make([]index.Result, 0, len(indices))
		for _, idx := range indices {
			if idx >= 0 && idx < len(results) {
				reranked = append(reranked, results[idx])
			}
		}
		results = reranked
	}

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Prefix returns the first n chunks, used as context before an index exists.
func Prefix(chunks []string, n int) []string {
	if n < 0 {
		n = 0
	}
	if n > len(chunks) {
		n = len(chunks)
	}
	return chunks[:n]
}

// JoinContext concatenates passages into the model context, one per line.
func JoinContext(passages []string) string {
	return strings.Join(passages, "\n")
}

// Contents extracts the chunk text of results, in order.
func Contents(results []index.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Content
	}
	return out
}
