package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

var ErrNotFound = errors.New("index not found")

type Entry struct {
	Index   int       `json:"index"`
	Content string    `json:"content"`
	Vector  []float32 `json:"vector"`
}

type Result struct {
	Index   int     `json:"index"`
	Content string  `json:"content"`
	Score   float32 `json:"score"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Store persists one embedding index per document hash.
type Store interface {
	Exists(ctx context.Context, docHash string) (bool, error)
	Save(ctx context.Context, docHash string, entries []Entry) error
	Search(ctx context.Context, docHash string, vector []float32, k int) ([]Result, error)
	Count(ctx context.Context) (int, error)
}

// Build embeds chunks in batches of batchSize and returns one entry per chunk,
// in chunk order.
func Build(ctx context.Context, e Embedder, chunks []string, batchSize int) ([]Entry, error) {
	if batchSize <= 0 {
		batchSize = len(chunks)
	}

	entries := make([]Entry, 0, len(chunks))
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		vectors, err := e.EmbedBatch(ctx, chunks[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("embed chunks %d-%d: got %d vectors", start, end-1, len(vectors))
		}

		for i, v := range vectors {
			entries = append(entries, Entry{Index: start + i, Content: chunks[start+i], Vector: v})
		}
	}
	return entries, nil
}

// Flat is an exhaustive in-memory cosine similarity index.
type Flat struct {
	entries []Entry
	norms   []float64
}

func NewFlat(entries []Entry) *Flat {
	norms := make([]float64, len(entries))
	for i, e := range entries {
		norms[i] = norm(e.Vector)
	}
	return &Flat{entries: entries, norms: norms}
}

func (f *Flat) Len() int {
	return len(f.entries)
}

func (f *Flat) Entries() []Entry {
	return f.entries
}

// Search returns at most k entries ordered by similarity to vector, highest
// first. Equal scores keep chunk order.
func (f *Flat) Search(vector []float32, k int) []Result {
	if k <= 0 || len(f.entries) == 0 {
		return nil
	}

	qn := norm(vector)
	results := make([]Result, len(f.entries))
	for i, e := range f.entries {
		results[i] = Result{
			Index:   e.Index,
			Content: e.Content,
			Score:   float32(cosine(vector, e.Vector, qn, f.norms[i])),
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Index < results[j].Index
	})

	if k < len(results) {
		results = results[:k]
	}
	return results
}

func cosine(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
