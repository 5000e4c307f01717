package local

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const DefaultDimension = 384

// Embedder maps text to a fixed-size vector by hashing lower-cased word
// unigrams and bigrams into signed buckets. It needs no network or model
// files, and texts sharing vocabulary land close in cosine space.
type Embedder struct {
	dim int
}

func NewEmbedder(dim int) *Embedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Embedder{dim: dim}
}

func (e *Embedder) Dimension() int {
	return e.dim
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vector(text), nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *Embedder) vector(text string) []float32 {
	v := make([]float64, e.dim)

	words := tokenize(text)
	for i, w := range words {
		e.add(v, w, 1)
		if i > 0 {
			e.add(v, words[i-1]+" "+w, 0.5)
		}
	}

	var sum float64
	for _, x := range v {
		sum += x * x
	}
	out := make([]float32, e.dim)
	if sum == 0 {
		return out
	}
	n := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(x / n)
	}
	return out
}

func (e *Embedder) add(v []float64, feature string, weight float64) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := int(sum % uint64(e.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[bucket] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
