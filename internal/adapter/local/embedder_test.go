package local

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestEmbedder_Embed(t *testing.T) {
	e := NewEmbedder(0)
	ctx := context.Background()

	v, err := e.Embed(ctx, "Grace period for premium payment")
	require.NoError(t, err)
	assert.Len(t, v, DefaultDimension)
	assert.InDelta(t, 1.0, cosine(v, v), 1e-6)

	again, err := e.Embed(ctx, "grace PERIOD, for premium payment!")
	require.NoError(t, err)
	assert.Equal(t, v, again, "case and punctuation should not matter")
}

func TestEmbedder_Similarity(t *testing.T) {
	e := NewEmbedder(256)
	ctx := context.Background()

	q, _ := e.Embed(ctx, "What is the grace period for premium payment?")
	related, _ := e.Embed(ctx, "A grace period of thirty days is allowed for premium payment.")
	unrelated, _ := e.Embed(ctx, "Cataract surgery has a two year waiting period.")

	assert.Greater(t, cosine(q, related), cosine(q, unrelated))
}

func TestEmbedder_EmptyText(t *testing.T) {
	e := NewEmbedder(16)
	v, err := e.Embed(context.Background(), "  ...  ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 16), v)
}

func TestEmbedder_EmbedBatch(t *testing.T) {
	e := NewEmbedder(32)
	ctx := context.Background()

	out, err := e.EmbedBatch(ctx, []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, out, 2)

	one, _ := e.Embed(ctx, "one")
	assert.Equal(t, one, out[0])

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = e.EmbedBatch(cancelled, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}
