package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"hackrx/backend/internal/adapter/gemini"
)

func newTestServer(t *testing.T, status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{"code": status, "message": "API key not valid", "status": "INVALID_ARGUMENT"},
			})
			return
		}

		if strings.HasSuffix(r.URL.Path, ":batchEmbedContents") {
			var req struct {
				Requests []json.RawMessage `json:"requests"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			embeddings := make([]map[string]interface{}, len(req.Requests))
			for i := range embeddings {
				embeddings[i] = map[string]interface{}{"values": []float32{float32(i), 0.5}}
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": embeddings})
			return
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": map[string]interface{}{
				"values": []float32{0.1, 0.2, 0.3},
			},
		})
	}))
}

func TestEmbedder_Embed(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)
	defer ts.Close()

	ctx := context.Background()
	embedder, err := gemini.NewEmbedder(ctx, "test-key", "", option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	defer embedder.Close()

	vec, err := embedder.Embed(ctx, "hello world")
	require.NoError(t, err)
	if assert.Len(t, vec, 3) {
		assert.Equal(t, float32(0.1), vec[0])
	}
}

func TestEmbedder_EmbedBatch(t *testing.T) {
	ts := newTestServer(t, http.StatusOK)
	defer ts.Close()

	ctx := context.Background()
	embedder, err := gemini.NewEmbedder(ctx, "test-key", gemini.DefaultModel, option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	defer embedder.Close()

	vecs, err := embedder.EmbedBatch(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(2), vecs[2][0])
}

func TestEmbedder_APIError(t *testing.T) {
	ts := newTestServer(t, http.StatusBadRequest)
	defer ts.Close()

	ctx := context.Background()
	embedder, err := gemini.NewEmbedder(ctx, "test-key", "", option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	defer embedder.Close()

	vec, err := embedder.Embed(ctx, "hello")
	assert.Error(t, err)
	assert.Nil(t, vec)
}
