package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackrx/backend/internal/adapter/openai"
)

func TestEmbedder_EmbedBatch(t *testing.T) {
	var gotModel string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotModel = req.Model

		// Reverse order to check results are re-sorted by index
		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), 1},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"object": "list", "data": data, "model": req.Model})
	}))
	defer ts.Close()

	e := openai.NewEmbedder("k", ts.URL, "", nil)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{0, 1}, vecs[0])
	assert.Equal(t, []float32{2, 1}, vecs[2])
	assert.Equal(t, openai.DefaultEmbeddingModel, gotModel)

	vec, err := e.Embed(context.Background(), "solo")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vec)

	none, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestEmbedder_Error(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer ts.Close()

	e := openai.NewEmbedder("k", ts.URL, "text-embedding-3-large", nil)
	_, err := e.Embed(context.Background(), "x")
	assert.Error(t, err)
}
