package registry_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackrx/backend/features/registry"
)

func newHandler(t *testing.T) (*registry.Handler, *http.ServeMux) {
	repo := registry.NewMemoryRepo()
	svc := registry.NewService(repo)
	_, err := svc.Record(context.Background(), registry.Document{Hash: "abc", Source: "https://x/p.pdf", FileType: "pdf"})
	require.NoError(t, err)

	h := registry.NewHandler(svc)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/documents", h.List)
	mux.HandleFunc("GET /api/v1/documents/{hash}", h.Get)
	return h, mux
}

func TestHandler_List(t *testing.T) {
	_, mux := newHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []registry.Document `json:"data"`
		Meta map[string]int      `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "abc", body.Data[0].Hash)
	assert.Equal(t, registry.StatusPending, body.Data[0].Status)
	assert.Equal(t, 1, body.Meta["count"])
}

func TestHandler_List_BadLimit(t *testing.T) {
	_, mux := newHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents?limit=abc", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "VALIDATION_ERROR", body["error"].(map[string]interface{})["code"])
}

func TestHandler_Get(t *testing.T) {
	_, mux := newHandler(t)

	t.Run("Found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/abc", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Data registry.Document `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "pdf", body.Data.FileType)
	})

	t.Run("Not Found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/zzz", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "NOT_FOUND", body["error"].(map[string]interface{})["code"])
		assert.Contains(t, body, "correlationId")
	})
}
