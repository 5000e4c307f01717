package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackrx/backend/internal/adapter/openai"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Context:\nA\nB\n\nQuestion: Why?", openai.UserMessage("A\nB", "Why?"))
}

func TestChatClient_Answer(t *testing.T) {
	var got chatRequest
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "gen-1",
			"model": got.Model,
			"choices": []map[string]interface{}{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": "Thirty days."}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"total_tokens": 42},
		})
	}))
	defer ts.Close()

	c := openai.NewChatClient(openai.ChatConfig{APIKey: "sk-test", BaseURL: ts.URL})

	answer, err := c.Answer(context.Background(), "Grace period is thirty days.", "What is the grace period?")
	require.NoError(t, err)
	assert.Equal(t, "Thirty days.", answer)

	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, openai.DefaultModel, got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, openai.DefaultSystemPrompt, got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "Context:\nGrace period is thirty days.\n\nQuestion: What is the grace period?", got.Messages[1].Content)
}

func TestChatClient_Errors(t *testing.T) {
	t.Run("Non 200", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"error":{"message":"upstream down","code":502}}`))
		}))
		defer ts.Close()

		c := openai.NewChatClient(openai.ChatConfig{APIKey: "k", BaseURL: ts.URL})
		_, err := c.Answer(context.Background(), "ctx", "q")
		assert.Error(t, err)
	})

	t.Run("No Choices", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"x","choices":[]}`))
		}))
		defer ts.Close()

		c := openai.NewChatClient(openai.ChatConfig{APIKey: "k", BaseURL: ts.URL})
		_, err := c.Answer(context.Background(), "ctx", "q")
		assert.ErrorIs(t, err, openai.ErrEmptyCompletion)
	})

	t.Run("Timeout", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer ts.Close()

		c := openai.NewChatClient(openai.ChatConfig{APIKey: "k", BaseURL: ts.URL, Timeout: 50 * time.Millisecond})
		_, err := c.Answer(context.Background(), "ctx", "q")
		assert.Error(t, err)
	})
}
