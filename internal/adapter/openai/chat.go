package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gopenai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL      = "https://openrouter.ai/api/v1"
	DefaultModel        = "openrouter/horizon-beta"
	DefaultSystemPrompt = "You're an expert on policy and legal document questions."
)

var ErrEmptyCompletion = errors.New("model returned no choices")

type ChatConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// ChatClient answers questions through an OpenAI-compatible chat completion API.
type ChatClient struct {
	client  *gopenai.Client
	model   string
	system  string
	timeout time.Duration
}

func NewChatClient(cfg ChatConfig) *ChatClient {
	clientCfg := gopenai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = DefaultBaseURL
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	c := &ChatClient{
		client:  gopenai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		system:  cfg.SystemPrompt,
		timeout: cfg.Timeout,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.system == "" {
		c.system = DefaultSystemPrompt
	}
	return c
}

// UserMessage formats the retrieved passages and question into the user turn.
func UserMessage(passages, question string) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", passages, question)
}

func (c *ChatClient) Model() string {
	return c.model
}

func (c *ChatClient) Answer(ctx context.Context, passages, question string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, gopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []gopenai.ChatCompletionMessage{
			{Role: gopenai.ChatMessageRoleSystem, Content: c.system},
			{Role: gopenai.ChatMessageRoleUser, Content: UserMessage(passages, question)},
		},
	})
	if err != nil {
		slog.WarnContext(ctx, "chat completion failed", "model", c.model, "error", err)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	slog.DebugContext(ctx, "chat completion", "model", c.model, "duration", time.Since(start), "total_tokens", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}
