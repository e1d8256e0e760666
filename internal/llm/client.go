package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gmsas95/moneychat/internal/config"
	apperrors "github.com/gmsas95/moneychat/internal/errors"
)

// Completer turns a prompt into text. Implementations are unreliable by
// contract: callers must handle errors and malformed output.
type Completer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Client provides access to any OpenAI-compatible chat completions API
type Client struct {
	provider config.Provider
	client   *http.Client
}

// NewClient creates a new LLM client
func NewClient(provider config.Provider) *Client {
	timeout := provider.Timeout
	if timeout == 0 {
		timeout = 60
	}

	return &Client{
		provider: provider,
		client: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}
}

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents an API request
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// ChatResponse represents a non-streaming API response
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ChatCompletion sends a chat completion request
func (c *Client) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(c.provider.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.provider.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.WithCause(apperrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperrors.ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperrors.WithCause(apperrors.ErrProviderUnavailable,
			fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(bodyBytes)))
	}

	var result ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}

// SimpleChat sends a single user message, with an optional system prompt,
// and returns the response text
func (c *Client) SimpleChat(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	messages := make([]Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, Message{Role: "user", Content: userMessage})

	resp, err := c.ChatCompletion(ctx, ChatRequest{
		Model:     c.provider.Model,
		Messages:  messages,
		MaxTokens: c.provider.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", apperrors.ErrEmptyCompletion
	}

	return resp.Choices[0].Message.Content, nil
}

// Generate implements Completer
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.SimpleChat(ctx, "", prompt)
}
